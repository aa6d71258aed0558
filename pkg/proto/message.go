// Package proto defines the structured message protocol for agent communication.
// It provides message types, priorities, and data structures used by the bus,
// the dispatcher, and the agents that coordinate over them.
package proto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"devloop/pkg/logx"
)

// MsgType represents the type of agent message.
type MsgType string

const (
	// MsgTypeTaskAssignment carries a task from the dispatcher to an agent.
	MsgTypeTaskAssignment MsgType = "task_assignment"
	// MsgTypeTaskCompletion reports a finished task back to the dispatcher.
	MsgTypeTaskCompletion MsgType = "task_completion"
	// MsgTypeStatusUpdate reports agent status and progress.
	MsgTypeStatusUpdate MsgType = "status_update"
	// MsgTypeErrorReport carries a typed error from an agent.
	MsgTypeErrorReport MsgType = "error_report"
	// MsgTypeWorkStealRequest asks the dispatcher for stealable work.
	MsgTypeWorkStealRequest MsgType = "work_steal_request"
	// MsgTypeWorkStealResponse answers a steal request.
	MsgTypeWorkStealResponse MsgType = "work_steal_response"
	// MsgTypeHeartbeat is a low-priority liveness signal.
	MsgTypeHeartbeat MsgType = "heartbeat"
	// MsgTypeShutdown tells agents to stop.
	MsgTypeShutdown MsgType = "shutdown"
)

// Priority represents the priority level for messages. Lower values win.
type Priority int

const (
	// PriorityCritical is delivered before everything else.
	PriorityCritical Priority = 1
	// PriorityHigh is delivered before normal traffic.
	PriorityHigh Priority = 2
	// PriorityNormal is the default priority.
	PriorityNormal Priority = 3
	// PriorityLow is delivered last.
	PriorityLow Priority = 4
)

// BroadcastRecipient addresses every registered subscriber.
const BroadcastRecipient = "*"

// Common payload keys used in agent messages.
const (
	KeyTaskID       = "task_id"
	KeySuccess      = "success"
	KeyOutput       = "output"
	KeyErrorMessage = "error"
	KeyErrorType    = "error_type"
	KeyStatus       = "status"
	KeyProgress     = "progress"
	KeyCurrentTask  = "current_task"
	KeyTimestamp    = "timestamp"
)

// Message represents a message passed between agents in the system.
// Ordering on the bus is by (Priority ascending, Timestamp ascending).
type Message struct {
	MsgType   MsgType        `json:"msg_type"`
	Sender    string         `json:"sender"`
	Recipient string         `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	Priority  Priority       `json:"priority"`
	MsgID     string         `json:"msg_id"`
	Timestamp float64        `json:"timestamp"`
	ReplyTo   string         `json:"reply_to,omitempty"`
}

// NewMessage creates a message with a fresh ID, NORMAL priority, and the
// current time.
func NewMessage(msgType MsgType, sender, recipient string) *Message {
	return &Message{
		MsgType:   msgType,
		Sender:    sender,
		Recipient: recipient,
		Payload:   make(map[string]any),
		Priority:  PriorityNormal,
		MsgID:     uuid.NewString(),
		Timestamp: nowEpoch(),
	}
}

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

// Less reports whether m orders before other: priority strictly wins,
// timestamp breaks ties.
func (m *Message) Less(other *Message) bool {
	if m.Priority != other.Priority {
		return m.Priority < other.Priority
	}
	return m.Timestamp < other.Timestamp
}

// SetPayload sets a payload value on the message and returns it for chaining.
func (m *Message) SetPayload(key string, value any) *Message {
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	m.Payload[key] = value
	return m
}

// GetPayload retrieves a payload value from the message.
func (m *Message) GetPayload(key string) (any, bool) {
	if m.Payload == nil {
		return nil, false
	}
	val, exists := m.Payload[key]
	return val, exists
}

// ToJSON serializes the message to JSON bytes.
func (m *Message) ToJSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, logx.Wrap(err, "failed to marshal Message to JSON")
	}
	return data, nil
}

// FromJSON creates a new Message from JSON bytes.
func FromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Message: %w", err)
	}
	if msg.Payload == nil {
		msg.Payload = make(map[string]any)
	}
	if msg.Priority == 0 {
		msg.Priority = PriorityNormal
	}
	if msg.MsgID == "" {
		msg.MsgID = uuid.NewString()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = nowEpoch()
	}
	return &msg, nil
}

// Clone creates a deep copy of the message.
func (m *Message) Clone() *Message {
	clone := &Message{
		MsgType:   m.MsgType,
		Sender:    m.Sender,
		Recipient: m.Recipient,
		Priority:  m.Priority,
		MsgID:     m.MsgID,
		Timestamp: m.Timestamp,
		ReplyTo:   m.ReplyTo,
	}

	if m.Payload != nil {
		clone.Payload = make(map[string]any, len(m.Payload))
		for k, v := range m.Payload {
			clone.Payload[k] = v
		}
	}

	return clone
}

// Validate checks if the message has valid required fields.
func (m *Message) Validate() error {
	if m.MsgID == "" {
		return fmt.Errorf("message ID is required")
	}
	if m.MsgType == "" {
		return fmt.Errorf("message type is required")
	}
	if m.Sender == "" {
		return fmt.Errorf("sender is required")
	}
	if m.Recipient == "" {
		return fmt.Errorf("recipient is required")
	}
	if _, valid := ValidateMsgType(string(m.MsgType)); !valid {
		return fmt.Errorf("invalid message type: %s", m.MsgType)
	}
	if _, valid := ValidatePriority(int(m.Priority)); !valid {
		return fmt.Errorf("invalid priority: %d", m.Priority)
	}
	return nil
}

// MsgType helper methods.

// ValidateMsgType validates if a string is a valid message type.
func ValidateMsgType(msgType string) (MsgType, bool) {
	switch MsgType(msgType) {
	case MsgTypeTaskAssignment, MsgTypeTaskCompletion, MsgTypeStatusUpdate,
		MsgTypeErrorReport, MsgTypeWorkStealRequest, MsgTypeWorkStealResponse,
		MsgTypeHeartbeat, MsgTypeShutdown:
		return MsgType(msgType), true
	default:
		return "", false
	}
}

// ParseMsgType parses a string into a MsgType with validation.
func ParseMsgType(s string) (MsgType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if msgType, valid := ValidateMsgType(normalized); valid {
		return msgType, nil
	}
	return "", fmt.Errorf("unknown message type: %s", s)
}

// String returns the string representation of MsgType.
func (mt MsgType) String() string {
	return string(mt)
}

// Priority helper methods.

// ValidatePriority validates if an int is a valid priority value.
func ValidatePriority(priority int) (Priority, bool) {
	switch Priority(priority) {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return Priority(priority), true
	default:
		return 0, false
	}
}

// ParsePriority parses a string into a Priority with validation.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return PriorityCritical, nil
	case "HIGH":
		return PriorityHigh, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "LOW":
		return PriorityLow, nil
	default:
		return 0, fmt.Errorf("unknown priority: %s", s)
	}
}

// String returns the string representation of Priority.
func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}
