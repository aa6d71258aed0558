// Package bus provides the priority pub/sub fabric used by the dispatcher and
// agents. Delivery is burst-based: Publish enqueues, Deliver drains everything
// queued at the time of the call in (priority, timestamp) order.
package bus

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"devloop/pkg/logx"
	"devloop/pkg/proto"
)

const maxHistory = 1000

// Handler processes a delivered message. Handlers run sequentially inside a
// Deliver burst and must not block indefinitely.
type Handler func(*proto.Message)

type queueItem struct {
	msg *proto.Message
	seq uint64 // publish order, breaks timestamp ties
}

type messageHeap []queueItem

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority < h[j].msg.Priority
	}
	if h[i].msg.Timestamp != h[j].msg.Timestamp {
		return h[i].msg.Timestamp < h[j].msg.Timestamp
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MessageBus is the central single-threaded message bus for agent
// communication.
type MessageBus struct {
	queue       messageHeap
	subscribers map[string]Handler
	history     []*proto.Message
	seq         uint64
	logger      *logx.Logger
}

// NewMessageBus creates an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		queue:       messageHeap{},
		subscribers: make(map[string]Handler),
		history:     make([]*proto.Message, 0),
		logger:      logx.NewLogger("bus"),
	}
}

// Publish enqueues a message for the next delivery burst.
func (b *MessageBus) Publish(msg *proto.Message) {
	b.seq++
	heap.Push(&b.queue, queueItem{msg: msg, seq: b.seq})
}

// Subscribe registers a handler for an agent. A second subscription with the
// same id replaces the first.
func (b *MessageBus) Subscribe(agentID string, handler Handler) {
	b.subscribers[agentID] = handler
}

// Unsubscribe removes an agent's handler.
func (b *MessageBus) Unsubscribe(agentID string) {
	delete(b.subscribers, agentID)
}

// Deliver drains all messages queued before the call, in priority order, and
// returns the number of handler invocations. Messages published by handlers
// during the burst wait for the next Deliver call. Messages addressed to an
// unknown recipient are dropped silently.
func (b *MessageBus) Deliver() int {
	// Snapshot the burst before invoking any handler: a message published
	// from inside a handler must wait for the next call even when it would
	// outrank the rest of this burst.
	burst := make([]*proto.Message, 0, b.queue.Len())
	for b.queue.Len() > 0 {
		burst = append(burst, heap.Pop(&b.queue).(queueItem).msg)
	}

	delivered := 0
	for _, msg := range burst {
		b.recordHistory(msg)

		if msg.Recipient == proto.BroadcastRecipient {
			for _, handler := range b.subscribers {
				handler(msg)
				delivered++
			}
		} else if handler, ok := b.subscribers[msg.Recipient]; ok {
			handler(msg)
			delivered++
		} else {
			b.logger.Debug("Dropping message %s for unknown recipient %s", msg.MsgID, msg.Recipient)
		}
	}

	return delivered
}

func (b *MessageBus) recordHistory(msg *proto.Message) {
	b.history = append(b.history, msg)
	if len(b.history) > maxHistory {
		b.history = b.history[len(b.history)-maxHistory:]
	}
}

// PendingCount returns the number of undelivered messages.
func (b *MessageBus) PendingCount() int {
	return b.queue.Len()
}

// GetHistory returns up to limit of the most recently delivered messages,
// oldest first.
func (b *MessageBus) GetHistory(limit int) []*proto.Message {
	if limit <= 0 || limit > len(b.history) {
		limit = len(b.history)
	}
	out := make([]*proto.Message, limit)
	copy(out, b.history[len(b.history)-limit:])
	return out
}

// SaveHistory writes the delivery history to a JSON file.
func (b *MessageBus) SaveHistory(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	data, err := json.MarshalIndent(b.history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal message history: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write message history: %w", err)
	}

	return nil
}

// LoadHistory reads a message history file written by SaveHistory.
func LoadHistory(path string) ([]*proto.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read message history: %w", err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message history: %w", err)
	}

	messages := make([]*proto.Message, 0, len(raw))
	for _, entry := range raw {
		msg, err := proto.FromJSON(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to parse history entry: %w", err)
		}
		messages = append(messages, msg)
	}

	return messages, nil
}
