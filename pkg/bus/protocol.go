package bus

import (
	"time"

	"devloop/pkg/proto"
)

// AgentProtocol wraps the bus with per-agent messaging conventions. Every
// helper publishes; nothing is delivered until the owner calls Deliver.
type AgentProtocol struct {
	agentID  string
	bus      *MessageBus
	handlers []Handler
}

// OrchestratorID is the conventional recipient for agent reports.
const OrchestratorID = "orchestrator"

// NewAgentProtocol creates a protocol bound to the given bus and subscribes
// the agent.
func NewAgentProtocol(agentID string, b *MessageBus) *AgentProtocol {
	p := &AgentProtocol{
		agentID: agentID,
		bus:     b,
	}
	b.Subscribe(agentID, p.handleMessage)
	return p
}

func (p *AgentProtocol) handleMessage(msg *proto.Message) {
	for _, handler := range p.handlers {
		handler(msg)
	}
}

// OnMessage registers a handler invoked for every message delivered to this
// agent.
func (p *AgentProtocol) OnMessage(handler Handler) {
	p.handlers = append(p.handlers, handler)
}

// Send publishes a message on the underlying bus.
func (p *AgentProtocol) Send(msg *proto.Message) {
	p.bus.Publish(msg)
}

// SendTaskCompletion reports a finished task to the orchestrator.
func (p *AgentProtocol) SendTaskCompletion(taskID string, success bool, output, errMsg string) {
	msg := proto.NewMessage(proto.MsgTypeTaskCompletion, p.agentID, OrchestratorID)
	msg.SetPayload(proto.KeyTaskID, taskID)
	msg.SetPayload(proto.KeySuccess, success)
	msg.SetPayload(proto.KeyOutput, output)
	msg.SetPayload(proto.KeyErrorMessage, errMsg)
	p.Send(msg)
}

// SendStatusUpdate reports agent status and progress percentage.
func (p *AgentProtocol) SendStatusUpdate(status string, progress int, currentTask string) {
	msg := proto.NewMessage(proto.MsgTypeStatusUpdate, p.agentID, OrchestratorID)
	msg.SetPayload(proto.KeyStatus, status)
	msg.SetPayload(proto.KeyProgress, progress)
	msg.SetPayload(proto.KeyCurrentTask, currentTask)
	p.Send(msg)
}

// SendErrorReport reports a typed error at HIGH priority.
func (p *AgentProtocol) SendErrorReport(errorType, errorMessage, taskID string) {
	msg := proto.NewMessage(proto.MsgTypeErrorReport, p.agentID, OrchestratorID)
	msg.Priority = proto.PriorityHigh
	msg.SetPayload(proto.KeyErrorType, errorType)
	msg.SetPayload(proto.KeyErrorMessage, errorMessage)
	msg.SetPayload(proto.KeyTaskID, taskID)
	p.Send(msg)
}

// RequestWorkSteal asks the target for stealable work.
func (p *AgentProtocol) RequestWorkSteal(target string) {
	if target == "" {
		target = OrchestratorID
	}
	p.Send(proto.NewMessage(proto.MsgTypeWorkStealRequest, p.agentID, target))
}

// SendHeartbeat publishes a low-priority liveness signal.
func (p *AgentProtocol) SendHeartbeat() {
	msg := proto.NewMessage(proto.MsgTypeHeartbeat, p.agentID, OrchestratorID)
	msg.Priority = proto.PriorityLow
	msg.SetPayload(proto.KeyTimestamp, float64(time.Now().UnixNano())/1e9)
	p.Send(msg)
}
