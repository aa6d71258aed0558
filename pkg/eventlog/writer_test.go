package eventlog

import (
	"testing"

	"devloop/pkg/proto"
)

func TestWriteAndReadBack(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	defer writer.Close()

	first := proto.NewMessage(proto.MsgTypeTaskAssignment, "orchestrator", "agent-0")
	first.SetPayload(proto.KeyTaskID, "t1")
	second := proto.NewMessage(proto.MsgTypeTaskCompletion, "agent-0", "orchestrator")
	second.Priority = proto.PriorityHigh

	if err := writer.WriteMessage(first); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := writer.WriteMessage(second); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}

	logFile := writer.GetCurrentLogFile()
	if logFile == "" {
		t.Fatal("Expected active log file")
	}

	messages, err := ReadMessages(logFile)
	if err != nil {
		t.Fatalf("ReadMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}

	if messages[0].MsgID != first.MsgID {
		t.Errorf("First message mismatch: %s", messages[0].MsgID)
	}
	if messages[1].Priority != proto.PriorityHigh {
		t.Errorf("Priority lost: %v", messages[1].Priority)
	}
	if taskID, ok := messages[0].GetPayload(proto.KeyTaskID); !ok || taskID != "t1" {
		t.Errorf("Payload lost: %v", taskID)
	}
}

func TestListLogFiles(t *testing.T) {
	dir := t.TempDir()

	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := writer.WriteMessage(proto.NewMessage(proto.MsgTypeHeartbeat, "a", "b")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	writer.Close()

	files, err := ListLogFiles(dir)
	if err != nil {
		t.Fatalf("ListLogFiles failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected 1 log file, got %d", len(files))
	}
}

func TestReadMessagesMissingFile(t *testing.T) {
	if _, err := ReadMessages("/nonexistent/events.jsonl"); err == nil {
		t.Error("Expected read error")
	}
}
