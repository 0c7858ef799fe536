package cli

import (
	"encoding/json"
	"testing"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func TestBuildTaskIntegrityChecks(t *testing.T) {
	task, err := BuildTask(jobs.TaskLedgerIntegrity, jobs.CheckBalanceDrift)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != jobs.TaskLedgerIntegrity {
		t.Fatalf("unexpected task type %s", task.Type())
	}
	var payload jobs.IntegrityPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(payload.Checks) != 1 || payload.Checks[0] != jobs.CheckBalanceDrift {
		t.Fatalf("unexpected checks %v", payload.Checks)
	}
}

func TestBuildTaskRejectsUnknown(t *testing.T) {
	if _, err := BuildTask(jobs.TaskLedgerIntegrity, "everything"); err == nil {
		t.Fatal("expected unknown check to fail")
	}
	if _, err := BuildTask(jobs.TaskAROverdue, jobs.CheckBalanceDue); err == nil {
		t.Fatal("expected overdue sweep arguments to fail")
	}
	if _, err := BuildTask("mail:send"); err == nil {
		t.Fatal("expected unsupported job to fail")
	}
}

func TestBuildTaskOverdue(t *testing.T) {
	task, err := BuildTask(jobs.TaskAROverdue)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	if task.Type() != jobs.TaskAROverdue {
		t.Fatalf("unexpected task type %s", task.Type())
	}
}
