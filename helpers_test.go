package reelflow

import (
	"testing"
	"time"
)

func TestToPtr(t *testing.T) {
	status := WorkflowStatusFailed
	ptr := ToPtr(status)
	status = WorkflowStatusCompleted

	if ptr == nil || *ptr != WorkflowStatusFailed {
		t.Fatalf("ToPtr() = %v, want a copy holding %s", ptr, WorkflowStatusFailed)
	}
	f := ListFilter{Status: ptr}
	if !f.Matches(WorkflowStatusFailed) || f.Matches(status) {
		t.Errorf("filter built from ToPtr should match only %s", WorkflowStatusFailed)
	}
}

func TestUTCNow(t *testing.T) {
	now := UTCNow()
	if now.Location() != time.UTC {
		t.Errorf("UTCNow() location = %v, want UTC", now.Location())
	}
	if now.Round(0) != now {
		t.Error("UTCNow() should carry no monotonic reading")
	}
}
