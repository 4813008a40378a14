package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWorkflowInstance_AppendEvent(t *testing.T) {
	inst := WorkflowInstance{ID: "inst-1", CurrentStateID: "draft"}

	for i := 1; i <= 3; i++ {
		inst.AppendEvent(TransitionEvent{
			TransitionID: "submit",
			FromState:    "draft",
			ToState:      "review",
			Actor:        "user-1",
			Timestamp:    time.Now().UTC(),
			Version:      i,
		})
	}

	if len(inst.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(inst.History))
	}
	for i, evt := range inst.History {
		if evt.Version != i+1 {
			t.Errorf("history[%d].Version = %d, want %d", i, evt.Version, i+1)
		}
	}
}

func TestWorkflowInstance_InFinalState(t *testing.T) {
	def := approvalDefinition()

	inst := WorkflowInstance{CurrentStateID: "approved"}
	if !inst.InFinalState(&def) {
		t.Error("approved should be final")
	}

	inst.CurrentStateID = "review"
	if inst.InFinalState(&def) {
		t.Error("review should not be final")
	}

	inst.CurrentStateID = "unknown"
	if inst.InFinalState(&def) {
		t.Error("unknown state should not be treated as final")
	}
}

func TestWorkflowInstance_jsonShape(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	inst := WorkflowInstance{
		ID:             "inst-1",
		WorkflowID:     "wf-approval",
		DomainID:       "acme",
		RecordID:       "rec-9",
		CurrentStateID: "review",
		Data:           Document{"amount": 120.0},
		Version:        1,
		History: []TransitionEvent{
			{TransitionID: "submit", FromState: "draft", ToState: "review", Actor: "user-1", Timestamp: now, Version: 1},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(inst)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"id", "workflowId", "recordId", "currentStateId", "data", "version", "history"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("instance JSON missing key %q", key)
		}
	}

	history, _ := raw["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("history JSON = %v", raw["history"])
	}
	entry, _ := history[0].(map[string]any)
	for _, key := range []string{"transitionId", "fromState", "toState", "actor", "timestamp"} {
		if _, ok := entry[key]; !ok {
			t.Errorf("history entry JSON missing key %q", key)
		}
	}
}
