package definition

import (
	"strings"
	"testing"

	"github.com/formgrid/flowd/model"
)

func reviewDefinition() model.WorkflowDefinition {
	return model.WorkflowDefinition{
		ID:       "wf-review",
		DomainID: "acme",
		ModelID:  "document",
		Name:     "Document Review",
		States: []model.State{
			{ID: "draft", Name: "Draft", Initial: true},
			{ID: "review", Name: "In Review"},
			{ID: "published", Name: "Published", Final: true},
		},
		Transitions: []model.Transition{
			{ID: "submit", Name: "Submit", FromState: "draft", ToState: "review", AllowedRoles: []string{"AUTHOR"}},
			{ID: "publish", Name: "Publish", FromState: "review", ToState: "published", AllowedRoles: []string{"EDITOR"}},
			{ID: "return", Name: "Return", FromState: "review", ToState: "draft", AllowedRoles: []string{"EDITOR"}},
		},
	}
}

func hasIssue(issues []Issue, code, pathFragment string) bool {
	for _, i := range issues {
		if i.Code == code && strings.Contains(i.Path, pathFragment) {
			return true
		}
	}
	return false
}

func TestValidator_acceptsWellFormedDefinition(t *testing.T) {
	def := reviewDefinition()
	res := NewValidator().Validate(&def)

	if !res.Valid() {
		t.Fatalf("expected valid, got errors: %+v", res.Errors)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", res.Warnings)
	}
}

func TestValidator_requiresStatesAndName(t *testing.T) {
	def := model.WorkflowDefinition{DomainID: "acme"}
	res := NewValidator().Validate(&def)

	if res.Valid() {
		t.Fatal("expected errors")
	}
	if !hasIssue(res.Errors, CodeRequired, "name") {
		t.Error("missing name should be reported")
	}
	if !hasIssue(res.Errors, CodeRequired, "states") {
		t.Error("empty states should be reported")
	}
}

func TestValidator_initialStateCount(t *testing.T) {
	def := reviewDefinition()
	def.States[0].Initial = false
	res := NewValidator().Validate(&def)
	if !hasIssue(res.Errors, CodeInvalidCount, "states") {
		t.Errorf("no initial state should be an error, got %+v", res.Errors)
	}

	def = reviewDefinition()
	def.States[1].Initial = true
	res = NewValidator().Validate(&def)
	if !hasIssue(res.Errors, CodeInvalidCount, "states") {
		t.Errorf("two initial states should be an error, got %+v", res.Errors)
	}
}

func TestValidator_duplicateIdentifiers(t *testing.T) {
	def := reviewDefinition()
	def.States = append(def.States, model.State{ID: "draft", Name: "Dup"})
	def.Transitions = append(def.Transitions, model.Transition{
		ID: "submit", FromState: "review", ToState: "published",
	})

	res := NewValidator().Validate(&def)
	if !hasIssue(res.Errors, CodeDuplicate, "states[3].id") {
		t.Errorf("duplicate state id should be reported, got %+v", res.Errors)
	}
	if !hasIssue(res.Errors, CodeDuplicate, "transitions[3].id") {
		t.Errorf("duplicate transition id should be reported, got %+v", res.Errors)
	}
}

func TestValidator_danglingTransitionEndpoints(t *testing.T) {
	def := reviewDefinition()
	def.Transitions = append(def.Transitions,
		model.Transition{ID: "bad-from", FromState: "nowhere", ToState: "draft"},
		model.Transition{ID: "bad-to", FromState: "draft", ToState: "elsewhere"},
	)

	res := NewValidator().Validate(&def)
	if !hasIssue(res.Errors, CodeRefNotFound, "transitions[3].fromState") {
		t.Errorf("unknown fromState should be reported, got %+v", res.Errors)
	}
	if !hasIssue(res.Errors, CodeRefNotFound, "transitions[4].toState") {
		t.Errorf("unknown toState should be reported, got %+v", res.Errors)
	}
}

// All violations must surface in a single pass so the designer can repair the
// definition once instead of iterating error by error.
func TestValidator_reportsAllViolationsAtOnce(t *testing.T) {
	def := model.WorkflowDefinition{
		DomainID: "acme",
		States: []model.State{
			{ID: "a", Initial: true},
			{ID: "a"},
		},
		Transitions: []model.Transition{
			{ID: "t1", FromState: "a", ToState: "missing"},
		},
	}

	res := NewValidator().Validate(&def)
	if len(res.Errors) < 3 {
		t.Fatalf("expected at least 3 errors (name, duplicate, ref), got %d: %+v", len(res.Errors), res.Errors)
	}
}

func TestValidator_unreachableStateIsWarning(t *testing.T) {
	def := reviewDefinition()
	def.States = append(def.States, model.State{ID: "orphan", Name: "Orphan"})

	res := NewValidator().Validate(&def)
	if !res.Valid() {
		t.Fatalf("unreachable state must not block acceptance: %+v", res.Errors)
	}
	if !hasIssue(res.Warnings, CodeUnreachableState, "states[3]") {
		t.Errorf("expected unreachable warning, got %+v", res.Warnings)
	}
}

func TestValidator_reachabilityFollowsMultiHopPaths(t *testing.T) {
	def := reviewDefinition()
	// published is two hops from draft and must not be flagged.
	res := NewValidator().Validate(&def)
	if hasIssue(res.Warnings, CodeUnreachableState, "") {
		t.Errorf("no state should be unreachable, got %+v", res.Warnings)
	}
}

func TestValidator_finalStateOutgoingIsWarning(t *testing.T) {
	def := reviewDefinition()
	def.Transitions = append(def.Transitions, model.Transition{
		ID: "unpublish", FromState: "published", ToState: "draft",
	})

	res := NewValidator().Validate(&def)
	if !res.Valid() {
		t.Fatalf("final-state outgoing must not block acceptance: %+v", res.Errors)
	}
	if !hasIssue(res.Warnings, CodeFinalStateOutflow, "transitions[3]") {
		t.Errorf("expected final-state warning, got %+v", res.Warnings)
	}
}

func TestNormalize_trimsIdentifiers(t *testing.T) {
	def := model.WorkflowDefinition{
		ID: " wf-1 ",
		States: []model.State{
			{ID: " draft "},
		},
		Transitions: []model.Transition{
			{ID: " submit ", FromState: " draft ", ToState: "draft "},
		},
	}

	Normalize(&def)

	if def.ID != "wf-1" || def.States[0].ID != "draft" {
		t.Errorf("identifiers not trimmed: %+v", def)
	}
	tr := def.Transitions[0]
	if tr.ID != "submit" || tr.FromState != "draft" || tr.ToState != "draft" {
		t.Errorf("transition identifiers not trimmed: %+v", tr)
	}
}

func TestResult_FieldErrors(t *testing.T) {
	def := model.WorkflowDefinition{DomainID: "acme"}
	res := NewValidator().Validate(&def)

	details := res.FieldErrors()
	if len(details) != len(res.Errors) {
		t.Fatalf("FieldErrors() length = %d, want %d", len(details), len(res.Errors))
	}
	for i, d := range details {
		if d.Field != res.Errors[i].Path || d.Code != res.Errors[i].Code {
			t.Errorf("detail %d = %+v does not match issue %+v", i, d, res.Errors[i])
		}
	}
}
