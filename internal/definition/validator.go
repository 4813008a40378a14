// Package definition validates, stores, and seeds workflow definitions. A
// definition is the static state/transition graph instances execute against;
// everything here treats it as data and leaves execution to internal/workflow.
package definition

import (
	"fmt"
	"strings"

	"github.com/formgrid/flowd/model"
)

// Issue describes a single validation finding in a definition.
type Issue struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Issue codes.
const (
	CodeRequired          = "REQUIRED"
	CodeDuplicate         = "DUPLICATE"
	CodeInvalidCount      = "INVALID_COUNT"
	CodeRefNotFound       = "REF_NOT_FOUND"
	CodeUnreachableState  = "UNREACHABLE_STATE"
	CodeFinalStateOutflow = "FINAL_STATE_OUTGOING"
)

// Result separates blocking errors from advisory warnings. A definition with
// warnings but no errors is accepted and stored.
type Result struct {
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// Valid reports whether the definition can be accepted.
func (r Result) Valid() bool {
	return len(r.Errors) == 0
}

// FieldErrors converts the blocking errors into the envelope detail format.
func (r Result) FieldErrors() []model.FieldError {
	details := make([]model.FieldError, 0, len(r.Errors))
	for _, issue := range r.Errors {
		details = append(details, model.FieldError{
			Field:   issue.Path,
			Code:    issue.Code,
			Message: issue.Message,
		})
	}
	return details
}

// Validator checks workflow definitions structurally and referentially.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate runs every check and reports all findings at once rather than
// stopping at the first, so a designer can fix a definition in one pass.
func (v *Validator) Validate(def *model.WorkflowDefinition) Result {
	var res Result

	if def.Name == "" {
		res.Errors = append(res.Errors, Issue{Path: "name", Code: CodeRequired, Message: "name is required"})
	}
	if def.DomainID == "" {
		res.Errors = append(res.Errors, Issue{Path: "domainId", Code: CodeRequired, Message: "domainId is required"})
	}
	if len(def.States) == 0 {
		res.Errors = append(res.Errors, Issue{Path: "states", Code: CodeRequired, Message: "at least one state is required"})
	}

	stateIDs := make(map[string]bool, len(def.States))
	initialCount := 0
	for i, s := range def.States {
		sp := fmt.Sprintf("states[%d]", i)
		if s.ID == "" {
			res.Errors = append(res.Errors, Issue{Path: sp + ".id", Code: CodeRequired, Message: "state id is required"})
			continue
		}
		if stateIDs[s.ID] {
			res.Errors = append(res.Errors, Issue{
				Path:    sp + ".id",
				Code:    CodeDuplicate,
				Message: fmt.Sprintf("duplicate state id %q", s.ID),
			})
		}
		stateIDs[s.ID] = true
		if s.Initial {
			initialCount++
		}
	}

	if len(def.States) > 0 {
		switch {
		case initialCount == 0:
			res.Errors = append(res.Errors, Issue{
				Path:    "states",
				Code:    CodeInvalidCount,
				Message: "exactly one state must be marked initial, found none",
			})
		case initialCount > 1:
			res.Errors = append(res.Errors, Issue{
				Path:    "states",
				Code:    CodeInvalidCount,
				Message: fmt.Sprintf("exactly one state must be marked initial, found %d", initialCount),
			})
		}
	}

	transitionIDs := make(map[string]bool, len(def.Transitions))
	for i, t := range def.Transitions {
		tp := fmt.Sprintf("transitions[%d]", i)
		if t.ID == "" {
			res.Errors = append(res.Errors, Issue{Path: tp + ".id", Code: CodeRequired, Message: "transition id is required"})
		} else {
			if transitionIDs[t.ID] {
				res.Errors = append(res.Errors, Issue{
					Path:    tp + ".id",
					Code:    CodeDuplicate,
					Message: fmt.Sprintf("duplicate transition id %q", t.ID),
				})
			}
			transitionIDs[t.ID] = true
		}

		if t.FromState == "" {
			res.Errors = append(res.Errors, Issue{Path: tp + ".fromState", Code: CodeRequired, Message: "fromState is required"})
		} else if !stateIDs[t.FromState] {
			res.Errors = append(res.Errors, Issue{
				Path:    tp + ".fromState",
				Code:    CodeRefNotFound,
				Message: fmt.Sprintf("state %q not found", t.FromState),
			})
		}
		if t.ToState == "" {
			res.Errors = append(res.Errors, Issue{Path: tp + ".toState", Code: CodeRequired, Message: "toState is required"})
		} else if !stateIDs[t.ToState] {
			res.Errors = append(res.Errors, Issue{
				Path:    tp + ".toState",
				Code:    CodeRefNotFound,
				Message: fmt.Sprintf("state %q not found", t.ToState),
			})
		}
	}

	// Warnings are advisory only. An unreachable state or a transition out of
	// a final state is usually a half-finished design, not a broken one.
	res.Warnings = append(res.Warnings, v.unreachableStates(def, stateIDs)...)
	res.Warnings = append(res.Warnings, v.finalStateOutflows(def)...)

	return res
}

// unreachableStates walks the graph from the initial state and flags every
// state no transition path can reach.
func (v *Validator) unreachableStates(def *model.WorkflowDefinition, stateIDs map[string]bool) []Issue {
	initial := def.InitialState()
	if initial == nil {
		return nil
	}

	reachable := map[string]bool{initial.ID: true}
	queue := []string{initial.ID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range def.Transitions {
			if t.FromState != current || reachable[t.ToState] || !stateIDs[t.ToState] {
				continue
			}
			reachable[t.ToState] = true
			queue = append(queue, t.ToState)
		}
	}

	var issues []Issue
	for i, s := range def.States {
		if s.ID == "" || reachable[s.ID] {
			continue
		}
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("states[%d]", i),
			Code:    CodeUnreachableState,
			Message: fmt.Sprintf("state %q is not reachable from the initial state", s.ID),
		})
	}
	return issues
}

func (v *Validator) finalStateOutflows(def *model.WorkflowDefinition) []Issue {
	finals := make(map[string]bool)
	for _, s := range def.States {
		if s.Final {
			finals[s.ID] = true
		}
	}

	var issues []Issue
	for i, t := range def.Transitions {
		if !finals[t.FromState] {
			continue
		}
		issues = append(issues, Issue{
			Path:    fmt.Sprintf("transitions[%d]", i),
			Code:    CodeFinalStateOutflow,
			Message: fmt.Sprintf("transition %q leaves final state %q and will never be executable", t.ID, t.FromState),
		})
	}
	return issues
}

// Normalize trims surrounding whitespace from every identifier so that lookups
// and uniqueness checks operate on canonical values. Order is preserved.
func Normalize(def *model.WorkflowDefinition) {
	def.ID = strings.TrimSpace(def.ID)
	def.ModelID = strings.TrimSpace(def.ModelID)
	for i := range def.States {
		def.States[i].ID = strings.TrimSpace(def.States[i].ID)
	}
	for i := range def.Transitions {
		t := &def.Transitions[i]
		t.ID = strings.TrimSpace(t.ID)
		t.FromState = strings.TrimSpace(t.FromState)
		t.ToState = strings.TrimSpace(t.ToState)
	}
}
