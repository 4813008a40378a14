package model

import "time"

// WorkflowDefinition is the static graph of states and transitions governing
// a class of business records within a tenant. Once validated and stored it is
// treated as effectively immutable for the lifetime of instances referencing
// it: state identifiers are stable across edits, and administrative updates
// bump only the definition version.
type WorkflowDefinition struct {
	ID            string       `json:"id"`
	DomainID      string       `json:"domainId"`
	ApplicationID string       `json:"applicationId,omitempty"`
	ModelID       string       `json:"modelId"`
	Name          string       `json:"name"`
	Description   string       `json:"description,omitempty"`
	Icon          string       `json:"icon,omitempty"`
	States        []State      `json:"states"`
	Transitions   []Transition `json:"transitions"`
	CreatedBy     string       `json:"createdBy,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
	Version       int          `json:"version"`
	Active        bool         `json:"active"`
}

// State is a node in the workflow graph. Display hints (color, canvas
// position) are irrelevant to execution and preserved only for round-trip
// fidelity with the visual designer.
type State struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Initial     bool    `json:"initial"`
	Final       bool    `json:"final"`
	Color       string  `json:"color,omitempty"`
	PositionX   float64 `json:"positionX,omitempty"`
	PositionY   float64 `json:"positionY,omitempty"`
}

// Transition is a directed, role-gated edge between two states. Self-loops
// (FromState == ToState) are legal, e.g. "save draft". An empty AllowedRoles
// set means no one but a tenant owner/administrator may execute it.
type Transition struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	FromState      string   `json:"fromState"`
	ToState        string   `json:"toState"`
	ActionType     string   `json:"actionType,omitempty"`
	Icon           string   `json:"icon,omitempty"`
	AllowedRoles   []string `json:"allowedRoles,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty"`
}

// InitialState returns the definition's initial state, or nil if none is
// marked. Validated definitions have exactly one.
func (d *WorkflowDefinition) InitialState() *State {
	for i := range d.States {
		if d.States[i].Initial {
			return &d.States[i]
		}
	}
	return nil
}

// StateByID returns the state with the given identifier, or nil.
func (d *WorkflowDefinition) StateByID(stateID string) *State {
	for i := range d.States {
		if d.States[i].ID == stateID {
			return &d.States[i]
		}
	}
	return nil
}

// TransitionByID returns the transition with the given identifier, or nil.
func (d *WorkflowDefinition) TransitionByID(transitionID string) *Transition {
	for i := range d.Transitions {
		if d.Transitions[i].ID == transitionID {
			return &d.Transitions[i]
		}
	}
	return nil
}

// TransitionsFrom returns all transitions originating from the given state,
// preserving definition order.
func (d *WorkflowDefinition) TransitionsFrom(stateID string) []Transition {
	var out []Transition
	for _, t := range d.Transitions {
		if t.FromState == stateID {
			out = append(out, t)
		}
	}
	return out
}
