package model

import "time"

// WorkflowInstance is one execution of a WorkflowDefinition bound to a
// specific business record. It owns its Data, History, and Comments
// exclusively and holds a non-owning reference (by identifier) to its
// definition. Instances are mutated only by the engine; the stored version is
// the optimistic concurrency token for every write.
type WorkflowInstance struct {
	ID              string            `json:"id"`
	WorkflowID      string            `json:"workflowId"`
	DomainID        string            `json:"domainId"`
	ModelID         string            `json:"modelId,omitempty"`
	RecordID        string            `json:"recordId"`
	CurrentStateID  string            `json:"currentStateId"`
	PreviousStateID string            `json:"previousStateId,omitempty"`
	Data            Document          `json:"data"`
	Version         int               `json:"version"`
	History         []TransitionEvent `json:"history"`
	Comments        []Comment         `json:"comments,omitempty"`
	CreatedBy       string            `json:"createdBy,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// TransitionEvent records one executed transition in an instance's audit
// trail. Version is the instance version after the event was applied. History
// is immutable once appended: entries are never edited or reordered.
type TransitionEvent struct {
	TransitionID string    `json:"transitionId"`
	FromState    string    `json:"fromState"`
	ToState      string    `json:"toState"`
	Actor        string    `json:"actor"`
	Comment      string    `json:"comment,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Version      int       `json:"version"`
}

// Comment is a free-form note attached to an instance outside the transition
// audit trail.
type Comment struct {
	ID        string    `json:"id"`
	SubjectID string    `json:"subjectId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppendEvent adds a transition event to the instance history. It is the only
// supported way to grow the history; there is no operation to edit or remove
// past entries.
func (i *WorkflowInstance) AppendEvent(evt TransitionEvent) {
	i.History = append(i.History, evt)
}

// InFinalState reports whether the instance's current state is marked final
// in the given definition.
func (i *WorkflowInstance) InFinalState(def *WorkflowDefinition) bool {
	s := def.StateByID(i.CurrentStateID)
	return s != nil && s.Final
}
