package workflow

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/model"
)

// Execute runs a single transition on an instance.
//
// Validation order: instance, pinned version, definition, transition
// existence, current-state match, authorization, required fields, then the
// compare-and-swap write. The first failing check determines the error code.
//
// Concurrency: when expectedVersion is non-nil the caller has pinned the
// version it read, and any interleaving write surfaces as
// CONCURRENCY_CONFLICT immediately. When it is nil, a lost write race is
// retried internally with a fresh read, up to the configured retry bound.
// Every check is re-run on retry, so a racing writer that changed the state
// surfaces as INVALID_STATE_TRANSITION, not as a conflict.
func (e *Engine) Execute(
	ctx context.Context,
	actor *model.Actor,
	instanceID, transitionID string,
	payload model.Document,
	comment string,
	expectedVersion *int,
) (model.WorkflowInstance, error) {
	ctx, span := observability.StartSpan(ctx, "engine.Execute",
		observability.AttrInstanceID.String(instanceID),
		observability.AttrTransitionID.String(transitionID),
		observability.AttrDomainID.String(actor.DomainID),
		observability.AttrSubjectID.String(actor.SubjectID),
	)
	start := time.Now()

	inst, err := e.executeWithRetry(ctx, actor, instanceID, transitionID, payload, comment, expectedVersion)

	e.recordExecute(inst.WorkflowID, err, time.Since(start))
	observability.EndSpanWithError(span, err)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	return inst, nil
}

func (e *Engine) executeWithRetry(
	ctx context.Context,
	actor *model.Actor,
	instanceID, transitionID string,
	payload model.Document,
	comment string,
	expectedVersion *int,
) (model.WorkflowInstance, error) {
	attempts := 0
	for {
		inst, err := e.executeOnce(ctx, actor, instanceID, transitionID, payload, comment, expectedVersion)
		if err == nil {
			return inst, nil
		}

		// Only an unpinned write race is retried; every other failure is
		// final, and a pinned conflict belongs to the caller.
		if expectedVersion != nil || errCode(err) != model.ErrConcurrencyConflict || attempts >= e.casRetries {
			return inst, err
		}

		attempts++
		if e.metrics != nil {
			e.metrics.RecordCASRetry(inst.WorkflowID)
		}
		observability.RequestLogger(ctx, e.logger).Debug("retrying transition after write race",
			zap.String("instance_id", instanceID),
			zap.String("transition_id", transitionID),
			zap.Int("attempt", attempts),
		)
	}
}

// executeOnce runs the full validation ladder against a fresh read and
// attempts the compare-and-swap write. The returned instance carries the
// workflow ID even on failure, for instrumentation.
func (e *Engine) executeOnce(
	ctx context.Context,
	actor *model.Actor,
	instanceID, transitionID string,
	payload model.Document,
	comment string,
	expectedVersion *int,
) (model.WorkflowInstance, error) {
	inst, err := e.instances.Get(ctx, actor.DomainID, instanceID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	// A pinned version is checked against the fresh read before any other
	// validation, so a stale pin always reads as a conflict even when the
	// racing writer moved the instance to another state.
	if expectedVersion != nil && *expectedVersion != inst.Version {
		return inst, model.NewConcurrencyConflictError(instanceID)
	}

	def, err := e.definitions.Get(ctx, actor.DomainID, inst.WorkflowID)
	if err != nil {
		return inst, err
	}

	tr := def.TransitionByID(transitionID)
	if tr == nil {
		return inst, model.NewTransitionNotFoundError(transitionID, def.ID)
	}

	if tr.FromState != inst.CurrentStateID {
		return inst, model.NewInvalidStateTransitionError(transitionID, inst.CurrentStateID)
	}

	admin, err := e.isAdmin(actor)
	if err != nil {
		return inst, err
	}
	if !allowedForActor(*tr, actor, admin) {
		return inst, model.NewUnauthorizedTransitionError(transitionID)
	}

	merged := inst.Data.Merge(payload)
	if missing := missingRequiredFields(*tr, merged); len(missing) > 0 {
		return inst, model.NewMissingRequiredFieldsError(missing)
	}

	now := time.Now().UTC()
	updated := inst
	updated.PreviousStateID = inst.CurrentStateID
	updated.CurrentStateID = tr.ToState
	updated.Data = merged
	updated.Version = inst.Version + 1
	updated.UpdatedAt = now
	updated.History = slices.Clone(inst.History)
	updated.AppendEvent(model.TransitionEvent{
		TransitionID: tr.ID,
		FromState:    tr.FromState,
		ToState:      tr.ToState,
		Actor:        actor.SubjectID,
		Comment:      comment,
		Timestamp:    now,
		Version:      updated.Version,
	})

	if err := e.instances.UpdateCAS(ctx, updated, inst.Version); err != nil {
		return inst, err
	}

	logger := observability.RequestLogger(ctx, e.logger)
	logger.Info("transition executed",
		zap.String("instance_id", inst.ID),
		zap.String("workflow_id", def.ID),
		zap.String("transition_id", tr.ID),
		zap.String("from_state", tr.FromState),
		zap.String("to_state", tr.ToState),
		zap.Int("version", updated.Version),
	)

	if updated.InFinalState(&def) {
		if e.metrics != nil {
			e.metrics.RecordInstanceCompletion(def.ID, updated.CurrentStateID)
		}
		logger.Info("workflow instance completed",
			zap.String("instance_id", inst.ID),
			zap.String("workflow_id", def.ID),
			zap.String("final_state", updated.CurrentStateID),
		)
	}

	return updated, nil
}

// missingRequiredFields returns every required field key that has no usable
// value in the merged data view, in declaration order.
func missingRequiredFields(t model.Transition, data model.Document) []string {
	var missing []string
	for _, key := range t.RequiredFields {
		if !data.HasValue(key) {
			missing = append(missing, key)
		}
	}
	return missing
}

func (e *Engine) recordExecute(workflowID string, err error, duration time.Duration) {
	if e.metrics == nil || workflowID == "" {
		return
	}
	result := "ok"
	if err != nil {
		result = errCode(err)
		if result == model.ErrConcurrencyConflict {
			e.metrics.RecordConcurrencyConflict(workflowID)
		}
	}
	e.metrics.RecordTransition(workflowID, result, duration)
}

// errCode extracts the envelope error code, or INTERNAL_ERROR for plain
// errors.
func errCode(err error) string {
	var envelope *model.ErrorEnvelope
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return model.ErrInternalError
}
