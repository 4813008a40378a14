package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/definition"
	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/model"
)

const (
	defaultCASRetries   = 3
	defaultTaskCacheTTL = 10 * time.Second
)

// Engine manages the lifecycle of workflow instances. All operations take an
// explicit actor; nothing is read from ambient security state.
type Engine struct {
	definitions definition.Store
	instances   Store
	access      model.AccessResolver
	logger      *zap.Logger
	metrics     *observability.Metrics
	casRetries  int
	taskTTL     time.Duration
	tasks       *taskCache
}

// Options tune engine behavior beyond its required collaborators.
type Options struct {
	// CASRetries bounds internal re-execution after a lost write race when
	// the caller did not pin an expected version.
	CASRetries int

	// TaskCacheTTL bounds staleness of MyTasks results. Zero uses the
	// default. Stale entries are safe: acting on one fails the state check
	// on execute.
	TaskCacheTTL time.Duration

	// Metrics receives engine instrumentation when non-nil.
	Metrics *observability.Metrics
}

// NewEngine creates a new workflow engine.
func NewEngine(
	definitions definition.Store,
	instances Store,
	access model.AccessResolver,
	logger *zap.Logger,
	opts Options,
) *Engine {
	retries := opts.CASRetries
	if retries <= 0 {
		retries = defaultCASRetries
	}
	ttl := opts.TaskCacheTTL
	if ttl <= 0 {
		ttl = defaultTaskCacheTTL
	}
	return &Engine{
		definitions: definitions,
		instances:   instances,
		access:      access,
		logger:      logger,
		metrics:     opts.Metrics,
		casRetries:  retries,
		taskTTL:     ttl,
		tasks:       newTaskCache(),
	}
}

// CreateInstance starts a new instance of a workflow definition for a
// business record. The instance enters the definition's initial state with
// version 0 and an empty history.
func (e *Engine) CreateInstance(
	ctx context.Context,
	actor *model.Actor,
	workflowID, recordID string,
	initialData model.Document,
) (model.WorkflowInstance, error) {
	ctx, span := observability.StartSpan(ctx, "engine.CreateInstance",
		observability.AttrWorkflowID.String(workflowID),
		observability.AttrDomainID.String(actor.DomainID),
		observability.AttrSubjectID.String(actor.SubjectID),
	)
	var err error
	defer func() { observability.EndSpanWithError(span, err) }()

	var def model.WorkflowDefinition
	def, err = e.definitions.Get(ctx, actor.DomainID, workflowID)
	if err != nil {
		return model.WorkflowInstance{}, err
	}
	if !def.Active {
		err = model.NewBadRequestError(
			fmt.Sprintf("workflow definition %q is deactivated", workflowID),
		)
		return model.WorkflowInstance{}, err
	}

	initial := def.InitialState()
	if initial == nil {
		// Stored definitions are validated; a missing initial state means the
		// store was tampered with out of band.
		e.logger.Error("stored definition has no initial state",
			zap.String("workflow_id", workflowID),
			zap.String("domain_id", actor.DomainID),
		)
		err = model.NewInternalError()
		return model.WorkflowInstance{}, err
	}

	now := time.Now().UTC()
	inst := model.WorkflowInstance{
		ID:             uuid.New().String(),
		WorkflowID:     def.ID,
		DomainID:       actor.DomainID,
		ModelID:        def.ModelID,
		RecordID:       recordID,
		CurrentStateID: initial.ID,
		Data:           model.Document{}.Merge(initialData),
		Version:        0,
		History:        []model.TransitionEvent{},
		CreatedBy:      actor.SubjectID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err = e.instances.Create(ctx, inst); err != nil {
		return model.WorkflowInstance{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordInstanceCreation(def.ID)
	}
	observability.RequestLogger(ctx, e.logger).Info("workflow instance created",
		zap.String("instance_id", inst.ID),
		zap.String("workflow_id", def.ID),
		zap.String("record_id", recordID),
		zap.String("state", initial.ID),
	)

	return inst, nil
}

// GetInstance retrieves an instance within the actor's domain.
func (e *Engine) GetInstance(ctx context.Context, actor *model.Actor, instanceID string) (model.WorkflowInstance, error) {
	return e.instances.Get(ctx, actor.DomainID, instanceID)
}

// ListInstances returns instances in the actor's domain matching the filters.
func (e *Engine) ListInstances(ctx context.Context, actor *model.Actor, filters Filters) ([]model.WorkflowInstance, error) {
	return e.instances.ListByDomain(ctx, actor.DomainID, filters)
}

// AvailableTransitions returns the transitions the actor may execute from the
// instance's current state, in definition order. Final states have none.
func (e *Engine) AvailableTransitions(ctx context.Context, actor *model.Actor, instanceID string) ([]model.Transition, error) {
	inst, err := e.instances.Get(ctx, actor.DomainID, instanceID)
	if err != nil {
		return nil, err
	}
	def, err := e.definitions.Get(ctx, actor.DomainID, inst.WorkflowID)
	if err != nil {
		return nil, err
	}

	admin, err := e.isAdmin(actor)
	if err != nil {
		return nil, err
	}

	return e.transitionsFor(&def, &inst, actor, admin), nil
}

// transitionsFor filters the outgoing transitions of the instance's current
// state down to those the actor may execute.
func (e *Engine) transitionsFor(def *model.WorkflowDefinition, inst *model.WorkflowInstance, actor *model.Actor, admin bool) []model.Transition {
	if inst.InFinalState(def) {
		return []model.Transition{}
	}

	available := []model.Transition{}
	for _, t := range def.TransitionsFrom(inst.CurrentStateID) {
		if allowedForActor(t, actor, admin) {
			available = append(available, t)
		}
	}
	return available
}

// allowedForActor reports whether the actor may execute the transition. An
// empty role set reserves the transition for domain administrators.
func allowedForActor(t model.Transition, actor *model.Actor, admin bool) bool {
	if admin {
		return true
	}
	if len(t.AllowedRoles) == 0 {
		return false
	}
	return actor.HasAnyRole(t.AllowedRoles)
}

// isAdmin reports whether the actor holds the domain administrator bypass.
func (e *Engine) isAdmin(actor *model.Actor) (bool, error) {
	caps, err := e.access.Resolve(actor)
	if err != nil {
		return false, fmt.Errorf("resolve capabilities: %w", err)
	}
	return caps.Has(model.CapWorkflowAdmin), nil
}
