package workflow

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/model"
)

// Task is a unit of pending work for an actor: a live instance together with
// the transitions the actor may execute on it right now.
type Task struct {
	Instance    model.WorkflowInstance `json:"instance"`
	Transitions []model.Transition     `json:"availableTransitions"`
}

type taskEntry struct {
	tasks   []Task
	expires time.Time
}

// taskCache memoizes MyTasks per actor for a short TTL. A stale entry is
// harmless: executing a transition from a stale task re-validates everything
// and fails the current-state check if the instance has moved on.
type taskCache struct {
	mu      sync.RWMutex
	entries map[string]taskEntry
}

func newTaskCache() *taskCache {
	return &taskCache{entries: make(map[string]taskEntry)}
}

func (c *taskCache) get(key string) ([]Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.tasks, true
}

func (c *taskCache) put(key string, tasks []Task, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = taskEntry{tasks: tasks, expires: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// MyTasks returns every instance in the actor's domain that is not in a final
// state and offers the actor at least one executable transition, newest
// first.
func (e *Engine) MyTasks(ctx context.Context, actor *model.Actor) ([]Task, error) {
	start := time.Now()
	key := actor.SubjectID + ":" + actor.DomainID

	if tasks, ok := e.tasks.get(key); ok {
		if e.metrics != nil {
			e.metrics.RecordTaskCacheHit()
		}
		return tasks, nil
	}
	if e.metrics != nil {
		e.metrics.RecordTaskCacheMiss()
	}

	admin, err := e.isAdmin(actor)
	if err != nil {
		return nil, err
	}

	instances, err := e.instances.ListByDomain(ctx, actor.DomainID, Filters{})
	if err != nil {
		return nil, err
	}

	// Definitions repeat across instances; fetch each once.
	defs := make(map[string]*model.WorkflowDefinition)
	tasks := []Task{}
	for i := range instances {
		inst := instances[i]

		def, ok := defs[inst.WorkflowID]
		if !ok {
			d, err := e.definitions.Get(ctx, actor.DomainID, inst.WorkflowID)
			if err != nil {
				// An instance may outlive a deleted definition; it cannot
				// offer work anymore.
				observability.RequestLogger(ctx, e.logger).Warn("instance references missing definition",
					zap.String("instance_id", inst.ID),
					zap.String("workflow_id", inst.WorkflowID),
				)
				defs[inst.WorkflowID] = nil
				continue
			}
			def = &d
			defs[inst.WorkflowID] = def
		}
		if def == nil {
			continue
		}

		available := e.transitionsFor(def, &inst, actor, admin)
		if len(available) == 0 {
			continue
		}
		tasks = append(tasks, Task{Instance: inst, Transitions: available})
	}

	e.tasks.put(key, tasks, e.taskTTL)
	if e.metrics != nil {
		e.metrics.RecordTaskQuery(time.Since(start))
	}
	return tasks, nil
}

// AddComment appends a free-form note to an instance. Comments share the
// instance's optimistic lock, so a concurrent transition triggers the same
// bounded retry as an unpinned execute.
func (e *Engine) AddComment(ctx context.Context, actor *model.Actor, instanceID, text string) (model.WorkflowInstance, error) {
	if text == "" {
		return model.WorkflowInstance{}, model.NewBadRequestError("comment text is required")
	}

	attempts := 0
	for {
		inst, err := e.instances.Get(ctx, actor.DomainID, instanceID)
		if err != nil {
			return model.WorkflowInstance{}, err
		}

		now := time.Now().UTC()
		updated := inst
		updated.Comments = append(slices.Clone(inst.Comments), model.Comment{
			ID:        uuid.New().String(),
			SubjectID: actor.SubjectID,
			Text:      text,
			CreatedAt: now,
		})
		updated.Version = inst.Version + 1
		updated.UpdatedAt = now

		err = e.instances.UpdateCAS(ctx, updated, inst.Version)
		if err == nil {
			return updated, nil
		}
		if errCode(err) != model.ErrConcurrencyConflict || attempts >= e.casRetries {
			return model.WorkflowInstance{}, err
		}
		attempts++
	}
}
