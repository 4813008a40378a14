// Package workflow executes workflow instances against their definitions:
// creation, transition execution with optimistic concurrency, and task
// queries.
package workflow

import (
	"context"

	"github.com/formgrid/flowd/model"
)

// Store persists workflow instances. Reads and writes are scoped to a tenant
// domain. The stored version is the optimistic concurrency token: UpdateCAS
// succeeds only if no other writer has moved the instance since it was read.
type Store interface {
	// Create persists a new instance. Returns CONFLICT if the ID is taken.
	Create(ctx context.Context, inst model.WorkflowInstance) error

	// Get retrieves an instance by ID within a domain. Returns
	// INSTANCE_NOT_FOUND if it does not exist or belongs to another domain.
	Get(ctx context.Context, domainID, instanceID string) (model.WorkflowInstance, error)

	// UpdateCAS persists an updated instance if and only if the stored
	// version still equals expectedVersion. The given instance carries the
	// new version. Returns CONCURRENCY_CONFLICT when the compare fails.
	UpdateCAS(ctx context.Context, inst model.WorkflowInstance, expectedVersion int) error

	// ListByDomain returns instances in a domain matching the filters,
	// newest first.
	ListByDomain(ctx context.Context, domainID string, filters Filters) ([]model.WorkflowInstance, error)
}

// Filters are optional filters for listing workflow instances.
type Filters struct {
	WorkflowID string
	StateID    string
	RecordID   string
	Limit      int
	Offset     int
}
