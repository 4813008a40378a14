package definition

import (
	"context"

	"github.com/formgrid/flowd/model"
)

// Store persists workflow definitions. Every read and write is scoped to a
// tenant domain; a definition is never visible outside the domain it was
// created in.
type Store interface {
	// Create persists a new definition. Returns CONFLICT if the ID is taken.
	Create(ctx context.Context, def model.WorkflowDefinition) error

	// Update replaces a definition with optimistic locking on its version.
	// Returns CONFLICT if the stored version differs, DEFINITION_NOT_FOUND if
	// the definition does not exist in the domain.
	Update(ctx context.Context, def model.WorkflowDefinition) error

	// Get retrieves a definition by ID within a domain.
	Get(ctx context.Context, domainID, workflowID string) (model.WorkflowDefinition, error)

	// ListByDomain returns all definitions in a domain, newest first.
	ListByDomain(ctx context.Context, domainID string) ([]model.WorkflowDefinition, error)

	// ListByModel returns all active definitions bound to a data model within
	// a domain.
	ListByModel(ctx context.Context, domainID, modelID string) ([]model.WorkflowDefinition, error)

	// Deactivate soft-disables a definition so no new instances can be
	// created from it. Existing instances keep executing.
	Deactivate(ctx context.Context, domainID, workflowID string) error

	// Delete removes a definition permanently.
	Delete(ctx context.Context, domainID, workflowID string) error
}
