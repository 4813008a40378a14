package definition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/formgrid/flowd/model"
)

// MemoryStore is an in-memory Store for testing and the memory driver.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]model.WorkflowDefinition // key: definition ID
}

// NewMemoryStore creates a new in-memory definition store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]model.WorkflowDefinition)}
}

// Create persists a new definition.
func (s *MemoryStore) Create(_ context.Context, def model.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow definition %q already exists", def.ID),
		)
	}

	s.defs[def.ID] = def
	return nil
}

// Update replaces a definition with optimistic locking.
func (s *MemoryStore) Update(_ context.Context, def model.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[def.ID]
	if !exists || existing.DomainID != def.DomainID {
		return model.NewDefinitionNotFoundError(def.ID)
	}
	if existing.Version != def.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow definition %q version conflict (expected %d, got %d)", def.ID, def.Version, existing.Version),
		)
	}

	def.Version++
	def.UpdatedAt = time.Now().UTC()
	s.defs[def.ID] = def
	return nil
}

// Get retrieves a definition by ID within a domain.
func (s *MemoryStore) Get(_ context.Context, domainID, workflowID string) (model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[workflowID]
	if !exists || def.DomainID != domainID {
		return model.WorkflowDefinition{}, model.NewDefinitionNotFoundError(workflowID)
	}
	return def, nil
}

// ListByDomain returns all definitions in a domain, newest first.
func (s *MemoryStore) ListByDomain(_ context.Context, domainID string) ([]model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowDefinition
	for _, def := range s.defs {
		if def.DomainID == domainID {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListByModel returns all active definitions bound to a data model.
func (s *MemoryStore) ListByModel(_ context.Context, domainID, modelID string) ([]model.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowDefinition
	for _, def := range s.defs {
		if def.DomainID == domainID && def.ModelID == modelID && def.Active {
			result = append(result, def)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Deactivate soft-disables a definition.
func (s *MemoryStore) Deactivate(_ context.Context, domainID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, exists := s.defs[workflowID]
	if !exists || def.DomainID != domainID {
		return model.NewDefinitionNotFoundError(workflowID)
	}

	def.Active = false
	def.UpdatedAt = time.Now().UTC()
	s.defs[workflowID] = def
	return nil
}

// Delete removes a definition permanently.
func (s *MemoryStore) Delete(_ context.Context, domainID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, exists := s.defs[workflowID]
	if !exists || def.DomainID != domainID {
		return model.NewDefinitionNotFoundError(workflowID)
	}

	delete(s.defs, workflowID)
	return nil
}

// Len returns the total number of stored definitions. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.defs)
}
