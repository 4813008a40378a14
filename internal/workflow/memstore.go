package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/formgrid/flowd/model"
)

// MemoryStore is an in-memory instance Store for testing and the memory
// driver.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]model.WorkflowInstance // key: instance ID
}

// NewMemoryStore creates a new in-memory instance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{instances: make(map[string]model.WorkflowInstance)}
}

// Create persists a new instance.
func (s *MemoryStore) Create(_ context.Context, inst model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[inst.ID]; exists {
		return model.NewConflictError(
			fmt.Sprintf("workflow instance %q already exists", inst.ID),
		)
	}

	s.instances[inst.ID] = inst
	return nil
}

// Get retrieves an instance by ID, scoped to a domain.
func (s *MemoryStore) Get(_ context.Context, domainID, instanceID string) (model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, exists := s.instances[instanceID]
	if !exists || inst.DomainID != domainID {
		return model.WorkflowInstance{}, model.NewInstanceNotFoundError(instanceID)
	}
	return inst, nil
}

// UpdateCAS persists an updated instance with optimistic locking.
func (s *MemoryStore) UpdateCAS(_ context.Context, inst model.WorkflowInstance, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.instances[inst.ID]
	if !exists || existing.DomainID != inst.DomainID {
		return model.NewInstanceNotFoundError(inst.ID)
	}
	if existing.Version != expectedVersion {
		return model.NewConcurrencyConflictError(inst.ID)
	}

	s.instances[inst.ID] = inst
	return nil
}

// ListByDomain returns instances in a domain matching the filters.
func (s *MemoryStore) ListByDomain(_ context.Context, domainID string, filters Filters) ([]model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.WorkflowInstance
	for _, inst := range s.instances {
		if inst.DomainID != domainID {
			continue
		}
		if filters.WorkflowID != "" && inst.WorkflowID != filters.WorkflowID {
			continue
		}
		if filters.StateID != "" && inst.CurrentStateID != filters.StateID {
			continue
		}
		if filters.RecordID != "" && inst.RecordID != filters.RecordID {
			continue
		}
		result = append(result, inst)
	}

	// Sort by created_at descending.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	// Apply offset and limit.
	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return []model.WorkflowInstance{}, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}

	return result, nil
}

// Len returns the total number of instances. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}
