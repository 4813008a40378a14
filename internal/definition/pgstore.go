package definition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formgrid/flowd/model"
)

// PgStore is a PostgreSQL-backed definition Store using pgx/v5. The state and
// transition graphs are stored as JSONB columns; the scalar columns exist for
// filtering and the optimistic lock.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL definition store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create inserts a new definition.
func (s *PgStore) Create(ctx context.Context, def model.WorkflowDefinition) error {
	statesJSON, transitionsJSON, err := marshalGraph(def)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_definitions (
			id, domain_id, application_id, model_id, name, description, icon,
			states, transitions, created_by, created_at, updated_at, version, active
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12, $13, $14
		)`,
		def.ID, def.DomainID, def.ApplicationID, def.ModelID, def.Name, def.Description, def.Icon,
		statesJSON, transitionsJSON, def.CreatedBy, def.CreatedAt, def.UpdatedAt, def.Version, def.Active,
	)
	if err != nil {
		return fmt.Errorf("insert workflow definition: %w", err)
	}
	return nil
}

// Update replaces a definition with optimistic locking on its version.
func (s *PgStore) Update(ctx context.Context, def model.WorkflowDefinition) error {
	statesJSON, transitionsJSON, err := marshalGraph(def)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_definitions SET
			name = $1,
			description = $2,
			icon = $3,
			model_id = $4,
			states = $5,
			transitions = $6,
			version = $7,
			updated_at = $8,
			active = $9
		WHERE id = $10 AND domain_id = $11 AND version = $12`,
		def.Name, def.Description, def.Icon, def.ModelID,
		statesJSON, transitionsJSON, def.Version+1,
		time.Now().UTC(), def.Active,
		def.ID, def.DomainID, def.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the definition is gone or the version moved on. Distinguish
		// so callers get the right error code.
		if _, getErr := s.Get(ctx, def.DomainID, def.ID); getErr != nil {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("workflow definition %q version conflict (expected %d)", def.ID, def.Version),
		)
	}
	return nil
}

// Get retrieves a definition by ID within a domain.
func (s *PgStore) Get(ctx context.Context, domainID, workflowID string) (model.WorkflowDefinition, error) {
	row := s.pool.QueryRow(ctx, selectColumns+`
		FROM workflow_definitions
		WHERE id = $1 AND domain_id = $2`,
		workflowID, domainID,
	)
	def, err := scanDefinition(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowDefinition{}, model.NewDefinitionNotFoundError(workflowID)
	}
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("query workflow definition: %w", err)
	}
	return def, nil
}

// ListByDomain returns all definitions in a domain, newest first.
func (s *PgStore) ListByDomain(ctx context.Context, domainID string) ([]model.WorkflowDefinition, error) {
	return s.queryDefinitions(ctx, selectColumns+`
		FROM workflow_definitions
		WHERE domain_id = $1
		ORDER BY created_at DESC`,
		domainID,
	)
}

// ListByModel returns all active definitions bound to a data model.
func (s *PgStore) ListByModel(ctx context.Context, domainID, modelID string) ([]model.WorkflowDefinition, error) {
	return s.queryDefinitions(ctx, selectColumns+`
		FROM workflow_definitions
		WHERE domain_id = $1 AND model_id = $2 AND active
		ORDER BY created_at DESC`,
		domainID, modelID,
	)
}

// Deactivate soft-disables a definition.
func (s *PgStore) Deactivate(ctx context.Context, domainID, workflowID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_definitions SET active = FALSE, updated_at = $1
		WHERE id = $2 AND domain_id = $3`,
		time.Now().UTC(), workflowID, domainID,
	)
	if err != nil {
		return fmt.Errorf("deactivate workflow definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDefinitionNotFoundError(workflowID)
	}
	return nil
}

// Delete removes a definition permanently.
func (s *PgStore) Delete(ctx context.Context, domainID, workflowID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM workflow_definitions
		WHERE id = $1 AND domain_id = $2`,
		workflowID, domainID,
	)
	if err != nil {
		return fmt.Errorf("delete workflow definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewDefinitionNotFoundError(workflowID)
	}
	return nil
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectColumns = `
	SELECT id, domain_id, application_id, model_id, name, description, icon,
	       states, transitions, created_by, created_at, updated_at, version, active`

func (s *PgStore) queryDefinitions(ctx context.Context, query string, args ...any) ([]model.WorkflowDefinition, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow definitions: %w", err)
	}
	defer rows.Close()

	var defs []model.WorkflowDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow definition: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func scanDefinition(row pgx.Row) (model.WorkflowDefinition, error) {
	var def model.WorkflowDefinition
	var statesJSON, transitionsJSON []byte

	err := row.Scan(
		&def.ID, &def.DomainID, &def.ApplicationID, &def.ModelID, &def.Name, &def.Description, &def.Icon,
		&statesJSON, &transitionsJSON, &def.CreatedBy, &def.CreatedAt, &def.UpdatedAt, &def.Version, &def.Active,
	)
	if err != nil {
		return model.WorkflowDefinition{}, err
	}

	if statesJSON != nil {
		if err := json.Unmarshal(statesJSON, &def.States); err != nil {
			return model.WorkflowDefinition{}, fmt.Errorf("unmarshal states: %w", err)
		}
	}
	if transitionsJSON != nil {
		if err := json.Unmarshal(transitionsJSON, &def.Transitions); err != nil {
			return model.WorkflowDefinition{}, fmt.Errorf("unmarshal transitions: %w", err)
		}
	}
	return def, nil
}

func marshalGraph(def model.WorkflowDefinition) (states, transitions []byte, err error) {
	states, err = json.Marshal(def.States)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal states: %w", err)
	}
	transitions, err = json.Marshal(def.Transitions)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal transitions: %w", err)
	}
	return states, transitions, nil
}
