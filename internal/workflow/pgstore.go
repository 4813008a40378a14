package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/formgrid/flowd/model"
)

// PgStore is a PostgreSQL-backed instance Store using pgx/v5. Instance data,
// history, and comments live in JSONB columns; the compare-and-swap runs on
// the scalar version column.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL instance store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create inserts a new instance.
func (s *PgStore) Create(ctx context.Context, inst model.WorkflowInstance) error {
	dataJSON, historyJSON, commentsJSON, err := marshalDocuments(inst)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_instances (
			id, workflow_id, domain_id, model_id, record_id,
			current_state_id, previous_state_id, data, version,
			history, comments, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14
		)`,
		inst.ID, inst.WorkflowID, inst.DomainID, inst.ModelID, inst.RecordID,
		inst.CurrentStateID, inst.PreviousStateID, dataJSON, inst.Version,
		historyJSON, commentsJSON, inst.CreatedBy, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

// Get retrieves an instance by ID, scoped to a domain.
func (s *PgStore) Get(ctx context.Context, domainID, instanceID string) (model.WorkflowInstance, error) {
	row := s.pool.QueryRow(ctx, selectInstanceColumns+`
		FROM workflow_instances
		WHERE id = $1 AND domain_id = $2`,
		instanceID, domainID,
	)
	inst, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowInstance{}, model.NewInstanceNotFoundError(instanceID)
	}
	if err != nil {
		return model.WorkflowInstance{}, fmt.Errorf("query workflow instance: %w", err)
	}
	return inst, nil
}

// UpdateCAS persists an updated instance with optimistic locking. The write
// succeeds only if the stored version still equals expectedVersion.
func (s *PgStore) UpdateCAS(ctx context.Context, inst model.WorkflowInstance, expectedVersion int) error {
	dataJSON, historyJSON, commentsJSON, err := marshalDocuments(inst)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_instances SET
			current_state_id = $1,
			previous_state_id = $2,
			data = $3,
			version = $4,
			history = $5,
			comments = $6,
			updated_at = $7
		WHERE id = $8 AND domain_id = $9 AND version = $10`,
		inst.CurrentStateID, inst.PreviousStateID, dataJSON, inst.Version,
		historyJSON, commentsJSON, inst.UpdatedAt,
		inst.ID, inst.DomainID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update workflow instance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the instance is gone or another writer won the race.
		if _, getErr := s.Get(ctx, inst.DomainID, inst.ID); getErr != nil {
			return getErr
		}
		return model.NewConcurrencyConflictError(inst.ID)
	}
	return nil
}

// ListByDomain returns instances in a domain matching the filters.
func (s *PgStore) ListByDomain(ctx context.Context, domainID string, filters Filters) ([]model.WorkflowInstance, error) {
	query := selectInstanceColumns + `
		FROM workflow_instances
		WHERE domain_id = $1`
	args := []any{domainID}
	argIdx := 2

	if filters.WorkflowID != "" {
		query += fmt.Sprintf(" AND workflow_id = $%d", argIdx)
		args = append(args, filters.WorkflowID)
		argIdx++
	}
	if filters.StateID != "" {
		query += fmt.Sprintf(" AND current_state_id = $%d", argIdx)
		args = append(args, filters.StateID)
		argIdx++
	}
	if filters.RecordID != "" {
		query += fmt.Sprintf(" AND record_id = $%d", argIdx)
		args = append(args, filters.RecordID)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filters.Limit)
		argIdx++
	}
	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, filters.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflow instances: %w", err)
	}
	defer rows.Close()

	var instances []model.WorkflowInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// HealthCheck verifies database connectivity.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const selectInstanceColumns = `
	SELECT id, workflow_id, domain_id, model_id, record_id,
	       current_state_id, previous_state_id, data, version,
	       history, comments, created_by, created_at, updated_at`

func scanInstance(row pgx.Row) (model.WorkflowInstance, error) {
	var inst model.WorkflowInstance
	var dataJSON, historyJSON, commentsJSON []byte

	err := row.Scan(
		&inst.ID, &inst.WorkflowID, &inst.DomainID, &inst.ModelID, &inst.RecordID,
		&inst.CurrentStateID, &inst.PreviousStateID, &dataJSON, &inst.Version,
		&historyJSON, &commentsJSON, &inst.CreatedBy, &inst.CreatedAt, &inst.UpdatedAt,
	)
	if err != nil {
		return model.WorkflowInstance{}, err
	}

	if dataJSON != nil {
		if err := json.Unmarshal(dataJSON, &inst.Data); err != nil {
			return model.WorkflowInstance{}, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	if historyJSON != nil {
		if err := json.Unmarshal(historyJSON, &inst.History); err != nil {
			return model.WorkflowInstance{}, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if commentsJSON != nil {
		if err := json.Unmarshal(commentsJSON, &inst.Comments); err != nil {
			return model.WorkflowInstance{}, fmt.Errorf("unmarshal comments: %w", err)
		}
	}
	return inst, nil
}

func marshalDocuments(inst model.WorkflowInstance) (data, history, comments []byte, err error) {
	data, err = json.Marshal(inst.Data)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal data: %w", err)
	}
	history, err = json.Marshal(inst.History)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal history: %w", err)
	}
	comments, err = json.Marshal(inst.Comments)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal comments: %w", err)
	}
	return data, history, comments, nil
}
