package definition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/formgrid/flowd/model"
)

// Loader scans directories for YAML workflow definition files and seeds them
// into a Store at boot. Seeding never overwrites a stored definition: a file
// whose ID already exists is skipped, so administrative edits survive
// restarts.
type Loader struct {
	validator *Validator
	logger    *zap.Logger
}

// NewLoader creates a new definition Loader.
func NewLoader(validator *Validator, logger *zap.Logger) *Loader {
	return &Loader{validator: validator, logger: logger}
}

// seedFile is the YAML shape of a definition file. It mirrors the wire model
// but with YAML field names, and converts on load.
type seedFile struct {
	ID            string           `yaml:"id"`
	DomainID      string           `yaml:"domainId"`
	ApplicationID string           `yaml:"applicationId"`
	ModelID       string           `yaml:"modelId"`
	Name          string           `yaml:"name"`
	Description   string           `yaml:"description"`
	Icon          string           `yaml:"icon"`
	States        []seedState      `yaml:"states"`
	Transitions   []seedTransition `yaml:"transitions"`
}

type seedState struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Initial     bool    `yaml:"initial"`
	Final       bool    `yaml:"final"`
	Color       string  `yaml:"color"`
	PositionX   float64 `yaml:"positionX"`
	PositionY   float64 `yaml:"positionY"`
}

type seedTransition struct {
	ID             string   `yaml:"id"`
	Name           string   `yaml:"name"`
	FromState      string   `yaml:"fromState"`
	ToState        string   `yaml:"toState"`
	ActionType     string   `yaml:"actionType"`
	Icon           string   `yaml:"icon"`
	AllowedRoles   []string `yaml:"allowedRoles"`
	RequiredFields []string `yaml:"requiredFields"`
}

// LoadAll recursively scans directories for *.yaml and *.yml files and parses
// each into a workflow definition.
func (l *Loader) LoadAll(directories []string) ([]model.WorkflowDefinition, error) {
	var defs []model.WorkflowDefinition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads and parses a single YAML definition file.
func (l *Loader) LoadFile(path string) (model.WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("read file: %w", err)
	}

	var sf seedFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return model.WorkflowDefinition{}, fmt.Errorf("parse yaml: %w", err)
	}

	def := sf.toDefinition()
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	Normalize(&def)
	return def, nil
}

// Seed validates every loaded definition and inserts it into the store.
// Invalid definitions fail the boot; definitions already present are skipped.
func (l *Loader) Seed(ctx context.Context, store Store, defs []model.WorkflowDefinition) error {
	now := time.Now().UTC()

	for i := range defs {
		def := defs[i]

		res := l.validator.Validate(&def)
		if !res.Valid() {
			return fmt.Errorf("seed definition %q: %w", def.ID, &model.ErrorEnvelope{
				Code:    model.ErrValidationError,
				Message: fmt.Sprintf("definition has %d validation errors", len(res.Errors)),
				Details: res.FieldErrors(),
			})
		}
		for _, w := range res.Warnings {
			l.logger.Warn("definition warning",
				zap.String("workflow_id", def.ID),
				zap.String("path", w.Path),
				zap.String("code", w.Code),
				zap.String("message", w.Message),
			)
		}

		def.CreatedAt = now
		def.UpdatedAt = now
		def.Version = 1
		def.Active = true

		err := store.Create(ctx, def)
		if err != nil {
			var envelope *model.ErrorEnvelope
			if errors.As(err, &envelope) && envelope.Code == model.ErrConflict {
				l.logger.Debug("definition already seeded",
					zap.String("workflow_id", def.ID),
				)
				continue
			}
			return fmt.Errorf("seed definition %q: %w", def.ID, err)
		}

		l.logger.Info("seeded workflow definition",
			zap.String("workflow_id", def.ID),
			zap.String("domain_id", def.DomainID),
			zap.Int("states", len(def.States)),
			zap.Int("transitions", len(def.Transitions)),
		)
	}

	return nil
}

func (sf seedFile) toDefinition() model.WorkflowDefinition {
	def := model.WorkflowDefinition{
		ID:            sf.ID,
		DomainID:      sf.DomainID,
		ApplicationID: sf.ApplicationID,
		ModelID:       sf.ModelID,
		Name:          sf.Name,
		Description:   sf.Description,
		Icon:          sf.Icon,
	}
	for _, s := range sf.States {
		def.States = append(def.States, model.State(s))
	}
	for _, t := range sf.Transitions {
		def.Transitions = append(def.Transitions, model.Transition(t))
	}
	return def
}
