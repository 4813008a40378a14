package access

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/formgrid/flowd/model"
)

type domainPolicy struct {
	Roles map[string][]string `yaml:"roles"`
}

type policyFile struct {
	// Roles maps a role name to capability strings, granted in every domain.
	Roles map[string][]string `yaml:"roles"`
	// Domains holds per-tenant role grants layered on top of the global ones.
	Domains map[string]domainPolicy `yaml:"domains"`
}

// StaticPolicyEvaluator resolves capabilities from a static YAML file mapping
// roles to capability strings, with optional per-domain overrides.
type StaticPolicyEvaluator struct {
	path   string
	mu     sync.RWMutex
	policy policyFile
}

// NewStaticPolicyEvaluator creates a new evaluator that loads policy from path.
func NewStaticPolicyEvaluator(path string) (*StaticPolicyEvaluator, error) {
	e := &StaticPolicyEvaluator{path: path}
	if err := e.Sync(); err != nil {
		return nil, err
	}
	return e, nil
}

// ResolveCapabilities returns the union of capabilities for all of the actor's
// roles, global grants first, then grants scoped to the actor's domain.
func (e *StaticPolicyEvaluator) ResolveCapabilities(actor *model.Actor) (model.CapabilitySet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	caps := make(model.CapabilitySet)
	for _, role := range actor.Roles {
		for _, cap := range e.policy.Roles[role] {
			caps[cap] = true
		}
		if dp, ok := e.policy.Domains[actor.DomainID]; ok {
			for _, cap := range dp.Roles[role] {
				caps[cap] = true
			}
		}
	}
	return caps, nil
}

// Sync reloads the policy file from disk.
func (e *StaticPolicyEvaluator) Sync() error {
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("access: reading policy file %s: %w", e.path, err)
	}

	var p policyFile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("access: parsing policy file %s: %w", e.path, err)
	}

	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()

	return nil
}
