package access

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/formgrid/flowd/model"
)

type countingEvaluator struct {
	calls int
	caps  model.CapabilitySet
}

func (e *countingEvaluator) ResolveCapabilities(_ *model.Actor) (model.CapabilitySet, error) {
	e.calls++
	return e.caps, nil
}

func (e *countingEvaluator) Sync() error { return nil }

func TestResolver_cachesWithinTTL(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{"workflows:manage": true}}
	r := NewResolver(eval, time.Minute)
	actor := &model.Actor{SubjectID: "user-1", DomainID: "acme"}

	for i := 0; i < 3; i++ {
		caps, err := r.Resolve(actor)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !caps.Has("workflows:manage") {
			t.Fatal("capability missing")
		}
	}

	if eval.calls != 1 {
		t.Errorf("evaluator called %d times, want 1", eval.calls)
	}
}

func TestResolver_expiresAfterTTL(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{}}
	r := NewResolver(eval, 5*time.Millisecond)
	actor := &model.Actor{SubjectID: "user-1", DomainID: "acme"}

	if _, err := r.Resolve(actor); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := r.Resolve(actor); err != nil {
		t.Fatal(err)
	}

	if eval.calls != 2 {
		t.Errorf("evaluator called %d times, want 2 after TTL expiry", eval.calls)
	}
}

func TestResolver_Invalidate(t *testing.T) {
	eval := &countingEvaluator{caps: model.CapabilitySet{}}
	r := NewResolver(eval, time.Minute)
	actor := &model.Actor{SubjectID: "user-1", DomainID: "acme"}
	other := &model.Actor{SubjectID: "user-2", DomainID: "acme"}

	if _, err := r.Resolve(actor); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(other); err != nil {
		t.Fatal(err)
	}

	r.Invalidate("user-1", "acme")

	if _, err := r.Resolve(actor); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(other); err != nil {
		t.Fatal(err)
	}

	// user-1 re-evaluated, user-2 still cached.
	if eval.calls != 3 {
		t.Errorf("evaluator called %d times, want 3", eval.calls)
	}
}

const policyYAML = `
roles:
  ADMIN:
    - "workflows:*"
  DESIGNER:
    - workflows:manage
domains:
  acme:
    roles:
      MANAGER:
        - workflows:admin
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStaticPolicyEvaluator_globalRoles(t *testing.T) {
	eval, err := NewStaticPolicyEvaluator(writePolicy(t, policyYAML))
	if err != nil {
		t.Fatalf("NewStaticPolicyEvaluator: %v", err)
	}

	caps, err := eval.ResolveCapabilities(&model.Actor{
		SubjectID: "user-1", DomainID: "other-corp", Roles: []string{"DESIGNER"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !caps.Has(model.CapWorkflowManage) {
		t.Error("DESIGNER should hold workflows:manage everywhere")
	}
	if caps.Has(model.CapWorkflowAdmin) {
		t.Error("DESIGNER should not hold workflows:admin")
	}
}

func TestStaticPolicyEvaluator_domainOverlay(t *testing.T) {
	eval, err := NewStaticPolicyEvaluator(writePolicy(t, policyYAML))
	if err != nil {
		t.Fatal(err)
	}

	inDomain, _ := eval.ResolveCapabilities(&model.Actor{
		SubjectID: "user-1", DomainID: "acme", Roles: []string{"MANAGER"},
	})
	if !inDomain.Has(model.CapWorkflowAdmin) {
		t.Error("MANAGER in acme should hold workflows:admin")
	}

	elsewhere, _ := eval.ResolveCapabilities(&model.Actor{
		SubjectID: "user-1", DomainID: "other-corp", Roles: []string{"MANAGER"},
	})
	if elsewhere.Has(model.CapWorkflowAdmin) {
		t.Error("MANAGER outside acme should not hold workflows:admin")
	}
}

func TestStaticPolicyEvaluator_wildcardAdmin(t *testing.T) {
	eval, err := NewStaticPolicyEvaluator(writePolicy(t, policyYAML))
	if err != nil {
		t.Fatal(err)
	}

	caps, _ := eval.ResolveCapabilities(&model.Actor{
		SubjectID: "root", DomainID: "acme", Roles: []string{"ADMIN"},
	})
	if !caps.Has(model.CapWorkflowAdmin) || !caps.Has(model.CapWorkflowManage) {
		t.Errorf("workflows:* should cover admin and manage, got %v", caps)
	}
}

func TestStaticPolicyEvaluator_Sync(t *testing.T) {
	path := writePolicy(t, policyYAML)
	eval, err := NewStaticPolicyEvaluator(path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("roles:\n  DESIGNER: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := eval.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	caps, _ := eval.ResolveCapabilities(&model.Actor{
		SubjectID: "user-1", DomainID: "acme", Roles: []string{"DESIGNER"},
	})
	if caps.Has(model.CapWorkflowManage) {
		t.Error("Sync should have dropped the manage grant")
	}
}

func TestStaticPolicyEvaluator_missingFile(t *testing.T) {
	if _, err := NewStaticPolicyEvaluator(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("missing policy file should fail")
	}
}
