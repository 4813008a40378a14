package definition

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

const seedYAML = `
id: wf-review
domainId: acme
modelId: document
name: Document Review
states:
  - id: draft
    name: Draft
    initial: true
  - id: published
    name: Published
    final: true
transitions:
  - id: publish
    name: Publish
    fromState: draft
    toState: published
    allowedRoles: [EDITOR]
    requiredFields: [summary]
`

func writeSeed(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoader_LoadFile(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "review.yaml", seedYAML)

	loader := NewLoader(NewValidator(), zap.NewNop())
	def, err := loader.LoadFile(filepath.Join(dir, "review.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if def.ID != "wf-review" || def.DomainID != "acme" {
		t.Errorf("loaded %+v", def)
	}
	if len(def.States) != 2 || !def.States[0].Initial || !def.States[1].Final {
		t.Errorf("states = %+v", def.States)
	}
	tr := def.Transitions[0]
	if tr.FromState != "draft" || tr.ToState != "published" {
		t.Errorf("transition = %+v", tr)
	}
	if len(tr.AllowedRoles) != 1 || tr.AllowedRoles[0] != "EDITOR" {
		t.Errorf("allowedRoles = %v", tr.AllowedRoles)
	}
	if len(tr.RequiredFields) != 1 || tr.RequiredFields[0] != "summary" {
		t.Errorf("requiredFields = %v", tr.RequiredFields)
	}
}

func TestLoader_LoadAll_skipsNonYAML(t *testing.T) {
	dir := t.TempDir()
	writeSeed(t, dir, "review.yaml", seedYAML)
	writeSeed(t, dir, "notes.txt", "not a definition")

	loader := NewLoader(NewValidator(), zap.NewNop())
	defs, err := loader.LoadAll([]string{dir})
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(defs) != 1 {
		t.Fatalf("LoadAll returned %d definitions, want 1", len(defs))
	}
}

func TestLoader_Seed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	loader := NewLoader(NewValidator(), zap.NewNop())

	dir := t.TempDir()
	writeSeed(t, dir, "review.yaml", seedYAML)
	defs, err := loader.LoadAll([]string{dir})
	if err != nil {
		t.Fatal(err)
	}

	if err := loader.Seed(ctx, store, defs); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	got, err := store.Get(ctx, "acme", "wf-review")
	if err != nil {
		t.Fatalf("Get after seed: %v", err)
	}
	if got.Version != 1 || !got.Active {
		t.Errorf("seeded definition version=%d active=%v", got.Version, got.Active)
	}

	// Re-seeding must not clobber stored definitions.
	got.Name = "Edited After Boot"
	if err := store.Update(ctx, got); err != nil {
		t.Fatal(err)
	}
	if err := loader.Seed(ctx, store, defs); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	again, _ := store.Get(ctx, "acme", "wf-review")
	if again.Name != "Edited After Boot" {
		t.Errorf("re-seed overwrote administrative edit: %q", again.Name)
	}
}

func TestLoader_Seed_rejectsInvalidDefinition(t *testing.T) {
	store := NewMemoryStore()
	loader := NewLoader(NewValidator(), zap.NewNop())

	dir := t.TempDir()
	writeSeed(t, dir, "broken.yaml", `
id: wf-broken
domainId: acme
name: Broken
states:
  - id: a
    initial: true
transitions:
  - id: t1
    fromState: a
    toState: missing
`)
	defs, err := loader.LoadAll([]string{dir})
	if err != nil {
		t.Fatal(err)
	}

	if err := loader.Seed(context.Background(), store, defs); err == nil {
		t.Fatal("Seed should reject a definition with dangling transitions")
	}
	if store.Len() != 0 {
		t.Errorf("nothing should have been stored, got %d", store.Len())
	}
}
