package model

import (
	"context"
	"strings"
	"testing"
)

func TestActor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		actor   Actor
		wantErr string
	}{
		{
			name:  "valid",
			actor: Actor{SubjectID: "user-1", DomainID: "acme"},
		},
		{
			name:    "missing subject",
			actor:   Actor{DomainID: "acme"},
			wantErr: "SubjectID",
		},
		{
			name:    "missing domain",
			actor:   Actor{SubjectID: "user-1"},
			wantErr: "DomainID",
		},
		{
			name:    "missing both",
			actor:   Actor{},
			wantErr: "SubjectID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.actor.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestActor_HasRole(t *testing.T) {
	actor := &Actor{Roles: []string{"USER", "REVIEWER"}}
	if !actor.HasRole("REVIEWER") {
		t.Error("HasRole(REVIEWER) = false, want true")
	}
	if actor.HasRole("ADMIN") {
		t.Error("HasRole(ADMIN) = true, want false")
	}
}

func TestActor_HasAnyRole(t *testing.T) {
	actor := &Actor{Roles: []string{"USER"}}
	if !actor.HasAnyRole([]string{"ADMIN", "USER"}) {
		t.Error("HasAnyRole should match USER")
	}
	if actor.HasAnyRole([]string{"ADMIN", "MANAGER"}) {
		t.Error("HasAnyRole should not match unheld roles")
	}
	if actor.HasAnyRole(nil) {
		t.Error("HasAnyRole(nil) should be false")
	}
}

func TestActor_contextRoundTrip(t *testing.T) {
	actor := &Actor{SubjectID: "user-1", DomainID: "acme"}
	ctx := WithActor(context.Background(), actor)

	got := ActorFrom(ctx)
	if got != actor {
		t.Fatalf("ActorFrom returned %+v, want same pointer", got)
	}

	if ActorFrom(context.Background()) != nil {
		t.Error("ActorFrom on empty context should return nil")
	}
}

func TestMustActor_panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustActor should panic without an actor in context")
		}
	}()
	MustActor(context.Background())
}
