package model

import (
	"context"
	"errors"
	"fmt"
)

// Actor carries the identity, role set, and tenant scope on whose behalf an
// operation is attempted. It replaces any ambient "current user" state: every
// engine call receives an Actor explicitly. Immutable after construction and
// safe for concurrent reads.
type Actor struct {
	SubjectID     string
	Email         string
	DomainID      string
	ApplicationID string
	Roles         []string
	Claims        map[string]any
	CorrelationID string
	Locale        string
	Timezone      string
}

// Validate checks that all mandatory fields are present.
// SubjectID and DomainID must be non-empty.
func (a *Actor) Validate() error {
	var errs []error
	if a.SubjectID == "" {
		errs = append(errs, fmt.Errorf("SubjectID is required"))
	}
	if a.DomainID == "" {
		errs = append(errs, fmt.Errorf("DomainID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasRole returns true if the actor holds the given role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole returns true if the actor holds at least one of the given roles.
func (a *Actor) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if a.HasRole(r) {
			return true
		}
	}
	return false
}

// Claim returns the value of the given claim key, or nil if not present.
func (a *Actor) Claim(key string) any {
	if a.Claims == nil {
		return nil
	}
	return a.Claims[key]
}

type actorKey struct{}

// WithActor attaches an Actor to the given context.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom extracts the Actor from the context, or returns nil if not present.
func ActorFrom(ctx context.Context) *Actor {
	actor, _ := ctx.Value(actorKey{}).(*Actor)
	return actor
}

// MustActor extracts the Actor from the context, panicking if it is not
// present. Safe to call in handlers that are guaranteed to run behind the
// authentication middleware.
func MustActor(ctx context.Context) *Actor {
	actor := ActorFrom(ctx)
	if actor == nil {
		panic("model: Actor not found in context")
	}
	return actor
}
