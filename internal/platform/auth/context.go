package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const actorKey contextKey = "actor"

// Actor identifies the authenticated caller. It is passed explicitly through
// service and gate calls instead of being pulled from ambient state.
type Actor struct {
	ID             uuid.UUID
	Name           string
	Email          string
	Role           string
	OrganizationID *uuid.UUID
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == "admin" }

// Internal reports whether the actor is internal staff with no organization
// binding. Internal actors are not subject to the consent gate.
func (a Actor) Internal() bool { return a.OrganizationID == nil }

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext retrieves the actor, reporting whether one is present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
