package common

import "context"

type ctxKey string

const actorKey ctxKey = "auth/actor"

// Actor is the opaque caller identity issued by the external auth
// system: who is calling and with what role. The engine never looks
// further into it.
type Actor struct {
	ID   string
	Role string
}

// WithActor stores the caller identity on the provided context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the caller identity from the context if present.
func ActorFrom(ctx context.Context) (Actor, bool) {
	v := ctx.Value(actorKey)
	if v == nil {
		return Actor{}, false
	}
	actor, ok := v.(Actor)
	return actor, ok
}
