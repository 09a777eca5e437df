package treasury

import (
	"context"
)

type contextKey struct{}

var (
	// actorContextKey is the context key for the authenticated owner identity.
	actorContextKey = contextKey{}
)

func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func ActorFrom(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorContextKey).(string)
	return actor, ok
}
