package payments

import (
	"context"

	"github.com/warp/household-payments/generic"
)

type actorKey struct{}

// WithActor attaches the acting member to ctx for audit entries.
func WithActor(ctx context.Context, member generic.MemberID) context.Context {
	return context.WithValue(ctx, actorKey{}, member)
}

// ActorFrom returns the acting member, or "" when none is attached.
func ActorFrom(ctx context.Context) generic.MemberID {
	m, _ := ctx.Value(actorKey{}).(generic.MemberID)
	return m
}
