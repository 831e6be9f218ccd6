package testutil

import (
	"context"
	"time"

	"zeron/pkg/requestcontext"
)

// ContextAt returns a background context with the request clock pinned to t.
// Services read requestcontext.Now, so this is how tests advance time without
// sleeping.
func ContextAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

// Advance returns ctx with the request clock moved forward by d from base.
func Advance(ctx context.Context, d time.Duration) context.Context {
	return requestcontext.WithTime(ctx, requestcontext.Now(ctx).Add(d))
}
