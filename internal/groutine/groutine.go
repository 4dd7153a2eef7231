// Package groutine starts goroutines that carry a name, both as a pprof label
// and as a context value, so scan, dial and link-monitor workers can be told
// apart in profiles and logs.
package groutine

import (
	"context"
	"runtime/pprof"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn in a named goroutine. A nil parentCtx means context.Background().
//
//	groutine.Go(ctx, "scan", func(ctx context.Context) {
//	    // work
//	})
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// Start is Go with a completion signal: the returned channel is closed once fn returns.
func Start(parentCtx context.Context, name string, fn func(ctx context.Context)) <-chan struct{} {
	done := make(chan struct{})
	Go(parentCtx, name, func(ctx context.Context) {
		defer close(done)
		fn(ctx)
	})
	return done
}

// GetName retrieves the goroutine name from the context.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(goroutineNameKey).(string); ok {
		return s
	}
	return ""
}
