package engine

import "context"

type depthKey struct{}

// depthFrom returns how many machine hops led to ctx. Background jobs
// start a fresh count.
func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func withDepth(ctx context.Context, d int) context.Context {
	return context.WithValue(ctx, depthKey{}, d)
}
