package upstream

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultResolveConcurrency bounds ResolveKeys when limit <= 0.
const DefaultResolveConcurrency = 8

// Resolver maps a stable content id to the current media key, typically by
// looking up the object's latest rotation.
type Resolver interface {
	Resolve(ctx context.Context, contentID string) (key string, err error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, contentID string) (string, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, contentID string) (string, error) {
	return f(ctx, contentID)
}

// StaticResolver resolves from a fixed contentID → rotation table. Ids that
// are not listed resolve to themselves.
type StaticResolver map[string]string

// Resolve implements Resolver.
func (s StaticResolver) Resolve(_ context.Context, contentID string) (string, error) {
	return MediaKey(contentID, s[contentID]), nil
}

// ResolveKeys resolves ids concurrently, preserving order. The first error
// cancels the remaining lookups.
func ResolveKeys(ctx context.Context, r Resolver, ids []string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = DefaultResolveConcurrency
	}
	keys := make([]string, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, id := range ids {
		g.Go(func() error {
			key, err := r.Resolve(gctx, id)
			if err != nil {
				return err
			}
			keys[i] = key
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return keys, nil
}
