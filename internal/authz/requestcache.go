package authz

import (
	"context"
	"sync"
)

type requestCacheKey struct{}

// requestCache memoizes built permission contexts for the lifetime of one
// request. It is installed by the session middleware and dies with the
// request; nothing here survives across requests or processes, so repeated
// guard checks in a single handler cost one role store read, without any
// risk of cross-request staleness.
type requestCache struct {
	mu       sync.Mutex
	contexts map[int64]*Context
}

// WithRequestCache installs a per-request context cache.
func WithRequestCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestCacheKey{}, &requestCache{
		contexts: make(map[int64]*Context),
	})
}

// CachedContext builds the user's permission context at most once per
// request. Without an installed cache it degrades to a plain build.
// Resolution failures are not cached; a retry within the same request hits
// the store again.
func (b *Builder) CachedContext(ctx context.Context, userID int64) (*Context, error) {
	cache, _ := ctx.Value(requestCacheKey{}).(*requestCache)
	if cache == nil {
		return b.BuildContext(ctx, userID)
	}

	cache.mu.Lock()
	if pctx, ok := cache.contexts[userID]; ok {
		cache.mu.Unlock()
		return pctx, nil
	}
	cache.mu.Unlock()

	pctx, err := b.BuildContext(ctx, userID)
	if err != nil {
		return nil, err
	}

	cache.mu.Lock()
	cache.contexts[userID] = pctx
	cache.mu.Unlock()
	return pctx, nil
}
