// Package refcache is the keyed store owning every client reference on
// behalf of the proxy core. It upholds the cache's side of the concurrency
// contract: at most one expensive build is in flight per key; concurrent
// callers for the same key wait on the existing build instead of starting
// their own.
package refcache

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/quivery/rpcgate"
)

// Builder constructs client references. Implemented by backend bindings
// such as `pkg/natsref`.
type Builder interface {
	// BuildDefault constructs a reference from the static default target.
	BuildDefault(ctx context.Context, meta rpcgate.MetaData, namespace string) (rpcgate.ClientRef, error)
	// BuildWithUpstream constructs a reference bound to one selected
	// upstream's coordinates.
	BuildWithUpstream(ctx context.Context, selectorID string, rule rpcgate.RuleData, meta rpcgate.MetaData, namespace string, upstream rpcgate.Upstream) (rpcgate.ClientRef, error)
}

// Cache implements rpcgate.RefCache.
type Cache struct {
	builder Builder
	logger  *slog.Logger

	lk    sync.RWMutex
	refs  map[string]rpcgate.ClientRef
	group singleflight.Group
}

var _ rpcgate.RefCache = (*Cache)(nil)

func New(builder Builder, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		builder: builder,
		logger:  logger,
		refs:    make(map[string]rpcgate.ClientRef),
	}
}

// Get returns the reference stored under key. An unknown key yields a stale
// placeholder with an empty declared interface; the caller detects the miss
// by emptiness, never by an explicit not-found.
func (c *Cache) Get(key string) rpcgate.ClientRef {
	c.lk.RLock()
	defer c.lk.RUnlock()
	if ref, has := c.refs[key]; has {
		return ref
	}
	return placeholderRef{}
}

// Invalidate drops the reference stored under key and tears it down when it
// owns resources.
func (c *Cache) Invalidate(key string) {
	c.lk.Lock()
	ref, has := c.refs[key]
	delete(c.refs, key)
	c.lk.Unlock()

	if !has {
		return
	}
	if closer, ok := ref.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.logger.Warn("failed to tear down client reference", "ref_key", key, "error", err)
		}
	}
}

// BuildDefault constructs (or joins the in-flight construction of) the
// reference for the static default target and stores it under its key.
func (c *Cache) BuildDefault(ctx context.Context, meta rpcgate.MetaData, namespace string) (rpcgate.ClientRef, error) {
	key := rpcgate.DefaultRefKey(meta.Path, namespace)
	return c.build(key, func() (rpcgate.ClientRef, error) {
		return c.builder.BuildDefault(ctx, meta, namespace)
	})
}

// BuildWithUpstream constructs (or joins the in-flight construction of) the
// reference bound to the selected upstream and stores it under its key.
func (c *Cache) BuildWithUpstream(ctx context.Context, selectorID string, rule rpcgate.RuleData, meta rpcgate.MetaData, namespace string, upstream rpcgate.Upstream) (rpcgate.ClientRef, error) {
	key := rpcgate.UpstreamRefKey(selectorID, rule.ID, meta.ID, namespace, upstream)
	return c.build(key, func() (rpcgate.ClientRef, error) {
		return c.builder.BuildWithUpstream(ctx, selectorID, rule, meta, namespace, upstream)
	})
}

func (c *Cache) build(key string, construct func() (rpcgate.ClientRef, error)) (rpcgate.ClientRef, error) {
	ref, err, shared := c.group.Do(key, func() (any, error) {
		built, err := construct()
		if err != nil {
			return nil, err
		}
		c.lk.Lock()
		c.refs[key] = built
		c.lk.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("joined an in-flight reference build", "ref_key", key)
	}
	return ref.(rpcgate.ClientRef), nil
}

// placeholderRef stands in for an absent entry. Its empty interface name
// marks it stale so the proxy goes through invalidate-then-rebuild.
type placeholderRef struct{}

func (placeholderRef) Interface() string               { return "" }
func (placeholderRef) Serialization() string           { return "" }
func (placeholderRef) Service() rpcgate.GenericService { return nil }
