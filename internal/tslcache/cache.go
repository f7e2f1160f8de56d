package tslcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-driver-sdk/internal/protocol"
)

// DefaultTTL is how long a fetched model is trusted when Options.TTL is zero.
const DefaultTTL = time.Hour

// Domain errors for the tslcache package.
//
//	if errors.Is(err, tslcache.ErrNoFetcher) {
//	    // the cache was built without a way to reach the daemon
//	}
var (
	// ErrNoFetcher is returned on a miss when no Fetcher is configured.
	ErrNoFetcher = errors.New("tslcache: no fetcher configured")

	// ErrEmptyProductKey is returned for an empty product key.
	ErrEmptyProductKey = errors.New("tslcache: empty product key")
)

// Fetcher retrieves the raw model document for a product key.
type Fetcher func(ctx context.Context, productKey string) (string, error)

// Entry is one cached model document.
type Entry struct {
	ProductKey string
	Raw        string
	FetchedAt  time.Time
}

// Store persists entries across restarts.
type Store interface {
	Load(ctx context.Context, productKey string) (Entry, bool, error)
	Save(ctx context.Context, e Entry) error
	Delete(ctx context.Context, productKey string) error
}

// Logger defines the logging interface used by the Cache.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Options configures a Cache.
type Options struct {
	// Fetch retrieves a model on a miss. Optional; without it only stored
	// entries are served.
	Fetch Fetcher

	// Store persists entries. Optional.
	Store Store

	// TTL overrides DefaultTTL. Negative keeps entries forever.
	TTL time.Duration

	// Logger is optional.
	Logger Logger
}

type cached struct {
	entry Entry
	tsl   *protocol.TSL
}

// Cache serves product models by product key.
//
// Lookups check memory, then the Store, then the Fetcher. Concurrent
// misses for one key share a single fetch. When a refresh fails, an
// expired entry is served rather than failing the caller.
//
// All methods are safe for concurrent use.
type Cache struct {
	fetch  Fetcher
	store  Store
	ttl    time.Duration
	logger Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]cached
	gens    map[string]uint64 // bumped by Invalidate

	flight singleflight.Group
}

// New creates a Cache.
func New(opts Options) *Cache {
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Cache{
		fetch:   opts.Fetch,
		store:   opts.Store,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cached),
		gens:    make(map[string]uint64),
	}
}

// TSL returns the parsed model for productKey.
func (c *Cache) TSL(ctx context.Context, productKey string) (*protocol.TSL, error) {
	got, err := c.lookup(ctx, productKey)
	if err != nil {
		return nil, err
	}
	return got.tsl, nil
}

// Raw returns the model document for productKey as fetched.
func (c *Cache) Raw(ctx context.Context, productKey string) (string, error) {
	got, err := c.lookup(ctx, productKey)
	if err != nil {
		return "", err
	}
	return got.entry.Raw, nil
}

// Put stores a model document fetched by other means.
func (c *Cache) Put(ctx context.Context, productKey, raw string) error {
	if productKey == "" {
		return ErrEmptyProductKey
	}
	_, err := c.admit(ctx, Entry{ProductKey: productKey, Raw: raw, FetchedAt: c.now()}, c.generation(productKey))
	return err
}

// Invalidate forgets productKey in memory and in the Store. A fetch already
// in flight for productKey still answers its callers but is not kept.
func (c *Cache) Invalidate(ctx context.Context, productKey string) error {
	c.mu.Lock()
	delete(c.entries, productKey)
	c.gens[productKey]++
	c.mu.Unlock()
	c.flight.Forget(productKey)

	if c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, productKey); err != nil {
		return fmt.Errorf("invalidating %s: %w", productKey, err)
	}
	return nil
}

// Len returns the number of models held in memory.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) lookup(ctx context.Context, productKey string) (cached, error) {
	if productKey == "" {
		return cached{}, ErrEmptyProductKey
	}

	c.mu.RLock()
	hit, ok := c.entries[productKey]
	c.mu.RUnlock()
	if ok && c.fresh(hit.entry) {
		return hit, nil
	}

	v, err, _ := c.flight.Do(productKey, func() (any, error) {
		return c.refresh(ctx, productKey)
	})
	if err != nil {
		if ok {
			c.logger.Warn("serving expired product model", "product_key", productKey, "error", err)
			return hit, nil
		}
		return cached{}, err
	}
	return v.(cached), nil
}

// refresh loads productKey from the Store, or from the Fetcher when the
// stored copy is missing or expired.
func (c *Cache) refresh(ctx context.Context, productKey string) (cached, error) {
	gen := c.generation(productKey)

	var stale *Entry
	if c.store != nil {
		e, ok, err := c.store.Load(ctx, productKey)
		switch {
		case err != nil:
			c.logger.Warn("loading stored product model", "product_key", productKey, "error", err)
		case ok && c.fresh(e):
			return c.admitMemory(e, gen)
		case ok:
			stale = &e
		}
	}

	if c.fetch == nil {
		if stale != nil {
			return c.admitMemory(*stale, gen)
		}
		return cached{}, fmt.Errorf("%w: %s", ErrNoFetcher, productKey)
	}

	raw, err := c.fetch(ctx, productKey)
	if err != nil {
		if stale != nil {
			c.logger.Warn("serving expired stored product model", "product_key", productKey, "error", err)
			return c.admitMemory(*stale, gen)
		}
		return cached{}, fmt.Errorf("fetching product model %s: %w", productKey, err)
	}
	c.logger.Debug("product model fetched", "product_key", productKey, "bytes", len(raw))
	return c.admit(ctx, Entry{ProductKey: productKey, Raw: raw, FetchedAt: c.now()}, gen)
}

// admit parses e, keeps it in memory and persists it, unless productKey
// was invalidated since generation gen was read.
func (c *Cache) admit(ctx context.Context, e Entry, gen uint64) (cached, error) {
	got, err := c.admitMemory(e, gen)
	if err != nil {
		return cached{}, err
	}
	if c.store == nil || c.generation(e.ProductKey) != gen {
		return got, nil
	}
	if err := c.store.Save(ctx, e); err != nil {
		c.logger.Warn("persisting product model", "product_key", e.ProductKey, "error", err)
		return got, nil
	}
	// An Invalidate may have deleted the stored copy while Save ran.
	if c.generation(e.ProductKey) != gen {
		if err := c.store.Delete(ctx, e.ProductKey); err != nil {
			c.logger.Warn("dropping invalidated product model", "product_key", e.ProductKey, "error", err)
		}
	}
	return got, nil
}

func (c *Cache) admitMemory(e Entry, gen uint64) (cached, error) {
	tsl, err := protocol.ParseTSL([]byte(e.Raw))
	if err != nil {
		return cached{}, fmt.Errorf("product model %s: %w", e.ProductKey, err)
	}
	got := cached{entry: e, tsl: tsl}

	c.mu.Lock()
	if c.gens[e.ProductKey] == gen {
		c.entries[e.ProductKey] = got
	} else {
		c.logger.Debug("discarding invalidated product model", "product_key", e.ProductKey)
	}
	c.mu.Unlock()
	return got, nil
}

func (c *Cache) generation(productKey string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gens[productKey]
}

func (c *Cache) fresh(e Entry) bool {
	return c.ttl < 0 || c.now().Sub(e.FetchedAt) < c.ttl
}
