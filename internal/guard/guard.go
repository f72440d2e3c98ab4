// Package guard owns the three mutual-exclusion domains shared by verification
// and registration: the embedding model, the template comparison path and the
// audit log append path.
//
// Every handle is acquired through a scoped call that releases it on all exit
// paths, including errors and panics inside the callback.
package guard

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Options configures a Guard.
type Options struct {
	// ModelWorkers is the number of extraction calls allowed in flight.
	// Values below 1 are treated as 1, a single in-flight extraction.
	ModelWorkers int

	// ShardComparison gives every (tenant, organization) bucket its own
	// comparison lock instead of one global lock.
	ShardComparison bool
}

// Guard holds the resource handles. The zero value is not usable; use New.
type Guard struct {
	model   *semaphore.Weighted
	workers int

	sharded    bool
	comparison sync.Mutex
	shardsMu   sync.Mutex
	shards     map[string]*sync.Mutex

	log sync.Mutex
}

// New creates a Guard.
func New(opts Options) *Guard {
	workers := max(opts.ModelWorkers, 1)
	return &Guard{
		model:   semaphore.NewWeighted(int64(workers)),
		workers: workers,
		sharded: opts.ShardComparison,
		shards:  make(map[string]*sync.Mutex),
	}
}

// ModelWorkers returns the configured number of concurrent extraction slots.
func (g *Guard) ModelWorkers() int {
	return g.workers
}

// Model runs fn while holding a model slot. Waiting for the slot honours ctx.
func (g *Guard) Model(ctx context.Context, fn func() error) error {
	if err := g.model.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for model: %w", err)
	}
	defer g.model.Release(1)
	return fn()
}

// Comparison runs fn while holding the comparison lock for the given bucket key.
// Without sharding all keys share one lock.
func (g *Guard) Comparison(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu := g.comparisonLock(key)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// Log runs fn while holding the audit log lock.
func (g *Guard) Log(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.log.Lock()
	defer g.log.Unlock()
	return fn()
}

func (g *Guard) comparisonLock(key string) *sync.Mutex {
	if !g.sharded {
		return &g.comparison
	}
	g.shardsMu.Lock()
	defer g.shardsMu.Unlock()
	mu, ok := g.shards[key]
	if !ok {
		mu = &sync.Mutex{}
		g.shards[key] = mu
	}
	return mu
}

// BucketKey builds the comparison shard key for a normalized tenant and organization.
func BucketKey(tenant, organizationID string) string {
	return tenant + "/" + organizationID
}
