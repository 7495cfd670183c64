// Package catalog owns the fetch-and-cache lifecycle of the promotion,
// lane block, service and lane lists the evaluators run against.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"nook/internal/db"
	"nook/internal/lanes"
	"nook/internal/metrics"
	"nook/internal/promotions"
)

var (
	ErrUnknownService = errors.New("catalog: unknown service")
	ErrUnknownLane    = errors.New("catalog: unknown lane")
)

// Store is the persistent source of catalog data.
type Store interface {
	ListPromotions(ctx context.Context) ([]promotions.Rule, error)
	ListLaneBlocks(ctx context.Context, laneID string, from, to time.Time) ([]lanes.LaneBlock, error)
	ListServices(ctx context.Context) ([]db.Service, error)
	ListLanes(ctx context.Context) ([]db.Lane, error)
}

// Cache shares snapshots between instances. Get returns nil, nil on a miss.
type Cache interface {
	Get(ctx context.Context) (*Snapshot, error)
	Set(ctx context.Context, snap *Snapshot, ttl time.Duration) error
	Delete(ctx context.Context) error
}

// Snapshot is an immutable view of the catalog. Callers must not modify
// the slices it exposes.
type Snapshot struct {
	Promotions []promotions.Rule `json:"promotions"`
	Blocks     []lanes.LaneBlock `json:"blocks"`
	Services   []db.Service      `json:"services"`
	Lanes      []db.Lane         `json:"lanes"`
	LoadedAt   time.Time         `json:"loaded_at"`
}

// Service returns the service with id.
func (s *Snapshot) Service(id string) (db.Service, error) {
	for _, svc := range s.Services {
		if svc.ID == id {
			return svc, nil
		}
	}
	return db.Service{}, fmt.Errorf("%w: %s", ErrUnknownService, id)
}

// Lane returns the lane with id.
func (s *Snapshot) Lane(id string) (db.Lane, error) {
	for _, l := range s.Lanes {
		if l.ID == id {
			return l, nil
		}
	}
	return db.Lane{}, fmt.Errorf("%w: %s", ErrUnknownLane, id)
}

// Catalog loads snapshots on demand and keeps them until Invalidate or TTL
// expiry.
type Catalog struct {
	store  Store
	cache  Cache
	ttl    time.Duration
	now    func() time.Time
	logger *zerolog.Logger

	mu      sync.Mutex
	snap    *Snapshot
	expires time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache shares snapshots through c.
func WithCache(c Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(cat *Catalog) { cat.now = now }
}

// New creates a catalog over store. A ttl <= 0 keeps snapshots until
// Invalidate.
func New(store Store, ttl time.Duration, logger *zerolog.Logger, opts ...Option) *Catalog {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	c := &Catalog{store: store, ttl: ttl, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current snapshot, loading it first from the shared
// cache and then from the store when needed. Concurrent callers during a
// load wait for the same result.
func (c *Catalog) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.snap != nil && (c.ttl <= 0 || now.Before(c.expires)) {
		metrics.IncCatalogLoad(metrics.SourceMemory)
		return c.snap, nil
	}

	if c.cache != nil {
		snap, err := c.cache.Get(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("catalog cache read failed")
		}
		if snap != nil {
			metrics.IncCatalogLoad(metrics.SourceRedis)
			c.keep(snap, now)
			return snap, nil
		}
	}

	snap, err := c.load(ctx, now)
	if err != nil {
		return nil, err
	}
	metrics.IncCatalogLoad(metrics.SourceStore)
	c.keep(snap, now)

	if c.cache != nil {
		if err := c.cache.Set(ctx, snap, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("catalog cache write failed")
		}
	}

	c.logger.Debug().
		Int("promotions", len(snap.Promotions)).
		Int("blocks", len(snap.Blocks)).
		Int("services", len(snap.Services)).
		Int("lanes", len(snap.Lanes)).
		Msg("catalog loaded")
	return snap, nil
}

func (c *Catalog) keep(snap *Snapshot, now time.Time) {
	c.snap = snap
	c.expires = now.Add(c.ttl)
	metrics.SetCatalogPromotions(len(snap.Promotions))
}

func (c *Catalog) load(ctx context.Context, now time.Time) (*Snapshot, error) {
	promos, err := c.store.ListPromotions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load promotions: %w", err)
	}
	blocks, err := c.store.ListLaneBlocks(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load lane blocks: %w", err)
	}
	services, err := c.store.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}
	laneList, err := c.store.ListLanes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load lanes: %w", err)
	}

	for _, r := range promos {
		if err := r.Validate(); err != nil {
			// Kept in the snapshot: evaluation degrades a malformed rule to
			// no discount.
			c.logger.Warn().Err(err).Str("promotion", r.ID).Msg("malformed promotion in catalog")
		}
	}

	return &Snapshot{
		Promotions: promos,
		Blocks:     blocks,
		Services:   services,
		Lanes:      laneList,
		LoadedAt:   now,
	}, nil
}

// Invalidate drops the local and shared snapshot so the next read reloads
// from the store.
func (c *Catalog) Invalidate(ctx context.Context) {
	c.mu.Lock()
	c.snap = nil
	c.mu.Unlock()

	if c.cache != nil {
		if err := c.cache.Delete(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("catalog cache delete failed")
		}
	}
}
