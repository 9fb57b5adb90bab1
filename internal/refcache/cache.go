// Package refcache holds the in-memory reference-data cache: platforms,
// operators, brands and the game catalog.
//
// Each resource has one entry. Entries are replaced whole under a mutex, so a
// reader sees either the previous list or the new one, never a mix. Fetches
// for the same resource are collapsed with singleflight, and the network call
// runs detached from the caller's cancellation so an abandoned caller never
// leaves an entry stuck in the loading state.
package refcache

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/metrics"
	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Resources ────────────────────────────────────────────────────────────────

// Resource identifies one cached list.
type Resource int

const (
	Platforms Resource = iota
	Operators
	Brands
	Games
)

// Resources lists every resource in hierarchy order.
var Resources = []Resource{Platforms, Operators, Brands, Games}

var resourceNames = map[Resource]string{
	Platforms: "platforms",
	Operators: "operators",
	Brands:    "brands",
	Games:     "games",
}

func (r Resource) String() string {
	if s, ok := resourceNames[r]; ok {
		return s
	}
	return fmt.Sprintf("resource(%d)", int(r))
}

// ParseResource maps a name such as "brands" to its Resource.
func ParseResource(s string) (Resource, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range resourceNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q (expected platforms, operators, brands or games)", s)
}

// ─── Collaborators ────────────────────────────────────────────────────────────

// Fetcher loads full reference lists. *api.Client satisfies it.
type Fetcher interface {
	ListPlatforms(ctx context.Context, p api.ListParams) ([]model.Platform, error)
	ListOperators(ctx context.Context, p api.ListParams) ([]model.Operator, error)
	ListBrands(ctx context.Context, p api.ListParams) ([]model.Brand, error)
	ListGames(ctx context.Context, p api.ListParams) ([]model.Game, error)
}

// Gate reports whether network work may proceed. *authgate.Gate satisfies it.
type Gate interface {
	Ready() bool
}

// Options configures a Cache. Zero TTLs fall back to the defaults.
type Options struct {
	HierarchyTTL time.Duration // platforms, operators, brands
	CatalogTTL   time.Duration // games
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

const (
	DefaultHierarchyTTL = 30 * time.Minute
	DefaultCatalogTTL   = 12 * time.Hour
)

// ─── Entries ──────────────────────────────────────────────────────────────────

// entry is immutable once published; writers build a new one and swap it in.
type entry struct {
	data        any // []model.Platform, []model.Operator, ...
	count       int
	options     []model.FilterOption
	labels      map[string]string
	loading     bool
	err         error
	lastFetched time.Time
}

// EntrySnapshot is the externally visible state of one entry.
type EntrySnapshot struct {
	Resource    Resource
	Count       int
	Loading     bool
	Err         error
	LastFetched time.Time
}

// ResourceStats is one row of Cache.Stats.
type ResourceStats struct {
	Resource    string        `json:"resource"`
	Count       int           `json:"count"`
	Loading     bool          `json:"loading"`
	Stale       bool          `json:"stale"`
	Error       string        `json:"error,omitempty"`
	LastFetched time.Time     `json:"last_fetched"`
	Age         time.Duration `json:"age"`
	TTL         time.Duration `json:"ttl"`
}

// Cache is the reference-data cache.
type Cache struct {
	fetcher Fetcher
	gate    Gate
	metrics *metrics.Metrics
	now     func() time.Time
	ttl     map[Resource]time.Duration

	group singleflight.Group

	mu      sync.RWMutex
	entries map[Resource]*entry
	gen     uint64 // bumped by Clear; results from older generations are dropped
}

// New returns an empty cache. gate may be nil, meaning always ready.
func New(fetcher Fetcher, gate Gate, opts Options) *Cache {
	if opts.HierarchyTTL <= 0 {
		opts.HierarchyTTL = DefaultHierarchyTTL
	}
	if opts.CatalogTTL <= 0 {
		opts.CatalogTTL = DefaultCatalogTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &Cache{
		fetcher: fetcher,
		gate:    gate,
		metrics: opts.Metrics,
		now:     opts.Now,
		ttl: map[Resource]time.Duration{
			Platforms: opts.HierarchyTTL,
			Operators: opts.HierarchyTTL,
			Brands:    opts.HierarchyTTL,
			Games:     opts.CatalogTTL,
		},
	}
	c.entries = emptyEntries()
	return c
}

func emptyEntries() map[Resource]*entry {
	m := make(map[Resource]*entry, len(Resources))
	for _, r := range Resources {
		m[r] = &entry{}
	}
	return m
}

func (c *Cache) get(r Resource) *entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[r]; ok {
		return e
	}
	return &entry{}
}

// update copies the current entry, applies fn and publishes the copy.
// It is skipped when the cache was cleared after gen was taken.
func (c *Cache) update(r Resource, gen uint64, fn func(e *entry)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	next := *c.entries[r]
	fn(&next)
	c.entries[r] = &next
	return true
}

// ─── Reads ────────────────────────────────────────────────────────────────────

// TTL returns the freshness window of r.
func (c *Cache) TTL(r Resource) time.Duration {
	return c.ttl[r]
}

func (c *Cache) stale(r Resource, e *entry) bool {
	if e.lastFetched.IsZero() {
		return true
	}
	return c.now().Sub(e.lastFetched) > c.ttl[r]
}

// ShouldFetch reports whether r has never been loaded, is past its TTL, or
// its last fetch failed.
func (c *Cache) ShouldFetch(r Resource) bool {
	e := c.get(r)
	return e.lastFetched.IsZero() || c.stale(r, e) || e.err != nil
}

// Entities returns the cached list of r as []any.
func (c *Cache) Entities(r Resource) []any {
	switch r {
	case Platforms:
		return toAny(c.Platforms())
	case Operators:
		return toAny(c.Operators())
	case Brands:
		return toAny(c.Brands())
	case Games:
		return toAny(c.Games())
	}
	return nil
}

// Platforms returns a copy of the cached platforms.
func (c *Cache) Platforms() []model.Platform { return typed[model.Platform](c.get(Platforms)) }

// Operators returns a copy of the cached operators.
func (c *Cache) Operators() []model.Operator { return typed[model.Operator](c.get(Operators)) }

// Brands returns a copy of the cached brands.
func (c *Cache) Brands() []model.Brand { return typed[model.Brand](c.get(Brands)) }

// Games returns a copy of the cached game catalog.
func (c *Cache) Games() []model.Game { return typed[model.Game](c.get(Games)) }

func typed[T any](e *entry) []T {
	src, _ := e.data.([]T)
	out := make([]T, len(src))
	copy(out, src)
	return out
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// Options returns the derived filter options of r, sorted by label.
func (c *Cache) Options(r Resource) []model.FilterOption {
	e := c.get(r)
	out := make([]model.FilterOption, len(e.options))
	copy(out, e.options)
	return out
}

// Label returns the display label of id within r.
func (c *Cache) Label(r Resource, id string) (string, bool) {
	l, ok := c.get(r).labels[id]
	return l, ok
}

// Entry returns a snapshot of r's loading, error and freshness state.
func (c *Cache) Entry(r Resource) EntrySnapshot {
	e := c.get(r)
	return EntrySnapshot{
		Resource:    r,
		Count:       e.count,
		Loading:     e.loading,
		Err:         e.err,
		LastFetched: e.lastFetched,
	}
}

// Stats returns one row per resource in hierarchy order.
func (c *Cache) Stats() []ResourceStats {
	now := c.now()
	out := make([]ResourceStats, 0, len(Resources))
	for _, r := range Resources {
		e := c.get(r)
		st := ResourceStats{
			Resource:    r.String(),
			Count:       e.count,
			Loading:     e.loading,
			Stale:       c.stale(r, e),
			LastFetched: e.lastFetched,
			TTL:         c.ttl[r],
		}
		if !e.lastFetched.IsZero() {
			st.Age = now.Sub(e.lastFetched)
		}
		if e.err != nil {
			st.Error = e.err.Error()
		}
		out = append(out, st)
	}
	return out
}

// ─── Writes ───────────────────────────────────────────────────────────────────

// Clear empties every entry. Fetches still in flight are discarded when
// they complete.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = emptyEntries()
	c.gen++
	c.mu.Unlock()
	for _, r := range Resources {
		c.metrics.SetEntities(r.String(), 0)
	}
	logging.Debug().Msg("reference cache cleared")
}

// EnsureFresh fetches r only when ShouldFetch reports true.
func (c *Cache) EnsureFresh(ctx context.Context, r Resource, p api.ListParams) error {
	if !c.ShouldFetch(r) {
		return nil
	}
	return c.Fetch(ctx, r, p)
}

// Fetch loads r from the network and replaces its entry.
//
// It returns nil without a request while the gate is not ready. A call made
// while another fetch of r is in flight joins that fetch and gets its
// result; the params of the leading call win. Calls made after Clear never
// join a flight started before it. If ctx ends first, Fetch
// returns ctx.Err() but the fetch still completes and updates the cache.
func (c *Cache) Fetch(ctx context.Context, r Resource, p api.ListParams) error {
	if c.gate != nil && !c.gate.Ready() {
		c.metrics.RecordSuppressed(r.String())
		logging.Debug().Str("resource", r.String()).Msg("fetch suppressed: session not ready")
		return nil
	}

	c.mu.RLock()
	gen := c.gen
	c.mu.RUnlock()

	var led atomic.Bool
	detached := context.WithoutCancel(ctx)
	key := fmt.Sprintf("%s#%d", r, gen)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		led.Store(true)
		return nil, c.load(detached, r, p, gen)
	})

	select {
	case res := <-ch:
		if !led.Load() {
			c.metrics.RecordCollapsed(r.String())
		}
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Cache) load(ctx context.Context, r Resource, p api.ListParams, gen uint64) error {
	c.update(r, gen, func(e *entry) { e.loading = true })

	start := time.Now()
	next, err := c.fetch(ctx, r, p)
	c.metrics.RecordFetch(r.String(), err, time.Since(start))

	if err != nil {
		c.update(r, gen, func(e *entry) {
			e.loading = false
			e.err = err
		})
		logging.Warn().Err(err).Str("resource", r.String()).Msg("reference fetch failed; keeping cached data")
		return err
	}

	next.lastFetched = c.now()
	if c.update(r, gen, func(e *entry) { *e = *next }) {
		c.metrics.SetEntities(r.String(), next.count)
		logging.Debug().Str("resource", r.String()).Int("count", next.count).Msg("reference data refreshed")
	}
	return nil
}

// fetch calls the Fetcher for r and builds a fully derived entry.
func (c *Cache) fetch(ctx context.Context, r Resource, p api.ListParams) (*entry, error) {
	switch r {
	case Platforms:
		items, err := c.fetcher.ListPlatforms(ctx, p)
		if err != nil {
			return nil, err
		}
		return build(items, func(v model.Platform) (string, string) { return v.ID, v.Name }), nil
	case Operators:
		items, err := c.fetcher.ListOperators(ctx, p)
		if err != nil {
			return nil, err
		}
		return build(items, func(v model.Operator) (string, string) { return v.ID, v.Name }), nil
	case Brands:
		items, err := c.fetcher.ListBrands(ctx, p)
		if err != nil {
			return nil, err
		}
		return build(items, func(v model.Brand) (string, string) { return v.ID, v.Name }), nil
	case Games:
		items, err := c.fetcher.ListGames(ctx, p)
		if err != nil {
			return nil, err
		}
		return build(items, func(v model.Game) (string, string) { return v.ID, v.Name }), nil
	}
	return nil, fmt.Errorf("unknown resource %s", r)
}

// ─── Option derivation ────────────────────────────────────────────────────────

// build wraps items in a new entry with its options and label index.
func build[T any](items []T, key func(T) (id, label string)) *entry {
	data := make([]T, len(items))
	copy(data, items)
	opts, labels := DeriveOptions(items, key)
	return &entry{data: data, count: len(data), options: opts, labels: labels}
}

// DeriveOptions projects items into filter options. Duplicate ids keep
// their first occurrence; an empty label falls back to the id. The result
// is sorted by label, ties broken by id.
func DeriveOptions[T any](items []T, key func(T) (id, label string)) ([]model.FilterOption, map[string]string) {
	opts := make([]model.FilterOption, 0, len(items))
	labels := make(map[string]string, len(items))
	for _, it := range items {
		id, label := key(it)
		if _, dup := labels[id]; dup {
			continue
		}
		if label == "" {
			label = id
		}
		labels[id] = label
		opts = append(opts, model.FilterOption{ID: id, Label: label, Value: id})
	}
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Label != opts[j].Label {
			return opts[i].Label < opts[j].Label
		}
		return opts[i].ID < opts[j].ID
	})
	return opts, labels
}
