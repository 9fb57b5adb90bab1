package refcache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/metrics"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// fakeFetcher serves canned lists and counts calls. When block is non-nil
// ListPlatforms waits on it before returning.
type fakeFetcher struct {
	mu        sync.Mutex
	platforms []model.Platform
	operators []model.Operator
	brands    []model.Brand
	games     []model.Game
	err       error
	block     chan struct{}
	calls     int32
}

func (f *fakeFetcher) ListPlatforms(ctx context.Context, _ api.ListParams) ([]model.Platform, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.platforms, f.err
}

func (f *fakeFetcher) ListOperators(ctx context.Context, _ api.ListParams) ([]model.Operator, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.operators, f.err
}

func (f *fakeFetcher) ListBrands(ctx context.Context, _ api.ListParams) ([]model.Brand, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.brands, f.err
}

func (f *fakeFetcher) ListGames(ctx context.Context, _ api.ListParams) ([]model.Game, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.games, f.err
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeGate struct{ ready atomic.Bool }

func (g *fakeGate) Ready() bool { return g.ready.Load() }

func readyGate() *fakeGate {
	g := &fakeGate{}
	g.ready.Store(true)
	return g
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func threePlatforms() []model.Platform {
	return []model.Platform{
		{ID: "p3", Name: "Gamma"},
		{ID: "p1", Name: "Alpha"},
		{ID: "p2", Name: "Beta"},
	}
}

func newCache(f refcache.Fetcher, g refcache.Gate, clk *clock) *refcache.Cache {
	return refcache.New(f, g, refcache.Options{Now: clk.Now})
}

// ─── Fetch / freshness ────────────────────────────────────────────────────────

func TestEmptyCacheShouldFetch(t *testing.T) {
	c := newCache(&fakeFetcher{}, readyGate(), &clock{now: time.Now()})
	for _, r := range refcache.Resources {
		if !c.ShouldFetch(r) {
			t.Errorf("%s: empty cache should need a fetch", r)
		}
		if got := c.Entities(r); len(got) != 0 {
			t.Errorf("%s: expected no entities, got %d", r, len(got))
		}
	}
}

func TestFetchPopulatesSortedOptions(t *testing.T) {
	clk := &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := newCache(&fakeFetcher{platforms: threePlatforms()}, readyGate(), clk)

	if err := c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got := len(c.Entities(refcache.Platforms)); got != 3 {
		t.Fatalf("expected 3 platforms, got %d", got)
	}
	opts := c.Options(refcache.Platforms)
	want := []string{"Alpha", "Beta", "Gamma"}
	if len(opts) != len(want) {
		t.Fatalf("expected %d options, got %d", len(want), len(opts))
	}
	for i, w := range want {
		if opts[i].Label != w {
			t.Errorf("option %d: expected %q, got %q", i, w, opts[i].Label)
		}
	}
	if opts[0].Value != "p1" {
		t.Errorf("option value should be the id, got %q", opts[0].Value)
	}
	if e := c.Entry(refcache.Platforms); !e.LastFetched.Equal(clk.Now()) || e.Loading || e.Err != nil {
		t.Errorf("unexpected entry state %+v", e)
	}
}

func TestEmptyListIsFreshData(t *testing.T) {
	f := &fakeFetcher{}
	c := newCache(f, readyGate(), &clock{now: time.Now()})
	if err := c.Fetch(context.Background(), refcache.Brands, api.ListParams{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.ShouldFetch(refcache.Brands) {
		t.Error("a successful fetch of an empty list should count as fresh until the TTL passes")
	}
	if err := c.EnsureFresh(context.Background(), refcache.Brands, api.ListParams{}); err != nil {
		t.Fatalf("EnsureFresh: %v", err)
	}
	if got := atomic.LoadInt32(&f.calls); got != 1 {
		t.Errorf("expected no refetch of an empty but fresh list, got %d calls", got)
	}
}

func TestShouldFetchFollowsTTL(t *testing.T) {
	clk := &clock{now: time.Now()}
	c := newCache(&fakeFetcher{platforms: threePlatforms()}, readyGate(), clk)

	_ = c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	if c.ShouldFetch(refcache.Platforms) {
		t.Fatal("fresh entry should not need a fetch")
	}
	clk.Advance(refcache.DefaultHierarchyTTL)
	if c.ShouldFetch(refcache.Platforms) {
		t.Fatal("entry exactly at TTL is still fresh")
	}
	clk.Advance(time.Millisecond)
	if !c.ShouldFetch(refcache.Platforms) {
		t.Fatal("entry past TTL should need a fetch")
	}
}

func TestGamesUseCatalogTTL(t *testing.T) {
	clk := &clock{now: time.Now()}
	c := newCache(&fakeFetcher{games: []model.Game{{ID: "g1", Name: "Starburst"}}}, readyGate(), clk)

	_ = c.Fetch(context.Background(), refcache.Games, api.ListParams{})
	clk.Advance(2 * time.Hour)
	if c.ShouldFetch(refcache.Games) {
		t.Fatal("game catalog should stay fresh for hours")
	}
	if c.TTL(refcache.Games) != refcache.DefaultCatalogTTL {
		t.Errorf("games TTL: got %v", c.TTL(refcache.Games))
	}
}

func TestEnsureFreshSkipsFreshEntries(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms()}
	c := newCache(f, readyGate(), &clock{now: time.Now()})

	for i := 0; i < 3; i++ {
		if err := c.EnsureFresh(context.Background(), refcache.Platforms, api.ListParams{}); err != nil {
			t.Fatal(err)
		}
	}
	if f.calls != 1 {
		t.Errorf("expected 1 network call, got %d", f.calls)
	}
}

// ─── Errors ───────────────────────────────────────────────────────────────────

func TestFailedFetchKeepsPriorData(t *testing.T) {
	clk := &clock{now: time.Now()}
	f := &fakeFetcher{platforms: threePlatforms()}
	c := newCache(f, readyGate(), clk)
	_ = c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	fetchedAt := c.Entry(refcache.Platforms).LastFetched

	boom := errors.New("connection reset")
	f.setErr(boom)
	clk.Advance(time.Minute)
	err := c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}

	e := c.Entry(refcache.Platforms)
	if !errors.Is(e.Err, boom) || e.Loading {
		t.Errorf("entry should carry the error and not be loading: %+v", e)
	}
	if e.Count != 3 || len(c.Platforms()) != 3 {
		t.Error("prior data must survive a failed fetch")
	}
	if !e.LastFetched.Equal(fetchedAt) {
		t.Error("failed fetch must not stamp LastFetched")
	}
	if !c.ShouldFetch(refcache.Platforms) {
		t.Error("errored entry should need a fetch")
	}

	f.setErr(nil)
	_ = c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	if c.Entry(refcache.Platforms).Err != nil {
		t.Error("successful fetch should clear the error")
	}
}

// ─── Gate ─────────────────────────────────────────────────────────────────────

func TestFetchSuppressedWhenNotReady(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms()}
	m := metrics.New(metrics.NewRegistry())
	c := refcache.New(f, &fakeGate{}, refcache.Options{Metrics: m})

	if err := c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}); err != nil {
		t.Fatalf("suppressed fetch should return nil, got %v", err)
	}
	if f.calls != 0 {
		t.Errorf("no network call expected, got %d", f.calls)
	}
	if got := testutil.ToFloat64(m.Suppressed.WithLabelValues("platforms")); got != 1 {
		t.Errorf("suppressed counter: expected 1, got %v", got)
	}
}

// ─── Deduplication ────────────────────────────────────────────────────────────

func TestConcurrentFetchesCollapse(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms(), block: make(chan struct{})}
	c := newCache(f, readyGate(), &clock{now: time.Now()})

	first := make(chan error, 1)
	go func() { first <- c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}) }()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Entry(refcache.Platforms).Loading {
		if time.Now().After(deadline) {
			t.Fatal("fetch never entered loading state")
		}
		time.Sleep(time.Millisecond)
	}

	// Either joins the in-flight call or finds fresh data afterwards.
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- c.EnsureFresh(context.Background(), refcache.Platforms, api.ListParams{})
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(f.block)
	wg.Wait()
	close(errs)

	if err := <-first; err != nil {
		t.Fatalf("leading fetch: %v", err)
	}
	for err := range errs {
		if err != nil {
			t.Errorf("joined fetch: %v", err)
		}
	}
	if n := atomic.LoadInt32(&f.calls); n != 1 {
		t.Errorf("expected exactly 1 network call, got %d", n)
	}
	if len(c.Platforms()) != 3 {
		t.Error("every caller should observe the populated cache")
	}
}

func TestCallerCancelDoesNotAbortFetch(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms(), block: make(chan struct{})}
	c := newCache(f, readyGate(), &clock{now: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Fetch(ctx, refcache.Platforms, api.ListParams{}) }()

	for !c.Entry(refcache.Platforms).Loading {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	close(f.block)
	deadline := time.Now().Add(2 * time.Second)
	for c.Entry(refcache.Platforms).Count != 3 {
		if time.Now().After(deadline) {
			t.Fatal("detached fetch never completed")
		}
		time.Sleep(time.Millisecond)
	}
	if c.Entry(refcache.Platforms).Loading {
		t.Error("loading should be cleared after the detached fetch")
	}
}

// ─── Clear / Label / Stats ────────────────────────────────────────────────────

func TestClearEmptiesEverything(t *testing.T) {
	f := &fakeFetcher{
		platforms: threePlatforms(),
		brands:    []model.Brand{{ID: "b1", Name: "Lucky", PlatformID: "p1", OperatorID: "o1"}},
	}
	c := newCache(f, readyGate(), &clock{now: time.Now()})
	_ = c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	_ = c.Fetch(context.Background(), refcache.Brands, api.ListParams{})

	c.Clear()
	for _, r := range refcache.Resources {
		if len(c.Entities(r)) != 0 || len(c.Options(r)) != 0 || !c.ShouldFetch(r) {
			t.Errorf("%s: expected empty entry after Clear", r)
		}
	}
	if _, ok := c.Label(refcache.Brands, "b1"); ok {
		t.Error("labels should be gone after Clear")
	}
}

func TestClearDiscardsInflightResult(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms(), block: make(chan struct{})}
	c := newCache(f, readyGate(), &clock{now: time.Now()})

	done := make(chan error, 1)
	go func() { done <- c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}) }()
	for !c.Entry(refcache.Platforms).Loading {
		time.Sleep(time.Millisecond)
	}
	c.Clear()
	close(f.block)
	<-done

	if len(c.Platforms()) != 0 {
		t.Error("a fetch started before Clear must not repopulate the cache")
	}
}

func TestFetchAfterClearStartsNewRequest(t *testing.T) {
	f := &fakeFetcher{platforms: threePlatforms(), block: make(chan struct{})}
	c := newCache(f, readyGate(), &clock{now: time.Now()})

	first := make(chan error, 1)
	go func() { first <- c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}) }()
	for !c.Entry(refcache.Platforms).Loading {
		time.Sleep(time.Millisecond)
	}
	c.Clear()

	second := make(chan error, 1)
	go func() { second <- c.Fetch(context.Background(), refcache.Platforms, api.ListParams{}) }()
	for atomic.LoadInt32(&f.calls) < 2 {
		time.Sleep(time.Millisecond)
	}
	if !c.Entry(refcache.Platforms).Loading {
		t.Error("entry should be loading while the post-Clear request is outstanding")
	}
	close(f.block)
	<-first
	if err := <-second; err != nil {
		t.Fatalf("second Fetch: %v", err)
	}

	if got := len(c.Platforms()); got != 3 {
		t.Errorf("expected 3 platforms from the post-Clear fetch, got %d", got)
	}
	if c.ShouldFetch(refcache.Platforms) {
		t.Error("cache should be fresh after the post-Clear fetch")
	}
	if c.Entry(refcache.Platforms).Loading {
		t.Error("loading should be cleared once the fetch completes")
	}
}

func TestLabelLookup(t *testing.T) {
	f := &fakeFetcher{operators: []model.Operator{
		{ID: "o1", Name: "Northwind", PlatformID: "p1"},
		{ID: "o2", Name: "", PlatformID: "p1"},
	}}
	c := newCache(f, readyGate(), &clock{now: time.Now()})
	_ = c.Fetch(context.Background(), refcache.Operators, api.ListParams{})

	if l, ok := c.Label(refcache.Operators, "o1"); !ok || l != "Northwind" {
		t.Errorf("Label(o1): got %q ok=%v", l, ok)
	}
	if l, _ := c.Label(refcache.Operators, "o2"); l != "o2" {
		t.Errorf("empty name should fall back to id, got %q", l)
	}
	if _, ok := c.Label(refcache.Operators, "missing"); ok {
		t.Error("unknown id should miss")
	}
}

func TestStatsReportsEachResource(t *testing.T) {
	clk := &clock{now: time.Now()}
	c := newCache(&fakeFetcher{platforms: threePlatforms()}, readyGate(), clk)
	_ = c.Fetch(context.Background(), refcache.Platforms, api.ListParams{})
	clk.Advance(5 * time.Minute)

	stats := c.Stats()
	if len(stats) != len(refcache.Resources) {
		t.Fatalf("expected %d rows, got %d", len(refcache.Resources), len(stats))
	}
	if stats[0].Resource != "platforms" || stats[0].Count != 3 || stats[0].Age != 5*time.Minute || stats[0].Stale {
		t.Errorf("unexpected platforms row %+v", stats[0])
	}
	if !stats[1].Stale {
		t.Error("never-fetched operators should report stale")
	}
}

// ─── Options ──────────────────────────────────────────────────────────────────

func TestDeriveOptionsDedupesAndBreaksTies(t *testing.T) {
	items := []model.Brand{
		{ID: "b2", Name: "Same"},
		{ID: "b1", Name: "Same"},
		{ID: "b2", Name: "Duplicate"},
	}
	opts, labels := refcache.DeriveOptions(items, func(b model.Brand) (string, string) { return b.ID, b.Name })
	if len(opts) != 2 {
		t.Fatalf("expected 2 options after dedupe, got %d", len(opts))
	}
	if opts[0].ID != "b1" || opts[1].ID != "b2" {
		t.Errorf("equal labels should be ordered by id, got %v", opts)
	}
	if labels["b2"] != "Same" {
		t.Errorf("first occurrence should win, got %q", labels["b2"])
	}
}

func TestParseResource(t *testing.T) {
	r, err := refcache.ParseResource(" Brands ")
	if err != nil || r != refcache.Brands {
		t.Errorf("ParseResource: got %v, %v", r, err)
	}
	if _, err := refcache.ParseResource("players"); err == nil {
		t.Error("expected error for unknown resource")
	}
}
