package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/derickschaefer/pitboss/internal/api"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// newClient points a Client at srv with fast backoff and a fixed token.
func newClient(t *testing.T, srv *httptest.Server, pageSize int) *api.Client {
	t.Helper()
	return api.NewClient(api.Options{
		BaseURL:     srv.URL + "/api/v1",
		Token:       func() string { return "tok-123" },
		Timeout:     5 * time.Second,
		Rate:        1000,
		PageSize:    pageSize,
		BackoffBase: time.Millisecond,
		BackoffCap:  4 * time.Millisecond,
	})
}

// ─── Pagination ───────────────────────────────────────────────────────────────

func TestListPlatformsFollowsPages(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/api/v1/platform/get" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization: got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		if r.URL.Query().Get("sortDirection") != "asc" {
			t.Errorf("sortDirection: got %q", r.URL.Query().Get("sortDirection"))
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("pageNo"))
		switch page {
		case 1:
			fmt.Fprint(w, `{"platforms":[{"id":"p1","name":"Alpha"},{"id":"p2","name":"Beta"}]}`)
		case 2:
			fmt.Fprint(w, `{"platforms":[{"id":"p3","name":"Gamma"}]}`)
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer srv.Close()

	got, err := newClient(t, srv, 2).ListPlatforms(context.Background(), api.ListParams{})
	if err != nil {
		t.Fatalf("ListPlatforms: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 platforms, got %d", len(got))
	}
	if got[2].ID != "p3" || got[2].Name != "Gamma" {
		t.Errorf("unexpected third platform %+v", got[2])
	}
	if calls != 2 {
		t.Errorf("expected 2 page requests, got %d", calls)
	}
}

func TestListBrandsSendsParentFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("platforms") != "p1" || q.Get("operators") != "o1" {
			t.Errorf("filters: got platforms=%q operators=%q", q.Get("platforms"), q.Get("operators"))
		}
		fmt.Fprint(w, `{"brands":[{"id":"b1","name":"Lucky","platformId":"p1","operatorId":"o1","isActive":true}]}`)
	}))
	defer srv.Close()

	got, err := newClient(t, srv, 10).ListBrands(context.Background(), api.ListParams{PlatformID: "p1", OperatorID: "o1"})
	if err != nil {
		t.Fatalf("ListBrands: %v", err)
	}
	if len(got) != 1 || !got[0].Active || got[0].OperatorID != "o1" {
		t.Errorf("unexpected brands %+v", got)
	}
}

func TestListEmptyEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	got, err := newClient(t, srv, 10).ListOperators(context.Background(), api.ListParams{})
	if err != nil {
		t.Fatalf("ListOperators: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no operators, got %d", len(got))
	}
}

// ─── Retries ──────────────────────────────────────────────────────────────────

func TestRetriesServerErrorsTwice(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, `{"message":"upstream down"}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 10).ListPlatforms(context.Background(), api.ListParams{})
	if err == nil {
		t.Fatal("expected error after retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts (1 + 2 retries), got %d", calls)
	}
	var se *api.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadGateway {
		t.Errorf("expected StatusError 502, got %v", err)
	}
	if !strings.Contains(err.Error(), "upstream down") {
		t.Errorf("error should carry server message, got %v", err)
	}
}

func TestRetryRecoversAfterTransientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"games":[{"id":"g1","name":"Book of Dead","provider":"Play'n GO"}]}`)
	}))
	defer srv.Close()

	got, err := newClient(t, srv, 10).ListGames(context.Background(), api.ListParams{})
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(got) != 1 || calls != 2 {
		t.Errorf("expected 1 game after 2 calls, got %d games / %d calls", len(got), calls)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 10).ListPlatforms(context.Background(), api.ListParams{})
	var se *api.StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("4xx must not be retried, got %d calls", calls)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, 10).ListPlatforms(context.Background(), api.ListParams{})
	if !errors.Is(err, api.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestNoTokenSkipsNetwork(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := api.NewClient(api.Options{BaseURL: srv.URL, Rate: 100})
	_, err := c.ListPlatforms(context.Background(), api.ListParams{})
	if !errors.Is(err, api.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if calls != 0 {
		t.Errorf("no request should be issued without a token, got %d", calls)
	}
}

// ─── Circuit breaker ──────────────────────────────────────────────────────────

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := api.NewClient(api.Options{
		BaseURL:          srv.URL,
		Token:            func() string { return "t" },
		Rate:             1000,
		BackoffBase:      time.Millisecond,
		BackoffCap:       time.Millisecond,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	for i := 0; i < 2; i++ {
		_, _ = c.ListPlatforms(context.Background(), api.ListParams{})
	}
	if c.BreakerState() != "open" {
		t.Fatalf("expected open breaker, got %s", c.BreakerState())
	}
	before := atomic.LoadInt32(&calls)
	if _, err := c.ListPlatforms(context.Background(), api.ListParams{}); err == nil {
		t.Fatal("expected error while breaker is open")
	}
	if atomic.LoadInt32(&calls) != before {
		t.Error("open breaker should short-circuit without a request")
	}
}

// ─── Analytics / API management ───────────────────────────────────────────────

func TestGetRoundsEncodesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from") != "2024-01-01T00:00:00Z" || q.Get("brands") != "b1" || q.Get("currency") != "EUR" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"rounds":[{"playerId":"u1","gameId":"g1","brandId":"b1","operatorId":"o1","betAmount":10,"winAmount":4,"timestamp":"2024-01-01T10:15:00Z"}]}`)
	}))
	defer srv.Close()

	rounds, err := newClient(t, srv, 10).GetRounds(context.Background(), api.RoundQuery{
		From:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BrandID:  "b1",
		Currency: "EUR",
	})
	if err != nil {
		t.Fatalf("GetRounds: %v", err)
	}
	if len(rounds) != 1 || rounds[0].BetAmount != 10 || rounds[0].Timestamp.Hour() != 10 {
		t.Errorf("unexpected rounds %+v", rounds)
	}
}

func TestListAPIPermissions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("method") != "GET" || r.URL.Query().Get("pageNo") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"items":[{"id":"a1","name":"List brands","method":"GET","path":"/brand/get","status":"active"}],"total":21}`)
	}))
	defer srv.Close()

	page, err := newClient(t, srv, 10).ListAPIPermissions(context.Background(), api.APIFilter{Method: "GET", PageNo: 2})
	if err != nil {
		t.Fatalf("ListAPIPermissions: %v", err)
	}
	if page.Total != 21 || len(page.Items) != 1 || page.Items[0].Status != "active" {
		t.Errorf("unexpected page %+v", page)
	}
}
