// Package server exposes the resolver, the reference cache and the dashboard
// assembler over HTTP.
//
// Routes:
//
//	GET  /healthz                     liveness plus auth gate state
//	GET  /metrics                     Prometheus exposition
//	GET  /api/v1/options/platforms
//	GET  /api/v1/options/operators    ?platform=
//	GET  /api/v1/options/brands       ?platform=&operator=
//	GET  /api/v1/selection            ?platform=&operator=&brand=
//	GET  /api/v1/cache                per-resource cache stats
//	POST /api/v1/cache/refresh        ?resource= (all when empty)
//	GET  /api/v1/dashboard            ?from=&to=&platform=&operator=&brand=
//	POST /api/v1/dashboard            body: JSON array of rounds
//
// Every route that reaches the upstream API answers 503 while the auth gate
// is not ready.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/authgate"
	"github.com/derickschaefer/pitboss/internal/cascade"
	"github.com/derickschaefer/pitboss/internal/dashboard"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/metrics"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/pipeline"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/util"
)

const (
	maxBodyBytes    = 32 << 20
	shutdownTimeout = 10 * time.Second
)

// Options wires a Server to its collaborators.
type Options struct {
	Resolver *cascade.Resolver
	Cache    *refcache.Cache
	Gate     *authgate.Gate
	Rounds   dashboard.RoundsFetcher
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Location *time.Location
	Currency string
	TopN     int
}

// Server is the HTTP surface.
type Server struct {
	opts     Options
	validate *validator.Validate
}

// New returns a Server. Location defaults to time.Local.
func New(opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	return &Server{opts: opts, validate: validator.New()}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/dashboard", s.postDashboard)

		r.Group(func(r chi.Router) {
			r.Use(s.requireReady)
			r.Get("/options/platforms", s.platformOptions)
			r.Get("/options/operators", s.operatorOptions)
			r.Get("/options/brands", s.brandOptions)
			r.Get("/selection", s.selection)
			r.Get("/cache", s.cacheStats)
			r.Post("/cache/refresh", s.cacheRefresh)
			r.Get("/dashboard", s.getDashboard)
		})
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("http server listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ─── Middleware ───────────────────────────────────────────────────────────────

// observe logs each request and counts it by route pattern and status code.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		s.opts.Metrics.RecordRequest(route, strconv.Itoa(status))
		logging.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", time.Since(start)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func (s *Server) requireReady(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Gate != nil && !s.opts.Gate.Ready() {
			writeNotReady(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	state := "ready"
	if s.opts.Gate != nil {
		state = s.opts.Gate.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "auth": state})
}

func (s *Server) platformOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Resolver.PlatformOptions(r.Context()))
}

func (s *Server) operatorOptions(w http.ResponseWriter, r *http.Request) {
	platformID := r.URL.Query().Get("platform")
	writeJSON(w, http.StatusOK, s.opts.Resolver.OperatorOptions(r.Context(), platformID))
}

func (s *Server) brandOptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.opts.Resolver.BrandOptions(r.Context(), q.Get("platform"), q.Get("operator")))
}

type selectionResponse struct {
	Selection cascade.Selection `json:"selection"`
	Reset     []cascade.Field   `json:"reset"`
	Complete  bool              `json:"complete"`
}

// selection applies platform, operator and brand in order and reports the
// levels that were cleared because they did not belong to their parent.
func (s *Server) selection(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()
	platformID, operatorID, brandID := q.Get("platform"), q.Get("operator"), q.Get("brand")

	// Ensure the hierarchy is loaded before validating against it.
	if platformID != "" {
		s.opts.Resolver.PlatformOptions(ctx)
		s.opts.Resolver.OperatorOptions(ctx, platformID)
		if operatorID != "" {
			s.opts.Resolver.BrandOptions(ctx, platformID, operatorID)
		}
	}

	sel, reset := cascade.Selection{}.SelectPlatform(s.opts.Resolver, platformID)
	var more []cascade.Field
	var err error
	if sel, more, err = sel.SelectOperator(s.opts.Resolver, operatorID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reset = append(reset, more...)
	if sel.OperatorID == "" && brandID != "" {
		reset = append(reset, cascade.FieldBrand)
		brandID = ""
	}
	if sel, more, err = sel.SelectBrand(s.opts.Resolver, brandID); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reset = append(reset, more...)
	if reset == nil {
		reset = []cascade.Field{}
	}
	writeJSON(w, http.StatusOK, selectionResponse{Selection: sel, Reset: reset, Complete: sel.Complete()})
}

func (s *Server) cacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Cache.Stats())
}

func (s *Server) cacheRefresh(w http.ResponseWriter, r *http.Request) {
	resources := refcache.Resources
	if name := r.URL.Query().Get("resource"); name != "" {
		res, err := refcache.ParseResource(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		resources = []refcache.Resource{res}
	}
	var errs util.MultiError
	for _, res := range resources {
		errs.Add(s.opts.Cache.Fetch(r.Context(), res, api.ListParams{}))
	}
	if err := errs.Err(); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Cache.Stats())
}

// dashboardQuery holds the shared query parameters of both dashboard routes.
type dashboardQuery struct {
	From       string `validate:"omitempty,max=40"`
	To         string `validate:"omitempty,max=40"`
	PlatformID string `validate:"omitempty,max=128"`
	OperatorID string `validate:"omitempty,max=128"`
	BrandID    string `validate:"omitempty,max=128"`
	TopN       int    `validate:"gte=0,lte=1000"`
}

func (s *Server) parseDashboardQuery(r *http.Request) (dashboard.Filter, int, error) {
	q := r.URL.Query()
	dq := dashboardQuery{
		From:       q.Get("from"),
		To:         q.Get("to"),
		PlatformID: q.Get("platform"),
		OperatorID: q.Get("operator"),
		BrandID:    q.Get("brand"),
	}
	if v := q.Get("top"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return dashboard.Filter{}, 0, fmt.Errorf("top: %w", err)
		}
		dq.TopN = n
	}
	if err := s.validate.Struct(dq); err != nil {
		return dashboard.Filter{}, 0, err
	}
	from, to, err := util.ParseWindow(dq.From, dq.To, s.opts.Location)
	if err != nil {
		return dashboard.Filter{}, 0, err
	}
	return dashboard.Filter{
		PlatformID: dq.PlatformID,
		OperatorID: dq.OperatorID,
		BrandID:    dq.BrandID,
		From:       from,
		To:         to,
	}, dq.TopN, nil
}

func (s *Server) assemble(records []model.RoundRecord, f dashboard.Filter, topN int) dashboard.View {
	if topN == 0 {
		topN = s.opts.TopN
	}
	return dashboard.Assemble(f.Apply(records), s.opts.Cache, dashboard.Options{
		Location:   s.opts.Location,
		TopN:       topN,
		DenseHours: true,
		Currency:   s.opts.Currency,
	})
}

func (s *Server) getDashboard(w http.ResponseWriter, r *http.Request) {
	f, topN, err := s.parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rounds, err := dashboard.Fetch(r.Context(), s.opts.Rounds, s.opts.Gate, api.RoundQuery{
		From:       f.From,
		To:         f.To,
		PlatformID: f.PlatformID,
		OperatorID: f.OperatorID,
		BrandID:    f.BrandID,
		Currency:   s.opts.Currency,
	})
	switch {
	case errors.Is(err, authgate.ErrNotReady):
		writeNotReady(w)
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, s.assemble(rounds, f, topN))
}

func (s *Server) postDashboard(w http.ResponseWriter, r *http.Request) {
	f, topN, err := s.parseDashboardQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	rounds, err := pipeline.DecodeArray(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.assemble(rounds, f, topN))
}

// ─── Response helpers ─────────────────────────────────────────────────────────

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("encoding response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeNotReady(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "not ready"})
}
