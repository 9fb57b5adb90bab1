// Package app wires together configuration, the API client, the auth gate,
// the reference cache and the local store into a single Deps struct that
// commands receive at runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/authgate"
	"github.com/derickschaefer/pitboss/internal/cascade"
	"github.com/derickschaefer/pitboss/internal/config"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/metrics"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/store"
)

// ErrNoSession is returned by Authenticate when neither a flag, the
// environment nor the local store supplies a token.
var ErrNoSession = errors.New("no session token: run `pitboss session login` or set " + config.EnvToken)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore succeeds.
type Deps struct {
	Config   *config.Config
	Client   *api.Client
	Gate     *authgate.Gate
	Cache    *refcache.Cache
	Resolver *cascade.Resolver
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *store.Store

	loc *time.Location
}

// New builds a Deps from resolved config. An explicit token from the config
// is handed to the gate immediately.
func New(cfg *config.Config) *Deps {
	loc, err := cfg.Location()
	if err != nil {
		logging.Warn().Err(err).Msg("falling back to local time")
		loc = time.Local
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)
	gate := authgate.New(cfg.AuthSettle)

	client := api.NewClient(api.Options{
		BaseURL:  cfg.BaseURL,
		Token:    gate.Token,
		Timeout:  cfg.Timeout,
		Rate:     cfg.Rate,
		PageSize: cfg.PageSize,
	})
	cache := refcache.New(client, gate, refcache.Options{
		HierarchyTTL: cfg.HierarchyTTL,
		CatalogTTL:   cfg.CatalogTTL,
		Metrics:      m,
	})
	gate.OnLogout(cache.Clear)

	if cfg.Token != "" {
		gate.Observe(cfg.Token)
	}

	return &Deps{
		Config:   cfg,
		Client:   client,
		Gate:     gate,
		Cache:    cache,
		Resolver: cascade.NewResolver(cache),
		Registry: reg,
		Metrics:  m,
		loc:      loc,
	}
}

// Location is the timezone used for hourly and daily bucketing.
func (d *Deps) Location() *time.Location { return d.loc }

// RequireStore opens the local store on first use.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	d.Store = s
	d.Gate.OnLogout(func() {
		if err := s.DeleteToken(); err != nil {
			logging.Warn().Err(err).Msg("could not delete stored token")
		}
	})
	return nil
}

// Authenticate resolves the session token and waits for the gate to settle.
// Without an explicit token the one saved by `session login` is restored.
func (d *Deps) Authenticate(ctx context.Context) error {
	token := d.Config.Token
	if token == "" {
		if err := d.RequireStore(); err != nil {
			logging.Warn().Err(err).Msg("session store unavailable")
		} else {
			token = d.Store.Token()
		}
	}
	if token == "" {
		return ErrNoSession
	}
	d.Gate.Observe(token)

	wait := d.Config.AuthSettle + time.Second
	wctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	if err := d.Gate.WaitReady(wctx); err != nil {
		if errors.Is(err, authgate.ErrNotReady) {
			return fmt.Errorf("session token rejected (expired?): %w", err)
		}
		return err
	}
	logging.Debug().Str("token", config.RedactedToken(token)).Msg("session ready")
	return nil
}

// Login saves token to the store and hands it to the gate.
func (d *Deps) Login(token string) error {
	if token == "" {
		return errors.New("token must not be empty")
	}
	if err := d.RequireStore(); err != nil {
		return err
	}
	if err := d.Store.PutToken(token); err != nil {
		return err
	}
	d.Gate.Observe(token)
	return nil
}

// Logout clears the gate, the reference cache and the stored token.
func (d *Deps) Logout() error {
	if err := d.RequireStore(); err != nil {
		return err
	}
	d.Gate.Logout()
	return nil
}

// Close releases the store, if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}
