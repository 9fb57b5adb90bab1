package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/app"
	"github.com/derickschaefer/pitboss/internal/authgate"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/server"
)

var (
	serveAddr      string
	serveLogFormat string
	serveWarm      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve filter options, cache stats and dashboards over HTTP",
	Long: `Starts the HTTP server. Routes under /api/v1 answer 503 until a session
token has settled; /healthz and /metrics are always available.

The token is resolved once at startup from --token, PITBOSS_TOKEN or the
saved session. The store is released right after so that other pitboss
commands can use it while the server runs.`,
	Example: `  pitboss serve
  pitboss serve --addr 127.0.0.1:9090 --log-format console`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		level := deps.Config.LogLevel
		if deps.Config.Debug {
			level = "debug"
		}
		logging.Init(logging.Config{Level: level, Format: serveLogFormat})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := deps.Authenticate(ctx); err != nil {
			if !errors.Is(err, app.ErrNoSession) && !errors.Is(err, authgate.ErrNotReady) {
				return err
			}
			logging.Warn().Err(err).Msg("starting without a usable session; /api/v1 will answer 503")
		}
		if err := deps.Close(); err != nil {
			logging.Warn().Err(err).Msg("releasing store")
		}

		if serveWarm && deps.Gate.Ready() {
			for _, r := range refcache.Resources {
				if err := deps.Cache.EnsureFresh(ctx, r, api.ListParams{}); err != nil {
					logging.Warn().Err(err).Str("resource", r.String()).Msg("warm-up fetch failed")
				}
			}
		}

		addr := serveAddr
		if addr == "" {
			addr = deps.Config.ListenAddr
		}
		srv := server.New(server.Options{
			Resolver: deps.Resolver,
			Cache:    deps.Cache,
			Gate:     deps.Gate,
			Rounds:   deps.Client,
			Metrics:  deps.Metrics,
			Gatherer: deps.Registry,
			Location: deps.Location(),
			Currency: deps.Config.Currency,
		})
		return srv.ListenAndServe(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: config listen_addr)")
	serveCmd.Flags().StringVar(&serveLogFormat, "log-format", "json", "log format: json|console")
	serveCmd.Flags().BoolVar(&serveWarm, "warm", true, "load all reference data before listening")
}
