package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/app"
	"github.com/derickschaefer/pitboss/internal/chart"
	"github.com/derickschaefer/pitboss/internal/dashboard"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/pipeline"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/render"
	"github.com/derickschaefer/pitboss/internal/util"
)

var (
	dashInput    string
	dashFrom     string
	dashTo       string
	dashPlatform string
	dashOperator string
	dashBrand    string
	dashTop      int
	dashDense    bool
	dashChart    bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Assemble the analytics dashboard from raw rounds",
	Long: `Builds the dashboard view: totals with house margin, the hourly bet/GGR/
turnover series, brand and operator breakdowns, top games, top players,
winners and unique players per brand.

Rounds are fetched from the analytics API for the selected window and
filters. With --input, rounds are read from a JSONL file or JSON array
instead ("-" reads stdin) and no session is needed; labels are resolved
from the reference data when a session is available.

Hours and days are bucketed in the configured timezone.`,
	Example: `  pitboss dashboard --from 2024-01-01 --to 2024-01-07
  pitboss dashboard --platform p1 --operator o1 --top 5 --format json
  pitboss dashboard --input rounds.jsonl --chart
  cat rounds.jsonl | pitboss dashboard --input - --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		loc := deps.Location()
		from, to, err := util.ParseWindow(dashFrom, dashTo, loc)
		if err != nil {
			return err
		}
		filter := dashboard.Filter{
			PlatformID: dashPlatform,
			OperatorID: dashOperator,
			BrandID:    dashBrand,
			From:       from,
			To:         to,
		}

		start := time.Now()
		var rounds []model.RoundRecord
		var labels dashboard.LabelSource
		var warnings util.MultiError

		if dashInput != "" {
			rounds, err = readRoundsInput(dashInput)
			if err != nil {
				return err
			}
			if err := deps.Authenticate(ctx); err == nil {
				loadLabels(ctx, deps, &warnings)
				labels = deps.Cache
			} else {
				logging.Debug().Err(err).Msg("no session; labels fall back to ids")
			}
		} else {
			ok, err := authenticate(ctx, cmd, deps)
			if err != nil || !ok {
				return err
			}
			rounds, err = dashboard.Fetch(ctx, deps.Client, deps.Gate, api.RoundQuery{
				From:       from,
				To:         to,
				PlatformID: dashPlatform,
				OperatorID: dashOperator,
				BrandID:    dashBrand,
				Currency:   deps.Config.Currency,
			})
			if err != nil {
				return err
			}
			loadLabels(ctx, deps, &warnings)
			labels = deps.Cache
		}

		view := dashboard.Assemble(filter.Apply(rounds), labels, dashboard.Options{
			Location:   loc,
			TopN:       dashTop,
			DenseHours: dashDense,
			Currency:   deps.Config.Currency,
		})

		result := newResult(model.KindDashboard, "dashboard", &view, view.Totals.Rounds, start)
		for _, e := range warnings.Errors {
			result.Warnings = append(result.Warnings, e.Error())
		}
		if err := emit(cmd, deps, result); err != nil {
			return err
		}
		if dashChart && resolveFormat(deps.Config.Format) == render.FormatTable {
			return drawCharts(cmd.OutOrStdout(), &view)
		}
		return nil
	},
}

// readRoundsInput reads rounds from path, or from stdin when path is "-".
func readRoundsInput(path string) ([]model.RoundRecord, error) {
	if path == "-" {
		if pipeline.IsTTY(os.Stdin) {
			logging.Warn().Msg("reading rounds from the terminal; end input with Ctrl-D")
		}
		return pipeline.ReadRounds(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening input: %w", err)
	}
	defer f.Close()
	return pipeline.ReadRounds(f)
}

// loadLabels warms the resources whose labels the dashboard shows. Failures
// become warnings; the affected rows show raw ids.
func loadLabels(ctx context.Context, deps *app.Deps, warnings *util.MultiError) {
	for _, r := range []refcache.Resource{refcache.Operators, refcache.Brands, refcache.Games} {
		if err := deps.Cache.EnsureFresh(ctx, r, api.ListParams{}); err != nil {
			warnings.Add(fmt.Errorf("%s labels unavailable: %w", r, err))
		}
	}
}

// drawCharts renders the hourly GGR bars and, for multi-day windows, the
// daily GGR curve.
func drawCharts(w io.Writer, v *dashboard.View) error {
	if len(v.Hourly.GGR) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	if err := chart.Bar(w, "GGR by hour", v.Hourly.GGR, chart.BarOptions{}); err != nil {
		return err
	}
	if len(v.Daily) >= 2 {
		fmt.Fprintln(w)
		return chart.Plot(w, "Daily GGR", v.Daily, chart.PlotOptions{})
	}
	return nil
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	f := dashboardCmd.Flags()
	f.StringVar(&dashInput, "input", "", `read rounds from a JSONL/JSON file ("-" for stdin) instead of the API`)
	f.StringVar(&dashFrom, "from", "", "window start (YYYY-MM-DD or RFC3339)")
	f.StringVar(&dashTo, "to", "", "window end; a bare date includes that whole day")
	f.StringVar(&dashPlatform, "platform", "", "platform id")
	f.StringVar(&dashOperator, "operator", "", "operator id")
	f.StringVar(&dashBrand, "brand", "", "brand id")
	f.IntVar(&dashTop, "top", dashboard.DefaultTopN, "leaderboard length")
	f.BoolVar(&dashDense, "dense", false, "zero-fill the hourly series to 24 hours")
	f.BoolVar(&dashChart, "chart", false, "draw ASCII charts below the tables (table format only)")
}
