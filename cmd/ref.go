package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/app"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/util"
)

var refCmd = &cobra.Command{
	Use:   "ref",
	Short: "List reference data: platforms, operators, brands and games",
	Long: `Commands for listing the reference hierarchy.

Platforms contain operators, operators contain brands. The game catalog is
independent of the hierarchy and changes rarely.

With --options the output is the display-ready projection used by the
dashboard filters: id and label, de-duplicated and sorted by label.`,
}

var (
	refPlatform string
	refOperator string
	refOptions  bool
)

// ─── ref platforms ────────────────────────────────────────────────────────────

var refPlatformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List platforms",
	Example: `  pitboss ref platforms
  pitboss ref platforms --options --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRef(cmd, refcache.Platforms, func(ctx context.Context, deps *app.Deps) (string, interface{}, int) {
			if refOptions {
				opts := deps.Resolver.PlatformOptions(ctx)
				return model.KindOptions, opts, len(opts)
			}
			ps := deps.Cache.Platforms()
			return model.KindPlatforms, ps, len(ps)
		})
	},
}

// ─── ref operators ────────────────────────────────────────────────────────────

var refOperatorsCmd = &cobra.Command{
	Use:   "operators",
	Short: "List operators, optionally those of one platform",
	Example: `  pitboss ref operators
  pitboss ref operators --platform p1 --options`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if refOptions && refPlatform == "" {
			return fmt.Errorf("--options requires --platform")
		}
		return runRef(cmd, refcache.Operators, func(ctx context.Context, deps *app.Deps) (string, interface{}, int) {
			if refOptions {
				opts := deps.Resolver.OperatorOptions(ctx, refPlatform)
				return model.KindOptions, opts, len(opts)
			}
			var out []model.Operator
			for _, op := range deps.Cache.Operators() {
				if refPlatform == "" || op.PlatformID == refPlatform {
					out = append(out, op)
				}
			}
			return model.KindOperators, out, len(out)
		})
	},
}

// ─── ref brands ───────────────────────────────────────────────────────────────

var refBrandsCmd = &cobra.Command{
	Use:   "brands",
	Short: "List brands, optionally those of one platform and operator",
	Example: `  pitboss ref brands
  pitboss ref brands --platform p1 --operator o1 --options`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if refOptions && (refPlatform == "" || refOperator == "") {
			return fmt.Errorf("--options requires --platform and --operator")
		}
		return runRef(cmd, refcache.Brands, func(ctx context.Context, deps *app.Deps) (string, interface{}, int) {
			if refOptions {
				opts := deps.Resolver.BrandOptions(ctx, refPlatform, refOperator)
				return model.KindOptions, opts, len(opts)
			}
			var out []model.Brand
			for _, b := range deps.Cache.Brands() {
				if refPlatform != "" && b.PlatformID != refPlatform {
					continue
				}
				if refOperator != "" && b.OperatorID != refOperator {
					continue
				}
				out = append(out, b)
			}
			return model.KindBrands, out, len(out)
		})
	},
}

// ─── ref games ────────────────────────────────────────────────────────────────

var refGamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List the game catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRef(cmd, refcache.Games, func(ctx context.Context, deps *app.Deps) (string, interface{}, int) {
			if refOptions {
				opts := deps.Cache.Options(refcache.Games)
				return model.KindOptions, opts, len(opts)
			}
			gs := deps.Cache.Games()
			return model.KindGames, gs, len(gs)
		})
	},
}

// ─── ref stats ────────────────────────────────────────────────────────────────

var refStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Load every resource and show cache entry stats",
	Long: `Loads all four resources into the in-process cache and prints one row per
resource: entity count, age, TTL, staleness and the last error. Failures are
reported in the ERROR column rather than aborting the command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		ok, err := authenticate(ctx, cmd, deps)
		if err != nil || !ok {
			return err
		}

		start := time.Now()
		var errs util.MultiError
		for _, r := range refcache.Resources {
			errs.Add(deps.Cache.EnsureFresh(ctx, r, api.ListParams{}))
		}
		stats := deps.Cache.Stats()
		result := newResult(model.KindCacheStats, "ref stats", stats, len(stats), start)
		for _, e := range errs.Errors {
			result.Warnings = append(result.Warnings, e.Error())
		}
		return emit(cmd, deps, result)
	},
}

// runRef authenticates, refreshes r and renders what build returns.
func runRef(cmd *cobra.Command, r refcache.Resource, build func(context.Context, *app.Deps) (string, interface{}, int)) error {
	deps, err := buildDeps()
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := cmd.Context()
	ok, err := authenticate(ctx, cmd, deps)
	if err != nil || !ok {
		return err
	}

	start := time.Now()
	if err := deps.Cache.EnsureFresh(ctx, r, api.ListParams{}); err != nil {
		return fmt.Errorf("loading %s: %w", r, err)
	}
	kind, data, n := build(ctx, deps)
	return emit(cmd, deps, newResult(kind, "ref "+r.String(), data, n, start))
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(refCmd)
	for _, c := range []*cobra.Command{refPlatformsCmd, refOperatorsCmd, refBrandsCmd, refGamesCmd} {
		c.Flags().BoolVar(&refOptions, "options", false, "print id/label filter options instead of full records")
		refCmd.AddCommand(c)
	}
	refCmd.AddCommand(refStatsCmd)

	refOperatorsCmd.Flags().StringVar(&refPlatform, "platform", "", "platform id")
	refBrandsCmd.Flags().StringVar(&refPlatform, "platform", "", "platform id")
	refBrandsCmd.Flags().StringVar(&refOperator, "operator", "", "operator id")
}
