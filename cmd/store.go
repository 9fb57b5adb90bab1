package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/render"
	"github.com/derickschaefer/pitboss/internal/store"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Inspect and maintain the local database",
	Long: `Commands for the local bbolt database that holds the saved session and
preferences. Reference data is never stored here.`,
}

// ─── store stats ──────────────────────────────────────────────────────────────

var storeStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show entry counts and sizes per bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		stats, err := deps.Store.Stats()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}

		format := resolveFormat(deps.Config.Format)
		if format == render.FormatTable {
			var total int64
			printSimpleTable(cmd.OutOrStdout(), []string{"BUCKET", "ENTRIES", "SIZE"}, func(add func(...string)) {
				for _, s := range stats {
					total += s.Bytes
					add(s.Name, strconv.Itoa(s.Count), humanBytes(s.Bytes))
				}
			})
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s of data  •  %s\n", humanBytes(total), deps.Store.Path())
			return nil
		}

		table := render.Table{Header: []string{"BUCKET", "ENTRIES", "BYTES"}}
		for _, s := range stats {
			table.Rows = append(table.Rows, []string{s.Name, strconv.Itoa(s.Count), strconv.FormatInt(s.Bytes, 10)})
		}
		return render.Render(cmd.OutOrStdout(), tableResult("store stats", table), format)
	},
}

// ─── store clear ──────────────────────────────────────────────────────────────

var storeClearBucket string

var storeClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every entry of one bucket, or of all buckets",
	Example: `  pitboss store clear --bucket prefs
  pitboss store clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if storeClearBucket != "" {
			err = deps.Store.ClearBucket(storeClearBucket)
		} else {
			err = deps.Store.ClearAll()
		}
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			what := storeClearBucket
			if what == "" {
				what = fmt.Sprintf("all buckets %v", store.AllBuckets)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s\n", what)
		}
		return nil
	},
}

// ─── store compact ────────────────────────────────────────────────────────────

var storeCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rewrite the database file to reclaim free pages",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		before, after, err := deps.Store.Compact()
		if err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Compacted %s: %s → %s\n",
				deps.Store.Path(), humanBytes(before), humanBytes(after))
		}
		return nil
	},
}

// ─── Registration ─────────────────────────────────────────────────────────────

func init() {
	rootCmd.AddCommand(storeCmd)
	storeCmd.AddCommand(storeStatsCmd)
	storeCmd.AddCommand(storeClearCmd)
	storeCmd.AddCommand(storeCompactCmd)

	storeClearCmd.Flags().StringVar(&storeClearBucket, "bucket", "",
		"bucket to clear: session|prefs (default: all)")
}
