package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/render"
	"github.com/derickschaefer/pitboss/internal/store"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Read and write UI preferences",
	Long: `Preferences persist across restarts in the local store. Only these keys
are accepted: ` + strings.Join(store.PrefKeys, ", ") + `.`,
}

var prefsGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Print one preference",
	Args:      cobra.ExactArgs(1),
	ValidArgs: store.PrefKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		val, ok, err := deps.Store.Pref(args[0])
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		if !ok {
			return fmt.Errorf("preference %q is not set", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), val)
		return nil
	},
}

var prefsSetCmd = &cobra.Command{
	Use:       "set <key> <value>",
	Short:     "Save one preference",
	Example:   `  pitboss prefs set theme dark`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: store.PrefKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Store.SetPref(args[0], args[1]); err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Set %s = %s\n", args[0], args[1])
		}
		return nil
	},
}

var prefsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved preferences",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		if err := deps.RequireStore(); err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		prefs, err := deps.Store.Prefs()
		if err != nil {
			return fmt.Errorf("reading store: %w", err)
		}
		keys := make([]string, 0, len(prefs))
		for k := range prefs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		table := render.Table{Header: []string{"KEY", "VALUE"}}
		for _, k := range keys {
			table.Rows = append(table.Rows, []string{k, prefs[k]})
		}
		return emit(cmd, deps, newResult(model.KindTable, "prefs list", table, len(keys), start))
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.AddCommand(prefsGetCmd)
	prefsCmd.AddCommand(prefsSetCmd)
	prefsCmd.AddCommand(prefsListCmd)
}
