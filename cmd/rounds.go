package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/dashboard"
	"github.com/derickschaefer/pitboss/internal/pipeline"
	"github.com/derickschaefer/pitboss/internal/util"
)

var (
	roundsFrom     string
	roundsTo       string
	roundsPlatform string
	roundsOperator string
	roundsBrand    string
)

var roundsCmd = &cobra.Command{
	Use:   "rounds",
	Short: "Export raw rounds as JSONL",
	Long: `Fetches the raw rounds for a window and writes one JSON object per line.
The output can be saved and replayed later with 'pitboss dashboard --input'.`,
	Example: `  pitboss rounds --from 2024-01-01 --to 2024-01-01 --out jan1.jsonl
  pitboss rounds --from 2024-01-01 --platform p1 | pitboss dashboard --input -`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		from, to, err := util.ParseWindow(roundsFrom, roundsTo, deps.Location())
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		ok, err := authenticate(ctx, cmd, deps)
		if err != nil || !ok {
			return err
		}

		rounds, err := dashboard.Fetch(ctx, deps.Client, deps.Gate, api.RoundQuery{
			From:       from,
			To:         to,
			PlatformID: roundsPlatform,
			OperatorID: roundsOperator,
			BrandID:    roundsBrand,
			Currency:   deps.Config.Currency,
		})
		if err != nil {
			return err
		}

		if globalFlags.Out == "" && pipeline.IsTTY(os.Stdout) && !deps.Config.Quiet {
			fmt.Fprintln(cmd.ErrOrStderr(), "⚠  writing JSONL to the terminal; use --out or a pipe")
		}
		w, closeFn, err := outputWriter(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if err := pipeline.WriteJSONL(w, rounds); err != nil {
			closeFn()
			return err
		}
		if err := closeFn(); err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ %d rounds  %s – %s\n",
				len(rounds), windowEdge(from), windowEdge(to))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(roundsCmd)
	f := roundsCmd.Flags()
	f.StringVar(&roundsFrom, "from", "", "window start (YYYY-MM-DD or RFC3339)")
	f.StringVar(&roundsTo, "to", "", "window end; a bare date includes that whole day")
	f.StringVar(&roundsPlatform, "platform", "", "platform id")
	f.StringVar(&roundsOperator, "operator", "", "operator id")
	f.StringVar(&roundsBrand, "brand", "", "brand id")
}

// windowEdge formats one end of a window; a zero time is open-ended.
func windowEdge(t time.Time) string {
	if t.IsZero() {
		return "…"
	}
	return util.FormatDate(t)
}
