package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/authgate"
	"github.com/derickschaefer/pitboss/internal/config"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/render"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage the saved bearer token",
	Long: `The bearer token is the only credential pitboss keeps. It is saved in the
local store and restored on the next run unless --token or PITBOSS_TOKEN
supplies one explicitly.

Logging out deletes the saved token and drops all cached reference data.`,
}

// ─── session login ────────────────────────────────────────────────────────────

var sessionLoginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Save a bearer token",
	Example: `  pitboss session login --token eyJhbGciOi...
  pitboss session login eyJhbGciOi...
  echo "$TOKEN" | pitboss session login`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token := globalFlags.Token
		if len(args) == 1 {
			token = args[0]
		}
		if token == "" {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("no token given: pass --token, an argument, or pipe it on stdin")
			}
			token = line
		}
		token = strings.TrimSpace(token)

		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Login(token); err != nil {
			return err
		}
		if deps.Gate.State() == authgate.NotReady {
			_ = deps.Logout()
			return fmt.Errorf("token is expired; not saved")
		}
		if !deps.Config.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved token %s to %s\n", config.RedactedToken(token), deps.Store.Path())
		}
		return nil
	},
}

// ─── session logout ───────────────────────────────────────────────────────────

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Delete the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		if err := deps.Logout(); err != nil {
			return err
		}
		if !deps.Config.Quiet {
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Logged out")
		}
		return nil
	},
}

// ─── session status ───────────────────────────────────────────────────────────

var sessionStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where the token comes from and whether the session is ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := buildDeps()
		if err != nil {
			return err
		}
		defer deps.Close()

		start := time.Now()
		source := "none"
		savedAt := "-"
		switch {
		case globalFlags.Token != "":
			source = "--token flag"
		case deps.Config.Token != "":
			source = "environment"
		}
		if err := deps.RequireStore(); err == nil {
			if sess, ok, _ := deps.Store.Session(); ok {
				savedAt = sess.SavedAt.Local().Format(time.RFC3339)
				if source == "none" {
					source = "saved session"
				}
			}
		}

		authErr := deps.Authenticate(cmd.Context())
		state := deps.Gate.State().String()
		if authErr != nil {
			state += " (" + authErr.Error() + ")"
		}

		table := render.Table{
			Title:  "Session",
			Header: []string{"KEY", "VALUE"},
			Rows: [][]string{
				{"source", source},
				{"token", orDash(config.RedactedToken(deps.Gate.Token()))},
				{"saved_at", savedAt},
				{"state", state},
				{"base_url", deps.Config.BaseURL},
				{"breaker", deps.Client.BreakerState()},
			},
		}
		return emit(cmd, deps, newResult(model.KindTable, "session status", table, len(table.Rows), start))
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLoginCmd)
	sessionCmd.AddCommand(sessionLogoutCmd)
	sessionCmd.AddCommand(sessionStatusCmd)
}
