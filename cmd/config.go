package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/config"
	"github.com/derickschaefer/pitboss/internal/render"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage pitboss configuration",
	Long:  `Read and write pitboss configuration stored in config.json.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a template config.json in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFile
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.json already exists at %s (delete it first to re-initialise)", path)
		}
		tmpl := config.Template()
		if err := config.WriteFile(path, tmpl); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Created %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "  Edit base_url, then save a token with: pitboss session login --token <TOKEN>")
		return nil
	},
}

var configShowSecrets bool

// configView is the structured payload for --format json.
type configView struct {
	BaseURL      string  `json:"base_url"`
	Token        string  `json:"token"`
	Format       string  `json:"default_format"`
	Timeout      string  `json:"timeout"`
	Rate         float64 `json:"rate"`
	PageSize     int     `json:"page_size"`
	DBPath       string  `json:"db_path"`
	HierarchyTTL string  `json:"hierarchy_ttl"`
	CatalogTTL   string  `json:"catalog_ttl"`
	AuthSettle   string  `json:"auth_settle"`
	ListenAddr   string  `json:"listen_addr"`
	LogLevel     string  `json:"log_level"`
	LogFormat    string  `json:"log_format"`
	Currency     string  `json:"currency"`
	Timezone     string  `json:"timezone"`
	ConfigFile   string  `json:"config_file"`
	Valid        bool    `json:"valid"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		token := config.RedactedToken(cfg.Token)
		if configShowSecrets {
			token = cfg.Token
		}
		if token == "" {
			token = "(not set; saved session is used)"
		}
		src := "(not found)"
		if cfg.ConfigPath != "" {
			src = cfg.ConfigPath
		}
		validErr := cfg.Validate()

		view := configView{
			BaseURL:      cfg.BaseURL,
			Token:        token,
			Format:       cfg.Format,
			Timeout:      cfg.Timeout.String(),
			Rate:         cfg.Rate,
			PageSize:     cfg.PageSize,
			DBPath:       cfg.DBPath,
			HierarchyTTL: cfg.HierarchyTTL.String(),
			CatalogTTL:   cfg.CatalogTTL.String(),
			AuthSettle:   cfg.AuthSettle.String(),
			ListenAddr:   cfg.ListenAddr,
			LogLevel:     cfg.LogLevel,
			LogFormat:    cfg.LogFormat,
			Currency:     cfg.Currency,
			Timezone:     cfg.Timezone,
			ConfigFile:   src,
			Valid:        validErr == nil,
		}

		if resolveFormat(cfg.Format) == render.FormatJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}

		rows := [][]string{
			{"base_url", view.BaseURL},
			{"token", view.Token},
			{"default_format", view.Format},
			{"timeout", view.Timeout},
			{"rate", strconv.FormatFloat(view.Rate, 'f', 1, 64) + " req/s"},
			{"page_size", strconv.Itoa(view.PageSize)},
			{"db_path", view.DBPath},
			{"hierarchy_ttl", view.HierarchyTTL},
			{"catalog_ttl", view.CatalogTTL},
			{"auth_settle", view.AuthSettle},
			{"listen_addr", view.ListenAddr},
			{"log_level", view.LogLevel},
			{"log_format", view.LogFormat},
			{"currency", view.Currency},
			{"timezone", view.Timezone},
			{"config_file", view.ConfigFile},
		}
		printKVTable(cmd.OutOrStdout(), rows)
		if validErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n⚠  %v\n", validErr)
		}
		return nil
	},
}

// printKVTable renders a two-column key/value table using aligned columns.
func printKVTable(w io.Writer, rows [][]string) {
	maxKey := 0
	for _, r := range rows {
		if len(r[0]) > maxKey {
			maxKey = len(r[0])
		}
	}
	for _, r := range rows {
		padding := strings.Repeat(" ", maxKey-len(r[0]))
		fmt.Fprintf(w, "  %s%s  %s\n", r[0], padding, r[1])
	}
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().BoolVar(&configShowSecrets, "show-secrets", false, "show the token in plain text")
}
