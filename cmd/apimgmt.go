package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/model"
)

var apimgmtCmd = &cobra.Command{
	Use:   "apimgmt",
	Short: "Inspect the API-management permission list",
}

var (
	apimgmtSearch string
	apimgmtMethod string
	apimgmtStatus string
	apimgmtPage   int
	apimgmtLimit  int
)

var apimgmtListCmd = &cobra.Command{
	Use:   "list",
	Short: "List API permission entries, one page at a time",
	Example: `  pitboss apimgmt list
  pitboss apimgmt list --search rounds --method GET
  pitboss apimgmt list --status inactive --page 2 --limit 50 --format csv`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if apimgmtStatus != "" {
			if _, err := model.ParseStatus(apimgmtStatus); err != nil {
				return err
			}
		}

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
		page, err := deps.Client.ListAPIPermissions(ctx, api.APIFilter{
			Search: apimgmtSearch,
			Method: apimgmtMethod,
			Status: apimgmtStatus,
			PageNo: apimgmtPage,
			Limit:  apimgmtLimit,
		})
		if err != nil {
			return err
		}

		result := newResult(model.KindPermissions, "apimgmt list", page.Items, len(page.Items), start)
		if shown := len(page.Items); shown < page.Total {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("showing %d of %d entries; use --page to see more", shown, page.Total))
		}
		return emit(cmd, deps, result)
	},
}

func init() {
	rootCmd.AddCommand(apimgmtCmd)
	apimgmtCmd.AddCommand(apimgmtListCmd)

	f := apimgmtListCmd.Flags()
	f.StringVar(&apimgmtSearch, "search", "", "free-text search on name and path")
	f.StringVar(&apimgmtMethod, "method", "", "HTTP method filter (GET, POST, ...)")
	f.StringVar(&apimgmtStatus, "status", "", "status filter: active|inactive|pending|suspended")
	f.IntVar(&apimgmtPage, "page", 1, "page number, starting at 1")
	f.IntVar(&apimgmtLimit, "limit", 0, "page size (default: config page_size)")
}
