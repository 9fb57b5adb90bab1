package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/derickschaefer/pitboss/internal/cascade"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
	"github.com/derickschaefer/pitboss/internal/render"
)

var (
	selectPlatform string
	selectOperator string
	selectBrand    string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Resolve a platform → operator → brand selection",
	Long: `Applies the selection one level at a time, the way the dashboard filters do.

A child that does not belong to its selected parent is reset and reported as
a warning. Selecting a child without its parent is an error.`,
	Example: `  pitboss select --platform p1
  pitboss select --platform p1 --operator o1 --brand b1
  pitboss select --platform p2 --operator o1 --format json`,
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
		rv := deps.Resolver

		platformOpts := rv.PlatformOptions(ctx)
		if selectPlatform != "" && !containsOption(platformOpts, selectPlatform) {
			return fmt.Errorf("unknown platform %q", selectPlatform)
		}
		operatorOpts := rv.OperatorOptions(ctx, selectPlatform)
		brandOpts := rv.BrandOptions(ctx, selectPlatform, selectOperator)

		sel, reset := cascade.Selection{}.SelectPlatform(rv, selectPlatform)
		var more []cascade.Field
		if sel, more, err = sel.SelectOperator(rv, selectOperator); err != nil {
			return err
		}
		reset = append(reset, more...)
		brand := selectBrand
		if sel.OperatorID == "" && brand != "" {
			reset = append(reset, cascade.FieldBrand)
			brand = ""
		}
		if sel, more, err = sel.SelectBrand(rv, brand); err != nil {
			return err
		}
		reset = append(reset, more...)

		wasReset := make(map[cascade.Field]bool, len(reset))
		for _, f := range reset {
			wasReset[f] = true
		}

		label := func(r refcache.Resource, id string) string {
			if id == "" {
				return ""
			}
			if l, ok := deps.Cache.Label(r, id); ok {
				return l
			}
			return id
		}
		status := func(f cascade.Field, id string) string {
			switch {
			case wasReset[f]:
				return "reset"
			case id == "":
				return "-"
			default:
				return "ok"
			}
		}

		table := render.Table{
			Title:  "Selection",
			Header: []string{"LEVEL", "ID", "LABEL", "OPTIONS", "STATUS"},
			Rows: [][]string{
				{string(cascade.FieldPlatform), sel.PlatformID, label(refcache.Platforms, sel.PlatformID), strconv.Itoa(len(platformOpts)), status(cascade.FieldPlatform, sel.PlatformID)},
				{string(cascade.FieldOperator), sel.OperatorID, label(refcache.Operators, sel.OperatorID), strconv.Itoa(len(operatorOpts)), status(cascade.FieldOperator, sel.OperatorID)},
				{string(cascade.FieldBrand), sel.BrandID, label(refcache.Brands, sel.BrandID), strconv.Itoa(len(brandOpts)), status(cascade.FieldBrand, sel.BrandID)},
			},
		}

		result := newResult(model.KindTable, "select", table, 3, start)
		if f := resolveFormat(deps.Config.Format); f == render.FormatJSON || f == render.FormatJSONL {
			result.Data = struct {
				Selection cascade.Selection `json:"selection"`
				Reset     []cascade.Field   `json:"reset"`
				Complete  bool              `json:"complete"`
			}{sel, reset, sel.Complete()}
		}
		for _, f := range reset {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s selection is not valid under its parent and was reset", f))
		}
		return emit(cmd, deps, result)
	},
}

func containsOption(opts []model.FilterOption, id string) bool {
	for _, o := range opts {
		if o.ID == id {
			return true
		}
	}
	return false
}

func init() {
	rootCmd.AddCommand(selectCmd)
	selectCmd.Flags().StringVar(&selectPlatform, "platform", "", "platform id")
	selectCmd.Flags().StringVar(&selectOperator, "operator", "", "operator id")
	selectCmd.Flags().StringVar(&selectBrand, "brand", "", "brand id")
}
