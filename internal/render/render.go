// Package render converts Result values into human-readable or machine-parseable
// output. Each format is a separate function; the top-level Render dispatcher
// selects based on the format string.
//
// Every tabular Kind is first flattened into a Table, so table, csv, tsv and
// markdown share one row layout per Kind.
package render

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"

	"github.com/derickschaefer/pitboss/internal/dashboard"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
)

// Format constants matching --format flag values.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
	FormatTSV   = "tsv"
	FormatMD    = "md"
)

// Formats lists every accepted --format value.
var Formats = []string{FormatTable, FormatJSON, FormatJSONL, FormatCSV, FormatTSV, FormatMD}

// Table is a pre-flattened result, used with model.KindTable.
type Table struct {
	Title  string     `json:"title,omitempty"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Render writes result to w in the specified format.
func Render(w io.Writer, result *model.Result, format string) error {
	switch format {
	case FormatJSON:
		return renderJSON(w, result)
	case FormatJSONL:
		return renderJSONL(w, result)
	case FormatCSV:
		return renderDelimited(w, result, ',')
	case FormatTSV:
		return renderDelimited(w, result, '\t')
	case FormatMD:
		return renderMarkdown(w, result)
	default:
		return renderTable(w, result)
	}
}

// ─── JSON ─────────────────────────────────────────────────────────────────────

func renderJSON(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// ─── JSONL ────────────────────────────────────────────────────────────────────

// renderJSONL emits one line per item for list kinds, one line otherwise.
func renderJSONL(w io.Writer, result *model.Result) error {
	enc := json.NewEncoder(w)
	items := listItems(result.Data)
	if items == nil {
		return enc.Encode(result.Data)
	}
	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			return err
		}
	}
	return nil
}

func listItems(data interface{}) []interface{} {
	switch d := data.(type) {
	case []model.FilterOption:
		return each(d)
	case []model.Platform:
		return each(d)
	case []model.Operator:
		return each(d)
	case []model.Brand:
		return each(d)
	case []model.Game:
		return each(d)
	case []model.APIPermission:
		return each(d)
	case []model.Bucket:
		return each(d)
	case []model.RoundRecord:
		return each(d)
	case []refcache.ResourceStats:
		return each(d)
	}
	return nil
}

func each[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, v := range items {
		out[i] = v
	}
	return out
}

// ─── Tabulation ───────────────────────────────────────────────────────────────

// tabulate flattens result.Data into one or more tables.
func tabulate(result *model.Result) ([]Table, error) {
	switch d := result.Data.(type) {
	case Table:
		return []Table{d}, nil
	case *Table:
		return []Table{*d}, nil
	case []model.FilterOption:
		t := Table{Header: []string{"ID", "LABEL"}}
		for _, o := range d {
			t.Rows = append(t.Rows, []string{o.ID, o.Label})
		}
		return []Table{t}, nil
	case []model.Platform:
		t := Table{Header: []string{"ID", "NAME"}}
		for _, p := range d {
			t.Rows = append(t.Rows, []string{p.ID, p.Name})
		}
		return []Table{t}, nil
	case []model.Operator:
		t := Table{Header: []string{"ID", "NAME", "PLATFORM"}}
		for _, o := range d {
			t.Rows = append(t.Rows, []string{o.ID, o.Name, o.PlatformID})
		}
		return []Table{t}, nil
	case []model.Brand:
		t := Table{Header: []string{"ID", "NAME", "PLATFORM", "OPERATOR", "STATUS"}}
		for _, b := range d {
			st := model.StatusFromActive(b.Active).Descriptor()
			t.Rows = append(t.Rows, []string{b.ID, b.Name, b.PlatformID, b.OperatorID, st.Icon + " " + st.Label})
		}
		return []Table{t}, nil
	case []model.Game:
		t := Table{Header: []string{"ID", "NAME", "PROVIDER"}}
		for _, g := range d {
			t.Rows = append(t.Rows, []string{g.ID, g.Name, g.Provider})
		}
		return []Table{t}, nil
	case []model.APIPermission:
		t := Table{Header: []string{"ID", "NAME", "METHOD", "PATH", "STATUS"}}
		for _, p := range d {
			st := p.Status.Descriptor()
			t.Rows = append(t.Rows, []string{p.ID, p.Name, p.Method, p.Path, st.Icon + " " + st.Label})
		}
		return []Table{t}, nil
	case []model.Bucket:
		t := Table{Header: []string{"KEY", "SUM", "COUNT"}}
		for _, b := range d {
			t.Rows = append(t.Rows, []string{b.Key, formatAmount(b.Sum), strconv.Itoa(b.Count)})
		}
		return []Table{t}, nil
	case []refcache.ResourceStats:
		t := Table{Header: []string{"RESOURCE", "COUNT", "AGE", "TTL", "STALE", "LOADING", "ERROR"}}
		for _, s := range d {
			age := "-"
			if !s.LastFetched.IsZero() {
				age = s.Age.Round(time.Second).String()
			}
			t.Rows = append(t.Rows, []string{
				s.Resource, strconv.Itoa(s.Count), age, s.TTL.String(),
				yesNo(s.Stale), yesNo(s.Loading), s.Error,
			})
		}
		return []Table{t}, nil
	case *dashboard.View:
		return dashboardTables(d), nil
	case dashboard.View:
		return dashboardTables(&d), nil
	}
	return nil, fmt.Errorf("no tabular layout for %s (%T)", result.Kind, result.Data)
}

func dashboardTables(v *dashboard.View) []Table {
	cur := v.Currency
	totals := Table{Title: "Totals", Header: []string{"METRIC", "VALUE"}, Rows: [][]string{
		{"Turnover " + cur, formatAmount(v.Totals.BetAmount)},
		{"Wins " + cur, formatAmount(v.Totals.WinAmount)},
		{"GGR " + cur, formatAmount(v.Totals.GGR)},
		{"Margin", formatPct(v.Totals.Margin)},
		{"Rounds", strconv.Itoa(v.Totals.Rounds)},
		{"Unique players", strconv.Itoa(v.Totals.UniquePlayers)},
		{"Peak GGR hour", v.HourlyStats.PeakKey},
		{"Daily GGR trend", v.DailyTrend.Direction},
	}}
	for i := range totals.Rows {
		totals.Rows[i][0] = strings.TrimSpace(totals.Rows[i][0])
	}

	out := []Table{totals, hourlyTable(v)}
	out = append(out,
		rowTable("Brands", v.Brands),
		rowTable("Operators", v.Operators),
		rowTable("Top games", v.TopGames),
		playerTable("Top players", v.TopPlayers),
		playerTable("Winners", v.Winners),
	)
	uniq := Table{Title: "Unique players by brand", Header: []string{"BRAND", "PLAYERS"}}
	for _, u := range v.UniquePlayers {
		uniq.Rows = append(uniq.Rows, []string{u.Label, strconv.Itoa(u.Players)})
	}
	return append(out, uniq)
}

// hourlyTable merges the three hourly series on their hour key.
func hourlyTable(v *dashboard.View) Table {
	t := Table{Title: "Hourly", Header: []string{"HOUR", "BET", "GGR", "TURNOVER"}}
	ggr := make(map[string]float64, len(v.Hourly.GGR))
	for _, b := range v.Hourly.GGR {
		ggr[b.Key] = b.Sum
	}
	turnover := make(map[string]float64, len(v.Hourly.Turnover))
	for _, b := range v.Hourly.Turnover {
		turnover[b.Key] = b.Sum
	}
	for _, b := range v.Hourly.Bet {
		t.Rows = append(t.Rows, []string{b.Key, formatAmount(b.Sum), formatAmount(ggr[b.Key]), formatAmount(turnover[b.Key])})
	}
	return t
}

func rowTable(title string, rows []dashboard.Row) Table {
	t := Table{Title: title, Header: []string{"ID", "NAME", "BET", "WIN", "GGR", "MARGIN", "ROUNDS"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.ID, r.Label, formatAmount(r.BetAmount), formatAmount(r.WinAmount),
			formatAmount(r.GGR), formatPct(r.Margin), strconv.Itoa(r.Rounds),
		})
	}
	return t
}

func playerTable(title string, rows []dashboard.PlayerRow) Table {
	t := Table{Title: title, Header: []string{"PLAYER", "BET", "WIN", "NET", "MARGIN", "ROUNDS"}}
	for _, r := range rows {
		t.Rows = append(t.Rows, []string{
			r.PlayerID, formatAmount(r.BetAmount), formatAmount(r.WinAmount),
			formatAmount(r.Net), formatPct(r.Margin), strconv.Itoa(r.Rounds),
		})
	}
	return t
}

// ─── Table ────────────────────────────────────────────────────────────────────

func renderTable(w io.Writer, result *model.Result) error {
	tables, err := tabulate(result)
	if err != nil {
		// Fallback: JSON
		return renderJSON(w, result)
	}
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if t.Title != "" {
			fmt.Fprintf(w, "%s\n", t.Title)
		}
		writeTable(w, t)
	}
	return nil
}

func writeTable(w io.Writer, t Table) {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(t.Header)
	tw.SetBorder(true)
	tw.SetRowLine(false)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetAutoWrapText(false)
	tw.SetColWidth(60)
	for _, r := range t.Rows {
		tw.Append(r)
	}
	tw.Render()
}

// ─── CSV / TSV ────────────────────────────────────────────────────────────────

// renderDelimited writes the first table only; for dashboards that is the
// totals block, so the hourly series is written instead.
func renderDelimited(w io.Writer, result *model.Result, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep

	tables, err := tabulate(result)
	switch {
	case err != nil:
		// Fallback: serialize as JSON on a single line
		b, _ := json.Marshal(result.Data)
		_ = cw.Write([]string{string(b)})
	default:
		t := tables[0]
		if result.Kind == model.KindDashboard && len(tables) > 1 {
			t = tables[1]
		}
		header := make([]string, len(t.Header))
		for i, h := range t.Header {
			header[i] = strings.ToLower(h)
		}
		_ = cw.Write(header)
		for _, r := range t.Rows {
			_ = cw.Write(r)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ─── Markdown ─────────────────────────────────────────────────────────────────

func renderMarkdown(w io.Writer, result *model.Result) error {
	tables, err := tabulate(result)
	if err != nil {
		return renderJSON(w, result)
	}
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if t.Title != "" {
			fmt.Fprintf(w, "### %s\n\n", t.Title)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(t.Header, " | "))
		seps := make([]string, len(t.Header))
		for j := range seps {
			seps[j] = "----"
		}
		fmt.Fprintf(w, "|%s|\n", strings.Join(seps, "|"))
		for _, r := range t.Rows {
			cells := make([]string, len(r))
			for j, c := range r {
				cells[j] = mdEscape(c)
			}
			fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
		}
	}
	return nil
}

// ─── Warnings / Stats Footer ─────────────────────────────────────────────────

// PrintFooter writes warnings and stats to w when verbose mode is on.
func PrintFooter(w io.Writer, result *model.Result, verbose bool) {
	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "⚠  %s\n", warn)
	}
	if verbose {
		src := "live"
		if result.Stats.CacheHit {
			src = "cache"
		}
		fmt.Fprintf(w, "\n[%s • %d items • %dms • %s]\n",
			result.GeneratedAt.Format(time.RFC3339),
			result.Stats.Items,
			result.Stats.DurationMs,
			src,
		)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// formatAmount renders money with two decimals.
func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatPct(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
