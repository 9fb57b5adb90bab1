package render_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/derickschaefer/pitboss/internal/dashboard"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/render"
)

func optionsResult() *model.Result {
	return &model.Result{
		Kind:        model.KindOptions,
		GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Command:     "ref platforms",
		Data: []model.FilterOption{
			{ID: "p1", Label: "Alpha", Value: "p1"},
			{ID: "p2", Label: "Be|ta", Value: "p2"},
		},
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, optionsResult(), render.FormatTable); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "LABEL") || !strings.Contains(out, "Alpha") {
		t.Errorf("table output missing content:\n%s", out)
	}
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, optionsResult(), render.FormatCSV); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 || lines[0] != "id,label" || lines[1] != "p1,Alpha" {
		t.Errorf("unexpected csv:\n%s", buf.String())
	}
}

func TestRenderJSONLOnePerItem(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, optionsResult(), render.FormatJSONL); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], `"label":"Alpha"`) {
		t.Errorf("unexpected jsonl:\n%s", buf.String())
	}
}

func TestRenderMarkdownEscapesPipes(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, optionsResult(), render.FormatMD); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `Be\|ta`) {
		t.Errorf("pipe should be escaped:\n%s", buf.String())
	}
}

func TestRenderJSONEnvelope(t *testing.T) {
	var buf bytes.Buffer
	if err := render.Render(&buf, optionsResult(), render.FormatJSON); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"kind": "options"`) {
		t.Errorf("json should carry the envelope:\n%s", buf.String())
	}
}

func TestRenderDashboardSections(t *testing.T) {
	v := dashboard.Assemble([]model.RoundRecord{
		{PlayerID: "u1", GameID: "g1", BrandID: "b1", OperatorID: "o1", BetAmount: 10, WinAmount: 2,
			Timestamp: time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)},
	}, nil, dashboard.Options{Location: time.UTC, Currency: "EUR"})
	res := &model.Result{Kind: model.KindDashboard, Data: &v}

	var buf bytes.Buffer
	if err := render.Render(&buf, res, render.FormatTable); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Totals", "Hourly", "Brands", "Winners", "8.00", "80.00%"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("dashboard table missing %q", want)
		}
	}

	buf.Reset()
	if err := render.Render(&buf, res, render.FormatCSV); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "hour,bet,ggr,turnover\n07,10.00,8.00,10.00") {
		t.Errorf("dashboard csv should be the hourly series:\n%s", buf.String())
	}
}

func TestRenderUnknownKindFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	res := &model.Result{Kind: "mystery", Data: map[string]int{"n": 1}}
	if err := render.Render(&buf, res, render.FormatTable); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"n": 1`) {
		t.Errorf("expected JSON fallback:\n%s", buf.String())
	}
}

func TestRenderGenericTable(t *testing.T) {
	var buf bytes.Buffer
	res := &model.Result{Kind: model.KindTable, Data: render.Table{
		Header: []string{"KEY", "VALUE"},
		Rows:   [][]string{{"theme", "dark"}},
	}}
	if err := render.Render(&buf, res, render.FormatTSV); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "key\tvalue\ntheme\tdark\n" {
		t.Errorf("unexpected tsv %q", buf.String())
	}
}
