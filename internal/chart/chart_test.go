package chart_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/derickschaefer/pitboss/internal/chart"
	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// hourly builds consecutive hour buckets starting at startHour.
func hourly(startHour int, sums ...float64) []model.Bucket {
	out := make([]model.Bucket, len(sums))
	for i, v := range sums {
		out[i] = model.Bucket{Key: fmt.Sprintf("%02d", startHour+i), Sum: v, Count: 1}
	}
	return out
}

// daily builds n day buckets in January 2024 with the given sum function.
func daily(n int, sum func(i int) float64) []model.Bucket {
	out := make([]model.Bucket, n)
	for i := 0; i < n; i++ {
		out[i] = model.Bucket{Key: fmt.Sprintf("2024-01-%02d", i+1), Sum: sum(i), Count: 1}
	}
	return out
}

func barLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(strings.TrimRight(out, "\n"), "\n")[1:] {
		if !strings.HasPrefix(l, "⚠") && strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ─── Bar tests ────────────────────────────────────────────────────────────────

func TestBarBasic(t *testing.T) {
	var buf strings.Builder
	err := chart.Bar(&buf, "GGR by hour", hourly(9, 70, 20, 45, 40), chart.BarOptions{Width: 60})
	if err != nil {
		t.Fatalf("Bar returned error: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "GGR by hour  09 – 12") {
		t.Errorf("unexpected header: %q", strings.SplitN(out, "\n", 2)[0])
	}
	lines := barLines(out)
	if len(lines) != 4 {
		t.Fatalf("expected 4 bars, got %d:\n%s", len(lines), out)
	}
	// The largest bucket gets the longest bar.
	if strings.Count(lines[0], "█") <= strings.Count(lines[1], "█") {
		t.Errorf("bar for 70 should be longer than bar for 20:\n%s", out)
	}
}

func TestBarEmpty(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "x", nil, chart.BarOptions{}); err == nil {
		t.Error("expected error for empty buckets")
	}
}

func TestBarSingleBucket(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "x", hourly(0, 5), chart.BarOptions{Width: 40}); err != nil {
		t.Fatalf("single bucket should render: %v", err)
	}
	if !strings.Contains(buf.String(), "█") {
		t.Error("single bucket should still draw a bar")
	}
}

func TestBarMaxBars(t *testing.T) {
	var buf strings.Builder
	err := chart.Bar(&buf, "x", hourly(0, 1, 2, 3, 4, 5, 6), chart.BarOptions{Width: 50, MaxBars: 3})
	if err != nil {
		t.Fatal(err)
	}
	lines := barLines(buf.String())
	if len(lines) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "03") {
		t.Errorf("MaxBars should keep the last buckets, first bar is %q", lines[0])
	}
}

func TestBarNegativeValues(t *testing.T) {
	var buf strings.Builder
	err := chart.Bar(&buf, "GGR", hourly(0, 30, -10, 15), chart.BarOptions{Width: 60})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "│") {
		t.Errorf("negative series should draw a zero baseline:\n%s", out)
	}
	if !strings.Contains(out, "-10.0") {
		t.Errorf("negative value label missing:\n%s", out)
	}
}

func TestBarFlatSeries(t *testing.T) {
	var buf strings.Builder
	if err := chart.Bar(&buf, "x", hourly(0, 0, 0, 0), chart.BarOptions{Width: 40}); err != nil {
		t.Fatalf("flat series should not error: %v", err)
	}
}

func TestBarDensityWarning(t *testing.T) {
	var buf strings.Builder
	err := chart.Bar(&buf, "x", daily(31, func(i int) float64 { return float64(i) }), chart.BarOptions{Width: 60})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "⚠") {
		t.Error("31 buckets should not warn")
	}

	buf.Reset()
	many := make([]model.Bucket, 61)
	for i := range many {
		many[i] = model.Bucket{Key: fmt.Sprint(i), Sum: 1}
	}
	if err := chart.Bar(&buf, "x", many, chart.BarOptions{Width: 60}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "⚠") {
		t.Error("61 buckets should warn")
	}
}

// ─── Plot tests ───────────────────────────────────────────────────────────────

func TestPlotBasic(t *testing.T) {
	var buf strings.Builder
	buckets := daily(20, func(i int) float64 { return float64(i * i) })
	if err := chart.Plot(&buf, "Daily GGR", buckets, chart.PlotOptions{Width: 70, Height: 8}); err != nil {
		t.Fatalf("Plot returned error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Daily GGR  (2024-01-01 to 2024-01-20)") {
		t.Errorf("missing title line:\n%s", out)
	}
	if !strings.Contains(out, "└") {
		t.Error("missing x axis")
	}
}

func TestPlotLineCount(t *testing.T) {
	var buf strings.Builder
	buckets := daily(10, func(i int) float64 { return float64(i % 3) })
	if err := chart.Plot(&buf, "x", buckets, chart.PlotOptions{Width: 60, Height: 6}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	// title + 6 rows + axis + labels
	if len(lines) != 9 {
		t.Errorf("expected 9 lines, got %d:\n%s", len(lines), buf.String())
	}
}

func TestPlotSingleBucket(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, "x", hourly(0, 1), chart.PlotOptions{}); err == nil {
		t.Error("expected error for a single bucket")
	}
}

func TestPlotFlatSeries(t *testing.T) {
	var buf strings.Builder
	if err := chart.Plot(&buf, "x", daily(5, func(int) float64 { return 3 }), chart.PlotOptions{Width: 40, Height: 5}); err != nil {
		t.Fatalf("flat series should not error: %v", err)
	}
}

func TestPlotWidthRespected(t *testing.T) {
	var buf strings.Builder
	buckets := daily(28, func(i int) float64 { return float64(i) - 10 })
	if err := chart.Plot(&buf, "x", buckets, chart.PlotOptions{Width: 50, Height: 6}); err != nil {
		t.Fatal(err)
	}
	for i, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")[1:] {
		if n := len([]rune(line)); n > 50 {
			t.Errorf("line %d is %d runes wide, want <= 50", i+1, n)
		}
	}
}

func TestPlotXAxisLabels(t *testing.T) {
	var buf strings.Builder
	buckets := daily(9, func(i int) float64 { return float64(i) })
	if err := chart.Plot(&buf, "x", buckets, chart.PlotOptions{Width: 70, Height: 5}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	last := lines[len(lines)-1]
	for _, want := range []string{"2024-01-01", "2024-01-05", "2024-01-09"} {
		if !strings.Contains(last, want) {
			t.Errorf("x axis missing %s: %q", want, last)
		}
	}
}
