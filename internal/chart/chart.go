// Package chart provides ASCII terminal chart rendering for bucket series.
// Two renderers are available:
//
//   - Bar: horizontal bar chart, one bar per bucket. Suits the 24-hour
//     series or a short list of entities.
//   - Plot: multi-line ASCII chart with labeled axes, for long daily series.
//
// Both renderers handle negative sums since GGR can go below zero.
package chart

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Bar ─────────────────────────────────────────────────────────────────────

// BarOptions controls horizontal bar chart rendering.
type BarOptions struct {
	// Width is the total character width available for the chart.
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// MaxBars caps the number of bars; the last MaxBars buckets are kept.
	// If 0, no limit is applied.
	MaxBars int
}

// Bar renders a horizontal bar chart of buckets to w, one bar per bucket.
//
// Output example:
//
//	GGR by hour  09 – 14
//	09   70.0  ████████████
//	10  -12.5  ▏
//	14   40.0  ███████
func Bar(w io.Writer, title string, buckets []model.Bucket, opts BarOptions) error {
	totalWidth := opts.Width
	if totalWidth <= 0 {
		totalWidth = termWidth()
	}

	valid := buckets
	if len(valid) < 1 {
		return fmt.Errorf("chart bar: no buckets to render")
	}

	maxBars := opts.MaxBars
	if maxBars > 0 && len(valid) > maxBars {
		valid = valid[len(valid)-maxBars:]
	}

	if len(valid) > 60 {
		fmt.Fprintf(w, "⚠  %d buckets; consider an hourly or daily view\n\n", len(valid))
	}

	minVal, maxVal := valid[0].Sum, valid[0].Sum
	for _, b := range valid[1:] {
		if b.Sum < minVal {
			minVal = b.Sum
		}
		if b.Sum > maxVal {
			maxVal = b.Sum
		}
	}

	keyWidth := 0
	valWidth := 0
	for _, b := range valid {
		if l := len([]rune(b.Key)); l > keyWidth {
			keyWidth = l
		}
		if l := len(formatFloat(b.Sum)); l > valWidth {
			valWidth = l
		}
	}

	// Bar area width = totalWidth - keyWidth - valWidth - separators (4 chars)
	barAreaWidth := totalWidth - keyWidth - valWidth - 4
	if barAreaWidth < 4 {
		barAreaWidth = 4
	}

	lo := math.Min(minVal, 0)
	hi := math.Max(maxVal, 0)
	valRange := hi - lo
	if valRange == 0 {
		valRange = 1
	}

	hasNeg := minVal < 0
	var zeroPos int
	if hasNeg {
		zeroPos = int(math.Round((-lo / valRange) * float64(barAreaWidth-1)))
	}

	fmt.Fprintf(w, "%s  %s – %s\n", title, valid[0].Key, valid[len(valid)-1].Key)

	for _, b := range valid {
		var bar string
		if hasNeg {
			bar = buildBiBar(b.Sum, valRange, barAreaWidth, zeroPos)
		} else {
			barLen := int(math.Round(b.Sum / valRange * float64(barAreaWidth)))
			if barLen < 1 {
				barLen = 1 // minimum 1 block so every bar is visible
			}
			if barLen > barAreaWidth {
				barLen = barAreaWidth
			}
			bar = strings.Repeat("█", barLen)
		}

		fmt.Fprintf(w, "%-*s  %*s  %s\n",
			keyWidth, b.Key,
			valWidth, formatFloat(b.Sum),
			bar,
		)
	}

	return nil
}

// buildBiBar renders a bar that may extend left (negative) or right (positive)
// from a zero baseline at zeroPos within a field of width barAreaWidth.
func buildBiBar(val, valRange float64, barAreaWidth, zeroPos int) string {
	buf := []rune(strings.Repeat(" ", barAreaWidth))

	if zeroPos >= 0 && zeroPos < barAreaWidth {
		buf[zeroPos] = '│'
	}

	if val >= 0 {
		end := zeroPos + int(math.Round(val/valRange*float64(barAreaWidth-1)))
		if end > barAreaWidth {
			end = barAreaWidth
		}
		for i := zeroPos + 1; i <= end && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	} else {
		start := zeroPos - int(math.Round((-val)/valRange*float64(barAreaWidth-1)))
		if start < 0 {
			start = 0
		}
		for i := start; i < zeroPos && i < barAreaWidth; i++ {
			buf[i] = '█'
		}
	}

	return string(buf)
}

// ─── Plot ─────────────────────────────────────────────────────────────────────

// PlotOptions controls multi-line ASCII plot rendering.
type PlotOptions struct {
	// Width is the total character width of the chart (including Y-axis label).
	// If 0, auto-detects from $COLUMNS, falls back to 80.
	Width int
	// Height is the number of data rows in the chart body (not counting axis labels).
	// If 0, defaults to 12.
	Height int
}

// Plot renders a multi-line ASCII chart of buckets to w, in bucket order.
func Plot(w io.Writer, title string, buckets []model.Bucket, opts PlotOptions) error {
	width := opts.Width
	if width <= 0 {
		width = termWidth()
	}
	height := opts.Height
	if height <= 0 {
		height = 12
	}
	if len(buckets) < 2 {
		return fmt.Errorf("chart plot: need at least 2 buckets (got %d)", len(buckets))
	}

	minVal, maxVal := buckets[0].Sum, buckets[0].Sum
	for _, b := range buckets[1:] {
		if b.Sum < minVal {
			minVal = b.Sum
		}
		if b.Sum > maxVal {
			maxVal = b.Sum
		}
	}

	ticks := yTicks(minVal, maxVal, height)
	yLabelWidth := 0
	for _, t := range ticks {
		if l := len(formatFloat(t)); l > yLabelWidth {
			yLabelWidth = l
		}
	}
	yAxisWidth := yLabelWidth + 2

	plotWidth := width - yAxisWidth
	if plotWidth < 10 {
		plotWidth = 10
	}

	cols := sampleCols(buckets, plotWidth)
	grid := buildGrid(cols, minVal, maxVal, height)

	fmt.Fprintf(w, "%s  (%s to %s)\n", title, buckets[0].Key, buckets[len(buckets)-1].Key)

	for row := 0; row < height; row++ {
		label := ""
		for _, t := range ticks {
			if math.Abs(rowForValue(t, minVal, maxVal, height)-float64(row)) < 0.5 {
				label = formatFloat(t)
				break
			}
		}
		labelPadded := fmt.Sprintf("%*s", yLabelWidth, label)

		axisCh := "┤"
		if label != "" && math.Abs(minVal) < 1e-9 && row == height-1 {
			axisCh = "┼"
		} else if label == "" {
			axisCh = " "
		}

		var rowSB strings.Builder
		for col := 0; col < plotWidth; col++ {
			rowSB.WriteRune(grid[row][col])
		}

		fmt.Fprintf(w, "%s%s%s\n", labelPadded, axisCh, rowSB.String())
	}

	fmt.Fprintf(w, "%s└%s\n", strings.Repeat(" ", yLabelWidth), strings.Repeat("─", plotWidth))
	fmt.Fprintf(w, "%s %s\n", strings.Repeat(" ", yLabelWidth), xAxisLabels(buckets, plotWidth))

	return nil
}

// ─── Grid building ────────────────────────────────────────────────────────────

// sampleCols maps buckets onto exactly n columns. With more buckets than
// columns each column averages its share; with fewer, buckets repeat.
func sampleCols(buckets []model.Bucket, n int) []float64 {
	total := len(buckets)
	cols := make([]float64, n)
	for col := 0; col < n; col++ {
		lo := col * total / n
		hi := (col+1)*total/n - 1
		if hi < lo {
			hi = lo
		}
		if hi >= total {
			hi = total - 1
		}
		sum := 0.0
		for i := lo; i <= hi; i++ {
			sum += buckets[i].Sum
		}
		cols[col] = sum / float64(hi-lo+1)
	}
	return cols
}

// rowForValue returns the float row index (0=top=max) for a given value.
func rowForValue(v, minVal, maxVal float64, height int) float64 {
	if maxVal == minVal {
		return float64(height) / 2
	}
	return (maxVal - v) / (maxVal - minVal) * float64(height-1)
}

// buildGrid renders columns into a height×width rune grid using
// box-drawing characters to connect adjacent data points.
func buildGrid(cols []float64, minVal, maxVal float64, height int) [][]rune {
	grid := make([][]rune, height)
	for r := range grid {
		grid[r] = make([]rune, len(cols))
		for c := range grid[r] {
			grid[r][c] = ' '
		}
	}

	rowOf := make([]int, len(cols))
	for col, v := range cols {
		r := int(math.Round(rowForValue(v, minVal, maxVal, height)))
		if r < 0 {
			r = 0
		}
		if r >= height {
			r = height - 1
		}
		rowOf[col] = r
	}

	for col := 0; col < len(cols); col++ {
		r := rowOf[col]

		prevRow := -1
		if col > 0 {
			prevRow = rowOf[col-1]
		}
		nextRow := -1
		if col < len(cols)-1 {
			nextRow = rowOf[col+1]
		}

		switch {
		case (prevRow < 0 || prevRow == r) && (nextRow < 0 || nextRow == r):
			grid[r][col] = '─'
		case prevRow >= 0 && prevRow != r && (nextRow < 0 || nextRow == r):
			if prevRow < r {
				grid[r][col] = '╰'
			} else {
				grid[r][col] = '╭'
			}
		case nextRow >= 0 && nextRow < r:
			grid[r][col] = '╯'
		case nextRow >= 0 && nextRow > r:
			grid[r][col] = '╮'
		default:
			grid[r][col] = '─'
		}

		// Vertical connectors between this row and the previous column's row.
		if prevRow >= 0 && prevRow != r {
			lo, hi := r, prevRow
			if lo > hi {
				lo, hi = hi, lo
			}
			for fill := lo + 1; fill < hi; fill++ {
				if grid[fill][col] == ' ' {
					grid[fill][col] = '│'
				}
			}
		}
	}

	return grid
}

// ─── Axis helpers ─────────────────────────────────────────────────────────────

// yTicks returns 3–4 evenly-spaced tick values for the Y axis.
func yTicks(minVal, maxVal float64, height int) []float64 {
	if maxVal == minVal {
		return []float64{minVal}
	}
	nTicks := 4
	if height <= 6 {
		nTicks = 3
	}
	ticks := make([]float64, nTicks)
	for i := 0; i < nTicks; i++ {
		ticks[i] = minVal + float64(i)*(maxVal-minVal)/float64(nTicks-1)
	}
	return ticks
}

// xAxisLabels builds a padded string with start, middle, and end bucket keys.
func xAxisLabels(buckets []model.Bucket, plotWidth int) string {
	if len(buckets) == 0 {
		return ""
	}
	startLabel := buckets[0].Key
	endLabel := buckets[len(buckets)-1].Key
	midLabel := buckets[len(buckets)/2].Key

	midPos := plotWidth/2 - len(midLabel)/2
	endPos := plotWidth - len(endLabel)

	buf := []rune(strings.Repeat(" ", plotWidth))

	writeAt := func(pos int, s string) {
		for i, ch := range []rune(s) {
			if pos+i >= 0 && pos+i < len(buf) {
				buf[pos+i] = ch
			}
		}
	}

	writeAt(0, startLabel)
	writeAt(midPos, midLabel)
	writeAt(endPos, endLabel)

	return string(buf)
}

// ─── Utilities ────────────────────────────────────────────────────────────────

// formatFloat formats a float for axis labels: no unnecessary trailing zeros,
// at least one decimal place, compact notation for large/small numbers.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	var s string
	switch {
	case abs == 0:
		return "0"
	case abs >= 1e6:
		s = strconv.FormatFloat(v/1e6, 'f', 1, 64) + "M"
	case abs >= 1e3:
		s = strconv.FormatFloat(v/1e3, 'f', 1, 64) + "K"
	case abs >= 100:
		s = strconv.FormatFloat(v, 'f', 1, 64)
	case abs >= 1:
		s = strconv.FormatFloat(v, 'f', 2, 64)
	default:
		s = strconv.FormatFloat(v, 'f', 4, 64)
	}
	if strings.Contains(s, ".") && !strings.Contains(s, "M") && !strings.Contains(s, "K") {
		s = strings.TrimRight(s, "0")
		if strings.HasSuffix(s, ".") {
			s += "0"
		}
	}
	return s
}

// termWidth returns the terminal width from $COLUMNS, defaulting to 80.
func termWidth() int {
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if n, err := strconv.Atoi(cols); err == nil && n > 20 {
			return n
		}
	}
	return 80
}
