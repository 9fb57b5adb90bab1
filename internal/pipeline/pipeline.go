// Package pipeline reads and writes round-record streams via stdin/stdout.
// JSONL (one round per line) is the canonical pipe format; a single JSON
// array is accepted on input as well.
package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/derickschaefer/pitboss/internal/model"
)

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// row mirrors model.RoundRecord with a lenient timestamp.
type row struct {
	RoundID    string  `json:"roundId"`
	PlayerID   string  `json:"playerId"`
	GameID     string  `json:"gameId"`
	BrandID    string  `json:"brandId"`
	OperatorID string  `json:"operatorId"`
	PlatformID string  `json:"platformId"`
	BetAmount  float64 `json:"betAmount"`
	WinAmount  float64 `json:"winAmount"`
	Timestamp  string  `json:"timestamp"`
}

func (r row) record() (model.RoundRecord, error) {
	if r.BetAmount < 0 || r.WinAmount < 0 {
		return model.RoundRecord{}, fmt.Errorf("negative amount (bet %g, win %g)", r.BetAmount, r.WinAmount)
	}
	ts, err := ParseTimestamp(r.Timestamp)
	if err != nil {
		return model.RoundRecord{}, err
	}
	return model.RoundRecord{
		RoundID:    r.RoundID,
		PlayerID:   r.PlayerID,
		GameID:     r.GameID,
		BrandID:    r.BrandID,
		OperatorID: r.OperatorID,
		PlatformID: r.PlatformID,
		BetAmount:  r.BetAmount,
		WinAmount:  r.WinAmount,
		Timestamp:  ts,
	}, nil
}

// ParseTimestamp parses s with the accepted layouts.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// ReadRounds reads rounds from r. Blank lines and lines starting with "//"
// are skipped in JSONL input.
func ReadRounds(r io.Reader) ([]model.RoundRecord, error) {
	br := bufio.NewReader(r)
	if first, err := peekNonSpace(br); err == nil && first == '[' {
		return readArray(br)
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var out []model.RoundRecord
	lineNum := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNum++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		var rec row
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON: %w", lineNum, err)
		}
		rr, err := rec.record()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		out = append(out, rr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rounds read from input (is stdin empty?)")
	}
	return out, nil
}

// DecodeArray decodes a JSON array of rounds, as posted to the HTTP surface.
// An empty array is valid and yields no rounds.
func DecodeArray(data []byte) ([]model.RoundRecord, error) {
	var rows []row
	if err := json.Unmarshal(bytes.TrimSpace(data), &rows); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}
	out := make([]model.RoundRecord, 0, len(rows))
	for i, r := range rows {
		rr, err := r.record()
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, rr)
	}
	return out, nil
}

func readArray(r io.Reader) ([]model.RoundRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	out, err := DecodeArray(data)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no rounds read from input (empty array)")
	}
	return out, nil
}

// peekNonSpace discards leading whitespace and returns the next byte
// without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0], nil
		}
	}
}

// WriteJSONL writes rounds as JSONL to w.
func WriteJSONL(w io.Writer, rounds []model.RoundRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range rounds {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// IsTTY reports whether f is a terminal rather than a pipe or file.
func IsTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
