// Package aggregate turns raw round records into buckets, per-entity totals,
// rankings and margins. Every function is pure and deterministic; no I/O.
//
// Field and KeyField are closed sets. Passing a value outside them is a
// programming error and panics.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Fields ───────────────────────────────────────────────────────────────────

// Field selects the numeric value summed into a bucket.
type Field string

const (
	FieldBet      Field = "bet"
	FieldWin      Field = "win"
	FieldGGR      Field = "ggr"
	FieldTurnover Field = "turnover" // same as bet
	FieldCount    Field = "count"    // one per record
)

// ParseField maps user input to a Field.
func ParseField(s string) (Field, error) {
	switch f := Field(s); f {
	case FieldBet, FieldWin, FieldGGR, FieldTurnover, FieldCount:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q (use bet, win, ggr, turnover, count)", s)
}

// Value extracts f from r.
func (f Field) Value(r model.RoundRecord) float64 {
	switch f {
	case FieldBet, FieldTurnover:
		return r.BetAmount
	case FieldWin:
		return r.WinAmount
	case FieldGGR:
		return r.BetAmount - r.WinAmount
	case FieldCount:
		return 1
	}
	panic(fmt.Sprintf("aggregate: unknown field %q", string(f)))
}

// KeyField selects the identifier records are grouped by.
type KeyField string

const (
	KeyBrand    KeyField = "brand"
	KeyOperator KeyField = "operator"
	KeyPlatform KeyField = "platform"
	KeyGame     KeyField = "game"
	KeyPlayer   KeyField = "player"
)

// ParseKeyField maps user input to a KeyField.
func ParseKeyField(s string) (KeyField, error) {
	switch k := KeyField(s); k {
	case KeyBrand, KeyOperator, KeyPlatform, KeyGame, KeyPlayer:
		return k, nil
	}
	return "", fmt.Errorf("unknown key %q (use brand, operator, platform, game, player)", s)
}

// Key extracts k from r.
func (k KeyField) Key(r model.RoundRecord) string {
	switch k {
	case KeyBrand:
		return r.BrandID
	case KeyOperator:
		return r.OperatorID
	case KeyPlatform:
		return r.PlatformID
	case KeyGame:
		return r.GameID
	case KeyPlayer:
		return r.PlayerID
	}
	panic(fmt.Sprintf("aggregate: unknown key field %q", string(k)))
}

// ─── Time Buckets ─────────────────────────────────────────────────────────────

// BucketHourly sums field per local hour of day in loc. Keys are "00".."23";
// hours without records are absent. The result is ordered by hour.
// Records from different days that share an hour land in the same bucket.
func BucketHourly(records []model.RoundRecord, field Field, loc *time.Location) []model.Bucket {
	if loc == nil {
		loc = time.Local
	}
	return bucketBy(records, field, func(r model.RoundRecord) string {
		return fmt.Sprintf("%02d", r.Timestamp.In(loc).Hour())
	})
}

// BucketDaily sums field per local calendar day in loc, keyed YYYY-MM-DD.
func BucketDaily(records []model.RoundRecord, field Field, loc *time.Location) []model.Bucket {
	if loc == nil {
		loc = time.Local
	}
	return bucketBy(records, field, func(r model.RoundRecord) string {
		return r.Timestamp.In(loc).Format("2006-01-02")
	})
}

// bucketBy groups by a sortable key and returns buckets in key order.
func bucketBy(records []model.RoundRecord, field Field, key func(model.RoundRecord) string) []model.Bucket {
	idx := make(map[string]int)
	var out []model.Bucket
	for _, r := range records {
		v := field.Value(r)
		k := key(r)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, model.Bucket{Key: k})
		}
		out[i].Sum += v
		out[i].Count++
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	if out == nil {
		out = []model.Bucket{}
	}
	return out
}

// FillHours returns a dense 24-entry timeline. Missing hours get zero buckets.
func FillHours(buckets []model.Bucket) []model.Bucket {
	byKey := make(map[string]model.Bucket, len(buckets))
	for _, b := range buckets {
		byKey[b.Key] = b
	}
	out := make([]model.Bucket, 24)
	for h := 0; h < 24; h++ {
		k := fmt.Sprintf("%02d", h)
		if b, ok := byKey[k]; ok {
			out[h] = b
		} else {
			out[h] = model.Bucket{Key: k}
		}
	}
	return out
}

// ─── Entity Grouping ──────────────────────────────────────────────────────────

// GroupByEntity sums bet, win and round count per key. Groups appear in the
// order their key was first seen.
func GroupByEntity(records []model.RoundRecord, key KeyField) []model.EntityTotals {
	idx := make(map[string]int)
	out := []model.EntityTotals{}
	for _, r := range records {
		k := key.Key(r)
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, model.EntityTotals{Key: k})
		}
		out[i].BetAmount += r.BetAmount
		out[i].WinAmount += r.WinAmount
		out[i].BetCounts++
	}
	return out
}

// GroupIndex indexes groups by key.
func GroupIndex(groups []model.EntityTotals) map[string]model.EntityTotals {
	m := make(map[string]model.EntityTotals, len(groups))
	for _, g := range groups {
		m[g.Key] = g
	}
	return m
}

// UniqueCount counts distinct values of distinct within each group. Groups
// are returned in first-seen order as buckets with Count set and Sum zero.
func UniqueCount(records []model.RoundRecord, group, distinct KeyField) []model.Bucket {
	idx := make(map[string]int)
	seen := make(map[string]map[string]struct{})
	out := []model.Bucket{}
	for _, r := range records {
		g := group.Key(r)
		d := distinct.Key(r)
		i, ok := idx[g]
		if !ok {
			i = len(out)
			idx[g] = i
			out = append(out, model.Bucket{Key: g})
			seen[g] = make(map[string]struct{})
		}
		if _, dup := seen[g][d]; !dup {
			seen[g][d] = struct{}{}
			out[i].Count++
		}
	}
	return out
}

// ─── Margins ──────────────────────────────────────────────────────────────────

// Margin is the house margin in percent: (bet-win)/bet*100.
// Positive favours the house. Returns 0 when bet <= 0.
func Margin(bet, win float64) float64 {
	if bet <= 0 {
		return 0
	}
	return (bet - win) / bet * 100
}

// PlayerMargin is the player-side margin in percent: (win-bet)/bet*100.
// Positive favours the player; used for winner rankings. Returns 0 when bet <= 0.
func PlayerMargin(bet, win float64) float64 {
	if bet <= 0 {
		return 0
	}
	return (win - bet) / bet * 100
}

// ─── Ranking ──────────────────────────────────────────────────────────────────

// TopN sorts items by score descending (stable, so ties keep input order),
// keeps the first item per dedupe key and truncates to n. A nil key disables
// deduplication; n <= 0 means no limit. items is not modified.
func TopN[T any](items []T, by func(T) float64, n int, key func(T) string) []T {
	sorted := make([]T, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return by(sorted[i]) > by(sorted[j]) })

	out := make([]T, 0, len(sorted))
	seen := make(map[string]struct{})
	for _, it := range sorted {
		if key != nil {
			k := key(it)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		out = append(out, it)
		if n > 0 && len(out) == n {
			break
		}
	}
	return out
}

// ─── Totals ───────────────────────────────────────────────────────────────────

// Summary is the headline block of a dashboard.
type Summary struct {
	BetAmount     float64 `json:"betAmount"`
	WinAmount     float64 `json:"winAmount"`
	GGR           float64 `json:"ggr"`
	Margin        float64 `json:"margin"`
	Rounds        int     `json:"rounds"`
	UniquePlayers int     `json:"uniquePlayers"`
}

// Totals sums every record into one Summary.
func Totals(records []model.RoundRecord) Summary {
	var s Summary
	players := make(map[string]struct{})
	for _, r := range records {
		s.BetAmount += r.BetAmount
		s.WinAmount += r.WinAmount
		s.Rounds++
		if r.PlayerID != "" {
			players[r.PlayerID] = struct{}{}
		}
	}
	s.GGR = s.BetAmount - s.WinAmount
	s.Margin = Margin(s.BetAmount, s.WinAmount)
	s.UniquePlayers = len(players)
	return s
}
