// Package dashboard assembles the dashboard view model from raw rounds and
// cached reference labels.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/derickschaefer/pitboss/internal/aggregate"
	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/authgate"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
)

// DefaultTopN is the leaderboard length when Options.TopN is zero.
const DefaultTopN = 10

// LabelSource maps entity ids to display labels. *refcache.Cache satisfies it.
// Implementations must not block.
type LabelSource interface {
	Label(r refcache.Resource, id string) (string, bool)
}

// Options tunes Assemble.
type Options struct {
	Location   *time.Location // hour/day boundaries; nil means time.Local
	TopN       int
	DenseHours bool // zero-fill the hourly series to 24 entries
	Currency   string
}

// ─── View Model ───────────────────────────────────────────────────────────────

// Row is one labelled entity line (brand, operator, game).
type Row struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	BetAmount float64 `json:"betAmount"`
	WinAmount float64 `json:"winAmount"`
	GGR       float64 `json:"ggr"`
	Margin    float64 `json:"margin"`
	Rounds    int     `json:"rounds"`
}

// PlayerRow is one player line. Margin uses the player-side convention.
type PlayerRow struct {
	PlayerID  string  `json:"playerId"`
	BetAmount float64 `json:"betAmount"`
	WinAmount float64 `json:"winAmount"`
	Net       float64 `json:"net"` // win - bet
	Margin    float64 `json:"margin"`
	Rounds    int     `json:"rounds"`
}

// UniqueRow counts distinct players for one brand.
type UniqueRow struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Players int    `json:"players"`
}

// HourlySeries holds the per-hour series, keyed "00".."23".
type HourlySeries struct {
	Bet      []model.Bucket `json:"bet"`
	GGR      []model.Bucket `json:"ggr"`
	Turnover []model.Bucket `json:"turnover"`
}

// View is everything the presentation layer needs for one dashboard.
type View struct {
	Currency      string                `json:"currency,omitempty"`
	Totals        aggregate.Summary     `json:"totals"`
	Hourly        HourlySeries          `json:"hourly"`
	HourlyStats   aggregate.SeriesStats `json:"hourlyStats"`
	Daily         []model.Bucket        `json:"daily"`
	DailyTrend    aggregate.TrendResult `json:"dailyTrend"`
	Brands        []Row                 `json:"brands"`
	Operators     []Row                 `json:"operators"`
	TopGames      []Row                 `json:"topGames"`
	TopPlayers    []PlayerRow           `json:"topPlayers"`
	Winners       []PlayerRow           `json:"winners"`
	UniquePlayers []UniqueRow           `json:"uniquePlayers"`
}

// ─── Assemble ─────────────────────────────────────────────────────────────────

// Assemble builds a View. A label miss falls back to the raw id; labels may
// be nil.
func Assemble(records []model.RoundRecord, labels LabelSource, opts Options) View {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	n := opts.TopN
	if n <= 0 {
		n = DefaultTopN
	}
	lookup := func(r refcache.Resource, id string) string {
		if labels != nil {
			if l, ok := labels.Label(r, id); ok {
				return l
			}
		}
		return id
	}

	v := View{
		Currency: opts.Currency,
		Totals:   aggregate.Totals(records),
		Hourly: HourlySeries{
			Bet:      aggregate.BucketHourly(records, aggregate.FieldBet, loc),
			GGR:      aggregate.BucketHourly(records, aggregate.FieldGGR, loc),
			Turnover: aggregate.BucketHourly(records, aggregate.FieldTurnover, loc),
		},
		Daily: aggregate.BucketDaily(records, aggregate.FieldGGR, loc),
	}
	v.HourlyStats = aggregate.Describe(v.Hourly.GGR)
	v.DailyTrend = aggregate.Trend(v.Daily)
	if opts.DenseHours {
		v.Hourly.Bet = aggregate.FillHours(v.Hourly.Bet)
		v.Hourly.GGR = aggregate.FillHours(v.Hourly.GGR)
		v.Hourly.Turnover = aggregate.FillHours(v.Hourly.Turnover)
	}

	byTurnover := func(r Row) float64 { return r.BetAmount }
	rowID := func(r Row) string { return r.ID }

	v.Brands = aggregate.TopN(entityRows(records, aggregate.KeyBrand, refcache.Brands, lookup), byTurnover, 0, rowID)
	v.Operators = aggregate.TopN(entityRows(records, aggregate.KeyOperator, refcache.Operators, lookup), byTurnover, 0, rowID)
	v.TopGames = aggregate.TopN(entityRows(records, aggregate.KeyGame, refcache.Games, lookup), byTurnover, n, rowID)

	players := playerRows(records)
	playerID := func(p PlayerRow) string { return p.PlayerID }
	v.TopPlayers = aggregate.TopN(players, func(p PlayerRow) float64 { return p.BetAmount }, n, playerID)

	var winners []PlayerRow
	for _, p := range players {
		if p.Net > 0 {
			winners = append(winners, p)
		}
	}
	v.Winners = aggregate.TopN(winners, func(p PlayerRow) float64 { return p.Net }, n, playerID)

	uniq := aggregate.UniqueCount(records, aggregate.KeyBrand, aggregate.KeyPlayer)
	v.UniquePlayers = make([]UniqueRow, 0, len(uniq))
	for _, u := range uniq {
		v.UniquePlayers = append(v.UniquePlayers, UniqueRow{ID: u.Key, Label: lookup(refcache.Brands, u.Key), Players: u.Count})
	}
	v.UniquePlayers = aggregate.TopN(v.UniquePlayers, func(u UniqueRow) float64 { return float64(u.Players) }, 0, nil)

	return v
}

func entityRows(records []model.RoundRecord, key aggregate.KeyField, r refcache.Resource, lookup func(refcache.Resource, string) string) []Row {
	groups := aggregate.GroupByEntity(records, key)
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, Row{
			ID:        g.Key,
			Label:     lookup(r, g.Key),
			BetAmount: g.BetAmount,
			WinAmount: g.WinAmount,
			GGR:       g.GGR(),
			Margin:    aggregate.Margin(g.BetAmount, g.WinAmount),
			Rounds:    g.BetCounts,
		})
	}
	return rows
}

func playerRows(records []model.RoundRecord) []PlayerRow {
	groups := aggregate.GroupByEntity(records, aggregate.KeyPlayer)
	rows := make([]PlayerRow, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, PlayerRow{
			PlayerID:  g.Key,
			BetAmount: g.BetAmount,
			WinAmount: g.WinAmount,
			Net:       g.WinAmount - g.BetAmount,
			Margin:    aggregate.PlayerMargin(g.BetAmount, g.WinAmount),
			Rounds:    g.BetCounts,
		})
	}
	return rows
}

// ─── Filtering ────────────────────────────────────────────────────────────────

// Filter narrows records to a selection and a half-open time window
// [From, To). Empty filter fields and zero times do not filter; a record
// missing a selected field never matches.
type Filter struct {
	PlatformID string
	OperatorID string
	BrandID    string
	From       time.Time
	To         time.Time
}

// Apply returns the records matching f.
func (f Filter) Apply(records []model.RoundRecord) []model.RoundRecord {
	out := make([]model.RoundRecord, 0, len(records))
	for _, r := range records {
		if f.PlatformID != "" && r.PlatformID != f.PlatformID {
			continue
		}
		if f.OperatorID != "" && r.OperatorID != f.OperatorID {
			continue
		}
		if f.BrandID != "" && r.BrandID != f.BrandID {
			continue
		}
		if !f.From.IsZero() && r.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.Timestamp.Before(f.To) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ─── Remote Fetch ─────────────────────────────────────────────────────────────

// RoundsFetcher loads rounds from the analytics source. *api.Client satisfies it.
type RoundsFetcher interface {
	GetRounds(ctx context.Context, q api.RoundQuery) ([]model.RoundRecord, error)
}

// Gate reports session readiness. *authgate.Gate satisfies it.
type Gate interface {
	Ready() bool
}

// Fetch loads rounds for q. It returns authgate.ErrNotReady without a
// request while the session is not ready.
func Fetch(ctx context.Context, client RoundsFetcher, gate Gate, q api.RoundQuery) ([]model.RoundRecord, error) {
	if gate != nil && !gate.Ready() {
		return nil, authgate.ErrNotReady
	}
	rounds, err := client.GetRounds(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetching rounds: %w", err)
	}
	return rounds, nil
}
