// Package model defines the canonical data types used throughout pitboss.
// These types are the single source of truth for back-office entities,
// analytics records, and the result envelope that every command returns.
package model

import (
	"time"
)

// ─── Reference Entities ───────────────────────────────────────────────────────

// Platform is the top of the Platform → Operator → Brand hierarchy.
type Platform struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Operator belongs to exactly one Platform.
type Operator struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlatformID string `json:"platformId"`
}

// Brand belongs to an Operator, which in turn must belong to PlatformID.
type Brand struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PlatformID string `json:"platformId"`
	OperatorID string `json:"operatorId"`
	Active     bool   `json:"isActive"`
}

// Game is an entry of the game catalog.
type Game struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Provider string `json:"provider"`
}

// APIPermission is a single row of the API-management list.
type APIPermission struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
	Status Status `json:"status"`
}

// FilterOption is a display-ready projection of an entity. It is derived
// from cached entity lists and never mutated directly.
type FilterOption struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// ─── Analytics ────────────────────────────────────────────────────────────────

// RoundRecord is one raw game round as delivered by the analytics source.
// Amounts are already converted to the display currency upstream.
type RoundRecord struct {
	RoundID    string    `json:"roundId,omitempty"`
	PlayerID   string    `json:"playerId"`
	GameID     string    `json:"gameId"`
	BrandID    string    `json:"brandId"`
	OperatorID string    `json:"operatorId"`
	PlatformID string    `json:"platformId,omitempty"`
	BetAmount  float64   `json:"betAmount"`
	WinAmount  float64   `json:"winAmount"`
	Timestamp  time.Time `json:"timestamp"`
}

// Bucket is one aggregation unit keyed by hour, day or entity id.
type Bucket struct {
	Key   string  `json:"key"`
	Sum   float64 `json:"sum"`
	Count int     `json:"count"`
}

// EntityTotals holds the summed amounts for one grouping key.
type EntityTotals struct {
	Key       string  `json:"key"`
	BetAmount float64 `json:"betAmount"`
	WinAmount float64 `json:"winAmount"`
	BetCounts int     `json:"betCounts"`
}

// GGR returns gross gaming revenue (bet minus win).
func (e EntityTotals) GGR() float64 {
	return e.BetAmount - e.WinAmount
}

// Margin returns the house margin in percent, or 0 when nothing was bet.
func (e EntityTotals) Margin() float64 {
	if e.BetAmount <= 0 {
		return 0
	}
	return e.GGR() / e.BetAmount * 100
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries performance and cache metadata for a command result.
type ResultStats struct {
	CacheHit   bool  `json:"cache_hit"`
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindOptions     = "options"
	KindPlatforms   = "platforms"
	KindOperators   = "operators"
	KindBrands      = "brands"
	KindGames       = "games"
	KindPermissions = "permissions"
	KindBuckets     = "buckets"
	KindDashboard   = "dashboard"
	KindCacheStats  = "cache_stats"
	KindTable       = "table"
)
