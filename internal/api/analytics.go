package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/derickschaefer/pitboss/internal/model"
)

// ─── Dashboard analytics ──────────────────────────────────────────────────────

// RoundQuery selects the raw rounds for a dashboard.
type RoundQuery struct {
	From       time.Time
	To         time.Time
	PlatformID string
	OperatorID string
	BrandID    string
	Currency   string
}

// Values encodes q as query parameters.
func (q RoundQuery) Values() url.Values {
	params := url.Values{}
	if !q.From.IsZero() {
		params.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		params.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.PlatformID != "" {
		params.Set("platforms", q.PlatformID)
	}
	if q.OperatorID != "" {
		params.Set("operators", q.OperatorID)
	}
	if q.BrandID != "" {
		params.Set("brands", q.BrandID)
	}
	if q.Currency != "" {
		params.Set("currency", q.Currency)
	}
	return params
}

// GetRounds fetches raw round records for the dashboard.
func (c *Client) GetRounds(ctx context.Context, q RoundQuery) ([]model.RoundRecord, error) {
	var raw struct {
		Rounds []model.RoundRecord `json:"rounds"`
	}
	if err := c.get(ctx, "dashboard/rounds", q.Values(), &raw); err != nil {
		return nil, fmt.Errorf("rounds: %w", err)
	}
	return raw.Rounds, nil
}

// ─── API management ───────────────────────────────────────────────────────────

// APIFilter holds the filters of the API-management list.
type APIFilter struct {
	Search string
	Method string
	Status string
	PageNo int
	Limit  int
}

// APIPage is one page of API-permission entries.
type APIPage struct {
	Items []model.APIPermission `json:"items"`
	Total int                   `json:"total"`
}

// ListAPIPermissions fetches a single page of API-permission entries.
func (c *Client) ListAPIPermissions(ctx context.Context, f APIFilter) (*APIPage, error) {
	params := url.Values{}
	page := f.PageNo
	if page < 1 {
		page = 1
	}
	size := f.Limit
	if size <= 0 {
		size = c.pageSize
	}
	params.Set("pageNo", strconv.Itoa(page))
	params.Set("pageSize", strconv.Itoa(size))
	if f.Search != "" {
		params.Set("search", f.Search)
	}
	if f.Method != "" {
		params.Set("method", f.Method)
	}
	if f.Status != "" {
		params.Set("status", f.Status)
	}

	var out APIPage
	if err := c.get(ctx, "apiManagement/get", params, &out); err != nil {
		return nil, fmt.Errorf("api management: %w", err)
	}
	return &out, nil
}
