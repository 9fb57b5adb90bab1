package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/derickschaefer/pitboss/internal/model"
)

// ListParams narrows a reference-data list call. Empty fields are omitted.
type ListParams struct {
	PlatformID    string
	OperatorID    string
	SortDirection string // asc|desc, platforms only
}

// ListPlatforms fetches every platform, following pagination.
func (c *Client) ListPlatforms(ctx context.Context, p ListParams) ([]model.Platform, error) {
	params := url.Values{}
	dir := p.SortDirection
	if dir == "" {
		dir = "asc"
	}
	params.Set("sortDirection", dir)
	out, err := listAll[model.Platform](ctx, c, "platform/get", "platforms", params)
	if err != nil {
		return nil, fmt.Errorf("platforms: %w", err)
	}
	return out, nil
}

// ListOperators fetches operators, optionally restricted to one platform.
func (c *Client) ListOperators(ctx context.Context, p ListParams) ([]model.Operator, error) {
	params := url.Values{}
	if p.PlatformID != "" {
		params.Set("platforms", p.PlatformID)
	}
	out, err := listAll[model.Operator](ctx, c, "operator/get", "operators", params)
	if err != nil {
		return nil, fmt.Errorf("operators: %w", err)
	}
	return out, nil
}

// ListBrands fetches brands, optionally restricted by platform and operator.
func (c *Client) ListBrands(ctx context.Context, p ListParams) ([]model.Brand, error) {
	params := url.Values{}
	if p.PlatformID != "" {
		params.Set("platforms", p.PlatformID)
	}
	if p.OperatorID != "" {
		params.Set("operators", p.OperatorID)
	}
	out, err := listAll[model.Brand](ctx, c, "brand/get", "brands", params)
	if err != nil {
		return nil, fmt.Errorf("brands: %w", err)
	}
	return out, nil
}

// ListGames fetches the game catalog.
func (c *Client) ListGames(ctx context.Context, _ ListParams) ([]model.Game, error) {
	out, err := listAll[model.Game](ctx, c, "game/get", "games", url.Values{})
	if err != nil {
		return nil, fmt.Errorf("games: %w", err)
	}
	return out, nil
}

// listAll walks pageNo=1.. until a short page is returned. key names the
// array field of the response envelope.
func listAll[T any](ctx context.Context, c *Client, endpoint, key string, params url.Values) ([]T, error) {
	var all []T
	for page := 1; page <= maxPages; page++ {
		q := cloneValues(params)
		q.Set("pageNo", strconv.Itoa(page))
		q.Set("pageSize", strconv.Itoa(c.pageSize))

		var envelope map[string]json.RawMessage
		if err := c.get(ctx, endpoint, q, &envelope); err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		var items []T
		if raw, ok := envelope[key]; ok && len(raw) > 0 {
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, fmt.Errorf("page %d: decoding %s: %w", page, key, err)
			}
		}
		all = append(all, items...)
		if len(items) < c.pageSize {
			return all, nil
		}
	}
	return all, fmt.Errorf("stopped after %d pages", maxPages)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+2)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
