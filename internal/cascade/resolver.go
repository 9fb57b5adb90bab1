// Package cascade resolves the Platform → Operator → Brand filter hierarchy
// against the reference cache and models the user's selection as a small
// value-type state machine.
package cascade

import (
	"context"
	"errors"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/logging"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
)

// ErrNoParent is returned when a child level is selected before its parent.
var ErrNoParent = errors.New("parent not selected")

// Source is the slice of the reference cache the resolver needs.
// *refcache.Cache satisfies it.
type Source interface {
	EnsureFresh(ctx context.Context, r refcache.Resource, p api.ListParams) error
	Platforms() []model.Platform
	Operators() []model.Operator
	Brands() []model.Brand
}

// Resolver derives dependent option lists from the cached hierarchy.
// Full lists are cached once and filtered locally per selection.
type Resolver struct {
	src Source
}

// NewResolver returns a Resolver over src.
func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// refresh triggers a fetch when r is stale. Failures are logged and the
// cached list, possibly stale or empty, is used as-is.
func (rv *Resolver) refresh(ctx context.Context, r refcache.Resource) {
	if err := rv.src.EnsureFresh(ctx, r, api.ListParams{}); err != nil {
		logging.Warn().Err(err).Str("resource", r.String()).Msg("refresh failed; using cached list")
	}
}

// PlatformOptions returns every cached platform as an option.
func (rv *Resolver) PlatformOptions(ctx context.Context) []model.FilterOption {
	rv.refresh(ctx, refcache.Platforms)
	opts, _ := refcache.DeriveOptions(rv.src.Platforms(), func(p model.Platform) (string, string) {
		return p.ID, p.Name
	})
	return opts
}

// OperatorOptions returns the operators under platformID. It is empty when
// no platform is selected.
func (rv *Resolver) OperatorOptions(ctx context.Context, platformID string) []model.FilterOption {
	if platformID == "" {
		return []model.FilterOption{}
	}
	rv.refresh(ctx, refcache.Operators)

	var matched []model.Operator
	for _, op := range rv.src.Operators() {
		if op.PlatformID == platformID {
			matched = append(matched, op)
		}
	}
	opts, _ := refcache.DeriveOptions(matched, func(o model.Operator) (string, string) {
		return o.ID, o.Name
	})
	return opts
}

// BrandOptions returns the brands under both platformID and operatorID. It
// is empty unless both are selected.
func (rv *Resolver) BrandOptions(ctx context.Context, platformID, operatorID string) []model.FilterOption {
	if platformID == "" || operatorID == "" {
		return []model.FilterOption{}
	}
	rv.refresh(ctx, refcache.Brands)

	var matched []model.Brand
	for _, b := range rv.src.Brands() {
		if b.PlatformID == platformID && b.OperatorID == operatorID {
			matched = append(matched, b)
		}
	}
	opts, _ := refcache.DeriveOptions(matched, func(b model.Brand) (string, string) {
		return b.ID, b.Name
	})
	return opts
}

// ValidOperator reports whether operatorID is a cached operator of a cached
// platformID.
func (rv *Resolver) ValidOperator(platformID, operatorID string) bool {
	if platformID == "" || operatorID == "" {
		return false
	}
	platforms := rv.src.Platforms()
	for _, op := range rv.src.Operators() {
		if op.ID == operatorID {
			return op.PlatformID == platformID && ResolvableOperator(op, platforms)
		}
	}
	return false
}

// ValidBrand reports whether brandID is cached under both parents and its
// operator chain is consistent.
func (rv *Resolver) ValidBrand(platformID, operatorID, brandID string) bool {
	if platformID == "" || operatorID == "" || brandID == "" {
		return false
	}
	operators := rv.src.Operators()
	for _, b := range rv.src.Brands() {
		if b.ID == brandID {
			return b.PlatformID == platformID && b.OperatorID == operatorID && ResolvableBrand(b, operators)
		}
	}
	return false
}

// ─── Referential checks ───────────────────────────────────────────────────────

// ResolvableOperator reports whether op's parent platform is in platforms.
func ResolvableOperator(op model.Operator, platforms []model.Platform) bool {
	for _, p := range platforms {
		if p.ID == op.PlatformID {
			return true
		}
	}
	return false
}

// ResolvableBrand reports whether b's operator is in operators and belongs
// to b's platform.
func ResolvableBrand(b model.Brand, operators []model.Operator) bool {
	for _, op := range operators {
		if op.ID == b.OperatorID {
			return op.PlatformID == b.PlatformID
		}
	}
	return false
}
