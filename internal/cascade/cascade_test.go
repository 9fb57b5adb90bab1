package cascade_test

import (
	"context"
	"errors"
	"testing"

	"github.com/derickschaefer/pitboss/internal/api"
	"github.com/derickschaefer/pitboss/internal/cascade"
	"github.com/derickschaefer/pitboss/internal/model"
	"github.com/derickschaefer/pitboss/internal/refcache"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

type stubSource struct {
	platforms []model.Platform
	operators []model.Operator
	brands    []model.Brand
	err       error
	refreshed []refcache.Resource
}

func (s *stubSource) EnsureFresh(_ context.Context, r refcache.Resource, _ api.ListParams) error {
	s.refreshed = append(s.refreshed, r)
	return s.err
}

func (s *stubSource) Platforms() []model.Platform { return s.platforms }
func (s *stubSource) Operators() []model.Operator { return s.operators }
func (s *stubSource) Brands() []model.Brand       { return s.brands }

// hierarchy: p1 → {o1 → {b1, b2}, o2 → {b3}}, p2 → {o3 → {b4}}
func hierarchy() *stubSource {
	return &stubSource{
		platforms: []model.Platform{{ID: "p1", Name: "Alpha"}, {ID: "p2", Name: "Beta"}},
		operators: []model.Operator{
			{ID: "o1", Name: "Zeta Ops", PlatformID: "p1"},
			{ID: "o2", Name: "Acme", PlatformID: "p1"},
			{ID: "o3", Name: "Other", PlatformID: "p2"},
		},
		brands: []model.Brand{
			{ID: "b1", Name: "Lucky", PlatformID: "p1", OperatorID: "o1"},
			{ID: "b2", Name: "Fortune", PlatformID: "p1", OperatorID: "o1"},
			{ID: "b3", Name: "Spin", PlatformID: "p1", OperatorID: "o2"},
			{ID: "b4", Name: "Jackpot", PlatformID: "p2", OperatorID: "o3"},
			// inconsistent: claims p2 but its operator belongs to p1
			{ID: "b5", Name: "Broken", PlatformID: "p2", OperatorID: "o1"},
		},
	}
}

func ids(opts []model.FilterOption) []string {
	out := make([]string, len(opts))
	for i, o := range opts {
		out[i] = o.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ─── Resolver ─────────────────────────────────────────────────────────────────

func TestOperatorOptionsFilterByPlatform(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	got := ids(rv.OperatorOptions(context.Background(), "p1"))
	// sorted by label: Acme, Zeta Ops
	if !equal(got, []string{"o2", "o1"}) {
		t.Errorf("OperatorOptions(p1): got %v", got)
	}
}

func TestOperatorOptionsEmptyWithoutPlatform(t *testing.T) {
	src := hierarchy()
	rv := cascade.NewResolver(src)
	if got := rv.OperatorOptions(context.Background(), ""); len(got) != 0 {
		t.Errorf("expected no operators, got %v", got)
	}
	if len(src.refreshed) != 0 {
		t.Error("no refresh should happen without a parent")
	}
}

func TestBrandOptionsNeedBothParents(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	if got := rv.BrandOptions(context.Background(), "p1", ""); len(got) != 0 {
		t.Errorf("expected no brands without operator, got %v", got)
	}
	got := ids(rv.BrandOptions(context.Background(), "p1", "o1"))
	if !equal(got, []string{"b2", "b1"}) {
		t.Errorf("BrandOptions(p1,o1): got %v", got)
	}
}

func TestFetchErrorFallsBackToCachedList(t *testing.T) {
	src := hierarchy()
	src.err = errors.New("timeout")
	rv := cascade.NewResolver(src)

	got := rv.PlatformOptions(context.Background())
	if len(got) != 2 {
		t.Errorf("expected cached platforms despite error, got %v", got)
	}
	if len(src.refreshed) != 1 || src.refreshed[0] != refcache.Platforms {
		t.Errorf("expected a platforms refresh, got %v", src.refreshed)
	}
}

func TestValidity(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	cases := []struct {
		name string
		got  bool
		want bool
	}{
		{"operator under platform", rv.ValidOperator("p1", "o1"), true},
		{"operator under other platform", rv.ValidOperator("p2", "o1"), false},
		{"unknown operator", rv.ValidOperator("p1", "nope"), false},
		{"brand under both", rv.ValidBrand("p1", "o1", "b1"), true},
		{"brand under wrong operator", rv.ValidBrand("p1", "o2", "b1"), false},
		{"inconsistent brand", rv.ValidBrand("p2", "o1", "b5"), false},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, c.got)
		}
	}
}

func TestResolvableOperatorNeedsCachedPlatform(t *testing.T) {
	op := model.Operator{ID: "o9", PlatformID: "p9"}
	if cascade.ResolvableOperator(op, hierarchy().platforms) {
		t.Error("operator with uncached platform must not resolve")
	}
}

// ─── Selection ────────────────────────────────────────────────────────────────

func TestChangingPlatformClearsChildren(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	sel := cascade.Selection{PlatformID: "p1", OperatorID: "o1", BrandID: "b1"}

	next, reset := sel.SelectPlatform(rv, "p2")
	if next.OperatorID != "" || next.BrandID != "" {
		t.Errorf("children should be cleared, got %+v", next)
	}
	if len(reset) != 2 || reset[0] != cascade.FieldOperator || reset[1] != cascade.FieldBrand {
		t.Errorf("expected operator and brand reset, got %v", reset)
	}
	if sel.OperatorID != "o1" {
		t.Error("transitions must not mutate the receiver")
	}
}

func TestReselectingSamePlatformKeepsValidChildren(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	sel := cascade.Selection{PlatformID: "p1", OperatorID: "o1", BrandID: "b1"}

	next, reset := sel.SelectPlatform(rv, "p1")
	if next != sel || len(reset) != 0 {
		t.Errorf("still-valid children should survive, got %+v reset=%v", next, reset)
	}
}

func TestChangingOperatorClearsBrand(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	sel := cascade.Selection{PlatformID: "p1", OperatorID: "o1", BrandID: "b1"}

	next, reset, err := sel.SelectOperator(rv, "o2")
	if err != nil {
		t.Fatal(err)
	}
	if next.OperatorID != "o2" || next.BrandID != "" {
		t.Errorf("unexpected selection %+v", next)
	}
	if len(reset) != 1 || reset[0] != cascade.FieldBrand {
		t.Errorf("expected brand reset, got %v", reset)
	}
}

func TestSelectWithoutParentIsRejected(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	if _, _, err := (cascade.Selection{}).SelectOperator(rv, "o1"); !errors.Is(err, cascade.ErrNoParent) {
		t.Errorf("SelectOperator without platform: expected ErrNoParent, got %v", err)
	}
	sel := cascade.Selection{PlatformID: "p1"}
	if _, _, err := sel.SelectBrand(rv, "b1"); !errors.Is(err, cascade.ErrNoParent) {
		t.Errorf("SelectBrand without operator: expected ErrNoParent, got %v", err)
	}
}

func TestInvalidChildIsUnresolved(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	sel := cascade.Selection{PlatformID: "p2"}

	next, reset, err := sel.SelectOperator(rv, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if next.OperatorID != "" || len(reset) != 1 || reset[0] != cascade.FieldOperator {
		t.Errorf("foreign operator should be left unresolved, got %+v reset=%v", next, reset)
	}
}

func TestCompleteSelection(t *testing.T) {
	rv := cascade.NewResolver(hierarchy())
	sel, _ := cascade.Selection{}.SelectPlatform(rv, "p1")
	sel, _, _ = sel.SelectOperator(rv, "o1")
	sel, _, _ = sel.SelectBrand(rv, "b2")
	if !sel.Complete() || sel.BrandID != "b2" {
		t.Errorf("expected complete selection, got %+v", sel)
	}
}
