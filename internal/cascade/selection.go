package cascade

import "fmt"

// Field names one level of the selection.
type Field string

const (
	FieldPlatform Field = "platform"
	FieldOperator Field = "operator"
	FieldBrand    Field = "brand"
)

// Validator checks child ids against their parents. *Resolver satisfies it.
type Validator interface {
	ValidOperator(platformID, operatorID string) bool
	ValidBrand(platformID, operatorID, brandID string) bool
}

// Selection is the current filter selection. The zero value selects nothing.
// Transitions return a new Selection together with the fields they cleared.
type Selection struct {
	PlatformID string `json:"platformId"`
	OperatorID string `json:"operatorId"`
	BrandID    string `json:"brandId"`
}

// SelectPlatform sets the platform. Operator and brand survive only while
// they remain valid under the new platform.
func (s Selection) SelectPlatform(v Validator, platformID string) (Selection, []Field) {
	next := Selection{PlatformID: platformID, OperatorID: s.OperatorID, BrandID: s.BrandID}
	return next.prune(v)
}

// SelectOperator sets the operator. An empty id deselects it. An operator
// that does not belong to the selected platform is left unresolved and
// reported as reset.
func (s Selection) SelectOperator(v Validator, operatorID string) (Selection, []Field, error) {
	if s.PlatformID == "" && operatorID != "" {
		return s, nil, fmt.Errorf("operator %q: %w", operatorID, ErrNoParent)
	}
	next := Selection{PlatformID: s.PlatformID, OperatorID: operatorID, BrandID: s.BrandID}
	out, reset := next.prune(v)
	return out, reset, nil
}

// SelectBrand sets the brand. It requires both parents.
func (s Selection) SelectBrand(v Validator, brandID string) (Selection, []Field, error) {
	if (s.PlatformID == "" || s.OperatorID == "") && brandID != "" {
		return s, nil, fmt.Errorf("brand %q: %w", brandID, ErrNoParent)
	}
	next := Selection{PlatformID: s.PlatformID, OperatorID: s.OperatorID, BrandID: brandID}
	out, reset := next.prune(v)
	return out, reset, nil
}

// prune clears every level that is no longer valid under its parents.
func (s Selection) prune(v Validator) (Selection, []Field) {
	var reset []Field
	if s.OperatorID != "" && !v.ValidOperator(s.PlatformID, s.OperatorID) {
		s.OperatorID = ""
		reset = append(reset, FieldOperator)
	}
	if s.BrandID != "" && !v.ValidBrand(s.PlatformID, s.OperatorID, s.BrandID) {
		s.BrandID = ""
		reset = append(reset, FieldBrand)
	}
	return s, reset
}

// Complete reports whether all three levels are selected.
func (s Selection) Complete() bool {
	return s.PlatformID != "" && s.OperatorID != "" && s.BrandID != ""
}
