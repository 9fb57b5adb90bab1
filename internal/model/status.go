package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStatus is returned when a status or role string has no entry in
// the descriptor tables.
var ErrUnknownStatus = errors.New("unknown status")

// Descriptor is how a status or role is presented: label, badge colour and icon.
type Descriptor struct {
	Label string `json:"label"`
	Badge string `json:"badge"`
	Icon  string `json:"icon"`
}

// Status is the lifecycle state shared by platforms, operators, brands and
// API permissions.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
)

var statusDescriptors = map[Status]Descriptor{
	StatusActive:    {Label: "Active", Badge: "green", Icon: "●"},
	StatusInactive:  {Label: "Inactive", Badge: "grey", Icon: "○"},
	StatusPending:   {Label: "Pending", Badge: "amber", Icon: "◐"},
	StatusSuspended: {Label: "Suspended", Badge: "red", Icon: "⊘"},
}

// Statuses lists every status in display order.
var Statuses = []Status{StatusActive, StatusInactive, StatusPending, StatusSuspended}

// ParseStatus maps a raw (case-insensitive) string onto a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusDescriptors[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// Descriptor returns the presentation for s. Unknown values render with the
// raw string as label so a new upstream status never breaks a listing.
func (s Status) Descriptor() Descriptor {
	if d, ok := statusDescriptors[s]; ok {
		return d
	}
	return Descriptor{Label: string(s), Badge: "grey", Icon: "?"}
}

// StatusFromActive maps the brand active flag onto a Status.
func StatusFromActive(active bool) Status {
	if active {
		return StatusActive
	}
	return StatusInactive
}

// Role is a back-office user role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var roleDescriptors = map[Role]Descriptor{
	RoleAdmin:    {Label: "Administrator", Badge: "purple", Icon: "★"},
	RoleOperator: {Label: "Operator", Badge: "blue", Icon: "◆"},
	RoleViewer:   {Label: "Viewer", Badge: "grey", Icon: "◇"},
}

// ParseRole maps a raw (case-insensitive) string onto a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleDescriptors[r]; !ok {
		return "", fmt.Errorf("%w: role %q", ErrUnknownStatus, s)
	}
	return r, nil
}

// Descriptor returns the presentation for r.
func (r Role) Descriptor() Descriptor {
	if d, ok := roleDescriptors[r]; ok {
		return d
	}
	return Descriptor{Label: string(r), Badge: "grey", Icon: "?"}
}
