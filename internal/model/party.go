package model

import "slices"

// Party roles used by the adapters.
const (
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"
	RoleTenderer = "tenderer"
)

// Party is a buyer, supplier or tenderer as seen in one release.
type Party struct {
	ID      string   `json:"id,omitempty"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
	Address Address  `json:"address"`
	// Details is stored verbatim, typically a small JSON object.
	Details string `json:"details,omitempty"`
}

// HasRole reports whether role is among the party's roles.
func (p Party) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Address is a postal address snapshot.
type Address struct {
	Street   string `json:"streetAddress,omitempty"`
	Locality string `json:"locality,omitempty"`
	Region   string `json:"region,omitempty"`
	Postal   string `json:"postalCode,omitempty"`
	Country  string `json:"countryName,omitempty"`
}

// IsZero reports whether no address field is set.
func (a Address) IsZero() bool {
	return a == Address{}
}
