package party

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/normalize"
)

// Identity is the core name and address tuple of a party.
type Identity struct {
	Name     string
	Street   string
	Locality string
	Region   string
	Postal   string
	Country  string
}

// identityOf reads the stored core fields of p.
func identityOf(p *entity.Party) Identity {
	return Identity{
		Name:     normalize.Deref(p.Name),
		Street:   normalize.Deref(p.StreetAddress),
		Locality: normalize.Deref(p.Locality),
		Region:   normalize.Deref(p.Region),
		Postal:   normalize.Deref(p.PostalCode),
		Country:  normalize.Deref(p.CountryName),
	}
}

// IsZero reports whether no field is set.
func (id Identity) IsZero() bool { return id == Identity{} }

// NameOnly reports whether only the name is known.
func (id Identity) NameOnly() bool {
	return id.Street == "" && id.Locality == "" && id.Region == "" && id.Postal == "" && id.Country == ""
}

// Encode renders the identity as one alias record.
func (id Identity) Encode() string {
	return strings.Join([]string{id.Name, id.Street, id.Locality, id.Region, id.Postal, id.Country}, "|")
}

// Aliases decodes a party's alias list. A NULL or empty column is an empty
// list.
func Aliases(p *entity.Party) ([]string, error) {
	if p.AliasParties == nil || strings.TrimSpace(*p.AliasParties) == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(*p.AliasParties), &out); err != nil {
		return nil, eris.Wrapf(err, "party: decode aliases of %s", p.PartyID)
	}
	return out, nil
}

// AppendAlias appends record unless it is already the most recent alias and
// returns the encoded list and whether it grew.
func AppendAlias(aliases []string, record string) (string, bool, error) {
	added := false
	if len(aliases) == 0 || aliases[len(aliases)-1] != record {
		aliases = append(aliases, record)
		added = true
	}
	b, err := json.Marshal(aliases)
	if err != nil {
		return "", false, eris.Wrap(err, "party: encode aliases")
	}
	return string(b), added, nil
}

func encodeAliases(aliases []string) string {
	if aliases == nil {
		aliases = []string{}
	}
	b, _ := json.Marshal(aliases)
	return string(b)
}
