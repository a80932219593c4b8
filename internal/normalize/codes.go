package normalize

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Table names a legacy code lookup table.
type Table string

const (
	ProcurementMethod       Table = "procurement_method"
	ProcurementMethodDetail Table = "procurement_method_detail"
	MainCategory            Table = "main_category"
	AdditionalCategories    Table = "additional_categories"
)

// Category is the canonical value for a legacy code. Single-valued tables set
// Value; AdditionalCategories sets Values (possibly empty).
type Category struct {
	Value  string
	Values []string
}

// codeTable maps integer codes to canonical categories with a fallback.
type codeTable struct {
	codes    map[int]Category
	fallback Category
}

var tables = make(map[Table]codeTable)

func init() {
	register(ProcurementMethod, map[int]string{
		3: "open", 16: "open", 17: "open",
		9: "direct",
		6: "limited", 10: "limited", 14: "limited",
	}, "open")

	register(ProcurementMethodDetail, map[int]string{
		3:  "Contrat adjugé suite à un appel d’offres public",
		6:  "Contrat adjugé suite à un appel d’offres sur invitation",
		9:  "Contrat octroyé de gré à gré",
		10: "Contrat adjugé suite à un appel d’offres sur invitations",
		14: "Contrat suite à un appel d’offres sur invitation publié au SEAO",
		16: "Contrat conclu relatif aux infrastructures de transport",
		17: "Contrat conclu - Appel d'offres public non publié au SEAO",
	}, "Autre type de contrat")

	register(MainCategory, map[int]string{
		1: "Services professionnels",
		2: "Services de nature technique",
	}, "Autres")

	tables[AdditionalCategories] = codeTable{
		codes: map[int]Category{
			1: {Values: []string{"Approvisionnement (biens)"}},
			2: {Values: []string{"Services"}},
			3: {Values: []string{"Travaux de construction"}},
			5: {Values: []string{"Autre"}},
			6: {Values: []string{"Concession"}},
			7: {Values: []string{"Vente de biens immeubles"}},
			8: {Values: []string{"Vente de biens meubles"}},
		},
		fallback: Category{Values: []string{}},
	}
}

func register(name Table, codes map[int]string, fallback string) {
	t := codeTable{codes: make(map[int]Category, len(codes)), fallback: Category{Value: fallback}}
	for code, v := range codes {
		t.codes[code] = Category{Value: v}
	}
	tables[name] = t
}

// LookupTable reports whether a table is registered, with its known codes.
func LookupTable(name Table) ([]int, error) {
	t, ok := tables[name]
	if !ok {
		return nil, eris.Errorf("normalize: unknown code table %q", name)
	}
	codes := make([]int, 0, len(t.codes))
	for c := range t.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	return codes, nil
}

// MapLegacyCode returns the canonical category for code, or the table's
// documented default when the code is unmapped. Unknown tables map to the
// zero Category.
func MapLegacyCode(name Table, code int) Category {
	t, ok := tables[name]
	if !ok {
		return Category{}
	}
	c, ok := t.codes[code]
	if !ok {
		c = t.fallback
	}
	if c.Values != nil {
		c.Values = append([]string(nil), c.Values...)
		if c.Values == nil {
			c.Values = []string{}
		}
	}
	return c
}
