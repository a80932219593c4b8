// Package selector picks the single canonical item of a release from its
// candidate items using an allow-list of classification descriptions.
package selector

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
)

// defaultDescriptions are the construction-domain categories in scope.
var defaultDescriptions = []string{
	"G12 - Moteurs, turbines, composants et accessoires connexes",
	"C02 - Ouvrages de génie civil",
	"G31 - Équipement de transport et pièces de rechange",
	"S8 - Contrôle de la qualité, essais et inspections et services de représentants techniques",
	"S5 - Services environnementaux",
	"G19 - Machinerie et outils",
	"S19 - Location à bail ou location d’installations immobilières",
	"G25 - Constructions préfabriquées",
	"G25 - Constructions préfabriqués",
	"G6 - Matériaux de construction",
	"C01 - Bâtiments",
	"Imm1 - Vente de biens immeubles",
	"S3 - Services d’architecture et d’ingénierie",
	"C03 - Autres travaux de construction",
}

// AllowList is a set of qualifying descriptions. Matching ignores quote
// style, Unicode compatibility forms, repeated spaces and letter case.
type AllowList struct {
	keys map[string]struct{}
}

// NewAllowList builds an allow-list from descriptions.
func NewAllowList(descriptions []string) AllowList {
	a := AllowList{keys: make(map[string]struct{}, len(descriptions))}
	for _, d := range descriptions {
		if k := key(d); k != "" {
			a.keys[k] = struct{}{}
		}
	}
	return a
}

// DefaultAllowList returns the built-in construction categories.
func DefaultAllowList() AllowList {
	return NewAllowList(defaultDescriptions)
}

// allowListFile is the on-disk allow-list format.
type allowListFile struct {
	Descriptions []string `yaml:"descriptions"`
}

// LoadAllowList reads a YAML file of the form {descriptions: [...]}.
func LoadAllowList(path string) (AllowList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AllowList{}, eris.Wrapf(err, "selector: read allow-list %s", path)
	}
	var f allowListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return AllowList{}, eris.Wrapf(err, "selector: parse allow-list %s", path)
	}
	if len(f.Descriptions) == 0 {
		return AllowList{}, eris.Errorf("selector: allow-list %s has no descriptions", path)
	}
	return NewAllowList(f.Descriptions), nil
}

// Len returns the number of distinct descriptions.
func (a AllowList) Len() int { return len(a.keys) }

// Contains reports whether description is allowed.
func (a AllowList) Contains(description string) bool {
	k := key(description)
	if k == "" {
		return false
	}
	_, ok := a.keys[k]
	return ok
}

func key(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(normalize.TextOrEmpty(s)), " "))
}

// Selection is the chosen item plus the single additional classification
// kept with it.
type Selection struct {
	Item       model.Item
	Additional *model.Classification
}

// SelectItem scans items in order and returns the first one whose own
// description, or failing that one of its additional classifications, is
// allowed. Additional is always the item's first additional classification,
// whichever entry matched.
func SelectItem(items []model.Item, allow AllowList) (Selection, bool) {
	for _, it := range items {
		if allow.Contains(it.Description) || anyAllowed(it.AdditionalClassifications, allow) {
			sel := Selection{Item: it}
			if len(it.AdditionalClassifications) > 0 {
				first := it.AdditionalClassifications[0]
				sel.Additional = &first
			}
			return sel, true
		}
	}
	return Selection{}, false
}

func anyAllowed(cs []model.Classification, allow AllowList) bool {
	for _, c := range cs {
		if allow.Contains(c.Description) {
			return true
		}
	}
	return false
}
