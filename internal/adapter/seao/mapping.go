package seao

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
)

// Identifier prefixes of the published OCDS data.
const (
	OCIDPrefix     = "ocds-ec9k95-"
	BuyerPrefix    = "OP-"
	SupplierPrefix = "FO-"
	MissingNEQ     = "FO-MISSING"
	Currency       = "CAD"
)

// Item classification schemes.
const (
	SchemeUNSPSC   = "UNSPSC"
	SchemeCategory = "CATEGORY"
)

var expenseNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:procurement:seao-expense"))

// OCID returns the release id of a notice number.
func OCID(numeroSEAO string) string {
	n := strings.TrimSpace(numeroSEAO)
	if n == "" {
		return ""
	}
	return OCIDPrefix + n
}

// SupplierID returns the party id of a supplier with the given NEQ.
func SupplierID(neq string) string {
	if neq = strings.TrimSpace(neq); neq != "" {
		return SupplierPrefix + neq
	}
	return MissingNEQ
}

// CategoryPrefix returns the code before the first hyphen of a SEAO
// category, as in "C01" for "C01 - Bâtiments".
func CategoryPrefix(category string) string {
	prefix, _, _ := strings.Cut(category, "-")
	return strings.TrimSpace(prefix)
}

// Release maps a notice to a full release. Every supplier bids; winners
// share one award named after the notice number.
func (n *Notice) Release() model.Release {
	ocid := OCID(n.NumeroSEAO)
	published := normalize.Date(n.DatePublication)
	buyerID := BuyerPrefix + strings.TrimSpace(n.NumeroSEAO)

	rel := model.Release{
		OCID:           ocid,
		ID:             strings.TrimSpace(n.Numero),
		Date:           published,
		Tags:           []string{"avis"},
		InitiationType: "tender",
		Language:       "fr",
		Kind:           model.KindFull,
		Tender: model.Tender{
			ID:                       strings.TrimSpace(n.Numero),
			Title:                    n.Titre,
			Status:                   "complete",
			ProcurementMethod:        normalize.MapLegacyCode(normalize.ProcurementMethod, code(n.Type)).Value,
			ProcurementMethodDetails: normalize.MapLegacyCode(normalize.ProcurementMethodDetail, code(n.Type)).Value,
			MainCategory:             normalize.MapLegacyCode(normalize.MainCategory, code(n.Precision)).Value,
			AdditionalCategories:     normalize.MapLegacyCode(normalize.AdditionalCategories, code(n.Nature)).Values,
			ProcuringEntityID:        buyerID,
			StartDate:                published,
			EndDate:                  normalize.Date(n.DateFermeture),
			Items:                    []model.Item{n.item()},
			DeriveTenderers:          true,
		},
	}
	if url := strings.TrimSpace(n.HyperlienSEAO); url != "" {
		rel.Tender.DocumentURLs = []string{url}
	}

	rel.Parties = append(rel.Parties, model.Party{
		ID:      buyerID,
		Name:    n.Organisme,
		Roles:   []string{model.RoleBuyer},
		Address: address(n.Adresse1, n.Adresse2, n.Ville, n.Province, n.CodePostal, n.Pays),
		Details: details("Municipal", municipal(n.Municipal)),
	})

	var award *model.Award
	for _, s := range n.Suppliers {
		id := SupplierID(s.NEQ)
		winner := flag(s.Adjudicataire)
		role := model.RoleTenderer
		if winner {
			role = model.RoleSupplier
		}
		rel.Parties = append(rel.Parties, model.Party{
			ID:      id,
			Name:    s.NomOrganisation,
			Roles:   []string{role},
			Address: address(s.Adresse1, s.Adresse2, s.Ville, s.Province, s.CodePostal, s.Pays),
			Details: details("NEQ", strings.TrimSpace(s.NEQ)),
		})

		unit := strings.TrimSpace(s.MontantsSoumisUnite)
		if unit == "" {
			unit = Currency
		}
		rel.Bids = append(rel.Bids, model.Bid{
			PartyID:    id,
			Admissible: normalize.Bool(s.Admissible),
			Conform:    normalize.Bool(s.Conforme),
			Value:      normalize.Float(s.MontantSoumis),
			ValueUnit:  unit,
		})

		if !winner {
			continue
		}
		if award == nil {
			award = &model.Award{
				ID:     strings.TrimSpace(n.Numero),
				Status: "active",
				Date:   normalize.Date(n.DateAdjudication),
				Value: model.Value{
					Amount:      normalize.Float(s.MontantContrat),
					Currency:    Currency,
					TotalAmount: normalize.Float(s.MontantTotalContrat),
				},
			}
		}
		award.Suppliers = append(award.Suppliers, model.SupplierRef{ID: id, Name: s.NomOrganisation})
	}
	if award != nil {
		rel.Awards = []model.Award{*award}
	}
	return rel
}

func (n *Notice) item() model.Item {
	category := strings.TrimSpace(n.CategorieSEAO)
	prefix := CategoryPrefix(category)
	return model.Item{
		ID:          prefix,
		Description: category,
		Classification: model.Classification{
			Scheme:      SchemeUNSPSC,
			ID:          strings.TrimSpace(n.UNSPSCPrincipale),
			Description: n.Disposition,
		},
		AdditionalClassifications: []model.Classification{
			{Scheme: SchemeCategory, ID: prefix, Description: category},
		},
	}
}

// Release maps a contract to a supplement of its notice's release. A
// contract with a final publication date is terminated.
func (c *ContractRecord) Release() model.Release {
	final := normalize.Date(c.DatePublicationFinale)
	signed := normalize.Date(c.DateFinale)
	if signed == nil {
		signed = final
	}
	status := "active"
	if final != nil {
		status = "terminated"
	}
	return model.Release{
		OCID: OCID(c.NumeroSEAO),
		Kind: model.KindSupplement,
		Contracts: []model.Contract{{
			ID:         strings.TrimSpace(c.Numero),
			Status:     status,
			PeriodEnd:  final,
			Value:      model.Value{Amount: normalize.Float(c.MontantFinal)},
			DateSigned: signed,
		}},
	}
}

// ExpenseRelease maps the expenses of one notice to a supplement carrying
// one transaction each, with no known contract.
func ExpenseRelease(numeroSEAO, numero string, expenses []Expense) model.Release {
	rel := model.Release{OCID: OCID(numeroSEAO), Kind: model.KindSupplement}
	for _, e := range expenses {
		rel.Transactions = append(rel.Transactions, model.Transaction{
			ID:     e.transactionID(numeroSEAO, numero),
			Source: e.Description,
			Date:   normalize.Date(e.DateDepense),
			Value:  model.Value{Amount: normalize.Float(e.MontantDepense), Currency: Currency},
		})
	}
	return rel
}

// transactionID uses the legacy row id when known, and otherwise a name
// based UUID of the expense's content so that re-reading a file maps to the
// same transaction.
func (e Expense) transactionID(numeroSEAO, numero string) string {
	if id := strings.TrimSpace(e.ID); id != "" {
		return "txn-" + id
	}
	key := strings.Join([]string{
		strings.TrimSpace(numeroSEAO),
		strings.TrimSpace(numero),
		strings.TrimSpace(e.DateDepense),
		strings.TrimSpace(e.MontantDepense),
		strings.TrimSpace(e.Description),
		strings.TrimSpace(e.NEQContractant),
	}, "|")
	return "txn-" + uuid.NewSHA1(expenseNamespace, []byte(key)).String()
}

func code(raw string) int {
	if v := normalize.Int(raw); v != nil {
		return *v
	}
	return 0
}

func flag(raw string) bool {
	v := normalize.Bool(raw)
	return v != nil && *v
}

func municipal(raw string) string {
	if flag(raw) {
		return "1"
	}
	return "0"
}

func address(line1, line2, city, region, postal, country string) model.Address {
	return model.Address{
		Street:   strings.TrimSpace(strings.TrimSpace(line1) + " " + strings.TrimSpace(line2)),
		Locality: city,
		Region:   region,
		Postal:   postal,
		Country:  country,
	}
}

func details(key, value string) string {
	data, err := json.Marshal(map[string]string{key: value})
	if err != nil {
		return ""
	}
	return string(data)
}
