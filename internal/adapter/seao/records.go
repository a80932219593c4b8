// Package seao maps Quebec public tender notices, contracts and expenses
// onto normalized releases. The same mapping serves the XML exports and the
// legacy relational tables.
package seao

// Notice is an <avis> notice with its bidding suppliers.
type Notice struct {
	NumeroSEAO       string     `xml:"numeroseao"`
	Numero           string     `xml:"numero"`
	Organisme        string     `xml:"organisme"`
	Municipal        string     `xml:"municipal"`
	Adresse1         string     `xml:"adresse1"`
	Adresse2         string     `xml:"adresse2"`
	Ville            string     `xml:"ville"`
	Province         string     `xml:"province"`
	Pays             string     `xml:"pays"`
	CodePostal       string     `xml:"codepostal"`
	Titre            string     `xml:"titre"`
	Type             string     `xml:"type"`
	Nature           string     `xml:"nature"`
	Precision        string     `xml:"precision"`
	CategorieSEAO    string     `xml:"categorieseao"`
	DatePublication  string     `xml:"datepublication"`
	DateFermeture    string     `xml:"datefermeture"`
	DateAdjudication string     `xml:"dateadjudication"`
	UNSPSCPrincipale string     `xml:"unspscprincipale"`
	Disposition      string     `xml:"disposition"`
	HyperlienSEAO    string     `xml:"hyperlienseao"`
	Suppliers        []Supplier `xml:"fournisseurs>fournisseur"`
}

// Supplier is a <fournisseur> that bid on a notice.
type Supplier struct {
	NEQ                 string `xml:"neq"`
	NomOrganisation     string `xml:"nomorganisation"`
	Adresse1            string `xml:"adresse1"`
	Adresse2            string `xml:"adresse2"`
	Ville               string `xml:"ville"`
	Province            string `xml:"province"`
	Pays                string `xml:"pays"`
	CodePostal          string `xml:"codepostal"`
	Admissible          string `xml:"admissible"`
	Conforme            string `xml:"conforme"`
	Adjudicataire       string `xml:"adjudicataire"`
	MontantSoumis       string `xml:"montantsoumis"`
	MontantsSoumisUnite string `xml:"montantssoumisunite"`
	MontantContrat      string `xml:"montantcontrat"`
	MontantTotalContrat string `xml:"montanttotalcontrat"`
}

// ContractRecord is a <contrat> as published after award.
type ContractRecord struct {
	NumeroSEAO            string `xml:"numeroseao"`
	Numero                string `xml:"numero"`
	DateFinale            string `xml:"datefinale"`
	DatePublicationFinale string `xml:"datepublicationfinale"`
	MontantFinal          string `xml:"montantfinal"`
	NomContractant        string `xml:"nomcontractant"`
	NEQContractant        string `xml:"neqcontractant"`
}

// Expense is a <depense> recorded against a notice. ID is only known for
// rows read from the legacy tables.
type Expense struct {
	ID                     string `xml:"depense_id"`
	DateDepense            string `xml:"datedepense"`
	DatePublicationDepense string `xml:"datepublicationdepense"`
	MontantDepense         string `xml:"montantdepense"`
	Description            string `xml:"description"`
	NomContractant         string `xml:"nomcontractant"`
	NEQContractant         string `xml:"neqcontractant"`
}
