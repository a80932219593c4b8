package model

import "time"

// Value is a monetary amount.
type Value struct {
	Amount      *float64 `json:"amount,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	TotalAmount *float64 `json:"totalAmount,omitempty"`
}

// Bid is one party's bid, possibly scoped to lots.
type Bid struct {
	PartyID     string   `json:"partyId"`
	RelatedLots []string `json:"relatedLots,omitempty"`
	Admissible  *bool    `json:"admissible,omitempty"`
	Conform     *bool    `json:"conform,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	ValueUnit   string   `json:"valueUnit,omitempty"`
}

// Award is an award decision with its suppliers.
type Award struct {
	ID        string        `json:"id"`
	Status    string        `json:"status,omitempty"`
	Date      *time.Time    `json:"date,omitempty"`
	Value     Value         `json:"value"`
	Suppliers []SupplierRef `json:"suppliers,omitempty"`
}

// SupplierRef names an award supplier. Only the id and name are known on
// the award path.
type SupplierRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Contract is a signed contract. AwardID may be empty when the source does
// not link contracts to awards.
type Contract struct {
	ID           string        `json:"id"`
	AwardID      string        `json:"awardID,omitempty"`
	Status       string        `json:"status,omitempty"`
	PeriodEnd    *time.Time    `json:"periodEnd,omitempty"`
	Value        Value         `json:"value"`
	DateSigned   *time.Time    `json:"dateSigned,omitempty"`
	Amendments   []Amendment   `json:"amendments,omitempty"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Amendment is a change to a contract's terms.
type Amendment struct {
	ID        string     `json:"id"`
	Rationale string     `json:"rationale,omitempty"`
	Date      *time.Time `json:"date,omitempty"`
}

// Transaction is a disbursement. ContractID is empty when unknown.
type Transaction struct {
	ID         string     `json:"id"`
	ContractID string     `json:"contractId,omitempty"`
	Source     string     `json:"source,omitempty"`
	Date       *time.Time `json:"date,omitempty"`
	Value      Value      `json:"value"`
}

// RelatedProcess cross-references another procurement process.
type RelatedProcess struct {
	ID           string   `json:"id"`
	Identifier   string   `json:"identifier,omitempty"`
	URI          string   `json:"uri,omitempty"`
	Relationship []string `json:"relationship,omitempty"`
	Title        string   `json:"title,omitempty"`
	Scheme       string   `json:"scheme,omitempty"`
}
