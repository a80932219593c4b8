// Package entity holds the canonical row types, their table descriptors and
// the natural-key accessors over them.
package entity

import (
	"reflect"
	"time"
)

// Table describes one canonical table. Key lists the natural-key columns and
// Values the remaining columns, both in scan order.
type Table struct {
	Name   string
	Key    []string
	Values []string
}

// History returns the name of the table's history ledger.
func (t Table) History() string { return t.Name + "_history" }

// Columns returns key columns followed by value columns.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.Key)+len(t.Values))
	cols = append(cols, t.Key...)
	return append(cols, t.Values...)
}

// Record is a row of a canonical table.
type Record interface {
	Table() Table
	KeyValues() []any
	FieldValues() []any
	// ScanTargets returns pointers for key then value columns.
	ScanTargets() []any
}

// Values returns key values followed by field values, matching Columns.
func Values(r Record) []any {
	return append(r.KeyValues(), r.FieldValues()...)
}

// NewLike allocates a zero record of the same concrete type as r.
func NewLike(r Record) Record {
	return reflect.New(reflect.TypeOf(r).Elem()).Interface().(Record)
}

// Ptr constrains generic helpers to pointer-to-record types.
type Ptr[T any] interface {
	*T
	Record
}

var (
	Releases = Table{
		Name: "releases",
		Key:  []string{"ocid"},
		Values: []string{
			"release_id", "date", "tag", "initiation_type", "language",
			"tender_id", "tender_title", "tender_status",
			"tender_procurement_method", "tender_procurement_method_details",
			"tender_procurement_method_rationale", "tender_main_procurement_category",
			"tender_additional_procurement_categories", "tender_procuring_entity_id",
			"tender_start_date", "tender_end_date", "tender_duration_in_days",
			"tender_number_of_tenderers", "tender_documents",
			"tender_item_id", "tender_item_description",
			"tender_item_classification_scheme", "tender_item_classification_id",
			"tender_item_classification_description",
			"tender_item_additional_scheme", "tender_item_additional_id",
			"tender_item_additional_description",
		},
	}
	Parties = Table{
		Name: "parties",
		Key:  []string{"party_id"},
		Values: []string{
			"name", "street_address", "locality", "region", "postal_code",
			"country_name", "details", "alias_parties", "id_source",
		},
	}
	ReleaseParties = Table{
		Name: "release_parties",
		Key:  []string{"ocid", "party_id", "role"},
	}
	Lots = Table{
		Name:   "lots",
		Key:    []string{"lot_id"},
		Values: []string{"ocid", "title", "status", "contract_period_start_date", "contract_period_end_date"},
	}
	Bids = Table{
		Name:   "bids",
		Key:    []string{"party_id", "ocid", "related_lot"},
		Values: []string{"admissible", "conform", "value", "value_unit"},
	}
	Awards = Table{
		Name:   "awards",
		Key:    []string{"award_id"},
		Values: []string{"ocid", "status", "date", "value_amount", "value_currency", "value_total_amount"},
	}
	SuppliersAwards = Table{
		Name: "suppliers_awards",
		Key:  []string{"award_id", "supplier_id", "supplier_ocid"},
	}
	Contracts = Table{
		Name:   "contracts",
		Key:    []string{"contract_id"},
		Values: []string{"ocid", "award_id", "status", "period_end_date", "value_amount", "value_currency", "date_signed"},
	}
	ContractAmendments = Table{
		Name:   "contract_amendments",
		Key:    []string{"amendment_id", "contract_id"},
		Values: []string{"rationale", "amendment_date"},
	}
	ContractTransactions = Table{
		Name:   "contract_transactions",
		Key:    []string{"ocid", "transaction_id"},
		Values: []string{"contract_id", "source", "date", "value_amount", "value_currency"},
	}
	RelatedProcesses = Table{
		Name:   "related_processes",
		Key:    []string{"id"},
		Values: []string{"ocid", "identifier", "uri", "relationship", "title", "scheme"},
	}
)

// All lists every canonical table in dependency order.
var All = []Table{
	Releases, Parties, ReleaseParties, Lots, Bids, Awards, SuppliersAwards,
	Contracts, ContractAmendments, ContractTransactions, RelatedProcesses,
}

// Lookup returns the table with the given name.
func Lookup(name string) (Table, bool) {
	for _, t := range All {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Release is a releases row with the tender fields inlined.
type Release struct {
	OCID                       string     `db:"ocid"`
	ReleaseID                  *string    `db:"release_id"`
	Date                       *time.Time `db:"date"`
	Tag                        *string    `db:"tag"`
	InitiationType             *string    `db:"initiation_type"`
	Language                   *string    `db:"language"`
	TenderID                   *string    `db:"tender_id"`
	TenderTitle                *string    `db:"tender_title"`
	TenderStatus               *string    `db:"tender_status"`
	ProcurementMethod          *string    `db:"tender_procurement_method"`
	ProcurementMethodDetails   *string    `db:"tender_procurement_method_details"`
	ProcurementMethodRationale *string    `db:"tender_procurement_method_rationale"`
	MainCategory               *string    `db:"tender_main_procurement_category"`
	AdditionalCategories       *string    `db:"tender_additional_procurement_categories"`
	ProcuringEntityID          *string    `db:"tender_procuring_entity_id"`
	StartDate                  *time.Time `db:"tender_start_date"`
	EndDate                    *time.Time `db:"tender_end_date"`
	DurationDays               *int       `db:"tender_duration_in_days"`
	NumberOfTenderers          *int       `db:"tender_number_of_tenderers"`
	Documents                  *string    `db:"tender_documents"`
	ItemID                     *string    `db:"tender_item_id"`
	ItemDescription            *string    `db:"tender_item_description"`
	ClassificationScheme       *string    `db:"tender_item_classification_scheme"`
	ClassificationID           *string    `db:"tender_item_classification_id"`
	ClassificationDescription  *string    `db:"tender_item_classification_description"`
	AdditionalScheme           *string    `db:"tender_item_additional_scheme"`
	AdditionalID               *string    `db:"tender_item_additional_id"`
	AdditionalDescription      *string    `db:"tender_item_additional_description"`
}

func (r *Release) Table() Table     { return Releases }
func (r *Release) KeyValues() []any { return []any{r.OCID} }
func (r *Release) FieldValues() []any {
	return []any{
		r.ReleaseID, r.Date, r.Tag, r.InitiationType, r.Language,
		r.TenderID, r.TenderTitle, r.TenderStatus,
		r.ProcurementMethod, r.ProcurementMethodDetails,
		r.ProcurementMethodRationale, r.MainCategory,
		r.AdditionalCategories, r.ProcuringEntityID,
		r.StartDate, r.EndDate, r.DurationDays,
		r.NumberOfTenderers, r.Documents,
		r.ItemID, r.ItemDescription,
		r.ClassificationScheme, r.ClassificationID, r.ClassificationDescription,
		r.AdditionalScheme, r.AdditionalID, r.AdditionalDescription,
	}
}
func (r *Release) ScanTargets() []any {
	return []any{
		&r.OCID,
		&r.ReleaseID, &r.Date, &r.Tag, &r.InitiationType, &r.Language,
		&r.TenderID, &r.TenderTitle, &r.TenderStatus,
		&r.ProcurementMethod, &r.ProcurementMethodDetails,
		&r.ProcurementMethodRationale, &r.MainCategory,
		&r.AdditionalCategories, &r.ProcuringEntityID,
		&r.StartDate, &r.EndDate, &r.DurationDays,
		&r.NumberOfTenderers, &r.Documents,
		&r.ItemID, &r.ItemDescription,
		&r.ClassificationScheme, &r.ClassificationID, &r.ClassificationDescription,
		&r.AdditionalScheme, &r.AdditionalID, &r.AdditionalDescription,
	}
}

// Party id sources.
const (
	IDSourceID   = "id"
	IDSourceName = "name"
)

// Party is a parties row. AliasParties holds the encoded alias list.
type Party struct {
	PartyID       string  `db:"party_id"`
	Name          *string `db:"name"`
	StreetAddress *string `db:"street_address"`
	Locality      *string `db:"locality"`
	Region        *string `db:"region"`
	PostalCode    *string `db:"postal_code"`
	CountryName   *string `db:"country_name"`
	Details       *string `db:"details"`
	AliasParties  *string `db:"alias_parties"`
	IDSource      string  `db:"id_source"`
}

func (p *Party) Table() Table     { return Parties }
func (p *Party) KeyValues() []any { return []any{p.PartyID} }
func (p *Party) FieldValues() []any {
	src := p.IDSource
	if src == "" {
		src = IDSourceID
	}
	return []any{p.Name, p.StreetAddress, p.Locality, p.Region, p.PostalCode, p.CountryName, p.Details, p.AliasParties, src}
}
func (p *Party) ScanTargets() []any {
	return []any{&p.PartyID, &p.Name, &p.StreetAddress, &p.Locality, &p.Region, &p.PostalCode, &p.CountryName, &p.Details, &p.AliasParties, &p.IDSource}
}

// ReleaseParty links a party to a release under one role.
type ReleaseParty struct {
	OCID    string `db:"ocid"`
	PartyID string `db:"party_id"`
	Role    string `db:"role"`
}

func (r *ReleaseParty) Table() Table       { return ReleaseParties }
func (r *ReleaseParty) KeyValues() []any   { return []any{r.OCID, r.PartyID, r.Role} }
func (r *ReleaseParty) FieldValues() []any { return nil }
func (r *ReleaseParty) ScanTargets() []any { return []any{&r.OCID, &r.PartyID, &r.Role} }

type Lot struct {
	LotID       string     `db:"lot_id"`
	OCID        string     `db:"ocid"`
	Title       *string    `db:"title"`
	Status      *string    `db:"status"`
	PeriodStart *time.Time `db:"contract_period_start_date"`
	PeriodEnd   *time.Time `db:"contract_period_end_date"`
}

func (l *Lot) Table() Table     { return Lots }
func (l *Lot) KeyValues() []any { return []any{l.LotID} }
func (l *Lot) FieldValues() []any {
	return []any{l.OCID, l.Title, l.Status, l.PeriodStart, l.PeriodEnd}
}
func (l *Lot) ScanTargets() []any {
	return []any{&l.LotID, &l.OCID, &l.Title, &l.Status, &l.PeriodStart, &l.PeriodEnd}
}

// Bid is keyed by (party, release, lot); a nil RelatedLot is the lot-less
// bid and matches with IS NULL.
type Bid struct {
	PartyID    string   `db:"party_id"`
	OCID       string   `db:"ocid"`
	RelatedLot *string  `db:"related_lot"`
	Admissible *bool    `db:"admissible"`
	Conform    *bool    `db:"conform"`
	Value      *float64 `db:"value"`
	ValueUnit  *string  `db:"value_unit"`
}

func (b *Bid) Table() Table { return Bids }
func (b *Bid) KeyValues() []any {
	if b.RelatedLot == nil {
		return []any{b.PartyID, b.OCID, nil}
	}
	return []any{b.PartyID, b.OCID, *b.RelatedLot}
}
func (b *Bid) FieldValues() []any { return []any{b.Admissible, b.Conform, b.Value, b.ValueUnit} }
func (b *Bid) ScanTargets() []any {
	return []any{&b.PartyID, &b.OCID, &b.RelatedLot, &b.Admissible, &b.Conform, &b.Value, &b.ValueUnit}
}

// AwardStatusPlaceholder marks an award created only to satisfy a contract's
// reference.
const AwardStatusPlaceholder = "placeholder"

type Award struct {
	AwardID          string     `db:"award_id"`
	OCID             string     `db:"ocid"`
	Status           *string    `db:"status"`
	Date             *time.Time `db:"date"`
	ValueAmount      *float64   `db:"value_amount"`
	ValueCurrency    *string    `db:"value_currency"`
	ValueTotalAmount *float64   `db:"value_total_amount"`
}

func (a *Award) Table() Table     { return Awards }
func (a *Award) KeyValues() []any { return []any{a.AwardID} }
func (a *Award) FieldValues() []any {
	return []any{a.OCID, a.Status, a.Date, a.ValueAmount, a.ValueCurrency, a.ValueTotalAmount}
}
func (a *Award) ScanTargets() []any {
	return []any{&a.AwardID, &a.OCID, &a.Status, &a.Date, &a.ValueAmount, &a.ValueCurrency, &a.ValueTotalAmount}
}

// IsPlaceholder reports whether the award was created by backfill.
func (a *Award) IsPlaceholder() bool {
	return a.Status != nil && *a.Status == AwardStatusPlaceholder
}

// SupplierAward links an award to a winning party.
type SupplierAward struct {
	AwardID      string `db:"award_id"`
	SupplierID   string `db:"supplier_id"`
	SupplierOCID string `db:"supplier_ocid"`
}

func (s *SupplierAward) Table() Table       { return SuppliersAwards }
func (s *SupplierAward) KeyValues() []any   { return []any{s.AwardID, s.SupplierID, s.SupplierOCID} }
func (s *SupplierAward) FieldValues() []any { return nil }
func (s *SupplierAward) ScanTargets() []any { return []any{&s.AwardID, &s.SupplierID, &s.SupplierOCID} }

type Contract struct {
	ContractID    string     `db:"contract_id"`
	OCID          string     `db:"ocid"`
	AwardID       *string    `db:"award_id"`
	Status        *string    `db:"status"`
	PeriodEnd     *time.Time `db:"period_end_date"`
	ValueAmount   *float64   `db:"value_amount"`
	ValueCurrency *string    `db:"value_currency"`
	DateSigned    *time.Time `db:"date_signed"`
}

func (c *Contract) Table() Table     { return Contracts }
func (c *Contract) KeyValues() []any { return []any{c.ContractID} }
func (c *Contract) FieldValues() []any {
	return []any{c.OCID, c.AwardID, c.Status, c.PeriodEnd, c.ValueAmount, c.ValueCurrency, c.DateSigned}
}
func (c *Contract) ScanTargets() []any {
	return []any{&c.ContractID, &c.OCID, &c.AwardID, &c.Status, &c.PeriodEnd, &c.ValueAmount, &c.ValueCurrency, &c.DateSigned}
}

type ContractAmendment struct {
	AmendmentID string     `db:"amendment_id"`
	ContractID  string     `db:"contract_id"`
	Rationale   *string    `db:"rationale"`
	Date        *time.Time `db:"amendment_date"`
}

func (a *ContractAmendment) Table() Table       { return ContractAmendments }
func (a *ContractAmendment) KeyValues() []any   { return []any{a.AmendmentID, a.ContractID} }
func (a *ContractAmendment) FieldValues() []any { return []any{a.Rationale, a.Date} }
func (a *ContractAmendment) ScanTargets() []any {
	return []any{&a.AmendmentID, &a.ContractID, &a.Rationale, &a.Date}
}

// ContractTransaction is a disbursement; ContractID is nil when unknown.
type ContractTransaction struct {
	OCID          string     `db:"ocid"`
	TransactionID string     `db:"transaction_id"`
	ContractID    *string    `db:"contract_id"`
	Source        *string    `db:"source"`
	Date          *time.Time `db:"date"`
	ValueAmount   *float64   `db:"value_amount"`
	ValueCurrency *string    `db:"value_currency"`
}

func (t *ContractTransaction) Table() Table     { return ContractTransactions }
func (t *ContractTransaction) KeyValues() []any { return []any{t.OCID, t.TransactionID} }
func (t *ContractTransaction) FieldValues() []any {
	return []any{t.ContractID, t.Source, t.Date, t.ValueAmount, t.ValueCurrency}
}
func (t *ContractTransaction) ScanTargets() []any {
	return []any{&t.OCID, &t.TransactionID, &t.ContractID, &t.Source, &t.Date, &t.ValueAmount, &t.ValueCurrency}
}

type RelatedProcess struct {
	ID           string  `db:"id"`
	OCID         string  `db:"ocid"`
	Identifier   *string `db:"identifier"`
	URI          *string `db:"uri"`
	Relationship *string `db:"relationship"`
	Title        *string `db:"title"`
	Scheme       *string `db:"scheme"`
}

func (r *RelatedProcess) Table() Table     { return RelatedProcesses }
func (r *RelatedProcess) KeyValues() []any { return []any{r.ID} }
func (r *RelatedProcess) FieldValues() []any {
	return []any{r.OCID, r.Identifier, r.URI, r.Relationship, r.Title, r.Scheme}
}
func (r *RelatedProcess) ScanTargets() []any {
	return []any{&r.ID, &r.OCID, &r.Identifier, &r.URI, &r.Relationship, &r.Title, &r.Scheme}
}

// NewRecord allocates a zero record for t.
func NewRecord(t Table) (Record, bool) {
	switch t.Name {
	case Releases.Name:
		return &Release{}, true
	case Parties.Name:
		return &Party{}, true
	case ReleaseParties.Name:
		return &ReleaseParty{}, true
	case Lots.Name:
		return &Lot{}, true
	case Bids.Name:
		return &Bid{}, true
	case Awards.Name:
		return &Award{}, true
	case SuppliersAwards.Name:
		return &SupplierAward{}, true
	case Contracts.Name:
		return &Contract{}, true
	case ContractAmendments.Name:
		return &ContractAmendment{}, true
	case ContractTransactions.Name:
		return &ContractTransaction{}, true
	case RelatedProcesses.Name:
		return &RelatedProcess{}, true
	}
	return nil, false
}
