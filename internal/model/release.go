// Package model defines the normalized release shape that format adapters
// emit and the ingest processor consumes.
package model

import (
	"fmt"
	"time"
)

// Kind distinguishes full notices from records that only add contracts or
// expenses to an already-known release.
type Kind string

const (
	KindFull       Kind = "full"
	KindSupplement Kind = "supplement"
)

// Source identifies where a release came from, for log context.
type Source struct {
	Adapter  string `json:"adapter"`
	File     string `json:"file"`
	Position int    `json:"position"`
}

func (s Source) String() string {
	if s.File == "" {
		return fmt.Sprintf("%s#%d", s.Adapter, s.Position)
	}
	return fmt.Sprintf("%s:%s#%d", s.Adapter, s.File, s.Position)
}

// Release is one procurement event with its nested sub-records.
type Release struct {
	OCID             string           `json:"ocid"`
	ID               string           `json:"id"`
	Date             *time.Time       `json:"date,omitempty"`
	Tags             []string         `json:"tag,omitempty"`
	InitiationType   string           `json:"initiationType,omitempty"`
	Language         string           `json:"language,omitempty"`
	Tender           Tender           `json:"tender"`
	Parties          []Party          `json:"parties,omitempty"`
	Bids             []Bid            `json:"bids,omitempty"`
	Awards           []Award          `json:"awards,omitempty"`
	Contracts        []Contract       `json:"contracts,omitempty"`
	Transactions     []Transaction    `json:"transactions,omitempty"`
	RelatedProcesses []RelatedProcess `json:"relatedProcesses,omitempty"`

	Kind   Kind   `json:"-"`
	Source Source `json:"-"`
}

// IsSupplement reports whether the release only extends an existing one.
func (r *Release) IsSupplement() bool {
	return r.Kind == KindSupplement
}

// Tender holds the tender-level fields that are inlined into the release row.
type Tender struct {
	ID                         string     `json:"id,omitempty"`
	Title                      string     `json:"title,omitempty"`
	Status                     string     `json:"status,omitempty"`
	ProcurementMethod          string     `json:"procurementMethod,omitempty"`
	ProcurementMethodDetails   string     `json:"procurementMethodDetails,omitempty"`
	ProcurementMethodRationale string     `json:"procurementMethodRationale,omitempty"`
	MainCategory               string     `json:"mainProcurementCategory,omitempty"`
	AdditionalCategories       []string   `json:"additionalProcurementCategories,omitempty"`
	ProcuringEntityID          string     `json:"procuringEntityId,omitempty"`
	StartDate                  *time.Time `json:"startDate,omitempty"`
	EndDate                    *time.Time `json:"endDate,omitempty"`
	DurationDays               *int       `json:"durationInDays,omitempty"`
	NumberOfTenderers          *int       `json:"numberOfTenderers,omitempty"`
	DocumentURLs               []string   `json:"documents,omitempty"`
	Items                      []Item     `json:"items,omitempty"`
	Lots                       []Lot      `json:"lots,omitempty"`

	// DeriveTenderers asks the processor to count distinct bidders when the
	// source carries no tenderer count of its own.
	DeriveTenderers bool `json:"-"`
}

// Item is a candidate tender item.
type Item struct {
	ID                        string           `json:"id,omitempty"`
	Description               string           `json:"description,omitempty"`
	Classification            Classification   `json:"classification"`
	AdditionalClassifications []Classification `json:"additionalClassifications,omitempty"`
}

// Classification is a scheme-qualified code with a description.
type Classification struct {
	Scheme      string `json:"scheme,omitempty"`
	ID          string `json:"id,omitempty"`
	Description string `json:"description,omitempty"`
}

// Lot is a sub-division of a tender.
type Lot struct {
	ID          string     `json:"id"`
	Title       string     `json:"title,omitempty"`
	Status      string     `json:"status,omitempty"`
	PeriodStart *time.Time `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time `json:"periodEnd,omitempty"`
}
