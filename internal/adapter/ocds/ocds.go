// Package ocds decodes OCDS release packages into normalized releases.
package ocds

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/fetcher"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
)

// Name identifies the JSON format.
const Name = "ocds"

// Adapter decodes {"releases": [...]} packages, or a bare release array.
type Adapter struct {
	log *zap.Logger
}

// New creates an OCDS adapter.
func New() *Adapter {
	return &Adapter{log: zap.L().With(zap.String("component", "ocds"))}
}

// Name returns the format name.
func (a *Adapter) Name() string { return Name }

// Decode streams the releases of r. A release that does not match the
// expected shape is emitted without an ocid, so that it is counted as a
// parse skip rather than failing the file.
func (a *Adapter) Decode(ctx context.Context, r io.Reader, file string, out chan<- model.Release) error {
	items, errs := fetcher.DecodeJSONArrayField[json.RawMessage](ctx, r, "releases")

	pos := 0
	for raw := range items {
		pos++
		src := model.Source{Adapter: Name, File: file, Position: pos}

		var in release
		if err := json.Unmarshal(raw, &in); err != nil {
			a.log.Warn("malformed release", zap.String("file", file), zap.Int("position", pos), zap.Error(err))
			if err := adapter.Emit(ctx, out, model.Release{Source: src}); err != nil {
				return err
			}
			continue
		}
		rel := in.normalized()
		rel.Source = src
		if err := adapter.Emit(ctx, out, rel); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		return eris.Wrapf(err, "ocds: decode %s", file)
	}
	return nil
}

func (in *release) normalized() model.Release {
	t := in.Tender
	rel := model.Release{
		OCID:           strings.TrimSpace(in.OCID),
		ID:             in.ID.String(),
		Date:           normalize.Date(in.Date),
		Tags:           in.Tag,
		InitiationType: in.InitiationType,
		Language:       in.Language,
		Kind:           model.KindFull,
		Tender: model.Tender{
			ID:                         t.ID.String(),
			Title:                      t.Title,
			Status:                     t.Status,
			ProcurementMethod:          t.ProcurementMethod,
			ProcurementMethodDetails:   t.ProcurementMethodDetails,
			ProcurementMethodRationale: t.ProcurementMethodRationale,
			MainCategory:               t.MainProcurementCategory,
			AdditionalCategories:       t.AdditionalProcurementCategories,
			ProcuringEntityID:          t.ProcuringEntity.ID.String(),
			StartDate:                  normalize.Date(t.TenderPeriod.StartDate),
			EndDate:                    normalize.Date(t.TenderPeriod.EndDate),
			DurationDays:               t.TenderPeriod.duration(),
			NumberOfTenderers:          t.NumberOfTenderers,
		},
	}
	for _, d := range t.Documents {
		if u := strings.TrimSpace(d.URL); u != "" {
			rel.Tender.DocumentURLs = append(rel.Tender.DocumentURLs, u)
		}
	}
	for _, it := range t.Items {
		mi := model.Item{
			ID:             it.ID.String(),
			Description:    it.Description,
			Classification: it.Classification.model(),
		}
		for _, c := range it.AdditionalClassifications {
			mi.AdditionalClassifications = append(mi.AdditionalClassifications, c.model())
		}
		rel.Tender.Items = append(rel.Tender.Items, mi)
	}
	for _, l := range t.Lots {
		rel.Tender.Lots = append(rel.Tender.Lots, model.Lot{
			ID:          l.ID.String(),
			Title:       l.Title,
			Status:      l.Status,
			PeriodStart: normalize.Date(l.ContractPeriod.StartDate),
			PeriodEnd:   normalize.Date(l.ContractPeriod.EndDate),
		})
	}

	for _, p := range in.Parties {
		rel.Parties = append(rel.Parties, model.Party{
			ID:    p.ID.String(),
			Name:  p.Name,
			Roles: p.Roles,
			Address: model.Address{
				Street:   p.Address.StreetAddress,
				Locality: p.Address.Locality,
				Region:   p.Address.Region,
				Postal:   p.Address.PostalCode,
				Country:  p.Address.CountryName,
			},
			Details: compact(p.Details),
		})
	}

	for _, b := range in.Bids {
		mb := model.Bid{
			PartyID:    bidParty(b),
			Admissible: b.Admissible,
			Conform:    b.Conform,
			Value:      b.Value.Amount,
			ValueUnit:  b.ValueUnit,
		}
		if mb.ValueUnit == "" {
			mb.ValueUnit = b.Value.Currency
		}
		for _, l := range b.RelatedLots {
			if l != "" {
				mb.RelatedLots = append(mb.RelatedLots, l.String())
			}
		}
		rel.Bids = append(rel.Bids, mb)
	}

	for _, aw := range in.Awards {
		ma := model.Award{
			ID:     aw.ID.String(),
			Status: aw.Status,
			Date:   normalize.Date(aw.Date),
			Value:  aw.Value.model(),
		}
		for _, s := range aw.Suppliers {
			ma.Suppliers = append(ma.Suppliers, model.SupplierRef{ID: s.ID.String(), Name: s.Name})
		}
		rel.Awards = append(rel.Awards, ma)
	}

	for _, c := range in.Contracts {
		mc := model.Contract{
			ID:         c.ID.String(),
			AwardID:    c.AwardID.String(),
			Status:     c.Status,
			PeriodEnd:  normalize.Date(c.Period.EndDate),
			Value:      c.Value.model(),
			DateSigned: normalize.Date(c.DateSigned),
		}
		for _, a := range c.Amendments {
			mc.Amendments = append(mc.Amendments, model.Amendment{
				ID:        a.ID.String(),
				Rationale: a.Rationale,
				Date:      normalize.Date(a.Date),
			})
		}
		for _, tx := range c.Implementation.Transactions {
			mc.Transactions = append(mc.Transactions, model.Transaction{
				ID:         tx.ID.String(),
				ContractID: mc.ID,
				Source:     tx.Source,
				Date:       normalize.Date(tx.Date),
				Value:      tx.Value.model(),
			})
		}
		rel.Contracts = append(rel.Contracts, mc)
	}

	for _, rp := range in.RelatedProcesses {
		rel.RelatedProcesses = append(rel.RelatedProcesses, model.RelatedProcess{
			ID:           rp.ID.String(),
			Identifier:   rp.Identifier,
			URI:          rp.URI,
			Relationship: rp.Relationship,
			Title:        rp.Title,
			Scheme:       rp.Scheme,
		})
	}
	return rel
}

// bidParty is the bid's own id, which publishers set to the bidding party,
// or else its first tenderer.
func bidParty(b bid) string {
	if b.ID != "" {
		return b.ID.String()
	}
	if len(b.Tenderers) > 0 {
		return b.Tenderers[0].ID.String()
	}
	return ""
}

func (c classification) model() model.Classification {
	return model.Classification{Scheme: c.Scheme, ID: c.ID.String(), Description: c.Description}
}

func (v value) model() model.Value {
	return model.Value{Amount: v.Amount, Currency: v.Currency, TotalAmount: v.TotalAmount}
}

func compact(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
