// Package ingest applies normalized releases to the canonical store, one
// transaction per release, and records each run.
package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/backfill"
	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
	"github.com/sells-group/procurement-cli/internal/party"
	"github.com/sells-group/procurement-cli/internal/selector"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

// Processor writes one release's entities in dependency order.
type Processor struct {
	engine   *upsert.Engine
	parties  *party.Resolver
	backfill *backfill.Backfiller
	allow    selector.AllowList
	log      *zap.Logger
}

// NewProcessor creates a Processor selecting items with allow.
func NewProcessor(engine *upsert.Engine, allow selector.AllowList) *Processor {
	return &Processor{
		engine:   engine,
		parties:  party.NewResolver(engine),
		backfill: backfill.New(engine),
		allow:    allow,
		log:      zap.L().With(zap.String("component", "processor")),
	}
}

// Process applies rel inside s. Any returned error means s must be rolled
// back; skips of individual bids are logged and counted instead.
func (p *Processor) Process(ctx context.Context, s db.Session, rel *model.Release) (Stats, error) {
	var st Stats
	ocid := strings.TrimSpace(rel.OCID)
	if ocid == "" {
		return st, ErrParseSkip
	}
	log := p.log.With(zap.String("ocid", ocid))

	var sel selector.Selection
	if rel.IsSupplement() {
		ok, err := entity.Exists(ctx, s, entity.Releases, ocid)
		if err != nil {
			return st, persistence("find release", err)
		}
		if !ok {
			return st, eris.Wrapf(ErrNoQualifyingItem, "release %s is not stored", ocid)
		}
	} else {
		var ok bool
		if sel, ok = selector.SelectItem(rel.Tender.Items, p.allow); !ok {
			return st, ErrNoQualifyingItem
		}
	}

	// Parties and bidders resolve before the release is written so that a
	// derived tenderer count is final on the release's only write.
	parties := mergeParties(rel.Parties)
	ids, resolved, err := p.resolveParties(ctx, s, parties, &st, log)
	if err != nil {
		return st, err
	}

	if !rel.IsSupplement() {
		row := releaseRow(ocid, rel, sel)
		if rel.Tender.DeriveTenderers && row.NumberOfTenderers == nil {
			n, err := p.tenderers(ctx, s, rel.Bids, ids)
			if err != nil {
				return st, err
			}
			row.NumberOfTenderers = &n
		}
		out, err := p.engine.Upsert(ctx, s, row)
		if err != nil {
			return st, persistence("write release", err)
		}
		st.record(entity.Releases.Name, out)
	}

	if err := p.writeLots(ctx, s, ocid, rel, &st); err != nil {
		return st, err
	}
	if err := p.linkParties(ctx, s, ocid, parties, resolved, &st); err != nil {
		return st, err
	}
	if err := p.writeBids(ctx, s, ocid, rel, ids, &st, log); err != nil {
		return st, err
	}
	if err := p.writeAwards(ctx, s, ocid, rel, ids, &st); err != nil {
		return st, err
	}
	txns, err := p.writeContracts(ctx, s, ocid, rel, &st)
	if err != nil {
		return st, err
	}
	for _, t := range mergeTransactions(append(txns, rel.Transactions...)) {
		if err := p.writeTransaction(ctx, s, ocid, t.ContractID, t, &st); err != nil {
			return st, err
		}
	}
	for _, rp := range lastWins(rel.RelatedProcesses, func(rp model.RelatedProcess) string { return strings.TrimSpace(rp.ID) }) {
		out, err := p.engine.Upsert(ctx, s, &entity.RelatedProcess{
			ID:           rp.ID,
			OCID:         ocid,
			Identifier:   normalize.StringPtr(rp.Identifier),
			URI:          normalize.StringPtr(rp.URI),
			Relationship: joined(rp.Relationship),
			Title:        normalize.Text(rp.Title),
			Scheme:       normalize.StringPtr(rp.Scheme),
		})
		if err != nil {
			return st, persistence("write related process", err)
		}
		st.record(entity.RelatedProcesses.Name, out)
	}
	return st, nil
}

func releaseRow(ocid string, rel *model.Release, sel selector.Selection) *entity.Release {
	t := rel.Tender
	row := &entity.Release{
		OCID:                       ocid,
		ReleaseID:                  normalize.StringPtr(rel.ID),
		Date:                       rel.Date,
		Tag:                        joined(rel.Tags),
		InitiationType:             normalize.StringPtr(rel.InitiationType),
		Language:                   normalize.StringPtr(rel.Language),
		TenderID:                   normalize.StringPtr(t.ID),
		TenderTitle:                normalize.Text(t.Title),
		TenderStatus:               normalize.StringPtr(t.Status),
		ProcurementMethod:          normalize.StringPtr(t.ProcurementMethod),
		ProcurementMethodDetails:   normalize.Text(t.ProcurementMethodDetails),
		ProcurementMethodRationale: normalize.Text(t.ProcurementMethodRationale),
		MainCategory:               normalize.Text(t.MainCategory),
		AdditionalCategories:       joined(t.AdditionalCategories),
		ProcuringEntityID:          normalize.StringPtr(t.ProcuringEntityID),
		StartDate:                  t.StartDate,
		EndDate:                    t.EndDate,
		DurationDays:               t.DurationDays,
		NumberOfTenderers:          t.NumberOfTenderers,
		Documents:                  joined(t.DocumentURLs),
		ItemID:                     normalize.StringPtr(sel.Item.ID),
		ItemDescription:            normalize.Text(sel.Item.Description),
		ClassificationScheme:       normalize.StringPtr(sel.Item.Classification.Scheme),
		ClassificationID:           normalize.StringPtr(sel.Item.Classification.ID),
		ClassificationDescription:  normalize.Text(sel.Item.Classification.Description),
	}
	if sel.Additional != nil {
		row.AdditionalScheme = normalize.StringPtr(sel.Additional.Scheme)
		row.AdditionalID = normalize.StringPtr(sel.Additional.ID)
		row.AdditionalDescription = normalize.Text(sel.Additional.Description)
	}
	return row
}

func (p *Processor) writeLots(ctx context.Context, s db.Session, ocid string, rel *model.Release, st *Stats) error {
	for _, l := range lastWins(rel.Tender.Lots, func(l model.Lot) string { return strings.TrimSpace(l.ID) }) {
		if strings.TrimSpace(l.ID) == "" {
			st.skipped(entity.Lots.Name)
			continue
		}
		out, err := p.engine.Upsert(ctx, s, &entity.Lot{
			LotID:       l.ID,
			OCID:        ocid,
			Title:       normalize.Text(l.Title),
			Status:      normalize.StringPtr(l.Status),
			PeriodStart: l.PeriodStart,
			PeriodEnd:   l.PeriodEnd,
		})
		if err != nil {
			return persistence("write lot", err)
		}
		st.record(entity.Lots.Name, out)
	}
	return nil
}

// resolveParties stores every party. It returns the stored id for each
// source id, for bid lookup, and the stored id of each party in order, empty
// for a skipped one.
func (p *Processor) resolveParties(ctx context.Context, s db.Session, parties []model.Party, st *Stats, log *zap.Logger) (map[string]string, []string, error) {
	ids := make(map[string]string, len(parties))
	resolved := make([]string, len(parties))
	for i, mp := range parties {
		res, err := p.parties.Resolve(ctx, s, party.FromModel(mp))
		if errors.Is(err, party.ErrUnidentifiable) {
			log.Warn("skipping party without id or name")
			st.skipped(entity.Parties.Name)
			continue
		}
		if err != nil {
			return nil, nil, persistence("resolve party", err)
		}
		st.record(entity.Parties.Name, res.Outcome)
		if res.AliasAdded {
			st.AliasesAdded++
		}
		if mp.ID != "" {
			ids[mp.ID] = res.ID
		}
		ids[res.ID] = res.ID
		resolved[i] = res.ID
	}
	return ids, resolved, nil
}

// linkParties records the release roles of every resolved party.
func (p *Processor) linkParties(ctx context.Context, s db.Session, ocid string, parties []model.Party, resolved []string, st *Stats) error {
	for i, mp := range parties {
		id := resolved[i]
		if id == "" {
			continue
		}
		for _, role := range mp.Roles {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			out, err := p.engine.InsertIfAbsent(ctx, s, &entity.ReleaseParty{OCID: ocid, PartyID: id, Role: role})
			if err != nil {
				return persistence("link party", err)
			}
			st.record(entity.ReleaseParties.Name, out)
		}
	}
	return nil
}

// tenderers counts the distinct stored parties behind bids. Bids whose party
// is unknown do not count.
func (p *Processor) tenderers(ctx context.Context, s db.Session, bids []model.Bid, ids map[string]string) (int, error) {
	seen := make(map[string]struct{}, len(bids))
	for _, b := range bids {
		id, err := p.bidder(ctx, s, b.PartyID, ids)
		if err != nil {
			return 0, err
		}
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	return len(seen), nil
}

// writeBids upserts one row per bid and related lot. A bid row keyed twice in
// the release is written once, with the values of its last occurrence.
func (p *Processor) writeBids(ctx context.Context, s db.Session, ocid string, rel *model.Release, ids map[string]string, st *Stats, log *zap.Logger) error {
	var rows []*entity.Bid
	for _, b := range rel.Bids {
		partyID, err := p.bidder(ctx, s, b.PartyID, ids)
		if err != nil {
			return err
		}
		if partyID == "" {
			log.Warn("skipping bid", zap.String("party_id", b.PartyID), zap.Error(ErrMissingParty))
			st.skipped(entity.Bids.Name)
			continue
		}

		lots := b.RelatedLots
		if len(lots) == 0 {
			lots = []string{""}
		}
		for _, lot := range lots {
			rows = append(rows, &entity.Bid{
				PartyID:    partyID,
				OCID:       ocid,
				RelatedLot: normalize.StringPtr(lot),
				Admissible: b.Admissible,
				Conform:    b.Conform,
				Value:      b.Value,
				ValueUnit:  normalize.StringPtr(b.ValueUnit),
			})
		}
	}

	for _, row := range lastWins(rows, bidKey) {
		var opts []upsert.Option
		if row.RelatedLot != nil {
			opts = append(opts, upsert.WithBackfill(p.backfill.LotHook(*row.RelatedLot, ocid, &st.Backfilled)))
		}
		out, err := p.engine.Upsert(ctx, s, row, opts...)
		if err != nil {
			return persistence("write bid", err)
		}
		st.record(entity.Bids.Name, out)
	}
	return nil
}

func bidKey(b *entity.Bid) string {
	if b.RelatedLot == nil {
		return b.PartyID + "\x00"
	}
	return b.PartyID + "\x00" + *b.RelatedLot
}

// bidder returns the stored id of a bid's party, or "" when it is unknown.
// Store lookups are cached in ids, misses as "".
func (p *Processor) bidder(ctx context.Context, s db.Session, id string, ids map[string]string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", nil
	}
	if stored, ok := ids[id]; ok {
		return stored, nil
	}
	ok, err := entity.Exists(ctx, s, entity.Parties, id)
	if err != nil {
		return "", persistence("find bidder", err)
	}
	if !ok {
		ids[id] = ""
		return "", nil
	}
	ids[id] = id
	return id, nil
}

func (p *Processor) writeAwards(ctx context.Context, s db.Session, ocid string, rel *model.Release, ids map[string]string, st *Stats) error {
	for _, a := range lastWins(rel.Awards, func(a model.Award) string { return strings.TrimSpace(a.ID) }) {
		if strings.TrimSpace(a.ID) == "" {
			st.skipped(entity.Awards.Name)
			continue
		}
		out, err := p.engine.Upsert(ctx, s, &entity.Award{
			AwardID:          a.ID,
			OCID:             ocid,
			Status:           normalize.StringPtr(a.Status),
			Date:             a.Date,
			ValueAmount:      a.Value.Amount,
			ValueCurrency:    normalize.StringPtr(a.Value.Currency),
			ValueTotalAmount: a.Value.TotalAmount,
		})
		if err != nil {
			return persistence("write award", err)
		}
		st.record(entity.Awards.Name, out)

		links := make([]entity.Record, 0, len(a.Suppliers))
		for _, sup := range a.Suppliers {
			supID := strings.TrimSpace(sup.ID)
			if supID == "" {
				st.skipped(entity.SuppliersAwards.Name)
				continue
			}
			if stored, ok := ids[supID]; ok && stored != "" {
				supID = stored
			}
			out, err := p.parties.EnsureMinimal(ctx, s, supID, sup.Name)
			if err != nil {
				return persistence("ensure supplier", err)
			}
			if out == upsert.Inserted {
				st.record(entity.Parties.Name, out)
			}
			links = append(links, &entity.SupplierAward{AwardID: a.ID, SupplierID: supID, SupplierOCID: ocid})
		}
		changes, err := p.engine.ReplaceLinks(ctx, s, entity.SuppliersAwards, map[string]any{"award_id": a.ID}, links)
		if err != nil {
			return persistence("link suppliers", err)
		}
		for i := 0; i < changes.Added; i++ {
			st.record(entity.SuppliersAwards.Name, upsert.Inserted)
		}
		if changes.Removed > 0 {
			st.removed(entity.SuppliersAwards.Name, changes.Removed)
		}
	}
	return nil
}

// writeContracts upserts contracts and their amendments. It returns the
// contracts' transactions, tagged with their contract, for writing once every
// contract is stored.
func (p *Processor) writeContracts(ctx context.Context, s db.Session, ocid string, rel *model.Release, st *Stats) ([]model.Transaction, error) {
	var txns []model.Transaction
	for _, c := range lastWins(rel.Contracts, func(c model.Contract) string { return strings.TrimSpace(c.ID) }) {
		if strings.TrimSpace(c.ID) == "" {
			st.skipped(entity.Contracts.Name)
			continue
		}
		row := &entity.Contract{
			ContractID:    c.ID,
			OCID:          ocid,
			AwardID:       normalize.StringPtr(c.AwardID),
			Status:        normalize.StringPtr(c.Status),
			PeriodEnd:     c.PeriodEnd,
			ValueAmount:   c.Value.Amount,
			ValueCurrency: normalize.StringPtr(c.Value.Currency),
			DateSigned:    c.DateSigned,
		}
		var opts []upsert.Option
		if row.AwardID != nil {
			opts = append(opts, upsert.WithBackfill(p.backfill.AwardHook(*row.AwardID, ocid, &st.Backfilled)))
		}
		out, err := p.engine.Upsert(ctx, s, row, opts...)
		if err != nil {
			return nil, persistence("write contract", err)
		}
		st.record(entity.Contracts.Name, out)

		for _, a := range lastWins(c.Amendments, func(a model.Amendment) string { return strings.TrimSpace(a.ID) }) {
			if strings.TrimSpace(a.ID) == "" {
				st.skipped(entity.ContractAmendments.Name)
				continue
			}
			out, err := p.engine.Upsert(ctx, s, &entity.ContractAmendment{
				AmendmentID: a.ID,
				ContractID:  c.ID,
				Rationale:   normalize.Text(a.Rationale),
				Date:        a.Date,
			})
			if err != nil {
				return nil, persistence("write amendment", err)
			}
			st.record(entity.ContractAmendments.Name, out)
		}
		for _, t := range c.Transactions {
			t.ContractID = c.ID
			txns = append(txns, t)
		}
	}
	return txns, nil
}

// writeTransaction upserts a transaction. An unknown incoming contract never
// clears a stored contract_id.
func (p *Processor) writeTransaction(ctx context.Context, s db.Session, ocid, contractID string, t model.Transaction, st *Stats) error {
	if strings.TrimSpace(t.ID) == "" {
		st.skipped(entity.ContractTransactions.Name)
		return nil
	}
	row := &entity.ContractTransaction{
		OCID:          ocid,
		TransactionID: t.ID,
		ContractID:    normalize.StringPtr(contractID),
		Source:        normalize.StringPtr(t.Source),
		Date:          t.Date,
		ValueAmount:   t.Value.Amount,
		ValueCurrency: normalize.StringPtr(t.Value.Currency),
	}

	if row.ContractID == nil {
		ok, err := p.engine.UpdateColumns(ctx, s, entity.ContractTransactions, row.KeyValues(), map[string]any{
			"source":         row.Source,
			"date":           row.Date,
			"value_amount":   row.ValueAmount,
			"value_currency": row.ValueCurrency,
		})
		if err != nil {
			return persistence("update transaction", err)
		}
		if ok {
			st.record(entity.ContractTransactions.Name, upsert.Updated)
			return nil
		}
	}

	out, err := p.engine.Upsert(ctx, s, row)
	if err != nil {
		return persistence("write transaction", err)
	}
	st.record(entity.ContractTransactions.Name, out)
	return nil
}

func joined(vals []string) *string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return normalize.StringPtr(strings.Join(parts, ","))
}

// persistence wraps err unless it already carries a more specific class.
func persistence(op string, err error) error {
	switch Classify(err) {
	case ClassPersistence:
		return &PersistenceError{Op: op, Err: err}
	default:
		return eris.Wrap(err, op)
	}
}
