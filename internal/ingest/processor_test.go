package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/history"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/selector"
	"github.com/sells-group/procurement-cli/internal/testhelpers"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func num(f float64) *float64 { return &f }

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func newProcessor() *Processor {
	engine := upsert.New(history.New(history.WithClock(func() time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	})))
	return NewProcessor(engine, selector.DefaultAllowList())
}

func setup(t *testing.T) (context.Context, db.Tx, *Processor) {
	t.Helper()
	lite := testhelpers.NewSQLite(t)
	return context.Background(), testhelpers.Begin(t, lite), newProcessor()
}

// scenarioX1 is one qualifying release with a lot, a buyer, a supplier
// bidding without a lot, an award and a contract on that award.
func scenarioX1() *model.Release {
	return &model.Release{
		OCID:     "X1",
		ID:       "R1",
		Date:     ts("2021-03-04"),
		Tags:     []string{"tender", "award"},
		Language: "fr",
		Kind:     model.KindFull,
		Tender: model.Tender{
			ID:                "T1",
			Title:             "Réfection du pont",
			Status:            "complete",
			ProcurementMethod: "open",
			ProcuringEntityID: "OP-1",
			Items: []model.Item{
				{ID: "x", Description: "Fournitures de bureau"},
				{
					ID:             "C01",
					Description:    "C01 - Bâtiments",
					Classification: model.Classification{Scheme: "UNSPSC", ID: "72100000", Description: "Bâtiments"},
					AdditionalClassifications: []model.Classification{
						{Scheme: "CATEGORY", ID: "C01", Description: "C01 - Bâtiments"},
					},
				},
			},
			Lots: []model.Lot{{ID: "L1", Title: "Lot 1"}},
		},
		Parties: []model.Party{
			{ID: "OP-1", Name: "Ville de Laval", Roles: []string{model.RoleBuyer}},
			{ID: "FO-1", Name: "Béton inc.", Roles: []string{model.RoleSupplier}},
		},
		Bids: []model.Bid{{PartyID: "FO-1", Value: num(1000)}},
		Awards: []model.Award{{
			ID:        "A1",
			Status:    "active",
			Value:     model.Value{Amount: num(1000), Currency: "CAD"},
			Suppliers: []model.SupplierRef{{ID: "FO-1", Name: "Béton inc."}},
		}},
		Contracts: []model.Contract{{ID: "C1", AwardID: "A1", Status: "active", Value: model.Value{Amount: num(1000)}}},
	}
}

func count(t *testing.T, s db.Session, tbl entity.Table) int64 {
	t.Helper()
	n, err := entity.Count(context.Background(), s, tbl)
	require.NoError(t, err)
	return n
}

func countHistory(t *testing.T, s db.Session, tbl entity.Table) int64 {
	t.Helper()
	n, err := entity.CountHistory(context.Background(), s, tbl)
	require.NoError(t, err)
	return n
}

func TestProcess_EndToEnd(t *testing.T) {
	ctx, tx, p := setup(t)

	st, err := p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tables[entity.Releases.Name].Inserted)
	assert.Zero(t, st.Backfilled)

	rel, err := entity.Find[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.Equal(t, "C01", *rel.ItemID)
	assert.Equal(t, "C01 - Bâtiments", *rel.ItemDescription)
	assert.Equal(t, "UNSPSC", *rel.ClassificationScheme)
	assert.Equal(t, "CATEGORY", *rel.AdditionalScheme)
	assert.Equal(t, "tender,award", *rel.Tag)
	assert.Nil(t, rel.NumberOfTenderers)

	lot, err := entity.Find[entity.Lot](ctx, tx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "X1", lot.OCID)

	assert.EqualValues(t, 2, count(t, tx, entity.Parties))
	assert.EqualValues(t, 2, count(t, tx, entity.ReleaseParties))
	buyer, err := entity.Find[entity.ReleaseParty](ctx, tx, "X1", "OP-1", model.RoleBuyer)
	require.NoError(t, err)
	assert.NotNil(t, buyer)
	supplier, err := entity.Find[entity.ReleaseParty](ctx, tx, "X1", "FO-1", model.RoleSupplier)
	require.NoError(t, err)
	assert.NotNil(t, supplier)

	bid, err := entity.Find[entity.Bid](ctx, tx, "FO-1", "X1", nil)
	require.NoError(t, err)
	require.NotNil(t, bid)
	assert.Nil(t, bid.RelatedLot)

	assert.EqualValues(t, 1, count(t, tx, entity.Awards))
	assert.EqualValues(t, 1, count(t, tx, entity.SuppliersAwards))
	award, err := entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	assert.False(t, award.IsPlaceholder())

	contract, err := entity.Find[entity.Contract](ctx, tx, "C1")
	require.NoError(t, err)
	assert.Equal(t, "A1", *contract.AwardID)

	for _, tbl := range entity.All {
		assert.Zero(t, countHistory(t, tx, tbl), tbl.Name)
	}
}

func TestProcess_ReingestAddsOnlyHistory(t *testing.T) {
	ctx, tx, p := setup(t)

	_, err := p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)
	first, err := entity.Find[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)

	counts := make(map[string]int64)
	for _, tbl := range entity.All {
		counts[tbl.Name] = count(t, tx, tbl)
	}

	st, err := p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)
	assert.Zero(t, st.Tables[entity.Releases.Name].Inserted)

	for _, tbl := range entity.All {
		assert.Equal(t, counts[tbl.Name], count(t, tx, tbl), tbl.Name)
	}
	for _, tbl := range []entity.Table{entity.Releases, entity.Lots, entity.Bids, entity.Awards, entity.Contracts} {
		assert.EqualValues(t, 1, countHistory(t, tx, tbl), tbl.Name)
	}
	assert.Zero(t, countHistory(t, tx, entity.ReleaseParties))
	assert.Zero(t, countHistory(t, tx, entity.SuppliersAwards))

	snaps, err := entity.ListHistory[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, *first, snaps[0].Row)
}

func TestProcess_NoQualifyingItem(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Tender.Items = rel.Tender.Items[:1]
	_, err := p.Process(ctx, tx, rel)
	assert.ErrorIs(t, err, ErrNoQualifyingItem)
	assert.Equal(t, ClassNoQualifyingItem, Classify(err))
}

func TestProcess_EmptyOCID(t *testing.T) {
	ctx, tx, p := setup(t)

	_, err := p.Process(ctx, tx, &model.Release{OCID: "  "})
	assert.ErrorIs(t, err, ErrParseSkip)
}

func TestProcess_SupplementForUnknownRelease(t *testing.T) {
	ctx, tx, p := setup(t)

	_, err := p.Process(ctx, tx, &model.Release{
		OCID:      "X9",
		Kind:      model.KindSupplement,
		Contracts: []model.Contract{{ID: "C9"}},
	})
	assert.ErrorIs(t, err, ErrNoQualifyingItem)
	assert.Zero(t, count(t, tx, entity.Contracts))
}

func TestProcess_MissingBidPartyIsSkipped(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Tender.DeriveTenderers = true
	rel.Bids = append(rel.Bids, model.Bid{PartyID: "GHOST"}, model.Bid{PartyID: "OP-1"})

	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tables[entity.Bids.Name].Skipped)
	assert.Equal(t, 1, st.Warnings)
	assert.EqualValues(t, 2, count(t, tx, entity.Bids))

	row, err := entity.Find[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.NotNil(t, row.NumberOfTenderers)
	assert.Equal(t, 2, *row.NumberOfTenderers)
}

func TestProcess_DerivedTenderersWithoutSkips(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Tender.DeriveTenderers = true
	_, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)

	row, err := entity.Find[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.NotNil(t, row.NumberOfTenderers)
	assert.Equal(t, 1, *row.NumberOfTenderers)
}

func TestProcess_SkippedBidLeavesNoReleaseHistory(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Tender.DeriveTenderers = true
	rel.Bids = append(rel.Bids, model.Bid{PartyID: "GHOST"})

	_, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Zero(t, countHistory(t, tx, entity.Releases))

	row, err := entity.Find[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.NotNil(t, row.NumberOfTenderers)
	assert.Equal(t, 1, *row.NumberOfTenderers)

	_, err = p.Process(ctx, tx, rel)
	require.NoError(t, err)
	snaps, err := entity.ListHistory[entity.Release](ctx, tx, "X1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	require.NotNil(t, snaps[0].Row.NumberOfTenderers)
	assert.Equal(t, 1, *snaps[0].Row.NumberOfTenderers)
}

func TestProcess_RepeatedKeysWrittenOnce(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Tender.Lots = append(rel.Tender.Lots, model.Lot{ID: "L1", Title: "Lot 1 révisé"})
	rel.Parties = append(rel.Parties, model.Party{ID: "FO-1", Name: "Béton Québec inc.", Roles: []string{model.RoleTenderer}})
	rel.Bids = append(rel.Bids, model.Bid{PartyID: "FO-1", Value: num(900)})

	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Zero(t, st.AliasesAdded)
	for _, tbl := range entity.All {
		assert.Zero(t, countHistory(t, tx, tbl), tbl.Name)
	}

	lot, err := entity.Find[entity.Lot](ctx, tx, "L1")
	require.NoError(t, err)
	assert.Equal(t, "Lot 1 révisé", *lot.Title)

	fo, err := entity.Find[entity.Party](ctx, tx, "FO-1")
	require.NoError(t, err)
	assert.Equal(t, "Béton Québec inc.", *fo.Name)
	assert.Equal(t, "[]", *fo.AliasParties)
	assert.EqualValues(t, 3, count(t, tx, entity.ReleaseParties))

	assert.EqualValues(t, 1, count(t, tx, entity.Bids))
	bid, err := entity.Find[entity.Bid](ctx, tx, "FO-1", "X1", nil)
	require.NoError(t, err)
	assert.InDelta(t, 900, *bid.Value, 0.001)
}

func TestProcess_BidOnUnknownLotIsBackfilled(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Bids = []model.Bid{{PartyID: "FO-1", RelatedLots: []string{"L1", "L9"}}}

	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Backfilled)
	assert.EqualValues(t, 2, count(t, tx, entity.Bids))

	lot, err := entity.Find[entity.Lot](ctx, tx, "L9")
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.Equal(t, "X1", lot.OCID)
}

func TestProcess_ContractOnUnknownAwardIsBackfilled(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Awards = nil
	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Backfilled)

	award, err := entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	assert.True(t, award.IsPlaceholder())

	_, err = p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)
	award, err = entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	assert.False(t, award.IsPlaceholder())

	snaps, err := entity.ListHistory[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Row.IsPlaceholder())
}

func TestProcess_ExpenseKeepsStoredContract(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Contracts[0].Transactions = []model.Transaction{{ID: "TX1", Value: model.Value{Amount: num(10), Currency: "CAD"}}}
	_, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)

	st, err := p.Process(ctx, tx, &model.Release{
		OCID:         "X1",
		Kind:         model.KindSupplement,
		Transactions: []model.Transaction{{ID: "TX1", Source: "Paiement", Value: model.Value{Amount: num(12), Currency: "CAD"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tables[entity.ContractTransactions.Name].Updated)

	txn, err := entity.Find[entity.ContractTransaction](ctx, tx, "X1", "TX1")
	require.NoError(t, err)
	require.NotNil(t, txn.ContractID)
	assert.Equal(t, "C1", *txn.ContractID)
	assert.InDelta(t, 12, *txn.ValueAmount, 0.001)
	assert.Equal(t, "Paiement", *txn.Source)
}

func TestProcess_SupplierDroppedFromAward(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.Awards[0].Suppliers = append(rel.Awards[0].Suppliers, model.SupplierRef{ID: "FO-2", Name: "Acier ltée"})
	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Tables[entity.SuppliersAwards.Name].Inserted)
	assert.EqualValues(t, 3, count(t, tx, entity.Parties))

	st, err = p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Tables[entity.SuppliersAwards.Name].Removed)
	assert.EqualValues(t, 1, count(t, tx, entity.SuppliersAwards))
	assert.EqualValues(t, 1, countHistory(t, tx, entity.SuppliersAwards))
}

func TestProcess_PartyAliasGrowth(t *testing.T) {
	ctx, tx, p := setup(t)

	_, err := p.Process(ctx, tx, scenarioX1())
	require.NoError(t, err)

	rel := scenarioX1()
	rel.Parties[1].Name = "Béton Québec inc."
	st, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)
	assert.Equal(t, 1, st.AliasesAdded)

	got, err := entity.Find[entity.Party](ctx, tx, "FO-1")
	require.NoError(t, err)
	assert.Equal(t, "Béton Québec inc.", *got.Name)
	require.NotNil(t, got.AliasParties)
	assert.Contains(t, *got.AliasParties, "Béton inc.")
}

func TestProcess_RelatedProcesses(t *testing.T) {
	ctx, tx, p := setup(t)

	rel := scenarioX1()
	rel.RelatedProcesses = []model.RelatedProcess{{ID: "RP1", Identifier: "X0", Relationship: []string{"parent", "prior"}}}
	_, err := p.Process(ctx, tx, rel)
	require.NoError(t, err)

	rp, err := entity.Find[entity.RelatedProcess](ctx, tx, "RP1")
	require.NoError(t, err)
	assert.Equal(t, "parent,prior", *rp.Relationship)
}
