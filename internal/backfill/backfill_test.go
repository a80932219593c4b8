package backfill

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/history"
	"github.com/sells-group/procurement-cli/internal/testhelpers"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func str(s string) *string { return &s }

func TestReferentialSafety(t *testing.T) {
	lite := testhelpers.NewSQLite(t)
	tx := testhelpers.Begin(t, lite)
	ctx := context.Background()
	engine := upsert.New(history.New())
	b := New(engine)

	require.NoError(t, entity.Insert(ctx, tx, &entity.Release{OCID: "X1"}))

	created := 0
	out, err := engine.Upsert(ctx, tx,
		&entity.Contract{ContractID: "C1", OCID: "X1", AwardID: str("A1")},
		upsert.WithBackfill(b.AwardHook("A1", "X1", &created)))
	require.NoError(t, err)
	assert.Equal(t, upsert.Inserted, out)
	assert.Equal(t, 1, created)

	placeholder, err := entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	require.NotNil(t, placeholder)
	assert.True(t, placeholder.IsPlaceholder())
	assert.Nil(t, placeholder.ValueAmount)
	assert.Nil(t, placeholder.ValueCurrency)
	assert.Nil(t, placeholder.ValueTotalAmount)

	amount := 1500.0
	out, err = engine.Upsert(ctx, tx, &entity.Award{AwardID: "A1", OCID: "X1", Status: str("active"), ValueAmount: &amount})
	require.NoError(t, err)
	assert.Equal(t, upsert.Updated, out)

	snaps, err := entity.ListHistory[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Row.IsPlaceholder())

	final, err := entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "active", *final.Status)
}

func TestEnsureAward_Existing(t *testing.T) {
	lite := testhelpers.NewSQLite(t)
	tx := testhelpers.Begin(t, lite)
	ctx := context.Background()
	b := New(upsert.New(history.New()))

	require.NoError(t, entity.Insert(ctx, tx, &entity.Release{OCID: "X1"}))
	require.NoError(t, entity.Insert(ctx, tx, &entity.Award{AwardID: "A1", OCID: "X1", Status: str("active")}))

	created, err := b.EnsureAward(ctx, tx, "A1", "X1")
	require.NoError(t, err)
	assert.False(t, created)

	got, err := entity.Find[entity.Award](ctx, tx, "A1")
	require.NoError(t, err)
	assert.Equal(t, "active", *got.Status)
}

func TestLotHook(t *testing.T) {
	lite := testhelpers.NewSQLite(t)
	tx := testhelpers.Begin(t, lite)
	ctx := context.Background()
	engine := upsert.New(history.New())
	b := New(engine)

	require.NoError(t, entity.Insert(ctx, tx, &entity.Release{OCID: "X1"}))
	require.NoError(t, entity.Insert(ctx, tx, &entity.Party{PartyID: "FO-1"}))

	_, err := engine.Upsert(ctx, tx,
		&entity.Bid{PartyID: "FO-1", OCID: "X1", RelatedLot: str("L9")},
		upsert.WithBackfill(b.LotHook("L9", "X1", nil)))
	require.NoError(t, err)

	lot, err := entity.Find[entity.Lot](ctx, tx, "L9")
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.Equal(t, StatusPlaceholder, *lot.Status)
	assert.Nil(t, lot.Title)
}

func TestEnsureAward_MissingRelease(t *testing.T) {
	lite := testhelpers.NewSQLite(t)
	tx := testhelpers.Begin(t, lite)
	b := New(upsert.New(history.New()))

	_, err := b.EnsureAward(context.Background(), tx, "A1", "nope")
	var ref *upsert.ReferentialError
	require.ErrorAs(t, err, &ref)
}
