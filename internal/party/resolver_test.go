package party

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/history"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/testhelpers"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var (
	addrA = model.Address{Street: "10 rue Principale", Locality: "Québec", Region: "QC", Postal: "G1R 1A1", Country: "CA"}
	addrB = model.Address{Street: "99 boul. Laurier", Locality: "Lévis", Region: "QC", Postal: "G6V 1A1", Country: "CA"}
)

func setup(t *testing.T) (context.Context, db.Tx, *Resolver) {
	t.Helper()
	lite := testhelpers.NewSQLite(t)
	tx := testhelpers.Begin(t, lite)
	return context.Background(), tx, NewResolver(upsert.New(history.New()))
}

func load(t *testing.T, ctx context.Context, s db.Session, id string) (*entity.Party, []string) {
	t.Helper()
	p, err := entity.Find[entity.Party](ctx, s, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	aliases, err := Aliases(p)
	require.NoError(t, err)
	return p, aliases
}

func encoded(name string, a model.Address) string {
	return Identity{name, a.Street, a.Locality, a.Region, a.Postal, a.Country}.Encode()
}

func TestResolve_NewPartyHasEmptyAliases(t *testing.T) {
	ctx, tx, r := setup(t)

	res, err := r.Resolve(ctx, tx, Input{ID: "FO-1", Name: "Béton Québec inc.", Address: addrA, Details: `{"NEQ": "1"}`})
	require.NoError(t, err)
	assert.Equal(t, "FO-1", res.ID)
	assert.Equal(t, upsert.Inserted, res.Outcome)

	p, aliases := load(t, ctx, tx, "FO-1")
	assert.Empty(t, aliases)
	assert.Equal(t, "[]", *p.AliasParties)
	assert.Equal(t, entity.IDSourceID, p.IDSource)
	assert.Equal(t, `{"NEQ": "1"}`, *p.Details)
}

func TestResolve_AliasGrowth(t *testing.T) {
	ctx, tx, r := setup(t)
	in := Input{ID: "FO-1", Name: "Béton Québec inc."}

	in.Address = addrA
	_, err := r.Resolve(ctx, tx, in)
	require.NoError(t, err)

	in.Address = addrB
	res, err := r.Resolve(ctx, tx, in)
	require.NoError(t, err)
	assert.True(t, res.AliasAdded)
	assert.Equal(t, upsert.Updated, res.Outcome)

	p, aliases := load(t, ctx, tx, "FO-1")
	assert.Equal(t, []string{encoded(in.Name, addrA)}, aliases)
	assert.Equal(t, addrB.Street, *p.StreetAddress)
	assert.Equal(t, addrB.Locality, *p.Locality)

	// Back to A: the displaced identity B is appended after A.
	in.Address = addrA
	_, err = r.Resolve(ctx, tx, in)
	require.NoError(t, err)
	p, aliases = load(t, ctx, tx, "FO-1")
	assert.Equal(t, []string{encoded(in.Name, addrA), encoded(in.Name, addrB)}, aliases)
	assert.Equal(t, addrA.Street, *p.StreetAddress)

	count := 0
	for _, a := range aliases {
		if a == encoded(in.Name, addrA) {
			count++
		}
	}
	assert.Equal(t, 1, count)

	snaps, err := entity.ListHistory[entity.Party](ctx, tx, "FO-1")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestResolve_SameIdentityNoAlias(t *testing.T) {
	ctx, tx, r := setup(t)
	in := Input{ID: "FO-1", Name: "Béton", Address: addrA}

	_, err := r.Resolve(ctx, tx, in)
	require.NoError(t, err)
	res, err := r.Resolve(ctx, tx, in)
	require.NoError(t, err)
	assert.False(t, res.AliasAdded)

	_, aliases := load(t, ctx, tx, "FO-1")
	assert.Empty(t, aliases)
}

func TestResolve_NameFallback(t *testing.T) {
	ctx, tx, r := setup(t)

	first, err := r.Resolve(ctx, tx, Input{Name: "Ville de Lévis", Address: addrA})
	require.NoError(t, err)
	assert.Equal(t, NameID("Ville de Lévis"), first.ID)
	assert.Contains(t, first.ID, "NAME-")

	second, err := r.Resolve(ctx, tx, Input{Name: "  Ville de Lévis ", Address: addrB})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.AliasAdded)

	p, aliases := load(t, ctx, tx, first.ID)
	assert.Equal(t, entity.IDSourceName, p.IDSource)
	assert.Equal(t, []string{encoded("Ville de Lévis", addrA)}, aliases)

	n, err := entity.Count(ctx, tx, entity.Parties)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestResolve_NameFallbackIgnoresStableIDs(t *testing.T) {
	ctx, tx, r := setup(t)

	_, err := r.Resolve(ctx, tx, Input{ID: "OP-1", Name: "Ville de Lévis"})
	require.NoError(t, err)

	res, err := r.Resolve(ctx, tx, Input{Name: "Ville de Lévis"})
	require.NoError(t, err)
	assert.NotEqual(t, "OP-1", res.ID)
	assert.Equal(t, upsert.Inserted, res.Outcome)
}

func TestResolve_Unidentifiable(t *testing.T) {
	ctx, tx, r := setup(t)
	_, err := r.Resolve(ctx, tx, Input{Name: " \t", Address: addrA})
	assert.ErrorIs(t, err, ErrUnidentifiable)
}

func TestEnsureMinimalThenEnrich(t *testing.T) {
	ctx, tx, r := setup(t)

	out, err := r.EnsureMinimal(ctx, tx, "FO-7", "Asphalte inc.")
	require.NoError(t, err)
	assert.Equal(t, upsert.Inserted, out)

	out, err = r.EnsureMinimal(ctx, tx, "FO-7", "Another name")
	require.NoError(t, err)
	assert.Equal(t, upsert.Unchanged, out)

	res, err := r.Resolve(ctx, tx, Input{ID: "FO-7", Name: "Asphalte inc.", Address: addrA})
	require.NoError(t, err)
	assert.False(t, res.AliasAdded)

	p, aliases := load(t, ctx, tx, "FO-7")
	assert.Empty(t, aliases)
	assert.Equal(t, addrA.Street, *p.StreetAddress)

	// A minimal row under a different name is a real variant.
	_, err = r.EnsureMinimal(ctx, tx, "FO-8", "Old Name")
	require.NoError(t, err)
	res, err = r.Resolve(ctx, tx, Input{ID: "FO-8", Name: "New Name", Address: addrA})
	require.NoError(t, err)
	assert.True(t, res.AliasAdded)
	_, aliases = load(t, ctx, tx, "FO-8")
	assert.Equal(t, []string{"Old Name|||||"}, aliases)

	_, err = r.EnsureMinimal(ctx, tx, "", "x")
	assert.ErrorIs(t, err, ErrUnidentifiable)
}

func TestAppendAlias(t *testing.T) {
	enc, added, err := AppendAlias(nil, "a|b|c|d|e|f")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, `["a|b|c|d|e|f"]`, enc)

	enc, added, err = AppendAlias([]string{"x", "a|b|c|d|e|f"}, "a|b|c|d|e|f")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, `["x","a|b|c|d|e|f"]`, enc)

	// Commas inside names survive the round trip.
	p := &entity.Party{AliasParties: &enc}
	enc2, _, err := AppendAlias([]string{"Smith, Jones & Co||||"}, "y")
	require.NoError(t, err)
	p.AliasParties = &enc2
	got, err := Aliases(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"Smith, Jones & Co||||", "y"}, got)

	bad := "not json"
	_, err = Aliases(&entity.Party{PartyID: "P", AliasParties: &bad})
	assert.Error(t, err)
}
