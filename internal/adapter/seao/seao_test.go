package seao

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const noticeXML = `<?xml version="1.0" encoding="UTF-8"?>
<export>
  <avis>
    <numeroseao>1234567</numeroseao>
    <numero>AO-2021-01</numero>
    <organisme>Ville de Laval</organisme>
    <municipal>1</municipal>
    <adresse1>1 place du Souvenir</adresse1>
    <adresse2>C.P. 422</adresse2>
    <ville>Laval</ville>
    <province>QC</province>
    <pays>CA</pays>
    <codepostal>H7V 3Z4</codepostal>
    <titre>Réfection de pavage & trottoirs</titre>
    <type>3</type>
    <nature>3</nature>
    <precision>2</precision>
    <categorieseao>C02 - Ouvrages de génie civil</categorieseao>
    <datepublication>2021-03-04 10:00</datepublication>
    <datefermeture>2021-04-01</datefermeture>
    <dateadjudication>2021-04-15</dateadjudication>
    <unspscprincipale>72141100</unspscprincipale>
    <disposition>Services de pavage</disposition>
    <hyperlienseao>https://seao.ca/avis/1234567</hyperlienseao>
    <fournisseurs>
      <fournisseur>
        <neq>1160000001</neq>
        <nomorganisation>Pavage Nord inc.</nomorganisation>
        <adresse1>10 rue A</adresse1>
        <ville>Laval</ville>
        <admissible>1</admissible>
        <conforme>1</conforme>
        <adjudicataire>1</adjudicataire>
        <montantsoumis>100000.50</montantsoumis>
        <montantcontrat>100000.50</montantcontrat>
        <montanttotalcontrat>115000</montanttotalcontrat>
      </fournisseur>
      <fournisseur>
        <neq>1160000002</neq>
        <nomorganisation>Asphalte Sud</nomorganisation>
        <admissible>1</admissible>
        <conforme>0</conforme>
        <adjudicataire>0</adjudicataire>
        <montantsoumis>120000</montantsoumis>
      </fournisseur>
      <fournisseur>
        <nomorganisation>Sans NEQ</nomorganisation>
        <adjudicataire>0</adjudicataire>
      </fournisseur>
    </fournisseurs>
  </avis>
</export>`

func decodeAll(t *testing.T, doc string) []model.Release {
	t.Helper()
	out := make(chan model.Release, 16)
	err := New().Decode(context.Background(), strings.NewReader(doc), "Avis_20210301_20210331.xml", out)
	require.NoError(t, err)
	close(out)
	var rels []model.Release
	for r := range out {
		rels = append(rels, r)
	}
	return rels
}

func TestDecode_Notice(t *testing.T) {
	rels := decodeAll(t, noticeXML)
	require.Len(t, rels, 1)
	rel := rels[0]

	assert.Equal(t, "ocds-ec9k95-1234567", rel.OCID)
	assert.Equal(t, "AO-2021-01", rel.ID)
	assert.Equal(t, model.KindFull, rel.Kind)
	assert.Equal(t, model.Source{Adapter: Name, File: "Avis_20210301_20210331.xml", Position: 1}, rel.Source)
	assert.Equal(t, []string{"avis"}, rel.Tags)
	assert.Equal(t, "tender", rel.InitiationType)
	assert.Equal(t, "fr", rel.Language)
	require.NotNil(t, rel.Date)
	assert.Equal(t, time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC), *rel.Date)

	tender := rel.Tender
	assert.Equal(t, "Réfection de pavage & trottoirs", tender.Title)
	assert.Equal(t, "complete", tender.Status)
	assert.Equal(t, "open", tender.ProcurementMethod)
	assert.Equal(t, "Contrat adjugé suite à un appel d’offres public", tender.ProcurementMethodDetails)
	assert.Equal(t, "Services de nature technique", tender.MainCategory)
	assert.Equal(t, []string{"Travaux de construction"}, tender.AdditionalCategories)
	assert.Equal(t, "OP-1234567", tender.ProcuringEntityID)
	assert.Equal(t, []string{"https://seao.ca/avis/1234567"}, tender.DocumentURLs)
	assert.True(t, tender.DeriveTenderers)
	assert.Nil(t, tender.NumberOfTenderers)
	require.NotNil(t, tender.EndDate)
	assert.Equal(t, time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC), *tender.EndDate)

	require.Len(t, tender.Items, 1)
	item := tender.Items[0]
	assert.Equal(t, "C02", item.ID)
	assert.Equal(t, "C02 - Ouvrages de génie civil", item.Description)
	assert.Equal(t, model.Classification{Scheme: "UNSPSC", ID: "72141100", Description: "Services de pavage"}, item.Classification)
	assert.Equal(t, []model.Classification{{Scheme: "CATEGORY", ID: "C02", Description: "C02 - Ouvrages de génie civil"}}, item.AdditionalClassifications)

	require.Len(t, rel.Parties, 4)
	buyer := rel.Parties[0]
	assert.Equal(t, "OP-1234567", buyer.ID)
	assert.Equal(t, []string{model.RoleBuyer}, buyer.Roles)
	assert.Equal(t, "1 place du Souvenir C.P. 422", buyer.Address.Street)
	assert.Equal(t, `{"Municipal":"1"}`, buyer.Details)

	assert.Equal(t, "FO-1160000001", rel.Parties[1].ID)
	assert.Equal(t, []string{model.RoleSupplier}, rel.Parties[1].Roles)
	assert.Equal(t, `{"NEQ":"1160000001"}`, rel.Parties[1].Details)
	assert.Equal(t, "10 rue A", rel.Parties[1].Address.Street)
	assert.Equal(t, []string{model.RoleTenderer}, rel.Parties[2].Roles)
	assert.Equal(t, MissingNEQ, rel.Parties[3].ID)

	require.Len(t, rel.Bids, 3)
	assert.Equal(t, "FO-1160000001", rel.Bids[0].PartyID)
	require.NotNil(t, rel.Bids[0].Value)
	assert.InDelta(t, 100000.50, *rel.Bids[0].Value, 0.001)
	assert.Equal(t, "CAD", rel.Bids[0].ValueUnit)
	require.NotNil(t, rel.Bids[1].Conform)
	assert.False(t, *rel.Bids[1].Conform)
	assert.Nil(t, rel.Bids[2].Value)

	require.Len(t, rel.Awards, 1)
	award := rel.Awards[0]
	assert.Equal(t, "AO-2021-01", award.ID)
	assert.Equal(t, "active", award.Status)
	assert.Equal(t, "CAD", award.Value.Currency)
	require.NotNil(t, award.Value.TotalAmount)
	assert.InDelta(t, 115000, *award.Value.TotalAmount, 0.001)
	require.NotNil(t, award.Date)
	assert.Equal(t, time.Date(2021, 4, 15, 0, 0, 0, 0, time.UTC), *award.Date)
	assert.Equal(t, []model.SupplierRef{{ID: "FO-1160000001", Name: "Pavage Nord inc."}}, award.Suppliers)
}

func TestNoticeRelease_SeveralWinnersShareAward(t *testing.T) {
	n := Notice{
		NumeroSEAO:    "9",
		Numero:        "N-9",
		CategorieSEAO: "C01 - Bâtiments",
		Suppliers: []Supplier{
			{NEQ: "1", NomOrganisation: "A", Adjudicataire: "1", MontantContrat: "10"},
			{NEQ: "2", NomOrganisation: "B", Adjudicataire: "1", MontantContrat: "20"},
		},
	}
	rel := n.Release()
	require.Len(t, rel.Awards, 1)
	assert.InDelta(t, 10, *rel.Awards[0].Value.Amount, 0.001)
	assert.Equal(t, []model.SupplierRef{{ID: "FO-1", Name: "A"}, {ID: "FO-2", Name: "B"}}, rel.Awards[0].Suppliers)
	assert.Equal(t, `{"Municipal":"0"}`, rel.Parties[0].Details)
}

func TestNoticeRelease_NoWinner(t *testing.T) {
	n := Notice{NumeroSEAO: "9", Suppliers: []Supplier{{NEQ: "1", Adjudicataire: "0"}}}
	rel := n.Release()
	assert.Empty(t, rel.Awards)
	assert.Empty(t, rel.Tender.DocumentURLs)
	assert.Equal(t, "open", rel.Tender.ProcurementMethod)
	assert.Equal(t, "Autre type de contrat", rel.Tender.ProcurementMethodDetails)
	assert.Equal(t, "Autres", rel.Tender.MainCategory)
	assert.Empty(t, rel.Tender.AdditionalCategories)
}

func TestDecode_Contracts(t *testing.T) {
	doc := `<contrats>
  <contrat>
    <numeroseao>1234567</numeroseao>
    <numero>AO-2021-01</numero>
    <datefinale>2021-12-31</datefinale>
    <datepublicationfinale>2022-01-15</datepublicationfinale>
    <montantfinal>101000</montantfinal>
    <nomcontractant>Pavage Nord inc.</nomcontractant>
    <neqcontractant>1160000001</neqcontractant>
  </contrat>
  <contrat>
    <numeroseao>7654321</numeroseao>
    <numero>C-2</numero>
  </contrat>
</contrats>`
	rels := decodeAll(t, doc)
	require.Len(t, rels, 2)

	c := rels[0]
	assert.Equal(t, model.KindSupplement, c.Kind)
	assert.Equal(t, "ocds-ec9k95-1234567", c.OCID)
	require.Len(t, c.Contracts, 1)
	assert.Equal(t, "AO-2021-01", c.Contracts[0].ID)
	assert.Equal(t, "terminated", c.Contracts[0].Status)
	assert.Empty(t, c.Contracts[0].AwardID)
	assert.Equal(t, time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC), *c.Contracts[0].DateSigned)
	assert.Equal(t, time.Date(2022, 1, 15, 0, 0, 0, 0, time.UTC), *c.Contracts[0].PeriodEnd)
	assert.InDelta(t, 101000, *c.Contracts[0].Value.Amount, 0.001)

	open := rels[1].Contracts[0]
	assert.Equal(t, "active", open.Status)
	assert.Nil(t, open.Value.Amount)
	assert.Nil(t, open.DateSigned)
	assert.Equal(t, 2, rels[1].Source.Position)
}

func TestDecode_Expenses(t *testing.T) {
	doc := `<export>
  <avis>
    <numeroseao>1234567</numeroseao>
    <numero>AO-2021-01</numero>
    <depenses>
      <depense>
        <datedepense>2022-02-01</datedepense>
        <montantdepense>5000</montantdepense>
        <description>Travaux supplémentaires</description>
      </depense>
      <depense>
        <datedepense>2022-03-01</datedepense>
        <montantdepense>2500</montantdepense>
        <description>Extra</description>
      </depense>
    </depenses>
  </avis>
  <avis>
    <numeroseao>99</numeroseao>
    <depenses></depenses>
  </avis>
</export>`
	rels := decodeAll(t, doc)
	require.Len(t, rels, 1)

	rel := rels[0]
	assert.Equal(t, model.KindSupplement, rel.Kind)
	require.Len(t, rel.Transactions, 2)
	txn := rel.Transactions[0]
	assert.True(t, strings.HasPrefix(txn.ID, "txn-"))
	assert.Empty(t, txn.ContractID)
	assert.Equal(t, "CAD", txn.Value.Currency)
	assert.Equal(t, "Travaux supplémentaires", txn.Source)
	assert.NotEqual(t, txn.ID, rel.Transactions[1].ID)

	again := decodeAll(t, doc)
	assert.Equal(t, txn.ID, again[0].Transactions[0].ID)
}

func TestExpenseRelease_LegacyID(t *testing.T) {
	rel := ExpenseRelease("5", "N", []Expense{{ID: "42", MontantDepense: "1"}})
	assert.Equal(t, "txn-42", rel.Transactions[0].ID)
	assert.Equal(t, "ocds-ec9k95-5", rel.OCID)
}

func TestDecode_HTMLEntities(t *testing.T) {
	doc := strings.Replace(noticeXML, "Réfection de pavage & trottoirs", "R&eacute;fection de pavage &amp; trottoirs", 1)
	rels := decodeAll(t, doc)
	require.Len(t, rels, 1)
	assert.Equal(t, "Réfection de pavage & trottoirs", rels[0].Tender.Title)
}

func TestDecode_Malformed(t *testing.T) {
	out := make(chan model.Release, 4)
	err := New().Decode(context.Background(), strings.NewReader(`<export><avis><numeroseao>1`), "bad.xml", out)
	assert.Error(t, err)
}

func TestDecode_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := make(chan model.Release)
	err := New().Decode(ctx, strings.NewReader(noticeXML), "x.xml", out)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "", OCID("  "))
	assert.Equal(t, "S3", CategoryPrefix("S3 - Services d'architecture"))
	assert.Equal(t, "IMM1", CategoryPrefix("IMM1"))
	assert.Equal(t, "FO-MISSING", SupplierID(" "))
}
