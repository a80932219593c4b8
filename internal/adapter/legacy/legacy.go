// Package legacy migrates the notice tables of an earlier SEAO import
// database into normalized releases.
package legacy

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/adapter/seao"
	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/model"
)

// Name identifies the legacy source in logs and the run log.
const Name = "legacy"

// Source tables, also used as the Source.File of emitted releases.
const (
	TableNotices   = "avis"
	TableContracts = "contrats"
	TableExpenses  = "depenses"
)

func text(col string) string {
	return fmt.Sprintf("COALESCE(%s::text, '')", col)
}

func timestamp(col string) string {
	return fmt.Sprintf("COALESCE(to_char(%s, 'YYYY-MM-DD HH24:MI:SS'), '')", col)
}

func selectList(cols ...string) string {
	return strings.Join(cols, ", ")
}

// Only notices that led to a contract are migrated.
var (
	noticesQuery = "SELECT " + selectList(
		text("a.numeroseao"), text("a.numero"), text("a.organisme"), text("a.municipal"),
		text("a.adresse1"), text("a.adresse2"), text("a.ville"), text("a.province"),
		text("a.pays"), text("a.codepostal"), text("a.titre"), text("a.type"),
		text("a.nature"), text("a.precision"), text("a.categorieseao"),
		timestamp("a.datepublication"), timestamp("a.datefermeture"), timestamp("a.dateadjudication"),
		text("a.unspscprincipale"), text("a.disposition"), text("a.hyperlienseao"),
	) + ` FROM avis a
WHERE EXISTS (SELECT 1 FROM contrats c WHERE c.numeroseao = a.numeroseao)
ORDER BY a.numeroseao`

	suppliersQuery = "SELECT " + selectList(
		text("af.neq"), "COALESCE(f.nomorganisation, af.nomorganisation, '')",
		text("f.adresse1"), text("f.adresse2"), text("f.ville"), text("f.province"),
		text("f.pays"), text("f.codepostal"),
		text("af.admissible"), text("af.conforme"), text("af.adjudicataire"),
		text("af.montantsoumis"), text("af.montantssoumisunite"),
		text("af.montantcontrat"), text("af.montanttotalcontrat"),
	) + ` FROM avis_fournisseurs af
LEFT JOIN fournisseurs f ON f.neq = af.neq
WHERE af.numeroseao = $1
ORDER BY af.neq NULLS LAST, af.nomorganisation`

	contractsQuery = "SELECT " + selectList(
		text("c.numeroseao"), text("c.numero"),
		timestamp("c.datefinale"), timestamp("c.datepublicationfinale"),
		text("c.montantfinal"), text("c.nomcontractant"), text("c.neqcontractant"),
	) + ` FROM contrats c
WHERE EXISTS (SELECT 1 FROM avis a WHERE a.numeroseao = c.numeroseao)
ORDER BY c.numeroseao, c.numero`

	expensesQuery = "SELECT " + selectList(
		text("d.depense_id"), text("d.numeroseao"), text("d.numero"),
		timestamp("d.datedepense"), timestamp("d.datepublicationdepense"),
		text("d.montantdepense"), text("d.description"),
		text("d.nomcontractant"), text("d.neqcontractant"),
	) + ` FROM depenses d
WHERE EXISTS (SELECT 1 FROM contrats c WHERE c.numeroseao = d.numeroseao)
ORDER BY d.numeroseao, d.depense_id`
)

// Reader reads the legacy tables through a pgx pool.
type Reader struct {
	pool db.Pool
	log  *zap.Logger
}

// New creates a Reader on pool.
func New(pool db.Pool) *Reader {
	return &Reader{pool: pool, log: zap.L().With(zap.String("component", "legacy"))}
}

// Name returns the source name.
func (r *Reader) Name() string { return Name }

// Produce emits every notice, then every contract, then the expenses of
// each notice, so that supplements always follow their release.
func (r *Reader) Produce(ctx context.Context, out chan<- model.Release) error {
	steps := []struct {
		table string
		fn    func(context.Context, chan<- model.Release) (int, error)
	}{
		{TableNotices, r.notices},
		{TableContracts, r.contracts},
		{TableExpenses, r.expenses},
	}
	for _, step := range steps {
		n, err := step.fn(ctx, out)
		if err != nil {
			return eris.Wrapf(err, "legacy: read %s", step.table)
		}
		r.log.Info("legacy table read", zap.String("table", step.table), zap.Int("releases", n))
	}
	return nil
}

func (r *Reader) notices(ctx context.Context, out chan<- model.Release) (int, error) {
	rows, err := r.pool.Query(ctx, noticesQuery)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	pos := 0
	for rows.Next() {
		var n seao.Notice
		if err := rows.Scan(&n.NumeroSEAO, &n.Numero, &n.Organisme, &n.Municipal,
			&n.Adresse1, &n.Adresse2, &n.Ville, &n.Province, &n.Pays, &n.CodePostal,
			&n.Titre, &n.Type, &n.Nature, &n.Precision, &n.CategorieSEAO,
			&n.DatePublication, &n.DateFermeture, &n.DateAdjudication,
			&n.UNSPSCPrincipale, &n.Disposition, &n.HyperlienSEAO); err != nil {
			return pos, eris.Wrap(err, "scan notice")
		}
		suppliers, err := r.suppliers(ctx, n.NumeroSEAO)
		if err != nil {
			return pos, err
		}
		n.Suppliers = suppliers

		pos++
		rel := n.Release()
		rel.Source = model.Source{Adapter: Name, File: TableNotices, Position: pos}
		if err := adapter.Emit(ctx, out, rel); err != nil {
			return pos, err
		}
	}
	return pos, rows.Err()
}

func (r *Reader) suppliers(ctx context.Context, numeroSEAO string) ([]seao.Supplier, error) {
	rows, err := r.pool.Query(ctx, suppliersQuery, numeroSEAO)
	if err != nil {
		return nil, eris.Wrapf(err, "query suppliers of %s", numeroSEAO)
	}
	defer rows.Close()

	var out []seao.Supplier
	for rows.Next() {
		var s seao.Supplier
		if err := rows.Scan(&s.NEQ, &s.NomOrganisation,
			&s.Adresse1, &s.Adresse2, &s.Ville, &s.Province, &s.Pays, &s.CodePostal,
			&s.Admissible, &s.Conforme, &s.Adjudicataire,
			&s.MontantSoumis, &s.MontantsSoumisUnite,
			&s.MontantContrat, &s.MontantTotalContrat); err != nil {
			return nil, eris.Wrapf(err, "scan supplier of %s", numeroSEAO)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Reader) contracts(ctx context.Context, out chan<- model.Release) (int, error) {
	rows, err := r.pool.Query(ctx, contractsQuery)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	pos := 0
	for rows.Next() {
		var c seao.ContractRecord
		if err := rows.Scan(&c.NumeroSEAO, &c.Numero, &c.DateFinale, &c.DatePublicationFinale,
			&c.MontantFinal, &c.NomContractant, &c.NEQContractant); err != nil {
			return pos, eris.Wrap(err, "scan contract")
		}
		pos++
		rel := c.Release()
		rel.Source = model.Source{Adapter: Name, File: TableContracts, Position: pos}
		if err := adapter.Emit(ctx, out, rel); err != nil {
			return pos, err
		}
	}
	return pos, rows.Err()
}

// expenses groups the rows of each notice into one release.
func (r *Reader) expenses(ctx context.Context, out chan<- model.Release) (int, error) {
	rows, err := r.pool.Query(ctx, expensesQuery)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var (
		pos             int
		current, numero string
		batch           []seao.Expense
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		pos++
		rel := seao.ExpenseRelease(current, numero, batch)
		rel.Source = model.Source{Adapter: Name, File: TableExpenses, Position: pos}
		batch = nil
		return adapter.Emit(ctx, out, rel)
	}

	for rows.Next() {
		var (
			e      seao.Expense
			notice string
			number string
		)
		if err := rows.Scan(&e.ID, &notice, &number, &e.DateDepense, &e.DatePublicationDepense,
			&e.MontantDepense, &e.Description, &e.NomContractant, &e.NEQContractant); err != nil {
			return pos, eris.Wrap(err, "scan expense")
		}
		if notice != current {
			if err := flush(); err != nil {
				return pos, err
			}
			current, numero = notice, number
		}
		batch = append(batch, e)
	}
	if err := rows.Err(); err != nil {
		return pos, err
	}
	return pos, flush()
}
