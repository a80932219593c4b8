package seao

import (
	"context"
	"encoding/xml"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/fetcher"
	"github.com/sells-group/procurement-cli/internal/model"
)

// Name identifies the XML format.
const Name = "seao"

// element is any top-level record of an export file. Notices and expense
// lists are both <avis>; only the latter have a <depenses> child.
type element struct {
	XMLName xml.Name
	Notice

	DateFinale            string `xml:"datefinale"`
	DatePublicationFinale string `xml:"datepublicationfinale"`
	MontantFinal          string `xml:"montantfinal"`
	NomContractant        string `xml:"nomcontractant"`
	NEQContractant        string `xml:"neqcontractant"`

	Depenses *struct {
		Items []Expense `xml:"depense"`
	} `xml:"depenses"`
}

func (el *element) release() model.Release {
	switch {
	case el.XMLName.Local == "contrat":
		c := ContractRecord{
			NumeroSEAO:            el.NumeroSEAO,
			Numero:                el.Numero,
			DateFinale:            el.DateFinale,
			DatePublicationFinale: el.DatePublicationFinale,
			MontantFinal:          el.MontantFinal,
			NomContractant:        el.NomContractant,
			NEQContractant:        el.NEQContractant,
		}
		return c.Release()
	case el.Depenses != nil:
		return ExpenseRelease(el.NumeroSEAO, el.Numero, el.Depenses.Items)
	default:
		return el.Notice.Release()
	}
}

// Adapter decodes SEAO XML exports: notices, contracts and expenses.
type Adapter struct {
	log *zap.Logger
}

// New creates a SEAO adapter.
func New() *Adapter {
	return &Adapter{log: zap.L().With(zap.String("component", "seao"))}
}

// Name returns the format name.
func (a *Adapter) Name() string { return Name }

// Decode streams every <avis> and <contrat> in r. Expense lists without any
// <depense> are dropped. Positions count records in document order.
func (a *Adapter) Decode(ctx context.Context, r io.Reader, file string, out chan<- model.Release) error {
	records, errs := fetcher.StreamXML[element](ctx, r, []string{"avis", "contrat"})

	empty := 0
	for rec := range records {
		el := rec.Value
		if el.Depenses != nil && len(el.Depenses.Items) == 0 {
			empty++
			a.log.Debug("expense list without expenses",
				zap.String("file", file),
				zap.String("numeroseao", el.NumeroSEAO),
				zap.Int("line", rec.Line),
			)
			continue
		}
		rel := el.release()
		rel.Source = model.Source{Adapter: Name, File: file, Position: rec.Index}
		if err := adapter.Emit(ctx, out, rel); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		return eris.Wrapf(err, "seao: decode %s", file)
	}
	if empty > 0 {
		a.log.Debug("skipped expense lists without expenses", zap.String("file", file), zap.Int("count", empty))
	}
	return nil
}
