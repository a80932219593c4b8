// Package party resolves party identities by stable id or by name and keeps
// an alias list of the name and address variants each party was seen with.
package party

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/normalize"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

// ErrUnidentifiable is returned for a party with neither an id nor a name.
var ErrUnidentifiable = eris.New("party: no id and no name")

// nameNamespace seeds deterministic ids for parties known only by name.
var nameNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:procurement:party-name"))

// Input is one sighting of a party.
type Input struct {
	ID      string
	Name    string
	Address model.Address
	Details string
}

// FromModel converts an adapter party.
func FromModel(p model.Party) Input {
	return Input{ID: p.ID, Name: p.Name, Address: p.Address, Details: p.Details}
}

// Result describes what Resolve did.
type Result struct {
	ID         string
	Outcome    upsert.Outcome
	AliasAdded bool
}

// Resolver maps party sightings onto stored parties.
type Resolver struct {
	engine *upsert.Engine
	log    *zap.Logger
}

// NewResolver creates a Resolver writing through engine.
func NewResolver(engine *upsert.Engine) *Resolver {
	return &Resolver{engine: engine, log: zap.L().With(zap.String("component", "party"))}
}

// NameID returns the deterministic id given to a party known only by name.
func NameID(name string) string {
	return "NAME-" + uuid.NewSHA1(nameNamespace, []byte(name)).String()
}

// Resolve stores the sighting and returns the party's id.
//
// With a stable id the party is looked up by id. Without one, the lookup is
// an exact name match among parties that never had a stable id. A stored
// party whose core identity differs has its previous identity appended to
// its alias list, unless that is already the latest alias, before the new
// identity overwrites it.
func (r *Resolver) Resolve(ctx context.Context, s db.Session, in Input) (Result, error) {
	row := &entity.Party{
		PartyID:       normalize.TextOrEmpty(in.ID),
		Name:          normalize.Text(in.Name),
		StreetAddress: normalize.Text(in.Address.Street),
		Locality:      normalize.Text(in.Address.Locality),
		Region:        normalize.Text(in.Address.Region),
		PostalCode:    normalize.Text(in.Address.Postal),
		CountryName:   normalize.Text(in.Address.Country),
		Details:       normalize.StringPtr(in.Details),
		IDSource:      entity.IDSourceID,
	}

	var (
		cur *entity.Party
		err error
	)
	switch {
	case row.PartyID != "":
		cur, err = entity.FindForUpdate[entity.Party](ctx, s, row.PartyID)
	case row.Name != nil:
		row.IDSource = entity.IDSourceName
		cur, err = r.findByName(ctx, s, *row.Name)
		if cur != nil {
			row.PartyID = cur.PartyID
		} else {
			row.PartyID = NameID(*row.Name)
		}
	default:
		return Result{}, ErrUnidentifiable
	}
	if err != nil {
		return Result{}, err
	}

	res := Result{ID: row.PartyID}
	if cur == nil {
		aliases := encodeAliases(nil)
		row.AliasParties = &aliases
		res.Outcome, err = r.engine.Upsert(ctx, s, row)
		return res, err
	}

	row.AliasParties = cur.AliasParties
	prev, next := identityOf(cur), identityOf(row)
	if prev != next && !enriches(prev, next) {
		aliases, err := Aliases(cur)
		if err != nil {
			return res, err
		}
		encoded, added, err := AppendAlias(aliases, prev.Encode())
		if err != nil {
			return res, err
		}
		row.AliasParties = &encoded
		res.AliasAdded = added
		if added {
			r.log.Debug("party identity changed",
				zap.String("party_id", row.PartyID),
				zap.String("previous", prev.Encode()),
			)
		}
	}

	res.Outcome, err = r.engine.Upsert(ctx, s, row)
	return res, err
}

// enriches reports whether next only fills in what a minimal or empty prev
// was missing, which is not a new identity variant.
func enriches(prev, next Identity) bool {
	if prev.IsZero() {
		return true
	}
	return prev.NameOnly() && prev.Name == next.Name
}

func (r *Resolver) findByName(ctx context.Context, s db.Session, name string) (*entity.Party, error) {
	matches, err := entity.Select[entity.Party](ctx, s, map[string]any{
		"name":      name,
		"id_source": entity.IDSourceName,
	})
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	if len(matches) > 1 {
		r.log.Warn("several name-only parties share a name, using the first",
			zap.String("name", name), zap.Int("matches", len(matches)))
	}
	return entity.FindForUpdate[entity.Party](ctx, s, matches[0].PartyID)
}

// EnsureMinimal inserts a party known only by id and name, as on the award
// path. A stored party is left untouched.
func (r *Resolver) EnsureMinimal(ctx context.Context, s db.Session, id, name string) (upsert.Outcome, error) {
	id = normalize.TextOrEmpty(id)
	if id == "" {
		return upsert.Unchanged, ErrUnidentifiable
	}
	aliases := encodeAliases(nil)
	return r.engine.InsertIfAbsent(ctx, s, &entity.Party{
		PartyID:      id,
		Name:         normalize.Text(name),
		AliasParties: &aliases,
		IDSource:     entity.IDSourceID,
	})
}
