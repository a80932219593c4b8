// Package backfill creates placeholder parents for children that reference
// rows not yet seen.
package backfill

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

// StatusPlaceholder is the status given to every placeholder row.
const StatusPlaceholder = entity.AwardStatusPlaceholder

// Backfiller inserts placeholders through an upsert engine.
type Backfiller struct {
	engine *upsert.Engine
}

// New creates a Backfiller.
func New(engine *upsert.Engine) *Backfiller {
	return &Backfiller{engine: engine}
}

// EnsureAward inserts a placeholder award with no value fields unless
// awardID is already stored. The real award later overwrites it through the
// normal upsert, which archives the placeholder.
func (b *Backfiller) EnsureAward(ctx context.Context, s db.Session, awardID, ocid string) (bool, error) {
	status := StatusPlaceholder
	out, err := b.engine.InsertIfAbsent(ctx, s, &entity.Award{AwardID: awardID, OCID: ocid, Status: &status})
	if err != nil {
		return false, err
	}
	if out == upsert.Inserted {
		zap.L().Debug("backfilled placeholder award", zap.String("award_id", awardID), zap.String("ocid", ocid))
	}
	return out == upsert.Inserted, nil
}

// EnsureLot does the same for a lot referenced by a bid.
func (b *Backfiller) EnsureLot(ctx context.Context, s db.Session, lotID, ocid string) (bool, error) {
	status := StatusPlaceholder
	out, err := b.engine.InsertIfAbsent(ctx, s, &entity.Lot{LotID: lotID, OCID: ocid, Status: &status})
	if err != nil {
		return false, err
	}
	if out == upsert.Inserted {
		zap.L().Debug("backfilled placeholder lot", zap.String("lot_id", lotID), zap.String("ocid", ocid))
	}
	return out == upsert.Inserted, nil
}

// AwardHook returns an upsert.BackfillFunc that ensures awardID. created is
// incremented when a placeholder is written; it may be nil.
func (b *Backfiller) AwardHook(awardID, ocid string, created *int) upsert.BackfillFunc {
	return func(ctx context.Context, s db.Session) error {
		ok, err := b.EnsureAward(ctx, s, awardID, ocid)
		if ok && created != nil {
			*created++
		}
		return err
	}
}

// LotHook is AwardHook for lots.
func (b *Backfiller) LotHook(lotID, ocid string, created *int) upsert.BackfillFunc {
	return func(ctx context.Context, s db.Session) error {
		ok, err := b.EnsureLot(ctx, s, lotID, ocid)
		if ok && created != nil {
			*created++
		}
		return err
	}
}
