//go:build integration

package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/entity"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/testhelpers"
)

func TestPipeline_Postgres(t *testing.T) {
	ctx := context.Background()
	pg := testhelpers.GetPostgres(t)

	rel := *scenarioX1()
	rel.OCID = "PG-" + t.Name()
	rel.Awards[0].ID = rel.OCID + "-A1"
	rel.Contracts[0].ID = rel.OCID + "-C1"
	rel.Contracts[0].AwardID = rel.Awards[0].ID
	rel.Tender.Lots[0].ID = rel.OCID + "-L1"

	p := NewPipeline(NewRunner(pg, newProcessor()), NewRunLog(pg))
	for range 2 {
		sum, err := p.RunProducer(ctx, "integration", func(ctx context.Context, out chan<- model.Release) error {
			return adapter.Emit(ctx, out, rel)
		})
		require.NoError(t, err)
		assert.Equal(t, 1, sum.OK)
	}

	tx := testhelpers.Begin(t, pg)
	snaps, err := entity.ListHistory[entity.Release](ctx, tx, rel.OCID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	stored, err := entity.Find[entity.Release](ctx, tx, rel.OCID)
	require.NoError(t, err)
	assert.Equal(t, *stored.TenderTitle, *snaps[0].Row.TenderTitle)

	last, err := NewRunLog(pg).LastSuccess(ctx, "integration")
	require.NoError(t, err)
	assert.NotNil(t, last)
}
