package ingest

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/model"
	"github.com/sells-group/procurement-cli/internal/source"
)

// ProduceFunc emits releases to out until its input is exhausted.
type ProduceFunc func(ctx context.Context, out chan<- model.Release) error

// Pipeline feeds producers into a Runner and records the run.
type Pipeline struct {
	runner *Runner
	runLog *RunLog
	resume bool
	buffer int
	log    *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithResume skips files already checkpointed by an earlier run.
func WithResume(resume bool) PipelineOption {
	return func(p *Pipeline) { p.resume = resume }
}

// WithBuffer sets how many decoded releases may wait for the runner.
func WithBuffer(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.buffer = n
		}
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(runner *Runner, runLog *RunLog, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		runner: runner,
		runLog: runLog,
		buffer: 64,
		log:    zap.L().With(zap.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunFiles decodes files with ad, in date-range order, and applies their
// releases. When files is empty the source's listing is used. A file that
// fails to open or decode is logged and left without a checkpoint; the
// remaining files still run, and the run is recorded as failed.
func (p *Pipeline) RunFiles(ctx context.Context, ad adapter.Adapter, src source.Source, files []string) (Summary, error) {
	var sum Summary

	runID, err := p.runLog.Start(ctx, ad.Name())
	if err != nil {
		return sum, err
	}
	log := p.log.With(zap.String("source", ad.Name()), zap.Int64("run_id", runID))

	if len(files) == 0 {
		files, err = src.List(ctx)
		if err != nil {
			return sum, p.finish(ctx, runID, &sum, eris.Wrap(err, "ingest: list files"))
		}
	}
	files = adapter.SortByDateRange(files)
	log.Info("ingest started", zap.Int("files", len(files)))

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return sum, p.finish(ctx, runID, &sum, eris.Wrap(err, "ingest: canceled"))
		}
		if p.resume {
			done, err := p.runLog.FileDone(ctx, ad.Name(), file)
			if err != nil {
				return sum, p.finish(ctx, runID, &sum, err)
			}
			if done {
				log.Info("file already ingested", zap.String("file", file))
				sum.FilesSkipped++
				continue
			}
		}

		fs, err := p.stream(ctx, func(ctx context.Context, out chan<- model.Release) error {
			return decodeFile(ctx, ad, src, file, out)
		})
		sum.Add(fs)
		sum.Files++
		switch {
		case ctx.Err() != nil:
			return sum, p.finish(ctx, runID, &sum, eris.Wrapf(ctx.Err(), "ingest: canceled during %s", file))
		case err != nil:
			log.Error("file failed", zap.String("file", file), zap.Error(err))
			sum.FilesFailed = append(sum.FilesFailed, file)
			continue
		}
		if err := p.runLog.MarkFile(ctx, ad.Name(), file, runID, fs.Units); err != nil {
			return sum, p.finish(ctx, runID, &sum, err)
		}
		log.Info("file ingested", zap.String("file", file), zap.Int("units", fs.Units),
			zap.Int("ok", fs.OK), zap.Int("skipped", fs.Skipped), zap.Int("failed", fs.Failed))
	}
	return sum, p.finish(ctx, runID, &sum, nil)
}

func decodeFile(ctx context.Context, ad adapter.Adapter, src source.Source, file string, out chan<- model.Release) error {
	rc, err := src.Open(ctx, file)
	if err != nil {
		return err
	}
	defer rc.Close() //nolint:errcheck
	return ad.Decode(ctx, rc, file, out)
}

// RunProducer applies the releases of a single producer as one run named
// name.
func (p *Pipeline) RunProducer(ctx context.Context, name string, produce ProduceFunc) (Summary, error) {
	runID, err := p.runLog.Start(ctx, name)
	if err != nil {
		return Summary{}, err
	}
	sum, err := p.stream(ctx, produce)
	return sum, p.finish(ctx, runID, &sum, err)
}

// stream runs produce and the runner concurrently. The runner stops once
// the producer closes the channel or either side fails.
func (p *Pipeline) stream(ctx context.Context, produce ProduceFunc) (Summary, error) {
	g, gctx := errgroup.WithContext(ctx)
	units := make(chan model.Release, p.buffer)

	g.Go(func() error {
		defer close(units)
		return produce(gctx, units)
	})

	var sum Summary
	g.Go(func() error {
		var err error
		sum, err = p.runner.Run(gctx, units)
		return err
	})

	err := g.Wait()
	return sum, err
}

// finish records the outcome of the run. Units that failed to write history
// and files that failed to decode fail the run.
func (p *Pipeline) finish(ctx context.Context, runID int64, sum *Summary, runErr error) error {
	ctx = context.WithoutCancel(ctx)

	if runErr == nil && sum.Fatal > 0 {
		runErr = eris.Errorf("ingest: %d units failed to write history", sum.Fatal)
	}
	if runErr == nil && len(sum.FilesFailed) > 0 {
		runErr = eris.Errorf("ingest: %d files failed: %s", len(sum.FilesFailed), strings.Join(sum.FilesFailed, ", "))
	}

	if runErr != nil {
		if err := p.runLog.Fail(ctx, runID, runErr.Error(), sum); err != nil {
			p.log.Error("failed to record run failure", zap.Int64("run_id", runID), zap.Error(err))
		}
		return runErr
	}
	if err := p.runLog.Complete(ctx, runID, sum); err != nil {
		return err
	}
	p.log.Info("ingest complete",
		zap.Int64("run_id", runID),
		zap.Int("units", sum.Units),
		zap.Int("ok", sum.OK),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Strings("tables", sum.Stats.TableNames()),
	)
	return nil
}
