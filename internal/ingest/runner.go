package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/model"
)

// Summary tallies unit outcomes over a run.
type Summary struct {
	Units   int           `json:"units"`
	OK      int           `json:"ok"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
	Fatal   int           `json:"fatal"`
	ByClass map[Class]int `json:"by_class,omitempty"`
	Stats   Stats         `json:"stats"`

	Files        int      `json:"files,omitempty"`
	FilesSkipped int      `json:"files_skipped,omitempty"`
	FilesFailed  []string `json:"files_failed,omitempty"`
}

func (s *Summary) observe(class Class, st Stats) {
	s.Units++
	if s.ByClass == nil {
		s.ByClass = make(map[Class]int)
	}
	s.ByClass[class]++
	switch {
	case class == ClassOK:
		s.OK++
		s.Stats.Add(st)
	case class.Skipped():
		s.Skipped++
	default:
		s.Failed++
		if class.Fatal() {
			s.Fatal++
		}
	}
}

// Add accumulates o into s.
func (s *Summary) Add(o Summary) {
	s.Units += o.Units
	s.OK += o.OK
	s.Skipped += o.Skipped
	s.Failed += o.Failed
	s.Fatal += o.Fatal
	for c, n := range o.ByClass {
		if s.ByClass == nil {
			s.ByClass = make(map[Class]int)
		}
		s.ByClass[c] += n
	}
	s.Stats.Add(o.Stats)
	s.Files += o.Files
	s.FilesSkipped += o.FilesSkipped
	s.FilesFailed = append(s.FilesFailed, o.FilesFailed...)
}

// Runner applies releases one transaction at a time.
type Runner struct {
	opener   db.Opener
	proc     *Processor
	dryRun   bool
	progress rate.Sometimes
	log      *zap.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithDryRun rolls back every unit instead of committing it.
func WithDryRun(dry bool) RunnerOption {
	return func(r *Runner) { r.dryRun = dry }
}

// WithProgressInterval sets how often progress is logged.
func WithProgressInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.progress = rate.Sometimes{First: 1, Interval: d} }
}

// NewRunner creates a Runner writing through opener.
func NewRunner(opener db.Opener, proc *Processor, opts ...RunnerOption) *Runner {
	r := &Runner{
		opener:   opener,
		proc:     proc,
		progress: rate.Sometimes{First: 1, Interval: 10 * time.Second},
		log:      zap.L().With(zap.String("component", "runner")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes units until the channel closes or ctx is canceled.
// Cancellation is checked between units only; a unit that has started runs
// to commit or rollback. Unit failures are counted in the summary, not
// returned.
func (r *Runner) Run(ctx context.Context, units <-chan model.Release) (Summary, error) {
	var sum Summary
	for {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var (
			rel model.Release
			ok  bool
		)
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		case rel, ok = <-units:
		}
		if !ok {
			return sum, nil
		}
		r.unit(context.WithoutCancel(ctx), &rel, &sum)
	}
}

func (r *Runner) unit(ctx context.Context, rel *model.Release, sum *Summary) {
	st, err := r.ProcessUnit(ctx, rel)
	class := Classify(err)
	sum.observe(class, st)

	switch {
	case err == nil:
	case class.Skipped():
		r.log.Debug("unit skipped", unitFields(rel, class, err)...)
	case class.Fatal():
		r.log.Error("unit history write failed", unitFields(rel, class, err)...)
	default:
		r.log.Warn("unit failed", unitFields(rel, class, err)...)
	}

	r.progress.Do(func() {
		r.log.Info("ingest progress",
			zap.Int("units", sum.Units),
			zap.Int("ok", sum.OK),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
		)
	})
}

func unitFields(rel *model.Release, class Class, err error) []zap.Field {
	return []zap.Field{
		zap.String("ocid", rel.OCID),
		zap.String("source", rel.Source.String()),
		zap.String("class", string(class)),
		zap.Error(err),
	}
}

// ProcessUnit applies one release in its own transaction, committing on
// success and rolling back on any error or in dry-run mode.
func (r *Runner) ProcessUnit(ctx context.Context, rel *model.Release) (Stats, error) {
	tx, err := r.opener.Begin(ctx)
	if err != nil {
		return Stats{}, &PersistenceError{Op: "begin", Err: err}
	}

	st, err := r.proc.Process(ctx, tx, rel)
	if err != nil || r.dryRun {
		if rbErr := tx.Rollback(ctx); rbErr != nil && err == nil {
			err = &PersistenceError{Op: "rollback", Err: rbErr}
		}
		return st, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Stats{}, &PersistenceError{Op: "commit", Err: err}
	}
	return st, nil
}
