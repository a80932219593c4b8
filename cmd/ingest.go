package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/procurement-cli/internal/adapter"
	"github.com/sells-group/procurement-cli/internal/adapter/legacy"
	"github.com/sells-group/procurement-cli/internal/adapter/ocds"
	"github.com/sells-group/procurement-cli/internal/adapter/seao"
	"github.com/sells-group/procurement-cli/internal/config"
	"github.com/sells-group/procurement-cli/internal/db"
	"github.com/sells-group/procurement-cli/internal/fetcher"
	"github.com/sells-group/procurement-cli/internal/history"
	"github.com/sells-group/procurement-cli/internal/ingest"
	"github.com/sells-group/procurement-cli/internal/selector"
	"github.com/sells-group/procurement-cli/internal/source"
	"github.com/sells-group/procurement-cli/internal/upsert"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Ingest a procurement source",
	Long: "Decodes OCDS packages, SEAO XML exports or the legacy database and applies every " +
		"qualifying release to the canonical store, one transaction per release.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		applyIngestFlags(cmd)

		o, err := openStore(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer o.Close()

		allow, err := allowList(cfg.Ingest.AllowListPath)
		if err != nil {
			return err
		}

		proc := ingest.NewProcessor(upsert.New(history.New()), allow)
		runner := ingest.NewRunner(o, proc, ingest.WithDryRun(cfg.Ingest.DryRun))
		p := ingest.NewPipeline(runner, ingest.NewRunLog(o),
			ingest.WithResume(cfg.Ingest.Resume),
			ingest.WithBuffer(cfg.Ingest.Buffer),
		)

		sum, err := runIngest(ctx, p, args)
		zap.L().Info("ingest finished",
			zap.String("format", cfg.Ingest.Format),
			zap.Bool("dry_run", cfg.Ingest.DryRun),
			zap.Int("files", sum.Files),
			zap.Int("units", sum.Units),
			zap.Int("ok", sum.OK),
			zap.Int("skipped", sum.Skipped),
			zap.Int("failed", sum.Failed),
			zap.Int("backfilled", sum.Stats.Backfilled),
		)
		return err
	},
}

func init() {
	f := ingestCmd.Flags()
	f.String("format", "", "input format (ocds, seao, legacy)")
	f.String("source", "", "where files come from (dir, s3, http)")
	f.String("dir", "", "input directory for the dir source")
	f.String("pattern", "", "glob matched against file names")
	f.String("allow-list", "", "YAML file of allowed item descriptions")
	f.Bool("dry-run", false, "roll back every release instead of committing")
	f.Bool("resume", false, "skip files already ingested by an earlier run")
	rootCmd.AddCommand(ingestCmd)
}

// applyIngestFlags overrides the loaded config with flags set on cmd.
func applyIngestFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("format") {
		cfg.Ingest.Format, _ = f.GetString("format")
	}
	if f.Changed("source") {
		cfg.Ingest.Source, _ = f.GetString("source")
	}
	if f.Changed("dir") {
		cfg.Ingest.Dir, _ = f.GetString("dir")
	}
	if f.Changed("pattern") {
		cfg.Ingest.Pattern, _ = f.GetString("pattern")
	}
	if f.Changed("allow-list") {
		cfg.Ingest.AllowListPath, _ = f.GetString("allow-list")
	}
	if f.Changed("dry-run") {
		cfg.Ingest.DryRun, _ = f.GetBool("dry-run")
	}
	if f.Changed("resume") {
		cfg.Ingest.Resume, _ = f.GetBool("resume")
	}
}

func allowList(path string) (selector.AllowList, error) {
	if path == "" {
		return selector.DefaultAllowList(), nil
	}
	return selector.LoadAllowList(path)
}

func runIngest(ctx context.Context, p *ingest.Pipeline, files []string) (ingest.Summary, error) {
	if cfg.Ingest.Format == config.FormatLegacy {
		pg, err := db.OpenPostgres(ctx, cfg.Legacy.DatabaseURL, nil)
		if err != nil {
			return ingest.Summary{}, eris.Wrap(err, "open legacy database")
		}
		defer pg.Close()
		return p.RunProducer(ctx, legacy.Name, legacy.New(pg.Pool()).Produce)
	}

	ad, err := newAdapter(cfg.Ingest.Format)
	if err != nil {
		return ingest.Summary{}, err
	}
	src, err := newSource(ctx, cfg.Ingest, files)
	if err != nil {
		return ingest.Summary{}, err
	}
	return p.RunFiles(ctx, ad, src, files)
}

func newAdapter(format string) (adapter.Adapter, error) {
	switch format {
	case config.FormatOCDS:
		return ocds.New(), nil
	case config.FormatSEAO:
		return seao.New(), nil
	default:
		return nil, eris.Errorf("unsupported ingest format: %s", format)
	}
}

// newSource returns the configured source, or the given local files when
// any were named on the command line.
func newSource(ctx context.Context, ic config.IngestConfig, files []string) (source.Source, error) {
	if len(files) > 0 {
		return source.Files(files), nil
	}
	switch ic.Source {
	case config.SourceDir:
		return source.NewDir(ic.Dir, ic.Pattern), nil
	case config.SourceS3:
		s3src, err := source.NewS3(ctx, source.S3Config{
			Bucket:    ic.S3.Bucket,
			Prefix:    ic.S3.Prefix,
			Pattern:   ic.Pattern,
			Region:    ic.S3.Region,
			Endpoint:  ic.S3.Endpoint,
			PathStyle: ic.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return s3src, nil
	case config.SourceHTTP:
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Fetch.UserAgent,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Fetch.MaxRetries,
			RateLimit:  rate.Limit(cfg.Fetch.RateLimit),
		})
		return source.NewURLs(ic.URLs, f), nil
	default:
		return nil, eris.Errorf("unsupported ingest source: %s", ic.Source)
	}
}
