package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/procurement-cli/internal/config"
	"github.com/sells-group/procurement-cli/internal/db"
)

// openStore opens the canonical store and applies pending migrations.
func openStore(ctx context.Context, mode string) (db.Opener, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	var (
		o   db.Opener
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		o, err = db.OpenSQLite(cfg.Store.DatabaseURL)
	case config.DriverPostgres:
		o, err = db.OpenPostgres(ctx, cfg.Store.DatabaseURL, &db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := o.Migrate(ctx); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}
