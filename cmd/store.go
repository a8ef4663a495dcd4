package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/store"
)

// initStore validates the store portion of the config, opens the configured
// backend, and runs migrations so commands always see the current schema.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate(true); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.SQLitePath)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// parseSource validates a --source flag value.
func parseSource(s string) (model.Source, error) {
	src := model.Source(s)
	if !model.ValidSource(src) {
		return "", eris.Errorf("unknown source %q (want lead, field_agent_registration, or ledger_transaction)", s)
	}
	return src, nil
}

func allSources() []model.Source {
	return []model.Source{
		model.SourceLead,
		model.SourceFieldRegistration,
		model.SourceLedgerTransaction,
	}
}
