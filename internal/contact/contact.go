// Package contact reconciles contact observations into identity groups.
package contact

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"reconciler/internal/contact/handler"
	"reconciler/internal/contact/ports"
	"reconciler/internal/contact/service"
	"reconciler/internal/contact/store"
	"reconciler/internal/platform/config"
	"reconciler/internal/platform/database"
)

// Service exposes identity reconciliation.
type Service = service.Service

// Handler wires HTTP endpoints to the reconciliation service.
type Handler = handler.Handler

// NewService constructs the reconciliation service over a transaction runner.
func NewService(tx ports.ContactStoreTx, opts ...service.Option) (*Service, error) {
	return service.New(tx, opts...)
}

// NewHandler constructs the HTTP handler for the public contact routes.
func NewHandler(s *Service, logger *slog.Logger) *Handler {
	return handler.New(s, logger)
}

// Backend is an opened contact store and the transaction runner serving it.
type Backend struct {
	Name string
	Tx   ports.ContactStoreTx
	Ping func(ctx context.Context) error

	db *sql.DB
}

// Close releases the backend's database handle, if any.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// OpenBackend opens the store selected by cfg and applies its schema.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		mem := store.NewInMemory()
		return &Backend{
			Name: config.BackendMemory,
			Tx:   service.NewShardedTx(mem, cfg.TxTimeout),
			Ping: mem.Ping,
		}, nil

	case config.BackendPostgres:
		db, err := database.OpenPostgres(ctx, cfg.Driver, cfg.DatabaseURL, database.PostgresOptions{
			MaxOpenConns: cfg.MaxOpenConns,
			MaxIdleConns: cfg.MaxOpenConns,
		})
		if err != nil {
			return nil, err
		}
		pg := store.NewPostgres(db)
		if err := pg.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backend{
			Name: config.BackendPostgres,
			Tx:   store.NewPostgresTx(db, cfg.TxTimeout),
			Ping: pg.Ping,
			db:   db,
		}, nil

	case config.BackendSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		lite := store.NewSQLite(db)
		if err := lite.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backend{
			Name: config.BackendSQLite,
			Tx:   store.NewSQLiteTx(db, cfg.TxTimeout),
			Ping: lite.Ping,
			db:   db,
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}
