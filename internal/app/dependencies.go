package app

import (
	"errors"
	"fmt"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tuition-ledger/internal/billing"
	"github.com/noah-isme/tuition-ledger/internal/config"
	"github.com/noah-isme/tuition-ledger/internal/events"
	"github.com/noah-isme/tuition-ledger/internal/lock"
	"github.com/noah-isme/tuition-ledger/internal/settings"
	"github.com/noah-isme/tuition-ledger/internal/store"
	"github.com/noah-isme/tuition-ledger/migrations"
)

// Dependencies enumerates the services shared by the API handlers.
type Dependencies struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Store    *store.Store
	Settings *settings.Loader
	Events   *events.Bus
	Billing  *billing.Service
}

// Build wires the store, settings loader, event bus and billing service.
func Build(cfg *config.Config, db *pgxpool.Pool, rdb *redis.Client, logger zerolog.Logger) *Dependencies {
	st := store.New(db)
	loader := settings.NewLoader(st, rdb, cfg.SettingsCacheTTL, logger)
	bus := &events.Bus{
		Store:     st,
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger, Topics: events.DefaultTopics()}},
	}
	svcLogger := logger.With().Str("component", "billing").Logger()
	svc := &billing.Service{
		Store:    st,
		Settings: loader,
		Locker: lock.Locker{
			R:            rdb,
			TTL:          cfg.LockTTL,
			RetryBackoff: cfg.LockRetryBackoff,
		},
		LockTTL:           cfg.LockTTL,
		Events:            bus,
		Logger:            &svcLogger,
		Currency:          cfg.CurrencyCode,
		CohortConcurrency: cfg.CohortConcurrency,
	}
	return &Dependencies{DB: db, Redis: rdb, Store: st, Settings: loader, Events: bus, Billing: svc}
}

// NewMigrator opens the embedded migrations against databaseURL using the pgx/v5 driver.
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("init migrate: %w", err)
	}
	return m, nil
}

// MigrateURL rewrites a postgres URL to the scheme registered by the pgx/v5 driver.
func MigrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgresql://", "postgres://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// RunMigrations applies every pending up migration.
func RunMigrations(m *migrate.Migrate) error {
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
