package app

import (
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger/internal/config"
	"github.com/noah-isme/tuition-ledger/migrations"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/ledger?sslmode=disable", MigrateURL("postgres://u:p@db:5432/ledger?sslmode=disable"))
	require.Equal(t, "pgx5://db/ledger", MigrateURL("postgresql://db/ledger"))
	require.Equal(t, "pgx5://db/ledger", MigrateURL("pgx5://db/ledger"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestBuildWiresBillingService(t *testing.T) {
	cfg := &config.Config{
		CurrencyCode:      "XOF",
		SettingsCacheTTL:  time.Minute,
		LockTTL:           5 * time.Second,
		LockRetryBackoff:  20 * time.Millisecond,
		CohortConcurrency: 4,
	}
	deps := Build(cfg, nil, nil, zerolog.Nop())
	require.NotNil(t, deps.Billing)
	require.Same(t, deps.Settings, deps.Billing.Settings)
	require.Equal(t, "XOF", deps.Billing.Currency)
	require.Equal(t, 4, deps.Billing.CohortConcurrency)
	require.Equal(t, time.Minute, deps.Settings.TTL)
	require.Len(t, deps.Events.Notifiers, 1)
}
