package settings

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

type stubSource struct {
	mu    sync.Mutex
	snap  ledger.Snapshot
	err   error
	calls atomic.Int32
}

func (s *stubSource) ReadSettings(context.Context) (ledger.Snapshot, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

func (s *stubSource) set(snap ledger.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

func sampleSnapshot() ledger.Snapshot {
	return ledger.Snapshot{
		Tariffs: ledger.TariffTable{
			"CM1": {Classe: "CM1", InscriptionFee: 40_000, AnnualTuitionFee: 220_000},
		},
		Plan: ledger.PlanConfig{
			InstallmentTiers: []ledger.InstallmentTier{
				{Number: 1, Name: "Tranche 1", PercentageOfAnnual: decimal.NewFromInt(50)},
				{Number: 2, Name: "Tranche 2", PercentageOfAnnual: decimal.NewFromInt(50)},
			},
			MonthlyDueDay: 5,
		},
		Catalog: ledger.OptionCatalog{
			Standard: map[ledger.OptionKey]ledger.Money{ledger.OptionAssurance: 3_000},
			Custom:   []ledger.CustomOption{{ID: "opt-cantine", Name: "Cantine", Price: 15_000}},
		},
		LoadedAt: time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestLoader(t *testing.T, src Source) (*Loader, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLoader(src, client, time.Minute, zerolog.Nop()), mr
}

func TestSnapshotCachesInRedis(t *testing.T) {
	src := &stubSource{snap: sampleSnapshot()}
	loader, mr := newTestLoader(t, src)
	ctx := context.Background()

	first, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, mr.Exists(DefaultCacheKey))

	second, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, src.calls.Load())
	require.Equal(t, first.Tariffs, second.Tariffs)
	require.True(t, second.Plan.InstallmentTiers[0].PercentageOfAnnual.Equal(decimal.NewFromInt(50)))
	require.Equal(t, first.Catalog, second.Catalog)
}

func TestSnapshotExpiresWithTTL(t *testing.T) {
	src := &stubSource{snap: sampleSnapshot()}
	loader, mr := newTestLoader(t, src)
	ctx := context.Background()

	_, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = loader.Snapshot(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}

func TestRefreshPicksUpChanges(t *testing.T) {
	src := &stubSource{snap: sampleSnapshot()}
	loader, _ := newTestLoader(t, src)
	ctx := context.Background()

	_, err := loader.Snapshot(ctx)
	require.NoError(t, err)

	updated := sampleSnapshot()
	updated.Tariffs["CM1"] = ledger.Tariff{Classe: "CM1", InscriptionFee: 45_000, AnnualTuitionFee: 240_000}
	src.set(updated)

	cached, err := loader.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.Money(220_000), cached.Tariffs["CM1"].AnnualTuitionFee)

	fresh, err := loader.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, ledger.Money(240_000), fresh.Tariffs["CM1"].AnnualTuitionFee)
}

func TestSnapshotWithoutCache(t *testing.T) {
	src := &stubSource{snap: sampleSnapshot()}
	loader := NewLoader(src, nil, time.Minute, zerolog.Nop())

	_, err := loader.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = loader.Snapshot(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, src.calls.Load())
	require.NoError(t, loader.Invalidate(context.Background()))
}

func TestSnapshotSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("db down")}
	loader, mr := newTestLoader(t, src)

	err := loader.Check(context.Background())
	require.ErrorContains(t, err, "db down")
	require.False(t, mr.Exists(DefaultCacheKey))
}

func TestSnapshotRejectsInvalidData(t *testing.T) {
	bad := sampleSnapshot()
	bad.Tariffs["CE1"] = ledger.Tariff{Classe: "CE1", InscriptionFee: -1}
	loader, mr := newTestLoader(t, &stubSource{snap: bad})

	_, err := loader.Snapshot(context.Background())
	require.ErrorIs(t, err, ErrInvalidSettings)
	require.False(t, mr.Exists(DefaultCacheKey))
}

func TestSnapshotIgnoresCorruptCacheEntry(t *testing.T) {
	src := &stubSource{snap: sampleSnapshot()}
	loader, mr := newTestLoader(t, src)
	require.NoError(t, mr.Set(DefaultCacheKey, "{broken"))

	snap, err := loader.Snapshot(context.Background())
	require.NoError(t, err)
	require.Contains(t, snap.Tariffs, "CM1")
	require.EqualValues(t, 1, src.calls.Load())
}
