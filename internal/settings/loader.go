package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
	"github.com/noah-isme/tuition-ledger/internal/obs"
)

// DefaultCacheKey is the Redis key holding the encoded snapshot.
const DefaultCacheKey = "ledger:settings:v1"

// Source reads reference data from durable storage.
type Source interface {
	ReadSettings(ctx context.Context) (ledger.Snapshot, error)
}

// Loader serves the reference data snapshot, caching it in Redis. Every engine call
// receives the snapshot explicitly; nothing reads reference data behind its back.
type Loader struct {
	Source   Source
	Cache    *redis.Client
	TTL      time.Duration
	Key      string
	Validate *validator.Validate
	Logger   zerolog.Logger

	group singleflight.Group
}

// NewLoader builds a loader with the package validator.
func NewLoader(src Source, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) *Loader {
	return &Loader{
		Source:   src,
		Cache:    cache,
		TTL:      ttl,
		Validate: validator.New(validator.WithRequiredStructEnabled()),
		Logger:   logger,
	}
}

func (l *Loader) key() string {
	if l.Key != "" {
		return l.Key
	}
	return DefaultCacheKey
}

// Snapshot returns the cached snapshot, loading it from the source on a miss.
// Concurrent misses share one source read.
func (l *Loader) Snapshot(ctx context.Context) (ledger.Snapshot, error) {
	if l == nil || l.Source == nil {
		return ledger.Snapshot{}, errors.New("settings: source not configured")
	}
	if snap, ok := l.cached(ctx); ok {
		obs.ObserveSettingsCache("hit")
		return snap, nil
	}
	obs.ObserveSettingsCache("miss")
	v, err, _ := l.group.Do(l.key(), func() (any, error) {
		return l.load(ctx)
	})
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return v.(ledger.Snapshot), nil
}

// Refresh drops the cached snapshot and loads a fresh one.
func (l *Loader) Refresh(ctx context.Context) (ledger.Snapshot, error) {
	if err := l.Invalidate(ctx); err != nil {
		return ledger.Snapshot{}, err
	}
	return l.Snapshot(ctx)
}

// Invalidate drops the cached snapshot.
func (l *Loader) Invalidate(ctx context.Context) error {
	if l.Cache == nil {
		return nil
	}
	if err := l.Cache.Del(ctx, l.key()).Err(); err != nil {
		return fmt.Errorf("settings: invalidate cache: %w", err)
	}
	return nil
}

// Check reports whether a valid snapshot can be served; used by readiness probes.
func (l *Loader) Check(ctx context.Context) error {
	_, err := l.Snapshot(ctx)
	return err
}

func (l *Loader) cached(ctx context.Context) (ledger.Snapshot, bool) {
	if l.Cache == nil {
		return ledger.Snapshot{}, false
	}
	raw, err := l.Cache.Get(ctx, l.key()).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			obs.ObserveSettingsCache("error")
			l.Logger.Warn().Err(err).Msg("settings cache read failed")
		}
		return ledger.Snapshot{}, false
	}
	var snap ledger.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		l.Logger.Warn().Err(err).Msg("settings cache entry unreadable")
		return ledger.Snapshot{}, false
	}
	return snap, true
}

func (l *Loader) load(ctx context.Context) (ledger.Snapshot, error) {
	snap, err := l.Source.ReadSettings(ctx)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("settings: read: %w", err)
	}
	warnings, err := Validate(l.Validate, snap)
	if err != nil {
		return ledger.Snapshot{}, err
	}
	for _, w := range warnings {
		l.Logger.Warn().Str("check", w.Check).Msg(w.Message)
	}
	if l.Cache != nil {
		if payload, err := json.Marshal(snap); err == nil {
			if err := l.Cache.Set(ctx, l.key(), payload, l.TTL).Err(); err != nil {
				l.Logger.Warn().Err(err).Msg("settings cache write failed")
			}
		}
	}
	return snap, nil
}
