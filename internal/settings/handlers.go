package settings

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/noah-isme/tuition-ledger/internal/common"
	"github.com/noah-isme/tuition-ledger/internal/events"
	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Summary describes a snapshot without its full tables.
type Summary struct {
	Tariffs       int              `json:"tariffs"`
	Tiers         int              `json:"tiers"`
	PercentTotal  string           `json:"percentTotal"`
	StandardItems int              `json:"standardOptions"`
	CustomItems   int              `json:"customOptions"`
	Warnings      []Warning        `json:"warnings,omitempty"`
	LoadedAt      time.Time        `json:"loadedAt"`
	Snapshot      *ledger.Snapshot `json:"snapshot,omitempty"`
}

type Handler struct {
	Loader *Loader
	Events Emitter
}

// Get returns the snapshot currently served to the engine.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Loader == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settings loader not configured", nil)
		return
	}
	snap, err := h.Loader.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := h.summarize(snap)
	out.Snapshot = &snap
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

// Refresh drops the cached snapshot and reloads it from the database.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.Loader == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "settings loader not configured", nil)
		return
	}
	snap, err := h.Loader.Refresh(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := h.summarize(snap)
	if h.Events != nil {
		if _, err := h.Events.Emit(r.Context(), events.TopicSettingsRefreshed, "settings", out); err != nil {
			h.Loader.Logger.Error().Err(err).Msg("emit settings refreshed")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) summarize(snap ledger.Snapshot) Summary {
	warnings, _ := Validate(h.Loader.Validate, snap)
	return Summary{
		Tariffs:       len(snap.Tariffs),
		Tiers:         len(snap.Plan.InstallmentTiers),
		PercentTotal:  snap.Plan.PercentTotal().String(),
		StandardItems: len(snap.Catalog.Standard),
		CustomItems:   len(snap.Catalog.Custom),
		Warnings:      warnings,
		LoadedAt:      snap.LoadedAt,
	}
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrInvalidSettings) {
		common.WriteError(w, common.NewAppError("INVALID_SETTINGS", err.Error(), http.StatusUnprocessableEntity, err))
		return
	}
	common.WriteError(w, common.NewAppError(common.CodeUnavailable, "settings unavailable", http.StatusServiceUnavailable, err))
}
