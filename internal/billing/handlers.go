package billing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/tuition-ledger/internal/common"
	"github.com/noah-isme/tuition-ledger/internal/ledger"
	"github.com/noah-isme/tuition-ledger/internal/lock"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SelectionInput is the body of quote and payment requests.
type SelectionInput struct {
	Items  []string   `json:"items" validate:"required,min=1,max=64,dive,required"`
	PaidAt *time.Time `json:"paidAt"`
}

type Handler struct {
	Svc *Service
}

func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	out, err := h.Svc.Ledger(r.Context(), chi.URLParam(r, "studentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	selection, _, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Quote(r.Context(), chi.URLParam(r, "studentID"), selection)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	selection, paidAt, ok := decodeSelection(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.RecordPayments(r.Context(), chi.URLParam(r, "studentID"), selection, paidAt)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}

func (h *Handler) Receipt(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	var ids []string
	for _, raw := range r.URL.Query()["ids"] {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "ids query parameter is required", nil)
		return
	}
	out, err := h.Svc.Receipt(r.Context(), chi.URLParam(r, "studentID"), ids)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) Cohort(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return
	}
	classe := strings.TrimSpace(chi.URLParam(r, "classe"))
	if classe == "" {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "classe is required", nil)
		return
	}
	out, err := h.Svc.Cohort(r.Context(), classe)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": out})
}

func decodeSelection(w http.ResponseWriter, r *http.Request) ([]ledger.ItemIdentity, time.Time, bool) {
	var payload SelectionInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return nil, time.Time{}, false
	}
	if err := validate.Struct(payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "items must list between 1 and 64 item identities", nil)
		return nil, time.Time{}, false
	}
	selection := make([]ledger.ItemIdentity, 0, len(payload.Items))
	var invalid []string
	for _, raw := range payload.Items {
		id, err := ledger.ParseItemIdentity(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		selection = append(selection, id)
	}
	if len(invalid) > 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeValidation, "unknown item identity", map[string]any{"items": invalid})
		return nil, time.Time{}, false
	}
	var paidAt time.Time
	if payload.PaidAt != nil {
		paidAt = payload.PaidAt.UTC()
	}
	return selection, paidAt, true
}

func writeError(w http.ResponseWriter, err error) {
	if err == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "unknown error", nil)
		return
	}
	common.WriteError(w, toAppError(err))
}

func toAppError(err error) error {
	var sel *SelectionError
	if errors.As(err, &sel) {
		details := map[string]any{"items": sel.Items}
		if errors.Is(sel.Err, ErrClassUnpriced) {
			return common.NewAppError("CLASS_UNPRICED", "class has no tariff; only options can be recorded", http.StatusUnprocessableEntity, err).WithDetails(details)
		}
		return common.NewAppError("ITEM_NOT_OPEN", "items are not open for payment", http.StatusConflict, err).WithDetails(details)
	}
	switch {
	case common.IsAppError(err):
		return err
	case errors.Is(err, ErrStudentNotFound):
		return common.NotFound("student not found", err)
	case errors.Is(err, ErrPaymentNotFound):
		return common.NotFound("payment not found", err)
	case errors.Is(err, ErrEmptySelection):
		return common.Validation("no items selected", err)
	case errors.Is(err, lock.ErrNotAcquired):
		return common.NewAppError(common.CodeUnavailable, "another payment for this student is in progress", http.StatusServiceUnavailable, err)
	default:
		return err
	}
}
