package billing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tuition-ledger/internal/ledger"
)

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/students/{studentID}/ledger", h.Ledger)
	r.Post("/students/{studentID}/payments/quote", h.Quote)
	r.Post("/students/{studentID}/payments", h.Record)
	r.Get("/students/{studentID}/receipts", h.Receipt)
	r.Get("/classes/{classe}/ledger", h.Cohort)
	return r
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestLedgerHandler(t *testing.T) {
	svc, _, _ := newService(t, newMemStore(monthly("stu-1")))
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodGet, "/students/stu-1/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out StudentLedger
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, ledger.Money(260_000), out.Reconciliation.TotalDue)
	require.Equal(t, ledger.InscriptionID, out.Schedule.Items[0].ID)

	rec, env = do(t, router, http.MethodGet, "/students/ghost/ledger", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestRecordHandler(t *testing.T) {
	st := newMemStore(monthly("stu-1"))
	svc, _, _ := newService(t, st)
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodPost, "/students/stu-1/payments",
		`{"items":["month:Septembre","inscription:inscription"],"paidAt":"2025-09-03T10:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt Receipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	require.Equal(t, ledger.Money(62_000), receipt.Total)
	require.Equal(t, "2025-09-03T10:00:00Z", receipt.Records[0].PaidAt.Format("2006-01-02T15:04:05Z07:00"))

	rec, env = do(t, router, http.MethodPost, "/students/stu-1/payments", `{"items":["month:septembre"]}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "ITEM_NOT_OPEN", env.Error.Code)
	require.Equal(t, []any{"month:septembre"}, env.Error.Details["items"])
	require.Equal(t, 2, st.count("stu-1"))
}

func TestRecordHandlerValidation(t *testing.T) {
	svc, _, _ := newService(t, newMemStore(monthly("stu-1")))
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodPost, "/students/stu-1/payments", `{`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "BAD_REQUEST", env.Error.Code)

	rec, env = do(t, router, http.MethodPost, "/students/stu-1/payments", `{"items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = do(t, router, http.MethodPost, "/students/stu-1/payments", `{"items":["refund:1","month:Mars"]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, []any{"refund:1"}, env.Error.Details["items"])
}

func TestRecordHandlerUnpricedClass(t *testing.T) {
	student := monthly("stu-x")
	student.Classe = "6EME"
	svc, _, _ := newService(t, newMemStore(student))
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodPost, "/students/stu-x/payments", `{"items":["month:Mars"]}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "CLASS_UNPRICED", env.Error.Code)
}

func TestQuoteHandler(t *testing.T) {
	svc, _, _ := newService(t, newMemStore(installments("stu-2")))
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodPost, "/students/stu-2/payments/quote", `{"items":["tranche:1","tranche:2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var quote Quote
	require.NoError(t, json.Unmarshal(env.Data, &quote))
	require.Equal(t, ledger.Money(220_000), quote.Total)
	require.Len(t, quote.Lines, 2)
	require.Empty(t, quote.AlreadyPaid)
}

func TestReceiptHandler(t *testing.T) {
	st := newMemStore(monthly("stu-1"))
	svc, _, _ := newService(t, st)
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodGet, "/students/stu-1/receipts", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	rec, env = do(t, router, http.MethodGet, "/students/stu-1/receipts?ids=a,b", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestCohortHandler(t *testing.T) {
	svc, _, _ := newService(t, newMemStore(monthly("stu-1"), installments("stu-2")))
	router := newRouter(&Handler{Svc: svc})

	rec, env := do(t, router, http.MethodGet, "/classes/CM1/ledger", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out ClassLedger
	require.NoError(t, json.Unmarshal(env.Data, &out))
	require.Equal(t, 2, out.Totals.Students)
	require.Len(t, out.Reconciliations, 2)
}

func TestHandlerWithoutService(t *testing.T) {
	router := newRouter(&Handler{})
	rec, env := do(t, router, http.MethodGet, "/students/stu-1/ledger", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL", env.Error.Code)
}
