package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/noah-isme/tuition-ledger/internal/common"
)

var ready atomic.Bool

func init() {
	ready.Store(true)
}

// SetReady toggles readiness; the API flips it off when draining for shutdown.
func SetReady(v bool) {
	ready.Store(v)
}

// Check is one named dependency probe.
type Check struct {
	Name    string
	Timeout time.Duration
	Probe   func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready probes every dependency and reports 503 when any probe fails or the process is
// shutting down.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !ready.Load() {
		common.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	}
	if len(h.Checks) == 0 {
		common.JSONError(w, http.StatusServiceUnavailable, common.CodeUnavailable, "no dependency checks configured", nil)
		return
	}
	status := make(map[string]string, len(h.Checks))
	healthy := true
	for _, check := range h.Checks {
		status[check.Name] = "ok"
		if err := run(r.Context(), check); err != nil {
			status[check.Name] = err.Error()
			healthy = false
		}
	}
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	common.JSON(w, code, status)
}

func run(ctx context.Context, check Check) error {
	if check.Probe == nil {
		return nil
	}
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return check.Probe(ctx)
}
