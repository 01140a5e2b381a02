package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/interfaces"
	"golang.org/x/time/rate"
)

// TriggerAcknowledgement is returned for every accepted trigger, before the job outcome is known
const TriggerAcknowledgement = "Midjourney script initiated. Check logs for progress."

// TriggerHandler starts imagine jobs. It has no authentication; protect it externally.
type TriggerHandler struct {
	starter interfaces.JobStarter
	limiter *rate.Limiter
	logger  arbor.ILogger
}

// NewTriggerHandler creates a trigger handler. A zero interval disables throttling.
func NewTriggerHandler(starter interfaces.JobStarter, interval time.Duration, burst int, logger arbor.ILogger) *TriggerHandler {
	h := &TriggerHandler{starter: starter, logger: logger}
	if interval > 0 {
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Every(interval), burst)
	}
	return h
}

// TriggerHandler handles POST /trigger. The response never reflects the job outcome.
func (h *TriggerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Trigger rejected by rate limiter")
		http.Error(w, "Too many triggers, try again later", http.StatusTooManyRequests)
		return
	}

	h.logger.Info().
		Str("remote", r.RemoteAddr).
		Str("request_id", r.Header.Get("X-Request-ID")).
		Msg("Received trigger")
	h.starter.Start()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, TriggerAcknowledgement)
}

// HealthHandler handles GET /health
func (h *TriggerHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
