package handlers

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
)

type countingStarter struct {
	calls atomic.Int32
}

func (s *countingStarter) Start() {
	s.calls.Add(1)
}

func TestTriggerHandler_AcknowledgesAndStarts(t *testing.T) {
	starter := &countingStarter{}
	h := NewTriggerHandler(starter, 0, 0, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.TriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, TriggerAcknowledgement, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Equal(t, int32(1), starter.calls.Load())
}

func TestTriggerHandler_EveryTriggerStartsAJob(t *testing.T) {
	starter := &countingStarter{}
	h := NewTriggerHandler(starter, 0, 0, arbor.NewLogger())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.TriggerHandler(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, int32(3), starter.calls.Load())
}

func TestTriggerHandler_RejectsOtherMethods(t *testing.T) {
	starter := &countingStarter{}
	h := NewTriggerHandler(starter, 0, 0, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.TriggerHandler(rec, httptest.NewRequest(http.MethodGet, "/trigger", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Zero(t, starter.calls.Load())
}

func TestTriggerHandler_RateLimited(t *testing.T) {
	starter := &countingStarter{}
	h := NewTriggerHandler(starter, time.Hour, 1, arbor.NewLogger())

	first := httptest.NewRecorder()
	h.TriggerHandler(first, httptest.NewRequest(http.MethodPost, "/trigger", nil))
	second := httptest.NewRecorder()
	h.TriggerHandler(second, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, int32(1), starter.calls.Load())
}

func TestHealthHandler(t *testing.T) {
	h := NewTriggerHandler(&countingStarter{}, 0, 0, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	h.HealthHandler(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
