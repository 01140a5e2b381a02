package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/app"
	"github.com/ternarybob/mjrelay/internal/common"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerOnPort(t, 3999)
}

func newTestServerOnPort(t *testing.T, port int) *Server {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Server.Host = "127.0.0.1"
	config.Server.Port = 3999
	config.Discord.Token = "token"
	config.Discord.ServerID = "111"
	config.Discord.ChannelID = "222"
	config.Sink.URL = "https://hook.example.com/abc"

	application, err := app.New(config, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })

	// Validation requires a real port; tests may then bind an ephemeral one
	application.Config.Server.Port = port
	return New(application)
}

func TestServer_Addr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:3999", newTestServer(t).Addr())
}

func TestServer_Routes(t *testing.T) {
	handler := newTestServer(t).server.Handler

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/trigger", http.StatusMethodNotAllowed},
		{http.MethodGet, "/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, "%s %s", tt.method, tt.path)
	}
}

func TestServer_RecoveryMiddleware(t *testing.T) {
	s := newTestServer(t)
	handler := s.withMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RequestID(t *testing.T) {
	handler := newTestServer(t).server.Handler

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "make-scenario-42")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "make-scenario-42", rec.Header().Get(requestIDHeader))
}

func TestServer_ServeAndShutdown(t *testing.T) {
	s := newTestServerOnPort(t, 0)
	require.NoError(t, s.Listen())
	assert.NotEqual(t, "127.0.0.1:0", s.Addr(), "reports the bound port")

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}
