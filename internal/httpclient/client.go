package httpclient

import (
	"net/http"
	"time"

	"github.com/ternarybob/mjrelay/internal/common"
)

const defaultTimeout = 30 * time.Second

// NewDefaultHTTPClient creates an HTTP client with a timeout that identifies
// itself as mjrelay. A non-positive timeout falls back to 30s.
func NewDefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &userAgentTransport{base: http.DefaultTransport, agent: "mjrelay/" + common.GetVersion()},
	}
}

type userAgentTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(clone)
}
