package imagine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mjrelay/internal/httpclient"
	"github.com/ternarybob/mjrelay/internal/models"
)

const maxErrorBody = 64 * 1024

// Dispatcher posts results to the downstream collector webhook.
// Delivery is attempted once; failures are reported, never retried.
type Dispatcher struct {
	url    string
	client *http.Client
	logger arbor.ILogger
}

// NewDispatcher creates a dispatcher for sinkURL
func NewDispatcher(sinkURL string, timeout time.Duration, logger arbor.ILogger) *Dispatcher {
	return &Dispatcher{
		url:    sinkURL,
		client: httpclient.NewDefaultHTTPClient(timeout),
		logger: logger,
	}
}

// Dispatch sends result as JSON. Any non-2xx status is a DispatchFailure
// carrying the status and response body.
func (d *Dispatcher) Dispatch(ctx context.Context, result models.ImageResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return newJobError(KindDispatch, "encode result", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return newJobError(KindDispatch, "build request for "+d.url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return newJobError(KindDispatch, "post to "+d.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return newJobError(KindDispatch,
			fmt.Sprintf("sink responded %s: %s", resp.Status, string(respBody)), nil)
	}

	d.logger.Info().
		Str("sink", d.url).
		Int("status", resp.StatusCode).
		Msg("Result delivered")
	return nil
}
