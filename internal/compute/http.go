package compute

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/resilience"
)

// ComputePath is the worker route that accepts requests.
const ComputePath = "/v1/compute"

// HTTPTransport sends requests to a remote worker over HTTP.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	policy   resilience.RetryPolicy
}

// NewHTTPTransport returns a transport posting to baseURL. A nil client uses
// http.DefaultClient; timeouts come from the caller's context.
func NewHTTPTransport(baseURL string, client *http.Client, policy resilience.RetryPolicy) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if policy.OnRetry == nil {
		policy.OnRetry = resilience.LogRetry("worker.compute")
	}
	return &HTTPTransport{
		endpoint: strings.TrimRight(baseURL, "/") + ComputePath,
		client:   client,
		policy:   policy,
	}
}

// Do implements Transport.
func (t *HTTPTransport) Do(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, eris.Wrap(err, "compute: encode request")
	}
	return resilience.Retry(ctx, t.policy, func(ctx context.Context) (Response, error) {
		return t.post(ctx, body)
	})
}

func (t *HTTPTransport) post(ctx context.Context, body []byte) (Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Response{}, eris.Wrap(err, "compute: build worker request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return Response{}, eris.Wrap(err, "compute: worker request")
	}
	defer httpResp.Body.Close() //nolint:errcheck

	if httpResp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))
		err := eris.Wrapf(ErrTransport, "worker returned status %d", httpResp.StatusCode)
		if resilience.IsTransientStatus(httpResp.StatusCode) {
			return Response{}, resilience.Transient(err, httpResp.StatusCode)
		}
		return Response{}, err
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return Response{}, eris.Wrapf(ErrTransport, "decode worker response: %v", err)
	}
	return resp, nil
}
