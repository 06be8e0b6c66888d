package llmgateway

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"pillarlens/pkg/version"
)

// HTTPTransportConfig configures the default HTTP-based Transport. The LLM
// provider itself is out of scope (spec.md §1); this is one concrete,
// pluggable implementation of the Transport interface, not a specific
// vendor's SDK.
type HTTPTransportConfig struct {
	Endpoint    string
	BearerToken string
	VerifySSL   bool
	Timeout     time.Duration
	CostPerCall float64
}

// httpTransport is the default Transport implementation: a single JSON POST
// per call, bearer-token authenticated, with the provider expected to
// return `{"cost_usd": <float>, "response": <json response body>}`.
type httpTransport struct {
	client   *http.Client
	endpoint string
	token    string
	cost     float64
}

// NewHTTPTransport builds the default Transport from cfg, following the
// teacher's transport-construction shape (clone the default transport,
// relax TLS only when explicitly configured, wrap with a bearer-token
// round-tripper).
func NewHTTPTransport(cfg HTTPTransportConfig) Transport {
	rt := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		rt.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: true} //nolint:gosec // operator-configured
	}

	client := &http.Client{Transport: rt}
	if cfg.BearerToken != "" {
		client.Transport = &bearerTokenTransport{base: rt, token: cfg.BearerToken}
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	client.Timeout = timeout

	return &httpTransport{client: client, endpoint: cfg.Endpoint, token: cfg.BearerToken, cost: cfg.CostPerCall}
}

type wireRequest struct {
	SystemContext string `json:"system_context"`
	UserContent   string `json:"user_content"`
	Schema        json.RawMessage `json:"schema,omitempty"`
}

type wireResponse struct {
	CostUSD  float64         `json:"cost_usd"`
	Response json.RawMessage `json:"response"`
}

func (t *httpTransport) Execute(ctx context.Context, req Request) ([]byte, float64, error) {
	body, err := json.Marshal(wireRequest{
		SystemContext: req.SystemContext,
		UserContent:   req.UserContent,
		Schema:        req.Schema,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: encoding request: %v", ErrPermanent, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: building request: %v", ErrPermanent, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, 0, err // classified Transient/Permanent by Classify (net.Error, connection errors)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &HTTPStatusError{StatusCode: resp.StatusCode, Err: fmt.Errorf("provider returned HTTP %d", resp.StatusCode)}
	}

	var wire wireResponse
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, 0, fmt.Errorf("%w: decoding envelope: %v", ErrPermanent, err)
	}

	cost := wire.CostUSD
	if cost == 0 {
		cost = t.cost
	}
	return wire.Response, cost, nil
}

// bearerTokenTransport wraps an http.RoundTripper to add an Authorization
// header, exactly as the teacher's MCP HTTP transport does.
type bearerTokenTransport struct {
	base  http.RoundTripper
	token string
}

func (t *bearerTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.token)
	return t.base.RoundTrip(req)
}
