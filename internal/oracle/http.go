package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBytes caps how much of a verification response is read.
const maxResponseBytes = 1 << 20

// verificationResponse is the body of GET /v1/verifications/{token}.
type verificationResponse struct {
	Status string `json:"status"`
}

// HTTPOracle checks tokens against a remote verification service.
//
// Protocol: GET {base}/v1/verifications/{token}
//   - 200 {"status":"confirmed"} -> Confirmed
//   - 200 {"status":"pending"}   -> NotYetConfirmed
//   - 404                        -> NotYetConfirmed (token not indexed yet)
//   - anything else              -> *Error
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// HTTPOption configures an HTTPOracle.
type HTTPOption func(*HTTPOracle)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(o *HTTPOracle) {
		if c != nil {
			o.client = c
		}
	}
}

// NewHTTPOracle creates an oracle for the service at baseURL.
func NewHTTPOracle(baseURL string, opts ...HTTPOption) (*HTTPOracle, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid oracle base url %q", baseURL)
	}
	o := &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Check issues one verification request. Deadlines come from ctx.
func (o *HTTPOracle) Check(ctx context.Context, token string) (Verdict, error) {
	endpoint := o.baseURL + "/v1/verifications/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", &Error{Token: token, Op: "request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", &Error{Token: token, Op: "request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return NotYetConfirmed, nil
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", &Error{Token: token, Op: "status", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var body verificationResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return "", &Error{Token: token, Op: "decode", Err: err}
	}

	switch strings.ToLower(body.Status) {
	case "confirmed":
		return Confirmed, nil
	case "pending":
		return NotYetConfirmed, nil
	default:
		return "", &Error{Token: token, Op: "decode", Err: fmt.Errorf("unknown status %q", body.Status)}
	}
}
