// Package inference runs embedding models behind an HTTP endpoint.
package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/vecmath"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// maxErrorBody is how much of a failed response body is kept in StatusError.
const maxErrorBody = 512

// HTTPClient implements embedding.Inferencer against a JSON model server.
//
// Request body:
//
//	{"model": "...", "shape": [3, 224, 224], "data": [...]}
//
// The vector is read from the response at ResponsePath. It may be a JSON
// number array or a base64 string of little-endian float32 values.
type HTTPClient struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter // nil when unlimited
}

var _ embedding.Inferencer = (*HTTPClient)(nil)

type inferRequest struct {
	Model   string    `json:"model,omitempty"`
	Shape   []int     `json:"shape"`
	Data    []float32 `json:"data,omitempty"`
	DataB64 string    `json:"data_b64,omitempty"`
}

// NewHTTPClient creates a client. httpClient may be nil, in which case one
// is created with cfg.Timeout.
func NewHTTPClient(cfg Config, httpClient *http.Client) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid inference config: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &HTTPClient{cfg: cfg, http: httpClient}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	return c, nil
}

// Infer sends t to the model server and returns the raw embedding.
func (c *HTTPClient) Infer(ctx context.Context, t embedding.Tensor) ([]float32, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	body, err := c.encode(t)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(payload, maxErrorBody)}
	}

	return extractVector(payload, c.cfg.ResponsePath)
}

func (c *HTTPClient) encode(t embedding.Tensor) ([]byte, error) {
	req := inferRequest{Model: c.cfg.Model, Shape: t.Shape}
	if c.cfg.BinaryTensor {
		req.DataB64 = base64.StdEncoding.EncodeToString(vecmath.Encode(t.Data))
	} else {
		req.Data = t.Data
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tensor: %w", err)
	}
	return body, nil
}

// extractVector reads the embedding at path from a JSON response.
func extractVector(payload []byte, path string) ([]float32, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("%w: response is not valid JSON", embedding.ErrMalformedOutput)
	}

	res := gjson.GetBytes(payload, path)
	switch {
	case !res.Exists():
		return nil, fmt.Errorf("%w: no value at %q", embedding.ErrMalformedOutput, path)

	case res.IsArray():
		items := res.Array()
		if len(items) == 0 {
			return nil, fmt.Errorf("%w: empty vector at %q", embedding.ErrMalformedOutput, path)
		}
		out := make([]float32, len(items))
		for i, item := range items {
			if item.Type != gjson.Number {
				return nil, fmt.Errorf("%w: element %d at %q is %s, not a number",
					embedding.ErrMalformedOutput, i, path, item.Type)
			}
			out[i] = float32(item.Float())
		}
		return out, nil

	case res.Type == gjson.String:
		raw, err := base64.StdEncoding.DecodeString(res.Str)
		if err != nil {
			return nil, fmt.Errorf("%w: bad base64 at %q: %v", embedding.ErrMalformedOutput, path, err)
		}
		out, err := vecmath.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", embedding.ErrMalformedOutput, err)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: value at %q is %s, want array or base64 string",
			embedding.ErrMalformedOutput, path, res.Type)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(bytes.TrimSpace(b))
	}
	return string(bytes.TrimSpace(b[:n])) + "..."
}
