package inference

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/steveyegge/dupsweep/internal/embedding"
	"github.com/steveyegge/dupsweep/internal/vecmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTensor() embedding.Tensor {
	return embedding.Tensor{Shape: []int{1, 2, 2}, Data: []float32{0.1, 0.2, 0.3, 0.4}}
}

func newTestClient(t *testing.T, url string, mutate func(*Config)) *HTTPClient {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Endpoint = url
	cfg.Timeout = 5 * time.Second
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewHTTPClient(cfg, nil)
	require.NoError(t, err)
	return c
}

func TestHTTPClientSendsTensorAndReadsVector(t *testing.T) {
	var got inferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"embedding": [1, 2.5, -3]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.Model = "clip-vit-b32"
		cfg.Headers = map[string]string{"Authorization": "Bearer secret"}
	})
	vec, err := c.Infer(context.Background(), testTensor())
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 2.5, -3}, vec)
	assert.Equal(t, "clip-vit-b32", got.Model)
	assert.Equal(t, []int{1, 2, 2}, got.Shape)
	assert.Equal(t, []float32{0.1, 0.2, 0.3, 0.4}, got.Data)
}

func TestHTTPClientBinaryTensorAndNestedPath(t *testing.T) {
	want := []float32{0.5, -0.25, 8}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req inferRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Empty(t, req.Data)

		raw, err := base64.StdEncoding.DecodeString(req.DataB64)
		require.NoError(t, err)
		data, err := vecmath.Decode(raw)
		require.NoError(t, err)
		assert.Equal(t, vecmath.Vector{0.1, 0.2, 0.3, 0.4}, data)

		enc := base64.StdEncoding.EncodeToString(vecmath.Encode(want))
		_, _ = io.WriteString(w, `{"outputs": [{"vector": "`+enc+`"}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.BinaryTensor = true
		cfg.ResponsePath = "outputs.0.vector"
	})
	vec, err := c.Infer(context.Background(), testTensor())
	require.NoError(t, err)
	assert.Equal(t, want, vec)
}

func TestHTTPClientMalformedResponses(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `<html>oops</html>`},
		{"missing path", `{"vector": [1, 2]}`},
		{"empty array", `{"embedding": []}`},
		{"non numeric", `{"embedding": [1, "two"]}`},
		{"wrong type", `{"embedding": 42}`},
		{"bad base64", `{"embedding": "!!!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, nil).Infer(context.Background(), testTensor())
			require.Error(t, err)
			assert.ErrorIs(t, err, embedding.ErrMalformedOutput)
			assert.False(t, isRetriableError(err))
		})
	}
}

func TestHTTPClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "model loading")
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL, nil).Infer(context.Background(), testTensor())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, err.Error(), "model loading")
	assert.True(t, isRetriableError(err))
}

func TestHTTPClientRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"embedding": [1]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *Config) {
		cfg.RequestsPerSecond = 20
		cfg.Burst = 1
	})

	start := time.Now()
	for i := 0; i < 4; i++ {
		_, err := c.Infer(context.Background(), testTensor())
		require.NoError(t, err)
	}
	// Burst of 1 at 20/s: three waits of ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 120*time.Millisecond)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"default", func(c *Config) {}, ""},
		{"no endpoint", func(c *Config) { c.Endpoint = "" }, "endpoint is required"},
		{"bad scheme", func(c *Config) { c.Endpoint = "ftp://host/embed" }, "http or https"},
		{"no path", func(c *Config) { c.ResponsePath = "" }, "response_path"},
		{"negative rps", func(c *Config) { c.RequestsPerSecond = -1 }, "requests_per_second"},
		{"zero burst", func(c *Config) { c.RequestsPerSecond = 5; c.Burst = 0 }, "burst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
