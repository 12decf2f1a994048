package inference

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/steveyegge/dupsweep/internal/embedding"
)

// StatusError is returned when the model server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string // First bytes of the response body
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if e.Body == "" {
		return fmt.Sprintf("inference endpoint returned %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("inference endpoint returned %d %s: %s", e.StatusCode, text, e.Body)
}

// Retriable reports whether the status is worth retrying (429 and 5xx).
func (e *StatusError) Retriable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// isRetriableError determines if an error is retriable (transient)
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retriable()
	}

	// A well-formed response with a bad payload will not improve on retry
	if errors.Is(err, embedding.ErrMalformedOutput) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "unexpected eof") {
		return true
	}

	// Default to not retrying unknown errors
	return false
}
