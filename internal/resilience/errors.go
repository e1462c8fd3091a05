package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientFetchError wraps a network-level failure that is safe to retry
// (timeout, connection reset, 5xx). Exhausting the retry budget on one of
// these abandons the current page range but never aborts the run.
type TransientFetchError struct {
	Err        error
	StatusCode int
}

func (e *TransientFetchError) Error() string {
	return e.Err.Error()
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// NewTransientFetchError wraps an error as transient with an optional HTTP
// status code.
func NewTransientFetchError(err error, statusCode int) *TransientFetchError {
	return &TransientFetchError{Err: err, StatusCode: statusCode}
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientFetchError, or matches common transient network patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientFetchError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"transport connection broken",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus returns true if the status code indicates a
// server-side condition worth retrying.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
