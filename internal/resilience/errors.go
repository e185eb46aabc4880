package resilience

import (
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
)

// TransientError marks an error as safe to retry.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable. statusCode may be 0.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// RateLimitError is an upstream 429. RetryAfter is the server hint, zero when
// absent. It is transient.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return e.Service + ": rate limited, retry after " + e.RetryAfter.String()
	}
	return e.Service + ": rate limited"
}

// ErrAuth is the sentinel behind every AuthError. Credentials do not fix
// themselves mid-run, so callers abort instead of recording a result.
var ErrAuth = errors.New("credentials rejected")

// AuthError is an upstream refusal of the configured credentials.
type AuthError struct {
	Service    string
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	return e.Service + ": credentials rejected: " + e.Err.Error()
}

func (e *AuthError) Unwrap() []error { return []error{ErrAuth, e.Err} }

func NewAuthError(service string, err error, statusCode int) *AuthError {
	return &AuthError{Service: service, StatusCode: statusCode, Err: err}
}

// IsAuth reports whether err means the run's credentials are unusable.
func IsAuth(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsAuthHTTPStatus returns true for 401 and 403.
func IsAuthHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden
}

// ClassifyStatus wraps err by the upstream status it came with: 401 and 403
// become an AuthError, retryable statuses a TransientError. Other errors are
// returned as is.
func ClassifyStatus(service string, err error, statusCode int) error {
	switch {
	case err == nil:
		return nil
	case IsAuthHTTPStatus(statusCode):
		return NewAuthError(service, err, statusCode)
	case IsTransientHTTPStatus(statusCode):
		return NewTransientError(err, statusCode)
	}
	return err
}

var statusInText = regexp.MustCompile(`status code:? (\d{3})`)

// StatusFromText recovers the HTTP status from clients that only report it
// in the error message. It returns 0 when none is found.
func StatusFromText(err error) int {
	if err == nil {
		return 0
	}
	m := statusInText.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code, _ := strconv.Atoi(m[1])
	return code
}

// IsRateLimited reports whether err carries a RateLimitError.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

func retryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// StatusError classifies a non-2xx HTTP response. 429 becomes a
// RateLimitError, other retryable statuses a TransientError, anything else a
// plain error. 401 and 403 stay plain: for a crawled site they are a refusal
// of that page, not of our credentials.
func StatusError(service string, resp *http.Response, body []byte) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		var wait time.Duration
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		return &RateLimitError{Service: service, RetryAfter: wait}
	}

	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	err := eris.Errorf("%s: status %d: %s", service, resp.StatusCode, strings.TrimSpace(snippet))
	if IsTransientHTTPStatus(resp.StatusCode) {
		return NewTransientError(err, resp.StatusCode)
	}
	return err
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError or RateLimitError, a network timeout, a refused or reset
// connection, or one of the usual wrapped transport failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) || IsRateLimited(err) {
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

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true for statuses that are safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
