package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedTransientError(t *testing.T) {
	inner := NewTransientError(errors.New("bad gateway"), 502)
	wrapped := fmt.Errorf("fetch failed: %w", inner)
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilError(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_Syscalls(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(fmt.Errorf("dial tcp: %w", errno)) {
			t.Errorf("%v should be transient", errno)
		}
	}
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	if !IsTransient(errors.New("read tcp: i/o timeout")) {
		t.Error("i/o timeout should be transient")
	}
	if !IsTransient(errors.New("write: broken pipe")) {
		t.Error("broken pipe should be transient")
	}
}

func TestIsTransient_RateLimit(t *testing.T) {
	err := fmt.Errorf("search: %w", &RateLimitError{Service: "foursquare"})
	if !IsTransient(err) {
		t.Error("rate limit should be transient")
	}
	if !IsRateLimited(err) {
		t.Error("expected IsRateLimited")
	}
}

func TestStatusError(t *testing.T) {
	resp := &http.Response{StatusCode: 429, Header: http.Header{"Retry-After": []string{"3"}}}
	err := StatusError("scrapingbee", resp, nil)
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %T", err)
	}
	if rl.RetryAfter != 3*time.Second {
		t.Errorf("retry after = %v", rl.RetryAfter)
	}

	err = StatusError("scrapingbee", &http.Response{StatusCode: 503}, []byte("busy"))
	if !IsTransient(err) {
		t.Error("503 should be transient")
	}

	err = StatusError("scrapingbee", &http.Response{StatusCode: 404}, []byte("not found"))
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("%d should be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("%d should not be transient", code)
		}
	}
}

func TestStatusError_ForbiddenIsNotAuth(t *testing.T) {
	err := StatusError("fetcher", &http.Response{StatusCode: 403}, []byte("blocked"))
	if IsAuth(err) {
		t.Error("a crawled page's 403 must not read as rejected credentials")
	}
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("upstream said no")

	for _, code := range []int{401, 403} {
		err := ClassifyStatus("anthropic", base, code)
		if !IsAuth(err) {
			t.Errorf("%d should be auth", code)
		}
		if IsTransient(err) {
			t.Errorf("%d should not be retried", code)
		}
		if !errors.Is(err, base) {
			t.Errorf("%d should keep the cause", code)
		}
		var ae *AuthError
		if !errors.As(fmt.Errorf("wrapped: %w", err), &ae) || ae.StatusCode != code || ae.Service != "anthropic" {
			t.Errorf("%d: expected AuthError through wrapping, got %v", code, err)
		}
	}

	if err := ClassifyStatus("anthropic", base, 529); IsAuth(err) || IsTransient(err) {
		t.Errorf("529 should pass through unchanged, got %T", err)
	}
	if err := ClassifyStatus("anthropic", base, 503); !IsTransient(err) {
		t.Error("503 should be transient")
	}
	if ClassifyStatus("anthropic", nil, 401) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestStatusFromText(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.New("API returned unexpected status code: 401: Incorrect API key provided"), 401},
		{errors.New("openai: status code 503"), 503},
		{errors.New("connection refused"), 0},
		{nil, 0},
	}
	for _, tt := range tests {
		if got := StatusFromText(tt.err); got != tt.want {
			t.Errorf("StatusFromText(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
