package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_MarkedError(t *testing.T) {
	err := NewTransientError(errors.New("registry overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_WrappedMarkedError(t *testing.T) {
	inner := NewTransientError(errors.New("rate limited"), 429)

	if !IsTransient(fmt.Errorf("fetch failed: %w", inner)) {
		t.Error("expected fmt-wrapped TransientError to be transient")
	}
	if !IsTransient(eris.Wrap(inner, "fetcher: direct fetch")) {
		t.Error("expected eris-wrapped TransientError to be transient")
	}
}

func TestIsTransient_NilAndPermanent(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
	if IsTransient(errors.New("source descriptor missing url template")) {
		t.Error("validation error should not be transient")
	}
}

func TestIsTransient_Syscalls(t *testing.T) {
	for _, errno := range []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		err := fmt.Errorf("dial tcp: %w", errno)
		if !IsTransient(err) {
			t.Errorf("expected %v to be transient", errno)
		}
	}
}

func TestIsTransient_NetTimeout(t *testing.T) {
	err := &net.DNSError{IsTimeout: true, Err: "lookup timed out"}
	if !IsTransient(err) {
		t.Error("network timeout should be transient")
	}
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	transient := []string{
		"read tcp: connection reset by peer",
		"write: broken pipe",
		"lookup opencorporates.example: no such host",
		"net/http: TLS handshake timeout",
		"context deadline exceeded (Client.Timeout exceeded): i/o timeout",
		"http: server closed idle connection",
	}
	for _, msg := range transient {
		if !IsTransient(errors.New(msg)) {
			t.Errorf("expected %q to be transient", msg)
		}
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 204, 301, 400, 401, 403, 404, 410, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to NOT be transient", code)
		}
	}
}

func TestTransientError_UnwrapAndMessage(t *testing.T) {
	inner := errors.New("upstream returned 502")
	te := NewTransientError(inner, 502)

	if !errors.Is(te, inner) {
		t.Error("Unwrap should expose the inner error")
	}
	if te.StatusCode != 502 {
		t.Errorf("expected StatusCode 502, got %d", te.StatusCode)
	}
	if te.Error() != inner.Error() {
		t.Errorf("expected message %q, got %q", inner.Error(), te.Error())
	}
}
