package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("overloaded"), 503), true},
		{"wrapped", fmt.Errorf("regrid: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"plain", errors.New("invalid address"), false},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"broken pipe text", errors.New("write: broken pipe"), true},
		{"tls text", errors.New("net/http: TLS handshake timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	if !IsTimeout(context.DeadlineExceeded) {
		t.Error("deadline exceeded should be a timeout")
	}
	if IsTimeout(context.Canceled) {
		t.Error("cancellation is not a timeout")
	}
	if IsTimeout(nil) {
		t.Error("nil is not a timeout")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected HTTP %d to be permanent", code)
		}
	}
}

func TestCheckStatus(t *testing.T) {
	if err := CheckStatus("regrid", &http.Response{StatusCode: 200}, nil); err != nil {
		t.Fatalf("2xx should pass, got %v", err)
	}

	err := CheckStatus("regrid", &http.Response{StatusCode: 503}, []byte("down"))
	if !IsTransient(err) {
		t.Errorf("503 should be transient, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 503 || se.Provider != "regrid" {
		t.Errorf("expected StatusError for 503, got %#v", err)
	}

	err = CheckStatus("rentcast", &http.Response{StatusCode: 404}, []byte(strings.Repeat("x", 500)))
	if IsTransient(err) {
		t.Error("404 should not be transient")
	}
	if !errors.As(err, &se) || len(se.Body) != 200 {
		t.Errorf("expected truncated body, got %#v", err)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	if !errors.Is(te, inner) {
		t.Error("TransientError should unwrap to the inner error")
	}
	if te.Error() != "root cause" {
		t.Errorf("unexpected message %q", te.Error())
	}
}
