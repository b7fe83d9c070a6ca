package apperrors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPublicMessage_UsesSafeMessage(t *testing.T) {
	sentinel := errors.New("SECRET_VALUE")
	err := New(KindAuth, "safe auth error", sentinel)
	if got := PublicMessage(err); got != "safe auth error" {
		t.Fatalf("PublicMessage() = %q, want %q", got, "safe auth error")
	}
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped cause to be retained for internal matching")
	}
}

func TestNew_FallsBackToCauseText(t *testing.T) {
	err := Transient(errors.New("Translation API error 502: bad gateway"))
	if got := err.Error(); got != "Translation API error 502: bad gateway" {
		t.Fatalf("Error() = %q", got)
	}
	if got := New(KindDecode, "", nil).Error(); got != "Failed to parse translation response." {
		t.Fatalf("default message = %q", got)
	}
}

func TestKindOfAndRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		kind      Kind
		retryable bool
	}{
		{"rate limit", New(KindRateLimit, "", errors.New("boom")), KindRateLimit, true},
		{"transient", Transient(errors.New("reset")), KindTransient, true},
		{"auth", Auth(errors.New("401")), KindAuth, true},
		{"validation", Validation(errors.New("tags")), KindValidation, true},
		{"decode", Decode(errors.New("empty")), KindDecode, true},
		{"config", Config(errors.New("no model")), KindConfig, false},
		{"canceled", Canceled(context.Canceled), KindCanceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := KindOf(tt.err)
			if !ok || kind != tt.kind {
				t.Fatalf("KindOf() = (%q, %v), want (%q, true)", kind, ok, tt.kind)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Fatalf("IsRetryable() = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsRetryable_PlainErrors(t *testing.T) {
	if !IsRetryable(errors.New("dial tcp: refused")) {
		t.Fatalf("expected unclassified error to be retryable")
	}
	if IsRetryable(fmt.Errorf("wrapped: %w", context.Canceled)) {
		t.Fatalf("expected context cancellation to be terminal")
	}
	if IsRetryable(nil) {
		t.Fatalf("nil error must not be retryable")
	}
}

func TestIsCanceled(t *testing.T) {
	err := Canceled(nil)
	if !IsCanceled(err) {
		t.Fatalf("expected canceled kind")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected errors.Is(context.Canceled)")
	}
	if IsCanceled(Transient(errors.New("x"))) {
		t.Fatalf("transient error reported as canceled")
	}
}

func TestPublicMessage_NonAppError(t *testing.T) {
	err := errors.New("plain")
	if got := PublicMessage(err); got != "plain" {
		t.Fatalf("PublicMessage() = %q, want %q", got, "plain")
	}
}
