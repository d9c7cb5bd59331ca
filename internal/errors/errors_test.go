package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapKeepsCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := fmt.Errorf("save log: %w", Wrap(CodeStorageFailure, cause, "写入文档失败"))

	if got := CodeOf(err); got != CodeStorageFailure {
		t.Fatalf("unexpected code: %s", got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatalf("cause should be reachable via errors.Is")
	}
	if !stdErrors.Is(err, New(CodeStorageFailure, "")) {
		t.Fatalf("errors.Is should match on code")
	}
	if !RetryableError(err) {
		t.Fatalf("storage failures are retryable by default")
	}
}

func TestHTTPStatusOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"plain", stdErrors.New("boom"), http.StatusInternalServerError},
		{"invalid", New(CodeInvalidArgument, "mood 超出范围"), http.StatusBadRequest},
		{"unauthenticated", New(CodeUnauthenticated, ""), http.StatusUnauthorized},
		{"not found", Wrap(CodeNotFound, stdErrors.New("x"), ""), http.StatusNotFound},
		{"conflict", New(CodeConflict, ""), http.StatusConflict},
		{"initialization", New(CodeInitializationFailure, ""), http.StatusServiceUnavailable},
		{"provider", New(CodeProviderUnavailable, ""), http.StatusBadGateway},
		{"timeout", New(CodeTimeout, ""), http.StatusGatewayTimeout},
		{"storage", New(CodeStorageFailure, ""), http.StatusInternalServerError},
		{"queue", New(CodeQueueFailure, ""), http.StatusInternalServerError},
		{"delivery", New(CodeDeliveryFailure, ""), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HTTPStatusOf(tc.err); got != tc.want {
				t.Fatalf("status: got %d want %d", got, tc.want)
			}
		})
	}
}

func TestNewUsesRegisteredMessage(t *testing.T) {
	err := New(CodeNotFound, "")
	if err.Message() != "resource not found" {
		t.Fatalf("unexpected default message: %q", err.Message())
	}
	override := New(CodeNotFound, "", WithRetryable(true), WithSeverity(SeverityCritical), WithMetadata("uid", "u1"))
	if !override.Retryable() || override.Severity() != SeverityCritical {
		t.Fatalf("options not applied: %+v", override)
	}
	if override.Metadata()["uid"] != "u1" {
		t.Fatalf("metadata missing")
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	attr := AttributesOf(Code("NOPE"))
	if attr.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("unexpected fallback attributes: %+v", attr)
	}
}
