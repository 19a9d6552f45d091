package classify

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// statusErr is a minimal error carrying an HTTP status code.
type statusErr struct {
	code int
	msg  string
}

func (e *statusErr) Error() string       { return e.msg }
func (e *statusErr) HTTPStatusCode() int { return e.code }

func TestClassify_StatusCodes(t *testing.T) {
	tests := []struct {
		code      int
		kind      Kind
		retryable bool
		severity  Severity
	}{
		{503, KindServer, true, SeverityHigh},
		{500, KindServer, true, SeverityHigh},
		{502, KindServer, true, SeverityHigh},
		{401, KindAuthentication, false, SeverityHigh},
		{403, KindAuthorization, false, SeverityMedium},
		{404, KindClient, false, SeverityLow},
		{408, KindTimeout, true, SeverityMedium},
		{429, KindRateLimit, true, SeverityMedium},
		{422, KindValidation, false, SeverityMedium},
		{400, KindValidation, false, SeverityMedium},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			cls := Classify(&statusErr{code: tt.code, msg: "http error"})
			if cls.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", cls.Kind, tt.kind)
			}
			if cls.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", cls.Retryable, tt.retryable)
			}
			if cls.Severity != tt.severity {
				t.Errorf("severity = %s, want %s", cls.Severity, tt.severity)
			}
			if cls.StatusCode != tt.code {
				t.Errorf("statusCode = %d, want %d", cls.StatusCode, tt.code)
			}
		})
	}
}

func TestClassify_WrappedStatusCode(t *testing.T) {
	err := fmt.Errorf("request failed: %w", &statusErr{code: 503, msg: "unavailable"})
	cls := Classify(err)
	if cls.Kind != KindServer {
		t.Errorf("kind = %s, want %s", cls.Kind, KindServer)
	}
}

func TestClassify_MessageKeywords(t *testing.T) {
	tests := []struct {
		msg       string
		kind      Kind
		retryable bool
	}{
		{"ECONNRESET", KindNetwork, true},
		{"dial tcp: connection refused", KindNetwork, true},
		{"no such host", KindNetwork, true},
		{"request timed out", KindTimeout, true},
		{"context deadline exceeded", KindTimeout, true},
		{"token expired", KindAuthentication, false},
		{"not authenticated", KindAuthentication, false},
		{"some bizarre failure", KindUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cls := Classify(errors.New(tt.msg))
			if cls.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", cls.Kind, tt.kind)
			}
			if cls.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", cls.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassify_ContextErrors(t *testing.T) {
	cls := Classify(context.Canceled)
	if cls.Kind != KindCancelled {
		t.Errorf("kind = %s, want %s", cls.Kind, KindCancelled)
	}
	if cls.Retryable {
		t.Error("cancellation must not be retryable")
	}

	cls = Classify(context.DeadlineExceeded)
	if cls.Kind != KindTimeout {
		t.Errorf("kind = %s, want %s", cls.Kind, KindTimeout)
	}
	if !cls.Retryable {
		t.Error("deadline exceeded should be retryable")
	}
}

func TestClassify_NilError(t *testing.T) {
	cls := Classify(nil)
	if cls.Kind != KindUnknown {
		t.Errorf("kind = %s, want %s", cls.Kind, KindUnknown)
	}
	if cls.UserMessage == "" {
		t.Error("UserMessage must never be empty")
	}
}

func TestClassify_AlwaysHasUserMessage(t *testing.T) {
	inputs := []error{
		nil,
		errors.New("x"),
		&statusErr{code: 500, msg: "y"},
		&statusErr{code: 302, msg: "redirect"},
		context.Canceled,
	}
	for _, err := range inputs {
		if msg := Classify(err).UserMessage; msg == "" {
			t.Errorf("empty UserMessage for %v", err)
		}
	}
}

func TestBreakerOpen(t *testing.T) {
	cls := BreakerOpen()
	if cls.Kind != KindBreakerOpen {
		t.Errorf("kind = %s, want %s", cls.Kind, KindBreakerOpen)
	}
	if cls.Retryable {
		t.Error("breaker-open must not be immediately retryable")
	}
	if cls.UserMessage == "" {
		t.Error("UserMessage must not be empty")
	}
}

func TestMessageFor_UnknownKindFallsBack(t *testing.T) {
	if MessageFor(Kind("nonsense")) != MessageFor(KindUnknown) {
		t.Error("unknown kinds should fall back to the unknown message")
	}
}
