package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/phoneauth"
	"github.com/MrEthical07/phoneauth/permission"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return env
}

func TestOKWritesSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]string{"phone": "+2348031234567"})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	env := decode(t, rec)
	if !env.Success || env.Error != nil || env.Data == nil {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: bad phone", phoneauth.ErrValidation), http.StatusBadRequest, phoneauth.CodeValidation},
		{"not found", phoneauth.ErrOTPNotFound, http.StatusNotFound, phoneauth.CodeNotFound},
		{"token", phoneauth.ErrTokenInvalid, http.StatusUnauthorized, phoneauth.CodeInvalidToken},
		{"session", phoneauth.ErrSessionNotFound, http.StatusUnauthorized, phoneauth.CodeSessionNotFound},
		{"unauthenticated", phoneauth.ErrUnauthenticated, http.StatusUnauthorized, phoneauth.CodeAuthentication},
		{"missing resource", phoneauth.ErrMissingResourceID, http.StatusBadRequest, phoneauth.CodeMissingResourceID},
		{"conflict", phoneauth.ErrAssignmentConflict, http.StatusConflict, phoneauth.CodeConflict},
		{"locked", &phoneauth.LockedError{Reason: "otp"}, http.StatusLocked, phoneauth.CodeLocked},
		{"mismatch", &phoneauth.MismatchError{AttemptsRemaining: 2}, http.StatusUnauthorized, phoneauth.CodeOTPMismatch},
		{"store", fmt.Errorf("%w: dial tcp", phoneauth.ErrStoreUnavailable), http.StatusServiceUnavailable, phoneauth.CodeServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError, phoneauth.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Error(rec, zap.NewNop(), tt.err)

			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			env := decode(t, rec)
			if env.Success || env.Error == nil || env.Error.Code != tt.code {
				t.Fatalf("unexpected envelope %+v", env)
			}
			if _, err := time.Parse(time.RFC3339, env.Error.Timestamp); err != nil {
				t.Fatalf("timestamp %q: %v", env.Error.Timestamp, err)
			}
		})
	}
}

func TestErrorRateLimitHeaders(t *testing.T) {
	resetAt := time.Now().Add(90 * time.Second)
	rec := httptest.NewRecorder()
	Error(rec, nil, &phoneauth.RateLimitError{
		Policy:     phoneauth.PolicyOTPSend,
		Limit:      3,
		RetryAfter: 89500 * time.Millisecond,
		ResetAt:    resetAt,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "90" {
		t.Fatalf("expected Retry-After 90, got %q", got)
	}
	if got := rec.Header().Get("X-Rate-Limit-Remaining"); got != "0" {
		t.Fatalf("expected remaining 0, got %q", got)
	}
	if got := rec.Header().Get("X-Rate-Limit-Reset"); got != fmt.Sprint(resetAt.Unix()) {
		t.Fatalf("unexpected reset header %q", got)
	}
	env := decode(t, rec)
	if env.Error.Details["limit"] != float64(3) {
		t.Fatalf("unexpected details %+v", env.Error.Details)
	}
}

func TestErrorForbiddenDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, &phoneauth.ForbiddenError{
		Required: []permission.Permission{permission.ManagePayments},
		Actual:   []permission.Permission{permission.ViewAnalytics, permission.ViewAttendees},
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	env := decode(t, rec)
	required, _ := env.Error.Details["required"].([]any)
	actual, _ := env.Error.Details["actual"].([]any)
	if len(required) != 1 || required[0] != "manage_payments" {
		t.Fatalf("unexpected required %v", env.Error.Details["required"])
	}
	if len(actual) != 2 {
		t.Fatalf("unexpected actual %v", env.Error.Details["actual"])
	}
}

func TestErrorMismatchDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, nil, &phoneauth.MismatchError{AttemptsRemaining: 3})

	env := decode(t, rec)
	if env.Error.Details["attempts_remaining"] != float64(3) {
		t.Fatalf("unexpected details %+v", env.Error.Details)
	}
}

func TestErrorHidesInternalDetail(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	rec := httptest.NewRecorder()
	Error(rec, zap.New(core), fmt.Errorf("%w: dial tcp 10.0.0.5:6379: refused", phoneauth.ErrStoreUnavailable))

	env := decode(t, rec)
	if env.Error.Message != "Service temporarily unavailable" {
		t.Fatalf("internal detail leaked: %q", env.Error.Message)
	}
	if logs.Len() != 1 {
		t.Fatalf("expected failure to be logged once, got %d", logs.Len())
	}
}

func TestSetRateHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SetRateHeaders(rec, phoneauth.RateDecision{Allowed: true, Limit: 100, Remaining: 42, ResetAt: time.Unix(1700000000, 0)})

	if rec.Header().Get("X-Rate-Limit-Remaining") != "42" {
		t.Fatalf("unexpected remaining %q", rec.Header().Get("X-Rate-Limit-Remaining"))
	}
	if rec.Header().Get("X-Rate-Limit-Reset") != "1700000000" {
		t.Fatalf("unexpected reset %q", rec.Header().Get("X-Rate-Limit-Reset"))
	}

	rec = httptest.NewRecorder()
	SetRateHeaders(rec, phoneauth.RateDecision{Allowed: true, Degraded: true})
	if rec.Header().Get("X-Rate-Limit-Remaining") != "" {
		t.Fatal("degraded decision without a limit should not set headers")
	}
}
