package internaldefs

import (
	"github.com/MrEthical07/phoneauth"
)

// CounterDef names one engine counter for exporters.
type CounterDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for exporters.
type HistogramDef struct {
	ID   phoneauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: phoneauth.MetricOTPSent, Name: "phoneauth_otp_sent_total", Help: "OTP codes handed to the SMS gateway."},
	{ID: phoneauth.MetricOTPSendRateLimited, Name: "phoneauth_otp_send_rate_limited_total", Help: "OTP sends rejected by the otp_send budget."},
	{ID: phoneauth.MetricOTPSendFailure, Name: "phoneauth_otp_send_failure_total", Help: "OTP sends the SMS gateway rejected."},
	{ID: phoneauth.MetricOTPVerifySuccess, Name: "phoneauth_otp_verify_success_total", Help: "Successful OTP verifications."},
	{ID: phoneauth.MetricOTPVerifyFailure, Name: "phoneauth_otp_verify_failure_total", Help: "Failed OTP verifications."},
	{ID: phoneauth.MetricOTPLocked, Name: "phoneauth_otp_locked_total", Help: "Phones locked out of OTP verification."},
	{ID: phoneauth.MetricLoginSuccess, Name: "phoneauth_login_success_total", Help: "Successful logins."},
	{ID: phoneauth.MetricLoginFailure, Name: "phoneauth_login_failure_total", Help: "Failed logins."},
	{ID: phoneauth.MetricLoginLocked, Name: "phoneauth_login_locked_total", Help: "Identifiers locked out of login."},
	{ID: phoneauth.MetricRefreshSuccess, Name: "phoneauth_refresh_success_total", Help: "Successful refresh exchanges."},
	{ID: phoneauth.MetricRefreshFailure, Name: "phoneauth_refresh_failure_total", Help: "Failed refresh exchanges."},
	{ID: phoneauth.MetricSessionCreated, Name: "phoneauth_session_created_total", Help: "Sessions started."},
	{ID: phoneauth.MetricLogout, Name: "phoneauth_logout_total", Help: "Sessions revoked."},
	{ID: phoneauth.MetricRateLimitHit, Name: "phoneauth_rate_limit_hit_total", Help: "Requests denied by a rate limit policy."},
	{ID: phoneauth.MetricRateLimitDegraded, Name: "phoneauth_rate_limit_degraded_total", Help: "Rate checks allowed because the store was unavailable."},
	{ID: phoneauth.MetricAuthorizeAllowed, Name: "phoneauth_authorize_allowed_total", Help: "Permission checks that passed."},
	{ID: phoneauth.MetricAuthorizeDenied, Name: "phoneauth_authorize_denied_total", Help: "Permission checks that failed."},
	{ID: phoneauth.MetricBreachReported, Name: "phoneauth_breach_reported_total", Help: "Lockouts forwarded to the breach reporter."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: phoneauth.MetricValidateLatency, Name: "phoneauth_validate_latency_seconds", Help: "Access token validation latency."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "phoneauth_audit_dropped_total"

// AuditFailedName is the counter for audit events whose sink panicked.
const AuditFailedName = "phoneauth_audit_failed_total"

// HistogramUpperBounds are the bucket bounds in seconds, excluding +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket, +Inf included, for exporters that
// flatten histograms into gauges.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to eight buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals. The last
// element is the sample count.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
