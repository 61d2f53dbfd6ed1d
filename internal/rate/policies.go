package rate

import "time"

// Standard policy names.
const (
	PolicyAPI      = "api"
	PolicyAuth     = "auth"
	PolicyPayments = "payments"
	PolicyOTPSend  = "otp_send"
	PolicyRegister = "register"
)

// DefaultPolicies returns the standard budgets keyed by name.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		PolicyAPI:      {Name: PolicyAPI, Window: time.Minute, MaxRequests: 100},
		PolicyAuth:     {Name: PolicyAuth, Window: time.Minute, MaxRequests: 5},
		PolicyPayments: {Name: PolicyPayments, Window: time.Minute, MaxRequests: 10},
		PolicyOTPSend:  {Name: PolicyOTPSend, Window: 10 * time.Minute, MaxRequests: 3},
		PolicyRegister: {Name: PolicyRegister, Window: 10 * time.Minute, MaxRequests: 3},
	}
}
