package security

import (
	"sort"
	"time"
)

type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type ReportInput struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	OTPDigits        int
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPHashKeyLen    int
	LockoutThreshold int
	LockoutDuration  time.Duration
	IPThrottle       bool
	RatePolicies     []string
	Password         PasswordReport
}

type Report struct {
	ProductionMode   bool
	SigningAlgorithm string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	OTPDigits        int
	OTPTTL           time.Duration
	OTPMaxAttempts   int
	OTPHashKeyed     bool
	LockoutThreshold int
	LockoutDuration  time.Duration
	IPThrottle       bool
	RatePolicies     []string
	Argon2           PasswordReport
	// Warnings lists settings that are legal but weak.
	Warnings []string
}

func BuildReport(input ReportInput) Report {
	policies := append([]string(nil), input.RatePolicies...)
	sort.Strings(policies)

	r := Report{
		ProductionMode:   input.ProductionMode,
		SigningAlgorithm: input.SigningAlgorithm,
		AccessTTL:        input.AccessTTL,
		RefreshTTL:       input.RefreshTTL,
		OTPDigits:        input.OTPDigits,
		OTPTTL:           input.OTPTTL,
		OTPMaxAttempts:   input.OTPMaxAttempts,
		OTPHashKeyed:     input.OTPHashKeyLen > 0,
		LockoutThreshold: input.LockoutThreshold,
		LockoutDuration:  input.LockoutDuration,
		IPThrottle:       input.IPThrottle,
		RatePolicies:     policies,
		Argon2:           input.Password,
	}

	if !r.OTPHashKeyed {
		r.Warnings = append(r.Warnings, "otp codes are hashed without a key")
	}
	if !r.IPThrottle {
		r.Warnings = append(r.Warnings, "ip lockout is disabled")
	}
	if input.OTPMaxAttempts > 5 {
		r.Warnings = append(r.Warnings, "otp attempt cap above 5")
	}
	return r
}
