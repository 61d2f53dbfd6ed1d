package phoneauth

import (
	"github.com/MrEthical07/phoneauth/internal/security"
	"github.com/MrEthical07/phoneauth/permission"
)

// SecurityReport returns the active security posture. It reads only
// configuration and performs no I/O.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	policies := make([]string, 0, len(e.config.RateLimit.Policies))
	for name := range e.config.RateLimit.Policies {
		policies = append(policies, name)
	}

	r := security.BuildReport(security.ReportInput{
		ProductionMode:   e.config.Security.ProductionMode,
		SigningAlgorithm: e.config.JWT.SigningMethod,
		AccessTTL:        e.config.JWT.AccessTTL,
		RefreshTTL:       e.config.JWT.RefreshTTL,
		OTPDigits:        e.config.OTP.Digits,
		OTPTTL:           e.config.OTP.TTL,
		OTPMaxAttempts:   e.config.OTP.MaxAttempts,
		OTPHashKeyLen:    len(e.config.OTP.HashKey),
		LockoutThreshold: e.config.Lockout.Threshold,
		LockoutDuration:  e.config.Lockout.Duration,
		IPThrottle:       e.config.Lockout.EnableIPThrottle,
		RatePolicies:     policies,
		Password: security.PasswordReport{
			Memory:      e.config.Password.Memory,
			Time:        e.config.Password.Time,
			Parallelism: e.config.Password.Parallelism,
			SaltLength:  e.config.Password.SaltLength,
			KeyLength:   e.config.Password.KeyLength,
		},
	})

	roles := make(map[permission.Role][]string, len(permission.Roles()))
	for _, role := range permission.Roles() {
		roles[role] = role.Permissions().Names()
	}

	return SecurityReport{
		ProductionMode:   r.ProductionMode,
		SigningAlgorithm: r.SigningAlgorithm,
		AccessTTL:        r.AccessTTL,
		RefreshTTL:       r.RefreshTTL,
		OTPDigits:        r.OTPDigits,
		OTPTTL:           r.OTPTTL,
		OTPMaxAttempts:   r.OTPMaxAttempts,
		OTPHashKeyed:     r.OTPHashKeyed,
		LockoutThreshold: r.LockoutThreshold,
		LockoutDuration:  r.LockoutDuration,
		IPThrottle:       r.IPThrottle,
		RatePolicies:     r.RatePolicies,
		Argon2: PasswordConfigReport{
			Memory:      r.Argon2.Memory,
			Time:        r.Argon2.Time,
			Parallelism: r.Argon2.Parallelism,
			SaltLength:  r.Argon2.SaltLength,
			KeyLength:   r.Argon2.KeyLength,
		},
		RolePermissions: roles,
		Warnings:        r.Warnings,
	}
}
