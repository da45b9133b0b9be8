package policy

import (
	"strings"
	"unicode"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/query"
)

// complexityEntropy is the entropy floor applied on top of the explicit
// character class rules.
const complexityEntropy = 40

// ShouldLockoutPassword reports whether the failed password attempt count
// has exhausted the policy's budget. A zero budget disables lockout.
func ShouldLockoutPassword(policy *query.LockoutPolicy, failedAttempts uint64) bool {
	return policy.MaxPasswordAttempts > 0 && failedAttempts >= policy.MaxPasswordAttempts
}

// ShouldLockoutOTP reports whether the failed OTP attempt count has
// exhausted the policy's budget. A zero budget disables lockout.
func ShouldLockoutOTP(policy *query.LockoutPolicy, failedAttempts uint64) bool {
	return policy.MaxOTPAttempts > 0 && failedAttempts >= policy.MaxOTPAttempts
}

// CheckPasswordComplexity validates a password against the resolved
// policy.
func CheckPasswordComplexity(policy *query.PasswordComplexityPolicy, password string) error {
	if uint64(len(password)) < policy.MinLength {
		return errs.ThrowInvalidArgument(nil, "POLICY-Pw01", "password is too short")
	}
	if policy.HasLowercase && !strings.ContainsFunc(password, unicode.IsLower) {
		return errs.ThrowInvalidArgument(nil, "POLICY-Pw02", "password needs a lowercase letter")
	}
	if policy.HasUppercase && !strings.ContainsFunc(password, unicode.IsUpper) {
		return errs.ThrowInvalidArgument(nil, "POLICY-Pw03", "password needs an uppercase letter")
	}
	if policy.HasNumber && !strings.ContainsFunc(password, unicode.IsDigit) {
		return errs.ThrowInvalidArgument(nil, "POLICY-Pw04", "password needs a number")
	}
	if policy.HasSymbol && !strings.ContainsFunc(password, isSymbol) {
		return errs.ThrowInvalidArgument(nil, "POLICY-Pw05", "password needs a symbol")
	}
	if err := passwordvalidator.Validate(password, complexityEntropy); err != nil {
		return errs.ThrowInvalidArgument(err, "POLICY-Pw06", "password is too predictable")
	}
	return nil
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
