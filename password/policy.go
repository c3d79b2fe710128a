package password

import (
	"fmt"
	"unicode"
)

// Policy is the registration password policy. Every enabled rule is
// checked independently so a caller can report all violations together.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// Check returns the list of violated rules, empty when the password
// satisfies the policy.
func (p Policy) Check(password string) []string {
	var violations []string

	if p.MinLength > 0 && len(password) < p.MinLength {
		violations = append(violations, fmt.Sprintf("too short: minimum %d characters", p.MinLength))
	}
	if p.RequireUpper && !containsClass(password, unicode.IsUpper) {
		violations = append(violations, "missing uppercase letter")
	}
	if p.RequireLower && !containsClass(password, unicode.IsLower) {
		violations = append(violations, "missing lowercase letter")
	}
	if p.RequireDigit && !containsClass(password, unicode.IsDigit) {
		violations = append(violations, "missing digit")
	}
	if p.RequireSymbol && !containsClass(password, isSymbol) {
		violations = append(violations, "missing special character")
	}

	return violations
}

func containsClass(s string, match func(rune) bool) bool {
	for _, r := range s {
		if match(r) {
			return true
		}
	}
	return false
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
