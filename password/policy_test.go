package password

import (
	"testing"
)

func defaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

func TestPolicyReportsAllViolations(t *testing.T) {
	violations := defaultPolicy().Check("Weak1")

	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(violations), violations)
	}
	assertContains(t, violations, "too short: minimum 8 characters")
	assertContains(t, violations, "missing special character")
}

func TestPolicyAcceptsStrongPassword(t *testing.T) {
	if violations := defaultPolicy().Check("Strong1!"); len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func TestPolicyRulesAreIndependent(t *testing.T) {
	cases := []struct {
		password string
		expect   string
	}{
		{"lower1!aaa", "missing uppercase letter"},
		{"UPPER1!AAA", "missing lowercase letter"},
		{"NoDigits!!", "missing digit"},
		{"NoSymbol11", "missing special character"},
	}

	for _, tc := range cases {
		violations := defaultPolicy().Check(tc.password)
		if len(violations) != 1 {
			t.Fatalf("%q: expected exactly one violation, got %v", tc.password, violations)
		}
		if violations[0] != tc.expect {
			t.Fatalf("%q: expected %q, got %q", tc.password, tc.expect, violations[0])
		}
	}
}

func TestDisabledRulesAreSkipped(t *testing.T) {
	p := Policy{MinLength: 4}
	if violations := p.Check("aaaa"); len(violations) != 0 {
		t.Fatalf("expected no violations, got %v", violations)
	}
}

func assertContains(t *testing.T, violations []string, want string) {
	t.Helper()
	for _, v := range violations {
		if v == want {
			return
		}
	}
	t.Fatalf("expected violation %q in %v", want, violations)
}
