// Package verification implements the credential verification pipeline:
// tamper, trusted-issuer, revocation, and expiration checks composed in a
// fixed order over a decoded credential.
//
// Verification outcomes are data, not errors. The pipeline always returns a
// Result; only infrastructure failures (key resolution unreachable, malformed
// input) surface as errors.
package verification

import "time"

// CheckResult is the outcome of a single pipeline check.
type CheckResult string

const (
	CheckPass          CheckResult = "PASS"
	CheckFail          CheckResult = "FAIL"
	CheckNotChecked    CheckResult = "NOT_CHECKED"
	CheckNotApplicable CheckResult = "NOT_APPLICABLE"
)

// Result is the structured verification record attached to a credential at
// verification time. It is not persisted as its own entity.
type Result struct {
	Untampered    CheckResult `json:"UNTAMPERED"`
	TrustedIssuer CheckResult `json:"TRUSTED_ISSUER"`
	Unrevoked     CheckResult `json:"UNREVOKED"`
	Unexpired     CheckResult `json:"UNEXPIRED"`
	CheckedAt     time.Time   `json:"checked"`
}

// Trusted reports whether the credential passed the checks a submission must
// pass to be accepted: the payload is untampered and the issuer is the
// expected one, with no positive revocation or expiry failure.
func (r Result) Trusted() bool {
	if r.Untampered != CheckPass || r.TrustedIssuer != CheckPass {
		return false
	}
	if r.Unrevoked == CheckFail || r.Unexpired == CheckFail {
		return false
	}
	return true
}

func newResult(checkedAt time.Time) Result {
	return Result{
		Untampered:    CheckNotChecked,
		TrustedIssuer: CheckNotChecked,
		Unrevoked:     CheckNotChecked,
		Unexpired:     CheckNotChecked,
		CheckedAt:     checkedAt,
	}
}
