package verification

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	dErrors "credex/pkg/domain-errors"
)

const trustedIssuer = "did:web:issuer.example.com"

// staticResolver resolves every key id to one fixed key, or fails.
type staticResolver struct {
	key crypto.PublicKey
	err error
}

func (r *staticResolver) ResolveKey(_ context.Context, _ string) (crypto.PublicKey, error) {
	return r.key, r.err
}

// staticRevocations answers with a fixed status.
type staticRevocations struct {
	status RevocationStatus
	err    error
}

func (r *staticRevocations) IsRevoked(_ context.Context, _ string) (RevocationStatus, error) {
	return r.status, r.err
}

// PipelineSuite exercises the fixed check order, the tamper short-circuit, and
// the expiry precedence rules.
type PipelineSuite struct {
	suite.Suite
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
	now  time.Time
	ctx  context.Context
}

func (s *PipelineSuite) SetupSuite() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.pub, s.priv = pub, priv
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ctx = context.Background()
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) pipeline(opts ...Option) *Pipeline {
	opts = append([]Option{WithClock(func() time.Time { return s.now })}, opts...)
	return NewPipeline(&staticResolver{key: s.pub}, trustedIssuer, opts...)
}

type vcPayload struct {
	issuer            string
	statusID          string
	validUntil        string
	expirationDate    string
	subjectValidUntil string
}

func (s *PipelineSuite) sign(p vcPayload) string {
	subject := map[string]any{"givenName": "Ada"}
	if p.subjectValidUntil != "" {
		subject["validUntil"] = p.subjectValidUntil
	}
	vc := map[string]any{
		"id":                "urn:credential:test-1",
		"credentialSubject": subject,
	}
	if p.statusID != "" {
		vc["credentialStatus"] = map[string]any{"id": p.statusID, "type": "StatusList2021Entry"}
	}
	if p.validUntil != "" {
		vc["validUntil"] = p.validUntil
	}
	if p.expirationDate != "" {
		vc["expirationDate"] = p.expirationDate
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"iss": p.issuer,
		"sub": "did:example:holder",
		"vc":  vc,
	})
	token.Header["kid"] = "issuer-key-1"
	signed, err := token.SignedString(s.priv)
	s.Require().NoError(err)
	return signed
}

func (s *PipelineSuite) TestHappyPath() {
	result, credential, err := s.pipeline().Verify(s.ctx, s.sign(vcPayload{issuer: trustedIssuer}))
	s.Require().NoError(err)

	s.Equal(CheckPass, result.Untampered)
	s.Equal(CheckPass, result.TrustedIssuer)
	s.Equal(CheckNotChecked, result.Unrevoked, "no status reference configured")
	s.Equal(CheckNotApplicable, result.Unexpired, "missing dates are not a failure")
	s.Equal(s.now, result.CheckedAt)
	s.True(result.Trusted())
	s.Equal("urn:credential:test-1", credential.ID)
}

func (s *PipelineSuite) TestTamperedCredentialShortCircuits() {
	_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{"iss": trustedIssuer})
	forged, err := token.SignedString(otherPriv)
	s.Require().NoError(err)

	result, _, err := s.pipeline().Verify(s.ctx, forged)
	s.Require().NoError(err, "a failed signature is a result, not an error")

	s.Equal(CheckFail, result.Untampered)
	s.Equal(CheckNotChecked, result.TrustedIssuer)
	s.Equal(CheckNotChecked, result.Unrevoked)
	s.Equal(CheckNotChecked, result.Unexpired)
	s.False(result.Trusted())
}

func (s *PipelineSuite) TestIssuerMismatchIsFailureNotWarning() {
	for _, issuer := range []string{"did:web:attacker.example.com", "DID:WEB:ISSUER.EXAMPLE.COM", trustedIssuer + " "} {
		result, _, err := s.pipeline().Verify(s.ctx, s.sign(vcPayload{issuer: issuer}))
		s.Require().NoError(err)
		s.Equal(CheckPass, result.Untampered, issuer)
		s.Equal(CheckFail, result.TrustedIssuer, issuer)
		s.Equal(CheckNotApplicable, result.Unexpired, "expiry is still evaluated after issuer failure")
		s.False(result.Trusted())
	}
}

func (s *PipelineSuite) TestRevocationOutcomes() {
	raw := s.sign(vcPayload{issuer: trustedIssuer, statusID: "https://issuer.example.com/status/3#94567"})

	s.Run("revoked fails", func() {
		p := s.pipeline(WithRevocationList(&staticRevocations{status: RevocationRevoked}))
		result, _, err := p.Verify(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(CheckFail, result.Unrevoked)
		s.False(result.Trusted())
	})

	s.Run("clear passes", func() {
		p := s.pipeline(WithRevocationList(&staticRevocations{status: RevocationClear}))
		result, _, err := p.Verify(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(CheckPass, result.Unrevoked)
	})

	s.Run("collaborator error degrades to NOT_CHECKED", func() {
		p := s.pipeline(WithRevocationList(&staticRevocations{err: errors.New("status list unreachable")}))
		result, _, err := p.Verify(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(CheckNotChecked, result.Unrevoked)
	})

	s.Run("no list configured stays NOT_CHECKED", func() {
		result, _, err := s.pipeline().Verify(s.ctx, raw)
		s.Require().NoError(err)
		s.Equal(CheckNotChecked, result.Unrevoked)
	})
}

func (s *PipelineSuite) TestExpiryPrecedence() {
	past := s.now.Add(-time.Hour).Format(time.RFC3339)
	future := s.now.Add(time.Hour).Format(time.RFC3339)

	s.Run("root validUntil in the past fails", func() {
		result, _, err := s.pipeline().Verify(s.ctx, s.sign(vcPayload{issuer: trustedIssuer, validUntil: past}))
		s.Require().NoError(err)
		s.Equal(CheckFail, result.Unexpired)
	})

	s.Run("expirationDate honored when validUntil absent", func() {
		result, _, err := s.pipeline().Verify(s.ctx, s.sign(vcPayload{issuer: trustedIssuer, expirationDate: future}))
		s.Require().NoError(err)
		s.Equal(CheckPass, result.Unexpired)
	})

	s.Run("subject-level override beats root", func() {
		result, _, err := s.pipeline().Verify(s.ctx, s.sign(vcPayload{
			issuer:            trustedIssuer,
			validUntil:        future,
			subjectValidUntil: past,
		}))
		s.Require().NoError(err)
		s.Equal(CheckFail, result.Unexpired)
	})
}

func (s *PipelineSuite) TestKeyResolutionFailureIsUpstreamError() {
	p := NewPipeline(&staticResolver{err: errors.New("resolver down")}, trustedIssuer,
		WithClock(func() time.Time { return s.now }))

	result, _, err := p.Verify(s.ctx, s.sign(vcPayload{issuer: trustedIssuer}))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
	s.Equal(CheckNotChecked, result.Untampered)
}

func (s *PipelineSuite) TestMalformedEnvelopeIsValidationError() {
	_, _, err := s.pipeline().Verify(s.ctx, "not-a-jws")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
