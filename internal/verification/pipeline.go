package verification

import (
	"context"
	"crypto"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "credex/pkg/domain-errors"
)

// KeyResolver resolves a verification key by its key id (JOSE `kid`).
// Resolution failures are infrastructure errors, not verification outcomes.
type KeyResolver interface {
	ResolveKey(ctx context.Context, keyID string) (crypto.PublicKey, error)
}

// RevocationStatus is the revocation collaborator's answer.
type RevocationStatus int

const (
	RevocationNotChecked RevocationStatus = iota
	RevocationRevoked
	RevocationClear
)

// RevocationList answers whether a credential's status entry is revoked.
type RevocationList interface {
	IsRevoked(ctx context.Context, statusID string) (RevocationStatus, error)
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// Pipeline runs the four credential checks in fixed order with
// short-circuiting: a tampered payload cannot be trusted enough to evaluate
// further, so a signature failure marks the remaining checks NOT_CHECKED and
// returns immediately.
type Pipeline struct {
	keys          KeyResolver
	revocations   RevocationList
	trustedIssuer string
	logger        *slog.Logger
	now           func() time.Time
	parser        *jwt.Parser
}

// NewPipeline creates a verification pipeline bound to one trusted issuer.
func NewPipeline(keys KeyResolver, trustedIssuer string, opts ...Option) *Pipeline {
	p := &Pipeline{
		keys:          keys,
		trustedIssuer: trustedIssuer,
		now:           time.Now,
		// claim validation is the pipeline's job, not the parser's: expiry is
		// a check outcome, never a parse failure
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"EdDSA", "ES256", "RS256"}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithRevocationList configures the revocation collaborator. Without one,
// the UNREVOKED check stays NOT_CHECKED.
func WithRevocationList(list RevocationList) Option {
	return func(p *Pipeline) {
		p.revocations = list
	}
}

// WithLogger sets the logger instance for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock pins the pipeline clock for deterministic expiry checks in tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// Verify runs the pipeline over a raw JWS-enveloped credential.
//
// The returned Result always carries a checked timestamp. The error return is
// reserved for infrastructure failures: malformed input and key resolution
// problems. A failed signature is a FAIL outcome, not an error.
func (p *Pipeline) Verify(ctx context.Context, rawJWS string) (Result, *Credential, error) {
	result := newResult(p.now())

	claims := &vcClaims{}
	token, _, err := p.parser.ParseUnverified(rawJWS, claims)
	if err != nil {
		return result, nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed credential envelope")
	}
	keyID, _ := token.Header["kid"].(string)
	credential := claims.decode(keyID)

	// 1. UNTAMPERED
	untampered, err := p.checkSignature(ctx, rawJWS, keyID)
	if err != nil {
		return result, credential, err
	}
	result.Untampered = untampered
	if untampered != CheckPass {
		// short-circuit: remaining checks stay NOT_CHECKED
		return result, credential, nil
	}

	// 2. TRUSTED_ISSUER: exact match; case or whitespace drift is a failure
	if credential.Issuer == p.trustedIssuer && p.trustedIssuer != "" {
		result.TrustedIssuer = CheckPass
	} else {
		result.TrustedIssuer = CheckFail
	}

	// 3. UNREVOKED
	result.Unrevoked = p.checkRevocation(ctx, credential)

	// 4. UNEXPIRED
	result.Unexpired = p.checkExpiry(credential)

	return result, credential, nil
}

func (p *Pipeline) checkSignature(ctx context.Context, rawJWS, keyID string) (CheckResult, error) {
	key, err := p.keys.ResolveKey(ctx, keyID)
	if err != nil {
		return CheckNotChecked, dErrors.Wrap(err, dErrors.CodeUpstream, "key resolution failed")
	}

	_, err = p.parser.Parse(rawJWS, func(*jwt.Token) (any, error) {
		return key, nil
	})
	if err == nil {
		return CheckPass, nil
	}
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
		if p.logger != nil {
			p.logger.Warn("credential signature rejected", "key_id", keyID, "error", err)
		}
		return CheckFail, nil
	}
	return CheckNotChecked, dErrors.Wrap(err, dErrors.CodeValidation, "credential parse failed")
}

func (p *Pipeline) checkRevocation(ctx context.Context, credential *Credential) CheckResult {
	if p.revocations == nil || strings.TrimSpace(credential.StatusID) == "" {
		return CheckNotChecked
	}
	status, err := p.revocations.IsRevoked(ctx, credential.StatusID)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("revocation lookup failed", "status_id", credential.StatusID, "error", err)
		}
		return CheckNotChecked
	}
	switch status {
	case RevocationClear:
		return CheckPass
	case RevocationRevoked:
		return CheckFail
	default:
		return CheckNotChecked
	}
}

func (p *Pipeline) checkExpiry(credential *Credential) CheckResult {
	validUntil := credential.ValidUntil()
	if validUntil == nil {
		return CheckNotApplicable
	}
	if validUntil.Before(p.now()) {
		return CheckFail
	}
	return CheckPass
}
