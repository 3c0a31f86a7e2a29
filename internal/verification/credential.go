package verification

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credential is the decoded view of a JWS-enveloped verifiable credential,
// carrying only the fields the pipeline checks against.
type Credential struct {
	ID       string
	Issuer   string
	Subject  string
	KeyID    string
	StatusID string
	// RootValidUntil is the credential-level expiry; SubjectValidUntil is the
	// subject-level override, which takes priority when both are present.
	RootValidUntil    *time.Time
	SubjectValidUntil *time.Time
	Claims            map[string]any
}

// ValidUntil resolves the effective expiry: subject-level override first,
// root-level second, nil when the credential carries no expiry at all.
func (c *Credential) ValidUntil() *time.Time {
	if c.SubjectValidUntil != nil {
		return c.SubjectValidUntil
	}
	return c.RootValidUntil
}

// vcClaims is the JWT claim layout of a JWS-enveloped credential.
type vcClaims struct {
	jwt.RegisteredClaims
	VC struct {
		ID                string         `json:"id"`
		CredentialSubject map[string]any `json:"credentialSubject"`
		CredentialStatus  struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"credentialStatus"`
		ValidUntil     string `json:"validUntil"`
		ExpirationDate string `json:"expirationDate"`
	} `json:"vc"`
}

// decode maps the raw claims onto the pipeline's credential view.
func (c *vcClaims) decode(keyID string) *Credential {
	cred := &Credential{
		Issuer:   c.Issuer,
		Subject:  c.Subject,
		KeyID:    keyID,
		StatusID: c.VC.CredentialStatus.ID,
		Claims:   c.VC.CredentialSubject,
	}
	cred.ID = c.VC.ID
	if cred.ID == "" {
		cred.ID = c.ID
	}

	// root-level expiry: validUntil (VC 2.0) wins over expirationDate (1.1),
	// with the JWT exp claim as the envelope-level fallback
	if ts := parseTimestamp(c.VC.ValidUntil); ts != nil {
		cred.RootValidUntil = ts
	} else if ts := parseTimestamp(c.VC.ExpirationDate); ts != nil {
		cred.RootValidUntil = ts
	} else if c.ExpiresAt != nil {
		t := c.ExpiresAt.Time
		cred.RootValidUntil = &t
	}

	if subject, ok := c.VC.CredentialSubject["validUntil"].(string); ok {
		cred.SubjectValidUntil = parseTimestamp(subject)
	}
	return cred
}

func parseTimestamp(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
