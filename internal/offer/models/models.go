// Package models defines credential offers: unsigned candidate credentials
// bound to an exchange, pending claim by the holder.
package models

import "time"

// CredentialStatus points at the revocation/suspension entry assigned to a
// credential after issuance.
type CredentialStatus struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}

// Offer is one credential offer. ConsentedAt and RejectedAt are mutually
// exclusive terminal timestamps; an offer with either set is finalized.
type Offer struct {
	ID              string   `json:"id"`
	ExchangeID      string   `json:"exchange_id"`
	CredentialTypes []string `json:"credential_types"`
	// Claims includes a vendor-scoped user identifier that is never shared
	// outside this service.
	Claims           map[string]any   `json:"claims,omitempty"`
	ConsentedAt      *time.Time       `json:"consented_at,omitempty"`
	RejectedAt       *time.Time       `json:"rejected_at,omitempty"`
	CredentialStatus CredentialStatus `json:"credential_status,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        *time.Time       `json:"expires_at,omitempty"`
}

// Finalized reports whether the offer has reached a terminal disposition.
func (o *Offer) Finalized() bool {
	return o.ConsentedAt != nil || o.RejectedAt != nil
}

// Expired reports whether the offer is no longer claimable at the given time.
func (o *Offer) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && o.ExpiresAt.Before(now)
}

// Claimable reports whether the holder can still act on the offer.
func (o *Offer) Claimable(now time.Time) bool {
	return !o.Finalized() && !o.Expired(now)
}

// Clone returns a deep copy so stores can hand out records without aliasing.
func (o *Offer) Clone() *Offer {
	clone := *o
	clone.CredentialTypes = append([]string(nil), o.CredentialTypes...)
	if o.Claims != nil {
		claims := make(map[string]any, len(o.Claims))
		for k, v := range o.Claims {
			claims[k] = v
		}
		clone.Claims = claims
	}
	if o.ConsentedAt != nil {
		ts := *o.ConsentedAt
		clone.ConsentedAt = &ts
	}
	if o.RejectedAt != nil {
		ts := *o.RejectedAt
		clone.RejectedAt = &ts
	}
	if o.ExpiresAt != nil {
		ts := *o.ExpiresAt
		clone.ExpiresAt = &ts
	}
	return &clone
}

// PublicClaims returns the claims without the internal vendor-scoped user
// identifier, for anything that leaves the service boundary.
func (o *Offer) PublicClaims() map[string]any {
	if o.Claims == nil {
		return nil
	}
	out := make(map[string]any, len(o.Claims))
	for k, v := range o.Claims {
		if k == VendorUserIDClaim {
			continue
		}
		out[k] = v
	}
	return out
}

// VendorUserIDClaim is the claim key carrying the vendor-scoped user id.
const VendorUserIDClaim = "vendorUserId"
