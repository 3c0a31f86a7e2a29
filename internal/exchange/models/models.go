// Package models defines the exchange aggregate: one issuance or disclosure
// interaction session between this service and a holder wallet.
//
// The authoritative record of an exchange is its append-only event list; the
// current state is always derived from the last event, never stored redundantly,
// so the history stays auditable.
package models

import (
	"strings"
	"time"
)

// Type discriminates the two exchange flavors.
type Type string

const (
	TypeIssuing    Type = "ISSUING"
	TypeDisclosure Type = "DISCLOSURE"
)

// IsValid reports whether the type is one of the known exchange types.
func (t Type) IsValid() bool {
	switch t {
	case TypeIssuing, TypeDisclosure:
		return true
	}
	return false
}

// State is a node in the exchange lifecycle machine.
type State string

const (
	StateNew             State = "NEW"
	StateIdentified      State = "IDENTIFIED"
	StateNotIdentified   State = "NOT_IDENTIFIED"
	StateIssuingPending  State = "ISSUING_PENDING"
	StateComplete        State = "COMPLETE"
	StateUnexpectedError State = "UNEXPECTED_ERROR"
)

// Terminal reports whether the state is a sink. A terminal exchange is
// immutable; further appends must be rejected.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateUnexpectedError, StateNotIdentified:
		return true
	case StateNew, StateIdentified, StateIssuingPending:
		return false
	}
	return false
}

// CanTransition is the total transition function of the lifecycle machine.
// It is defined for every state pair; undefined pairs are rejections.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	// UNEXPECTED_ERROR is reachable from any non-terminal state.
	if to == StateUnexpectedError {
		return true
	}
	switch from {
	case StateNew:
		return to == StateIdentified || to == StateNotIdentified || to == StateIssuingPending
	case StateIdentified:
		return to == StateIssuingPending || to == StateComplete
	case StateIssuingPending:
		return to == StateComplete
	}
	return false
}

// StateEvent is one entry in the append-only lifecycle history.
type StateEvent struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Exchange is one interaction session. It is mutated only by appending state
// events and by set-union/merge patches; fields are never rewritten
// destructively.
type Exchange struct {
	ID                string       `json:"id"`
	TenantID          string       `json:"tenant_id"`
	Type              Type         `json:"type"`
	Events            []StateEvent `json:"events"`
	DisclosureID      string       `json:"disclosure_id,omitempty"`
	OfferIDs          []string     `json:"offer_ids,omitempty"`
	OfferHashes       []string     `json:"offer_hashes,omitempty"`
	FinalizedOfferIDs []string     `json:"finalized_offer_ids,omitempty"`
	Challenge         string       `json:"challenge,omitempty"`
	ChallengeIssuedAt *time.Time   `json:"challenge_issued_at,omitempty"`
}

// CurrentState derives the lifecycle position from the event history.
// An exchange with no events yet is NEW.
func (e *Exchange) CurrentState() State {
	if len(e.Events) == 0 {
		return StateNew
	}
	return e.Events[len(e.Events)-1].State
}

// Terminal reports whether the exchange has reached a sink state.
func (e *Exchange) Terminal() bool {
	return e.CurrentState().Terminal()
}

// CreatedAt is the timestamp of the first lifecycle event.
func (e *Exchange) CreatedAt() time.Time {
	if len(e.Events) == 0 {
		return time.Time{}
	}
	return e.Events[0].Timestamp
}

// RemainingOfferIDs returns OfferIDs minus FinalizedOfferIDs as normalized ids.
// Ids may arrive in different representations of the same identifier, so both
// sides are normalized before the set difference.
func (e *Exchange) RemainingOfferIDs() []string {
	finalized := make(map[string]struct{}, len(e.FinalizedOfferIDs))
	for _, id := range e.FinalizedOfferIDs {
		finalized[NormalizeID(id)] = struct{}{}
	}
	var remaining []string
	seen := make(map[string]struct{}, len(e.OfferIDs))
	for _, id := range e.OfferIDs {
		norm := NormalizeID(id)
		if _, done := finalized[norm]; done {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		remaining = append(remaining, norm)
	}
	return remaining
}

// UnionFinalized returns the set union of the exchange's finalized offer ids
// and the given ids, normalized and deduplicated. Order is not significant.
func (e *Exchange) UnionFinalized(ids []string) []string {
	return UnionIDs(e.FinalizedOfferIDs, ids)
}

// NormalizeID canonicalizes an offer identifier for set operations.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// UnionIDs merges two id lists into a normalized, deduplicated set.
func UnionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, id := range list {
			norm := NormalizeID(id)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			out = append(out, norm)
		}
	}
	return out
}

// Patch carries top-level field updates merged in the same atomic store
// operation as a state append. Nil/empty fields are left untouched. OfferIDs
// and OfferHashes are replaced wholesale; FinalizedOfferIDs is folded in as a
// set-union inside the store's critical section, so the finalized set only
// grows and concurrent writers cannot erase each other's progress.
type Patch struct {
	DisclosureID      *string
	OfferIDs          []string
	OfferHashes       []string
	FinalizedOfferIDs []string
	Challenge         *string
	ChallengeIssuedAt *time.Time
}

// Apply merges the patch into the exchange in place.
func (p *Patch) Apply(e *Exchange) {
	if p == nil {
		return
	}
	if p.DisclosureID != nil {
		e.DisclosureID = *p.DisclosureID
	}
	if p.OfferIDs != nil {
		e.OfferIDs = p.OfferIDs
	}
	if p.OfferHashes != nil {
		e.OfferHashes = p.OfferHashes
	}
	if p.FinalizedOfferIDs != nil {
		e.FinalizedOfferIDs = UnionIDs(e.FinalizedOfferIDs, p.FinalizedOfferIDs)
	}
	if p.Challenge != nil {
		e.Challenge = *p.Challenge
	}
	if p.ChallengeIssuedAt != nil {
		ts := *p.ChallengeIssuedAt
		e.ChallengeIssuedAt = &ts
	}
}

// Clone returns a deep copy so stores can hand out records without aliasing
// internal state.
func (e *Exchange) Clone() *Exchange {
	clone := *e
	clone.Events = append([]StateEvent(nil), e.Events...)
	clone.OfferIDs = append([]string(nil), e.OfferIDs...)
	clone.OfferHashes = append([]string(nil), e.OfferHashes...)
	clone.FinalizedOfferIDs = append([]string(nil), e.FinalizedOfferIDs...)
	if e.ChallengeIssuedAt != nil {
		ts := *e.ChallengeIssuedAt
		clone.ChallengeIssuedAt = &ts
	}
	return &clone
}
