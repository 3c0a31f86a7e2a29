package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credex/internal/offer/models"
	"credex/pkg/platform/sentinel"
)

// OfferStoreSuite verifies the disposition guard (consent and reject are
// mutually exclusive and terminal) and the unexpired lookup that drives the
// exchange completion rule.
type OfferStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	now   time.Time
}

func (s *OfferStoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestOfferStoreSuite(t *testing.T) {
	suite.Run(t, new(OfferStoreSuite))
}

func (s *OfferStoreSuite) seed(id string, expiresAt *time.Time) {
	err := s.store.Save(s.ctx, &models.Offer{
		ID:              id,
		ExchangeID:      "ex-1",
		CredentialTypes: []string{"ProofOfResidence"},
		Claims:          map[string]any{models.VendorUserIDClaim: "vendor-7", "city": "Utrecht"},
		CreatedAt:       s.now.Add(-time.Hour),
		ExpiresAt:       expiresAt,
	})
	s.Require().NoError(err)
}

func (s *OfferStoreSuite) TestConsentIsTerminal() {
	s.seed("o1", nil)

	offer, err := s.store.Consent(s.ctx, "o1", s.now)
	s.Require().NoError(err)
	s.NotNil(offer.ConsentedAt)
	s.Nil(offer.RejectedAt)

	_, err = s.store.Reject(s.ctx, "o1", s.now.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.Consent(s.ctx, "o1", s.now.Add(time.Minute))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *OfferStoreSuite) TestExpiredOfferCannotBeDisposed() {
	expiry := s.now.Add(-time.Minute)
	s.seed("o1", &expiry)

	_, err := s.store.Consent(s.ctx, "o1", s.now)
	s.ErrorIs(err, sentinel.ErrExpired)
}

func (s *OfferStoreSuite) TestListUnexpiredByIDs() {
	past := s.now.Add(-time.Minute)
	future := s.now.Add(time.Hour)
	s.seed("o1", &future)
	s.seed("o2", &past)
	s.seed("o3", nil)

	offers, err := s.store.ListUnexpiredByIDs(s.ctx, []string{"O1", "o2", "o3", "ghost"}, s.now)
	s.Require().NoError(err)
	s.Len(offers, 2)

	var ids []string
	for _, o := range offers {
		ids = append(ids, o.ID)
	}
	s.ElementsMatch([]string{"o1", "o3"}, ids)
}

func (s *OfferStoreSuite) TestLookupNormalizesIDs() {
	s.seed("O1", nil)
	offer, err := s.store.FindByID(s.ctx, " o1 ")
	s.Require().NoError(err)
	s.Equal("O1", offer.ID)
}

func (s *OfferStoreSuite) TestPublicClaimsStripVendorUserID() {
	s.seed("o1", nil)
	offer, err := s.store.FindByID(s.ctx, "o1")
	s.Require().NoError(err)

	public := offer.PublicClaims()
	s.NotContains(public, models.VendorUserIDClaim)
	s.Equal("Utrecht", public["city"])
}
