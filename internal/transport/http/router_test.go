package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	exchangemetrics "credex/internal/exchange/metrics"
	exchangemodels "credex/internal/exchange/models"
	exchangeservice "credex/internal/exchange/service"
	exchangestore "credex/internal/exchange/store"
	offerservice "credex/internal/offer/service"
	offerstore "credex/internal/offer/store"
	"credex/internal/platform/health"
	"credex/internal/verification"
	dErrors "credex/pkg/domain-errors"
)

// staticVerifier lets tests script the pipeline outcome without signing real
// credentials; the pipeline itself is covered in its own package.
type staticVerifier struct {
	result     verification.Result
	credential *verification.Credential
	err        error
}

func (v *staticVerifier) Verify(_ context.Context, _ string) (verification.Result, *verification.Credential, error) {
	return v.result, v.credential, v.err
}

func trustedResult() verification.Result {
	return verification.Result{
		Untampered:    verification.CheckPass,
		TrustedIssuer: verification.CheckPass,
		Unrevoked:     verification.CheckNotChecked,
		Unexpired:     verification.CheckNotApplicable,
		CheckedAt:     time.Now().UTC(),
	}
}

// routerMetrics is shared across the suite: prometheus collectors register
// globally, so the vec is created once per test binary.
var routerMetrics = exchangemetrics.New()

type RouterSuite struct {
	suite.Suite

	server   *httptest.Server
	verifier *staticVerifier
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	offerRecords := offerstore.New()
	exchanges := exchangeservice.NewService(exchangestore.New(), logger)
	offers := offerservice.NewService(offerRecords, logger)
	finalizer := exchangeservice.NewFinalizer(exchanges, offerRecords, logger)

	s.verifier = &staticVerifier{
		result:     trustedResult(),
		credential: &verification.Credential{ID: "cred-1", Issuer: "did:web:issuer.example", Subject: "did:key:holder"},
	}

	handler := NewHandler(exchanges, offers, finalizer, s.verifier, logger, WithMetrics(routerMetrics))
	s.server = httptest.NewServer(NewRouter(handler, health.New("test"), logger))
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) request(method, path string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, dst any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(dst))
}

func (s *RouterSuite) createIssuingExchange(offerCount int) exchangeResponse {
	offers := make([]offerInput, offerCount)
	for i := range offers {
		offers[i] = offerInput{CredentialTypes: []string{"ProofOfResidence"}}
	}
	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{
		TenantID: "tenant-a",
		Type:     "ISSUING",
		Offers:   offers,
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var out exchangeResponse
	s.decode(resp, &out)
	return out
}

func (s *RouterSuite) TestCreateIssuingExchangeWithOffers() {
	out := s.createIssuingExchange(2)
	s.Equal("ISSUING_PENDING", out.State)
	s.Len(out.OfferIDs, 2)
	s.Equal("tenant-a", out.TenantID)
}

func (s *RouterSuite) TestCreateExchangeValidation() {
	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{Type: "ISSUING"})
	defer resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

// conflictingAppendExchanges refuses the post-creation transition, as a
// rival writer or a store fault would, and records the exchange it refused.
type conflictingAppendExchanges struct {
	ExchangeService
	refusedID string
}

func (f *conflictingAppendExchanges) AppendState(_ context.Context, id string, _ exchangemodels.State, _ *exchangemodels.Patch) (*exchangemodels.Exchange, error) {
	f.refusedID = id
	return nil, dErrors.New(dErrors.CodeConflict, "illegal state transition")
}

func (s *RouterSuite) TestCreateExchangeSurvivesRefusedPendingTransition() {
	logger := slog.New(slog.DiscardHandler)
	offerRecords := offerstore.New()
	exchanges := exchangeservice.NewService(exchangestore.New(), logger)
	offers := offerservice.NewService(offerRecords, logger)
	finalizer := exchangeservice.NewFinalizer(exchanges, offerRecords, logger)
	refusing := &conflictingAppendExchanges{ExchangeService: exchanges}

	handler := NewHandler(refusing, offers, finalizer, s.verifier, logger)
	server := httptest.NewServer(NewRouter(handler, health.New("test"), logger))
	defer server.Close()

	var buf bytes.Buffer
	s.Require().NoError(json.NewEncoder(&buf).Encode(createExchangeRequest{
		TenantID: "tenant-a",
		Type:     "ISSUING",
		Offers:   []offerInput{{CredentialTypes: []string{"ProofOfResidence"}}},
	}))
	req, err := http.NewRequest(http.MethodPost, server.URL+"/exchanges", &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.Client().Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)

	// The created exchange was parked, not leaked half-built.
	parked, err := exchanges.Get(context.Background(), refusing.refusedID)
	s.Require().NoError(err)
	s.Equal(exchangemodels.StateUnexpectedError, parked.CurrentState())
}

func (s *RouterSuite) TestGetExchangeNotFound() {
	resp := s.request(http.MethodGet, "/exchanges/ghost", nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)

	var body map[string]string
	s.decode(resp, &body)
	s.Equal(string(dErrors.CodeNotFound), body["error"])
}

func (s *RouterSuite) TestClaimingEveryOfferCompletesExchange() {
	out := s.createIssuingExchange(2)

	resp := s.request(http.MethodPost, "/offers/"+out.OfferIDs[0]+"/claim", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var first offerDispositionResponse
	s.decode(resp, &first)
	s.Equal("ISSUING_PENDING", first.Exchange.State)

	resp = s.request(http.MethodPost, "/offers/"+out.OfferIDs[1]+"/claim", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var second offerDispositionResponse
	s.decode(resp, &second)
	s.Equal("COMPLETE", second.Exchange.State)
	s.ElementsMatch(out.OfferIDs, second.Exchange.FinalizedOfferIDs)
}

func (s *RouterSuite) TestDoubleClaimConflicts() {
	out := s.createIssuingExchange(1)

	resp := s.request(http.MethodPost, "/offers/"+out.OfferIDs[0]+"/claim", nil)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/offers/"+out.OfferIDs[0]+"/claim", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *RouterSuite) TestRejectedOfferFinalizesExchange() {
	out := s.createIssuingExchange(1)

	resp := s.request(http.MethodPost, "/offers/"+out.OfferIDs[0]+"/reject", nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var settled offerDispositionResponse
	s.decode(resp, &settled)
	s.Equal("COMPLETE", settled.Exchange.State)
	s.NotNil(settled.Offer.RejectedAt)
}

func (s *RouterSuite) TestPresentationIdentifiesHolder() {
	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{TenantID: "tenant-a", Type: "DISCLOSURE"})
	var created exchangeResponse
	s.decode(resp, &created)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/challenge", nil)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var ch challengeResponse
	s.decode(resp, &ch)
	s.NotEmpty(ch.Challenge)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/presentations", presentationRequest{
		Challenge:  ch.Challenge,
		Credential: "header.payload.sig",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out presentationResponse
	s.decode(resp, &out)
	s.Equal("IDENTIFIED", out.Exchange.State)
	s.Equal("PASS", out.Checks["UNTAMPERED"])
	s.Equal("cred-1", out.Exchange.DisclosureID)
}

func (s *RouterSuite) TestPresentationChecksCounted() {
	before := testutil.ToFloat64(routerMetrics.PresentationChecksTotal.WithLabelValues("UNTAMPERED", "PASS"))

	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{TenantID: "tenant-a", Type: "DISCLOSURE"})
	var created exchangeResponse
	s.decode(resp, &created)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/challenge", nil)
	var ch challengeResponse
	s.decode(resp, &ch)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/presentations", presentationRequest{
		Challenge:  ch.Challenge,
		Credential: "header.payload.sig",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	after := testutil.ToFloat64(routerMetrics.PresentationChecksTotal.WithLabelValues("UNTAMPERED", "PASS"))
	s.Equal(before+1, after)
}

func (s *RouterSuite) TestUntrustedPresentationParksExchange() {
	s.verifier.result.TrustedIssuer = verification.CheckFail

	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{TenantID: "tenant-a", Type: "DISCLOSURE"})
	var created exchangeResponse
	s.decode(resp, &created)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/challenge", nil)
	var ch challengeResponse
	s.decode(resp, &ch)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/presentations", presentationRequest{
		Challenge:  ch.Challenge,
		Credential: "header.payload.sig",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out presentationResponse
	s.decode(resp, &out)
	s.Equal("NOT_IDENTIFIED", out.Exchange.State)
}

func (s *RouterSuite) TestChallengeReplayRejected() {
	resp := s.request(http.MethodPost, "/exchanges", createExchangeRequest{TenantID: "tenant-a", Type: "DISCLOSURE"})
	var created exchangeResponse
	s.decode(resp, &created)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/challenge", nil)
	var ch challengeResponse
	s.decode(resp, &ch)

	body := presentationRequest{Challenge: ch.Challenge, Credential: "header.payload.sig"}
	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/presentations", body)
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.request(http.MethodPost, "/exchanges/"+created.ID+"/presentations", body)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestVerifyEndpointReportsChecks() {
	resp := s.request(http.MethodPost, "/credentials/verify", verifyRequest{Credential: "header.payload.sig"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var out verifyResponse
	s.decode(resp, &out)
	s.True(out.Trusted)
	s.Equal("did:web:issuer.example", out.Issuer)
}

func (s *RouterSuite) TestContentTypeEnforced() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/exchanges", bytes.NewBufferString("{}"))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "text/plain")
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusUnsupportedMediaType, resp.StatusCode)
}

func (s *RouterSuite) TestRequestIDEchoed() {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/health/live", nil)
	s.Require().NoError(err)
	req.Header.Set("X-Request-ID", "req-42")
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal("req-42", resp.Header.Get("X-Request-ID"))
}
