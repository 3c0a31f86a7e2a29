package httptransport

import (
	"net/http"
	"time"

	"credex/internal/transport/http/json"
	"credex/internal/transport/http/shared"
	"credex/internal/verification"
	dErrors "credex/pkg/domain-errors"
)

type verifyRequest struct {
	Credential string `json:"credential"`
}

type verifyResponse struct {
	Trusted   bool              `json:"trusted"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"checkedAt"`
	Issuer    string            `json:"issuer,omitempty"`
	Subject   string            `json:"subject,omitempty"`
}

// handleVerifyCredential runs the verification pipeline on a standalone
// credential. Check failures are reported in the body with a 200; only
// infrastructure faults produce an error status.
func (h *Handler) handleVerifyCredential(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.Decode(r, &req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed request body"))
		return
	}
	if req.Credential == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "credential is required"))
		return
	}

	result, credential, err := h.verifier.Verify(r.Context(), req.Credential)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	resp := verifyResponse{
		Trusted:   result.Trusted(),
		Checks:    checksMap(result),
		CheckedAt: result.CheckedAt,
	}
	if credential != nil {
		resp.Issuer = credential.Issuer
		resp.Subject = credential.Subject
	}
	json.WriteJSON(w, http.StatusOK, resp)
}

func checksMap(result verification.Result) map[string]string {
	return map[string]string{
		"UNTAMPERED":     string(result.Untampered),
		"TRUSTED_ISSUER": string(result.TrustedIssuer),
		"UNREVOKED":      string(result.Unrevoked),
		"UNEXPIRED":      string(result.Unexpired),
	}
}
