package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"irrl/internal/domain"
	"irrl/internal/proof"
	"irrl/internal/storage"
	"irrl/pkg/merkle"
	"irrl/pkg/platform/httputil"
)

func (h *handlers) generateProof(w http.ResponseWriter, r *http.Request) {
	in, err := httputil.Decode[proof.GenerateInput](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.deps.Proofs.Generate(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, result)
}

type verifyProofRequest struct {
	Proof domain.ProofEnvelope `json:"proof"`
}

func (h *handlers) verifyProof(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[verifyProofRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, h.deps.Proofs.Verify(r.Context(), req.Proof))
}

func (h *handlers) getProof(w http.ResponseWriter, r *http.Request) {
	env, err := h.deps.Proofs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, env)
}

func (h *handlers) listProofs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.deps.Proofs.List(r.Context(), storage.ProofFilter{
		Subject: q.Get("subject"),
		RealmID: q.Get("realm"),
		Limit:   intQuery(q.Get("limit")),
		Offset:  intQuery(q.Get("offset")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, recs)
}

type evidenceProofRequest struct {
	ProofID    string `json:"proofId"`
	EvidenceID string `json:"evidenceId"`
}

func (h *handlers) evidenceProof(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[evidenceProofRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := h.deps.Proofs.EvidenceProof(r.Context(), req.ProofID, req.EvidenceID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, p)
}

type verifyEvidenceRequest struct {
	MerkleProof  merkle.Proof `json:"merkleProof"`
	ExpectedRoot string       `json:"expectedRoot"`
}

func (h *handlers) verifyEvidence(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[verifyEvidenceRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	valid := h.deps.Proofs.VerifyEvidence(req.MerkleProof, req.ExpectedRoot)
	httputil.WriteData(w, http.StatusOK, map[string]bool{"valid": valid})
}
