package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"irrl/internal/attestation"
	"irrl/internal/domain"
	"irrl/internal/storage"
	"irrl/pkg/platform/httputil"
)

func (h *handlers) createAttestation(w http.ResponseWriter, r *http.Request) {
	in, err := httputil.Decode[attestation.CreateInput](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.deps.Attestations.Create(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, created)
}

func (h *handlers) getAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := h.deps.Attestations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, att)
}

func (h *handlers) listAttestations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	atts, err := h.deps.Attestations.List(r.Context(), storage.AttestationFilter{
		RealmID: q.Get("realm"),
		Subject: q.Get("subject"),
		Status:  domain.AttestationStatus(q.Get("status")),
		Limit:   intQuery(q.Get("limit")),
		Offset:  intQuery(q.Get("offset")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, atts)
}

func (h *handlers) revokeAttestation(w http.ResponseWriter, r *http.Request) {
	att, err := h.deps.Attestations.Revoke(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, att)
}

type verifyRequest struct {
	Force bool `json:"force"`
}

func (h *handlers) verifyAttestation(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.ContentLength > 0 {
		decoded, err := httputil.Decode[verifyRequest](r)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req = decoded
	}

	outcome, err := h.deps.Attestations.Verify(r.Context(), chi.URLParam(r, "id"), req.Force)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, outcome)
}

func (h *handlers) verificationHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.deps.Attestations.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, runs)
}
