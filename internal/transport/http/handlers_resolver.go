package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"irrl/internal/domain"
	"irrl/pkg/platform/httputil"
)

func (h *handlers) listResolvers(w http.ResponseWriter, r *http.Request) {
	entries, err := h.deps.Resolvers.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, entries)
}

func (h *handlers) getResolver(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.Resolvers.Get(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("version"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, entry)
}

func (h *handlers) registerResolver(w http.ResponseWriter, r *http.Request) {
	meta, err := httputil.Decode[domain.ResolverMetadata](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	reg, err := h.deps.Resolvers.Register(r.Context(), meta)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, reg)
}

type deprecateRequest struct {
	DeprecationToken string `json:"deprecationToken"`
}

func (h *handlers) deprecateResolver(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[deprecateRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	desc, err := h.deps.Resolvers.Deprecate(r.Context(), chi.URLParam(r, "id"), req.DeprecationToken)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, desc)
}

type testResolverRequest struct {
	Evidence map[string]any `json:"evidence"`
}

func (h *handlers) testResolver(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[testResolverRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.deps.Resolvers.Test(r.Context(), chi.URLParam(r, "id"), req.Evidence)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}
