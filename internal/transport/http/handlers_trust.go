package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"irrl/internal/evaluation"
	"irrl/internal/storage"
	"irrl/internal/trust"
	dErrors "irrl/pkg/domain-errors"
	"irrl/pkg/platform/httputil"
)

func (h *handlers) submitEvaluation(w http.ResponseWriter, r *http.Request) {
	in, err := httputil.Decode[evaluation.Input](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	eval, err := h.deps.Evaluations.Upsert(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, eval)
}

func (h *handlers) listEvaluations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	evals, err := h.deps.Evaluations.List(r.Context(), storage.EvaluationFilter{
		RealmID:    q.Get("realm"),
		Domain:     q.Get("domain"),
		FromEntity: q.Get("from"),
		ToEntity:   q.Get("to"),
		Limit:      intQuery(q.Get("limit")),
		Offset:     intQuery(q.Get("offset")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, evals)
}

func (h *handlers) transitiveTrust(w http.ResponseWriter, r *http.Request) {
	q, err := httputil.Decode[trust.Query](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.deps.Trust.Transitive(r.Context(), q)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}

func (h *handlers) getReputation(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	q := r.URL.Query()
	realmID, dom := q.Get("realm"), q.Get("domain")
	if realmID == "" || dom == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"realm and domain query parameters are required"))
		return
	}
	refresh, _ := strconv.ParseBool(q.Get("refresh"))

	rep, err := h.deps.Reputation.Get(r.Context(), subject, realmID, dom, refresh)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, rep)
}

func (h *handlers) getSybil(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	q := r.URL.Query()
	realmID, dom := q.Get("realm"), q.Get("domain")
	if realmID == "" || dom == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation,
			"realm and domain query parameters are required"))
		return
	}

	result, err := h.deps.Reputation.Sybil(r.Context(), subject, realmID, dom)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, result)
}
