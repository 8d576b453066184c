package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"irrl/internal/realm"
	"irrl/internal/storage"
	"irrl/pkg/platform/httputil"
)

func (h *handlers) createRealm(w http.ResponseWriter, r *http.Request) {
	in, err := httputil.Decode[realm.CreateInput](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	created, err := h.deps.Realms.Create(r.Context(), in)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusCreated, created)
}

func (h *handlers) getRealm(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")
	found, err := h.deps.Realms.Get(r.Context(), ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, found)
}

func (h *handlers) listRealms(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	realms, err := h.deps.Realms.List(r.Context(), storage.RealmFilter{
		Domain: q.Get("domain"),
		Parent: q.Get("parent"),
		Limit:  intQuery(q.Get("limit")),
		Offset: intQuery(q.Get("offset")),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, realms)
}

func (h *handlers) realmChildren(w http.ResponseWriter, r *http.Request) {
	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))
	children, err := h.deps.Realms.Children(r.Context(), chi.URLParam(r, "id"), recursive)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, children)
}

func (h *handlers) deleteRealm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Realms.Delete(r.Context(), id); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]string{"deleted": id})
}

func intQuery(raw string) int {
	n, _ := strconv.Atoi(raw)
	return n
}
