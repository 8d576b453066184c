package httptransport

import (
	"context"
	"net/http"
	"time"

	"irrl/pkg/platform/httputil"
)

// InstanceInfo is the static identity reported on /info.
type InstanceInfo struct {
	Version       string     `json:"version"`
	PublicKey     string     `json:"publicKey"`
	AuditEnabled  bool       `json:"auditEnabled"`
	ResolverCount func() int `json:"-"`
}

// HealthCheck probes one dependency for /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.deps.Checks))
	healthy := true
	for _, check := range h.deps.Checks {
		if err := check.Check(ctx); err != nil {
			deps[check.Name] = err.Error()
			healthy = false
			continue
		}
		deps[check.Name] = "ok"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	httputil.WriteData(w, status, map[string]any{
		"status":       state,
		"dependencies": deps,
		"auditEnabled": h.deps.Info.AuditEnabled,
	})
}

func (h *handlers) info(w http.ResponseWriter, r *http.Request) {
	resolverCount := 0
	if h.deps.Info.ResolverCount != nil {
		resolverCount = h.deps.Info.ResolverCount()
	}
	httputil.WriteData(w, http.StatusOK, map[string]any{
		"version":       h.deps.Info.Version,
		"publicKey":     h.deps.Info.PublicKey,
		"auditEnabled":  h.deps.Info.AuditEnabled,
		"resolverCount": resolverCount,
		"uptimeSeconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
