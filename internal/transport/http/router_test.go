package httptransport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"irrl/internal/attestation"
	"irrl/internal/audit"
	"irrl/internal/evaluation"
	"irrl/internal/platform/metrics"
	"irrl/internal/proof"
	"irrl/internal/realm"
	"irrl/internal/reputation"
	"irrl/internal/resolver"
	"irrl/internal/storage"
	"irrl/internal/trust"
	"irrl/pkg/platform/httputil"
	"irrl/pkg/signing"
)

const adminSecret = "router-test-secret"

// Prometheus collectors register globally, so the package shares one set.
var (
	testHTTPMetrics  = metrics.NewHTTP()
	testAttMetrics   = attestation.NewMetrics()
	testTrustMetrics = trust.NewMetrics()
	testRepMetrics   = reputation.NewMetrics()
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	logger := slog.Default()
	repo := storage.NewMemory()
	keys, err := signing.GenerateKeyPair()
	require.NoError(t, err)

	auditLog := audit.Open(repo.Audit(), logger, true)

	registry := resolver.NewRegistry()
	require.NoError(t, resolver.RegisterBuiltIns(registry, resolver.BuiltInConfig{}))
	resolvers := resolver.NewService(registry, repo.Resolvers(), auditLog, logger)

	repService := reputation.NewService(repo, reputation.NewMemoryCache(), logger, testRepMetrics)

	return NewRouter(Deps{
		Realms:       realm.NewService(repo, auditLog, logger),
		Attestations: attestation.NewService(repo, registry, auditLog, keys, logger, testAttMetrics),
		Evaluations:  evaluation.NewService(repo, auditLog, keys, repService, logger),
		Trust:        trust.NewService(repo, logger, testTrustMetrics),
		Reputation:   repService,
		Proofs:       proof.NewService(repo, auditLog, keys, nil, logger),
		Resolvers:    resolvers,
		Logger:       logger,
		Metrics:      testHTTPMetrics,
		CORSOrigins:  []string{"*"},
		AdminSecret:  adminSecret,
		Info: InstanceInfo{
			Version:       "test",
			PublicKey:     keys.PublicKey,
			AuditEnabled:  true,
			ResolverCount: registry.Count,
		},
		Checks: []HealthCheck{
			{Name: "storage", Check: func(context.Context) error { return nil }},
		},
	})
}

func do(t *testing.T, router http.Handler, method, path string, body any, headers ...string) (*httptest.ResponseRecorder, httputil.Envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return rec, env
}

func dataMap(t *testing.T, env httputil.Envelope) map[string]any {
	t.Helper()
	m, ok := env.Data.(map[string]any)
	require.True(t, ok, "expected object data, got %T", env.Data)
	return m
}

func adminToken(t *testing.T) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops@example.com",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(adminSecret))
	require.NoError(t, err)
	return signed
}

func TestRealmRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec, env := do(t, router, http.MethodPost, "/realms", map[string]any{
		"name": "Root", "domain": "code-review",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, env.Success)
	rootID := dataMap(t, env)["id"].(string)

	rec, env = do(t, router, http.MethodPost, "/realms", map[string]any{
		"name": "Child", "domain": "code-review", "parent": rootID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	child := dataMap(t, env)
	childPath := child["path"].(string)

	t.Run("lookup by id and by slashed path", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/realms/"+rootID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, rootID, dataMap(t, env)["id"])

		rec, env = do(t, router, http.MethodGet, "/realms/"+childPath, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, child["id"], dataMap(t, env)["id"])
	})

	t.Run("children listing", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/realms/"+rootID+"/children", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		children, ok := env.Data.([]any)
		require.True(t, ok)
		require.Len(t, children, 1)
	})

	t.Run("missing realm yields the error envelope", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/realms/realm_missing", nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.False(t, env.Success)
		require.Equal(t, "NOT_FOUND", env.Error.Code)
	})

	t.Run("validation failures map to 400", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/realms", map[string]any{"domain": "d"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})
}

func TestAttestationAndVerifyRoutes(t *testing.T) {
	router := newTestRouter(t)

	_, env := do(t, router, http.MethodPost, "/realms", map[string]any{
		"name": "Root", "domain": "code-review",
	})
	realmID := dataMap(t, env)["id"].(string)

	digest := sha256.Sum256([]byte("open sesame"))
	rec, env := do(t, router, http.MethodPost, "/attestations", map[string]any{
		"realmId":    realmID,
		"attester":   "did:ex:attester",
		"subject":    "did:ex:subject",
		"claim":      "knows-the-passphrase",
		"resolverId": "hash-commitment",
		"evidence": map[string]any{
			"sha256": hex.EncodeToString(digest[:]),
			"value":  "open sesame",
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	attID := dataMap(t, env)["id"].(string)

	rec, env = do(t, router, http.MethodPost, "/verify/"+attID, map[string]any{"force": false})
	require.Equal(t, http.StatusOK, rec.Code)
	outcome := dataMap(t, env)
	att := outcome["attestation"].(map[string]any)
	require.Equal(t, "verified", att["status"])

	t.Run("history lists the run", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/verify/"+attID+"/history", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		runs := env.Data.([]any)
		require.Len(t, runs, 1)
	})

	t.Run("revoke then re-verify conflicts", func(t *testing.T) {
		rec, _ := do(t, router, http.MethodPost, "/attestations/"+attID+"/revoke", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		rec, env := do(t, router, http.MethodPost, "/verify/"+attID, nil)
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "ALREADY_REVOKED", env.Error.Code)
	})

	t.Run("filtered listing", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet,
			"/attestations?realm="+realmID+"&subject=did:ex:subject", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, env.Data.([]any), 1)
	})
}

func TestTrustAndProofRoutes(t *testing.T) {
	router := newTestRouter(t)

	_, env := do(t, router, http.MethodPost, "/realms", map[string]any{
		"name": "Root", "domain": "code-review",
	})
	realmID := dataMap(t, env)["id"].(string)

	submit := func(from, to string, score int) {
		rec, _ := do(t, router, http.MethodPost, "/trust/evaluations", map[string]any{
			"from": from, "to": to, "realmId": realmID,
			"domain": "code-review", "score": score,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	submit("did:ex:alice", "did:ex:bob", 100)
	submit("did:ex:bob", "did:ex:carol", 80)

	t.Run("transitive query crosses two hops", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/trust/transitive", map[string]any{
			"from": "did:ex:alice", "to": "did:ex:carol", "domain": "code-review",
		})
		require.Equal(t, http.StatusOK, rec.Code)
		result := dataMap(t, env)
		// 1.0 and 0.8 edges with one decayed hop and depth attenuation.
		require.InDelta(t, 0.512, result["score"].(float64), 1e-9)
	})

	t.Run("reputation read-through and proof round trip", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet,
			"/trust/reputation/did:ex:carol?realm="+realmID+"&domain=code-review", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.InDelta(t, 80.0, dataMap(t, env)["score"].(float64), 1e-9)

		rec, env = do(t, router, http.MethodPost, "/proofs/generate", map[string]any{
			"subject": "did:ex:carol", "realmId": realmID, "domain": "code-review",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		generated := dataMap(t, env)
		proofID := generated["proofId"].(string)
		envelope := generated["proof"]

		rec, env = do(t, router, http.MethodPost, "/proofs/verify",
			map[string]any{"proof": envelope})
		require.Equal(t, http.StatusOK, rec.Code)
		verdict := dataMap(t, env)
		require.True(t, verdict["valid"].(bool))

		evalID := envelopeEvidenceID(t, router, realmID)
		rec, env = do(t, router, http.MethodPost, "/proofs/evidence-proof",
			map[string]any{"proofId": proofID, "evidenceId": evalID})
		require.Equal(t, http.StatusOK, rec.Code)
		merkleProof := env.Data

		rec, env = do(t, router, http.MethodPost, "/proofs/verify-evidence", map[string]any{
			"merkleProof":  merkleProof,
			"expectedRoot": dataMap(t, env)["root"],
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, dataMap(t, env)["valid"].(bool))
	})

	t.Run("sybil surface", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet,
			"/trust/sybil/did:ex:carol?realm="+realmID+"&domain=code-review", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotEmpty(t, dataMap(t, env)["warnings"])
	})

	t.Run("reputation requires realm and domain", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/trust/reputation/did:ex:carol", nil)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	})
}

// envelopeEvidenceID pulls the evaluation id targeting carol so the inclusion
// proof test has a real leaf.
func envelopeEvidenceID(t *testing.T, router http.Handler, realmID string) string {
	t.Helper()
	rec, env := do(t, router, http.MethodGet,
		"/trust/evaluations?realm="+realmID+"&to=did:ex:carol", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	evals := env.Data.([]any)
	require.Len(t, evals, 1)
	return evals[0].(map[string]any)["id"].(string)
}

func TestResolverRoutesRequireAdmin(t *testing.T) {
	router := newTestRouter(t)

	meta := map[string]any{
		"id": "custom-check", "version": "1.0.0", "name": "Custom Check",
		"description": "metadata-only", "evidenceSchema": map[string]any{},
	}

	rec, env := do(t, router, http.MethodPost, "/resolvers", meta)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	rec, env = do(t, router, http.MethodPost, "/resolvers", meta,
		"Authorization", "Bearer "+adminToken(t))
	require.Equal(t, http.StatusCreated, rec.Code)
	registration := dataMap(t, env)
	token := registration["deprecationToken"].(string)

	t.Run("catalog includes built-ins and the custom entry", func(t *testing.T) {
		rec, env := do(t, router, http.MethodGet, "/resolvers", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		require.GreaterOrEqual(t, len(env.Data.([]any)), 4)
	})

	t.Run("deprecation needs the issued token", func(t *testing.T) {
		rec, env := do(t, router, http.MethodPost, "/resolvers/custom-check/deprecate",
			map[string]any{"deprecationToken": "wrong"},
			"Authorization", "Bearer "+adminToken(t))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "UNAUTHORIZED", env.Error.Code)

		rec, env = do(t, router, http.MethodPost, "/resolvers/custom-check/deprecate",
			map[string]any{"deprecationToken": token},
			"Authorization", "Bearer "+adminToken(t))
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, dataMap(t, env)["deprecated"].(bool))
	})
}

func TestSystemRoutes(t *testing.T) {
	router := newTestRouter(t)

	rec, env := do(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "healthy", dataMap(t, env)["status"])

	rec, env = do(t, router, http.MethodGet, "/info", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := dataMap(t, env)
	require.Equal(t, "test", info["version"])
	require.NotEmpty(t, info["publicKey"])
	require.InDelta(t, 3, info["resolverCount"].(float64), 0.1)

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/realms", nil)
		req.Header.Set("Origin", "https://example.com")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("metrics endpoint serves prometheus text", func(t *testing.T) {
		// Counter vectors only export after their first increment.
		do(t, router, http.MethodGet, "/realms", nil)

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), "irrl_http_requests_total")
	})
}
