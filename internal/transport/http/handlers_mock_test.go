package httptransport

import (
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"irrl/internal/domain"
	"irrl/internal/transport/http/mocks"
	"irrl/internal/trust"
	dErrors "irrl/pkg/domain-errors"
)

// mockRouter wires only the trust surface; the other services are never hit.
func mockRouter(t *testing.T) (http.Handler, *mocks.MockTrustService, *mocks.MockReputationService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	trustMock := mocks.NewMockTrustService(ctrl)
	repMock := mocks.NewMockReputationService(ctrl)

	router := NewRouter(Deps{
		Trust:      trustMock,
		Reputation: repMock,
		Logger:     slog.Default(),
		Metrics:    testHTTPMetrics,
	})
	return router, trustMock, repMock
}

func TestTransitiveHandlerPassesQueryThrough(t *testing.T) {
	router, trustMock, _ := mockRouter(t)

	trustMock.EXPECT().
		Transitive(gomock.Any(), trust.Query{
			From: "A", To: "B", Domain: "d", MaxDepth: 3,
		}).
		Return(trust.Result{Score: 0.5, Confidence: 1.0 / 3.0}, nil)

	rec, env := do(t, router, http.MethodPost, "/trust/transitive", map[string]any{
		"from": "A", "to": "B", "domain": "d", "maxDepth": 3,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 0.5, dataMap(t, env)["score"].(float64), 1e-9)
}

func TestInternalErrorsStayGeneric(t *testing.T) {
	router, trustMock, _ := mockRouter(t)

	trustMock.EXPECT().
		Transitive(gomock.Any(), gomock.Any()).
		Return(trust.Result{}, dErrors.New(dErrors.CodeInternal, "edge load exploded: secret detail"))

	rec, env := do(t, router, http.MethodPost, "/trust/transitive", map[string]any{
		"from": "A", "to": "B", "domain": "d",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "INTERNAL_ERROR", env.Error.Code)
	require.Equal(t, "internal error", env.Error.Message)
}

func TestReputationHandlerForwardsRefresh(t *testing.T) {
	router, _, repMock := mockRouter(t)

	repMock.EXPECT().
		Get(gomock.Any(), "did:ex:s", "realm_r", "d", true).
		Return(domain.Reputation{Subject: "did:ex:s", Score: 73.2}, nil)

	rec, env := do(t, router, http.MethodGet,
		"/trust/reputation/did:ex:s?realm=realm_r&domain=d&refresh=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.InDelta(t, 73.2, dataMap(t, env)["score"].(float64), 1e-9)
}
