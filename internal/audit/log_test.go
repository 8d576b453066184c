package audit

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"irrl/internal/domain"
	"irrl/internal/storage"
)

func testLog(t *testing.T, enabled bool) (*Log, *storage.Memory) {
	t.Helper()
	repo := storage.NewMemory()
	return Open(repo.Audit(), slog.Default(), enabled), repo
}

func TestRecordChainsFromGenesis(t *testing.T) {
	ctx := context.Background()
	log, _ := testLog(t, true)

	first, err := log.Record(ctx, domain.AuditRealmCreated, "did:ex:admin",
		[]string{"realm_b", "realm_a"}, map[string]any{"name": "root"})
	require.NoError(t, err)
	require.Equal(t, GenesisHash, first.PreviousHash)
	require.NotEmpty(t, first.Hash)
	require.Equal(t, []string{"realm_a", "realm_b"}, first.EntityIDs, "entity ids are stored sorted")

	second, err := log.Record(ctx, domain.AuditAttestationCreated, "did:ex:alice",
		[]string{"att_1"}, nil)
	require.NoError(t, err)
	require.Equal(t, first.Hash, second.PreviousHash)

	verification, err := log.VerifyChain(ctx)
	require.NoError(t, err)
	require.True(t, verification.Valid)
	require.Equal(t, 2, verification.CheckedEvents)
	require.Equal(t, -1, verification.FirstInvalid)
}

func TestDisabledLogRecordsNothing(t *testing.T) {
	ctx := context.Background()
	log, repo := testLog(t, false)

	event, err := log.Record(ctx, domain.AuditRealmCreated, "did:ex:admin", nil, nil)
	require.NoError(t, err)
	require.Equal(t, DisabledHash, event.PreviousHash)
	require.Equal(t, DisabledHash, event.Hash)

	events, err := repo.Audit().List(ctx)
	require.NoError(t, err)
	require.Empty(t, events)

	verification, err := log.VerifyChain(ctx)
	require.NoError(t, err)
	require.True(t, verification.Valid)
	require.Zero(t, verification.CheckedEvents)
}

func TestConcurrentAppendsStayLinked(t *testing.T) {
	ctx := context.Background()
	log, _ := testLog(t, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Record(ctx, domain.AuditEvaluationCreated, "did:ex:writer",
				[]string{"eval_x"}, nil)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	verification, err := log.VerifyChain(ctx)
	require.NoError(t, err)
	require.True(t, verification.Valid)
	require.Equal(t, 20, verification.CheckedEvents)
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	ctx := context.Background()
	log, repo := testLog(t, true)

	for i := 0; i < 3; i++ {
		_, err := log.Record(ctx, domain.AuditEvaluationCreated, "did:ex:writer",
			[]string{"eval_1"}, map[string]any{"score": i})
		require.NoError(t, err)
	}

	t.Run("payload rewrite", func(t *testing.T) {
		repo.MutateAuditEvent(1, func(e *domain.AuditEvent) {
			e.Payload = map[string]any{"score": 99}
		})
		verification, err := log.VerifyChain(ctx)
		require.NoError(t, err)
		require.False(t, verification.Valid)
		require.Equal(t, 1, verification.FirstInvalid)
	})

	t.Run("recomputed hash still breaks the link", func(t *testing.T) {
		repo.MutateAuditEvent(1, func(e *domain.AuditEvent) {
			hash, err := eventHash(*e)
			require.NoError(t, err)
			e.Hash = hash
		})
		verification, err := log.VerifyChain(ctx)
		require.NoError(t, err)
		require.False(t, verification.Valid)
		// The rewritten event now hashes cleanly, so the successor's
		// previousHash is what fails.
		require.Equal(t, 2, verification.FirstInvalid)
	})
}

func TestRecordResumesFromPersistedTail(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemory()

	first := Open(repo.Audit(), slog.Default(), true)
	tail, err := first.Record(ctx, domain.AuditRealmCreated, "did:ex:admin", []string{"realm_a"}, nil)
	require.NoError(t, err)

	// A fresh appender over the same store must chain from the stored tail.
	second := Open(repo.Audit(), slog.Default(), true)
	next, err := second.Record(ctx, domain.AuditRealmDeleted, "did:ex:admin", []string{"realm_a"}, nil)
	require.NoError(t, err)
	require.Equal(t, tail.Hash, next.PreviousHash)
}
