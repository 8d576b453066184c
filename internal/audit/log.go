// Package audit maintains the tamper-evident event chain. Every mutating
// operation in the system records an event whose hash covers the previous
// event's hash, so any rewrite of history is detectable by a full re-walk.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"irrl/internal/domain"
	"irrl/internal/storage"
	"irrl/pkg/canonical"
	"irrl/pkg/requestcontext"
)

// GenesisHash seeds the chain: the first event links to it instead of a
// predecessor.
const GenesisHash = "genesis"

// Log is the hash-chained audit appender. Appends are serialized by a mutex
// so previousHash always names the true chain tail, even under concurrent
// writers.
type Log struct {
	store   storage.AuditStore
	logger  *slog.Logger
	enabled bool

	mu       chan struct{} // capacity-1 semaphore, held across load+hash+append
	lastHash string
	loaded   bool

	mirror Mirror
}

// Mirror receives a copy of every recorded event. Implementations must not
// block the chain; failures are logged and dropped.
type Mirror interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}

// Open builds the audit log. When enabled is false every Record call is a
// no-op and the chain stays empty.
func Open(store storage.AuditStore, logger *slog.Logger, enabled bool) *Log {
	return &Log{
		store:   store,
		logger:  logger,
		enabled: enabled,
		mu:      make(chan struct{}, 1),
	}
}

// WithMirror attaches a secondary sink, typically the Kafka publisher.
func (l *Log) WithMirror(m Mirror) *Log {
	l.mirror = m
	return l
}

// Enabled reports whether events are being recorded.
func (l *Log) Enabled() bool { return l.enabled }

// chainContent is the exact structure hashed for each event. Field order is
// irrelevant since hashing canonicalizes, but names are part of the format.
type chainContent struct {
	Type         string         `json:"type"`
	Actor        string         `json:"actor"`
	EntityIDs    []string       `json:"entityIds"`
	Payload      map[string]any `json:"payload"`
	Timestamp    string         `json:"timestamp"`
	PreviousHash string         `json:"previousHash"`
}

func eventHash(event domain.AuditEvent) (string, error) {
	ids := append([]string(nil), event.EntityIDs...)
	sort.Strings(ids)
	return canonical.HashObject(chainContent{
		Type:         event.Type,
		Actor:        event.Actor,
		EntityIDs:    ids,
		Payload:      event.Payload,
		Timestamp:    event.Timestamp.UTC().Format(time.RFC3339Nano),
		PreviousHash: event.PreviousHash,
	})
}

// DisabledHash marks events produced while the log is switched off.
const DisabledHash = "disabled"

// Record appends an event to the chain and returns it. With the log disabled
// it still returns a well-formed event, with previousHash and hash set to
// "disabled", but persists nothing.
func (l *Log) Record(ctx context.Context, eventType, actor string, entityIDs []string, payload map[string]any) (domain.AuditEvent, error) {
	if !l.enabled {
		ids := append([]string(nil), entityIDs...)
		sort.Strings(ids)
		return domain.AuditEvent{
			ID:           "audit_" + uuid.NewString(),
			Type:         eventType,
			Actor:        actor,
			EntityIDs:    ids,
			Payload:      payload,
			PreviousHash: DisabledHash,
			Hash:         DisabledHash,
			Timestamp:    requestcontext.Now(ctx).UTC(),
		}, nil
	}

	select {
	case l.mu <- struct{}{}:
		defer func() { <-l.mu }()
	case <-ctx.Done():
		return domain.AuditEvent{}, ctx.Err()
	}

	if !l.loaded {
		tail, err := l.store.Last(ctx)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			l.lastHash = GenesisHash
		case err != nil:
			return domain.AuditEvent{}, fmt.Errorf("load chain tail: %w", err)
		default:
			l.lastHash = tail.Hash
		}
		l.loaded = true
	}

	ids := append([]string(nil), entityIDs...)
	sort.Strings(ids)

	event := domain.AuditEvent{
		ID:           "audit_" + uuid.NewString(),
		Type:         eventType,
		Actor:        actor,
		EntityIDs:    ids,
		Payload:      payload,
		PreviousHash: l.lastHash,
		Timestamp:    requestcontext.Now(ctx).UTC(),
	}
	hash, err := eventHash(event)
	if err != nil {
		return domain.AuditEvent{}, fmt.Errorf("hash audit event: %w", err)
	}
	event.Hash = hash

	if err := l.store.Append(ctx, event); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("append audit event: %w", err)
	}
	l.lastHash = event.Hash

	if l.mirror != nil {
		if err := l.mirror.Publish(ctx, event); err != nil {
			l.logger.WarnContext(ctx, "audit mirror publish failed",
				"event_id", event.ID, "error", err)
		}
	}
	return event, nil
}

// List returns the whole chain in append order.
func (l *Log) List(ctx context.Context) ([]domain.AuditEvent, error) {
	return l.store.List(ctx)
}

// VerifyChain re-walks the chain from genesis, recomputing every hash and
// checking every link. The first discrepancy stops the walk.
func (l *Log) VerifyChain(ctx context.Context) (domain.ChainVerification, error) {
	events, err := l.store.List(ctx)
	if err != nil {
		return domain.ChainVerification{}, fmt.Errorf("list audit events: %w", err)
	}

	previous := GenesisHash
	for i, event := range events {
		if event.PreviousHash != previous {
			return invalidAt(i, len(events)), nil
		}
		recomputed, err := eventHash(event)
		if err != nil {
			return domain.ChainVerification{}, fmt.Errorf("rehash event %s: %w", event.ID, err)
		}
		if recomputed != event.Hash {
			return invalidAt(i, len(events)), nil
		}
		previous = event.Hash
	}
	return domain.ChainVerification{Valid: true, CheckedEvents: len(events), FirstInvalid: -1}, nil
}

func invalidAt(index, total int) domain.ChainVerification {
	return domain.ChainVerification{Valid: false, CheckedEvents: total, FirstInvalid: index}
}
