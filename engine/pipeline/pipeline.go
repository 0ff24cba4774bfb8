// Package pipeline wires the document-processing stages (extraction,
// language, chunking, indexing) onto the event bus (§5 Concurrency &
// Resource Model). Each Stage is one durable JetStream consumer with a
// bounded worker pool: it watches the wildcard documents subject for the
// one event type that triggers it, ignores every other event type that
// happens to arrive on the same per-document subject, and skips work a
// prior delivery already completed instead of redoing it.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
)

// defaultConcurrency is the per-stage worker pool size when a Stage does
// not set one explicitly (§5: 2-4 workers per stage).
const defaultConcurrency = 4

// IdempotencyCheck reports whether a document has already produced this
// stage's output. Finding true means the stage must not redo the work;
// it republishes the already-recorded success event instead (§5: a
// replayed trigger event is a no-op, not a duplicate side effect).
// tenantID is threaded through explicitly because the metadata stores
// backing most checks are bound to one tenant at construction, not
// passed a tenant per call (pkg/metadata's "pseudo-inheritance").
type IdempotencyCheck func(ctx context.Context, tenantID, documentID string) (bool, error)

// Republish re-emits the success event for a document whose output
// already exists, so a replayed trigger still advances downstream
// consumers exactly as the first delivery did.
type Republish func(ctx context.Context, env events.Envelope, documentID string) error

// Work performs the stage's actual processing for one envelope. Work
// itself is responsible for publishing its own success/failure events,
// matching the shape the existing stage services already have (each
// publishes document.<x> or document.<x>_failed before returning).
type Work func(ctx context.Context, env events.Envelope, documentID string) error

// idPayload extracts document_id from any of this package's wire
// payloads without needing to know which one it is.
type idPayload struct {
	DocumentID string `json:"document_id"`
}

// Stage is one durable consumer on the documents stream (§5, §6).
type Stage struct {
	// Name is the durable consumer name. One durable per stage so each
	// stage tracks its own offset independently of the others.
	Name string
	// Trigger is the only event type this stage acts on; every other
	// event type delivered on the wildcard subject is acked and ignored.
	Trigger events.EventType
	// Concurrency bounds the worker pool. Defaults to 4 when <= 0.
	Concurrency int
	// AlreadyDone reports whether this document already has this
	// stage's output. Nil disables the idempotency check entirely.
	AlreadyDone IdempotencyCheck
	// OnAlreadyDone runs instead of Work when AlreadyDone reports true.
	OnAlreadyDone Republish
	// Work does the actual processing when the document has not
	// already produced this stage's output.
	Work   Work
	Logger *slog.Logger
}

// Start subscribes the stage to the documents stream. The returned
// subscription is the caller's to Drain/Unsubscribe on shutdown.
func (st Stage) Start(nc *nats.Conn) (*nats.Subscription, error) {
	concurrency := st.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	sem := make(chan struct{}, concurrency)
	return events.Subscribe(nc, st.Name, func(ctx context.Context, env events.Envelope) error {
		sem <- struct{}{}
		defer func() { <-sem }()
		return st.handle(ctx, env)
	})
}

// handle runs one envelope through the trigger filter, idempotency
// check, and work/retry decision, independent of any NATS subscription.
// Factored out of Start so the dispatch logic is directly testable.
func (st Stage) handle(ctx context.Context, env events.Envelope) error {
	logger := st.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if env.EventType != st.Trigger {
		return nil
	}

	var id idPayload
	if err := json.Unmarshal(env.Payload, &id); err != nil || id.DocumentID == "" {
		logger.Error("pipeline: envelope missing document_id", "stage", st.Name, "event_id", env.EventID)
		return nil
	}

	if st.AlreadyDone != nil {
		done, err := st.AlreadyDone(ctx, env.TenantID, id.DocumentID)
		if err != nil {
			logger.Debug("pipeline: idempotency check failed, proceeding with work", "stage", st.Name, "document_id", id.DocumentID, "err", err)
		} else if done {
			logger.Info("pipeline: document already processed, republishing", "stage", st.Name, "document_id", id.DocumentID)
			if st.OnAlreadyDone == nil {
				return nil
			}
			if err := st.OnAlreadyDone(ctx, env, id.DocumentID); err != nil {
				logger.Error("pipeline: republish failed", "stage", st.Name, "document_id", id.DocumentID, "err", err)
				return err
			}
			return nil
		}
	}

	err := st.Work(ctx, env, id.DocumentID)
	if err == nil {
		return nil
	}
	if domain.AsKind(err).Retryable() {
		logger.Warn("pipeline: transient failure, will redeliver", "stage", st.Name, "document_id", id.DocumentID, "err", err)
		return err
	}
	// A terminal failure has already been recorded by Work (it
	// publishes the corresponding *_failed event itself), so the
	// message is acked rather than redelivered forever.
	logger.Error("pipeline: terminal failure, not retrying", "stage", st.Name, "document_id", id.DocumentID, "err", err)
	return nil
}

// Runner starts and stops a set of stages together, the unit cmd/
// binaries actually manage.
type Runner struct {
	nc   *nats.Conn
	subs []*nats.Subscription
	mu   sync.Mutex
}

// NewRunner binds a Runner to a NATS connection.
func NewRunner(nc *nats.Conn) *Runner {
	return &Runner{nc: nc}
}

// Start subscribes every stage. If any subscription fails, the stages
// already started are stopped before the error is returned.
func (r *Runner) Start(stages ...Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range stages {
		sub, err := st.Start(r.nc)
		if err != nil {
			r.stopLocked()
			return err
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

// Stop drains every subscription, letting in-flight work finish up to
// NATS's own ack-wait bound rather than dropping it mid-processing, then
// releases them. Stop never leaves persistent partial state because
// every stage's last step is the publish of its own outcome event; a
// worker interrupted before that point simply gets redelivered later.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Runner) stopLocked() {
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.subs = nil
}
