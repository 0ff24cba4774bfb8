// Package events defines the wire schema for the document pipeline's
// event bus (§6) and the JetStream plumbing that gives it the ordering
// and delivery guarantees §5 requires: one stream, one subject per
// document so JetStream preserves per-document ordering, durable
// consumers with explicit ack so offsets commit only after a stage's
// terminal outcome, and at-least-once delivery with idempotent
// consumers making replay safe.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// EventType names one of the wire events on the documents stream (§6).
type EventType string

const (
	DocumentUploaded         EventType = "document.uploaded"
	DocumentExtracted        EventType = "document.extracted"
	DocumentExtractionFailed EventType = "document.extraction_failed"
	DocumentLanguageTagged   EventType = "document.language_tagged"
	DocumentChunked          EventType = "document.chunked"
	DocumentChunkingFailed   EventType = "document.chunking_failed"
	DocumentIndexed          EventType = "document.indexed"
	DocumentIndexingFailed   EventType = "document.indexing_failed"
)

// StreamName is the single JetStream stream backing the `documents`
// topic (§6). Subjects are `documents.<document_id>` so that each
// document's events land on one JetStream subject and are delivered to
// any one consumer in order, which is how the document_id partition-key
// ordering guarantee in §5 is realized on top of NATS.
const StreamName = "documents"

// Subject returns the per-document subject events for documentID are
// published and consumed on.
func Subject(documentID string) string {
	return StreamName + "." + documentID
}

// WildcardSubject matches every document's events, for consumers that
// process every document regardless of ID (e.g. a stage worker).
const WildcardSubject = StreamName + ".>"

// Envelope is the wire record on the bus (§3, §6).
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	TenantID      string          `json:"tenant_id"`
	CorrelationID string          `json:"correlation_id"`
	Payload       json.RawMessage `json:"payload"`
}

// Payload schemas (§6).

type UploadedPayload struct {
	DocumentID    string `json:"document_id"`
	FileCategory  string `json:"file_category"`
	ContentType   string `json:"content_type"`
	SizeBytes     int64  `json:"size_bytes"`
	StorageBucket string `json:"storage_bucket"`
	StorageKey    string `json:"storage_key"`
}

type ExtractedPayload struct {
	DocumentID       string  `json:"document_id"`
	ExtractionID     string  `json:"extraction_id"`
	ExtractionType   string  `json:"extraction_type"`
	Text             string  `json:"text"`
	PageCount        int     `json:"page_count"`
	Language         string  `json:"language"`
	Confidence       float64 `json:"confidence"`
	ProcessingTimeMS int64   `json:"processing_time_ms"`
}

type ExtractionFailedPayload struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// LanguageTaggedPayload is published after S3's detection/normalization
// pass completes, ahead of chunking. It carries the document-level
// summary only; per-segment detail lives in LinguisticArtifact rows, not
// on the wire (§3, §4.3).
type LanguageTaggedPayload struct {
	DocumentID      string  `json:"document_id"`
	PrimaryLanguage string  `json:"primary_language"`
	Script          string  `json:"script"`
	Confidence      float64 `json:"confidence"`
	IsMixed         bool    `json:"is_mixed"`
	SegmentsTagged  int     `json:"segments_tagged"`
}

type ChunkWire struct {
	ChunkID    string `json:"chunk_id"`
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	PageNumber *int   `json:"page_number,omitempty"`
	Language   string `json:"language"`
}

type ChunkedPayload struct {
	DocumentID string      `json:"document_id"`
	ChunkCount int         `json:"chunk_count"`
	Strategy   string      `json:"strategy"`
	Chunks     []ChunkWire `json:"chunks"`
}

type ChunkingFailedPayload struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

type IndexedPayload struct {
	DocumentID     string `json:"document_id"`
	VectorsIndexed int    `json:"vectors_indexed"`
	Collection     string `json:"collection"`
}

type IndexingFailedPayload struct {
	DocumentID string `json:"document_id"`
	Error      string `json:"error"`
}

// natsHeaderCarrier adapts nats.Msg headers for OTel trace propagation,
// matching pkg/natsutil's carrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher publishes envelopes onto the documents stream.
type Publisher struct {
	js nats.JetStreamContext
}

// NewPublisher ensures the documents stream exists and returns a
// Publisher bound to it.
func NewPublisher(nc *nats.Conn) (*Publisher, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("events: jetstream context: %w", err)
	}
	if _, err := js.StreamInfo(StreamName); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamName,
			Subjects: []string{WildcardSubject},
		})
		if err != nil {
			return nil, fmt.Errorf("events: add stream: %w", err)
		}
	}
	return &Publisher{js: js}, nil
}

// Publish wraps payload in an Envelope and publishes it to the subject
// for documentID, injecting trace context into NATS headers.
func (p *Publisher) Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType EventType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal payload: %w", err)
	}
	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		Timestamp:     time.Now(),
		TenantID:      tenantID,
		CorrelationID: correlationID,
		Payload:       body,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	msg := &nats.Msg{Subject: Subject(documentID), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	_, err = p.js.PublishMsg(msg)
	if err != nil {
		return fmt.Errorf("events: publish: %w", err)
	}
	return nil
}

// Handler processes one envelope. Returning a transient error leaves the
// message unacked for JetStream redelivery; any other outcome (nil error
// or a terminal failure already translated into a *_failed event by the
// caller) results in an ack, per §7's "commit offset only after terminal
// outcome" propagation policy.
type Handler func(ctx context.Context, env Envelope) error

// Subscribe creates a durable, explicit-ack JetStream consumer named
// durableName on the wildcard documents subject and dispatches every
// envelope to handler. One durable name is used per stage so that each
// stage tracks its own offset independently (§5: across-stage ordering
// emerges from the stage graph, not from a single shared cursor).
func Subscribe(nc *nats.Conn, durableName string, handler Handler) (*nats.Subscription, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("events: jetstream context: %w", err)
	}
	return js.Subscribe(WildcardSubject, func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			// Malformed payloads can never be retried into validity; ack and drop.
			_ = msg.Ack()
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*natsHeaderCarrier)(msg))
		if err := handler(ctx, env); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	}, nats.Durable(durableName), nats.ManualAck(), nats.AckWait(30*time.Second))
}
