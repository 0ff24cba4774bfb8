package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/waqedi/platform/engine/chunking"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/engine/extraction"
	"github.com/waqedi/platform/engine/indexing"
	"github.com/waqedi/platform/engine/lang"
	"github.com/waqedi/platform/pkg/repo"
)

// listAllOpts bounds the ListByDocument scans this package runs as
// idempotency checks and republish lookups. A document's artifact/chunk
// count is small enough per tenant that a single page comfortably
// covers it; the stores do not yet expose a document-scoped index, so
// every call scans the tenant's full list and filters client-side.
var listAllOpts = repo.ListOpts{Limit: 10000}

// ExtractionResultLookup is the subset of pkg/metadata.ExtractionStore
// the extraction stage needs for idempotency and republish. tenantID is
// explicit because the concrete store is bound to one tenant at
// construction; callers resolve the right instance from tenantID.
type ExtractionResultLookup interface {
	GetByDocument(ctx context.Context, tenantID, documentID string) (domain.ExtractionResult, error)
}

// LinguisticLookup is the subset of pkg/metadata.LinguisticStore the
// language and chunking stages need.
type LinguisticLookup interface {
	ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.LinguisticArtifact, error)
}

// ChunkLookup is the subset of pkg/metadata.ChunkStore the chunking and
// indexing stages need.
type ChunkLookup interface {
	ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.Chunk, error)
}

// DocumentLookup is the subset of pkg/metadata.DocumentStore the
// indexing stage needs to read a document's collection label and flip
// its terminal status.
type DocumentLookup interface {
	Get(ctx context.Context, tenantID, id string) (domain.Document, error)
	TransitionStatus(ctx context.Context, tenantID, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error)
}

// Publisher is the subset of *events.Publisher every stage needs to
// republish a success event on a replayed trigger.
type Publisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// ExtractionServiceFor resolves the tenant-bound extraction.Service for
// one tenant. extraction.Service embeds a DocumentRepo/ResultRepo that
// pkg/metadata binds to a tenant at construction, so a worker serving
// every tenant on the shared event bus cannot hold a single Service; it
// caches one per tenant instead (see cmd/worker).
type ExtractionServiceFor func(tenantID string) *extraction.Service

// LangServiceFor resolves the tenant-bound lang.Service for one tenant.
type LangServiceFor func(tenantID string) *lang.Service

// ChunkingServiceFor resolves the tenant-bound chunking.Service for one
// tenant.
type ChunkingServiceFor func(tenantID string) *chunking.Service

// ExtractionStage wires S2 onto document.uploaded (§4.2). Replaying an
// uploaded event for a document that already has an ExtractionResult
// republishes document.extracted instead of re-running OCR/STT.
func ExtractionStage(svcFor ExtractionServiceFor, results ExtractionResultLookup, publisher Publisher, concurrency int, logger *slog.Logger) Stage {
	return Stage{
		Name:        "extraction",
		Trigger:     events.DocumentUploaded,
		Concurrency: concurrency,
		Logger:      logger,
		AlreadyDone: func(ctx context.Context, tenantID, documentID string) (bool, error) {
			_, err := results.GetByDocument(ctx, tenantID, documentID)
			return err == nil, nil
		},
		OnAlreadyDone: func(ctx context.Context, env events.Envelope, documentID string) error {
			result, err := results.GetByDocument(ctx, env.TenantID, documentID)
			if err != nil {
				return err
			}
			return publisher.Publish(ctx, documentID, env.TenantID, env.CorrelationID, events.DocumentExtracted, events.ExtractedPayload{
				DocumentID:       documentID,
				ExtractionID:     result.ID,
				Text:             result.Text,
				PageCount:        len(result.Pages),
				Language:         result.DetectedLanguage,
				Confidence:       meanPageConfidence(result.Pages),
				ProcessingTimeMS: result.ProcessingTimeMS,
			})
		},
		Work: func(ctx context.Context, env events.Envelope, documentID string) error {
			var payload events.UploadedPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil
			}
			return svcFor(env.TenantID).HandleUploaded(ctx, documentID, env.TenantID, env.CorrelationID, payload)
		},
	}
}

// LangStage wires S3 onto document.extracted (§4.3). Replaying an
// extracted event for a document that already has LinguisticArtifacts
// republishes document.language_tagged instead of re-detecting/
// re-normalizing.
func LangStage(svcFor LangServiceFor, extractionResults ExtractionResultLookup, artifacts LinguisticLookup, publisher Publisher, concurrency int, logger *slog.Logger) Stage {
	return Stage{
		Name:        "lang",
		Trigger:     events.DocumentExtracted,
		Concurrency: concurrency,
		Logger:      logger,
		AlreadyDone: func(ctx context.Context, tenantID, documentID string) (bool, error) {
			existing, err := artifacts.ListByDocument(ctx, tenantID, documentID, listAllOpts)
			if err != nil {
				return false, err
			}
			return len(existing) > 0, nil
		},
		OnAlreadyDone: func(ctx context.Context, env events.Envelope, documentID string) error {
			existing, err := artifacts.ListByDocument(ctx, env.TenantID, documentID, listAllOpts)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				return nil
			}
			head := existing[0]
			return publisher.Publish(ctx, documentID, env.TenantID, env.CorrelationID, events.DocumentLanguageTagged, events.LanguageTaggedPayload{
				DocumentID:      documentID,
				PrimaryLanguage: head.PrimaryLanguage,
				Script:          string(head.Script),
				Confidence:      head.DetectionConfidence,
				IsMixed:         head.IsMixed,
				SegmentsTagged:  len(existing),
			})
		},
		Work: func(ctx context.Context, env events.Envelope, documentID string) error {
			extractionResult, err := extractionResults.GetByDocument(ctx, env.TenantID, documentID)
			if err != nil {
				return domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "pipeline: load extraction result", err)
			}
			_, err = svcFor(env.TenantID).Process(ctx, documentID, env.TenantID, env.CorrelationID, extractionResult)
			return err
		},
	}
}

// ChunkingStage wires S4 onto document.language_tagged (§4.4). Replaying
// a language_tagged event for a document that already has Chunks
// republishes document.chunked instead of re-splitting.
func ChunkingStage(svcFor ChunkingServiceFor, artifacts LinguisticLookup, chunks ChunkLookup, strategy chunking.Strategy, publisher Publisher, concurrency int, logger *slog.Logger) Stage {
	return Stage{
		Name:        "chunking",
		Trigger:     events.DocumentLanguageTagged,
		Concurrency: concurrency,
		Logger:      logger,
		AlreadyDone: func(ctx context.Context, tenantID, documentID string) (bool, error) {
			existing, err := chunks.ListByDocument(ctx, tenantID, documentID, listAllOpts)
			if err != nil {
				return false, err
			}
			return len(existing) > 0, nil
		},
		OnAlreadyDone: func(ctx context.Context, env events.Envelope, documentID string) error {
			existing, err := chunks.ListByDocument(ctx, env.TenantID, documentID, listAllOpts)
			if err != nil {
				return err
			}
			if len(existing) == 0 {
				return nil
			}
			return publisher.Publish(ctx, documentID, env.TenantID, env.CorrelationID, events.DocumentChunked, events.ChunkedPayload{
				DocumentID: documentID,
				ChunkCount: len(existing),
				Strategy:   string(strategy),
				Chunks:     wireChunks(existing),
			})
		},
		Work: func(ctx context.Context, env events.Envelope, documentID string) error {
			segments, err := artifacts.ListByDocument(ctx, env.TenantID, documentID, listAllOpts)
			if err != nil {
				return domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "pipeline: load linguistic artifacts", err)
			}
			_, err = svcFor(env.TenantID).Process(ctx, documentID, env.TenantID, env.CorrelationID, segments)
			return err
		},
	}
}

// IndexingStage wires S5 onto document.chunked (§4.5). Replaying a
// chunked event for a document already in StatusProcessed republishes
// document.indexed instead of re-embedding. Indexing is also where the
// document's terminal Processing -> Processed transition happens, since
// S5 is the pipeline's last stage. indexing.Service carries no
// tenant-bound dependency (embedder/vector store/publisher all take
// tenantID per call), so unlike the earlier stages it is a single
// shared instance rather than a per-tenant factory.
func IndexingStage(svc *indexing.Service, documents DocumentLookup, chunks ChunkLookup, publisher Publisher, clock func() time.Time, concurrency int, logger *slog.Logger) Stage {
	return Stage{
		Name:        "indexing",
		Trigger:     events.DocumentChunked,
		Concurrency: concurrency,
		Logger:      logger,
		AlreadyDone: func(ctx context.Context, tenantID, documentID string) (bool, error) {
			doc, err := documents.Get(ctx, tenantID, documentID)
			if err != nil {
				return false, err
			}
			return doc.Status == domain.StatusProcessed, nil
		},
		OnAlreadyDone: func(ctx context.Context, env events.Envelope, documentID string) error {
			doc, err := documents.Get(ctx, env.TenantID, documentID)
			if err != nil {
				return err
			}
			existing, err := chunks.ListByDocument(ctx, env.TenantID, documentID, listAllOpts)
			if err != nil {
				return err
			}
			return publisher.Publish(ctx, documentID, env.TenantID, env.CorrelationID, events.DocumentIndexed, events.IndexedPayload{
				DocumentID:     documentID,
				VectorsIndexed: len(existing),
				Collection:     doc.Collection,
			})
		},
		Work: func(ctx context.Context, env events.Envelope, documentID string) error {
			var payload events.ChunkedPayload
			if err := json.Unmarshal(env.Payload, &payload); err != nil {
				return nil
			}
			doc, err := documents.Get(ctx, env.TenantID, documentID)
			if err != nil {
				return domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "pipeline: load document", err)
			}
			chunkRows := make([]domain.Chunk, len(payload.Chunks))
			for i, c := range payload.Chunks {
				chunkRows[i] = domain.Chunk{
					ChunkID:    c.ChunkID,
					DocumentID: documentID,
					TenantID:   env.TenantID,
					Text:       c.Text,
					Language:   c.Language,
					TokenCount: c.TokenCount,
					PageNumber: c.PageNumber,
					ChunkIndex: c.Index,
				}
			}
			if err := svc.Process(ctx, documentID, env.TenantID, env.CorrelationID, doc.Collection, chunkRows); err != nil {
				return err
			}
			_, err = documents.TransitionStatus(ctx, env.TenantID, documentID, domain.StatusProcessed, clock())
			return err
		},
	}
}

func meanPageConfidence(pages []domain.PageConfidence) float64 {
	if len(pages) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range pages {
		total += p.Confidence
	}
	return total / float64(len(pages))
}

func wireChunks(chunks []domain.Chunk) []events.ChunkWire {
	wire := make([]events.ChunkWire, len(chunks))
	for i, c := range chunks {
		wire[i] = events.ChunkWire{
			ChunkID:    c.ChunkID,
			Index:      c.ChunkIndex,
			Text:       c.Text,
			TokenCount: c.TokenCount,
			PageNumber: c.PageNumber,
			Language:   c.Language,
		}
	}
	return wire
}
