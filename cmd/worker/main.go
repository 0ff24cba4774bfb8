// Command worker runs the event-driven document pipeline: extraction,
// language tagging, chunking, and indexing (§4.2-§4.5, §5). One process
// subscribes to every tenant's events on the shared documents subject
// and lazily builds the tenant-bound services each stage needs.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/waqedi/platform/engine/chunking"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/engine/extraction"
	"github.com/waqedi/platform/engine/indexing"
	"github.com/waqedi/platform/engine/lang"
	"github.com/waqedi/platform/engine/pipeline"
	"github.com/waqedi/platform/pkg/embedclient"
	"github.com/waqedi/platform/pkg/llmclient"
	"github.com/waqedi/platform/pkg/metadata"
	"github.com/waqedi/platform/pkg/metrics"
	"github.com/waqedi/platform/pkg/objectstore"
	"github.com/waqedi/platform/pkg/ocrclient"
	"github.com/waqedi/platform/pkg/repo"
	"github.com/waqedi/platform/pkg/sttclient"
	"github.com/waqedi/platform/pkg/vectorstore"
)

var met = metrics.New()

var mTenantsActive = met.Gauge("waqedi_worker_tenants_cached", "Distinct tenants with a cached per-tenant service")

const vectorDims = 768

func main() {
	var (
		natsURL         = flag.String("nats", nats.DefaultURL, "NATS URL")
		neo4jURL        = flag.String("neo4j", "neo4j://localhost:7687", "Neo4j bolt URL")
		neo4jUser       = flag.String("neo4j-user", "neo4j", "Neo4j username")
		neo4jPass       = flag.String("neo4j-pass", "password", "Neo4j password")
		settingsDSN     = flag.String("settings-dsn", "", "Postgres DSN for tenant settings")
		objectEndpoint  = flag.String("object-store-endpoint", "", "S3-compatible endpoint (empty for AWS)")
		objectRegion    = flag.String("object-store-region", "us-east-1", "Object store region")
		objectAccess    = flag.String("object-store-access-key", "", "Object store access key")
		objectSecret    = flag.String("object-store-secret-key", "", "Object store secret key")
		objectBucket    = flag.String("object-store-bucket", "waqedi-documents", "Object store bucket")
		objectPathStyle = flag.Bool("object-store-path-style", true, "Use path-style addressing")
		qdrantAddr      = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection      = flag.String("collection", "waqedi_vectors", "Qdrant collection name")
		embedURL        = flag.String("embed-url", "http://localhost:8081", "Embedding service URL")
		embedModel      = flag.String("embed-model", "nomic-embed-text", "Embedding model name")
		embedVersion    = flag.String("embed-version", "v1", "Embedding model version")
		llmURL          = flag.String("llm-url", "http://localhost:8082", "Translation LLM URL")
		llmModel        = flag.String("llm-model", "default", "Translation LLM model")
		ocrURL          = flag.String("ocr-url", "http://localhost:8084", "OCR service URL")
		ocrModel        = flag.String("ocr-model", "default", "OCR model id")
		ocrVersion      = flag.String("ocr-version", "v1", "OCR model version")
		sttURL          = flag.String("stt-url", "http://localhost:8085", "Speech-to-text service URL")
		sttModel        = flag.String("stt-model", "default", "STT model id")
		sttVersion      = flag.String("stt-version", "v1", "STT model version")
		tempDir         = flag.String("temp-dir", "/tmp/waqedi-extraction", "scratch dir for OCR rasterization/STT audio")
		concurrency     = flag.Int("concurrency", 4, "per-stage worker pool size")
		metricsPort     = flag.Int("metrics-port", 9091, "metrics /metrics port")
	)
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	met.ServeAsync(*metricsPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := neo4j.NewDriverWithContext(*neo4jURL, neo4j.BasicAuth(*neo4jUser, *neo4jPass, ""))
	if err != nil {
		logger.Error("neo4j connect failed", "err", err)
		os.Exit(1)
	}
	defer driver.Close(ctx)
	if err := driver.VerifyConnectivity(ctx); err != nil {
		logger.Error("neo4j verify failed", "err", err)
		os.Exit(1)
	}

	blobs, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:  *objectEndpoint,
		Region:    *objectRegion,
		AccessKey: *objectAccess,
		SecretKey: *objectSecret,
		Bucket:    *objectBucket,
		PathStyle: *objectPathStyle,
	})
	if err != nil {
		logger.Error("object store connect failed", "err", err)
		os.Exit(1)
	}

	vectors, err := vectorstore.New(*qdrantAddr, *collection)
	if err != nil {
		logger.Error("qdrant connect failed", "err", err)
		os.Exit(1)
	}
	defer vectors.Close()
	if err := vectors.EnsureCollection(ctx, vectorDims); err != nil {
		logger.Error("qdrant ensure collection failed", "err", err)
		os.Exit(1)
	}

	settings, err := metadata.OpenSettingsStore(*settingsDSN)
	if err != nil {
		logger.Error("settings store connect failed", "err", err)
		os.Exit(1)
	}

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		logger.Error("nats connect failed", "err", err)
		os.Exit(1)
	}
	defer nc.Close()
	publisher, err := events.NewPublisher(nc)
	if err != nil {
		logger.Error("event publisher init failed", "err", err)
		os.Exit(1)
	}

	embedder := embedclient.New(*embedURL, *embedModel, *embedVersion)
	translator := lang.NewLLMTranslator(llmclient.New(*llmURL, *llmModel), *llmModel)
	ocrEngine := ocrclient.New(*ocrURL, *ocrModel, *ocrVersion, 2000)
	sttEngine := sttclient.New(*sttURL, *sttModel, *sttVersion, *tempDir)

	tenants := newTenantServices(driver, blobs, settings, publisher, translator, ocrEngine, sttEngine, *tempDir, extraction.DefaultConfig(), chunking.DefaultConfig())
	indexingSvc := indexing.New(embedder, vectors, publisher)

	linguistic := linguisticAdapter{tenants}
	chunks := chunkAdapter{tenants}

	runner := pipeline.NewRunner(nc)
	stages := []pipeline.Stage{
		pipeline.ExtractionStage(tenants.extractionFor, tenants, publisher, *concurrency, logger),
		pipeline.LangStage(tenants.langFor, tenants, linguistic, publisher, *concurrency, logger),
		pipeline.ChunkingStage(tenants.chunkingFor, linguistic, chunks, chunking.DefaultConfig().Strategy, publisher, *concurrency, logger),
		pipeline.IndexingStage(indexingSvc, tenants, chunks, publisher, time.Now, *concurrency, logger),
	}
	if err := runner.Start(stages...); err != nil {
		logger.Error("pipeline start failed", "err", err)
		os.Exit(1)
	}
	defer runner.Stop()

	logger.Info("worker started", "stages", len(stages))
	<-ctx.Done()
	logger.Info("shutdown signal received, draining")
}

// tenantServices lazily builds and caches the per-tenant metadata
// stores and engine Services every pipeline stage needs, and itself
// implements pipeline's lookup interfaces by resolving the right
// tenant-bound store per call. pkg/metadata's stores bind to one tenant
// at construction, but this process serves every tenant off one
// wildcard NATS subject, so it cannot hold a single store/Service
// instance the way a single-tenant binary would.
type tenantServices struct {
	driver     neo4j.DriverWithContext
	blobs      *objectstore.Store
	settings   *metadata.SettingsStore
	publisher  pipeline.Publisher
	translator lang.TranslationEngine
	ocr        extraction.OCREngine
	stt        extraction.STTEngine
	tempDir    string
	extractCfg extraction.Config
	chunkCfg   chunking.Config

	mu         sync.Mutex
	documents  map[string]*metadata.DocumentStore
	extracts   map[string]*metadata.ExtractionStore
	linguistic map[string]*metadata.LinguisticStore
	chunks     map[string]*metadata.ChunkStore
	extractSvc map[string]*extraction.Service
	langSvc    map[string]*lang.Service
	chunkSvc   map[string]*chunking.Service
}

func newTenantServices(driver neo4j.DriverWithContext, blobs *objectstore.Store, settings *metadata.SettingsStore, publisher pipeline.Publisher, translator lang.TranslationEngine, ocr extraction.OCREngine, stt extraction.STTEngine, tempDir string, extractCfg extraction.Config, chunkCfg chunking.Config) *tenantServices {
	return &tenantServices{
		driver:     driver,
		blobs:      blobs,
		settings:   settings,
		publisher:  publisher,
		translator: translator,
		ocr:        ocr,
		stt:        stt,
		tempDir:    tempDir,
		extractCfg: extractCfg,
		chunkCfg:   chunkCfg,
		documents:  make(map[string]*metadata.DocumentStore),
		extracts:   make(map[string]*metadata.ExtractionStore),
		linguistic: make(map[string]*metadata.LinguisticStore),
		chunks:     make(map[string]*metadata.ChunkStore),
		extractSvc: make(map[string]*extraction.Service),
		langSvc:    make(map[string]*lang.Service),
		chunkSvc:   make(map[string]*chunking.Service),
	}
}

func (t *tenantServices) documentStore(tenantID string) *metadata.DocumentStore {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.documents[tenantID]; ok {
		return s
	}
	s := metadata.NewDocumentStore(t.driver, tenantID)
	t.documents[tenantID] = s
	mTenantsActive.Set(int64(len(t.documents)))
	return s
}

func (t *tenantServices) extractionStore(tenantID string) *metadata.ExtractionStore {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.extracts[tenantID]; ok {
		return s
	}
	s := metadata.NewExtractionStore(t.driver, tenantID)
	t.extracts[tenantID] = s
	return s
}

func (t *tenantServices) linguisticStore(tenantID string) *metadata.LinguisticStore {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.linguistic[tenantID]; ok {
		return s
	}
	s := metadata.NewLinguisticStore(t.driver, tenantID)
	t.linguistic[tenantID] = s
	return s
}

func (t *tenantServices) chunkStore(tenantID string) *metadata.ChunkStore {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.chunks[tenantID]; ok {
		return s
	}
	s := metadata.NewChunkStore(t.driver, tenantID)
	t.chunks[tenantID] = s
	return s
}

// extractionFor resolves the cached tenant-bound extraction.Service,
// building it on first use. The blob store, OCR/STT clients, and event
// publisher are shared across every tenant; only the document/result
// repos are tenant-specific.
func (t *tenantServices) extractionFor(tenantID string) *extraction.Service {
	t.mu.Lock()
	if s, ok := t.extractSvc[tenantID]; ok {
		t.mu.Unlock()
		return s
	}
	t.mu.Unlock()
	svc := extraction.New(t.blobs, t.extractionStore(tenantID), t.documentStore(tenantID), t.publisher, t.ocr, t.stt, t.tempDir, t.extractCfg)
	t.mu.Lock()
	t.extractSvc[tenantID] = svc
	t.mu.Unlock()
	return svc
}

func (t *tenantServices) langFor(tenantID string) *lang.Service {
	t.mu.Lock()
	if s, ok := t.langSvc[tenantID]; ok {
		t.mu.Unlock()
		return s
	}
	t.mu.Unlock()
	svc := lang.New(t.linguisticStore(tenantID), t.settings, t.translator, t.publisher)
	t.mu.Lock()
	t.langSvc[tenantID] = svc
	t.mu.Unlock()
	return svc
}

func (t *tenantServices) chunkingFor(tenantID string) *chunking.Service {
	t.mu.Lock()
	if s, ok := t.chunkSvc[tenantID]; ok {
		t.mu.Unlock()
		return s
	}
	t.mu.Unlock()
	svc := chunking.New(t.chunkStore(tenantID), t.publisher, t.chunkCfg)
	t.mu.Lock()
	t.chunkSvc[tenantID] = svc
	t.mu.Unlock()
	return svc
}

// The methods below implement engine/pipeline's tenantID-aware lookup
// interfaces (ExtractionResultLookup, LinguisticLookup, ChunkLookup,
// DocumentLookup) by resolving the tenant-bound store and calling its
// tenantID-less method.

func (t *tenantServices) GetByDocument(ctx context.Context, tenantID, documentID string) (domain.ExtractionResult, error) {
	return t.extractionStore(tenantID).GetByDocument(ctx, documentID)
}

func (t *tenantServices) Get(ctx context.Context, tenantID, id string) (domain.Document, error) {
	return t.documentStore(tenantID).Get(ctx, id)
}

func (t *tenantServices) TransitionStatus(ctx context.Context, tenantID, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error) {
	return t.documentStore(tenantID).TransitionStatus(ctx, id, to, now)
}

// linguisticAdapter and chunkAdapter exist because pipeline.LinguisticLookup
// and pipeline.ChunkLookup both want a method named ListByDocument with a
// different return type; Go has no overloading, so tenantServices cannot
// implement both directly and each gets its own thin wrapper instead.
type linguisticAdapter struct{ t *tenantServices }

func (a linguisticAdapter) ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.LinguisticArtifact, error) {
	return a.t.linguisticStore(tenantID).ListByDocument(ctx, documentID, opts)
}

type chunkAdapter struct{ t *tenantServices }

func (a chunkAdapter) ListByDocument(ctx context.Context, tenantID, documentID string, opts repo.ListOpts) ([]domain.Chunk, error) {
	return a.t.chunkStore(tenantID).ListByDocument(ctx, documentID, opts)
}
