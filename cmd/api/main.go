// Command api serves the synchronous HTTP surface of the platform:
// document ingestion (§4.1), retrieval (§4.6), and answering (§4.7).
// Every request is scoped to exactly one tenant, taken from a verified
// bearer token, never from the request body (§6 "Trust boundary
// inputs").
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/waqedi/platform/engine/answering"
	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/engine/ingestion"
	"github.com/waqedi/platform/engine/retrieval"
	"github.com/waqedi/platform/pkg/authclaims"
	"github.com/waqedi/platform/pkg/convcache"
	"github.com/waqedi/platform/pkg/embedclient"
	"github.com/waqedi/platform/pkg/llmclient"
	"github.com/waqedi/platform/pkg/metadata"
	"github.com/waqedi/platform/pkg/mid"
	"github.com/waqedi/platform/pkg/objectstore"
	"github.com/waqedi/platform/pkg/vectorstore"
)

// Config holds all environment-based configuration.
type Config struct {
	Port string

	NATSURL string

	Neo4jURL  string
	Neo4jUser string
	Neo4jPass string

	ObjectStoreEndpoint  string
	ObjectStoreRegion    string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreBucket    string
	ObjectStorePathStyle bool

	QdrantURL  string
	Collection string

	EmbedURL     string
	EmbedModel   string
	EmbedVersion string

	LLMURL   string
	LLMModel string

	ConvCacheURL      string
	ConvCacheMaxTurns int
	ConvCacheTTL      time.Duration

	TraceDSN string

	JWKSURL     string
	JWTIssuer   string
	JWTAudience string

	CORSOrigin     string
	MaxUploadBytes int64
}

func loadConfig() Config {
	return Config{
		Port: envOr("PORT", "8080"),

		NATSURL: envOr("NATS_URL", nats.DefaultURL),

		Neo4jURL:  envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser: envOr("NEO4J_USER", "neo4j"),
		Neo4jPass: envOr("NEO4J_PASS", "password"),

		ObjectStoreEndpoint:  envOr("OBJECT_STORE_ENDPOINT", ""),
		ObjectStoreRegion:    envOr("OBJECT_STORE_REGION", "us-east-1"),
		ObjectStoreAccessKey: envOr("OBJECT_STORE_ACCESS_KEY", ""),
		ObjectStoreSecretKey: envOr("OBJECT_STORE_SECRET_KEY", ""),
		ObjectStoreBucket:    envOr("OBJECT_STORE_BUCKET", "waqedi-documents"),
		ObjectStorePathStyle: envOr("OBJECT_STORE_PATH_STYLE", "true") == "true",

		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "waqedi_vectors"),

		EmbedURL:     envOr("EMBED_URL", "http://localhost:8081"),
		EmbedModel:   envOr("EMBED_MODEL", "nomic-embed-text"),
		EmbedVersion: envOr("EMBED_VERSION", "v1"),

		LLMURL:   envOr("LLM_URL", "http://localhost:8082"),
		LLMModel: envOr("LLM_MODEL", "default"),

		ConvCacheURL:      envOr("CONV_CACHE_URL", "localhost:6379"),
		ConvCacheMaxTurns: envOrInt("CONV_CACHE_MAX_TURNS", 5),
		ConvCacheTTL:      envOrDuration("CONV_CACHE_TTL", 24*time.Hour),

		TraceDSN: envOr("TRACE_DSN", ""),

		JWKSURL:     envOr("JWKS_URL", "http://localhost:8083/.well-known/jwks.json"),
		JWTIssuer:   envOr("JWT_ISSUER", "waqedi-identity"),
		JWTAudience: envOr("JWT_AUDIENCE", "waqedi-platform"),

		CORSOrigin:     envOr("CORS_ORIGIN", "*"),
		MaxUploadBytes: int64(envOrInt("MAX_UPLOAD_BYTES", 200<<20)),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("api server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		return err
	}
	defer neo4jDriver.Close(ctx)

	blobs, err := objectstore.New(ctx, objectstore.Config{
		Endpoint:  cfg.ObjectStoreEndpoint,
		Region:    cfg.ObjectStoreRegion,
		AccessKey: cfg.ObjectStoreAccessKey,
		SecretKey: cfg.ObjectStoreSecretKey,
		Bucket:    cfg.ObjectStoreBucket,
		PathStyle: cfg.ObjectStorePathStyle,
	})
	if err != nil {
		return err
	}

	vectors, err := vectorstore.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return err
	}
	defer vectors.Close()

	embedder := embedclient.New(cfg.EmbedURL, cfg.EmbedModel, cfg.EmbedVersion)
	generator := llmclient.New(cfg.LLMURL, cfg.LLMModel)

	var convCache *convcache.Cache
	if cfg.ConvCacheURL != "" {
		convCache, err = convcache.New(cfg.ConvCacheURL, cfg.ConvCacheMaxTurns, cfg.ConvCacheTTL)
		if err != nil {
			logger.Warn("conversation cache unavailable, answering will run without turn history", "err", err)
			convCache = nil
		} else {
			defer convCache.Close()
		}
	}

	var traces *metadata.TraceStore
	if cfg.TraceDSN != "" {
		traces, err = metadata.OpenTraceStore(cfg.TraceDSN)
		if err != nil {
			logger.Warn("trace store unavailable, answers will not be audited", "err", err)
			traces = nil
		}
	}

	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		return err
	}
	defer nc.Close()
	publisher, err := events.NewPublisher(nc)
	if err != nil {
		return err
	}

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	retriever := retrieval.New(embedder, vectors, retrieval.DefaultConfig())

	var convCacheForAnswering answering.ConversationCache
	if convCache != nil {
		convCacheForAnswering = convCache
	}
	var tracesForAnswering answering.TraceRecorder
	if traces != nil {
		tracesForAnswering = traces
	}
	answerer := answering.New(retriever, convCacheForAnswering, generator, tracesForAnswering, answering.DefaultConfig(), logger)

	tenants := metadata.NewTenantStore(neo4jDriver)

	srv := newServer(cfg, logger, neo4jDriver, blobs, publisher, retriever, answerer, verifier, tenants)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// newVerifier builds an authclaims.Verifier against an auto-refreshing
// JWKS cache, so a key rotation at the identity provider does not
// require restarting this process.
func newVerifier(ctx context.Context, cfg Config) (*authclaims.Verifier, error) {
	cache := jwk.NewCache(ctx)
	if err := cache.Register(cfg.JWKSURL); err != nil {
		return nil, err
	}
	if _, err := cache.Refresh(ctx, cfg.JWKSURL); err != nil {
		return nil, err
	}
	keySet := jwk.NewCachedSet(cache, cfg.JWKSURL)
	return authclaims.NewVerifier(keySet, cfg.JWTIssuer, cfg.JWTAudience), nil
}

// server bundles the dependencies each handler closes over.
type server struct {
	cfg       Config
	logger    *slog.Logger
	neo4j     neo4j.DriverWithContext
	blobs     *objectstore.Store
	publisher *events.Publisher
	retriever *retrieval.Service
	answerer  *answering.Service
	verifier  *authclaims.Verifier
	tenants   *metadata.TenantStore
}

func newServer(cfg Config, logger *slog.Logger, driver neo4j.DriverWithContext, blobs *objectstore.Store, publisher *events.Publisher, retriever *retrieval.Service, answerer *answering.Service, verifier *authclaims.Verifier, tenants *metadata.TenantStore) *http.Server {
	s := &server{cfg: cfg, logger: logger, neo4j: driver, blobs: blobs, publisher: publisher, retriever: retriever, answerer: answerer, verifier: verifier, tenants: tenants}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.Handle("POST /documents", s.requireAuth(s.handleUpload))
	mux.Handle("DELETE /documents/{id}", s.requireAuth(s.handleDelete))
	mux.Handle("POST /search", s.requireAuth(s.handleSearch))
	mux.Handle("POST /query", s.requireAuth(s.handleQuery))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("waqedi-api"),
		mid.CORS(cfg.CORSOrigin),
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// claimsKey is the request context key requireAuth stores verified
// claims under.
type claimsKey struct{}

// requireAuth verifies the bearer token and stores the resulting claims
// in the request context. tenant_id is read only from those claims from
// this point on — handlers never consult a client-supplied tenant_id
// (§6 "Trust boundary inputs").
func (s *server) requireAuth(next func(http.ResponseWriter, *http.Request, authclaims.Claims)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeProblem(w, domain.New(domain.KindAuthorization, domain.TypeUnauthorized, "missing bearer token"))
			return
		}
		claims, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			writeProblem(w, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)), claims)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func writeProblem(w http.ResponseWriter, err error) {
	problem := domain.ToProblem(err)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	json.NewEncoder(w).Encode(problem)
}

// handleUpload implements POST /documents (§4.1, §6).
func (s *server) handleUpload(w http.ResponseWriter, r *http.Request, claims authclaims.Claims) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "invalid multipart body"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "file field is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = mime.TypeByExtension(header.Filename)
	}

	documents := metadata.NewDocumentStore(s.neo4j, claims.TenantID)
	quota := metadata.NewTierQuota(s.tenants, func(ctx context.Context, _ string) (int64, error) {
		return documents.TotalSizeBytes(ctx)
	})
	svc := ingestion.New(s.blobs, documents, s.publisher, quota, s.cfg.ObjectStoreBucket)

	doc, err := svc.Upload(r.Context(), ingestion.Upload{
		TenantID:    claims.TenantID,
		UploaderID:  claims.Subject,
		Filename:    header.Filename,
		ContentType: contentType,
		SizeBytes:   header.Size,
		Body:        file,
		DeptID:      claims.DeptID,
		Collection:  r.FormValue("collection"),
	})
	if err != nil {
		writeProblem(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

// handleDelete implements DELETE /documents/{id} (§4.1 branch to DELETED,
// E5 legal-hold integrity).
func (s *server) handleDelete(w http.ResponseWriter, r *http.Request, claims authclaims.Claims) {
	id := r.PathValue("id")
	documents := metadata.NewDocumentStore(s.neo4j, claims.TenantID)
	svc := ingestion.New(s.blobs, documents, s.publisher, nil, s.cfg.ObjectStoreBucket)
	if err := svc.Delete(r.Context(), id); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// searchRequest is the POST /search body (§6). TenantID, if present, is
// ignored: the tenant scope always comes from the verified claims.
type searchRequest struct {
	Query    string  `json:"query"`
	TopK     int     `json:"top_k"`
	Language string  `json:"language,omitempty"`
	MinScore float32 `json:"min_score,omitempty"`
}

type searchResult struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Score      float32 `json:"score"`
}

type searchResponse struct {
	Results    []searchResult `json:"results"`
	TotalFound int            `json:"total_found"`
}

// handleSearch implements POST /search (§4.6, §6).
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request, claims authclaims.Claims) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "invalid request body"))
		return
	}
	if req.Query == "" {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "query is required"))
		return
	}
	topK := req.TopK
	if topK <= 0 || topK > 20 {
		topK = 10
	}

	chunks, err := s.retriever.Retrieve(r.Context(), claims.TenantID, req.Query, topK, retrieval.Filters{Language: req.Language})
	if err != nil {
		writeProblem(w, err)
		return
	}

	results := make([]searchResult, 0, len(chunks))
	for _, c := range chunks {
		if req.MinScore > 0 && c.Score < req.MinScore {
			continue
		}
		results = append(results, searchResult{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Text:       c.Text,
			Language:   c.Language,
			Score:      c.Score,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(searchResponse{Results: results, TotalFound: len(results)})
}

// queryRequest is the POST /query body (§6).
type queryRequest struct {
	Query          string `json:"query"`
	ConversationID string `json:"conversation_id,omitempty"`
	TopK           int    `json:"top_k,omitempty"`
	Language       string `json:"language,omitempty"`
}

// handleQuery implements POST /query (§4.7, §6).
func (s *server) handleQuery(w http.ResponseWriter, r *http.Request, claims authclaims.Claims) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "invalid request body"))
		return
	}
	if req.Query == "" {
		writeProblem(w, domain.New(domain.KindValidation, domain.TypeValidation, "query is required"))
		return
	}

	result, err := s.answerer.Answer(r.Context(), answering.Request{
		TenantID:       claims.TenantID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		TopK:           req.TopK,
		Language:       req.Language,
	})
	if err != nil {
		writeProblem(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
