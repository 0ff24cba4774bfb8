// Package extraction implements S2: routes a document's bytes to the
// OCR or STT path by file category, produces a single ExtractionResult,
// stamps detected language, and emits document.extracted or
// document.extraction_failed (§4.2).
package extraction

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/waqedi/platform/engine/domain"
	"github.com/waqedi/platform/engine/events"
	"github.com/waqedi/platform/pkg/langdetect"
	"github.com/waqedi/platform/pkg/ocrclient"
	"github.com/waqedi/platform/pkg/sttclient"
)

// scannedPageCharThreshold is the §9 Open Question's "is scanned"
// magic constant, parameterized here rather than hardcoded inline.
const scannedPageCharThreshold = 100

// Config controls the retry/backoff and heuristic knobs of S2.
type Config struct {
	MaxAttempts          int
	BaseBackoff          time.Duration
	ScannedPageThreshold int
	RasterDPI            int
	OCRMaxEdge           uint
}

// DefaultConfig returns the §4.2 defaults: 3 attempts, exponential
// backoff, and the scanned-page heuristic threshold.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          3,
		BaseBackoff:          2 * time.Second,
		ScannedPageThreshold: scannedPageCharThreshold,
		RasterDPI:            200,
		OCRMaxEdge:           2000,
	}
}

// BlobStore is the subset of pkg/objectstore.Store this package needs.
type BlobStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// ResultRepo is the subset of pkg/metadata.ExtractionStore this package needs.
type ResultRepo interface {
	Put(ctx context.Context, result domain.ExtractionResult) (domain.ExtractionResult, error)
}

// DocumentRepo is the subset of pkg/metadata.DocumentStore this package needs.
type DocumentRepo interface {
	Get(ctx context.Context, id string) (domain.Document, error)
	TransitionStatus(ctx context.Context, id string, to domain.DocumentStatus, now time.Time) (domain.Document, error)
}

// EventPublisher is the subset of engine/events.Publisher this package needs.
type EventPublisher interface {
	Publish(ctx context.Context, documentID, tenantID, correlationID string, eventType events.EventType, payload any) error
}

// OCREngine is the capability interface for optical character
// recognition, per Design Notes ("model the embedding/OCR/STT/LLM
// client as a capability interface").
type OCREngine interface {
	ModelID() string
	Version() string
	Preprocess(img image.Image) image.Image
	Extract(ctx context.Context, page image.Image) ([]ocrclient.Block, error)
}

// STTEngine is the capability interface for speech-to-text.
type STTEngine interface {
	ModelID() string
	Version() string
	Transcribe(ctx context.Context, sourcePath string) ([]sttclient.Segment, error)
}

// Service runs S2 for one tenant's documents.
type Service struct {
	blobs     BlobStore
	results   ResultRepo
	documents DocumentRepo
	publisher EventPublisher
	ocr       OCREngine
	stt       STTEngine
	cfg       Config
	tempDir   string
	clock     func() time.Time
}

// New builds an extraction Service.
func New(blobs BlobStore, results ResultRepo, documents DocumentRepo, publisher EventPublisher, ocr OCREngine, stt STTEngine, tempDir string, cfg Config) *Service {
	return &Service{
		blobs:     blobs,
		results:   results,
		documents: documents,
		publisher: publisher,
		ocr:       ocr,
		stt:       stt,
		cfg:       cfg,
		tempDir:   tempDir,
		clock:     time.Now,
	}
}

// HandleUploaded processes one document.uploaded event end to end
// (§4.2): extract, detect language, persist, emit success or failure.
func (s *Service) HandleUploaded(ctx context.Context, documentID, tenantID, correlationID string, payload events.UploadedPayload) error {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	doc, err = s.documents.TransitionStatus(ctx, doc.ID, domain.StatusProcessing, s.clock())
	if err != nil {
		return err
	}

	var (
		text           string
		pages          []domain.PageConfidence
		extractionType string
		lastErr        error
	)
	started := s.clock()

	switch doc.FileCategory {
	case domain.CategoryDocument, domain.CategoryImage:
		extractionType = "ocr"
		for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
			text, pages, lastErr = s.extractOCR(ctx, payload.StorageKey, doc.ContentType)
			if lastErr == nil || !isRetryable(lastErr) {
				break
			}
			s.backoff(ctx, attempt)
		}
	case domain.CategoryAudio, domain.CategoryVideo:
		extractionType = "stt"
		for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
			text, pages, lastErr = s.extractSTT(ctx, payload.StorageKey)
			if lastErr == nil || !isRetryable(lastErr) {
				break
			}
			s.backoff(ctx, attempt)
		}
	default:
		lastErr = domain.New(domain.KindTerminalDependency, domain.TypeInternal,
			fmt.Sprintf("unknown file category %q", doc.FileCategory))
	}

	if lastErr != nil {
		return s.fail(ctx, doc, correlationID, lastErr)
	}

	detection := langdetect.Detect(text)
	result := domain.ExtractionResult{
		ID:               uuid.NewString(),
		DocumentID:       doc.ID,
		TenantID:         doc.TenantID,
		Text:             text,
		Pages:            pages,
		DetectedLanguage: detection.PrimaryLanguage,
		ModelID:          s.modelID(extractionType),
		ModelVersion:     s.modelVersion(extractionType),
		ProcessingTimeMS: s.clock().Sub(started).Milliseconds(),
		CreatedAt:        s.clock(),
	}
	result, err = s.results.Put(ctx, result)
	if err != nil {
		return fmt.Errorf("extraction: persist result: %w", err)
	}

	confidence := meanConfidence(pages)
	if s.publisher != nil {
		err := s.publisher.Publish(ctx, doc.ID, doc.TenantID, correlationID, events.DocumentExtracted, events.ExtractedPayload{
			DocumentID:       doc.ID,
			ExtractionID:     result.ID,
			ExtractionType:   extractionType,
			Text:             result.Text,
			PageCount:        len(pages),
			Language:         result.DetectedLanguage,
			Confidence:       confidence,
			ProcessingTimeMS: result.ProcessingTimeMS,
		})
		if err != nil {
			return fmt.Errorf("extraction: publish document.extracted: %w", err)
		}
	}
	return nil
}

func (s *Service) fail(ctx context.Context, doc domain.Document, correlationID string, cause error) error {
	if _, err := s.documents.TransitionStatus(ctx, doc.ID, domain.StatusFailed, s.clock()); err != nil {
		return err
	}
	if s.publisher != nil {
		return s.publisher.Publish(ctx, doc.ID, doc.TenantID, correlationID, events.DocumentExtractionFailed, events.ExtractionFailedPayload{
			DocumentID: doc.ID,
			Error:      cause.Error(),
		})
	}
	return nil
}

func (s *Service) backoff(ctx context.Context, attempt int) {
	wait := s.cfg.BaseBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func isRetryable(err error) bool {
	return domain.AsKind(err) == domain.KindTransientDependency
}

func (s *Service) modelID(extractionType string) string {
	if extractionType == "stt" {
		return s.stt.ModelID()
	}
	return s.ocr.ModelID()
}

func (s *Service) modelVersion(extractionType string) string {
	if extractionType == "stt" {
		return s.stt.Version()
	}
	return s.ocr.Version()
}

func meanConfidence(pages []domain.PageConfidence) float64 {
	if len(pages) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float64(len(pages))
}

// extractOCR routes DOCUMENT/IMAGE bytes through the OCR path (§4.2):
// native-text PDFs are read directly; scanned PDFs and plain images are
// rasterized/decoded and sent to the OCR engine.
func (s *Service) extractOCR(ctx context.Context, storageKey, contentType string) (string, []domain.PageConfidence, error) {
	rc, err := s.blobs.Get(ctx, storageKey)
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "blob fetch failed", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "blob read failed", err)
	}

	if contentType == "application/pdf" {
		return s.extractPDF(ctx, body)
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTerminalDependency, domain.TypeInternal, "decode image failed", err)
	}
	return s.ocrPage(ctx, img, 1)
}

// extractPDF classifies each page as native-text or scanned by sampling
// extractable text length, then either uses that text directly or
// rasterizes the page for OCR (§4.2).
func (s *Service) extractPDF(ctx context.Context, body []byte) (string, []domain.PageConfidence, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTerminalDependency, domain.TypeInternal, "open pdf failed", err)
	}

	var fullText string
	var pages []domain.PageConfidence
	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, _ := page.GetPlainText(nil)
		if len(pageText) >= s.cfg.ScannedPageThreshold {
			pages = append(pages, domain.PageConfidence{PageNumber: i, Text: pageText, Confidence: 1.0})
			fullText += pageText + "\n"
			continue
		}

		img, err := s.rasterizePage(ctx, body, i)
		if err != nil {
			return "", nil, err
		}
		text, pageResult, err := s.ocrPage(ctx, img, i)
		if err != nil {
			return "", nil, err
		}
		pages = append(pages, pageResult...)
		fullText += text + "\n"
	}
	return fullText, pages, nil
}

// rasterizePage shells out to pdftoppm (poppler-utils), which like
// ffmpeg for STT has no pure-Go equivalent anywhere in the example
// pack, to render one PDF page to an image at the configured DPI.
func (s *Service) rasterizePage(ctx context.Context, pdfBytes []byte, pageNum int) (image.Image, error) {
	srcPath := fmt.Sprintf("%s/%s.pdf", s.tempDir, uuid.NewString())
	outPrefix := fmt.Sprintf("%s/%s", s.tempDir, uuid.NewString())
	if err := writeFile(srcPath, pdfBytes); err != nil {
		return nil, domain.Wrap(domain.KindInternal, domain.TypeInternal, "write temp pdf failed", err)
	}
	defer removeFile(srcPath)

	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-f", fmt.Sprintf("%d", pageNum),
		"-l", fmt.Sprintf("%d", pageNum),
		"-r", fmt.Sprintf("%d", s.cfg.RasterDPI),
		"-png",
		"-singlefile",
		srcPath, outPrefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, domain.Wrap(domain.KindTerminalDependency, domain.TypeInternal,
			fmt.Sprintf("rasterize page %d failed: %s", pageNum, stderr.String()), err)
	}
	defer removeFile(outPrefix + ".png")

	data, err := readFile(outPrefix + ".png")
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, domain.TypeInternal, "read rasterized page failed", err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, domain.TypeInternal, "decode rasterized page failed", err)
	}
	return img, nil
}

func (s *Service) ocrPage(ctx context.Context, img image.Image, pageNum int) (string, []domain.PageConfidence, error) {
	preprocessed := s.ocr.Preprocess(img)
	blocks, err := s.ocr.Extract(ctx, preprocessed)
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "ocr extract failed", err)
	}
	var text string
	for _, b := range blocks {
		text += b.Text + " "
	}
	confidence := ocrclient.MeanConfidence(blocks)
	return text, []domain.PageConfidence{{PageNumber: pageNum, Text: text, Confidence: confidence}}, nil
}

// extractSTT routes AUDIO/VIDEO bytes through the transcription path
// (§4.2). Temp files live under the stage-scoped temp dir and are
// released on every exit path.
func (s *Service) extractSTT(ctx context.Context, storageKey string) (string, []domain.PageConfidence, error) {
	rc, err := s.blobs.Get(ctx, storageKey)
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "blob fetch failed", err)
	}
	defer rc.Close()

	srcPath := fmt.Sprintf("%s/%s", s.tempDir, uuid.NewString())
	if err := writeStream(srcPath, rc); err != nil {
		return "", nil, domain.Wrap(domain.KindInternal, domain.TypeInternal, "write temp media failed", err)
	}
	defer removeFile(srcPath)

	segments, err := s.stt.Transcribe(ctx, srcPath)
	if err != nil {
		return "", nil, domain.Wrap(domain.KindTransientDependency, domain.TypeInternal, "transcribe failed", err)
	}

	var text string
	pages := make([]domain.PageConfidence, 0, len(segments))
	for i, seg := range segments {
		text += seg.Text + " "
		n := i
		pages = append(pages, domain.PageConfidence{PageNumber: n, Text: seg.Text, Confidence: 1.0})
	}
	return text, pages, nil
}
