// Package ocrclient calls a remote OCR engine over HTTP/JSON and does the
// bounded-resize preprocessing the engine expects (§2 OCR path): RGB
// conversion, Lanczos-filtered resize, mild contrast boost.
package ocrclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/nfnt/resize"
	"github.com/waqedi/platform/pkg/resilience"
)

// Block is one OCR hit within a page, with its confidence and location.
type Block struct {
	Text        string     `json:"text"`
	Confidence  float64    `json:"confidence"`
	BoundingBox [4]float64 `json:"bounding_box"`
}

// Client calls a remote OCR engine.
type Client struct {
	baseURL string
	modelID string
	version string
	http    *http.Client
	breaker *resilience.Breaker
	maxEdge uint
}

// New builds an OCR client. maxEdge bounds the longest edge of a
// rasterized page passed to Preprocess; 0 disables resizing.
func New(baseURL, modelID, version string, maxEdge uint) *Client {
	return &Client{
		baseURL: baseURL,
		modelID: modelID,
		version: version,
		http:    &http.Client{Timeout: 60 * time.Second},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		maxEdge: maxEdge,
	}
}

func (c *Client) ModelID() string { return c.modelID }
func (c *Client) Version() string { return c.version }

// Preprocess converts img to RGB, bounds it to maxEdge on its longest side
// using Lanczos3 resampling, and applies a mild contrast boost before OCR.
func (c *Client) Preprocess(img image.Image) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if c.maxEdge > 0 {
		longest := w
		if h > longest {
			longest = h
		}
		if uint(longest) > c.maxEdge {
			if w >= h {
				img = resize.Resize(c.maxEdge, 0, img, resize.Lanczos3)
			} else {
				img = resize.Resize(0, c.maxEdge, img, resize.Lanczos3)
			}
		}
	}
	return boostContrast(img, 1.15)
}

func boostContrast(img image.Image, factor float64) image.Image {
	bounds := img.Bounds()
	out := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			out.Set(x, y, color.RGBA{
				R: scaleChannel(r, factor),
				G: scaleChannel(g, factor),
				B: scaleChannel(b, factor),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func scaleChannel(v uint32, factor float64) uint8 {
	scaled := (float64(v>>8) - 128*(factor-1)) * factor
	if scaled > 255 {
		scaled = 255
	}
	if scaled < 0 {
		scaled = 0
	}
	return uint8(scaled)
}

type extractRequest struct {
	Model string `json:"model"`
	Image string `json:"image"` // base64-encoded JPEG
}

type extractResponse struct {
	Blocks []Block `json:"blocks"`
}

// Extract OCRs a single rasterized, preprocessed page image and returns
// its text blocks with confidences (§2: "per-block {text, confidence,
// bounding_box}").
func (c *Client) Extract(ctx context.Context, page image.Image) ([]Block, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, page, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("ocrclient: encode page: %w", err)
	}

	var blocks []Block
	err := c.breaker.Call(ctx, func(ctx context.Context) error {
		body, err := json.Marshal(extractRequest{
			Model: c.modelID,
			Image: base64.StdEncoding.EncodeToString(buf.Bytes()),
		})
		if err != nil {
			return fmt.Errorf("ocrclient: marshal request: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("ocrclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("ocrclient: request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ocrclient: status %d", resp.StatusCode)
		}

		var decoded extractResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("ocrclient: decode response: %w", err)
		}
		blocks = decoded.Blocks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// MeanConfidence computes the arithmetic mean of block confidences (§9
// Open Question: mean page confidence is the arithmetic mean).
func MeanConfidence(blocks []Block) float64 {
	if len(blocks) == 0 {
		return 0
	}
	sum := 0.0
	for _, b := range blocks {
		sum += b.Confidence
	}
	return sum / float64(len(blocks))
}
