// Package sttclient transcodes audio/video to 16kHz mono WAV and calls a
// remote transcription engine over HTTP/JSON (§2 STT path). Transcoding
// shells out to ffmpeg: no example repo in this codebase's dependency
// pack ships an audio-transcoding library, and ffmpeg invocation via
// os/exec is how real systems actually do this — there is no idiomatic
// pure-Go substitute for container demuxing and resampling.
package sttclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/waqedi/platform/pkg/resilience"
)

// Segment is one transcribed span of audio.
type Segment struct {
	Text   string  `json:"text"`
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

// Client transcodes and transcribes audio/video documents.
type Client struct {
	baseURL string
	modelID string
	version string
	http    *http.Client
	breaker *resilience.Breaker
	tempDir string
}

// New builds an STT client. tempDir is the stage-scoped directory
// intermediate WAV files are written under; it must already exist.
func New(baseURL, modelID, version, tempDir string) *Client {
	return &Client{
		baseURL: baseURL,
		modelID: modelID,
		version: version,
		http:    &http.Client{Timeout: 5 * time.Minute},
		breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts),
		tempDir: tempDir,
	}
}

func (c *Client) ModelID() string { return c.modelID }
func (c *Client) Version() string { return c.version }

// Transcribe transcodes sourcePath to 16kHz mono volume-normalized WAV and
// sends it to the transcription engine. The intermediate WAV file is
// removed on every exit path: success, transcoding failure, or ctx
// cancellation.
func (c *Client) Transcribe(ctx context.Context, sourcePath string) ([]Segment, error) {
	wavPath := filepath.Join(c.tempDir, uuid.NewString()+".wav")
	defer os.Remove(wavPath)

	if err := c.transcode(ctx, sourcePath, wavPath); err != nil {
		return nil, fmt.Errorf("sttclient: transcode: %w", err)
	}

	wavBytes, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, fmt.Errorf("sttclient: read transcoded wav: %w", err)
	}

	var segments []Segment
	err = c.breaker.Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe?model="+c.modelID, bytes.NewReader(wavBytes))
		if err != nil {
			return fmt.Errorf("sttclient: build request: %w", err)
		}
		req.Header.Set("Content-Type", "audio/wav")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("sttclient: request failed: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("sttclient: status %d", resp.StatusCode)
		}

		var decoded struct {
			Segments []Segment `json:"segments"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("sttclient: decode response: %w", err)
		}
		segments = decoded.Segments
		return nil
	})
	if err != nil {
		return nil, err
	}
	return segments, nil
}

// transcode converts sourcePath to 16kHz mono, volume-normalized WAV.
func (c *Client) transcode(ctx context.Context, sourcePath, wavPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", sourcePath,
		"-ar", "16000",
		"-ac", "1",
		"-af", "loudnorm",
		wavPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return nil
}
