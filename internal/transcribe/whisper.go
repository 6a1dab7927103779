package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kweilin/lessonforge/pkg/log"
)

// WhisperConfig configures the remote Whisper API client.
type WhisperConfig struct {
	BaseURL        string
	Token          string // optional auth token, sent as Bearer
	Model          string // default "base"
	TimeoutSeconds int    // default 600; long audio takes a while
	Retries        int    // default 3, applied to 5xx and network errors only
}

// WhisperClient is an Engine that calls a remote Whisper HTTP API with
// word-level timestamps enabled.
type WhisperClient struct {
	cfg         WhisperConfig
	client      *http.Client
	backoffBase time.Duration // tests override to keep retries fast
}

// NewWhisperClient creates a remote Whisper engine.
func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	if cfg.Model == "" {
		cfg.Model = "base"
	}
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 600
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &WhisperClient{
		cfg:         cfg,
		backoffBase: time.Second,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// whisperResponse mirrors the verbose-json shape returned by the API.
type whisperResponse struct {
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word  string  `json:"word"`
			Start float64 `json:"start"`
			End   float64 `json:"end"`
		} `json:"words"`
	} `json:"segments"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe uploads the audio file and returns time-aligned segments with
// word timestamps. Transient failures (5xx, network) are retried with
// backoff; anything else fails immediately.
func (c *WhisperClient) Transcribe(ctx context.Context, audioPath string) ([]Segment, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase * time.Duration(1<<(attempt-1))
			log.Warn("whisper attempt %d/%d failed, retrying in %v: %v", attempt, c.cfg.Retries, backoff, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		segments, retryable, err := c.transcribeOnce(ctx, audioPath)
		if err == nil {
			return segments, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("whisper transcription failed after %d attempts: %w", c.cfg.Retries, lastErr)
}

func (c *WhisperClient) transcribeOnce(ctx context.Context, audioPath string) (segments []Segment, retryable bool, err error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.cfg.Model); err != nil {
		return nil, false, err
	}
	if err := mw.WriteField("response_format", "verbose_json"); err != nil {
		return nil, false, err
	}
	if err := mw.WriteField("word_timestamps", "true"); err != nil {
		return nil, false, err
	}

	fw, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, false, err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, false, err
	}
	if err := mw.Close(); err != nil {
		return nil, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transcribe", &body)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("whisper request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		b, _ := io.ReadAll(resp.Body)
		return nil, true, fmt.Errorf("whisper http %d: %s", resp.StatusCode, string(b))
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("whisper http %d: %s", resp.StatusCode, string(b))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, false, fmt.Errorf("failed to decode whisper response: %w", err)
	}

	ret := make([]Segment, 0, len(wr.Segments))
	for _, seg := range wr.Segments {
		words := make([]Word, 0, len(seg.Words))
		for _, w := range seg.Words {
			words = append(words, Word{Text: w.Word, Start: w.Start, End: w.End})
		}
		ret = append(ret, Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  seg.Text,
			Words: words,
		})
	}
	return ret, false, nil
}
