// Package augment turns a batch of raw transcript segments into translated,
// keyword-annotated segments via one call to the external semantic service.
//
// The service never sees word-level timestamps; words are re-attached from
// the input batch by position after validation, keeping the call payload
// small and the response safe from truncation.
package augment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/kweilin/lessonforge/internal/lesson"
	"github.com/kweilin/lessonforge/pkg/log"
)

// Responses longer than this are suspected of being truncated by the
// provider and are rejected before parsing.
const defaultMaxResponseBytes = 100_000

// batchItem is the request wire shape, one per input segment.
type batchItem struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// responseItem mirrors the contracted response shape.
type responseItem struct {
	ID         int      `json:"id"`
	StartTime  float64  `json:"start_time"`
	EndTime    float64  `json:"end_time"`
	TextSource string   `json:"text_source"`
	TextTarget string   `json:"text_target"`
	Keywords   []string `json:"keywords"`
}

// TextCompleter is the slice of the LLM client the augmenter depends on.
// Injected so tests can simulate contract violations deterministically.
type TextCompleter interface {
	Complete(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// Client augments one batch per call. Safe for concurrent use.
type Client struct {
	completer        TextCompleter
	targetLanguage   string
	maxResponseBytes int
}

// NewClient creates an augmentation client translating into targetLanguage
// (a display name the semantic service understands, e.g. "Traditional
// Chinese (Taiwan)").
func NewClient(completer TextCompleter, targetLanguage string) *Client {
	return &Client{
		completer:        completer,
		targetLanguage:   targetLanguage,
		maxResponseBytes: defaultMaxResponseBytes,
	}
}

// Augment sends one batch to the semantic service and returns the augmented
// segments in the same order. Any failure discards the whole batch: the
// returned error is always a *BatchError and no partial result is produced.
// Retry across full runs is the orchestrator's concern, never this client's.
func (c *Client) Augment(ctx context.Context, sourceLanguage string, segments []lesson.Segment) ([]lesson.Segment, error) {
	if len(segments) == 0 {
		return nil, nil
	}

	items := make([]batchItem, len(segments))
	for i, seg := range segments {
		items[i] = batchItem{
			ID:    seg.ID,
			Start: seg.StartTime,
			End:   seg.EndTime,
			Text:  strings.TrimSpace(seg.TextSource),
		}
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, wrapBatchError(FailUnknown, "failed to encode batch request", err)
	}

	content, err := c.completer.Complete(ctx, c.buildSystemPrompt(sourceLanguage, len(items)), string(payload))
	if err != nil {
		kind := classifyTransport(err)
		return nil, wrapBatchError(kind, "semantic service call failed", err)
	}

	parsed, err := c.parseResponse(content)
	if err != nil {
		return nil, err
	}

	// Validation gate: exact count parity or the batch is discarded.
	if len(parsed) != len(segments) {
		return nil, newBatchError(FailValidation,
			fmt.Sprintf("segment count mismatch: sent %d, received %d", len(segments), len(parsed)))
	}

	// Position is the ground truth for re-attachment; ids are carried
	// through unchanged, so drift only rates a warning.
	ret := make([]lesson.Segment, len(segments))
	for i, seg := range segments {
		item := parsed[i]
		if item.ID != seg.ID {
			log.Warn("semantic service changed id at position %d: sent %d, received %d", i, seg.ID, item.ID)
		}
		ret[i] = lesson.Segment{
			ID:         seg.ID,
			StartTime:  seg.StartTime,
			EndTime:    seg.EndTime,
			TextSource: seg.TextSource,
			TextTarget: item.TextTarget,
			Keywords:   lesson.DedupeKeywords(item.Keywords),
			Words:      seg.Words,
		}
	}

	return ret, nil
}

// parseResponse strips markdown fences, guards against truncation, locates
// the JSON array and decodes it.
func (c *Client) parseResponse(content string) ([]responseItem, error) {
	clean := stripCodeFences(content)
	if clean == "" {
		return nil, newBatchError(FailParse, "empty response from semantic service")
	}
	if len(clean) > c.maxResponseBytes {
		return nil, newBatchError(FailParse,
			fmt.Sprintf("response too long (%d bytes), suspected truncation", len(clean)))
	}

	raw := clean
	result := gjson.Parse(clean)
	switch {
	case result.IsArray():
		// contracted shape
	case result.IsObject() && result.Get("segments").IsArray():
		// salvage: some models wrap the array in an envelope object
		raw = result.Get("segments").Raw
	default:
		return nil, newBatchError(FailParse, "response is not a JSON array")
	}

	var items []responseItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, wrapBatchError(FailParse, "failed to decode response items", err)
	}
	return items, nil
}

func (c *Client) buildSystemPrompt(sourceLanguage string, count int) string {
	var prompt strings.Builder

	prompt.WriteString("You are a professional translator and language-learning content editor. ")
	prompt.WriteString("You receive a JSON array of transcript segments")
	if sourceLanguage != "" {
		prompt.WriteString(" in " + sourceLanguage)
	}
	prompt.WriteString(" and translate each one into " + c.targetLanguage + ".\n\n")

	prompt.WriteString("=== OUTPUT FORMAT ===\n")
	prompt.WriteString(fmt.Sprintf("Return ONLY a JSON array of exactly %d objects, one per input item, in the same order:\n", count))
	prompt.WriteString(`[
  {
    "id": <same id>,
    "start_time": <same start>,
    "end_time": <same end>,
    "text_source": "<same text>",
    "text_target": "<translation>",
    "keywords": ["important_word"]
  }
]` + "\n")

	prompt.WriteString("\n=== RULES ===\n")
	prompt.WriteString(fmt.Sprintf("1. Output EXACTLY %d items. Do NOT merge, split, reorder, or drop segments.\n", count))
	prompt.WriteString("2. Keep all ids, timestamps, and text_source unchanged.\n")
	prompt.WriteString("3. keywords: 1 to 5 difficult, important, or name words drawn from the source text, in the source language. Do not translate keywords.\n")
	prompt.WriteString("4. Do not include any explanations, notes, or markdown fences.\n")

	return prompt.String()
}

// stripCodeFences removes markdown code fences the model may wrap the JSON in.
func stripCodeFences(content string) string {
	clean := strings.ReplaceAll(content, "```json", "")
	clean = strings.ReplaceAll(clean, "```", "")
	return strings.TrimSpace(clean)
}
