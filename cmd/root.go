package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kweilin/lessonforge/internal/acquire"
	"github.com/kweilin/lessonforge/internal/augment"
	"github.com/kweilin/lessonforge/internal/config"
	"github.com/kweilin/lessonforge/internal/llm"
	"github.com/kweilin/lessonforge/internal/pipeline"
	"github.com/kweilin/lessonforge/internal/store"
	"github.com/kweilin/lessonforge/internal/transcribe"
)

var rootCmd = &cobra.Command{
	Use:   "lessonforge",
	Short: "Turn videos into bilingual lesson artifacts",
	Long: `lessonforge downloads videos, transcribes them with word-level
timestamps, translates the transcript in validated batches, and writes one
JSON lesson artifact per video. Runs are idempotent: complete lessons are
skipped and partial ones are resumed.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(serveCmd)
}

// buildPipeline wires the orchestrator from config.
func buildPipeline(cfg *config.Config) (*pipeline.Orchestrator, error) {
	if err := os.MkdirAll(cfg.Pipeline.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	artifacts, err := store.NewStore(cfg.Pipeline.OutputDir)
	if err != nil {
		return nil, err
	}

	llmClient, err := llm.NewClient(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		SiteURL:     cfg.LLM.SiteURL,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		return nil, err
	}

	whisper := transcribe.NewWhisperClient(transcribe.WhisperConfig{
		BaseURL:        cfg.Whisper.BaseURL,
		Token:          cfg.Whisper.Token,
		Model:          cfg.Whisper.Model,
		TimeoutSeconds: cfg.Whisper.TimeoutSeconds,
		Retries:        cfg.Whisper.Retries,
	})

	return pipeline.NewOrchestrator(
		acquire.NewYtDlp(cfg.Pipeline.TempDir),
		whisper,
		augment.NewClient(llmClient, cfg.Translate.TargetLanguageName),
		artifacts,
		pipeline.Options{
			BatchSize:        cfg.Pipeline.BatchSize,
			BatchConcurrency: cfg.Pipeline.BatchConcurrency,
		},
	), nil
}
