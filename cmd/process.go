package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kweilin/lessonforge/internal/config"
	"github.com/kweilin/lessonforge/internal/pipeline"
	"github.com/kweilin/lessonforge/pkg/log"
)

var processCmd = &cobra.Command{
	Use:   "process URL [URL...]",
	Short: "Process one or more videos right now",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewFromEnv()
		if err != nil {
			return err
		}

		orch, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		var failed int
		for _, url := range args {
			res := orch.Process(cmd.Context(), url)
			switch res.Outcome {
			case pipeline.OutcomeSkipped:
				log.Info("%s: already complete (%s)", url, res.ArtifactPath)
			case pipeline.OutcomeDone:
				if res.Complete {
					log.Info("%s: done (%s)", url, res.ArtifactPath)
				} else {
					log.Warn("%s: persisted with untranslated segments, rerun to finish: %v", url, res.Err)
				}
			case pipeline.OutcomeFailed:
				failed++
				log.Error("%s: failed: %v", url, res.Err)
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d videos failed", failed, len(args))
		}
		return nil
	},
}
