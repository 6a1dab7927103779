package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/kweilin/lessonforge/internal/acquire"
	"github.com/kweilin/lessonforge/internal/config"
	"github.com/kweilin/lessonforge/internal/jobs"
	"github.com/kweilin/lessonforge/internal/persistence"
	"github.com/kweilin/lessonforge/internal/pipeline"
	"github.com/kweilin/lessonforge/internal/service"
	"github.com/kweilin/lessonforge/pkg/log"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the watchlist daemon",
	Long: `Scans the watchlist on a cron schedule and whenever the file
changes, processing each URL through a persistent job queue. Jobs survive
restarts; interrupted jobs are retried on startup.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.NewFromEnv()
		if err != nil {
			return err
		}

		orch, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		jobStore, err := persistence.NewSQLiteStore(cfg.Service.DBPath)
		if err != nil {
			return err
		}
		defer jobStore.Close()

		queue := jobs.NewQueue(cfg.Service.WorkerCount, jobStore)
		queue.Start(func(ctx context.Context, job *jobs.PipelineJob) error {
			res := orch.Process(ctx, job.Payload.SourceURL)
			switch res.Outcome {
			case pipeline.OutcomeSkipped:
				return jobs.ErrSkip
			case pipeline.OutcomeFailed:
				return res.Err
			default:
				if res.Err != nil {
					log.Warn("Job %s persisted lesson %s with untranslated segments: %v", job.ID, res.LessonID, res.Err)
				}
				return nil
			}
		})
		defer queue.Stop()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c := cron.New()
		svc := service.NewLessonService(*cfg, queue, acquire.NewYtDlp(cfg.Pipeline.TempDir), c)
		if err := svc.Schedule(ctx); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()

		go func() {
			if err := svc.Watch(ctx); err != nil && ctx.Err() == nil {
				log.Error("Watchlist watcher stopped: %v", err)
			}
		}()

		log.Info("lessonforge daemon running")
		<-ctx.Done()
		log.Info("Shutting down")
		return nil
	},
}
