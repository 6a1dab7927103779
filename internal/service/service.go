// Package service runs the daemon side of the pipeline: a cron-scheduled
// watchlist scan plus a file watcher, both feeding the job queue.
package service

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/kweilin/lessonforge/internal/acquire"
	"github.com/kweilin/lessonforge/internal/config"
	"github.com/kweilin/lessonforge/internal/jobs"
	"github.com/kweilin/lessonforge/pkg/log"
)

// debounce window for watchlist edits; editors fire several events per save
const watchDebounce = 500 * time.Millisecond

type lessonService struct {
	cfg      config.Config
	queue    *jobs.Queue
	resolver acquire.Downloader
	cron     *cron.Cron
	group    singleflight.Group
}

func NewLessonService(
	cfg config.Config,
	queue *jobs.Queue,
	resolver acquire.Downloader,
	c *cron.Cron,
) *lessonService {
	return &lessonService{
		cfg:      cfg,
		queue:    queue,
		resolver: resolver,
		cron:     c,
	}
}

// Schedule registers the periodic watchlist scan and runs one scan
// immediately so a fresh start does not wait a full cron period.
func (s *lessonService) Schedule(ctx context.Context) error {
	log.Info("Scheduling watchlist scan with %q", s.cfg.Service.CronExpr)

	runFunc := func() {
		s.scan(ctx, "cron")
	}
	if _, err := s.cron.AddFunc(s.cfg.Service.CronExpr, runFunc); err != nil {
		return err
	}

	go runFunc()
	return nil
}

// Watch re-scans whenever the watchlist file changes. Blocks until ctx is
// cancelled.
func (s *lessonService) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace the file on save
	// and a file-level watch dies with the old inode.
	watchlist := filepath.Clean(s.cfg.Service.Watchlist)
	if err := watcher.Add(filepath.Dir(watchlist)); err != nil {
		return err
	}
	log.Info("Watching %s for changes", watchlist)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != watchlist {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				s.scan(ctx, "watchlist")
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Watchlist watcher error: %v", err)
		}
	}
}

// scan reads the watchlist and enqueues one job per URL. Overlapping scans
// collapse into one.
func (s *lessonService) scan(ctx context.Context, source string) {
	_, _, _ = s.group.Do("scan", func() (any, error) {
		urls, err := ReadWatchlist(s.cfg.Service.Watchlist)
		if err != nil {
			log.Error("Failed to read watchlist %s: %v", s.cfg.Service.Watchlist, err)
			return nil, nil
		}
		log.Info("Watchlist scan (%s): %d URLs", source, len(urls))

		for _, url := range urls {
			s.enqueue(ctx, source, url)
		}
		return nil, nil
	})
}

// enqueue keys the job on the resolved video id so two URLs for the same
// video collapse into one job. When resolution fails the URL itself is the
// key; the executor will surface the real error.
func (s *lessonService) enqueue(ctx context.Context, source, url string) {
	key := url
	if id, err := s.resolver.ResolveID(ctx, url); err == nil {
		key = id
	} else {
		log.Warn("Could not resolve %s, deduping on URL: %v", url, err)
	}

	job, created := s.queue.Enqueue(jobs.EnqueueRequest{
		Source:    source,
		DedupeKey: key,
		Payload:   jobs.JobPayload{SourceURL: url},
	})
	if created {
		log.Info("Enqueued %s as %s (key %s)", url, job.ID, key)
	} else {
		log.Debug("Job for %s already queued as %s", url, job.ID)
	}
}
