// Package acquire wraps yt-dlp for resolving video identities and fetching
// media into the temp directory.
package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kweilin/lessonforge/pkg/log"
)

// ErrIdentityUnavailable means the remote resource could not be inspected
// (network, auth, not found). Reported, never retried automatically.
var ErrIdentityUnavailable = errors.New("identity unavailable")

// ErrFetchFailed means the download itself failed after the identity was known.
var ErrFetchFailed = errors.New("acquisition failed")

// VideoInfo describes a fetched video.
type VideoInfo struct {
	ID              string
	Title           string
	DurationSeconds float64
	MediaPath       string
}

// Downloader is the acquisition boundary consumed by the orchestrator.
type Downloader interface {
	// ResolveID returns the stable identity for url without downloading.
	ResolveID(ctx context.Context, url string) (string, error)
	// Fetch downloads the media and returns its metadata and local path.
	Fetch(ctx context.Context, url string) (*VideoInfo, error)
}

// Matches the original ceiling of 720p mp4 to keep lesson media small.
const downloadFormat = "bestvideo[ext=mp4][height<=720]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// runner abstracts command execution so tests can fake yt-dlp.
type runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmdPath, err := exec.LookPath(name)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return output, fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return output, err
	}
	return output, nil
}

// YtDlp is a Downloader backed by the yt-dlp binary.
type YtDlp struct {
	cmd     string
	tempDir string
	run     runner
}

// NewYtDlp creates a Downloader that stores downloads under tempDir.
func NewYtDlp(tempDir string) *YtDlp {
	return &YtDlp{
		cmd:     "yt-dlp",
		tempDir: tempDir,
		run:     execRunner{},
	}
}

// probeResult is the subset of yt-dlp's JSON dump we care about.
type probeResult struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
	Ext      string  `json:"ext"`
}

func (y *YtDlp) probe(ctx context.Context, url string) (*probeResult, error) {
	output, err := y.run.Run(ctx, y.cmd, y.probeArgs(url)...)
	if err != nil {
		return nil, err
	}

	var info probeResult
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp metadata: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("yt-dlp metadata has no id")
	}
	return &info, nil
}

// ResolveID resolves the stable video id without downloading anything.
func (y *YtDlp) ResolveID(ctx context.Context, url string) (string, error) {
	info, err := y.probe(ctx, url)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrIdentityUnavailable, url, err)
	}
	return info.ID, nil
}

// Fetch downloads the video into the temp directory.
func (y *YtDlp) Fetch(ctx context.Context, url string) (*VideoInfo, error) {
	info, err := y.probe(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, url, err)
	}

	if _, err := y.run.Run(ctx, y.cmd, y.downloadArgs(url)...); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, url, err)
	}

	mediaPath, err := y.findDownloaded(info.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, url, err)
	}
	log.Info("Fetched %s (%s) to %s", info.ID, info.Title, mediaPath)

	return &VideoInfo{
		ID:              info.ID,
		Title:           info.Title,
		DurationSeconds: info.Duration,
		MediaPath:       mediaPath,
	}, nil
}

// findDownloaded locates the finished download for id; the container ext
// after merging is not always the probed one.
func (y *YtDlp) findDownloaded(id string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(y.tempDir, id+".*"))
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		ext := filepath.Ext(m)
		if ext == ".part" || ext == ".ytdl" || ext == ".wav" || ext == ".mp3" {
			continue
		}
		return m, nil
	}
	return "", fmt.Errorf("downloaded file for %s not found in %s", id, y.tempDir)
}

func (y *YtDlp) probeArgs(url string) []string {
	return []string{
		"--quiet",
		"--no-warnings",
		"--skip-download",
		"--no-check-certificates",
		"--dump-single-json",
		url,
	}
}

func (y *YtDlp) downloadArgs(url string) []string {
	return []string{
		"--quiet",
		"--no-warnings",
		"--no-check-certificates",
		"-f", downloadFormat,
		"-o", filepath.Join(y.tempDir, "%(id)s.%(ext)s"),
		url,
	}
}
