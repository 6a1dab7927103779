// Package media wraps ffmpeg and ffprobe for the audio derivations the
// pipeline needs from a downloaded video.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/kweilin/lessonforge/pkg/file"
	"github.com/kweilin/lessonforge/pkg/log"
)

// Operator is the media-processing boundary consumed by the orchestrator.
type Operator interface {
	// ExtractWAV produces the mono 16 kHz PCM file speech recognition wants.
	ExtractWAV(ctx context.Context) (string, error)
	// ExtractMP3 produces the stereo 128 kbps listening copy kept with the lesson.
	ExtractMP3(ctx context.Context) (string, error)
	// ProbeDuration reads the container duration in seconds.
	ProbeDuration(ctx context.Context) (float64, error)
}

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	filePath   string
	fileDir    string
	fileName   string
}

func NewOperator(mediaPath string) Operator {
	return NewFfmpeg(mediaPath)
}

func NewFfmpeg(mediaPath string) ffmpeg {
	mediaPath = filepath.Clean(mediaPath)

	return ffmpeg{
		ffmpegCmd:  "ffmpeg",
		ffprobeCmd: "ffprobe",
		filePath:   mediaPath,
		fileDir:    filepath.Dir(mediaPath),
		fileName:   filepath.Base(mediaPath),
	}
}

// ExtractWAV writes <media>.wav next to the source file.
func (ff ffmpeg) ExtractWAV(ctx context.Context) (string, error) {
	output := filepath.Join(ff.fileDir, file.ReplaceExt(ff.fileName, ".wav"))
	if err := ff.runFfmpeg(ctx, ff.wavArgs(output)); err != nil {
		return "", fmt.Errorf("failed to extract wav: %w", err)
	}
	return output, nil
}

// ExtractMP3 writes <media>.mp3 next to the source file.
func (ff ffmpeg) ExtractMP3(ctx context.Context) (string, error) {
	output := filepath.Join(ff.fileDir, file.ReplaceExt(ff.fileName, ".mp3"))
	if err := ff.runFfmpeg(ctx, ff.mp3Args(output)); err != nil {
		return "", fmt.Errorf("failed to extract mp3: %w", err)
	}
	return output, nil
}

// ProbeDuration reads the duration from the container format section.
func (ff ffmpeg) ProbeDuration(ctx context.Context) (float64, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return 0, err
	}
	cmd := exec.CommandContext(ctx, cmdPath, ff.probeArgs()...)

	output, err := cmd.Output()
	if err != nil {
		log.Error("Failed to run ffprobe on %s: %v", ff.filePath, err)
		return 0, err
	}

	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		log.Error("Failed to parse ffprobe output: %v", err)
		return 0, err
	}

	duration, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported no usable duration: %w", err)
	}
	return duration, nil
}

func (ff ffmpeg) runFfmpeg(ctx context.Context, args []string) error {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, cmdPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

func (ff ffmpeg) wavArgs(targetPath string) []string {
	return []string{
		"-y",
		"-i", ff.filePath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1", // mono
		"-ar", "16000", // 16 kHz, the rate Whisper expects
		targetPath,
	}
}

func (ff ffmpeg) mp3Args(targetPath string) []string {
	return []string{
		"-y",
		"-i", ff.filePath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", "128k",
		"-ac", "2",
		targetPath,
	}
}

func (ff ffmpeg) probeArgs() []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		ff.filePath,
	}
}
