package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// ProgressFunc receives the completion percentage reported by a transcoder.
// It may be called zero or more times before Transcode returns.
type ProgressFunc func(percent float64)

// Transcoder converts a video file into an H.264/AAC MP4.
// The returned error is the single terminal event of a conversion.
type Transcoder interface {
	Transcode(ctx context.Context, inputPath, outputPath string, onProgress ProgressFunc) error
}

// FFmpegTranscoder runs the ffmpeg and ffprobe binaries.
type FFmpegTranscoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger
}

func NewFFmpegTranscoder(ffmpegPath, ffprobePath string, logger *slog.Logger) *FFmpegTranscoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegTranscoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

func (f *FFmpegTranscoder) Transcode(ctx context.Context, inputPath, outputPath string, onProgress ProgressFunc) error {
	duration, err := f.probeDuration(ctx, inputPath)
	if err != nil {
		f.logger.Warn("could not probe duration, progress will not be reported", "input", inputPath, "error", err)
	}

	cmd := exec.CommandContext(ctx, f.ffmpegPath, transcodeArgs(inputPath, outputPath)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	lastErrLine := make(chan string, 1)
	go func() {
		lastErrLine <- lastLine(stderr)
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		percent, ok := parseProgressLine(strings.TrimSpace(scanner.Text()), duration)
		if ok && onProgress != nil {
			onProgress(percent)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// keep draining so ffmpeg does not block on a full pipe
		_, _ = io.Copy(io.Discard, stdout)
	}

	errLine := <-lastErrLine
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errLine != "" {
			return errors.New(errLine)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("failed while reading ffmpeg output: %w", scanErr)
	}
	return nil
}

func transcodeArgs(inputPath, outputPath string) []string {
	return []string{
		"-y",
		"-i", inputPath,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-f", "mp4",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}
}

// parseProgressLine converts one line of ffmpeg -progress output into a percentage.
func parseProgressLine(line string, duration float64) (float64, bool) {
	switch {
	case line == "progress=end":
		return 100, true
	case strings.HasPrefix(line, "out_time_us="), strings.HasPrefix(line, "out_time_ms="):
		if duration <= 0 {
			return 0, false
		}
		// ffmpeg reports out_time_ms in microseconds as well
		raw := line[strings.IndexByte(line, '=')+1:]
		micros, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, false
		}
		return (micros / 1_000_000.0) / duration * 100, true
	default:
		return 0, false
	}
}

func (f *FFmpegTranscoder) probeDuration(ctx context.Context, inputPath string) (float64, error) {
	cmd := exec.CommandContext(ctx,
		f.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe error: %w", err)
	}
	val := strings.TrimSpace(string(out))
	if val == "" || val == "N/A" {
		return 0, errors.New("empty duration response")
	}
	dur, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration from ffprobe: %w", err)
	}
	return dur, nil
}

func lastLine(r io.Reader) string {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var last string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	_, _ = io.Copy(io.Discard, r)
	return last
}
