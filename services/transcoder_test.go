package services

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func newScriptedTranscoder(t *testing.T, ffmpegBody, ffprobeBody string) *FFmpegTranscoder {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes require a POSIX shell")
	}

	dir := t.TempDir()
	ffmpeg := writeScript(t, dir, "ffmpeg", ffmpegBody)
	ffprobe := writeScript(t, dir, "ffprobe", ffprobeBody)
	return NewFFmpegTranscoder(ffmpeg, ffprobe, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFFmpegTranscoder_ReportsProgress(t *testing.T) {
	tr := newScriptedTranscoder(t, `
for last; do :; done
printf 'frame=10\nout_time_us=2500000\nprogress=continue\n'
printf 'out_time_us=5000000\nprogress=continue\n'
printf 'out_time_ms=10000000\nprogress=end\n'
echo "done" > "$last"
`, `echo 10.0`)

	output := filepath.Join(t.TempDir(), "converted_clip.mp4")
	var got []float64
	err := tr.Transcode(context.Background(), "clip.flv", output, func(p float64) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}

	want := []float64{25, 50, 100, 100}
	if len(got) != len(want) {
		t.Fatalf("expected %d progress events, got %v", len(want), got)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 0.001 {
			t.Fatalf("event %d: expected %.1f, got %.3f", i, want[i], got[i])
		}
	}
	if _, err := os.Stat(output); err != nil {
		t.Fatalf("expected output file: %v", err)
	}
}

func TestFFmpegTranscoder_ReturnsLastStderrLine(t *testing.T) {
	tr := newScriptedTranscoder(t, `
echo "Input #0, flv, from 'clip.flv':" >&2
echo "unsupported codec" >&2
exit 1
`, `echo 3.5`)

	err := tr.Transcode(context.Background(), "clip.flv", filepath.Join(t.TempDir(), "out.mp4"), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "unsupported codec" {
		t.Fatalf("expected ffmpeg stderr message, got %q", err.Error())
	}
}

func TestFFmpegTranscoder_NoDurationStillConverts(t *testing.T) {
	tr := newScriptedTranscoder(t, `
printf 'out_time_us=5000000\nprogress=continue\nprogress=end\n'
`, `exit 1`)

	var got []float64
	err := tr.Transcode(context.Background(), "clip.flv", filepath.Join(t.TempDir(), "out.mp4"), func(p float64) {
		got = append(got, p)
	})
	if err != nil {
		t.Fatalf("Transcode failed: %v", err)
	}
	if len(got) != 1 || got[0] != 100 {
		t.Fatalf("expected only the end event, got %v", got)
	}
}

func TestFFmpegTranscoder_MissingBinary(t *testing.T) {
	tr := NewFFmpegTranscoder(filepath.Join(t.TempDir(), "missing-ffmpeg"), filepath.Join(t.TempDir(), "missing-ffprobe"), nil)
	if err := tr.Transcode(context.Background(), "in.avi", "out.mp4", nil); err == nil {
		t.Fatal("expected start error")
	}
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		duration float64
		want     float64
		ok       bool
	}{
		{"end", "progress=end", 0, 100, true},
		{"continue", "progress=continue", 10, 0, false},
		{"microseconds", "out_time_us=1000000", 4, 25, true},
		{"legacy ms key", "out_time_ms=3000000", 4, 75, true},
		{"unknown duration", "out_time_us=1000000", 0, 0, false},
		{"not available", "out_time_us=N/A", 4, 0, false},
		{"other key", "bitrate=1200kbits/s", 4, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseProgressLine(tt.line, tt.duration)
			if ok != tt.ok || math.Abs(got-tt.want) > 0.001 {
				t.Fatalf("parseProgressLine(%q) = %v, %v; want %v, %v", tt.line, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestTranscodeArgsSelectH264AAC(t *testing.T) {
	args := transcodeArgs("in.wmv", "out.mp4")
	joined := map[string]string{}
	for i := 0; i+1 < len(args); i++ {
		joined[args[i]] = args[i+1]
	}
	if joined["-c:v"] != "libx264" || joined["-c:a"] != "aac" || joined["-f"] != "mp4" {
		t.Fatalf("unexpected codec args: %v", args)
	}
	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("output path must be last, got %v", args)
	}
}
