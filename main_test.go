package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"videoconverter/api"
	"videoconverter/models"
	"videoconverter/services"
)

type recordingConverter struct {
	mu     sync.Mutex
	inputs []string
}

func (r *recordingConverter) Submit(_ int64, inputPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, inputPath)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"serve", "migrate", "upload", "watch"} {
		if found, _, err := cmd.Find([]string{name}); err != nil || found.Name() != name {
			t.Fatalf("expected %s command, got %v (%v)", name, found, err)
		}
	}
}

func TestUploadCommandQueuesFolder(t *testing.T) {
	dir := t.TempDir()
	store := services.NewMemoryStore()
	converter := &recordingConverter{}
	srv := api.NewServer(store, converter, api.Options{
		UploadDir: filepath.Join(dir, "uploads"),
		OutputDir: filepath.Join(dir, "out"),
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	videos := filepath.Join(dir, "videos")
	if err := os.MkdirAll(videos, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"one.flv", "two.wmv", "readme.md"} {
		if err := os.WriteFile(filepath.Join(videos, name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"upload", videos, "--server", ts.URL, "--no-watch", "--env-file", ""})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("upload failed: %v\n%s", err, out.String())
	}

	if !strings.Contains(out.String(), "Added 2 of 2 files") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}
	jobs, _ := store.List(context.Background())
	if len(jobs) != 2 || len(converter.inputs) != 2 {
		t.Fatalf("expected 2 jobs and submissions, got %d and %d", len(jobs), len(converter.inputs))
	}
}

func TestUploadCommandEmptyFolder(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{"upload", t.TempDir(), "--env-file", ""})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "no compatible files") {
		t.Fatalf("expected no compatible files error, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("VIDEOCONVERTER_TEST_VALUE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("VIDEOCONVERTER_TEST_VALUE") })

	if err := loadEnvFile(path, true); err != nil {
		t.Fatalf("loadEnvFile: %v", err)
	}
	if got := os.Getenv("VIDEOCONVERTER_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	missing := filepath.Join(t.TempDir(), "missing.env")
	if err := loadEnvFile(missing, false); err != nil {
		t.Fatalf("missing default env file should be ignored: %v", err)
	}
	if err := loadEnvFile(missing, true); err == nil {
		t.Fatal("expected error for explicit missing env file")
	}
}

func TestRenderJobTable(t *testing.T) {
	url := "/converted/converted_1-a-clip.mp4"
	msg := "unsupported codec"
	jobs := []*models.ConversionJob{
		{ID: 3, OriginalName: "clip.flv", Status: models.StatusCompleted, Progress: 100, OutputURL: &url},
		{ID: 2, OriginalName: "talk.avi", Status: models.StatusProcessing, Progress: 42},
		{ID: 1, OriginalName: "bad.wmv", Status: models.StatusFailed, Error: &msg},
	}

	rendered := renderJobTable(jobs)
	for _, want := range []string{"clip.flv", "100%", "42%", url, msg, "failed"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("expected %q in table:\n%s", want, rendered)
		}
	}

	if got := summarizeJobs(jobs); got != "0 pending, 1 processing, 1 completed, 1 failed" {
		t.Fatalf("unexpected summary %q", got)
	}
}
