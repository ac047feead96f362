package services

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"videoconverter/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testS3Config() *config.Config {
	return &config.Config{
		S3Bucket:       "videos",
		S3Region:       "us-east-1",
		AWSS3AccessKey: "key",
		AWSS3SecretKey: "secret",
		S3Endpoint:     "http://s3.example.invalid",
		S3UsePathStyle: true,
		S3Prefix:       "converted",
	}
}

func TestS3Service_ArchiveUploadsMP4(t *testing.T) {
	t.Parallel()

	var (
		gotPath        string
		gotContentType string
		gotBody        []byte
	)
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if r.Body != nil {
			gotBody, _ = io.ReadAll(r.Body)
			_ = r.Body.Close()
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Header:     http.Header{"Etag": []string{`"etag"`}},
			Request:    r,
		}, nil
	})}

	svc, err := NewS3Service(testS3Config(), client)
	if err != nil {
		t.Fatalf("NewS3Service: %v", err)
	}

	local := filepath.Join(t.TempDir(), "converted_clip.mp4")
	if err := os.WriteFile(local, []byte("mp4-bytes"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	key, err := svc.Archive(context.Background(), local)
	if err != nil {
		t.Fatalf("Archive failed: %v", err)
	}
	if key != "converted/converted_clip.mp4" {
		t.Fatalf("unexpected key %q", key)
	}
	if gotPath != "/videos/converted/converted_clip.mp4" {
		t.Fatalf("unexpected request path %q", gotPath)
	}
	if gotContentType != "video/mp4" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if !strings.Contains(string(gotBody), "mp4-bytes") {
		t.Fatalf("artifact body not uploaded, got %q", gotBody)
	}
}

func TestS3Service_ArchiveMissingFile(t *testing.T) {
	t.Parallel()

	svc, err := NewS3Service(testS3Config(), &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})})
	if err != nil {
		t.Fatalf("NewS3Service: %v", err)
	}
	if _, err := svc.Archive(context.Background(), filepath.Join(t.TempDir(), "nope.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestS3Service_Key(t *testing.T) {
	cases := map[string]string{
		"":         "converted_a.mp4",
		"/archive": "archive/converted_a.mp4",
		"archive/": "archive/converted_a.mp4",
		"a/b/":     "a/b/converted_a.mp4",
	}
	for prefix, want := range cases {
		svc := &S3Service{prefix: prefix}
		if got := svc.Key("/data/out/converted_a.mp4"); got != want {
			t.Errorf("Key with prefix %q = %q, want %q", prefix, got, want)
		}
	}
}
