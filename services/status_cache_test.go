package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"videoconverter/models"
)

func newTestStatusCache(t *testing.T, ttl time.Duration) (*StatusCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStatusCache(client, "test:", ttl), mr
}

func TestStatusCache_PublishLifecycle(t *testing.T) {
	cache, mr := newTestStatusCache(t, time.Hour)
	ctx := context.Background()

	if err := cache.PublishStatus(ctx, 7, models.StatusProcessing, "", ""); err != nil {
		t.Fatalf("PublishStatus: %v", err)
	}
	if err := cache.PublishProgress(ctx, 7, 40); err != nil {
		t.Fatalf("PublishProgress: %v", err)
	}

	progress, ok, err := cache.CachedProgress(ctx, 7)
	if err != nil || !ok || progress != 40 {
		t.Fatalf("CachedProgress = %d, %v, %v", progress, ok, err)
	}

	if err := cache.PublishStatus(ctx, 7, models.StatusCompleted, "/converted/converted_clip.mp4", ""); err != nil {
		t.Fatalf("PublishStatus completed: %v", err)
	}

	fields, err := cache.Lookup(ctx, 7)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if fields["status"] != "completed" || fields["progress"] != "100" || fields["output_url"] != "/converted/converted_clip.mp4" {
		t.Fatalf("unexpected cached fields: %v", fields)
	}
	if fields["updated_at"] == "" {
		t.Fatal("expected updated_at to be set")
	}

	if ttl := mr.TTL("test:conversion:status:7"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl %v", ttl)
	}
}

func TestStatusCache_Forget(t *testing.T) {
	cache, mr := newTestStatusCache(t, 0)
	ctx := context.Background()

	_ = cache.PublishStatus(ctx, 3, models.StatusFailed, "", "unsupported codec")
	if !mr.Exists("test:conversion:status:3") {
		t.Fatal("expected hash to exist")
	}
	if ttl := mr.TTL("test:conversion:status:3"); ttl != 0 {
		t.Fatalf("expected no ttl, got %v", ttl)
	}

	if err := cache.Forget(ctx, 3); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if mr.Exists("test:conversion:status:3") {
		t.Fatal("expected hash to be removed")
	}

	_, ok, err := cache.CachedProgress(ctx, 3)
	if err != nil || ok {
		t.Fatalf("expected no cached progress, got ok=%v err=%v", ok, err)
	}
}
