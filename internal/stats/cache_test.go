package stats

import (
	"context"
	"testing"
	"time"

	"fieldsync/pkg/logger"
)

func init() {
	logger.InitLogger("test")
}

func TestKeyBucketsByOwnerAndMonth(t *testing.T) {
	period := time.Date(2025, 1, 20, 14, 0, 0, 0, time.UTC)
	if got, want := Key("rep-7", period), "fieldsync:stats:rep-7:2025-01"; got != want {
		t.Fatalf("Key = %q, want %q", got, want)
	}
}

func TestDisabledCacheIsSafe(t *testing.T) {
	c := New(nil, 0)
	ctx := context.Background()

	c.Set(ctx, "rep-7", time.Now(), "{}")
	c.Invalidate(ctx, "rep-7", time.Now())
	if _, ok := c.Get(ctx, "rep-7", time.Now()); ok {
		t.Fatal("disabled cache returned a hit")
	}
}
