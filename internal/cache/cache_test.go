package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, hit, _ := c.Get(ctx, "https://index/simple/"); hit {
		t.Fatal("Get before Set reported a hit")
	}

	want := []byte("<html>page</html>")
	if err := c.Set(ctx, "https://index/simple/", want, time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	got, hit, err := c.Get(ctx, "https://index/simple/")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !hit {
		t.Fatal("Get after Set reported a miss")
	}
	if string(got) != string(want) {
		t.Errorf("Get = %q, want %q", got, want)
	}
}

func TestFileCacheExpiry(t *testing.T) {
	c, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("data"), -time.Second); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("expired entry reported as a hit")
	}

	// ttl 0 means no expiry
	if err := c.Set(ctx, "key2", []byte("data"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key2"); !hit {
		t.Error("unexpiring entry reported as a miss")
	}
}

func TestFileCacheMultilineData(t *testing.T) {
	c, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile error: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	want := []byte("line1\nline2\nline3")
	if err := c.Set(ctx, "key", want, time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, hit, err := c.Get(ctx, "key")
	if err != nil || !hit {
		t.Fatalf("Get = (%v, %v), want hit", err, hit)
	}
	if string(got) != string(want) {
		t.Errorf("Get = %q, want %q", got, want)
	}
}

func TestNullCache(t *testing.T) {
	c := NewNull()
	ctx := context.Background()

	if err := c.Set(ctx, "key", []byte("data"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if _, hit, err := c.Get(ctx, "key"); hit || err != nil {
		t.Errorf("Get = (hit=%v, err=%v), want miss", hit, err)
	}
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	c, err := NewRedis("redis://"+mr.Addr(), "test:")
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Fatal("Get before Set reported a hit")
	}
	if err := c.Set(ctx, "key", []byte("data"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, hit, err := c.Get(ctx, "key")
	if err != nil || !hit {
		t.Fatalf("Get = (%v, %v), want hit", err, hit)
	}
	if string(got) != "data" {
		t.Errorf("Get = %q, want %q", got, "data")
	}

	// expiry is delegated to redis
	mr.FastForward(2 * time.Hour)
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("entry survived past its ttl")
	}
}

func TestRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedis("not-a-url", ""); err == nil {
		t.Error("NewRedis with invalid url succeeded, want error")
	}
}
