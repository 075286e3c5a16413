package cache

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// File is a directory-backed cache. Each entry is one file: a first line
// holding the unix-nano expiry (0 for none) followed by the raw bytes.
type File struct {
	dir string
}

// NewFile creates the cache directory if needed and returns a cache
// rooted there.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &File{dir: dir}, nil
}

func (c *File) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false, nil
	}
	header, body, ok := bytes.Cut(data, []byte("\n"))
	if !ok {
		// Corrupt entry reads as a miss.
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}
	expiry, err := strconv.ParseInt(string(header), 10, 64)
	if err != nil {
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}
	if expiry != 0 && time.Now().UnixNano() > expiry {
		_ = os.Remove(c.path(key))
		return nil, false, nil
	}
	return body, true, nil
}

func (c *File) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	var expiry int64
	if ttl > 0 {
		expiry = time.Now().Add(ttl).UnixNano()
	}
	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	entry := append([]byte(strconv.FormatInt(expiry, 10)+"\n"), data...)
	return os.WriteFile(path, entry, 0o644)
}

func (c *File) Close() error {
	return nil
}

// path shards entries into two-character subdirectories to keep directory
// listings small.
func (c *File) path(key string) string {
	name := hashKey(key)
	return filepath.Join(c.dir, name[:2], name[2:])
}

var _ Cache = (*File)(nil)
