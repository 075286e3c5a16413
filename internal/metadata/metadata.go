// Package metadata resolves the dependency metadata of distribution
// candidates, preferring index-served metadata documents over fetching
// the artifact itself.
package metadata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/pydl/internal/cache"
	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/downloader"
)

// FetchError is a metadata resource the index advertised but could not
// serve. The message follows the requests library's raise_for_status
// wording, which downstream tooling matches on.
type FetchError struct {
	StatusCode int
	URL        string
}

func (e *FetchError) Error() string {
	class := "Client"
	if e.StatusCode >= 500 {
		class = "Server"
	}
	return fmt.Sprintf("%d %s Error: %s for url: %s", e.StatusCode, class, http.StatusText(e.StatusCode), e.URL)
}

// HashError is a metadata document failing the digest its index entry
// pinned for it.
type HashError struct {
	URL      string
	Expected dist.Hash
	Actual   string
}

func (e *HashError) Error() string {
	return fmt.Sprintf("metadata hash mismatch for %s:\nExpected %s %s\n     Got        %s",
		e.URL, e.Expected.Algorithm, e.Expected.Digest, e.Actual)
}

// Resolver turns candidates into resolved metadata.
type Resolver struct {
	client  *http.Client
	cache   cache.Cache
	dl      *downloader.Downloader
	scratch string
	ttl     time.Duration
	logger  *log.Logger

	mu      sync.Mutex
	fetched map[string]string // artifact url -> scratch path
}

// Options configures a Resolver. Zero values pick sane defaults.
type Options struct {
	// Client fetches metadata documents. Nil uses a default with a 15
	// second timeout.
	Client *http.Client
	// Cache stores fetched metadata across runs. Nil disables caching.
	Cache cache.Cache
	// Downloader fetches artifacts when no metadata document is served.
	Downloader *downloader.Downloader
	// ScratchDir receives artifacts fetched only for their metadata.
	ScratchDir string
	// TTL bounds cached metadata. Zero means 24 hours; metadata for a
	// published artifact never changes, the bound only caps disk use.
	TTL    time.Duration
	Logger *log.Logger
}

// NewResolver creates a metadata resolver.
func NewResolver(opts Options) *Resolver {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNull()
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Downloader == nil {
		opts.Downloader = downloader.New(downloader.Options{Client: opts.Client, Logger: opts.Logger})
	}
	if opts.ScratchDir == "" {
		opts.ScratchDir = filepath.Join(os.TempDir(), "pydl-metadata")
	}
	if opts.TTL == 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Resolver{
		client:  opts.Client,
		cache:   opts.Cache,
		dl:      opts.Downloader,
		scratch: opts.ScratchDir,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		fetched: make(map[string]string),
	}
}

// Resolve returns the metadata for a candidate. A metadata document
// advertised by the index is authoritative: if it cannot be fetched or
// fails its pinned hash, Resolve reports that error instead of falling
// back to the artifact.
func (r *Resolver) Resolve(ctx context.Context, cand dist.Candidate) (*dist.ResolvedMetadata, error) {
	var data []byte
	var err error
	if cand.Link.Metadata != nil {
		data, err = r.fetchDocument(ctx, cand.Link)
	} else {
		data, err = r.fromArtifact(ctx, cand.Link)
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// FetchedPath reports where an artifact fetched during metadata
// resolution landed, so the download step can reuse the local copy.
func (r *Resolver) FetchedPath(rawURL string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.fetched[rawURL]
	return p, ok
}

func (r *Resolver) fetchDocument(ctx context.Context, link dist.Link) ([]byte, error) {
	loc := link.MetadataLocation()
	key := "metadata:" + loc
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	}

	data, err := r.read(ctx, loc)
	if err != nil {
		return nil, err
	}
	if expected := link.Metadata.Hash; expected != nil {
		actual, err := expected.Compute(data)
		if err != nil {
			return nil, err
		}
		if actual != strings.ToLower(expected.Digest) {
			return nil, &HashError{URL: loc, Expected: *expected, Actual: actual}
		}
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Debug("caching metadata failed", "url", loc, "err", err)
	}
	return data, nil
}

func (r *Resolver) fromArtifact(ctx context.Context, link dist.Link) ([]byte, error) {
	key := "metadata:" + link.URL
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return data, nil
	}

	dest := filepath.Join(r.scratch, link.Filename)
	r.logger.Debug("fetching artifact for metadata", "url", link.URL)
	if _, err := r.dl.Fetch(ctx, link.URL, dest, link.Hash); err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.fetched[link.URL] = dest
	r.mu.Unlock()

	data, err := ExtractMetadata(dest, link.Filename)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		r.logger.Debug("caching metadata failed", "url", link.URL, "err", err)
	}
	return data, nil
}

func (r *Resolver) read(ctx context.Context, rawURL string) ([]byte, error) {
	if strings.HasPrefix(rawURL, "file:") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing metadata url: %w", err)
		}
		data, err := os.ReadFile(filepath.FromSlash(u.Path))
		if os.IsNotExist(err) {
			return nil, &FetchError{StatusCode: http.StatusNotFound, URL: rawURL}
		}
		return data, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building metadata request: %w", err)
	}
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &FetchError{StatusCode: resp.StatusCode, URL: rawURL}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	return data, nil
}
