// Package downloader fetches distribution artifacts with integrity
// verification against expected digests.
package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/frederic-klein/pydl/internal/dist"
)

// Job is one artifact to materialize.
type Job struct {
	URL      string
	DestPath string
	Expected *dist.Hash
}

// Result pairs a job with its outcome.
type Result struct {
	Job    Job
	Reused bool // an existing file satisfied the job without a fetch
	SHA256 string
	Error  error
}

// IntegrityError is a freshly fetched artifact failing its expected hash.
// This is fatal: refetching cannot fix a poisoned origin.
type IntegrityError struct {
	URL      string
	Expected dist.Hash
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("hash mismatch for %s:\nExpected %s %s\n     Got        %s",
		e.URL, e.Expected.Algorithm, e.Expected.Digest, e.Actual)
}

// Downloader fetches artifacts over HTTP or from local paths.
type Downloader struct {
	client  *http.Client
	retries int
	logger  *log.Logger
}

// Options configures a Downloader.
type Options struct {
	// Client is used for HTTP fetches. Nil uses a default with a 60
	// second timeout.
	Client *http.Client
	// Retries is how often a fetch is retried after a server error.
	Retries int
	Logger  *log.Logger
}

// New creates a Downloader.
func New(opts Options) *Downloader {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Downloader{
		client:  opts.Client,
		retries: opts.Retries,
		logger:  opts.Logger,
	}
}

// Fetch materializes url at destPath and returns the file's sha256.
//
// An existing destination is reused when it matches the expected hash (or
// no hash was pinned). On a mismatch the stale file is discarded with a
// warning and fetched again; a mismatch on fresh content is an
// *IntegrityError.
func (d *Downloader) Fetch(ctx context.Context, rawURL, destPath string, expected *dist.Hash) (Result, error) {
	job := Job{URL: rawURL, DestPath: destPath, Expected: expected}

	if data, err := os.ReadFile(destPath); err == nil {
		if expected == nil {
			d.logger.Debug("reusing existing file", "path", destPath)
			return Result{Job: job, Reused: true, SHA256: dist.SHA256Hex(data)}, nil
		}
		actual, err := expected.Compute(data)
		if err != nil {
			return Result{Job: job}, err
		}
		if actual == strings.ToLower(expected.Digest) {
			d.logger.Debug("existing file matches expected hash", "path", destPath)
			return Result{Job: job, Reused: true, SHA256: dist.SHA256Hex(data)}, nil
		}
		d.logger.Warnf("Previously-downloaded file %s has bad hash. Re-downloading.", destPath)
		if err := os.Remove(destPath); err != nil {
			return Result{Job: job}, fmt.Errorf("removing stale file: %w", err)
		}
	}

	data, err := d.read(ctx, rawURL)
	if err != nil {
		return Result{Job: job}, err
	}
	if expected != nil {
		actual, err := expected.Compute(data)
		if err != nil {
			return Result{Job: job}, err
		}
		if actual != strings.ToLower(expected.Digest) {
			return Result{Job: job}, &IntegrityError{URL: rawURL, Expected: *expected, Actual: actual}
		}
	}

	if err := writeAtomic(destPath, data); err != nil {
		return Result{Job: job}, err
	}
	return Result{Job: job, SHA256: dist.SHA256Hex(data)}, nil
}

// read loads the artifact bytes from an HTTP origin or a local path.
func (d *Downloader) read(ctx context.Context, rawURL string) ([]byte, error) {
	switch {
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return d.readHTTP(ctx, rawURL)
	case strings.HasPrefix(rawURL, "file:"):
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("parsing artifact url: %w", err)
		}
		return os.ReadFile(filepath.FromSlash(u.Path))
	default:
		return os.ReadFile(rawURL)
	}
}

func (d *Downloader) readHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			d.logger.Debug("retrying download", "url", rawURL, "attempt", attempt, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, retryable, err := d.readHTTPOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (d *Downloader) readHTTPOnce(ctx context.Context, rawURL string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("building download request: %w", err)
	}
	// Transparent compression would change the bytes being hashed.
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("downloading %s: HTTP %d", rawURL, resp.StatusCode)
		return nil, resp.StatusCode >= 500, err
	}
	data, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading download: %w", err)
	}
	return data, false, nil
}

// writeAtomic writes through a uniquely named temp file and renames it
// into place, so parallel jobs and interrupted runs never leave a partial
// artifact at the destination.
func writeAtomic(destPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmpPath := destPath + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming file: %w", err)
	}
	return nil
}

// FetchAll runs the jobs with at most limit in flight and returns one
// result per job in job order. The first failure cancels the rest.
func (d *Downloader) FetchAll(ctx context.Context, jobs []Job, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 4
	}
	results := make([]Result, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := d.Fetch(ctx, job.URL, job.DestPath, job.Expected)
			res.Job = job
			res.Error = err
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
