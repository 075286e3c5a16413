package index

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

	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
)

// Flat is a find-links source: a directory of artifacts, given as a local
// path, a file URL, or a remote page listing artifact links.
type Flat struct {
	location string
	client   *http.Client
	logger   *log.Logger
}

// NewFlat creates a find-links source for the given location.
func NewFlat(location string, client *http.Client, logger *log.Logger) *Flat {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Flat{location: location, client: client, logger: logger}
}

// Candidates lists the location and keeps the entries whose filenames
// parse as distributions of the project.
func (f *Flat) Candidates(ctx context.Context, project string) ([]dist.Candidate, error) {
	links, err := f.links(ctx)
	if err != nil {
		return nil, err
	}

	want := distfile.NormalizeName(project)
	var out []dist.Candidate
	for _, link := range links {
		c, ok := candidateFromLink(link)
		if !ok {
			f.logger.Debug("skipping unrecognized file", "filename", link.Filename)
			continue
		}
		if c.Name != want {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *Flat) links(ctx context.Context) ([]dist.Link, error) {
	if strings.HasPrefix(f.location, "http://") || strings.HasPrefix(f.location, "https://") {
		return f.remoteLinks(ctx)
	}

	dir := f.location
	if strings.HasPrefix(dir, "file:") {
		u, err := url.Parse(dir)
		if err != nil {
			return nil, fmt.Errorf("parsing find-links url: %w", err)
		}
		dir = filepath.FromSlash(u.Path)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing find-links dir: %w", err)
	}
	var links []dist.Link
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, entry.Name()))
		if err != nil {
			abs = filepath.Join(dir, entry.Name())
		}
		links = append(links, dist.Link{
			URL:      "file://" + filepath.ToSlash(abs),
			Filename: entry.Name(),
		})
	}
	return links, nil
}

func (f *Flat) remoteLinks(ctx context.Context) ([]dist.Link, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.location, nil)
	if err != nil {
		return nil, fmt.Errorf("building find-links request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching find-links page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching find-links page %s: HTTP %d", f.location, resp.StatusCode)
	}
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading find-links page: %w", err)
	}
	return parsePage(page, f.location)
}
