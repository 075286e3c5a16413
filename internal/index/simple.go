package index

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"github.com/frederic-klein/pydl/internal/cache"
	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
)

const defaultPageTTL = 10 * time.Minute

// Simple queries a hosted simple index: the root URL lists per-project
// pages, each project page lists artifact anchors. Roots may be http(s)
// or file URLs.
type Simple struct {
	baseURL string
	client  *http.Client
	cache   cache.Cache
	pageTTL time.Duration
	logger  *log.Logger
}

// SimpleOptions configures a Simple source.
type SimpleOptions struct {
	// Client is the HTTP client for page fetches. Nil uses a default
	// with a 15 second timeout.
	Client *http.Client
	// Cache holds fetched pages. Nil disables caching.
	Cache cache.Cache
	// PageTTL bounds the cache lifetime of project pages.
	PageTTL time.Duration
	Logger  *log.Logger
}

// NewSimple creates a source for the given index root URL.
func NewSimple(baseURL string, opts SimpleOptions) *Simple {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewNull()
	}
	if opts.PageTTL == 0 {
		opts.PageTTL = defaultPageTTL
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Simple{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  opts.Client,
		cache:   opts.Cache,
		pageTTL: opts.PageTTL,
		logger:  opts.Logger,
	}
}

// URL returns the index root.
func (s *Simple) URL() string {
	return s.baseURL
}

// Candidates fetches and parses the project's page. An unknown project is
// an empty result, not an error.
func (s *Simple) Candidates(ctx context.Context, project string) ([]dist.Candidate, error) {
	pageURL := s.baseURL + "/" + distfile.NormalizeName(project) + "/"
	page, found, err := s.fetchPage(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	if !found {
		s.logger.Debug("project not in index", "project", project, "url", pageURL)
		return nil, nil
	}

	links, err := parsePage(page, pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing index page %s: %w", pageURL, err)
	}

	want := distfile.NormalizeName(project)
	var out []dist.Candidate
	for _, link := range links {
		c, ok := candidateFromLink(link)
		if !ok {
			s.logger.Debug("skipping unrecognized file", "filename", link.Filename)
			continue
		}
		if c.Name != want {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// fetchPage returns the page bytes, or found=false on a 404.
func (s *Simple) fetchPage(ctx context.Context, pageURL string) ([]byte, bool, error) {
	if data, hit, _ := s.cache.Get(ctx, pageURL); hit {
		return data, true, nil
	}

	var data []byte
	if strings.HasPrefix(pageURL, "file:") {
		var found bool
		var err error
		data, found, err = readFilePage(pageURL)
		if err != nil || !found {
			return nil, found, err
		}
	} else {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return nil, false, fmt.Errorf("building index request: %w", err)
		}
		req.Header.Set("Accept", "text/html")
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, false, fmt.Errorf("fetching index page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, false, fmt.Errorf("fetching index page %s: HTTP %d", pageURL, resp.StatusCode)
		}
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("reading index page: %w", err)
		}
	}

	if err := s.cache.Set(ctx, pageURL, data, s.pageTTL); err != nil {
		s.logger.Debug("caching index page failed", "url", pageURL, "err", err)
	}
	return data, true, nil
}

// readFilePage loads a file URL; a directory reads its index.html.
func readFilePage(pageURL string) ([]byte, bool, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, false, fmt.Errorf("parsing file url: %w", err)
	}
	p := filepath.FromSlash(u.Path)
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		p = filepath.Join(p, "index.html")
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading index page: %w", err)
	}
	return data, true, nil
}

// parsePage extracts artifact links from a project page. Anchor hrefs are
// resolved against the page URL; hash fragments and the metadata,
// requires-python, and yanked annotations are carried on the link.
func parsePage(page []byte, pageURL string) ([]dist.Link, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parsing page url: %w", err)
	}

	var links []dist.Link
	tok := html.NewTokenizer(bytes.NewReader(page))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			if tok.Err() == io.EOF {
				return links, nil
			}
			return nil, tok.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			t := tok.Token()
			if t.Data != "a" {
				continue
			}
			if link, ok := linkFromAnchor(t, base); ok {
				links = append(links, link)
			}
		}
	}
}

func linkFromAnchor(t html.Token, base *url.URL) (dist.Link, bool) {
	var link dist.Link
	var href string
	for _, attr := range t.Attr {
		switch attr.Key {
		case "href":
			href = attr.Val
		case "data-core-metadata", "data-dist-info-metadata":
			// The newer attribute name wins when both appear.
			if link.Metadata == nil || attr.Key == "data-core-metadata" {
				if d := dist.ParseMetadataAttr(attr.Val); d != nil {
					link.Metadata = d
				}
			}
		case "data-requires-python":
			link.RequiresPython = attr.Val
		case "data-yanked":
			link.Yanked = true
			link.YankedReason = attr.Val
		}
	}
	if href == "" {
		return dist.Link{}, false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return dist.Link{}, false
	}
	resolved := base.ResolveReference(ref)
	if resolved.Fragment != "" {
		if hash, err := dist.ParseHashFragment(resolved.Fragment); err == nil {
			link.Hash = hash
		}
		resolved.Fragment = ""
	}
	link.URL = resolved.String()
	if filename, err := url.PathUnescape(path.Base(resolved.Path)); err == nil {
		link.Filename = filename
	} else {
		link.Filename = path.Base(resolved.Path)
	}
	return link, true
}
