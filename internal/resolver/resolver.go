// Package resolver walks a set of requirements to a closed set of
// concrete distribution candidates, following Requires-Dist edges.
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/index"
	"github.com/frederic-klein/pydl/internal/metadata"
	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/selector"
)

// ConflictError is the option combination that cannot be honored: a
// target environment override with dependency resolution still on, which
// would need sdists built for a foreign interpreter.
type ConflictError struct{}

func (e *ConflictError) Error() string {
	return "When restricting platform and interpreter constraints using" +
		" --python-version, --platform, --abi, or --implementation," +
		" either --no-deps must be set, or --only-binary=:all:" +
		" must be set and --no-binary must not be set (or must be" +
		" set to :none:)."
}

// BuildRequiredError is a requirement that has no downloadable artifact:
// satisfying it means running a build backend, which is out of scope.
type BuildRequiredError struct {
	Requirement string
	Origin      string
}

func (e *BuildRequiredError) Error() string {
	return fmt.Sprintf("%s is %s and must be built before it can be downloaded; pydl does not run build backends",
		e.Requirement, e.Origin)
}

// Resolution is one resolved project: the candidate chosen for it, the
// requirement that first pulled it in, and the metadata dependencies were
// read from. Metadata is nil when dependency resolution was skipped.
type Resolution struct {
	Requirement dist.Requirement
	Candidate   dist.Candidate
	Metadata    *dist.ResolvedMetadata
}

// Options configures a Resolver.
type Options struct {
	// Sources are queried in order for index-origin requirements.
	Sources []index.Source
	// Metadata resolves candidate metadata. Nil uses a default resolver.
	Metadata *metadata.Resolver
	// Policy selects among candidates and checks Requires-Python.
	Policy selector.Policy
	// Env is the target environment, used to detect override conflicts.
	Env pep425.Environment
	// NoDeps skips dependency discovery entirely.
	NoDeps bool
	Logger *log.Logger
}

// Resolver resolves requirements recursively. Not safe for concurrent
// use; one Resolver serves one run.
type Resolver struct {
	sources   []index.Source
	meta      *metadata.Resolver
	policy    selector.Policy
	env       pep425.Environment
	noDeps    bool
	logger    *log.Logger
	resolved  map[string]*Resolution
	resolving map[string]bool
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.Metadata == nil {
		opts.Metadata = metadata.NewResolver(metadata.Options{Logger: opts.Logger})
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Resolver{
		sources:   opts.Sources,
		meta:      opts.Metadata,
		policy:    opts.Policy,
		env:       opts.Env,
		noDeps:    opts.NoDeps,
		logger:    opts.Logger,
		resolved:  make(map[string]*Resolution),
		resolving: make(map[string]bool),
	}
}

// Resolve resolves reqs and everything they require, in input order.
// The result is sorted by normalized project name.
func (r *Resolver) Resolve(ctx context.Context, reqs []dist.Requirement) ([]Resolution, error) {
	// An environment override makes source builds impossible, so
	// dependency resolution must be off or restricted to wheels. Checked
	// up front: no point touching the network for a doomed run.
	if r.env.Overridden() && !r.noDeps && !r.policy.Format.BinaryOnly() {
		return nil, &ConflictError{}
	}

	for _, req := range reqs {
		if err := r.resolveOne(ctx, req); err != nil {
			return nil, err
		}
	}

	names := make([]string, 0, len(r.resolved))
	for name := range r.resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Resolution, 0, len(names))
	for _, name := range names {
		out = append(out, *r.resolved[name])
	}
	return out, nil
}

func (r *Resolver) resolveOne(ctx context.Context, req dist.Requirement) error {
	if req.Editable {
		return &BuildRequiredError{Requirement: req.String(), Origin: "an editable requirement"}
	}
	if req.Origin == dist.OriginVCS {
		return &BuildRequiredError{Requirement: req.String(), Origin: "a version control reference"}
	}

	if req.Name != "" {
		if prior, ok := r.resolved[req.Name]; ok {
			// First resolution wins; a later, stricter requirement only
			// gets a warning. Full backtracking is a different tool.
			if !req.Specifier.Empty() && !req.Specifier.Match(prior.Candidate.Version) {
				r.logger.Warnf("%s is already resolved to %s, which does not satisfy %s",
					req.Name, prior.Candidate.Version, req.String())
			}
			return nil
		}
		if r.resolving[req.Name] {
			r.logger.Debug("skipping circular dependency", "project", req.Name)
			return nil
		}
		r.resolving[req.Name] = true
		defer delete(r.resolving, req.Name)
	}

	if req.Origin != dist.OriginIndex {
		return r.resolveDirect(ctx, req)
	}

	r.logger.Debug("resolving", "requirement", req.String())

	var candidates []dist.Candidate
	for _, src := range r.sources {
		found, err := src.Candidates(ctx, req.Name)
		if err != nil {
			return fmt.Errorf("collecting candidates for %s: %w", req.Name, err)
		}
		candidates = append(candidates, found...)
	}

	cand, err := r.policy.Select(req, candidates)
	if err != nil {
		return err
	}
	r.logger.Debug("selected", "project", cand.Name, "file", cand.Link.Filename)
	return r.admit(ctx, req, cand)
}

// resolveDirect handles path and URL origins: the artifact is already
// pinned, so the index is never consulted.
func (r *Resolver) resolveDirect(ctx context.Context, req dist.Requirement) error {
	cand, err := directCandidate(req)
	if err != nil {
		return err
	}
	if _, ok := r.resolved[cand.Name]; ok {
		return nil
	}
	r.logger.Debug("resolving direct artifact", "url", req.URL)
	return r.admit(ctx, req, cand)
}

// admit records the candidate as resolved and, unless dependency
// discovery is off, follows its Requires-Dist edges.
func (r *Resolver) admit(ctx context.Context, req dist.Requirement, cand dist.Candidate) error {
	res := &Resolution{Requirement: req, Candidate: cand}
	// Marked before recursing so dependency cycles terminate.
	r.resolved[cand.Name] = res

	if r.noDeps {
		return nil
	}

	md, err := r.meta.Resolve(ctx, cand)
	if err != nil {
		return err
	}
	res.Metadata = md

	// The link-level Requires-Python was checked during selection, but
	// metadata may carry a constraint the index page never advertised.
	pkg := md.Name
	if pkg == "" {
		pkg = cand.Name
	}
	if err := r.policy.CheckTargetPython(pkg, md.RequiresPython); err != nil {
		return err
	}

	for _, line := range md.RequiresDist {
		dep, err := dist.ParseRequirement(line)
		if err != nil {
			r.logger.Warnf("ignoring malformed dependency %q of %s: %v", line, cand.Name, err)
			continue
		}
		if !dep.ExtraRequested(req.Extras) {
			continue
		}
		if err := r.resolveOne(ctx, dep); err != nil {
			return err
		}
	}
	return nil
}

// directCandidate builds a candidate from a direct requirement's artifact
// filename. Anything that is not a wheel or sdist file needs a build.
func directCandidate(req dist.Requirement) (dist.Candidate, error) {
	filename := directFilename(req.URL)
	link := dist.Link{URL: req.URL, Filename: filename, Hash: req.Hash}

	switch {
	case distfile.IsWheel(filename):
		w, err := distfile.ParseWheel(filename)
		if err != nil {
			return dist.Candidate{}, fmt.Errorf("invalid wheel filename %q: %w", filename, err)
		}
		return dist.Candidate{
			Name:    distfile.NormalizeName(w.Name),
			Version: w.Version,
			Kind:    dist.KindBinary,
			Tags:    []pep425.Tag{w.Tag},
			Build:   w.Build,
			Link:    link,
		}, nil
	case distfile.IsSdist(filename):
		s, err := distfile.ParseSdist(filename)
		if err != nil {
			return dist.Candidate{}, fmt.Errorf("invalid sdist filename %q: %w", filename, err)
		}
		return dist.Candidate{
			Name:    distfile.NormalizeName(s.Name),
			Version: s.Version,
			Kind:    dist.KindSource,
			Link:    link,
		}, nil
	default:
		return dist.Candidate{}, &BuildRequiredError{Requirement: req.String(), Origin: "a source tree"}
	}
}

func directFilename(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(rawURL)
}
