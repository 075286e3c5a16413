// Package selector picks the best distribution candidate for a
// requirement under the active format and compatibility policy.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/pep440"
)

// NoCandidateError means no candidate survived filtering. Versions holds
// every distinct version seen for the project, ascending, so the message
// can say what was available.
type NoCandidateError struct {
	Requirement string
	Versions    []string
}

func (e *NoCandidateError) Error() string {
	list := "none"
	if len(e.Versions) > 0 {
		list = strings.Join(e.Versions, ", ")
	}
	return fmt.Sprintf("could not find a version that satisfies the requirement %s (from versions: %s)", e.Requirement, list)
}

// RequiresPythonError means a candidate's Requires-Python constraint
// rejects the target interpreter version.
type RequiresPythonError struct {
	Package   string
	Python    string
	Specifier string
}

func (e *RequiresPythonError) Error() string {
	return fmt.Sprintf("Package '%s' requires a different Python: %s not in '%s'", e.Package, e.Python, e.Specifier)
}

// Policy is the per-run selection configuration.
type Policy struct {
	// Tags ranks binary compatibility for the target environment.
	Tags pep425.TagSet
	// Format restricts which distribution kinds are acceptable per
	// project. Nil allows everything.
	Format *FormatControl
	// PreferBinary makes any acceptable wheel beat any source
	// distribution, even a newer one.
	PreferBinary bool
	// AllowPrerelease admits prerelease versions unconditionally.
	// Without it they are admitted only when the specifier mentions one,
	// or when nothing else matches.
	AllowPrerelease bool
	// TargetPython is checked against link-level Requires-Python
	// constraints. Nil skips the check.
	TargetPython *pep440.Version
	// IgnoreRequiresPython disables Requires-Python filtering.
	IgnoreRequiresPython bool
}

// Select returns the best candidate for the requirement. Filtering
// happens first (name, format policy, tag support, Requires-Python,
// yank state, version specifier); preference ordering only ever ranks
// candidates that survived it.
func (p Policy) Select(req dist.Requirement, candidates []dist.Candidate) (dist.Candidate, error) {
	name := distfile.NormalizeName(req.Name)

	var seen []pep440.Version
	var applicable, prereleases []dist.Candidate
	var pythonBlocked *RequiresPythonError

	for _, cand := range candidates {
		if cand.Name != name {
			continue
		}
		seen = append(seen, cand.Version)

		if cand.Kind == dist.KindBinary && !p.Format.BinaryAllowed(name) {
			continue
		}
		if cand.Kind == dist.KindSource && !p.Format.SourceAllowed(name) {
			continue
		}
		if cand.Kind == dist.KindBinary && !p.Tags.Supports(cand.Tags) {
			continue
		}
		if err := p.checkPython(cand.Name, cand.Link.RequiresPython); err != nil {
			if pythonBlocked == nil {
				pythonBlocked = err
			}
			continue
		}
		// Yanked releases stay eligible only for an exact == pin.
		if cand.Link.Yanked && !req.Specifier.Pins(cand.Version) {
			continue
		}
		if !req.Specifier.Match(cand.Version) {
			continue
		}
		if cand.Version.IsPrerelease() && !p.AllowPrerelease && !req.Specifier.HasPrerelease() {
			prereleases = append(prereleases, cand)
			continue
		}
		applicable = append(applicable, cand)
	}

	// Prereleases are a fallback: used only when no final release
	// satisfies the requirement.
	if len(applicable) == 0 {
		applicable = prereleases
	}
	if len(applicable) == 0 {
		if pythonBlocked != nil {
			return dist.Candidate{}, pythonBlocked
		}
		return dist.Candidate{}, &NoCandidateError{Requirement: req.String(), Versions: versionStrings(seen)}
	}

	best := applicable[0]
	for _, cand := range applicable[1:] {
		if p.better(cand, best) {
			best = cand
		}
	}
	return best, nil
}

// CheckTargetPython verifies a metadata-level Requires-Python constraint
// against the policy's target interpreter. Link-level constraints are
// filtered during Select; this covers the constraint that only shows up
// once metadata has been resolved.
func (p Policy) CheckTargetPython(pkg, requiresPython string) error {
	if err := p.checkPython(pkg, requiresPython); err != nil {
		return err
	}
	return nil
}

func (p Policy) checkPython(pkg, requiresPython string) *RequiresPythonError {
	if p.TargetPython == nil || p.IgnoreRequiresPython || requiresPython == "" {
		return nil
	}
	// An unparseable constraint carries no usable signal.
	spec, err := pep440.ParseSpecifierSet(requiresPython)
	if err != nil {
		return nil
	}
	if spec.Match(*p.TargetPython) {
		return nil
	}
	return &RequiresPythonError{Package: pkg, Python: p.TargetPython.String(), Specifier: requiresPython}
}

// better reports whether a beats b. The ordering is: prefer-binary kind
// bias (when active), version, build tag, tag preference rank with
// source ranking below every supported wheel, then filename so equal
// keys stay deterministic.
func (p Policy) better(a, b dist.Candidate) bool {
	if p.PreferBinary {
		ab, bb := a.Kind == dist.KindBinary, b.Kind == dist.KindBinary
		if ab != bb {
			return ab
		}
	}
	if c := a.Version.Compare(b.Version); c != 0 {
		return c > 0
	}
	if c := a.Build.Compare(b.Build); c != 0 {
		return c > 0
	}
	if ar, br := p.rank(a), p.rank(b); ar != br {
		return ar < br
	}
	return a.Link.Filename < b.Link.Filename
}

func (p Policy) rank(c dist.Candidate) int {
	if c.Kind == dist.KindBinary {
		return p.Tags.Rank(c.Tags)
	}
	return p.Tags.Len() + 1
}

func versionStrings(versions []pep440.Version) []string {
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Compare(versions[j]) < 0
	})
	var out []string
	for _, v := range versions {
		s := v.String()
		if len(out) == 0 || out[len(out)-1] != s {
			out = append(out, s)
		}
	}
	return out
}
