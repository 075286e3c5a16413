package dist

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/pep440"
)

// Origin says where a requirement's artifact comes from.
type Origin string

const (
	// OriginIndex resolves against the configured indexes.
	OriginIndex Origin = "index"
	// OriginPath is a local file or directory path.
	OriginPath Origin = "path"
	// OriginURL is a direct artifact URL.
	OriginURL Origin = "url"
	// OriginVCS is a version control reference (git+..., hg+...).
	OriginVCS Origin = "vcs"
)

// Requirement is one parsed requirement line. Immutable once parsed.
type Requirement struct {
	Name      string // normalized
	RawName   string
	Extras    []string
	Specifier pep440.SpecifierSet
	Origin    Origin
	URL       string // direct origins only
	Hash      *Hash  // from a #algorithm=digest fragment
	Marker    string // raw environment marker text, if any
	// Editable marks a `-e` requirements-file entry. Editables need a
	// build step, so the resolver rejects them with a clear error.
	Editable bool
}

// String renders the requirement roughly as given, for messages.
func (r Requirement) String() string {
	if r.Origin != OriginIndex {
		return r.URL
	}
	s := r.RawName
	if len(r.Extras) > 0 {
		s += "[" + strings.Join(r.Extras, ",") + "]"
	}
	return s + r.Specifier.String()
}

var namePartRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)\s*(?:\[([^\]]*)\])?\s*(.*)$`)

var vcsSchemes = []string{"git+", "hg+", "svn+", "bzr+"}

// ParseRequirement parses a requirement string: "name", "name[extra]>=1.0",
// a direct URL, or a local path. URL fragments carry an expected hash.
// A trailing "; marker" is kept verbatim for the resolver to interpret.
func ParseRequirement(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Requirement{}, fmt.Errorf("empty requirement")
	}

	var req Requirement
	if text, marker, ok := strings.Cut(s, ";"); ok {
		s = strings.TrimSpace(text)
		req.Marker = strings.TrimSpace(marker)
	}

	// "name @ url" pins a project to a direct origin.
	if name, target, ok := cutDirectReference(s); ok {
		parsed, err := parseDirect(target)
		if err != nil {
			return Requirement{}, err
		}
		req.Origin, req.URL, req.Hash = parsed.Origin, parsed.URL, parsed.Hash
		req.RawName = name
		req.Name = distfile.NormalizeName(name)
		return req, nil
	}

	if isDirect(s) {
		parsed, err := parseDirect(s)
		if err != nil {
			return Requirement{}, err
		}
		parsed.Marker = req.Marker
		return parsed, nil
	}

	m := namePartRe.FindStringSubmatch(s)
	if m == nil {
		return Requirement{}, fmt.Errorf("invalid requirement: %q", s)
	}
	req.RawName = m[1]
	req.Name = distfile.NormalizeName(m[1])
	req.Origin = OriginIndex
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			extra = strings.TrimSpace(extra)
			if extra != "" {
				req.Extras = append(req.Extras, distfile.NormalizeName(extra))
			}
		}
	}
	// Older metadata wraps the specifier in parentheses: "name (>=1.0)".
	specText := strings.TrimSpace(m[3])
	if strings.HasPrefix(specText, "(") && strings.HasSuffix(specText, ")") {
		specText = specText[1 : len(specText)-1]
	}
	spec, err := pep440.ParseSpecifierSet(specText)
	if err != nil {
		return Requirement{}, fmt.Errorf("invalid requirement %q: %w", s, err)
	}
	req.Specifier = spec
	return req, nil
}

func cutDirectReference(s string) (name, target string, ok bool) {
	name, target, ok = strings.Cut(s, " @ ")
	if !ok || strings.ContainsAny(name, " /:") {
		return "", "", false
	}
	return strings.TrimSpace(name), strings.TrimSpace(target), true
}

func isDirect(s string) bool {
	if strings.Contains(s, "://") {
		return true
	}
	if strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "/") {
		return true
	}
	// A bare artifact filename with a path separator is a local file.
	return strings.ContainsRune(s, '/') && (distfile.IsWheel(s) || distfile.IsSdist(s))
}

func parseDirect(s string) (Requirement, error) {
	req := Requirement{URL: s}
	for _, scheme := range vcsSchemes {
		if strings.HasPrefix(s, scheme) {
			req.Origin = OriginVCS
			return req, nil
		}
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Requirement{}, fmt.Errorf("invalid requirement URL %q: %w", s, err)
		}
		if u.Fragment != "" {
			hash, err := ParseHashFragment(u.Fragment)
			if err != nil {
				return Requirement{}, fmt.Errorf("invalid requirement URL %q: %w", s, err)
			}
			req.Hash = hash
			u.Fragment = ""
			req.URL = u.String()
		}
		if u.Scheme == "file" {
			req.Origin = OriginPath
		} else {
			req.Origin = OriginURL
		}
		req.RawName, req.Name = nameFromArtifact(path.Base(u.Path))
		return req, nil
	}

	req.Origin = OriginPath
	req.RawName, req.Name = nameFromArtifact(path.Base(s))
	return req, nil
}

// nameFromArtifact recovers the project name from an artifact filename,
// empty when the filename does not parse. Metadata fills the gap later.
func nameFromArtifact(filename string) (raw, normalized string) {
	if distfile.IsWheel(filename) {
		if w, err := distfile.ParseWheel(filename); err == nil {
			return w.Name, distfile.NormalizeName(w.Name)
		}
	}
	if distfile.IsSdist(filename) {
		if sd, err := distfile.ParseSdist(filename); err == nil {
			return sd.Name, distfile.NormalizeName(sd.Name)
		}
	}
	return "", ""
}

// ExtraRequested reports whether the requirement's marker limits it to an
// extra and, if so, whether that extra is among the selected ones. Only
// `extra == "name"` markers are interpreted; anything else matches.
func (r Requirement) ExtraRequested(selected []string) bool {
	if r.Marker == "" {
		return true
	}
	name, ok := markerExtra(r.Marker)
	if !ok {
		return true
	}
	for _, e := range selected {
		if e == name {
			return true
		}
	}
	return false
}

var extraMarkerRe = regexp.MustCompile(`^extra\s*==\s*['"]([^'"]+)['"]$`)

func markerExtra(marker string) (string, bool) {
	m := extraMarkerRe.FindStringSubmatch(strings.TrimSpace(marker))
	if m == nil {
		return "", false
	}
	return distfile.NormalizeName(m[1]), true
}
