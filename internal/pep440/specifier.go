package pep440

import (
	"fmt"
	"regexp"
	"strings"
)

// Specifier is a single version clause such as ">=1.0" or "==2.2.*".
type Specifier struct {
	Op   string
	Text string

	version  Version
	wildcard bool
	exact    string // literal text for ===
}

// SpecifierSet is a comma-separated conjunction of specifiers. The zero
// value matches every version.
type SpecifierSet struct {
	specs []Specifier
}

var specifierRe = regexp.MustCompile(`^(===|==|!=|~=|>=|<=|>|<)\s*(.+?)\s*$`)

// ParseSpecifierSet parses a comma-separated specifier list such as
// ">=1.0,!=1.5,<2". An empty string yields a set that matches everything.
func ParseSpecifierSet(s string) (SpecifierSet, error) {
	var set SpecifierSet
	s = strings.TrimSpace(s)
	if s == "" {
		return set, nil
	}
	for _, clause := range strings.Split(s, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			return SpecifierSet{}, fmt.Errorf("invalid specifier: empty clause in %q", s)
		}
		spec, err := parseSpecifier(clause)
		if err != nil {
			return SpecifierSet{}, err
		}
		set.specs = append(set.specs, spec)
	}
	return set, nil
}

func parseSpecifier(clause string) (Specifier, error) {
	m := specifierRe.FindStringSubmatch(clause)
	if m == nil {
		return Specifier{}, fmt.Errorf("invalid specifier: %q", clause)
	}
	spec := Specifier{Op: m[1], Text: m[2]}

	if spec.Op == "===" {
		// Arbitrary equality compares the literal text, not a parsed version.
		spec.exact = strings.TrimPrefix(strings.ToLower(spec.Text), "v")
		return spec, nil
	}

	text := spec.Text
	if strings.HasSuffix(text, ".*") {
		if spec.Op != "==" && spec.Op != "!=" {
			return Specifier{}, fmt.Errorf("invalid specifier: %q (wildcard requires == or !=)", clause)
		}
		spec.wildcard = true
		text = strings.TrimSuffix(text, ".*")
	}
	v, err := Parse(text)
	if err != nil {
		return Specifier{}, fmt.Errorf("invalid specifier %q: %w", clause, err)
	}
	if spec.Op == "~=" && len(v.Release) < 2 {
		return Specifier{}, fmt.Errorf("invalid specifier: %q (~= requires at least two release segments)", clause)
	}
	spec.version = v
	return spec, nil
}

// Match reports whether v satisfies every clause in the set.
func (s SpecifierSet) Match(v Version) bool {
	for _, spec := range s.specs {
		if !spec.Match(v) {
			return false
		}
	}
	return true
}

// Empty reports whether the set has no clauses.
func (s SpecifierSet) Empty() bool {
	return len(s.specs) == 0
}

// HasPrerelease reports whether any clause names a pre-release version,
// which implicitly opts the set in to matching pre-releases.
func (s SpecifierSet) HasPrerelease() bool {
	for _, spec := range s.specs {
		if spec.Op == "===" {
			continue
		}
		if spec.version.IsPrerelease() {
			return true
		}
	}
	return false
}

// Pins reports whether the set contains an exact pin (== or === without a
// wildcard) on the given version.
func (s SpecifierSet) Pins(v Version) bool {
	for _, spec := range s.specs {
		switch spec.Op {
		case "==":
			if !spec.wildcard && spec.version.Equal(v) {
				return true
			}
		case "===":
			if spec.exact == strings.TrimPrefix(strings.ToLower(v.Original()), "v") {
				return true
			}
		}
	}
	return false
}

// String returns the set in normalized "op version" form joined by commas.
func (s SpecifierSet) String() string {
	parts := make([]string, len(s.specs))
	for i, spec := range s.specs {
		parts[i] = spec.Op + spec.Text
	}
	return strings.Join(parts, ",")
}

// Match reports whether v satisfies the clause.
func (spec Specifier) Match(v Version) bool {
	switch spec.Op {
	case "===":
		return spec.exact == strings.TrimPrefix(strings.ToLower(v.Original()), "v")
	case "==":
		if spec.wildcard {
			return prefixMatch(v, spec.version)
		}
		return equalMatch(v, spec.version)
	case "!=":
		if spec.wildcard {
			return !prefixMatch(v, spec.version)
		}
		return !equalMatch(v, spec.version)
	case "<=":
		return stripLocal(v).Compare(spec.version) <= 0
	case ">=":
		return stripLocal(v).Compare(spec.version) >= 0
	case ">":
		return greaterMatch(v, spec.version)
	case "<":
		return lessMatch(v, spec.version)
	case "~=":
		// ~=X.Y.Z means >=X.Y.Z with the X.Y series fixed.
		if stripLocal(v).Compare(spec.version) < 0 {
			return false
		}
		prefix := spec.version
		prefix.Release = prefix.Release[:len(prefix.Release)-1]
		prefix.Pre, prefix.Post, prefix.Dev, prefix.Local = nil, nil, nil, ""
		return prefixMatch(v, prefix)
	}
	return false
}

// equalMatch ignores the candidate's local label unless the clause pins one.
func equalMatch(v, spec Version) bool {
	if spec.Local == "" {
		v = stripLocal(v)
	}
	return v.Compare(spec) == 0
}

// prefixMatch compares epoch and the leading release segments only, so
// ==2.2.* matches 2.2, 2.2.1, and 2.2b1 alike.
func prefixMatch(v, prefix Version) bool {
	if v.Epoch != prefix.Epoch {
		return false
	}
	for i, want := range prefix.Release {
		have := 0
		if i < len(v.Release) {
			have = v.Release[i]
		}
		if have != want {
			return false
		}
	}
	return true
}

// greaterMatch implements the exclusive ordered comparison: >V does not
// admit a post-release or local variant of V itself.
func greaterMatch(v, spec Version) bool {
	v = stripLocal(v)
	if v.Compare(spec) <= 0 {
		return false
	}
	if spec.Post == nil && v.Post != nil && sameBase(v, spec) {
		return false
	}
	return true
}

// lessMatch mirrors greaterMatch: <V does not admit a pre-release of V
// itself unless V is one.
func lessMatch(v, spec Version) bool {
	v = stripLocal(v)
	if v.Compare(spec) >= 0 {
		return false
	}
	if !spec.IsPrerelease() && v.IsPrerelease() && sameBase(v, spec) {
		return false
	}
	return true
}

func stripLocal(v Version) Version {
	v.Local = ""
	return v
}

// sameBase reports whether two versions share epoch and release.
func sameBase(a, b Version) bool {
	return a.Epoch == b.Epoch && compareRelease(a.Release, b.Release) == 0
}
