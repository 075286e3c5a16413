// Package pep440 implements PEP 440 version parsing, ordering, and
// specifier matching for Python distribution versions.
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a parsed PEP 440 version: [N!]N(.N)*[{a|b|rc}N][.postN][.devN][+local].
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   string

	original string
}

// PreRelease is a pre-release segment. Phase is normalized to "a", "b", or "rc".
type PreRelease struct {
	Phase  string
	Number int
}

var versionRe = regexp.MustCompile(`^v?` +
	`(?:(\d+)!)?` + // epoch
	`(\d+(?:\.\d+)*)` + // release
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` + // pre
	`(?:(?:-(\d+))|(?:[-_.]?(post|rev|r)[-_.]?(\d*)))?` + // post
	`(?:[-_.]?(dev)[-_.]?(\d*))?` + // dev
	`(?:\+([a-z0-9]+(?:[-_.][a-z0-9]+)*))?$`) // local

// Parse parses a version string. Separators and case are normalized per
// PEP 440, so "1.0.post1", "1.0-POST1", and "1.0_post_1" are the same version.
func Parse(s string) (Version, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(s))
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version: %q", orig)
	}

	v := Version{original: orig}
	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}
	for _, part := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version: %q", orig)
		}
		v.Release = append(v.Release, n)
	}
	if m[3] != "" {
		v.Pre = &PreRelease{Phase: normalizePhase(m[3]), Number: atoiOrZero(m[4])}
	}
	if m[5] != "" {
		n, _ := strconv.Atoi(m[5])
		v.Post = &n
	} else if m[6] != "" {
		n := atoiOrZero(m[7])
		v.Post = &n
	}
	if m[8] != "" {
		n := atoiOrZero(m[9])
		v.Dev = &n
	}
	v.Local = m[10]
	return v, nil
}

// MustParse parses a version string and panics on failure. For use with
// literals in tests and tables.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func normalizePhase(p string) string {
	switch p {
	case "a", "alpha":
		return "a"
	case "b", "beta":
		return "b"
	default: // c, rc, pre, preview
		return "rc"
	}
}

func atoiOrZero(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}

// IsPrerelease reports whether v has a pre-release or dev segment.
func (v Version) IsPrerelease() bool {
	return v.Pre != nil || v.Dev != nil
}

// String returns the normalized form of the version.
func (v Version) String() string {
	var b strings.Builder
	if v.Epoch != 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}
	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	if v.Pre != nil {
		fmt.Fprintf(&b, "%s%d", v.Pre.Phase, v.Pre.Number)
	}
	if v.Post != nil {
		fmt.Fprintf(&b, ".post%d", *v.Post)
	}
	if v.Dev != nil {
		fmt.Fprintf(&b, ".dev%d", *v.Dev)
	}
	if v.Local != "" {
		fmt.Fprintf(&b, "+%s", normalizeLocal(v.Local))
	}
	return b.String()
}

func normalizeLocal(local string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' {
			return '.'
		}
		return r
	}, local)
}

// Original returns the version string as given to Parse.
func (v Version) Original() string {
	return v.original
}

// Compare returns -1, 0, or 1 ordering v against o per PEP 440.
// Local version labels participate in ordering (1.0+abc > 1.0).
func (v Version) Compare(o Version) int {
	if v.Epoch != o.Epoch {
		return cmpInt(v.Epoch, o.Epoch)
	}
	if c := compareRelease(v.Release, o.Release); c != 0 {
		return c
	}
	if c := comparePre(v, o); c != 0 {
		return c
	}
	if c := compareOptional(v.Post, o.Post, -1); c != 0 {
		return c
	}
	if c := compareOptional(v.Dev, o.Dev, 1); c != 0 {
		return c
	}
	return compareLocal(v.Local, o.Local)
}

// Equal reports whether v and o compare equal. Trailing zeros are not
// significant, so 1.0 equals 1.0.0.
func (v Version) Equal(o Version) bool {
	return v.Compare(o) == 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareRelease pads the shorter release with zeros, so 1.0 == 1.0.0.
func compareRelease(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			return cmpInt(av, bv)
		}
	}
	return 0
}

// preRank collapses the pre segment into an orderable class: a version with
// only a dev segment sorts before any pre-release of the same release, and a
// final release sorts after all of them.
func preRank(v Version) int {
	switch {
	case v.Pre == nil && v.Post == nil && v.Dev != nil:
		return -1
	case v.Pre != nil:
		return 0
	default:
		return 1
	}
}

func comparePre(a, b Version) int {
	ar, br := preRank(a), preRank(b)
	if ar != br {
		return cmpInt(ar, br)
	}
	if ar != 0 {
		return 0
	}
	// a < b < rc holds lexically.
	if a.Pre.Phase != b.Pre.Phase {
		if a.Pre.Phase < b.Pre.Phase {
			return -1
		}
		return 1
	}
	return cmpInt(a.Pre.Number, b.Pre.Number)
}

// compareOptional orders optional numeric segments. missing is the rank of
// an absent segment relative to a present one: -1 for post (absent sorts
// first), 1 for dev (absent sorts last).
func compareOptional(a, b *int, missing int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return missing
	case b == nil:
		return -missing
	default:
		return cmpInt(*a, *b)
	}
}

func compareLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	as := splitLocal(a)
	bs := splitLocal(b)
	for i := 0; i < len(as) && i < len(bs); i++ {
		an, aErr := strconv.Atoi(as[i])
		bn, bErr := strconv.Atoi(bs[i])
		switch {
		case aErr == nil && bErr == nil:
			if an != bn {
				return cmpInt(an, bn)
			}
		case aErr == nil:
			// Numeric segments sort ahead of alphanumeric ones.
			return 1
		case bErr == nil:
			return -1
		default:
			if as[i] != bs[i] {
				if as[i] < bs[i] {
					return -1
				}
				return 1
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func splitLocal(local string) []string {
	return strings.FieldsFunc(strings.ToLower(local), func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}
