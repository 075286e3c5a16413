// Package distfile parses distribution artifact filenames: wheels
// (name-version[-build]-interpreter-abi-platform.whl) and source
// distributions (name-version.tar.gz or .zip).
package distfile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/pep440"
)

// Wheel is a parsed wheel filename.
type Wheel struct {
	Name    string
	Version pep440.Version
	Build   BuildTag
	Tag     pep425.Tag
}

// BuildTag is the optional build number between version and tags. It
// orders numerically first, then by suffix.
type BuildTag struct {
	Number int
	Suffix string
	raw    string
}

// Compare orders build tags; an absent tag sorts lowest.
func (b BuildTag) Compare(o BuildTag) int {
	if b.Number != o.Number {
		if b.Number < o.Number {
			return -1
		}
		return 1
	}
	return strings.Compare(b.Suffix, o.Suffix)
}

func (b BuildTag) String() string {
	return b.raw
}

// ParseWheel parses a wheel filename. The name, version, and optional
// build segments never contain dashes (the format escapes them), so the
// dash-separated field count is exactly five or six.
func ParseWheel(filename string) (Wheel, error) {
	stem, ok := strings.CutSuffix(filename, ".whl")
	if !ok {
		return Wheel{}, fmt.Errorf("invalid wheel filename %q: missing .whl suffix", filename)
	}
	parts := strings.Split(stem, "-")
	if len(parts) != 5 && len(parts) != 6 {
		return Wheel{}, fmt.Errorf("invalid wheel filename %q: expected 5 or 6 dash-separated fields", filename)
	}

	w := Wheel{
		Name: parts[0],
		Tag: pep425.Tag{
			Interpreter: parts[len(parts)-3],
			ABI:         parts[len(parts)-2],
			Platform:    parts[len(parts)-1],
		},
	}
	version, err := pep440.Parse(parts[1])
	if err != nil {
		return Wheel{}, fmt.Errorf("invalid wheel filename %q: %w", filename, err)
	}
	w.Version = version

	if len(parts) == 6 {
		build, err := parseBuildTag(parts[2])
		if err != nil {
			return Wheel{}, fmt.Errorf("invalid wheel filename %q: %w", filename, err)
		}
		w.Build = build
	}
	return w, nil
}

var buildTagRe = regexp.MustCompile(`^(\d+)(.*)$`)

func parseBuildTag(s string) (BuildTag, error) {
	m := buildTagRe.FindStringSubmatch(s)
	if m == nil {
		return BuildTag{}, fmt.Errorf("build tag %q does not start with a digit", s)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return BuildTag{}, fmt.Errorf("build tag %q: %w", s, err)
	}
	return BuildTag{Number: n, Suffix: m[2], raw: s}, nil
}

// Sdist is a parsed source distribution filename.
type Sdist struct {
	Name    string
	Version pep440.Version
}

var sdistSuffixes = []string{".tar.gz", ".tgz", ".tar.bz2", ".zip"}

// ParseSdist parses a source distribution filename. Project names may
// contain dashes, so the split point is the rightmost dash whose remainder
// parses as a version.
func ParseSdist(filename string) (Sdist, error) {
	stem := ""
	for _, suffix := range sdistSuffixes {
		if s, ok := strings.CutSuffix(filename, suffix); ok {
			stem = s
			break
		}
	}
	if stem == "" {
		return Sdist{}, fmt.Errorf("invalid sdist filename %q: unknown suffix", filename)
	}

	for i := len(stem) - 1; i > 0; i-- {
		if stem[i] != '-' {
			continue
		}
		version, err := pep440.Parse(stem[i+1:])
		if err != nil {
			continue
		}
		return Sdist{Name: stem[:i], Version: version}, nil
	}
	return Sdist{}, fmt.Errorf("invalid sdist filename %q: no version segment", filename)
}

// IsWheel reports whether the filename has the wheel suffix.
func IsWheel(filename string) bool {
	return strings.HasSuffix(filename, ".whl")
}

// IsSdist reports whether the filename has a source distribution suffix.
func IsSdist(filename string) bool {
	for _, suffix := range sdistSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}

var normalizeRe = regexp.MustCompile(`[-_.]+`)

// NormalizeName canonicalizes a project name per the simple index rules:
// lowercase with runs of "-", "_", "." collapsed to a single dash.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(name, "-"))
}
