package selector

import (
	"slices"
	"strings"

	"github.com/frederic-klein/pydl/internal/distfile"
)

// FormatControl tracks which distribution formats are acceptable per
// project, following the --no-binary/--only-binary value grammar: a
// comma-separated list of project names, where ":all:" switches every
// project and clears the opposite set, and ":none:" empties the set it
// is given to.
type FormatControl struct {
	noBinary   map[string]struct{}
	onlyBinary map[string]struct{}
}

// NewFormatControl returns a control allowing both formats everywhere.
func NewFormatControl() *FormatControl {
	return &FormatControl{
		noBinary:   make(map[string]struct{}),
		onlyBinary: make(map[string]struct{}),
	}
}

// DisallowBinary applies one --no-binary value.
func (f *FormatControl) DisallowBinary(value string) {
	f.apply(value, f.noBinary, f.onlyBinary)
}

// RequireBinary applies one --only-binary value.
func (f *FormatControl) RequireBinary(value string) {
	f.apply(value, f.onlyBinary, f.noBinary)
}

func (f *FormatControl) apply(value string, target, other map[string]struct{}) {
	names := strings.Split(value, ",")
	if slices.Contains(names, ":all:") {
		clear(target)
		clear(other)
		target[":all:"] = struct{}{}
		// A later :none: can still undo the :all:; anything else in the
		// list is already covered by it.
		if !slices.Contains(names, ":none:") {
			return
		}
	}
	for _, name := range names {
		switch name {
		case "":
		case ":none:":
			clear(target)
		case ":all:":
			target[":all:"] = struct{}{}
		default:
			n := distfile.NormalizeName(name)
			delete(other, n)
			target[n] = struct{}{}
		}
	}
}

// BinaryAllowed reports whether wheels may satisfy the named project.
func (f *FormatControl) BinaryAllowed(name string) bool {
	if f == nil {
		return true
	}
	n := distfile.NormalizeName(name)
	if _, ok := f.onlyBinary[n]; ok {
		return true
	}
	if _, ok := f.noBinary[n]; ok {
		return false
	}
	if _, ok := f.onlyBinary[":all:"]; ok {
		return true
	}
	if _, ok := f.noBinary[":all:"]; ok {
		return false
	}
	return true
}

// SourceAllowed reports whether source distributions may satisfy the
// named project. A project-level entry beats the :all: wildcards.
func (f *FormatControl) SourceAllowed(name string) bool {
	if f == nil {
		return true
	}
	n := distfile.NormalizeName(name)
	if _, ok := f.onlyBinary[n]; ok {
		return false
	}
	if _, ok := f.noBinary[n]; ok {
		return true
	}
	if _, ok := f.onlyBinary[":all:"]; ok {
		return false
	}
	return true
}

// BinaryOnly reports whether the control is exactly --only-binary=:all:
// with no --no-binary entries, the shape cross-platform resolution needs.
func (f *FormatControl) BinaryOnly() bool {
	if f == nil {
		return false
	}
	if len(f.noBinary) != 0 || len(f.onlyBinary) != 1 {
		return false
	}
	_, ok := f.onlyBinary[":all:"]
	return ok
}
