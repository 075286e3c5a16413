// Package reqfile parses requirements files: one requirement per line,
// with comments, line continuations, nested includes, and embedded
// global options.
package reqfile

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/frederic-klein/pydl/internal/dist"
)

// Result is everything a requirements file contributes to a run.
type Result struct {
	Requirements []dist.Requirement
	Options      Options
}

// Options are the global option lines a requirements file may embed.
// They merge into the run's configuration; the last writer wins for
// scalar options.
type Options struct {
	IndexURL       string
	ExtraIndexURLs []string
	NoIndex        bool
	FindLinks      []string
	PreferBinary   bool
	Pre            bool
	// Format holds --no-binary/--only-binary occurrences in file order.
	// Order matters: later directives override earlier ones.
	Format []FormatDirective
}

// FormatDirective is one --no-binary or --only-binary occurrence.
type FormatDirective struct {
	Require bool // --only-binary when true, --no-binary otherwise
	Value   string
}

// A comment runs from an unescaped # preceded by whitespace (or at line
// start) to the end of the line.
var commentRe = regexp.MustCompile(`(^|\s+)#.*$`)

// Parse reads a requirements file, following nested -r includes. A file
// with no requirement lines parses to an empty Result without error.
func Parse(path string) (*Result, error) {
	p := &parser{
		result:  &Result{},
		visited: make(map[string]bool),
	}
	if err := p.parseFile(path); err != nil {
		return nil, err
	}
	return p.result, nil
}

type parser struct {
	result  *Result
	visited map[string]bool
}

func (p *parser) parseFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving requirements file path: %w", err)
	}
	// A file including itself, directly or through another include,
	// contributes nothing on the second visit.
	if p.visited[abs] {
		return nil
	}
	p.visited[abs] = true

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading requirements file: %w", err)
	}

	for _, line := range logicalLines(string(data)) {
		text := strings.TrimSpace(commentRe.ReplaceAllString(line.text, ""))
		if text == "" {
			continue
		}
		if err := p.parseLine(path, text); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line.number, err)
		}
	}
	return nil
}

func (p *parser) parseLine(path, text string) error {
	if !strings.HasPrefix(text, "-") {
		req, err := dist.ParseRequirement(text)
		if err != nil {
			return err
		}
		p.result.Requirements = append(p.result.Requirements, req)
		return nil
	}

	name, value := splitOption(text)
	switch name {
	case "-r", "--requirement":
		if value == "" {
			return fmt.Errorf("%s needs a file path", name)
		}
		nested := value
		if !filepath.IsAbs(nested) {
			nested = filepath.Join(filepath.Dir(path), nested)
		}
		return p.parseFile(nested)
	case "-e", "--editable":
		if value == "" {
			return fmt.Errorf("%s needs a path or VCS url", name)
		}
		p.result.Requirements = append(p.result.Requirements, editableRequirement(value))
	case "-i", "--index-url":
		p.result.Options.IndexURL = value
	case "--extra-index-url":
		p.result.Options.ExtraIndexURLs = append(p.result.Options.ExtraIndexURLs, value)
	case "--no-index":
		p.result.Options.NoIndex = true
	case "-f", "--find-links":
		p.result.Options.FindLinks = append(p.result.Options.FindLinks, p.findLinksValue(path, value))
	case "--prefer-binary":
		p.result.Options.PreferBinary = true
	case "--pre":
		p.result.Options.Pre = true
	case "--no-binary":
		p.result.Options.Format = append(p.result.Options.Format, FormatDirective{Value: value})
	case "--only-binary":
		p.result.Options.Format = append(p.result.Options.Format, FormatDirective{Require: true, Value: value})
	default:
		return fmt.Errorf("unknown option %q", name)
	}
	return nil
}

// findLinksValue resolves a relative find-links path against the
// requirements file's directory when something exists there, and keeps
// it as given otherwise.
func (p *parser) findLinksValue(path, value string) string {
	if strings.Contains(value, "://") || filepath.IsAbs(value) {
		return value
	}
	relative := filepath.Join(filepath.Dir(path), value)
	if _, err := os.Stat(relative); err == nil {
		return relative
	}
	return value
}

// editableRequirement interprets a -e target. A bare directory name
// would otherwise parse like a project name, and editables are always
// paths or VCS references.
func editableRequirement(value string) dist.Requirement {
	req, err := dist.ParseRequirement(value)
	if err == nil && req.Origin != dist.OriginIndex {
		req.Editable = true
		return req
	}
	return dist.Requirement{Origin: dist.OriginPath, URL: value, Editable: true}
}

// splitOption splits "--opt=value", "--opt value", or "-o value" into
// name and value. The =-form only counts when the text before = has no
// spaces, so URLs with query strings split on the space instead.
func splitOption(text string) (name, value string) {
	if eqName, eqValue, ok := strings.Cut(text, "="); ok && !strings.ContainsAny(eqName, " \t") {
		return eqName, strings.TrimSpace(eqValue)
	}
	name, value, _ = strings.Cut(text, " ")
	return name, strings.TrimSpace(value)
}

type logicalLine struct {
	text   string
	number int
}

// logicalLines splits the file into lines, joining a line ending in a
// backslash with its successor. A joined line keeps the number of its
// first physical line.
func logicalLines(data string) []logicalLine {
	raw := strings.Split(data, "\n")
	var out []logicalLine
	for i := 0; i < len(raw); i++ {
		start := i
		text := strings.TrimRight(raw[i], "\r")
		for strings.HasSuffix(text, "\\") && i+1 < len(raw) {
			i++
			text = text[:len(text)-1] + strings.TrimRight(raw[i], "\r")
		}
		out = append(out, logicalLine{text: text, number: start + 1})
	}
	return out
}
