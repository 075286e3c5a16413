// Package report emits and parses the machine-readable record of a
// download run.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/frederic-klein/pydl/internal/resolver"
)

// FormatVersion guards against reading reports written by an
// incompatible release.
const FormatVersion = "1"

// Report is the resolved set of one run.
type Report struct {
	Version   string  `json:"version"`
	Generator string  `json:"generator"`
	Entries   []Entry `json:"entries"`
}

// Entry is one resolved distribution.
type Entry struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Kind           string   `json:"kind"`
	Filename       string   `json:"filename"`
	URL            string   `json:"url"`
	SHA256         string   `json:"sha256,omitempty"`
	RequiresPython string   `json:"requires_python,omitempty"`
	Requires       []string `json:"requires,omitempty"`
}

// Build assembles a report from resolutions, sorted by project name.
// digests maps artifact URLs to the sha256 of the downloaded bytes.
func Build(resolutions []resolver.Resolution, digests map[string]string) *Report {
	rep := &Report{Version: FormatVersion, Generator: "pydl"}
	for _, res := range resolutions {
		entry := Entry{
			Name:           res.Candidate.Name,
			Version:        res.Candidate.Version.String(),
			Kind:           string(res.Candidate.Kind),
			Filename:       res.Candidate.Link.Filename,
			URL:            res.Candidate.Link.URL,
			SHA256:         digests[res.Candidate.Link.URL],
			RequiresPython: res.Candidate.Link.RequiresPython,
		}
		if res.Metadata != nil {
			entry.Requires = res.Metadata.RequiresDist
			if res.Metadata.RequiresPython != "" {
				entry.RequiresPython = res.Metadata.RequiresPython
			}
		}
		rep.Entries = append(rep.Entries, entry)
	}
	sort.Slice(rep.Entries, func(i, j int) bool {
		return rep.Entries[i].Name < rep.Entries[j].Name
	})
	return rep
}

// Emitter writes reports as indented JSON.
type Emitter struct {
	w io.Writer
}

// NewEmitter creates a report emitter.
func NewEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w}
}

// Emit writes the report.
func (e *Emitter) Emit(rep *Report) error {
	enc := json.NewEncoder(e.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Parser reads reports written by Emitter.
type Parser struct {
	r io.Reader
}

// NewParser creates a report parser.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: r}
}

// Parse reads one report and checks its format version.
func (p *Parser) Parse() (*Report, error) {
	var rep Report
	if err := json.NewDecoder(p.r).Decode(&rep); err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}
	if rep.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported report version %q", rep.Version)
	}
	return &rep, nil
}
