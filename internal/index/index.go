// Package index discovers distribution candidates: from hosted simple
// indexes (two-level HTML pages) and from flat find-links directories.
package index

import (
	"context"

	"github.com/frederic-klein/pydl/internal/dist"
	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/pep425"
)

// Source yields the known candidates for a project. Implementations
// return an empty slice, not an error, when the project is unknown.
type Source interface {
	Candidates(ctx context.Context, project string) ([]dist.Candidate, error)
}

// candidateFromLink builds a candidate from an advertised artifact link.
// Returns false for filenames that are not distributions; the caller skips
// those rather than failing the whole page.
func candidateFromLink(link dist.Link) (dist.Candidate, bool) {
	switch {
	case distfile.IsWheel(link.Filename):
		w, err := distfile.ParseWheel(link.Filename)
		if err != nil {
			return dist.Candidate{}, false
		}
		return dist.Candidate{
			Name:    distfile.NormalizeName(w.Name),
			Version: w.Version,
			Kind:    dist.KindBinary,
			Tags:    []pep425.Tag{w.Tag},
			Build:   w.Build,
			Link:    link,
		}, true
	case distfile.IsSdist(link.Filename):
		s, err := distfile.ParseSdist(link.Filename)
		if err != nil {
			return dist.Candidate{}, false
		}
		return dist.Candidate{
			Name:    distfile.NormalizeName(s.Name),
			Version: s.Version,
			Kind:    dist.KindSource,
			Link:    link,
		}, true
	default:
		return dist.Candidate{}, false
	}
}
