// Package dist holds the shared model for distribution candidates, links,
// metadata, and parsed requirements.
package dist

import (
	"fmt"
	"strings"

	"github.com/frederic-klein/pydl/internal/distfile"
	"github.com/frederic-klein/pydl/internal/pep425"
	"github.com/frederic-klein/pydl/internal/pep440"
)

// Kind distinguishes source distributions from built wheels.
type Kind string

const (
	KindSource Kind = "source"
	KindBinary Kind = "binary"
)

// Candidate is one concrete artifact a requirement could resolve to.
type Candidate struct {
	Name    string // normalized project name
	Version pep440.Version
	Kind    Kind
	Tags    []pep425.Tag     // binary only; compound fields stay compound
	Build   distfile.BuildTag // binary only
	Link    Link
}

func (c Candidate) String() string {
	return c.Link.Filename
}

// Link is the location a candidate was advertised at, with everything the
// index page said about it.
type Link struct {
	URL      string
	Filename string
	// Hash is the #algorithm=digest fragment, if any.
	Hash *Hash
	// Metadata is nil when the index declared no metadata resource.
	Metadata *MetadataDescriptor
	// RequiresPython is the raw specifier from data-requires-python.
	RequiresPython string
	Yanked         bool
	YankedReason   string
}

// MetadataLocation returns the URL of the link's metadata resource.
func (l Link) MetadataLocation() string {
	return l.URL + ".metadata"
}

// MetadataDescriptor marks that a metadata resource exists for a link.
// Hash is nil when the index declared it without a digest.
type MetadataDescriptor struct {
	Hash *Hash
}

// ParseMetadataAttr interprets the metadata marker attribute from an index
// anchor: "true" means present without a digest, "alg=hex" means present
// with one. Any other non-empty value is kept as an unmatchable digest so
// verification fails loudly instead of silently skipping it.
func ParseMetadataAttr(value string) *MetadataDescriptor {
	if value == "" {
		return nil
	}
	if value == "true" {
		return &MetadataDescriptor{}
	}
	alg, digest, ok := strings.Cut(value, "=")
	if !ok {
		return &MetadataDescriptor{Hash: &Hash{Algorithm: "sha256", Digest: value}}
	}
	return &MetadataDescriptor{Hash: &Hash{Algorithm: strings.ToLower(alg), Digest: digest}}
}

// Hash is an algorithm/hex-digest pair.
type Hash struct {
	Algorithm string
	Digest    string
}

func (h Hash) String() string {
	return h.Algorithm + "=" + h.Digest
}

// ParseHashFragment parses an "algorithm=hexdigest" URL fragment.
func ParseHashFragment(fragment string) (*Hash, error) {
	alg, digest, ok := strings.Cut(fragment, "=")
	if !ok || alg == "" || digest == "" {
		return nil, fmt.Errorf("invalid hash fragment: %q", fragment)
	}
	return &Hash{Algorithm: strings.ToLower(alg), Digest: strings.ToLower(digest)}, nil
}

// ResolvedMetadata is the dependency-relevant subset of a distribution's
// core metadata.
type ResolvedMetadata struct {
	Name           string
	Version        string
	RequiresPython string
	RequiresDist   []string
}
