// Package pep425 implements PEP 425 compatibility tags: parsing, expansion
// of compound tags, and the ordered tag set used to rank candidate wheels
// against a target environment.
package pep425

import (
	"fmt"
	"strings"
)

// Tag is a single (interpreter, abi, platform) compatibility triple.
// Fields may hold compound values joined by "." until Expand is applied.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

// ParseTag parses "interpreter-abi-platform". Compound fields such as
// "py2.py3-none-any" stay compound; use Expand for the cross product.
func ParseTag(s string) (Tag, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Tag{}, fmt.Errorf("invalid compatibility tag: %q", s)
	}
	return Tag{Interpreter: parts[0], ABI: parts[1], Platform: parts[2]}, nil
}

func (t Tag) String() string {
	return t.Interpreter + "-" + t.ABI + "-" + t.Platform
}

// Expand returns the cross product of the tag's compound fields, so
// "py2.py3-none-any" yields py2-none-any and py3-none-any.
func (t Tag) Expand() []Tag {
	var out []Tag
	for _, interp := range strings.Split(t.Interpreter, ".") {
		for _, abi := range strings.Split(t.ABI, ".") {
			for _, plat := range strings.Split(t.Platform, ".") {
				out = append(out, Tag{interp, abi, plat})
			}
		}
	}
	return out
}

// TagSet is the ordered tags a target environment accepts, most preferred
// first. The order is a ranking: it decides ties between candidates, not
// just membership.
type TagSet struct {
	tags []Tag
	rank map[Tag]int
}

// NewTagSet builds a set from an ordered tag list. The first occurrence of
// a tag fixes its rank.
func NewTagSet(tags []Tag) TagSet {
	rank := make(map[Tag]int, len(tags))
	for i, t := range tags {
		if _, ok := rank[t]; !ok {
			rank[t] = i + 1
		}
	}
	return TagSet{tags: tags, rank: rank}
}

// Len returns the number of tags in the set.
func (s TagSet) Len() int {
	return len(s.tags)
}

// Tags returns the ordered tag list.
func (s TagSet) Tags() []Tag {
	return s.tags
}

// Rank returns the best preference among the given tags after expansion.
// Lower is better; the range is [1, Len()] for supported tags and Len()+1
// when nothing matches.
func (s TagSet) Rank(tags []Tag) int {
	best := len(s.tags) + 1
	for _, t := range tags {
		for _, e := range t.Expand() {
			if r, ok := s.rank[e]; ok && r < best {
				best = r
			}
		}
	}
	return best
}

// Supports reports whether any of the given tags is in the set.
func (s TagSet) Supports(tags []Tag) bool {
	return s.Rank(tags) <= len(s.tags)
}
