package violation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tag is a violation outcome from the closed tag vocabulary.
type Tag string

const (
	NoHelmet        Tag = "No Helmet"
	TripleRiding    Tag = "Triple Riding"
	NoLicensePlate  Tag = "No License Plate"
	RedLightJumping Tag = "Red Light Jumping"

	// NoViolation marks a rider that was analyzed and found clean.
	NoViolation Tag = "No Violation"
)

// ViolationTags lists every tag that carries a fine, in display order.
var ViolationTags = []Tag{NoHelmet, TripleRiding, NoLicensePlate, RedLightJumping}

var tagOrder = map[Tag]int{
	NoHelmet:        0,
	TripleRiding:    1,
	NoLicensePlate:  2,
	RedLightJumping: 3,
	NoViolation:     4,
}

// ParseTag converts a display name or a snake/camel case key into a Tag.
func ParseTag(s string) (Tag, error) {
	key := normalizeTagKey(s)
	for t := range tagOrder {
		if normalizeTagKey(string(t)) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown violation tag %q", s)
}

func normalizeTagKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TagSet is an immutable, ordered set of tags.
type TagSet struct {
	tags []Tag
}

// NewTagSet builds a set from tags, dropping duplicates.
func NewTagSet(tags ...Tag) TagSet {
	seen := make(map[Tag]bool, len(tags))
	out := make([]Tag, 0, len(tags))
	for _, t := range tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, iok := tagOrder[out[i]]
		oj, jok := tagOrder[out[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return out[i] < out[j]
		}
	})
	return TagSet{tags: out}
}

// Clean returns the explicit no-violation set.
func Clean() TagSet {
	return TagSet{tags: []Tag{NoViolation}}
}

// Tags returns a copy of the tags in canonical order.
func (s TagSet) Tags() []Tag {
	out := make([]Tag, len(s.tags))
	copy(out, s.tags)
	return out
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	for _, x := range s.tags {
		if x == t {
			return true
		}
	}
	return false
}

// Len returns the number of tags in the set.
func (s TagSet) Len() int { return len(s.tags) }

// IsClean reports whether the set is exactly {NoViolation}.
func (s TagSet) IsClean() bool {
	return len(s.tags) == 1 && s.tags[0] == NoViolation
}

// Violations returns the tags other than NoViolation.
func (s TagSet) Violations() []Tag {
	out := make([]Tag, 0, len(s.tags))
	for _, t := range s.tags {
		if t != NoViolation {
			out = append(out, t)
		}
	}
	return out
}

// Join renders the tags separated by sep.
func (s TagSet) Join(sep string) string {
	parts := make([]string, len(s.tags))
	for i, t := range s.tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}

func (s TagSet) String() string { return s.Join("; ") }

// Equal reports whether both sets hold the same tags.
func (s TagSet) Equal(o TagSet) bool {
	if len(s.tags) != len(o.tags) {
		return false
	}
	for i := range s.tags {
		if s.tags[i] != o.tags[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a JSON array of tag names.
func (s TagSet) MarshalJSON() ([]byte, error) {
	if s.tags == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.tags)
}

// UnmarshalJSON decodes a JSON array of tag names.
func (s *TagSet) UnmarshalJSON(b []byte) error {
	var raw []string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	tags := make([]Tag, 0, len(raw))
	for _, r := range raw {
		t, err := ParseTag(r)
		if err != nil {
			return err
		}
		tags = append(tags, t)
	}
	*s = NewTagSet(tags...)
	return nil
}

// ParseTagList splits a "; " or "," separated list into a tag set.
func ParseTagList(s string) (TagSet, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' })
	tags := make([]Tag, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		t, err := ParseTag(f)
		if err != nil {
			return TagSet{}, err
		}
		tags = append(tags, t)
	}
	return NewTagSet(tags...), nil
}
