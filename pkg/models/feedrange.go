package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stranddb/strand.go/pkg/constants"
)

// Bounds of the partition key hash space. The empty string sorts below
// every effective partition key and FullRangeMax sorts above, so plain
// lexicographic comparison is total over well-formed bounds.
const (
	FullRangeMin = ""
	FullRangeMax = "FF"
)

// FeedRange is a contiguous interval of the partition key hash space,
// identified by hex bounds. It scopes both point reads and change feed
// reads to one physical partition, one logical partition key, or the
// whole container. A FeedRange is immutable once constructed.
type FeedRange struct {
	Min            string `json:"min"`
	Max            string `json:"max"`
	IsMinInclusive bool   `json:"isMinInclusive"`
	IsMaxInclusive bool   `json:"isMaxInclusive"`
}

// NewFeedRange returns the half-open range [min, max), the shape the
// service uses for physical partitions.
func NewFeedRange(min, max string) FeedRange {
	return FeedRange{
		Min:            normalizeBound(min),
		Max:            normalizeBound(max),
		IsMinInclusive: true,
		IsMaxInclusive: false,
	}
}

// FullRange returns the range covering the entire hash space.
func FullRange() FeedRange {
	return NewFeedRange(FullRangeMin, FullRangeMax)
}

func normalizeBound(b string) string {
	return strings.ToUpper(b)
}

// Equal reports whether the two ranges have identical bounds and
// identical inclusivity after normalization.
func (r FeedRange) Equal(other FeedRange) bool {
	return normalizeBound(r.Min) == normalizeBound(other.Min) &&
		normalizeBound(r.Max) == normalizeBound(other.Max) &&
		r.IsMinInclusive == other.IsMinInclusive &&
		r.IsMaxInclusive == other.IsMaxInclusive
}

// IsSubsetOf reports whether r is fully contained in parent.
//
// Containment is boundary exact: where r and parent share a boundary
// value, the inclusivity flags must match. A range is always a subset
// of itself.
func (r FeedRange) IsSubsetOf(parent FeedRange) bool {
	minCmp := strings.Compare(normalizeBound(r.Min), normalizeBound(parent.Min))
	if minCmp < 0 {
		return false
	}
	if minCmp == 0 && r.IsMinInclusive != parent.IsMinInclusive {
		return false
	}

	maxCmp := strings.Compare(normalizeBound(r.Max), normalizeBound(parent.Max))
	if maxCmp > 0 {
		return false
	}
	if maxCmp == 0 && r.IsMaxInclusive != parent.IsMaxInclusive {
		return false
	}

	return true
}

// Overlaps reports whether the two ranges intersect at all. It is
// symmetric and is used for routing, not containment.
func (r FeedRange) Overlaps(other FeedRange) bool {
	return !r.isEntirelyBefore(other) && !other.isEntirelyBefore(r)
}

func (r FeedRange) isEntirelyBefore(other FeedRange) bool {
	cmp := strings.Compare(normalizeBound(r.Max), normalizeBound(other.Min))
	if cmp < 0 {
		return true
	}
	if cmp == 0 && !(r.IsMaxInclusive && other.IsMinInclusive) {
		// They touch at a single point which at least one side excludes.
		return true
	}
	return false
}

// Intersect returns the overlap of the two ranges, or false when they
// are disjoint.
func (r FeedRange) Intersect(other FeedRange) (FeedRange, bool) {
	if !r.Overlaps(other) {
		return FeedRange{}, false
	}

	out := r
	if cmp := strings.Compare(normalizeBound(other.Min), normalizeBound(r.Min)); cmp > 0 {
		out.Min = normalizeBound(other.Min)
		out.IsMinInclusive = other.IsMinInclusive
	} else if cmp == 0 {
		out.IsMinInclusive = r.IsMinInclusive && other.IsMinInclusive
	}
	if cmp := strings.Compare(normalizeBound(other.Max), normalizeBound(r.Max)); cmp < 0 {
		out.Max = normalizeBound(other.Max)
		out.IsMaxInclusive = other.IsMaxInclusive
	} else if cmp == 0 {
		out.IsMaxInclusive = r.IsMaxInclusive && other.IsMaxInclusive
	}
	return out, true
}

// wellFormed reports whether min <= max under lexicographic hex
// ordering, with equal bounds allowed only for a fully inclusive point
// range.
func (r FeedRange) wellFormed() bool {
	cmp := strings.Compare(normalizeBound(r.Min), normalizeBound(r.Max))
	if cmp > 0 {
		return false
	}
	if cmp == 0 && !(r.IsMinInclusive && r.IsMaxInclusive) {
		return false
	}
	return true
}

func (r FeedRange) String() string {
	open, closing := "(", ")"
	if r.IsMinInclusive {
		open = "["
	}
	if r.IsMaxInclusive {
		closing = "]"
	}
	return fmt.Sprintf("%s%q,%q%s", open, r.Min, r.Max, closing)
}

// feedRangeJSON mirrors FeedRange with pointer fields, so that absent
// fields can be told apart from zero values during decoding. Required
// fields are never defaulted.
type feedRangeJSON struct {
	Min            *string `json:"min"`
	Max            *string `json:"max"`
	IsMinInclusive *bool   `json:"isMinInclusive"`
	IsMaxInclusive *bool   `json:"isMaxInclusive"`
}

// ParseFeedRange decodes the canonical four-field encoding. A missing
// field, invalid JSON, or an ill-formed interval fails with
// constants.ErrMalformedFeedRange.
func ParseFeedRange(data []byte) (FeedRange, error) {
	var raw feedRangeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return FeedRange{}, fmt.Errorf("%w: %s", constants.ErrMalformedFeedRange, err)
	}
	return feedRangeFromJSON(raw)
}

func feedRangeFromJSON(raw feedRangeJSON) (FeedRange, error) {
	if raw.Min == nil || raw.Max == nil {
		return FeedRange{}, fmt.Errorf("%w: missing min or max", constants.ErrMalformedFeedRange)
	}
	if raw.IsMinInclusive == nil || raw.IsMaxInclusive == nil {
		return FeedRange{}, fmt.Errorf("%w: missing inclusivity flags", constants.ErrMalformedFeedRange)
	}
	r := FeedRange{
		Min:            normalizeBound(*raw.Min),
		Max:            normalizeBound(*raw.Max),
		IsMinInclusive: *raw.IsMinInclusive,
		IsMaxInclusive: *raw.IsMaxInclusive,
	}
	if !r.wellFormed() {
		return FeedRange{}, fmt.Errorf("%w: min %q exceeds max %q", constants.ErrMalformedFeedRange, r.Min, r.Max)
	}
	return r, nil
}
