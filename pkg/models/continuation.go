package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stranddb/strand.go/pkg/constants"
)

// ChangeFeedMode selects what the change feed yields: only the latest
// version of each changed item, or every intermediate version plus
// tombstones for deletes. A continuation token is bound to one mode
// for its whole lifetime.
type ChangeFeedMode string

const (
	ChangeFeedModeLatestVersion         ChangeFeedMode = "LatestVersion"
	ChangeFeedModeAllVersionsAndDeletes ChangeFeedMode = "AllVersionsAndDeletes"
)

// Valid reports whether m is one of the two enumerated modes.
func (m ChangeFeedMode) Valid() bool {
	return m == ChangeFeedModeLatestVersion || m == ChangeFeedModeAllVersionsAndDeletes
}

// FeedRangeContinuation pairs one feed range with the opaque progress
// marker for that range. The marker is server-defined: the SDK stores
// and forwards it, never parses or constructs it. An empty marker means
// the range has not been fetched yet.
type FeedRangeContinuation struct {
	Range FeedRange `json:"range"`
	Token string    `json:"token"`
}

// ChangeFeedContinuation is the resumable cursor for a change feed read:
// one progress marker per feed range, under a fixed mode. The zero value
// is not usable; construct with NewChangeFeedContinuation or
// ParseChangeFeedContinuation.
//
// Only the change feed pager mutates a continuation, once per
// successfully fetched page, or when a partition split or merge is
// detected. Failed fetches leave it untouched, so a resumed read picks
// up from the last known good position.
type ChangeFeedContinuation struct {
	ContainerRID  string                  `json:"containerRid"`
	Mode          ChangeFeedMode          `json:"mode"`
	Continuations []FeedRangeContinuation `json:"continuation"`
}

// NewChangeFeedContinuation seeds a fresh continuation: one entry per
// supplied range, markers empty. The ranges must exactly cover scope,
// in order, with no gaps and no overlaps.
func NewChangeFeedContinuation(containerRID string, mode ChangeFeedMode, scope FeedRange, ranges []FeedRange) (*ChangeFeedContinuation, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: unknown change feed mode %q", constants.ErrInvalidArgument, mode)
	}
	if err := validateCoverage(scope, ranges); err != nil {
		return nil, fmt.Errorf("%w: %s", constants.ErrInvalidArgument, err)
	}

	entries := make([]FeedRangeContinuation, len(ranges))
	for i, r := range ranges {
		entries[i] = FeedRangeContinuation{Range: r}
	}
	return &ChangeFeedContinuation{
		ContainerRID:  containerRID,
		Mode:          mode,
		Continuations: entries,
	}, nil
}

// changeFeedContinuationJSON mirrors the wire shape with pointer fields
// so required-but-missing fields are rejected instead of defaulted.
type changeFeedContinuationJSON struct {
	ContainerRID  *string         `json:"containerRid"`
	Mode          *ChangeFeedMode `json:"mode"`
	Continuations []feedEntryJSON `json:"continuation"`
}

type feedEntryJSON struct {
	Range *feedRangeJSON `json:"range"`
	Token *string        `json:"token"`
}

// ParseChangeFeedContinuation decodes a previously serialized
// continuation. A structure missing mode is rejected, not defaulted:
// tokens from protocol versions that did not carry a mode would
// otherwise silently change the read's semantics.
func ParseChangeFeedContinuation(serialized string) (*ChangeFeedContinuation, error) {
	var raw changeFeedContinuationJSON
	if err := json.Unmarshal([]byte(serialized), &raw); err != nil {
		return nil, fmt.Errorf("%w: [%s]", constants.ErrInvalidContinuation, err)
	}

	if raw.Mode == nil {
		return nil, fmt.Errorf("%w: [Missing mode]", constants.ErrInvalidContinuation)
	}
	if !raw.Mode.Valid() {
		return nil, fmt.Errorf("%w: [Unknown mode '%s']", constants.ErrInvalidContinuation, *raw.Mode)
	}
	if raw.ContainerRID == nil {
		return nil, fmt.Errorf("%w: [Missing containerRid]", constants.ErrInvalidContinuation)
	}
	if len(raw.Continuations) == 0 {
		return nil, fmt.Errorf("%w: [Missing continuation]", constants.ErrInvalidContinuation)
	}

	entries := make([]FeedRangeContinuation, len(raw.Continuations))
	for i, e := range raw.Continuations {
		if e.Range == nil {
			return nil, fmt.Errorf("%w: [Missing range]", constants.ErrInvalidContinuation)
		}
		r, err := feedRangeFromJSON(*e.Range)
		if err != nil {
			return nil, err
		}
		if e.Token == nil {
			return nil, fmt.Errorf("%w: [Missing token]", constants.ErrInvalidContinuation)
		}
		entries[i] = FeedRangeContinuation{Range: r, Token: *e.Token}
	}

	return &ChangeFeedContinuation{
		ContainerRID:  *raw.ContainerRID,
		Mode:          *raw.Mode,
		Continuations: entries,
	}, nil
}

// Serialize renders the continuation in its persisted wire shape. The
// result stays valid across process restarts and SDK versions.
func (c *ChangeFeedContinuation) Serialize() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CheckMode validates that the continuation can be resumed under the
// requested mode. Modes are never coerced.
func (c *ChangeFeedContinuation) CheckMode(requested ChangeFeedMode) error {
	if c.Mode != requested {
		return fmt.Errorf("%w: continuation has mode '%s', requested '%s'",
			constants.ErrModeMismatch, c.Mode, requested)
	}
	return nil
}

// Scope returns the full range the continuation covers: the union of
// its entries, which by construction is contiguous.
func (c *ChangeFeedContinuation) Scope() FeedRange {
	first := c.Continuations[0].Range
	last := c.Continuations[len(c.Continuations)-1].Range
	return FeedRange{
		Min:            first.Min,
		Max:            last.Max,
		IsMinInclusive: first.IsMinInclusive,
		IsMaxInclusive: last.IsMaxInclusive,
	}
}

// Advance replaces the progress marker of entry i after a successful
// page fetch. An out-of-range index is a programming error and panics.
func (c *ChangeFeedContinuation) Advance(i int, marker string) {
	if i < 0 || i >= len(c.Continuations) {
		panic(fmt.Sprintf("continuation entry index %d out of range [0, %d)", i, len(c.Continuations)))
	}
	c.Continuations[i].Token = marker
}

// Split replaces entry i with one entry per child range. Every child
// inherits the parent's marker verbatim: a split only subdivides the
// hash space going forward, it does not reorder or duplicate history.
// The children must exactly union to the parent's range.
func (c *ChangeFeedContinuation) Split(i int, children []FeedRange) error {
	if i < 0 || i >= len(c.Continuations) {
		panic(fmt.Sprintf("continuation entry index %d out of range [0, %d)", i, len(c.Continuations)))
	}
	parent := c.Continuations[i]
	if err := validateCoverage(parent.Range, children); err != nil {
		return fmt.Errorf("%w: split of %s: %s", constants.ErrInvalidArgument, parent.Range, err)
	}

	replacement := make([]FeedRangeContinuation, len(children))
	for j, child := range children {
		replacement[j] = FeedRangeContinuation{Range: child, Token: parent.Token}
	}

	out := make([]FeedRangeContinuation, 0, len(c.Continuations)+len(children)-1)
	out = append(out, c.Continuations[:i]...)
	out = append(out, replacement...)
	out = append(out, c.Continuations[i+1:]...)
	c.Continuations = out
	return nil
}

// Merge replaces the entries at indices with a single entry covering
// their union, carrying marker. The marker must be the server-supplied
// marker valid for the merged range; the SDK never interpolates one
// from the constituents. The indices must address contiguous entries
// whose ranges union to exactly one larger range.
func (c *ChangeFeedContinuation) Merge(indices []int, marker string) error {
	if len(indices) < 2 {
		return fmt.Errorf("%w: merge needs at least two entries", constants.ErrInvalidArgument)
	}
	for k := 1; k < len(indices); k++ {
		if indices[k] != indices[k-1]+1 {
			return fmt.Errorf("%w: merge indices must be consecutive", constants.ErrInvalidArgument)
		}
	}
	first, last := indices[0], indices[len(indices)-1]
	if first < 0 || last >= len(c.Continuations) {
		return fmt.Errorf("%w: merge indices out of range", constants.ErrInvalidArgument)
	}

	ranges := make([]FeedRange, 0, len(indices))
	for _, idx := range indices {
		ranges = append(ranges, c.Continuations[idx].Range)
	}
	union := FeedRange{
		Min:            ranges[0].Min,
		Max:            ranges[len(ranges)-1].Max,
		IsMinInclusive: ranges[0].IsMinInclusive,
		IsMaxInclusive: ranges[len(ranges)-1].IsMaxInclusive,
	}
	if err := validateCoverage(union, ranges); err != nil {
		return fmt.Errorf("%w: merge: %s", constants.ErrInvalidArgument, err)
	}

	merged := FeedRangeContinuation{Range: union, Token: marker}
	out := make([]FeedRangeContinuation, 0, len(c.Continuations)-len(indices)+1)
	out = append(out, c.Continuations[:first]...)
	out = append(out, merged)
	out = append(out, c.Continuations[last+1:]...)
	c.Continuations = out
	return nil
}

// validateCoverage checks that ranges, in order, exactly tile scope:
// same outer bounds and flags, and each adjacent pair meeting at a
// single seam that exactly one side owns.
func validateCoverage(scope FeedRange, ranges []FeedRange) error {
	if len(ranges) == 0 {
		return fmt.Errorf("no ranges supplied for scope %s", scope)
	}
	for _, r := range ranges {
		if !r.wellFormed() {
			return fmt.Errorf("ill-formed range %s", r)
		}
	}

	first, last := ranges[0], ranges[len(ranges)-1]
	if normalizeBound(first.Min) != normalizeBound(scope.Min) || first.IsMinInclusive != scope.IsMinInclusive {
		return fmt.Errorf("ranges start at %s, scope starts at %s", first, scope)
	}
	if normalizeBound(last.Max) != normalizeBound(scope.Max) || last.IsMaxInclusive != scope.IsMaxInclusive {
		return fmt.Errorf("ranges end at %s, scope ends at %s", last, scope)
	}

	for k := 1; k < len(ranges); k++ {
		prev, next := ranges[k-1], ranges[k]
		if strings.Compare(normalizeBound(prev.Max), normalizeBound(next.Min)) != 0 {
			return fmt.Errorf("gap or overlap between %s and %s", prev, next)
		}
		if prev.IsMaxInclusive == next.IsMinInclusive {
			// Either both own the seam point (overlap) or neither does (gap).
			return fmt.Errorf("seam %q is covered %d times between %s and %s",
				prev.Max, boolCount(prev.IsMaxInclusive, next.IsMinInclusive), prev, next)
		}
	}
	return nil
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}
