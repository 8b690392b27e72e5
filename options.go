package strand

import (
	"time"

	"github.com/stranddb/strand.go/pkg/models"
)

// ChangeFeedMode re-exports the change feed read modes for callers
// that only import the root package.
type ChangeFeedMode = models.ChangeFeedMode

const (
	ChangeFeedModeLatestVersion         = models.ChangeFeedModeLatestVersion
	ChangeFeedModeAllVersionsAndDeletes = models.ChangeFeedModeAllVersionsAndDeletes
)

// ChangeFeedOptions controls a change feed read. The zero value reads
// the whole container in LatestVersion mode starting from now.
//
// FeedRange, PartitionKey and PartitionKeyRangeID are mutually
// exclusive scoping filters. StartFromBeginning and StartTime are
// mutually exclusive start policies; leaving both unset starts from
// now. Continuation resumes a previous read and cannot be combined
// with either group.
type ChangeFeedOptions struct {
	// Mode selects what the feed yields. Empty means LatestVersion.
	Mode ChangeFeedMode

	// FeedRange scopes the read to a sub-range of the hash space,
	// typically one returned by Container.FeedRanges.
	FeedRange *models.FeedRange

	// PartitionKey scopes the read to a single logical partition key.
	PartitionKey *models.PartitionKey

	// PartitionKeyRangeID scopes the read to a physical partition by
	// id. Kept for compatibility with older callers; prefer FeedRange.
	PartitionKeyRangeID string

	// StartFromBeginning reads from the start of retained history.
	StartFromBeginning bool

	// StartTime reads changes recorded at or after the given instant.
	StartTime *time.Time

	// Continuation resumes from a token returned by
	// ChangeFeedPager.Continuation.
	Continuation string

	// MaxItemCount caps the number of items per page. Zero lets the
	// service choose.
	MaxItemCount int
}

// validate runs the single validation pass over the option set. It is
// called once per pager construction, before any network call.
func (o *ChangeFeedOptions) validate() (models.ChangeFeedMode, error) {
	mode := o.Mode
	if mode == "" {
		mode = models.ChangeFeedModeLatestVersion
	}
	if !mode.Valid() {
		return "", ErrUnknownChangeFeedMode
	}

	scopes := 0
	if o.FeedRange != nil {
		scopes++
	}
	if o.PartitionKey != nil {
		scopes++
	}
	if o.PartitionKeyRangeID != "" {
		scopes++
	}
	if scopes > 1 {
		return "", ErrExclusiveScopes
	}

	if o.StartFromBeginning && o.StartTime != nil {
		return "", ErrExclusiveStartPolicies
	}

	if mode == models.ChangeFeedModeAllVersionsAndDeletes {
		if o.PartitionKeyRangeID != "" {
			return "", ErrAllVersionsPartitionKeyRangeID
		}
		if o.StartFromBeginning {
			return "", ErrAllVersionsStartFromBeginning
		}
		if o.StartTime != nil {
			return "", ErrAllVersionsStartTime
		}
	}

	if o.Continuation != "" {
		if o.StartFromBeginning || o.StartTime != nil {
			return "", ErrContinuationWithStartPolicy
		}
		if scopes > 0 {
			return "", ErrContinuationWithScope
		}
	}

	return mode, nil
}
