package strand

import (
	"github.com/stranddb/strand.go/pkg/constants"
)

// validationError is an invalid-argument class error with a fixed
// message. The messages are part of the SDK's contract: integrations
// match on them to distinguish cases, so they must not change.
type validationError struct {
	msg string
}

func (e validationError) Error() string {
	return e.msg
}

func (e validationError) Is(target error) bool {
	return target == constants.ErrInvalidArgument
}

var (
	// ErrUnknownChangeFeedMode reports a change feed mode outside the
	// two enumerated values.
	ErrUnknownChangeFeedMode = validationError{"change feed mode must be 'LatestVersion' or 'AllVersionsAndDeletes'"}

	// ErrExclusiveScopes reports more than one scoping filter.
	ErrExclusiveScopes = validationError{"'feed_range', 'partition_key' and 'partition_key_range_id' are mutually exclusive; set at most one"}

	// ErrExclusiveStartPolicies reports conflicting start policies.
	ErrExclusiveStartPolicies = validationError{"'is_start_from_beginning' and 'start_time' are mutually exclusive; set at most one"}

	// ErrContinuationWithStartPolicy reports a continuation combined
	// with an explicit start policy; the continuation is its own start
	// position.
	ErrContinuationWithStartPolicy = validationError{"'continuation' already carries a start position; do not combine it with 'is_start_from_beginning' or 'start_time'"}

	// ErrContinuationWithScope reports a continuation combined with a
	// scoping filter; the continuation already carries its scope.
	ErrContinuationWithScope = validationError{"'continuation' already carries a scope; do not combine it with 'feed_range', 'partition_key' or 'partition_key_range_id'"}

	// ErrAllVersionsPartitionKeyRangeID, ErrAllVersionsStartFromBeginning
	// and ErrAllVersionsStartTime report option combinations the
	// AllVersionsAndDeletes mode does not support.
	ErrAllVersionsPartitionKeyRangeID = validationError{"'AllVersionsAndDeletes' mode is not supported if 'partition_key_range_id' was used. Please use 'feed_range' instead."}
	ErrAllVersionsStartFromBeginning  = validationError{"'AllVersionsAndDeletes' mode is only supported if 'is_start_from_beginning' is 'False'. Please use 'is_start_from_beginning=False' or 'continuation' instead."}
	ErrAllVersionsStartTime           = validationError{"'AllVersionsAndDeletes' mode is only supported if 'start_time' is 'Now'. Please use 'start_time=\"Now\"' or 'continuation' instead."}
)
