package connection

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/stranddb/strand.go/pkg/constants"
	"github.com/stranddb/strand.go/pkg/models"
)

// ContainerProperties is the service-side description of a container.
type ContainerProperties struct {
	ID               string `json:"id"`
	RID              string `json:"_rid"`
	PartitionKeyPath string `json:"partitionKeyPath"`
}

// PartitionKeyRange is one physical partition as reported by the
// pkranges endpoint.
type PartitionKeyRange struct {
	ID    string           `json:"id"`
	Range models.FeedRange `json:"range"`
}

type partitionKeyRangesResponse struct {
	PartitionKeyRanges []PartitionKeyRange `json:"PartitionKeyRanges"`
}

// DocumentResponse is the outcome of a single-document operation.
type DocumentResponse struct {
	Document json.RawMessage
	ETag     string
}

// ChangeFeedRequest describes one page fetch against one feed range.
type ChangeFeedRequest struct {
	ContainerRID string
	// Range scopes the fetch by effective partition key bounds. Exactly
	// one of Range and PartitionKeyRangeID must be set.
	Range *models.FeedRange
	// PartitionKeyRangeID addresses a physical partition by id, kept for
	// compatibility with older callers.
	PartitionKeyRangeID string
	// Marker is the opaque per-range progress marker. Empty means the
	// range has not been read yet and the start policy below applies.
	Marker             string
	Mode               models.ChangeFeedMode
	MaxItemCount       int
	StartFromBeginning bool
	StartTime          *time.Time
}

// ChangeFeedPage is one page of changes for one feed range. Marker is
// the advanced progress marker for the range; ETag mirrors the response
// header surfaced to callers.
type ChangeFeedPage struct {
	Items  []json.RawMessage
	Marker string
	ETag   string
}

type documentsResponse struct {
	Documents []json.RawMessage `json:"Documents"`
	Count     int               `json:"_count"`
}

type serviceErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServiceError is a non-2xx response from the Strand service.
type ServiceError struct {
	StatusCode int
	Substatus  int
	Code       string
	Message    string
	ActivityID string
	// MergeContinuation carries the server-supplied unified marker when
	// Substatus reports a partition merge. The SDK stores it verbatim;
	// computing it is a server responsibility.
	MergeContinuation string
}

func (e *ServiceError) Error() string {
	if e.Substatus != 0 {
		return fmt.Sprintf("strand service error: status %d substatus %d: %s", e.StatusCode, e.Substatus, e.Message)
	}
	return fmt.Sprintf("strand service error: status %d: %s", e.StatusCode, e.Message)
}

func (e *ServiceError) Is(target error) bool {
	if target == nil {
		return e == nil
	}
	_, ok := target.(*ServiceError)
	return ok
}

// IsPartitionSplit reports whether the addressed partition key range
// was subdivided and no longer exists as a single unit.
func (e *ServiceError) IsPartitionSplit() bool {
	return e.StatusCode == http.StatusGone && e.Substatus == constants.SubstatusPartitionKeyRangeSplit
}

// IsPartitionMerge reports whether the addressed partition key range
// was combined with a sibling.
func (e *ServiceError) IsPartitionMerge() bool {
	return e.StatusCode == http.StatusGone && e.Substatus == constants.SubstatusPartitionKeyRangeMerged
}

// IsRangeGone reports either of the two gone conditions.
func (e *ServiceError) IsRangeGone() bool {
	return e.IsPartitionSplit() || e.IsPartitionMerge()
}
