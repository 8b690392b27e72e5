package constants

const (
	HTTPScheme       = "http"
	HTTPSecureScheme = "https"
)

const RequestIDLength = 16

// Request and response headers understood by the Strand service.
const (
	HeaderAuthorization     = "Authorization"
	HeaderClientRequestID   = "X-Strand-Client-Request-Id"
	HeaderActivityID        = "X-Strand-Activity-Id"
	HeaderPartitionKey      = "X-Strand-Partition-Key"
	HeaderIsUpsert          = "X-Strand-Is-Upsert"
	HeaderIncrementalFeed   = "X-Strand-Incremental-Feed"
	HeaderChangeFeedMode    = "X-Strand-Changefeed-Mode"
	HeaderStartTime         = "X-Strand-Start-Time"
	HeaderStartEPK          = "X-Strand-Start-Epk"
	HeaderEndEPK            = "X-Strand-End-Epk"
	HeaderPartitionKeyRange = "X-Strand-Partition-Key-Range-Id"
	HeaderMaxItemCount      = "X-Strand-Max-Item-Count"
	HeaderSubstatus         = "X-Strand-Substatus"
	HeaderMergeContinuation = "X-Strand-Merge-Continuation"
	HeaderIfNoneMatch       = "If-None-Match"
	HeaderETag              = "Etag"
)

// IfNoneMatchAll asks the change feed to start from the current end of the
// log rather than a stored position.
const IfNoneMatchAll = "*"

// Substatus codes carried alongside 410 Gone when the addressed partition
// key range no longer exists as a single unit.
const (
	SubstatusPartitionKeyRangeSplit  = 1002
	SubstatusPartitionKeyRangeMerged = 1008
)
