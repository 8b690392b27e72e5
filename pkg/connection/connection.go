package connection

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stranddb/strand.go/pkg/models"
)

// Connection is the set of remote operations the SDK needs from the
// Strand service. HTTPConnection is the production implementation;
// tests may substitute their own.
type Connection interface {
	Connect(ctx context.Context) error
	Close() error

	ReadContainer(ctx context.Context, database, container string) (*ContainerProperties, error)
	ListPartitionKeyRanges(ctx context.Context, containerRID string) ([]PartitionKeyRange, error)

	CreateDocument(ctx context.Context, containerRID string, pk models.PartitionKey, doc any, upsert bool) (*DocumentResponse, error)
	ReadDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string) (*DocumentResponse, error)
	ReplaceDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string, doc any) (*DocumentResponse, error)
	DeleteDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string) error

	// ReadChangeFeedPage fetches one page of the change feed for one
	// feed range. A partition split or merge is reported as a
	// *ServiceError with the corresponding substatus, never as a normal
	// page.
	ReadChangeFeedPage(ctx context.Context, req *ChangeFeedRequest) (*ChangeFeedPage, error)
}

// Document is a convenience alias for raw document payloads.
type Document = json.RawMessage

// StartTimeFormat is the wire format of the change feed start-time
// header.
const StartTimeFormat = time.RFC3339Nano
