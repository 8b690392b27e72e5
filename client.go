package strand

import (
	"context"

	"github.com/stranddb/strand.go/internal/topology"
	"github.com/stranddb/strand.go/pkg/connection"
	"github.com/stranddb/strand.go/pkg/logger"
	"github.com/stranddb/strand.go/pkg/models"
)

// Client is the entry point to a Strand account. It is safe for
// concurrent use; database and container handles share its connection
// and its partition topology cache.
type Client struct {
	conn     connection.Connection
	logger   logger.Logger
	hasher   models.PartitionKeyHasher
	topology *topology.Resolver
}

// New connects a Client to the endpoint described by conf.
func New(conf *connection.Config) (*Client, error) {
	conn := connection.NewHTTPConnection(conf)
	if err := conn.Connect(context.Background()); err != nil {
		return nil, err
	}
	return FromConnection(conn, conf.Logger), nil
}

// FromConnection builds a Client on an existing connection. Tests use
// it to substitute their own Connection implementation.
func FromConnection(conn connection.Connection, log logger.Logger) *Client {
	return &Client{
		conn:     conn,
		logger:   log,
		hasher:   models.HasherV1{},
		topology: topology.NewResolver(&pkRangeLister{conn: conn}),
	}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Database returns a handle to the named database. No network call is
// made until the handle is used.
func (c *Client) Database(id string) *Database {
	return &Database{client: c, id: id}
}

// pkRangeLister adapts the connection's pkranges endpoint to the
// topology resolver's collaborator interface.
type pkRangeLister struct {
	conn connection.Connection
}

func (l *pkRangeLister) ListFeedRanges(ctx context.Context, containerRID string) ([]models.FeedRange, error) {
	pkRanges, err := l.conn.ListPartitionKeyRanges(ctx, containerRID)
	if err != nil {
		return nil, err
	}
	ranges := make([]models.FeedRange, len(pkRanges))
	for i, pr := range pkRanges {
		ranges[i] = pr.Range
	}
	return ranges, nil
}
