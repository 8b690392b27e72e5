package strand

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stranddb/strand.go/pkg/connection"
	"github.com/stranddb/strand.go/pkg/models"
)

// Container is a handle to one container. Document operations are thin
// wrappers over single HTTP calls; the container's service-assigned
// properties are cached after the first read.
type Container struct {
	client   *Client
	database *Database
	id       string

	mu    sync.Mutex
	props *connection.ContainerProperties
}

func (c *Container) ID() string {
	return c.id
}

// ItemResponse is the outcome of a document operation.
type ItemResponse struct {
	Value json.RawMessage
	ETag  string
}

// Read fetches the container's properties from the service and
// refreshes the cached copy.
func (c *Container) Read(ctx context.Context) (*connection.ContainerProperties, error) {
	props, err := c.client.conn.ReadContainer(ctx, c.database.id, c.id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.props = props
	c.mu.Unlock()
	return props, nil
}

// InvalidateCachedProperties drops the cached properties; the next
// operation re-reads them from the service.
func (c *Container) InvalidateCachedProperties() {
	c.mu.Lock()
	c.props = nil
	c.mu.Unlock()
}

// properties returns the cached properties, reading them once when the
// cache is empty.
func (c *Container) properties(ctx context.Context) (*connection.ContainerProperties, error) {
	c.mu.Lock()
	props := c.props
	c.mu.Unlock()
	if props != nil {
		return props, nil
	}
	return c.Read(ctx)
}

func (c *Container) rid(ctx context.Context) (string, error) {
	props, err := c.properties(ctx)
	if err != nil {
		return "", err
	}
	return props.RID, nil
}

// FeedRanges returns the feed ranges backing the container, one per
// physical partition. Each is usable as a ChangeFeedOptions scope, so
// ranges can be fanned out to independent workers.
func (c *Container) FeedRanges(ctx context.Context) ([]models.FeedRange, error) {
	rid, err := c.rid(ctx)
	if err != nil {
		return nil, err
	}
	return c.client.topology.FeedRanges(ctx, rid, false)
}

// CreateItem inserts a document. The document must carry a non-empty
// "id" field; creating an id that already exists fails with a conflict.
func (c *Container) CreateItem(ctx context.Context, pk models.PartitionKey, item any) (*ItemResponse, error) {
	return c.writeItem(ctx, pk, item, false)
}

// UpsertItem inserts or replaces a document in one call.
func (c *Container) UpsertItem(ctx context.Context, pk models.PartitionKey, item any) (*ItemResponse, error) {
	return c.writeItem(ctx, pk, item, true)
}

func (c *Container) writeItem(ctx context.Context, pk models.PartitionKey, item any, upsert bool) (*ItemResponse, error) {
	rid, err := c.rid(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.conn.CreateDocument(ctx, rid, pk, item, upsert)
	if err != nil {
		return nil, err
	}
	return &ItemResponse{Value: resp.Document, ETag: resp.ETag}, nil
}

func (c *Container) ReadItem(ctx context.Context, pk models.PartitionKey, id string) (*ItemResponse, error) {
	rid, err := c.rid(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.conn.ReadDocument(ctx, rid, pk, id)
	if err != nil {
		return nil, err
	}
	return &ItemResponse{Value: resp.Document, ETag: resp.ETag}, nil
}

func (c *Container) ReplaceItem(ctx context.Context, pk models.PartitionKey, id string, item any) (*ItemResponse, error) {
	rid, err := c.rid(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.conn.ReplaceDocument(ctx, rid, pk, id, item)
	if err != nil {
		return nil, err
	}
	return &ItemResponse{Value: resp.Document, ETag: resp.ETag}, nil
}

func (c *Container) DeleteItem(ctx context.Context, pk models.PartitionKey, id string) error {
	rid, err := c.rid(ctx)
	if err != nil {
		return err
	}
	return c.client.conn.DeleteDocument(ctx, rid, pk, id)
}
