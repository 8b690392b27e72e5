package strand

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stranddb/strand.go/internal/fakestrand"
	"github.com/stranddb/strand.go/pkg/connection"
	"github.com/stranddb/strand.go/pkg/models"
)

func TestContainerRead(t *testing.T) {
	_, cont, rid := newFeedFixture(t, 1)

	props, err := cont.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "events", props.ID)
	assert.Equal(t, rid, props.RID)
	assert.Equal(t, "/pk", props.PartitionKeyPath)
}

func TestContainerReadUnknown(t *testing.T) {
	srv := fakestrand.NewServer(testAPIKey)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL())
	require.NoError(t, err)
	client, err := New(connection.NewConfig(u, testAPIKey))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = client.Database("app").Container("missing").Read(context.Background())
	var svcErr *connection.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

func TestItemLifecycle(t *testing.T) {
	_, cont, _ := newFeedFixture(t, 2)
	ctx := context.Background()
	pk := models.NewPartitionKeyString("blue")

	created, err := cont.CreateItem(ctx, pk, map[string]any{"id": "doc-1", "pk": "blue", "v": 1})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ETag)

	// Creating the same id again conflicts; upsert does not.
	_, err = cont.CreateItem(ctx, pk, map[string]any{"id": "doc-1", "pk": "blue"})
	var svcErr *connection.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusConflict, svcErr.StatusCode)
	_, err = cont.UpsertItem(ctx, pk, map[string]any{"id": "doc-1", "pk": "blue", "v": 2})
	require.NoError(t, err)

	read, err := cont.ReadItem(ctx, pk, "doc-1")
	require.NoError(t, err)
	var doc struct {
		V int `json:"v"`
	}
	require.NoError(t, json.Unmarshal(read.Value, &doc))
	assert.Equal(t, 2, doc.V)

	replaced, err := cont.ReplaceItem(ctx, pk, "doc-1", map[string]any{"id": "doc-1", "pk": "blue", "v": 3})
	require.NoError(t, err)
	assert.NotEqual(t, created.ETag, replaced.ETag)

	require.NoError(t, cont.DeleteItem(ctx, pk, "doc-1"))
	_, err = cont.ReadItem(ctx, pk, "doc-1")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

func TestItemReadWrongPartitionKey(t *testing.T) {
	_, cont, _ := newFeedFixture(t, 2)
	ctx := context.Background()

	_, err := cont.CreateItem(ctx, models.NewPartitionKeyString("blue"), map[string]any{"id": "doc-1", "pk": "blue"})
	require.NoError(t, err)

	_, err = cont.ReadItem(ctx, models.NewPartitionKeyString("gamma"), "doc-1")
	var svcErr *connection.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusNotFound, svcErr.StatusCode)
}

func TestContainerFeedRanges(t *testing.T) {
	_, cont, _ := newFeedFixture(t, 4)

	ranges, err := cont.FeedRanges(context.Background())
	require.NoError(t, err)
	require.Len(t, ranges, 4)

	// The ranges tile the whole hash space in order.
	assert.Equal(t, models.FullRangeMin, ranges[0].Min)
	assert.Equal(t, models.FullRangeMax, ranges[len(ranges)-1].Max)
	for i := 1; i < len(ranges); i++ {
		assert.Equal(t, ranges[i-1].Max, ranges[i].Min)
		assert.False(t, ranges[i-1].Overlaps(ranges[i]))
	}
}

func TestContainerPropertiesCache(t *testing.T) {
	_, cont, rid := newFeedFixture(t, 1)

	got, err := cont.rid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rid, got)

	// Cached: no re-read, same value.
	saved := cont.client.conn
	cont.client.conn = nil
	got, err = cont.rid(context.Background())
	require.NoError(t, err)
	assert.Equal(t, rid, got)
	cont.client.conn = saved
}

func TestContainerInvalidateCachedProperties(t *testing.T) {
	_, cont, _ := newFeedFixture(t, 1)

	_, err := cont.Read(context.Background())
	require.NoError(t, err)

	cont.InvalidateCachedProperties()
	cont.mu.Lock()
	assert.Nil(t, cont.props)
	cont.mu.Unlock()
}
