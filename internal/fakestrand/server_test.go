package fakestrand

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stranddb/strand.go/pkg/constants"
	"github.com/stranddb/strand.go/pkg/models"
)

func doRequest(t *testing.T, method, reqURL string, headers map[string]string, body []byte) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, reqURL, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestServerHealth(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL()+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServerRequiresBearerToken(t *testing.T) {
	srv := NewServer("secret")
	defer srv.Close()
	srv.AddContainer("db", "coll", 1)

	resp := doRequest(t, http.MethodGet, srv.URL()+"/dbs/db/colls/coll", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL()+"/dbs/db/colls/coll", map[string]string{
		constants.HeaderAuthorization: "Bearer secret",
	}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddContainerTilesHashSpace(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 4)

	c := srv.containers[rid]
	live := c.current()
	require.Len(t, live, 4)
	assert.Equal(t, models.FullRangeMin, live[0].rng.Min)
	assert.Equal(t, models.FullRangeMax, live[3].rng.Max)
	for i := 1; i < len(live); i++ {
		assert.Equal(t, live[i-1].rng.Max, live[i].rng.Min)
	}
}

func TestSplitRetiresParent(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 1)
	require.NoError(t, srv.SplitRange(rid, 0))

	c := srv.containers[rid]
	live := c.current()
	require.Len(t, live, 2)
	assert.Equal(t, live[0].rng.Max, live[1].rng.Min)

	var retired int
	for _, pr := range c.ranges {
		if pr.gone {
			retired++
			assert.Equal(t, constants.SubstatusPartitionKeyRangeSplit, pr.goneSubstatus)
		}
	}
	assert.Equal(t, 1, retired)
}

func TestMergeRetiresBothChildren(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 2)
	require.NoError(t, srv.MergeRanges(rid, 0))

	c := srv.containers[rid]
	live := c.current()
	require.Len(t, live, 1)
	assert.Equal(t, models.FullRangeMin, live[0].rng.Min)
	assert.Equal(t, models.FullRangeMax, live[0].rng.Max)

	var retired int
	for _, pr := range c.ranges {
		if pr.gone {
			retired++
			assert.Equal(t, constants.SubstatusPartitionKeyRangeMerged, pr.goneSubstatus)
		}
	}
	assert.Equal(t, 2, retired)
}

func TestMergeRejectsNonAdjacentRanges(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 3)
	require.NoError(t, srv.MergeRanges(rid, 0))

	// Only the merged range and the last third remain; they are
	// adjacent, so a second merge still works.
	require.NoError(t, srv.MergeRanges(rid, 0))
	assert.Error(t, srv.MergeRanges(rid, 0))
}

func TestChangeFeedAnswersGoneForRetiredRange(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 1)
	require.NoError(t, srv.SplitRange(rid, 0))

	resp := doRequest(t, http.MethodGet, srv.URL()+"/colls/"+rid+"/docs", map[string]string{
		constants.HeaderIncrementalFeed: "true",
		constants.HeaderStartEPK:        models.FullRangeMin,
		constants.HeaderEndEPK:          models.FullRangeMax,
	}, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, fmt.Sprint(constants.SubstatusPartitionKeyRangeSplit),
		resp.Header.Get(constants.HeaderSubstatus))
}

func TestRetiredRangeServedAfterRoutingRefresh(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 2)
	require.NoError(t, srv.MergeRanges(rid, 0))

	lower := map[string]string{
		constants.HeaderIncrementalFeed: "true",
		constants.HeaderStartEPK:        models.FullRangeMin,
		constants.HeaderEndEPK:          "7F",
	}
	resp := doRequest(t, http.MethodGet, srv.URL()+"/colls/"+rid+"/docs", lower, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// Listing the ranges refreshes the client's routing map; the same
	// sub-range request is then served by the merged range.
	resp = doRequest(t, http.MethodGet, srv.URL()+"/colls/"+rid+"/pkranges", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL()+"/colls/"+rid+"/docs", lower, nil)
	assert.Equal(t, http.StatusNotModified, resp.StatusCode)
}

func TestChangeFeedLogOrder(t *testing.T) {
	srv := NewServer("")
	defer srv.Close()
	rid := srv.AddContainer("db", "coll", 1)

	for i := range 3 {
		body, _ := json.Marshal(map[string]any{"id": fmt.Sprintf("doc-%d", i)})
		resp := doRequest(t, http.MethodPost, srv.URL()+"/colls/"+rid+"/docs", map[string]string{
			constants.HeaderPartitionKey: `"blue"`,
		}, body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := doRequest(t, http.MethodGet, srv.URL()+"/colls/"+rid+"/docs", map[string]string{
		constants.HeaderIncrementalFeed: "true",
		constants.HeaderStartEPK:        models.FullRangeMin,
		constants.HeaderEndEPK:          models.FullRangeMax,
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var feed struct {
		Documents []struct {
			ID string `json:"id"`
		} `json:"Documents"`
		Count int `json:"_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&feed))
	require.Equal(t, 3, feed.Count)
	for i, doc := range feed.Documents {
		assert.Equal(t, fmt.Sprintf("doc-%d", i), doc.ID)
	}
	assert.NotEmpty(t, resp.Header.Get(constants.HeaderETag))
}
