package topology_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stranddb/strand.go/internal/topology"
	"github.com/stranddb/strand.go/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu     sync.Mutex
	calls  atomic.Int64
	ranges []models.FeedRange
	err    error
	block  chan struct{} // when set, ListFeedRanges waits on it
}

func (s *stubLister) ListFeedRanges(ctx context.Context, containerRID string) ([]models.FeedRange, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.FeedRange, len(s.ranges))
	copy(out, s.ranges)
	return out, nil
}

func (s *stubLister) set(ranges []models.FeedRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = ranges
}

func twoRanges() []models.FeedRange {
	return []models.FeedRange{
		models.NewFeedRange("", "7F"),
		models.NewFeedRange("7F", "FF"),
	}
}

func TestFeedRangesCaches(t *testing.T) {
	lister := &stubLister{ranges: twoRanges()}
	r := topology.NewResolver(lister)

	first, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), lister.calls.Load(), "second read must be served from cache")
}

func TestFeedRangesForceRefresh(t *testing.T) {
	lister := &stubLister{ranges: twoRanges()}
	r := topology.NewResolver(lister)

	_, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)

	lister.set([]models.FeedRange{models.FullRange()})
	got, err := r.FeedRanges(context.Background(), "coll1", true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), lister.calls.Load())
}

func TestMarkStaleTriggersRefresh(t *testing.T) {
	lister := &stubLister{ranges: twoRanges()}
	r := topology.NewResolver(lister)

	_, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)

	r.MarkStale("coll1")

	lister.set([]models.FeedRange{models.FullRange()})
	got, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), lister.calls.Load())

	// The refreshed snapshot is no longer stale.
	_, err = r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), lister.calls.Load())
}

func TestConcurrentRefreshCollapses(t *testing.T) {
	lister := &stubLister{ranges: twoRanges(), block: make(chan struct{})}
	r := topology.NewResolver(lister)

	const workers = 8
	var wg sync.WaitGroup
	results := make([][]models.FeedRange, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := r.FeedRanges(context.Background(), "coll1", true)
			assert.NoError(t, err)
			results[i] = got
		}()
	}

	// Give the workers a moment to pile up on the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(lister.block)
	wg.Wait()

	// The target invariant is at most one refresh in flight; a stray
	// late joiner may add one more call, but not one per worker.
	assert.LessOrEqual(t, lister.calls.Load(), int64(2), "concurrent refreshes must collapse")
	for _, got := range results {
		require.Len(t, got, 2)
	}
}

func TestListerErrorsSurfaceUnchanged(t *testing.T) {
	boom := errors.New("transport down")
	lister := &stubLister{err: boom}
	r := topology.NewResolver(lister)

	_, err := r.FeedRanges(context.Background(), "coll1", false)
	assert.ErrorIs(t, err, boom)
}

func TestResultIsACopy(t *testing.T) {
	lister := &stubLister{ranges: twoRanges()}
	r := topology.NewResolver(lister)

	got, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	got[0] = models.FullRange()

	again, err := r.FeedRanges(context.Background(), "coll1", false)
	require.NoError(t, err)
	assert.True(t, again[0].Equal(models.NewFeedRange("", "7F")), "callers must not be able to mutate the cache")
}
