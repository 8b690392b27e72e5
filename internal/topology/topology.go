// Package topology caches the mapping from a container to its current
// set of physical partition feed ranges.
//
// The cache is the only shared mutable state between change feed
// readers. A refresh swaps the cached snapshot atomically, so readers
// observe either the fully old or the fully new topology, and
// concurrent refreshes for the same container collapse into a single
// remote call.
package topology

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/stranddb/strand.go/pkg/models"
)

// Lister is the remote list-partitions collaborator. Transport and auth
// errors are surfaced unchanged; retrying is the caller's concern.
type Lister interface {
	ListFeedRanges(ctx context.Context, containerRID string) ([]models.FeedRange, error)
}

type snapshot struct {
	ranges []models.FeedRange
	stale  bool
}

// Resolver caches one topology snapshot per container.
type Resolver struct {
	lister Lister

	mu    sync.RWMutex
	cache map[string]*snapshot
	group singleflight.Group
}

func NewResolver(lister Lister) *Resolver {
	return &Resolver{
		lister: lister,
		cache:  map[string]*snapshot{},
	}
}

// FeedRanges returns the ordered feed ranges backing the container.
// The cached snapshot is served unless forceRefresh is set or the
// snapshot was marked stale, in which case the remote collaborator is
// consulted and the snapshot replaced atomically.
func (r *Resolver) FeedRanges(ctx context.Context, containerRID string, forceRefresh bool) ([]models.FeedRange, error) {
	if !forceRefresh {
		r.mu.RLock()
		snap, ok := r.cache[containerRID]
		r.mu.RUnlock()
		if ok && !snap.stale {
			return copyRanges(snap.ranges), nil
		}
	}

	v, err, _ := r.group.Do(containerRID, func() (any, error) {
		ranges, err := r.lister.ListFeedRanges(ctx, containerRID)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[containerRID] = &snapshot{ranges: ranges}
		r.mu.Unlock()

		return ranges, nil
	})
	if err != nil {
		return nil, err
	}
	return copyRanges(v.([]models.FeedRange)), nil
}

// MarkStale flags the container's snapshot for refresh on the next
// FeedRanges call. It is called when an unrelated read reports that the
// addressed partition key range is gone.
func (r *Resolver) MarkStale(containerRID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.cache[containerRID]; ok {
		snap.stale = true
	}
}

// Invalidate drops the container's snapshot entirely.
func (r *Resolver) Invalidate(containerRID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, containerRID)
}

func copyRanges(in []models.FeedRange) []models.FeedRange {
	out := make([]models.FeedRange, len(in))
	copy(out, in)
	return out
}
