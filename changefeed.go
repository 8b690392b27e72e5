package strand

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stranddb/strand.go/pkg/connection"
	"github.com/stranddb/strand.go/pkg/constants"
	"github.com/stranddb/strand.go/pkg/models"
)

// ChangeFeedPage is one page of changes for one feed range.
type ChangeFeedPage struct {
	// Items are the change feed entries, in the order the service
	// assigned them within the page's feed range. There is no ordering
	// guarantee across different feed ranges.
	Items []json.RawMessage

	// FeedRange is the range this page was read from.
	FeedRange models.FeedRange

	// ETag is the response marker for this fetch.
	ETag string

	// Continuation is the serialized continuation token after this
	// page. Persist it to resume the read later, even in a new process.
	Continuation string
}

// ChangeFeedPager drives a change feed read, one page fetch per call.
//
// A pager is not safe for concurrent use. For parallelism, fan the
// container's feed ranges out to independent pagers, one per range:
// each delivers its range's changes in order with no gaps and no
// duplicates, and their union is the full change set.
//
// When every range has reported no further changes More returns false.
// That state is not terminal: the feed is an unbounded log, and a later
// NextPage call polls the same ranges again.
type ChangeFeedPager struct {
	container *Container
	mode      models.ChangeFeedMode

	maxItemCount       int
	startFromBeginning bool
	startTime          *time.Time
	feedRange          *models.FeedRange
	partitionKey       *models.PartitionKey
	pkRangeID          string

	token   *models.ChangeFeedContinuation
	current int
	drained []bool
}

// NewChangeFeedPager validates opts and creates a pager. All option
// validation happens here, before any network call; a nil opts reads
// the whole container in LatestVersion mode starting from now.
func (c *Container) NewChangeFeedPager(opts *ChangeFeedOptions) (*ChangeFeedPager, error) {
	if opts == nil {
		opts = &ChangeFeedOptions{}
	}
	mode, err := opts.validate()
	if err != nil {
		return nil, err
	}

	p := &ChangeFeedPager{
		container:          c,
		mode:               mode,
		maxItemCount:       opts.MaxItemCount,
		startFromBeginning: opts.StartFromBeginning,
		startTime:          opts.StartTime,
		feedRange:          opts.FeedRange,
		partitionKey:       opts.PartitionKey,
		pkRangeID:          opts.PartitionKeyRangeID,
	}

	if opts.Continuation != "" {
		token, err := models.ParseChangeFeedContinuation(opts.Continuation)
		if err != nil {
			return nil, err
		}
		if err := token.CheckMode(mode); err != nil {
			return nil, err
		}
		p.token = token
		p.drained = make([]bool, len(token.Continuations))
	}

	return p, nil
}

// More reports whether the last pass over the ranges found changes. It
// returns true before the first fetch. A false result only means the
// feed is drained right now; NextPage re-polls the ranges.
func (p *ChangeFeedPager) More() bool {
	if p.token == nil {
		return true
	}
	for _, d := range p.drained {
		if !d {
			return true
		}
	}
	return false
}

// Continuation returns the serialized continuation token, or the empty
// string before the first fetch.
func (p *ChangeFeedPager) Continuation() (string, error) {
	if p.token == nil {
		return "", nil
	}
	return p.token.Serialize()
}

// NextPage fetches one page for the current feed range and advances
// the continuation. A detected partition split or merge re-partitions
// the token and retries the fetch exactly once; any other failure is
// returned with the token untouched, so the read resumes from the same
// point.
func (p *ChangeFeedPager) NextPage(ctx context.Context) (*ChangeFeedPage, error) {
	if p.token == nil {
		if err := p.seed(ctx); err != nil {
			return nil, err
		}
	}

	if !p.More() {
		// Idle: the log may have grown since the last pass, poll again.
		for i := range p.drained {
			p.drained[i] = false
		}
	}

	idx := p.nextIndex()
	page, idx, err := p.fetch(ctx, idx)
	if err != nil {
		return nil, err
	}

	entry := p.token.Continuations[idx]
	p.token.Advance(idx, page.Marker)
	p.drained[idx] = len(page.Items) == 0
	p.current = (idx + 1) % len(p.token.Continuations)

	serialized, err := p.token.Serialize()
	if err != nil {
		return nil, err
	}
	return &ChangeFeedPage{
		Items:        page.Items,
		FeedRange:    entry.Range,
		ETag:         page.ETag,
		Continuation: serialized,
	}, nil
}

func (p *ChangeFeedPager) nextIndex() int {
	n := len(p.token.Continuations)
	for off := range n {
		idx := (p.current + off) % n
		if !p.drained[idx] {
			return idx
		}
	}
	return p.current % n
}

// seed builds the initial continuation from the requested scope and
// the current partition topology.
func (p *ChangeFeedPager) seed(ctx context.Context) error {
	rid, err := p.container.rid(ctx)
	if err != nil {
		return err
	}

	var scope models.FeedRange
	var entries []models.FeedRange
	switch {
	case p.pkRangeID != "":
		pkRanges, err := p.container.client.conn.ListPartitionKeyRanges(ctx, rid)
		if err != nil {
			return err
		}
		found := false
		for _, pr := range pkRanges {
			if pr.ID == p.pkRangeID {
				scope = pr.Range
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: unknown partition key range id %q", constants.ErrInvalidArgument, p.pkRangeID)
		}
		entries = []models.FeedRange{scope}
	case p.partitionKey != nil:
		scope, err = models.NewFeedRangeFromPartitionKey(*p.partitionKey, p.container.client.hasher)
		if err != nil {
			return err
		}
		entries = []models.FeedRange{scope}
	default:
		scope = models.FullRange()
		if p.feedRange != nil {
			scope = *p.feedRange
		}
		physical, err := p.container.client.topology.FeedRanges(ctx, rid, false)
		if err != nil {
			return err
		}
		entries = clampToScope(physical, scope)
	}

	token, err := models.NewChangeFeedContinuation(rid, p.mode, scope, entries)
	if err != nil {
		return err
	}
	p.token = token
	p.drained = make([]bool, len(token.Continuations))
	return nil
}

// clampToScope intersects the physical ranges with the requested scope,
// preserving order, so the seeded entries exactly tile the scope.
func clampToScope(physical []models.FeedRange, scope models.FeedRange) []models.FeedRange {
	var out []models.FeedRange
	for _, r := range physical {
		if clamped, ok := r.Intersect(scope); ok {
			out = append(out, clamped)
		}
	}
	return out
}

// fetch performs one page fetch for the token entry at idx. On a
// range-gone signal it refreshes the topology, re-partitions the token
// and retries exactly once; the index of the entry actually fetched is
// returned, since a split or merge moves entries around.
func (p *ChangeFeedPager) fetch(ctx context.Context, idx int) (*connection.ChangeFeedPage, int, error) {
	page, err := p.fetchEntry(ctx, idx)
	if err == nil {
		return page, idx, nil
	}

	var svcErr *connection.ServiceError
	if !errors.As(err, &svcErr) || !svcErr.IsRangeGone() {
		return nil, idx, err
	}

	if svcErr.IsPartitionSplit() {
		idx, err = p.handleSplit(ctx, idx)
	} else {
		idx, err = p.handleMerge(ctx, idx, svcErr.MergeContinuation)
	}
	if err != nil {
		return nil, idx, err
	}

	// One retry after the topology recovery. A second gone signal means
	// the topology is churning faster than we can follow; surface it.
	page, err = p.fetchEntry(ctx, idx)
	if err != nil {
		return nil, idx, err
	}
	return page, idx, nil
}

func (p *ChangeFeedPager) fetchEntry(ctx context.Context, idx int) (*connection.ChangeFeedPage, error) {
	entry := p.token.Continuations[idx]
	req := &connection.ChangeFeedRequest{
		ContainerRID:       p.token.ContainerRID,
		Marker:             entry.Token,
		Mode:               p.mode,
		MaxItemCount:       p.maxItemCount,
		StartFromBeginning: p.startFromBeginning,
		StartTime:          p.startTime,
	}
	if p.pkRangeID != "" {
		req.PartitionKeyRangeID = p.pkRangeID
	} else {
		r := entry.Range
		req.Range = &r
	}
	return p.container.client.conn.ReadChangeFeedPage(ctx, req)
}

// handleSplit replaces the stale entry with the child ranges the
// refreshed topology reports for it. The children inherit the parent's
// marker, so no change is lost or repeated.
func (p *ChangeFeedPager) handleSplit(ctx context.Context, idx int) (int, error) {
	stale := p.token.Continuations[idx].Range
	p.logDebug("partition split detected", "range", stale.String())

	children, err := p.childRanges(ctx, stale)
	if err != nil {
		return idx, err
	}
	if err := p.token.Split(idx, children); err != nil {
		return idx, err
	}

	// The fresh children are not drained.
	drained := make([]bool, 0, len(p.drained)+len(children)-1)
	drained = append(drained, p.drained[:idx]...)
	drained = append(drained, make([]bool, len(children))...)
	drained = append(drained, p.drained[idx+1:]...)
	p.drained = drained
	return idx, nil
}

// childRanges returns the current topology's coverage of the stale
// range, clamped to it.
func (p *ChangeFeedPager) childRanges(ctx context.Context, stale models.FeedRange) ([]models.FeedRange, error) {
	p.container.client.topology.MarkStale(p.token.ContainerRID)
	physical, err := p.container.client.topology.FeedRanges(ctx, p.token.ContainerRID, true)
	if err != nil {
		return nil, err
	}
	children := clampToScope(physical, stale)
	if len(children) == 0 {
		return nil, fmt.Errorf("%w: refreshed topology does not cover range %s", constants.ErrInvalidResponse, stale)
	}
	return children, nil
}

// handleMerge folds the stale entry and its merged siblings into one
// entry carrying the server-supplied unified marker. The SDK never
// computes that marker from the constituents.
func (p *ChangeFeedPager) handleMerge(ctx context.Context, idx int, unifiedMarker string) (int, error) {
	stale := p.token.Continuations[idx].Range
	p.logDebug("partition merge detected", "range", stale.String())

	p.container.client.topology.MarkStale(p.token.ContainerRID)
	physical, err := p.container.client.topology.FeedRanges(ctx, p.token.ContainerRID, true)
	if err != nil {
		return idx, err
	}

	var parent models.FeedRange
	found := false
	for _, r := range physical {
		if stale.Overlaps(r) {
			parent = r
			found = true
			break
		}
	}
	if !found {
		return idx, fmt.Errorf("%w: refreshed topology does not cover range %s", constants.ErrInvalidResponse, stale)
	}
	// Clamp the merged parent to the token's scope; the merge may reach
	// past what this read covers.
	parent, _ = parent.Intersect(p.token.Scope())

	var indices []int
	foldable := true
	for i, e := range p.token.Continuations {
		if !e.Range.IsSubsetOf(parent) {
			continue
		}
		if len(indices) > 0 && e.Token != p.token.Continuations[indices[0]].Token {
			foldable = false
		}
		indices = append(indices, i)
	}
	if len(indices) < 2 || !foldable {
		// Either the merge folded this range with siblings outside the
		// token's scope, or the constituent entries sit at different
		// markers, so one shared cursor would rewind or overshoot some
		// of them. Keep the per-range entries; the merged partition
		// serves each sub-range at its own position. Only the stale
		// entry adopts the unified marker.
		p.token.Advance(idx, unifiedMarker)
		return idx, nil
	}

	if err := p.token.Merge(indices, unifiedMarker); err != nil {
		return idx, err
	}

	first, last := indices[0], indices[len(indices)-1]
	drained := make([]bool, 0, len(p.drained)-len(indices)+1)
	drained = append(drained, p.drained[:first]...)
	drained = append(drained, false)
	drained = append(drained, p.drained[last+1:]...)
	p.drained = drained
	if p.current > first {
		p.current = first
	}
	return first, nil
}

func (p *ChangeFeedPager) logDebug(msg string, args ...any) {
	if log := p.container.client.logger; log != nil {
		log.Debug(msg, args...)
	}
}
