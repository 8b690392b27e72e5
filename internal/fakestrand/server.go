// Package fakestrand provides a fake in-memory Strand service for
// testing purposes. It speaks the Strand HTTP API with JSON encoding
// and keeps an append-only change log per container, so change feed
// reads, continuation tokens and partition splits/merges can be
// exercised without a real service.
//
// Partition splits and merges are injected through the SplitRange and
// MergeRanges methods; requests addressed to a retired range answer
// 410 Gone with the matching substatus, the way the real service
// signals a stale routing map. Once the client re-lists the partition
// key ranges the staleness is gone: sub-range requests are then served
// by the live range covering them.
package fakestrand

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stranddb/strand.go/pkg/constants"
	"github.com/stranddb/strand.go/pkg/models"
)

type operationType string

const (
	opCreate  operationType = "create"
	opReplace operationType = "replace"
	opDelete  operationType = "delete"
)

// changeRecord is one entry of a container's append-only change log.
// Sequence numbers are container-wide and strictly increasing, so a
// per-range progress marker is simply the highest sequence number a
// reader has seen for that range.
type changeRecord struct {
	seq  uint64
	epk  string
	id   string
	op   operationType
	body json.RawMessage
	ts   time.Time
}

type pkRange struct {
	id            string
	rng           models.FeedRange
	gone          bool
	goneSubstatus int
	// acked is set when the client lists the partition key ranges after
	// this range was retired. A retired range answers 410 only until
	// then; a client with fresh routing gets its sub-range requests
	// served by the live covering range instead.
	acked bool
}

type docState struct {
	epk     string
	body    json.RawMessage
	deleted bool
}

type container struct {
	db     string
	id     string
	rid    string
	ranges []*pkRange
	docs   map[string]*docState
	log    []changeRecord
	seq    uint64
	nextID int
}

// current returns the live (non-retired) ranges ordered by min bound.
func (c *container) current() []*pkRange {
	out := make([]*pkRange, 0, len(c.ranges))
	for _, r := range c.ranges {
		if !r.gone {
			out = append(out, r)
		}
	}
	return out
}

// Server is a fake Strand service.
type Server struct {
	mu         sync.RWMutex
	srv        *httptest.Server
	apiKey     string
	hasher     models.PartitionKeyHasher
	containers map[string]*container // keyed by RID
	byPath     map[string]string     // "db/coll" -> RID
	nextRID    int
}

// NewServer starts a fake service. When apiKey is non-empty, requests
// must carry it as a bearer token.
func NewServer(apiKey string) *Server {
	s := &Server{
		apiKey:     apiKey,
		hasher:     models.HasherV1{},
		containers: map[string]*container{},
		byPath:     map[string]string{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /dbs/{db}/colls/{coll}", s.handleReadContainer)
	mux.HandleFunc("GET /colls/{rid}/pkranges", s.handlePartitionKeyRanges)
	mux.HandleFunc("POST /colls/{rid}/docs", s.handleCreateDocument)
	mux.HandleFunc("GET /colls/{rid}/docs", s.handleChangeFeed)
	mux.HandleFunc("GET /colls/{rid}/docs/{id}", s.handleReadDocument)
	mux.HandleFunc("PUT /colls/{rid}/docs/{id}", s.handleReplaceDocument)
	mux.HandleFunc("DELETE /colls/{rid}/docs/{id}", s.handleDeleteDocument)

	s.srv = httptest.NewServer(s.withAuth(mux))
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string {
	return s.srv.URL
}

func (s *Server) Close() {
	s.srv.Close()
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.URL.Path != "/health" {
			if r.Header.Get(constants.HeaderAuthorization) != "Bearer "+s.apiKey {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid credentials")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// AddContainer registers a container whose hash space is divided into
// partitions even ranges. It returns the container RID.
func (s *Server) AddContainer(db, coll string, partitions int) string {
	if partitions < 1 {
		panic("fakestrand: container needs at least one partition")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRID++
	c := &container{
		db:   db,
		id:   coll,
		rid:  fmt.Sprintf("rid-%d", s.nextRID),
		docs: map[string]*docState{},
	}

	// 0xFF is the exclusive upper bound sentinel of the hash space.
	for i := range partitions {
		min := boundHex(i * 0xFF / partitions)
		max := boundHex((i + 1) * 0xFF / partitions)
		if i == 0 {
			min = models.FullRangeMin
		}
		if i == partitions-1 {
			max = models.FullRangeMax
		}
		c.ranges = append(c.ranges, &pkRange{
			id:  strconv.Itoa(c.nextID),
			rng: models.NewFeedRange(min, max),
		})
		c.nextID++
	}

	s.containers[c.rid] = c
	s.byPath[db+"/"+coll] = c.rid
	return c.rid
}

func boundHex(v int) string {
	return fmt.Sprintf("%02X", v)
}

func parseBound(b string, def int) int {
	if b == models.FullRangeMin {
		return 0
	}
	if b == models.FullRangeMax {
		return 0xFF
	}
	if v, err := strconv.ParseInt(b, 16, 32); err == nil {
		return int(v)
	}
	return def
}

// SplitRange retires the index-th live range of the container and
// replaces it with two children split at the midpoint. Requests still
// addressed to the parent then answer 410 with the split substatus.
func (s *Server) SplitRange(containerRID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[containerRID]
	if !ok {
		return fmt.Errorf("fakestrand: unknown container %q", containerRID)
	}
	live := c.current()
	sortRanges(live)
	if index < 0 || index >= len(live) {
		return fmt.Errorf("fakestrand: range index %d out of bounds", index)
	}

	parent := live[index]
	lo := parseBound(parent.rng.Min, 0)
	hi := parseBound(parent.rng.Max, 0xFF)
	mid := (lo + hi) / 2
	if mid == lo {
		return fmt.Errorf("fakestrand: range %s too narrow to split", parent.rng)
	}

	parent.gone = true
	parent.goneSubstatus = constants.SubstatusPartitionKeyRangeSplit

	left := &pkRange{id: strconv.Itoa(c.nextID), rng: models.NewFeedRange(parent.rng.Min, boundHex(mid))}
	right := &pkRange{id: strconv.Itoa(c.nextID + 1), rng: models.NewFeedRange(boundHex(mid), parent.rng.Max)}
	c.nextID += 2
	c.ranges = append(c.ranges, left, right)
	return nil
}

// MergeRanges retires the index-th live range and its right neighbour
// and replaces them with their union. Requests addressed to either
// child then answer 410 with the merge substatus and carry the unified
// marker for the merged range.
func (s *Server) MergeRanges(containerRID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.containers[containerRID]
	if !ok {
		return fmt.Errorf("fakestrand: unknown container %q", containerRID)
	}
	live := c.current()
	sortRanges(live)
	if index < 0 || index+1 >= len(live) {
		return fmt.Errorf("fakestrand: need two adjacent ranges at index %d", index)
	}

	left, right := live[index], live[index+1]
	if left.rng.Max != right.rng.Min {
		return fmt.Errorf("fakestrand: ranges %s and %s are not adjacent", left.rng, right.rng)
	}

	left.gone = true
	left.goneSubstatus = constants.SubstatusPartitionKeyRangeMerged
	right.gone = true
	right.goneSubstatus = constants.SubstatusPartitionKeyRangeMerged

	merged := &pkRange{id: strconv.Itoa(c.nextID), rng: models.NewFeedRange(left.rng.Min, right.rng.Max)}
	c.nextID++
	c.ranges = append(c.ranges, merged)
	return nil
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"code": code, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) container(rid string) *container {
	return s.containers[rid]
}

func (s *Server) handleReadContainer(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rid, ok := s.byPath[r.PathValue("db")+"/"+r.PathValue("coll")]
	if !ok {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}
	c := s.containers[rid]
	writeJSON(w, http.StatusOK, map[string]string{
		"id":               c.id,
		"_rid":             c.rid,
		"partitionKeyPath": "/pk",
	})
}

func (s *Server) handlePartitionKeyRanges(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}

	// Listing the ranges hands the client the fresh routing map.
	for _, pr := range c.ranges {
		if pr.gone {
			pr.acked = true
		}
	}

	live := c.current()
	sortRanges(live)
	type wireRange struct {
		ID    string           `json:"id"`
		Range models.FeedRange `json:"range"`
	}
	out := make([]wireRange, len(live))
	for i, pr := range live {
		out[i] = wireRange{ID: pr.id, Range: pr.rng}
	}
	writeJSON(w, http.StatusOK, map[string]any{"PartitionKeyRanges": out})
}

func sortRanges(ranges []*pkRange) {
	for i := 1; i < len(ranges); i++ {
		for j := i; j > 0 && strings.Compare(ranges[j].rng.Min, ranges[j-1].rng.Min) < 0; j-- {
			ranges[j], ranges[j-1] = ranges[j-1], ranges[j]
		}
	}
}

func (s *Server) docEPK(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.Header.Get(constants.HeaderPartitionKey)
	if raw == "" {
		writeError(w, http.StatusBadRequest, "BadRequest", "missing partition key header")
		return "", false
	}
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed partition key header")
		return "", false
	}
	rng, err := s.hasher.FeedRange(models.NewPartitionKey(value))
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
		return "", false
	}
	return rng.Min, true
}

func documentID(body []byte) (string, bool) {
	var probe struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.ID == "" {
		return "", false
	}
	return probe.ID, true
}

func (c *container) append(op operationType, epk, id string, body json.RawMessage) uint64 {
	c.seq++
	c.log = append(c.log, changeRecord{
		seq:  c.seq,
		epk:  epk,
		id:   id,
		op:   op,
		body: body,
		ts:   time.Now(),
	})
	return c.seq
}

func (s *Server) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}
	epk, ok := s.docEPK(w, r)
	if !ok {
		return
	}

	body := make(json.RawMessage, 0)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed document body")
		return
	}
	id, ok := documentID(body)
	if !ok {
		writeError(w, http.StatusBadRequest, "BadRequest", "document needs a non-empty id")
		return
	}

	existing, exists := c.docs[id]
	upsert := r.Header.Get(constants.HeaderIsUpsert) == "true"
	if exists && !existing.deleted && !upsert {
		writeError(w, http.StatusConflict, "Conflict", "document already exists")
		return
	}

	op := opCreate
	if exists && !existing.deleted {
		op = opReplace
	}
	c.docs[id] = &docState{epk: epk, body: body}
	seq := c.append(op, epk, id, body)

	w.Header().Set(constants.HeaderETag, strconv.FormatUint(seq, 10))
	status := http.StatusCreated
	if op == opReplace {
		status = http.StatusOK
	}
	writeJSON(w, status, json.RawMessage(body))
}

func (s *Server) handleReadDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}
	epk, ok := s.docEPK(w, r)
	if !ok {
		return
	}

	doc, exists := c.docs[r.PathValue("id")]
	if !exists || doc.deleted || doc.epk != epk {
		writeError(w, http.StatusNotFound, "NotFound", "document does not exist")
		return
	}
	writeJSON(w, http.StatusOK, doc.body)
}

func (s *Server) handleReplaceDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}
	epk, ok := s.docEPK(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	doc, exists := c.docs[id]
	if !exists || doc.deleted || doc.epk != epk {
		writeError(w, http.StatusNotFound, "NotFound", "document does not exist")
		return
	}

	body := make(json.RawMessage, 0)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "malformed document body")
		return
	}

	doc.body = body
	seq := c.append(opReplace, epk, id, body)
	w.Header().Set(constants.HeaderETag, strconv.FormatUint(seq, 10))
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}
	epk, ok := s.docEPK(w, r)
	if !ok {
		return
	}

	id := r.PathValue("id")
	doc, exists := c.docs[id]
	if !exists || doc.deleted || doc.epk != epk {
		writeError(w, http.StatusNotFound, "NotFound", "document does not exist")
		return
	}

	doc.deleted = true
	c.append(opDelete, epk, id, doc.body)
	w.WriteHeader(http.StatusNoContent)
}

// resolveRequestedRange maps the EPK bounds (or partition key range id)
// of a change feed request onto the container's topology. A retired
// range answers 410 Gone with its substatus.
func (c *container) resolveRequestedRange(r *http.Request) (models.FeedRange, *pkRange, int) {
	if id := r.Header.Get(constants.HeaderPartitionKeyRange); id != "" {
		for _, pr := range c.ranges {
			if pr.id == id {
				if pr.gone {
					return models.FeedRange{}, pr, http.StatusGone
				}
				return pr.rng, pr, http.StatusOK
			}
		}
		return models.FeedRange{}, nil, http.StatusBadRequest
	}

	requested := models.FeedRange{
		Min:            r.Header.Get(constants.HeaderStartEPK),
		Max:            r.Header.Get(constants.HeaderEndEPK),
		IsMinInclusive: true,
		IsMaxInclusive: false,
	}
	if requested.Min == requested.Max {
		// Point range scoped to one partition key.
		requested.IsMaxInclusive = true
	}

	// A request matching a retired range reports gone even when a live
	// ancestor covers it, until the client has re-listed the ranges.
	for _, pr := range c.ranges {
		if !pr.gone && pr.rng.Equal(requested) {
			return requested, pr, http.StatusOK
		}
	}
	for _, pr := range c.ranges {
		if pr.gone && !pr.acked && pr.rng.Equal(requested) {
			return models.FeedRange{}, pr, http.StatusGone
		}
	}
	for _, pr := range c.current() {
		if requested.IsSubsetOf(pr.rng) || requested.Overlaps(pr.rng) && requestedWithin(requested, pr.rng) {
			return requested, pr, http.StatusOK
		}
	}
	for _, pr := range c.ranges {
		if pr.gone && !pr.acked && requestedWithin(requested, pr.rng) {
			return models.FeedRange{}, pr, http.StatusGone
		}
	}
	return models.FeedRange{}, nil, http.StatusBadRequest
}

// requestedWithin tolerates inclusivity differences a clamped scope can
// introduce at shared bounds.
func requestedWithin(requested, parent models.FeedRange) bool {
	clamped, ok := requested.Intersect(parent)
	return ok && clamped.Equal(requested)
}

func (s *Server) handleChangeFeed(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.container(r.PathValue("rid"))
	if c == nil {
		writeError(w, http.StatusNotFound, "NotFound", "container does not exist")
		return
	}

	requested, pr, status := c.resolveRequestedRange(r)
	switch status {
	case http.StatusOK:
	case http.StatusGone:
		w.Header().Set(constants.HeaderSubstatus, strconv.Itoa(pr.goneSubstatus))
		if pr.goneSubstatus == constants.SubstatusPartitionKeyRangeMerged {
			// The unified marker for the merged range. With a
			// container-wide sequence the child's position carries over
			// verbatim; the client must treat it as opaque either way.
			w.Header().Set(constants.HeaderMergeContinuation, r.Header.Get(constants.HeaderIfNoneMatch))
		}
		writeError(w, http.StatusGone, "Gone", "partition key range is gone")
		return
	default:
		writeError(w, status, "BadRequest", "request does not match the container topology")
		return
	}

	mode := models.ChangeFeedMode(r.Header.Get(constants.HeaderChangeFeedMode))
	if mode == "" {
		mode = models.ChangeFeedModeLatestVersion
	}

	cursor, ok := s.changeFeedCursor(w, r, c)
	if !ok {
		return
	}

	maxItems := 0
	if v := r.Header.Get(constants.HeaderMaxItemCount); v != "" {
		maxItems, _ = strconv.Atoi(v)
	}

	items := make([]json.RawMessage, 0)
	delivered := cursor
	truncated := false
	for _, rec := range c.log {
		if rec.seq <= cursor || !epkInRange(rec.epk, requested) {
			continue
		}
		if mode == models.ChangeFeedModeLatestVersion && rec.op == opDelete {
			delivered = rec.seq
			continue
		}
		if maxItems > 0 && len(items) == maxItems {
			truncated = true
			break
		}
		items = append(items, renderItem(mode, rec))
		delivered = rec.seq
	}

	newMarker := c.seq
	if truncated {
		newMarker = delivered
	}
	w.Header().Set(constants.HeaderETag, strconv.FormatUint(newMarker, 10))

	if len(items) == 0 {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"Documents": items,
		"_count":    len(items),
	})
}

// changeFeedCursor derives the starting log position from the request's
// progress marker or start policy.
func (s *Server) changeFeedCursor(w http.ResponseWriter, r *http.Request, c *container) (uint64, bool) {
	if marker := r.Header.Get(constants.HeaderIfNoneMatch); marker != "" {
		if marker == constants.IfNoneMatchAll {
			return c.seq, true
		}
		cursor, err := strconv.ParseUint(marker, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "unrecognized continuation marker")
			return 0, false
		}
		return cursor, true
	}

	if startTime := r.Header.Get(constants.HeaderStartTime); startTime != "" {
		at, err := time.Parse(time.RFC3339Nano, startTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BadRequest", "unrecognized start time")
			return 0, false
		}
		cursor := uint64(0)
		for _, rec := range c.log {
			if rec.ts.Before(at) {
				cursor = rec.seq
			}
		}
		return cursor, true
	}

	// No marker and no start time: read from the start of the log.
	return 0, true
}

func epkInRange(epk string, rng models.FeedRange) bool {
	minCmp := strings.Compare(epk, rng.Min)
	if minCmp < 0 || (minCmp == 0 && !rng.IsMinInclusive) {
		return false
	}
	maxCmp := strings.Compare(epk, rng.Max)
	if maxCmp > 0 || (maxCmp == 0 && !rng.IsMaxInclusive) {
		return false
	}
	return true
}

func renderItem(mode models.ChangeFeedMode, rec changeRecord) json.RawMessage {
	if mode == models.ChangeFeedModeLatestVersion {
		return rec.body
	}

	item := map[string]any{
		"current": json.RawMessage(rec.body),
		"metadata": map[string]any{
			"operationType": string(rec.op),
			"lsn":           rec.seq,
		},
	}
	if rec.op == opDelete {
		item["current"] = nil
	}
	data, _ := json.Marshal(item)
	return data
}
