package connection

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid"

	"github.com/stranddb/strand.go/internal/codec"
	"github.com/stranddb/strand.go/internal/rand"
	"github.com/stranddb/strand.go/pkg/constants"
	"github.com/stranddb/strand.go/pkg/logger"
	"github.com/stranddb/strand.go/pkg/models"
)

// HTTPConnection talks to the Strand service over its HTTP API.
type HTTPConnection struct {
	baseURL     string
	apiKey      string
	marshaler   codec.Marshaler
	unmarshaler codec.Unmarshaler
	logger      logger.Logger

	httpClient *http.Client
}

func NewHTTPConnection(conf *Config) *HTTPConnection {
	return &HTTPConnection{
		baseURL:     conf.BaseURL,
		apiKey:      conf.APIKey,
		marshaler:   conf.Marshaler,
		unmarshaler: conf.Unmarshaler,
		logger:      conf.Logger,
		httpClient: &http.Client{
			Timeout: 10 * time.Second, // Default timeout to avoid hanging requests
		},
	}
}

func (h *HTTPConnection) SetTimeout(timeout time.Duration) *HTTPConnection {
	h.httpClient.Timeout = timeout
	return h
}

func (h *HTTPConnection) SetHTTPClient(client *http.Client) *HTTPConnection {
	h.httpClient = client
	return h
}

func (h *HTTPConnection) preConnectionChecks() error {
	if h.baseURL == "" {
		return constants.ErrNoBaseURL
	}
	if h.marshaler == nil {
		return constants.ErrNoMarshaler
	}
	if h.unmarshaler == nil {
		return constants.ErrNoUnmarshaler
	}
	return nil
}

// Connect verifies the endpoint is reachable. It is optional; every
// operation performs the same configuration checks.
func (h *HTTPConnection) Connect(ctx context.Context) error {
	if err := h.preConnectionChecks(); err != nil {
		return err
	}
	req, err := h.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	_, _, err = h.do(req)
	return err
}

func (h *HTTPConnection) Close() error {
	h.httpClient.CloseIdleConnections()
	return nil
}

func (h *HTTPConnection) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.baseURL+path, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.apiKey != "" {
		req.Header.Set(constants.HeaderAuthorization, "Bearer "+h.apiKey)
	}
	req.Header.Set(constants.HeaderClientRequestID, rand.NewRequestID(constants.RequestIDLength))
	if activityID, err := uuid.NewV4(); err == nil {
		req.Header.Set(constants.HeaderActivityID, activityID.String())
	}

	return req, nil
}

// do runs the request and maps non-2xx responses to *ServiceError.
// 304 Not Modified is returned to callers as a success with no body,
// since the change feed uses it to signal an empty page.
func (h *HTTPConnection) do(req *http.Request) ([]byte, http.Header, error) {
	if err := h.preConnectionChecks(); err != nil {
		return nil, nil, err
	}

	if h.logger != nil {
		h.logger.Debug("request", "method", req.Method, "path", req.URL.Path)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	if (resp.StatusCode >= 200 && resp.StatusCode < 300) || resp.StatusCode == http.StatusNotModified {
		return respBytes, resp.Header, nil
	}

	svcErr := &ServiceError{
		StatusCode:        resp.StatusCode,
		ActivityID:        resp.Header.Get(constants.HeaderActivityID),
		MergeContinuation: resp.Header.Get(constants.HeaderMergeContinuation),
	}
	if s := resp.Header.Get(constants.HeaderSubstatus); s != "" {
		if substatus, convErr := strconv.Atoi(s); convErr == nil {
			svcErr.Substatus = substatus
		}
	}
	var body serviceErrorBody
	if err := h.unmarshaler.Unmarshal(respBytes, &body); err == nil {
		svcErr.Code = body.Code
		svcErr.Message = body.Message
	} else {
		svcErr.Message = string(respBytes)
	}

	if h.logger != nil {
		h.logger.Debug("service error", "status", svcErr.StatusCode, "substatus", svcErr.Substatus, "activityId", svcErr.ActivityID)
	}
	return nil, nil, svcErr
}

func (h *HTTPConnection) ReadContainer(ctx context.Context, database, container string) (*ContainerProperties, error) {
	path := fmt.Sprintf("/dbs/%s/colls/%s", url.PathEscape(database), url.PathEscape(container))
	req, err := h.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	body, _, err := h.do(req)
	if err != nil {
		return nil, err
	}

	var props ContainerProperties
	if err := h.unmarshaler.Unmarshal(body, &props); err != nil {
		return nil, fmt.Errorf("%w: %s", constants.ErrInvalidResponse, err)
	}
	return &props, nil
}

func (h *HTTPConnection) ListPartitionKeyRanges(ctx context.Context, containerRID string) ([]PartitionKeyRange, error) {
	path := fmt.Sprintf("/colls/%s/pkranges", url.PathEscape(containerRID))
	req, err := h.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	body, _, err := h.do(req)
	if err != nil {
		return nil, err
	}

	var resp partitionKeyRangesResponse
	if err := h.unmarshaler.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s", constants.ErrInvalidResponse, err)
	}
	return resp.PartitionKeyRanges, nil
}

func (h *HTTPConnection) CreateDocument(ctx context.Context, containerRID string, pk models.PartitionKey, doc any, upsert bool) (*DocumentResponse, error) {
	body, err := h.marshaler.Marshal(doc)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/colls/%s/docs", url.PathEscape(containerRID))
	req, err := h.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	if err := h.setPartitionKeyHeader(req, pk); err != nil {
		return nil, err
	}
	if upsert {
		req.Header.Set(constants.HeaderIsUpsert, "true")
	}
	return h.documentResponse(req)
}

func (h *HTTPConnection) ReadDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string) (*DocumentResponse, error) {
	path := fmt.Sprintf("/colls/%s/docs/%s", url.PathEscape(containerRID), url.PathEscape(id))
	req, err := h.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := h.setPartitionKeyHeader(req, pk); err != nil {
		return nil, err
	}
	return h.documentResponse(req)
}

func (h *HTTPConnection) ReplaceDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string, doc any) (*DocumentResponse, error) {
	body, err := h.marshaler.Marshal(doc)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/colls/%s/docs/%s", url.PathEscape(containerRID), url.PathEscape(id))
	req, err := h.newRequest(ctx, http.MethodPut, path, body)
	if err != nil {
		return nil, err
	}
	if err := h.setPartitionKeyHeader(req, pk); err != nil {
		return nil, err
	}
	return h.documentResponse(req)
}

func (h *HTTPConnection) DeleteDocument(ctx context.Context, containerRID string, pk models.PartitionKey, id string) error {
	path := fmt.Sprintf("/colls/%s/docs/%s", url.PathEscape(containerRID), url.PathEscape(id))
	req, err := h.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := h.setPartitionKeyHeader(req, pk); err != nil {
		return err
	}
	_, _, err = h.do(req)
	return err
}

func (h *HTTPConnection) ReadChangeFeedPage(ctx context.Context, cfReq *ChangeFeedRequest) (*ChangeFeedPage, error) {
	path := fmt.Sprintf("/colls/%s/docs", url.PathEscape(cfReq.ContainerRID))
	req, err := h.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set(constants.HeaderIncrementalFeed, "true")
	req.Header.Set(constants.HeaderChangeFeedMode, string(cfReq.Mode))
	if cfReq.MaxItemCount > 0 {
		req.Header.Set(constants.HeaderMaxItemCount, strconv.Itoa(cfReq.MaxItemCount))
	}

	switch {
	case cfReq.PartitionKeyRangeID != "":
		req.Header.Set(constants.HeaderPartitionKeyRange, cfReq.PartitionKeyRangeID)
	case cfReq.Range != nil:
		req.Header.Set(constants.HeaderStartEPK, cfReq.Range.Min)
		req.Header.Set(constants.HeaderEndEPK, cfReq.Range.Max)
	default:
		return nil, fmt.Errorf("%w: change feed request needs a range or a partition key range id", constants.ErrInvalidArgument)
	}

	// The progress marker wins over the start policy once set.
	switch {
	case cfReq.Marker != "":
		req.Header.Set(constants.HeaderIfNoneMatch, cfReq.Marker)
	case cfReq.StartTime != nil:
		req.Header.Set(constants.HeaderStartTime, cfReq.StartTime.UTC().Format(StartTimeFormat))
	case !cfReq.StartFromBeginning:
		req.Header.Set(constants.HeaderIfNoneMatch, constants.IfNoneMatchAll)
	}

	body, headers, err := h.do(req)
	if err != nil {
		return nil, err
	}

	page := &ChangeFeedPage{
		Marker: headers.Get(constants.HeaderETag),
		ETag:   headers.Get(constants.HeaderETag),
	}
	if len(body) == 0 {
		// 304 Not Modified: nothing new for this range.
		return page, nil
	}

	var docs documentsResponse
	if err := h.unmarshaler.Unmarshal(body, &docs); err != nil {
		return nil, fmt.Errorf("%w: %s", constants.ErrInvalidResponse, err)
	}
	page.Items = docs.Documents
	return page, nil
}

func (h *HTTPConnection) setPartitionKeyHeader(req *http.Request, pk models.PartitionKey) error {
	encoded, err := h.marshaler.Marshal(pk)
	if err != nil {
		return err
	}
	req.Header.Set(constants.HeaderPartitionKey, string(encoded))
	return nil
}

func (h *HTTPConnection) documentResponse(req *http.Request) (*DocumentResponse, error) {
	body, headers, err := h.do(req)
	if err != nil {
		return nil, err
	}
	return &DocumentResponse{
		Document: body,
		ETag:     headers.Get(constants.HeaderETag),
	}, nil
}
