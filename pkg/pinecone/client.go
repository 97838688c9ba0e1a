package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultBaseURL = "https://api.pinecone.io"
	apiVersion     = "2024-07"
)

// Client manages a Pinecone serverless index and its vectors.
type Client interface {
	// EnsureIndex creates the index if it does not exist and resolves its
	// data-plane host. Safe to call repeatedly.
	EnsureIndex(ctx context.Context, spec IndexSpec) error
	DeleteIndex(ctx context.Context, name string) error

	Upsert(ctx context.Context, vectors []Vector) (int, error)
	Query(ctx context.Context, req QueryRequest) (*QueryResponse, error)
	Delete(ctx context.Context, ids []string) error
	DeleteAll(ctx context.Context) error
	Stats(ctx context.Context) (*IndexStats, error)
}

// IndexSpec describes a serverless index.
type IndexSpec struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
	Cloud     string `json:"cloud"`
	Region    string `json:"region"`
}

// Vector is a single vector with metadata.
type Vector struct {
	ID       string         `json:"id"`
	Values   []float64      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// QueryRequest queries the index for nearest neighbors.
type QueryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// QueryResponse holds query matches.
type QueryResponse struct {
	Matches []Match `json:"matches"`
}

// Match is a single nearest-neighbor result.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IndexStats reports index-wide statistics.
type IndexStats struct {
	TotalVectorCount int `json:"totalVectorCount"`
	Dimension        int `json:"dimension"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the control-plane base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithIndexHost pins the data-plane host, skipping describe-index resolution.
func WithIndexHost(host string) Option {
	return func(c *httpClient) {
		c.host = host
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client

	mu    sync.Mutex
	index string
	host  string
}

// NewClient creates a Pinecone API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type createIndexRequest struct {
	Name      string    `json:"name"`
	Dimension int       `json:"dimension"`
	Metric    string    `json:"metric"`
	Spec      indexSpec `json:"spec"`
}

type indexSpec struct {
	Serverless serverlessSpec `json:"serverless"`
}

type serverlessSpec struct {
	Cloud  string `json:"cloud"`
	Region string `json:"region"`
}

type describeIndexResponse struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

func (c *httpClient) EnsureIndex(ctx context.Context, spec IndexSpec) error {
	if spec.Metric == "" {
		spec.Metric = "cosine"
	}

	desc, err := c.describeIndex(ctx, spec.Name)
	if err == nil {
		c.setIndex(spec.Name, desc.Host)
		return nil
	}
	if !isNotFound(err) {
		return eris.Wrapf(err, "pinecone: describe index %s", spec.Name)
	}

	body := createIndexRequest{
		Name:      spec.Name,
		Dimension: spec.Dimension,
		Metric:    spec.Metric,
		Spec:      indexSpec{Serverless: serverlessSpec{Cloud: spec.Cloud, Region: spec.Region}},
	}
	var created describeIndexResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/indexes", body, &created); err != nil {
		// A concurrent creator is fine; re-resolve the host.
		if !strings.Contains(err.Error(), "409") {
			return eris.Wrapf(err, "pinecone: create index %s", spec.Name)
		}
		created, err = c.describeIndex(ctx, spec.Name)
		if err != nil {
			return eris.Wrapf(err, "pinecone: describe index %s after conflict", spec.Name)
		}
	}

	c.setIndex(spec.Name, created.Host)
	return nil
}

func (c *httpClient) DeleteIndex(ctx context.Context, name string) error {
	if err := c.do(ctx, http.MethodDelete, c.baseURL+"/indexes/"+name, nil, nil); err != nil {
		return eris.Wrapf(err, "pinecone: delete index %s", name)
	}
	c.setIndex("", "")
	return nil
}

func (c *httpClient) Upsert(ctx context.Context, vectors []Vector) (int, error) {
	if len(vectors) == 0 {
		return 0, nil
	}
	host, err := c.dataURL()
	if err != nil {
		return 0, err
	}

	var result struct {
		UpsertedCount int `json:"upsertedCount"`
	}
	req := struct {
		Vectors []Vector `json:"vectors"`
	}{Vectors: vectors}

	if err := c.do(ctx, http.MethodPost, host+"/vectors/upsert", req, &result); err != nil {
		return 0, eris.Wrap(err, "pinecone: upsert")
	}
	return result.UpsertedCount, nil
}

func (c *httpClient) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	host, err := c.dataURL()
	if err != nil {
		return nil, err
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	var result QueryResponse
	if err := c.do(ctx, http.MethodPost, host+"/query", req, &result); err != nil {
		return nil, eris.Wrap(err, "pinecone: query")
	}
	return &result, nil
}

func (c *httpClient) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	host, err := c.dataURL()
	if err != nil {
		return err
	}

	req := struct {
		IDs []string `json:"ids"`
	}{IDs: ids}
	if err := c.do(ctx, http.MethodPost, host+"/vectors/delete", req, nil); err != nil {
		return eris.Wrap(err, "pinecone: delete vectors")
	}
	return nil
}

func (c *httpClient) DeleteAll(ctx context.Context) error {
	host, err := c.dataURL()
	if err != nil {
		return err
	}

	req := struct {
		DeleteAll bool `json:"deleteAll"`
	}{DeleteAll: true}
	if err := c.do(ctx, http.MethodPost, host+"/vectors/delete", req, nil); err != nil {
		return eris.Wrap(err, "pinecone: delete all vectors")
	}
	return nil
}

func (c *httpClient) Stats(ctx context.Context) (*IndexStats, error) {
	host, err := c.dataURL()
	if err != nil {
		return nil, err
	}

	var result IndexStats
	if err := c.do(ctx, http.MethodPost, host+"/describe_index_stats", struct{}{}, &result); err != nil {
		return nil, eris.Wrap(err, "pinecone: describe index stats")
	}
	return &result, nil
}

func (c *httpClient) describeIndex(ctx context.Context, name string) (describeIndexResponse, error) {
	var desc describeIndexResponse
	err := c.do(ctx, http.MethodGet, c.baseURL+"/indexes/"+name, nil, &desc)
	return desc, err
}

func (c *httpClient) setIndex(name, host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = name
	c.host = host
}

// dataURL returns the resolved data-plane base URL. Hosts returned by the
// control plane are bare names; test hosts may carry a scheme already.
func (c *httpClient) dataURL() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host == "" {
		return "", eris.New("pinecone: index host not resolved; call EnsureIndex first")
	}
	if strings.Contains(c.host, "://") {
		return c.host, nil
	}
	return "https://" + c.host, nil
}

func (c *httpClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Api-Key", c.apiKey)
	httpReq.Header.Set("X-Pinecone-API-Version", apiVersion)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return eris.Wrap(err, "send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return eris.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return eris.Wrap(err, "unmarshal response")
		}
	}
	return nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "status 404")
}
