package cluster

import (
	"context"
	"net/http"
	"strings"

	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/storage"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// NodeInfo is returned by GET /info.
type NodeInfo struct {
	Identity NodeIdentity    `json:"identity"`
	Strict   bool            `json:"strict_types"`
	Stats    datastore.Stats `json:"stats"`
}

// Client issues typed RPCs to one node. Each client owns its connection
// pool, released by Close.
type Client struct {
	baseURL string
	hc      *http.Client
}

// NewClient creates a client for the node at baseURL ("http://host:port").
// A bare "host:port" is accepted too.
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Transport: transport, Timeout: DefaultTimeout},
	}
}

// BaseURL returns the node's base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Close releases idle connections to the node.
func (c *Client) Close() {
	c.hc.CloseIdleConnections()
}

func (c *Client) call(ctx context.Context, op string, req, resp any) error {
	return doJSON(ctx, c.hc, http.MethodPost, c.baseURL+RPCPath(op), req, resp)
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) error {
	var resp HealthResponse
	return doJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/health", nil, &resp)
}

// Info fetches the node's identity and statistics.
func (c *Client) Info(ctx context.Context) (NodeInfo, error) {
	var info NodeInfo
	err := doJSON(ctx, c.hc, http.MethodGet, c.baseURL+"/info", nil, &info)
	return info, err
}

func (c *Client) StrSet(ctx context.Context, key, value string) (bool, error) {
	var resp OKResponse
	if err := c.call(ctx, OpStrSet, StrSetRequest{Key: key, Value: value}, &resp); err != nil {
		return false, err
	}
	return resp.OK, nil
}

// StrGet returns "" for a missing key.
func (c *Client) StrGet(ctx context.Context, key string) (string, error) {
	var resp StrGetResponse
	if err := c.call(ctx, OpStrGet, KeyRequest{Key: key}, &resp); err != nil {
		return "", err
	}
	return resp.Value, nil
}

func (c *Client) LPush(ctx context.Context, key string, values ...string) (int, error) {
	return c.push(ctx, OpLPush, key, values)
}

func (c *Client) RPush(ctx context.Context, key string, values ...string) (int, error) {
	return c.push(ctx, OpRPush, key, values)
}

func (c *Client) push(ctx context.Context, op, key string, values []string) (int, error) {
	var resp LengthResponse
	if err := c.call(ctx, op, PushRequest{Key: key, Values: values}, &resp); err != nil {
		return 0, err
	}
	return resp.Length, nil
}

func (c *Client) LRange(ctx context.Context, key string, start, end int) ([]string, error) {
	var resp ValuesResponse
	if err := c.call(ctx, OpLRange, RangeRequest{Key: key, Start: start, End: end}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Values), nil
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) (int, error) {
	var resp CountResponse
	if err := c.call(ctx, OpSAdd, SAddRequest{Key: key, Members: members}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	var resp ValuesResponse
	if err := c.call(ctx, OpSMembers, KeyRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Values), nil
}

func (c *Client) HSet(ctx context.Context, key string, args datastore.HashArgs) (int, error) {
	req := HSetRequest{Key: key, Field: args.Field, Value: args.Value, Mapping: args.Mapping}
	var resp CountResponse
	if err := c.call(ctx, OpHSet, req, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// HGet returns the field value and whether it was present.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	var resp HGetResponse
	if err := c.call(ctx, OpHGet, HGetRequest{Key: key, Field: field}, &resp); err != nil {
		return "", false, err
	}
	return resp.Value, resp.Found, nil
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	var resp FieldsResponse
	if err := c.call(ctx, OpHGetAll, KeyRequest{Key: key}, &resp); err != nil {
		return nil, err
	}
	if resp.Fields == nil {
		resp.Fields = map[string]string{}
	}
	return resp.Fields, nil
}

func (c *Client) ZAdd(ctx context.Context, key string, members map[string]float64) (int, error) {
	var resp CountResponse
	if err := c.call(ctx, OpZAdd, ZAddRequest{Key: key, Members: members}, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ZRange returns members with their scores.
func (c *Client) ZRange(ctx context.Context, key string, start, end int) ([]storage.ScoredMember, error) {
	var resp ZRangeResponse
	req := RangeRequest{Key: key, Start: start, End: end, WithScores: true}
	if err := c.call(ctx, OpZRange, req, &resp); err != nil {
		return nil, err
	}
	if resp.Scored == nil {
		resp.Scored = []storage.ScoredMember{}
	}
	return resp.Scored, nil
}

// ZRangeMembers returns member names only.
func (c *Client) ZRangeMembers(ctx context.Context, key string, start, end int) ([]string, error) {
	var resp ZRangeResponse
	if err := c.call(ctx, OpZRange, RangeRequest{Key: key, Start: start, End: end}, &resp); err != nil {
		return nil, err
	}
	return nonNil(resp.Members), nil
}

func (c *Client) Delete(ctx context.Context, key string) (bool, error) {
	var resp DeleteResponse
	if err := c.call(ctx, OpDelete, KeyRequest{Key: key}, &resp); err != nil {
		return false, err
	}
	return resp.Deleted, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
