package cluster

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/storage"
)

// RPC operation names. Each is served at POST /rpc/{op}.
const (
	OpStrSet   = "strset"
	OpStrGet   = "strget"
	OpLPush    = "lpush"
	OpRPush    = "rpush"
	OpLRange   = "lrange"
	OpSAdd     = "sadd"
	OpSMembers = "smembers"
	OpHSet     = "hset"
	OpHGet     = "hget"
	OpHGetAll  = "hgetall"
	OpZAdd     = "zadd"
	OpZRange   = "zrange"
	OpDelete   = "delete"
)

// Ops lists every RPC operation.
var Ops = []string{
	OpStrSet, OpStrGet, OpLPush, OpRPush, OpLRange, OpSAdd, OpSMembers,
	OpHSet, OpHGet, OpHGetAll, OpZAdd, OpZRange, OpDelete,
}

// RPCPath returns the URL path of op.
func RPCPath(op string) string { return "/rpc/" + op }

// KeyRequest is used by every operation that needs only a key.
type KeyRequest struct {
	Key string `json:"key"`
}

type StrSetRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// StrGetResponse carries the stored string. A missing key is "" with Found
// false.
type StrGetResponse struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type PushRequest struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

type LengthResponse struct {
	Length int `json:"length"`
}

// RangeRequest is shared by LRange and ZRange. WithScores only applies to
// ZRange.
type RangeRequest struct {
	Key        string `json:"key"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	WithScores bool   `json:"with_scores,omitempty"`
}

type ValuesResponse struct {
	Values []string `json:"values"`
}

type SAddRequest struct {
	Key     string   `json:"key"`
	Members []string `json:"members"`
}

type CountResponse struct {
	Count int `json:"count"`
}

// HSetRequest mirrors datastore.HashArgs: Field and Value together, or
// Mapping alone. An empty mapping is sent as {} and is valid; an absent one
// is null.
type HSetRequest struct {
	Key     string            `json:"key"`
	Field   *string           `json:"field,omitempty"`
	Value   *string           `json:"value,omitempty"`
	Mapping map[string]string `json:"mapping"`
}

// Args converts the request to datastore arguments.
func (r HSetRequest) Args() datastore.HashArgs {
	return datastore.HashArgs{Field: r.Field, Value: r.Value, Mapping: r.Mapping}
}

type HGetRequest struct {
	Key   string `json:"key"`
	Field string `json:"field"`
}

type HGetResponse struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

type FieldsResponse struct {
	Fields map[string]string `json:"fields"`
}

type ZAddRequest struct {
	Key     string             `json:"key"`
	Members map[string]float64 `json:"members"`
}

// ZRangeResponse carries Scored when the request asked for scores and
// Members otherwise.
type ZRangeResponse struct {
	Members []string               `json:"members,omitempty"`
	Scored  []storage.ScoredMember `json:"scored,omitempty"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// Error codes carried in ErrorResponse.
const (
	CodeCapacityExceeded = "capacity_exceeded"
	CodeInvalidArguments = "invalid_arguments"
	CodeWrongType        = "wrong_type"
	CodeBadRequest       = "bad_request"
	CodeNotFound         = "not_found"
	CodeInternal         = "internal"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// ErrBadRequest is returned when the node could not decode a request.
var ErrBadRequest = errors.New("bad request")

var codeErrors = map[string]error{
	CodeCapacityExceeded: storage.ErrCapacityExceeded,
	CodeInvalidArguments: datastore.ErrInvalidArguments,
	CodeWrongType:        datastore.ErrWrongType,
	CodeBadRequest:       ErrBadRequest,
}

// ErrorCode maps a datastore error to its wire code and HTTP status.
func ErrorCode(err error) (code string, status int) {
	switch {
	case errors.Is(err, storage.ErrCapacityExceeded):
		return CodeCapacityExceeded, http.StatusInsufficientStorage
	case errors.Is(err, datastore.ErrInvalidArguments):
		return CodeInvalidArguments, http.StatusBadRequest
	case errors.Is(err, datastore.ErrWrongType):
		return CodeWrongType, http.StatusConflict
	case errors.Is(err, ErrBadRequest):
		return CodeBadRequest, http.StatusBadRequest
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

// RemoteError is a failure reported by a node. It unwraps to the matching
// sentinel so errors.Is works across the wire.
type RemoteError struct {
	URL     string
	Status  int
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %s: %d", e.URL, e.Status)
	}
	return fmt.Sprintf("http %s: %d %s: %s", e.URL, e.Status, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return codeErrors[e.Code]
}
