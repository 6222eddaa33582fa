package node

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/datastore"
	"github.com/dreamware/clusterkv/internal/metrics"
)

// Server exposes one Datastore over the cluster RPC protocol.
type Server struct {
	identity cluster.NodeIdentity
	ds       *datastore.Datastore
	router   *mux.Router
}

// NewServer creates a server for ds and registers its routes.
func NewServer(identity cluster.NodeIdentity, ds *datastore.Datastore) *Server {
	s := &Server{
		identity: identity,
		ds:       ds,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }

// Datastore returns the store served by s.
func (s *Server) Datastore() *datastore.Datastore { return s.ds }

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	rpc := s.router.PathPrefix("/rpc").Subrouter()
	rpc.Use(jsonContentType)

	rpc.HandleFunc("/"+cluster.OpStrSet, rpcHandler(s, cluster.OpStrSet, func(r cluster.StrSetRequest) (any, error) {
		ok, err := s.ds.StrSet(r.Key, r.Value)
		return cluster.OKResponse{OK: ok}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpStrGet, rpcHandler(s, cluster.OpStrGet, func(r cluster.KeyRequest) (any, error) {
		v, found := s.ds.StrGet(r.Key)
		return cluster.StrGetResponse{Value: v, Found: found}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpLPush, rpcHandler(s, cluster.OpLPush, func(r cluster.PushRequest) (any, error) {
		n, err := s.ds.LPush(r.Key, r.Values...)
		return cluster.LengthResponse{Length: n}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpRPush, rpcHandler(s, cluster.OpRPush, func(r cluster.PushRequest) (any, error) {
		n, err := s.ds.RPush(r.Key, r.Values...)
		return cluster.LengthResponse{Length: n}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpLRange, rpcHandler(s, cluster.OpLRange, func(r cluster.RangeRequest) (any, error) {
		return cluster.ValuesResponse{Values: s.ds.LRange(r.Key, r.Start, r.End)}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpSAdd, rpcHandler(s, cluster.OpSAdd, func(r cluster.SAddRequest) (any, error) {
		n, err := s.ds.SAdd(r.Key, r.Members...)
		return cluster.CountResponse{Count: n}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpSMembers, rpcHandler(s, cluster.OpSMembers, func(r cluster.KeyRequest) (any, error) {
		return cluster.ValuesResponse{Values: s.ds.SMembers(r.Key)}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpHSet, rpcHandler(s, cluster.OpHSet, func(r cluster.HSetRequest) (any, error) {
		n, err := s.ds.HSet(r.Key, r.Args())
		return cluster.CountResponse{Count: n}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpHGet, rpcHandler(s, cluster.OpHGet, func(r cluster.HGetRequest) (any, error) {
		v, found := s.ds.HGet(r.Key, r.Field)
		return cluster.HGetResponse{Value: v, Found: found}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpHGetAll, rpcHandler(s, cluster.OpHGetAll, func(r cluster.KeyRequest) (any, error) {
		return cluster.FieldsResponse{Fields: s.ds.HGetAll(r.Key)}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpZAdd, rpcHandler(s, cluster.OpZAdd, func(r cluster.ZAddRequest) (any, error) {
		n, err := s.ds.ZAdd(r.Key, r.Members)
		return cluster.CountResponse{Count: n}, err
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpZRange, rpcHandler(s, cluster.OpZRange, func(r cluster.RangeRequest) (any, error) {
		if r.WithScores {
			return cluster.ZRangeResponse{Scored: s.ds.ZRange(r.Key, r.Start, r.End)}, nil
		}
		return cluster.ZRangeResponse{Members: s.ds.ZRangeMembers(r.Key, r.Start, r.End)}, nil
	})).Methods(http.MethodPost)

	rpc.HandleFunc("/"+cluster.OpDelete, rpcHandler(s, cluster.OpDelete, func(r cluster.KeyRequest) (any, error) {
		return cluster.DeleteResponse{Deleted: s.ds.Delete(r.Key)}, nil
	})).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(handleNotFound)
}

// rpcHandler decodes a Req, runs fn and writes either its result or an
// ErrorResponse.
func rpcHandler[Req any](s *Server, op string, fn func(Req) (any, error)) http.HandlerFunc {
	socket := s.identity.Socket()
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			err = fmt.Errorf("%w: %v", cluster.ErrBadRequest, err)
			metrics.ObserveNodeOp(socket, op, err)
			writeError(w, err)
			return
		}

		resp, err := fn(req)
		metrics.ObserveNodeOp(socket, op, err)
		if err != nil {
			writeError(w, err)
			return
		}
		stats := s.ds.Stats().Storage
		metrics.SetStoreUsage(socket, stats.Bytes, stats.Keys)
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cluster.HealthResponse{Status: "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, cluster.NodeInfo{
		Identity: s.identity,
		Strict:   s.ds.Strict(),
		Stats:    s.ds.Stats(),
	})
}

func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, cluster.ErrorResponse{
		Code:  cluster.CodeNotFound,
		Error: "no route for " + r.Method + " " + r.URL.Path,
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, err error) {
	code, status := cluster.ErrorCode(err)
	if status >= http.StatusInternalServerError && status != http.StatusInsufficientStorage {
		log.Printf("rpc error: %v", err)
	}
	writeJSON(w, status, cluster.ErrorResponse{Code: code, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}
