// Package registry lets nodes announce themselves in Redis so that managers
// can discover them. Each announcement is a key holding the node identity
// with a TTL plus membership in a set; a node that stops announcing drops
// out once its key expires.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dreamware/clusterkv/internal/cluster"
)

const defaultPrefix = "clusterkv:"

// Options configure the Redis store.
type Options struct {
	Addr           string
	SentinelAddrs  []string
	SentinelMaster string
	Username       string
	Password       string
	DB             int
	KeyPrefix      string
}

// Store is a Redis-backed node registry.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// New connects to Redis, single instance or Sentinel, and checks the
// connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:      addrs(opts),
		MasterName: opts.SentinelMaster,
		Username:   opts.Username,
		Password:   opts.Password,
		DB:         opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client, prefix: prefix}, nil
}

func addrs(opts Options) []string {
	if len(opts.SentinelAddrs) > 0 {
		return opts.SentinelAddrs
	}
	if opts.Addr != "" {
		return []string{opts.Addr}
	}
	return []string{"127.0.0.1:6379"}
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Announce publishes identity for ttl. Nodes call it periodically, well
// within the ttl.
func (s *Store) Announce(ctx context.Context, identity cluster.NodeIdentity, ttl time.Duration) error {
	if err := identity.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return err
	}

	socket := identity.Socket()
	_, err = s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.nodeKey(socket), payload, ttl)
		p.SAdd(ctx, s.nodesSetKey(), socket)
		return nil
	})
	return err
}

// Withdraw removes identity immediately, e.g. on graceful shutdown.
func (s *Store) Withdraw(ctx context.Context, identity cluster.NodeIdentity) error {
	socket := identity.Socket()
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.nodeKey(socket))
		p.SRem(ctx, s.nodesSetKey(), socket)
		return nil
	})
	return err
}

// List returns the identities whose announcement has not expired, ordered by
// socket.
func (s *Store) List(ctx context.Context) ([]cluster.NodeIdentity, error) {
	members, err := s.client.SMembers(ctx, s.nodesSetKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	sort.Strings(members)

	pipe := s.client.Pipeline()
	getCmds := make([]*goredis.StringCmd, 0, len(members))
	for _, socket := range members {
		getCmds = append(getCmds, pipe.Get(ctx, s.nodeKey(socket)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return nil, err
	}

	live := make([]cluster.NodeIdentity, 0, len(members))
	for i, cmd := range getCmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, goredis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var id cluster.NodeIdentity
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, fmt.Errorf("decode node %s: %w", members[i], err)
		}
		live = append(live, id)
	}
	return live, nil
}

// Prune removes set members whose announcement expired and returns how many
// were removed.
func (s *Store) Prune(ctx context.Context) (int, error) {
	members, err := s.client.SMembers(ctx, s.nodesSetKey()).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	existsCmds := make([]*goredis.IntCmd, 0, len(members))
	for _, socket := range members {
		existsCmds = append(existsCmds, pipe.Exists(ctx, s.nodeKey(socket)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return 0, err
	}

	var dead []interface{}
	for i, cmd := range existsCmds {
		if cmd.Val() == 0 {
			dead = append(dead, members[i])
		}
	}
	if len(dead) == 0 {
		return 0, nil
	}
	if err := s.client.SRem(ctx, s.nodesSetKey(), dead...).Err(); err != nil {
		return 0, err
	}
	return len(dead), nil
}

func (s *Store) nodeKey(socket string) string {
	return s.prefix + "node:" + socket
}

func (s *Store) nodesSetKey() string {
	return s.prefix + "nodes"
}
