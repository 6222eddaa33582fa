// Package config loads settings for the clusterkv binaries from environment
// variables, optional .env files and YAML cluster files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/datastore"
)

// LookupFunc reads one setting. os.LookupEnv is the usual implementation.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads variables from the given files, ".env" by default, without
// overriding variables already set. It reports whether anything was loaded;
// a missing file is not an error.
func LoadDotEnv(files ...string) (bool, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return false, err
		}
	}
	if len(present) == 0 {
		return false, nil
	}
	if err := godotenv.Load(present...); err != nil {
		return false, err
	}
	return true, nil
}

// Node settings.
const (
	EnvNodeAddress     = "NODE_ADDRESS"
	EnvNodePort        = "NODE_PORT"
	EnvNodeListen      = "NODE_LISTEN"
	EnvNodeRole        = "NODE_ROLE"
	EnvNodeGroup       = "NODE_GROUP"
	EnvNodeCapacity    = "NODE_CAPACITY"
	EnvNodeStrictTypes = "NODE_STRICT_TYPES"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRegistryTTL     = "REGISTRY_TTL"
)

// DefaultRegistryTTL is how long a node announcement lives without refresh.
const DefaultRegistryTTL = 15 * time.Second

// NodeConfig is the configuration of one storage node process.
type NodeConfig struct {
	Identity    cluster.NodeIdentity
	Listen      string // defaults to ":<port>"
	Capacity    int64  // bytes, 0 for unbounded
	StrictTypes bool
	RedisAddr   string // registry disabled when empty
	RegistryTTL time.Duration
}

// NodeFromEnv reads a NodeConfig. NODE_ADDRESS and NODE_PORT are required.
func NodeFromEnv(lookup LookupFunc) (NodeConfig, error) {
	address, ok := lookup(EnvNodeAddress)
	if !ok || address == "" {
		return NodeConfig{}, missing(EnvNodeAddress)
	}
	portStr, ok := lookup(EnvNodePort)
	if !ok || portStr == "" {
		return NodeConfig{}, missing(EnvNodePort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return NodeConfig{}, invalid(EnvNodePort, portStr, err)
	}

	cfg := NodeConfig{
		Identity: cluster.NodeIdentity{
			Address: address,
			Port:    port,
			Role:    cluster.Role(get(lookup, EnvNodeRole, string(cluster.RoleShard))),
			Group:   get(lookup, EnvNodeGroup, ""),
		},
		Listen:      get(lookup, EnvNodeListen, ":"+portStr),
		Capacity:    datastore.DefaultCapacity,
		RedisAddr:   get(lookup, EnvRedisAddr, ""),
		RegistryTTL: DefaultRegistryTTL,
	}
	if cfg.Identity.Group == "" {
		cfg.Identity.Group = cluster.RandomGroup(cluster.GroupWords)
	}

	if v := get(lookup, EnvNodeCapacity, ""); v != "" {
		if cfg.Capacity, err = ParseCapacity(v); err != nil {
			return NodeConfig{}, invalid(EnvNodeCapacity, v, err)
		}
	}
	if v := get(lookup, EnvNodeStrictTypes, ""); v != "" {
		if cfg.StrictTypes, err = strconv.ParseBool(v); err != nil {
			return NodeConfig{}, invalid(EnvNodeStrictTypes, v, err)
		}
	}
	if v := get(lookup, EnvRegistryTTL, ""); v != "" {
		if cfg.RegistryTTL, err = time.ParseDuration(v); err != nil {
			return NodeConfig{}, invalid(EnvRegistryTTL, v, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// Validate checks the identity and numeric settings.
func (c NodeConfig) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if c.Capacity < 0 {
		return fmt.Errorf("%w: capacity cannot be negative", cluster.ErrInvalidConfiguration)
	}
	if c.RedisAddr != "" && c.RegistryTTL <= 0 {
		return fmt.Errorf("%w: registry TTL must be >0", cluster.ErrInvalidConfiguration)
	}
	return nil
}

// DatastoreOptions returns the datastore options implied by c.
func (c NodeConfig) DatastoreOptions() []datastore.Option {
	opts := []datastore.Option{datastore.WithCapacity(c.Capacity)}
	if c.StrictTypes {
		opts = append(opts, datastore.WithStrictTypes())
	}
	return opts
}

// ParseCapacity parses a human-readable byte size such as "512MiB" or
// "1 GB". "0" and "unlimited" disable the limit.
func ParseCapacity(s string) (int64, error) {
	if s == "unlimited" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("capacity %s too large", s)
	}
	return int64(n), nil
}

// FormatCapacity renders a capacity for logs.
func FormatCapacity(n int64) string {
	if n <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(n))
}

func get(lookup LookupFunc, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func missing(key string) error {
	return fmt.Errorf("%w: missing env %s", cluster.ErrInvalidConfiguration, key)
}

func invalid(key, value string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", cluster.ErrInvalidConfiguration, key, value, err)
}
