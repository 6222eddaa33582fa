package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamware/clusterkv/internal/cluster"
	"github.com/dreamware/clusterkv/internal/manager"
)

// Manager settings.
const (
	EnvManagerListen   = "MANAGER_LISTEN"
	EnvClusterFile     = "CLUSTER_FILE"
	EnvSyncInterval    = "MANAGER_SYNC_INTERVAL"
	DefaultListen      = ":8080"
	DefaultClusterFile = "cluster.yaml"
)

// DefaultSyncInterval is how often a manager polls the registry.
const DefaultSyncInterval = 10 * time.Second

// ClusterFile describes the nodes a manager talks to and how it routes.
//
//	selector: replica-set
//	monitor_interval: 5s
//	call_timeout: 2s
//	nodes:
//	  - {address: 10.0.0.1, port: 50051, role: shard}
//	  - {address: 10.0.0.2, port: 50051, role: replica}
type ClusterFile struct {
	Selector        string                 `yaml:"selector"`
	MonitorInterval time.Duration          `yaml:"monitor_interval"`
	ProbeTimeout    time.Duration          `yaml:"probe_timeout"`
	CallTimeout     time.Duration          `yaml:"call_timeout"`
	Nodes           []cluster.NodeIdentity `yaml:"nodes"`
}

// LoadClusterFile reads and validates a YAML cluster file. Unknown fields are
// rejected.
func LoadClusterFile(path string) (ClusterFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return ClusterFile{}, err
	}
	defer f.Close()

	var cf ClusterFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cf); err != nil && !errors.Is(err, io.EOF) {
		return ClusterFile{}, fmt.Errorf("%w: %s: %v", cluster.ErrInvalidConfiguration, path, err)
	}
	for i := range cf.Nodes {
		if cf.Nodes[i].Group == "" {
			cf.Nodes[i].Group = cluster.RandomGroup(cluster.GroupWords)
		}
	}
	if err := cf.Validate(); err != nil {
		return ClusterFile{}, err
	}
	return cf, nil
}

// Validate checks durations, the selector name and every node.
func (c ClusterFile) Validate() error {
	if c.MonitorInterval < 0 {
		return fmt.Errorf("%w: monitor_interval cannot be negative", cluster.ErrInvalidConfiguration)
	}
	if c.ProbeTimeout < 0 {
		return fmt.Errorf("%w: probe_timeout cannot be negative", cluster.ErrInvalidConfiguration)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: call_timeout cannot be negative", cluster.ErrInvalidConfiguration)
	}
	if _, err := manager.SelectorByName(c.Selector); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Nodes))
	for i, n := range c.Nodes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("nodes[%d]: %w", i, err)
		}
		if seen[n.Socket()] {
			return fmt.Errorf("%w: nodes[%d]: duplicate node %s", cluster.ErrInvalidConfiguration, i, n.Socket())
		}
		seen[n.Socket()] = true
	}
	return nil
}

// ManagerOptions converts the file into manager options.
func (c ClusterFile) ManagerOptions() ([]manager.Option, error) {
	sel, err := manager.SelectorByName(c.Selector)
	if err != nil {
		return nil, err
	}
	return []manager.Option{
		manager.WithSelector(sel),
		manager.WithCallTimeout(c.CallTimeout),
		manager.WithHandleOptions(
			manager.WithInterval(c.MonitorInterval),
			manager.WithProbeTimeout(c.ProbeTimeout),
		),
	}, nil
}

// ManagerConfig is the configuration of the manager process.
type ManagerConfig struct {
	Listen       string
	ClusterFile  string // optional; an empty cluster starts with no nodes
	RedisAddr    string
	SyncInterval time.Duration
}

// ManagerFromEnv reads a ManagerConfig.
func ManagerFromEnv(lookup LookupFunc) (ManagerConfig, error) {
	cfg := ManagerConfig{
		Listen:       get(lookup, EnvManagerListen, DefaultListen),
		ClusterFile:  get(lookup, EnvClusterFile, ""),
		RedisAddr:    get(lookup, EnvRedisAddr, ""),
		SyncInterval: DefaultSyncInterval,
	}
	if v := get(lookup, EnvSyncInterval, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return ManagerConfig{}, invalid(EnvSyncInterval, v, err)
		}
		cfg.SyncInterval = d
	}
	if cfg.SyncInterval <= 0 {
		return ManagerConfig{}, fmt.Errorf("%w: sync interval must be >0", cluster.ErrInvalidConfiguration)
	}
	return cfg, nil
}
