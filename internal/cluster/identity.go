package cluster

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidConfiguration is wrapped by every validation failure of node or
// manager settings.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Role describes what a node is responsible for in the cluster.
type Role string

const (
	RoleShard   Role = "shard"
	RoleReplica Role = "replica"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleShard || r == RoleReplica
}

// GroupWords is the number of words in a generated group label.
const GroupWords = 5

// NodeIdentity is the static description of a storage node. It is fixed for
// the lifetime of the node handle that carries it.
type NodeIdentity struct {
	Address string `json:"address" yaml:"address"` // IPv4 address
	Port    int    `json:"port" yaml:"port"`
	Role    Role   `json:"role" yaml:"role"`
	Group   string `json:"group,omitempty" yaml:"group,omitempty"` // diagnostics only
}

// NewNodeIdentity builds and validates an identity. An empty group is
// replaced with a random label.
func NewNodeIdentity(address string, port int, role Role, group string) (NodeIdentity, error) {
	id := NodeIdentity{Address: address, Port: port, Role: role, Group: group}
	if id.Group == "" {
		id.Group = RandomGroup(GroupWords)
	}
	if err := id.Validate(); err != nil {
		return NodeIdentity{}, err
	}
	return id, nil
}

// Validate checks the address, port and role.
func (n NodeIdentity) Validate() error {
	ip := net.ParseIP(n.Address)
	if ip == nil || ip.To4() == nil || strings.Contains(n.Address, ":") {
		return fmt.Errorf("%w: address %q is not an IPv4 address", ErrInvalidConfiguration, n.Address)
	}
	if n.Port < 0 || n.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range 0-65535", ErrInvalidConfiguration, n.Port)
	}
	if !n.Role.Valid() {
		return fmt.Errorf("%w: role %q must be %q or %q", ErrInvalidConfiguration, n.Role, RoleShard, RoleReplica)
	}
	return nil
}

// Socket returns "address:port".
func (n NodeIdentity) Socket() string {
	return net.JoinHostPort(n.Address, strconv.Itoa(n.Port))
}

// BaseURL returns the HTTP base URL of the node's RPC server.
func (n NodeIdentity) BaseURL() string {
	return "http://" + n.Socket()
}

func (n NodeIdentity) String() string {
	return fmt.Sprintf("%s(%s,%s)", n.Socket(), n.Role, n.Group)
}

var groupWords = []string{
	"amber", "anchor", "aspen", "badger", "basalt", "beacon", "birch", "bramble",
	"cedar", "cinder", "clover", "comet", "copper", "coral", "crane", "delta",
	"dune", "ember", "falcon", "fern", "fjord", "flint", "garnet", "glacier",
	"granite", "harbor", "hazel", "heron", "indigo", "island", "jasper", "juniper",
	"kestrel", "lagoon", "lantern", "laurel", "lichen", "lumen", "maple", "marble",
	"meadow", "mesa", "nectar", "nimbus", "oak", "obsidian", "onyx", "orchid",
	"otter", "pebble", "pine", "prairie", "quartz", "quill", "raven", "reef",
	"ridge", "saffron", "sable", "sequoia", "spruce", "summit", "thistle", "tundra",
	"umber", "valley", "willow", "wren", "yarrow", "zephyr",
}

// RandomGroup returns n random words joined by hyphens.
func RandomGroup(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = groupWords[rand.Intn(len(groupWords))]
	}
	return strings.Join(words, "-")
}
