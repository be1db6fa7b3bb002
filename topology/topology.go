// Package topology holds the static overlay map loaded once at bootstrap:
// which neighbors each node can flood lookups to and open signaling
// connections against.
package topology

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v2"
)

// DefaultPort is used for a Neighbor when the descriptor omits one.
const DefaultPort = 8000

// Neighbor is a network endpoint: host address plus port. It is a value
// type, comparable by equality on both fields.
type Neighbor struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// String renders the neighbor as a host:port address suitable for dialing.
func (n Neighbor) String() string {
	return net.JoinHostPort(n.Host, fmt.Sprintf("%d", n.Port))
}

// FromAddr derives a Neighbor from an observed network address such as
// the source address of a received datagram.
func FromAddr(addr net.Addr) (Neighbor, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Neighbor{}, fmt.Errorf("topology: split address %q: %w", addr.String(), err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return Neighbor{}, fmt.Errorf("topology: parse port %q: %w", portStr, err)
	}
	return Neighbor{Host: host, Port: port}, nil
}

// normalize applies the default port to neighbors that omit one.
func normalize(neighbors []Neighbor) []Neighbor {
	out := make([]Neighbor, len(neighbors))
	for i, n := range neighbors {
		if n.Port == 0 {
			n.Port = DefaultPort
		}
		out[i] = n
	}
	return out
}

// Topology is a mapping from host address to its ordered neighbor list.
// It is loaded once at bootstrap and is immutable for the process lifetime.
type Topology map[string][]Neighbor

// Neighbors returns the neighbor list for host, and whether host is known.
// An unknown host must not be confused with a known host that legitimately
// has no neighbors (a leaf): the caller distinguishes the two via the bool.
func (t Topology) Neighbors(host string) ([]Neighbor, bool) {
	n, ok := t[host]
	return n, ok
}

// Load reads a topology descriptor from a YAML file: a mapping from host
// address string to an array of {host, port} neighbor objects.
func Load(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: read %s: %w", path, err)
	}

	var raw map[string][]Neighbor
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("topology: parse %s: %w", path, err)
	}

	t := make(Topology, len(raw))
	for host, neighbors := range raw {
		t[host] = normalize(neighbors)
	}
	return t, nil
}
