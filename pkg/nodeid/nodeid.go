// Package nodeid derives cluster addresses for discovered endpoints and for
// the local process itself.
package nodeid

import (
	"net"

	"github.com/clusterpeers/ecspeers"
)

// Format builds the cluster address for an endpoint.  It is a pure mapping;
// the address is not validated here, a malformed IP passes through verbatim.
func Format(shortName, ip string) ecspeers.Node {
	return ecspeers.Node(shortName + "@" + ip)
}

// Identity is the cluster address of the running process, used to keep the
// discoverer from reporting itself as a peer.  It is passed explicitly to the
// discoverer rather than looked up ambiently, to keep the core testable.
type Identity struct {
	self ecspeers.Node
}

// NewIdentity builds an Identity from the local short name and advertised IP.
func NewIdentity(shortName, ip string) Identity {
	return Identity{self: Format(shortName, ip)}
}

// Node returns the local process's own cluster address.
func (id Identity) Node() ecspeers.Node {
	return id.self
}

// Is reports whether candidate addresses the local process.
func (id Identity) Is(candidate ecspeers.Node) bool {
	return candidate == id.self
}

// LocalAddress is a helper function to return the local IP address that would
// be used to connect to a specified target.  Useful to get the IP that should
// be advertised externally.
func LocalAddress(target string) (net.IP, error) {
	conn, err := net.Dial("udp", target)
	if err != nil {
		return nil, err
	}

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	_ = conn.Close()
	return localAddr.IP, nil
}

// LocalIdentity derives the Identity from the local routable address.  The
// probe target is only used for route selection, it is never talked to.
func LocalIdentity(shortName, probeTarget string) (Identity, error) {
	ip, err := LocalAddress(probeTarget)
	if err != nil {
		return Identity{}, err
	}
	return NewIdentity(shortName, ip.String()), nil
}
