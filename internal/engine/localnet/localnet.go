// Package localnet holds the sensor's view of its own networks: the table of
// local network prefixes and the set of addresses that belong to this host.
package localnet

import (
	"fmt"
	"net"
	"sort"

	"ScanSentry/internal/model"
)

// Network is one (prefix, mask) pair of the local network table.
type Network struct {
	Prefix model.Addr
	Mask   model.Addr
}

// NewNetwork derives the table entry for an interface address and its netmask.
func NewNetwork(addr, mask model.Addr) Network {
	return Network{Prefix: addr & mask, Mask: mask}
}

// ParseCIDR converts "a.b.c.d/n" into a Network.
func ParseCIDR(cidr string) (Network, error) {
	_, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		return Network{}, fmt.Errorf("failed to parse CIDR '%s': %w", cidr, err)
	}
	prefix, ok := model.AddrFromIP(ipNet.IP)
	if !ok || len(ipNet.Mask) != net.IPv4len {
		return Network{}, fmt.Errorf("CIDR '%s' is not IPv4", cidr)
	}
	mask, _ := model.AddrFromIP(net.IP(ipNet.Mask))
	return NewNetwork(prefix, mask), nil
}

// Contains reports whether addr falls inside the network.
func (n Network) Contains(addr model.Addr) bool {
	return addr&n.Mask == n.Prefix
}

func (n Network) String() string {
	ones, _ := net.IPMask(n.Mask.IP()).Size()
	return fmt.Sprintf("%s/%d", n.Prefix, ones)
}

// Networks is the ordered local network table.
type Networks []Network

// IsLocal reports whether addr originates from any local network.
func (ns Networks) IsLocal(addr model.Addr) bool {
	for _, n := range ns {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

// Add appends n unless an identical entry already exists.
func (ns Networks) Add(n Network) Networks {
	for _, existing := range ns {
		if existing == n {
			return ns
		}
	}
	return append(ns, n)
}

// HostSet is the set of addresses considered "this machine".
type HostSet map[model.Addr]struct{}

// NewHostSet builds a set from the given addresses.
func NewHostSet(addrs ...model.Addr) HostSet {
	hs := make(HostSet, len(addrs))
	for _, a := range addrs {
		hs[a] = struct{}{}
	}
	return hs
}

// Add inserts addr into the set.
func (hs HostSet) Add(addr model.Addr) {
	hs[addr] = struct{}{}
}

// Has reports whether addr is a host address.
func (hs HostSet) Has(addr model.Addr) bool {
	_, ok := hs[addr]
	return ok
}

// Strings returns the addresses in sorted order, for logging.
func (hs HostSet) Strings() []string {
	addrs := make([]model.Addr, 0, len(hs))
	for a := range hs {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
