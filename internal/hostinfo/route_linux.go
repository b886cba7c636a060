package hostinfo

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// routeSource returns the preferred source address of the kernel route to dst.
func routeSource(dst net.IP) (net.IP, error) {
	routes, err := netlink.RouteGet(dst)
	if err != nil {
		return dialSource(dst)
	}
	for _, r := range routes {
		if r.Src != nil {
			return r.Src, nil
		}
	}
	src, err := dialSource(dst)
	if err != nil {
		return nil, fmt.Errorf("no route to %s carries a source address: %w", dst, err)
	}
	return src, nil
}
