//go:build !linux

package hostinfo

import "net"

func routeSource(dst net.IP) (net.IP, error) {
	return dialSource(dst)
}
