// Package hostinfo discovers the local network table and the host address
// set from interface configuration and the outbound route.
package hostinfo

import (
	"errors"
	"fmt"
	"net"
	"os"

	"ScanSentry/internal/config"
	"ScanSentry/internal/engine/localnet"
	"ScanSentry/internal/model"

	psnet "github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// ErrNotPrivileged is returned by CheckPrivileges for unprivileged users.
var ErrNotPrivileged = errors.New("please run with sudo/Administrator privileges")

// Info is the sensor's view of its own host.
type Info struct {
	Networks localnet.Networks
	Hosts    localnet.HostSet
}

type detector struct {
	interfaces  func() (psnet.InterfaceStatList, error)
	routeSource func(dst net.IP) (net.IP, error)
	logger      *zap.Logger
}

// Option customizes detection.
type Option func(*detector)

// WithInterfaces replaces the interface enumeration.
func WithInterfaces(f func() (psnet.InterfaceStatList, error)) Option {
	return func(d *detector) {
		d.interfaces = f
	}
}

// WithRouteSource replaces the lookup of the source address used to reach dst.
func WithRouteSource(f func(dst net.IP) (net.IP, error)) Option {
	return func(d *detector) {
		d.routeSource = f
	}
}

// WithLogger sets the logger detection problems are reported to.
func WithLogger(logger *zap.Logger) Option {
	return func(d *detector) {
		d.logger = logger
	}
}

// Detect builds the local network table and host address set. Autodetected
// entries come first, followed by the configured ones. Detection failures are
// logged and leave the respective part empty; invalid configuration is an error.
func Detect(cfg config.NetworkConfig, opts ...Option) (*Info, error) {
	d := &detector{
		interfaces:  psnet.Interfaces,
		routeSource: routeSource,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	info := &Info{Hosts: localnet.NewHostSet()}

	if cfg.Autodetect {
		d.addInterfaces(info)
		if cfg.RouteProbeAddr != "" {
			d.addRouteSource(info, cfg.RouteProbeAddr)
		}
	}

	for _, cidr := range cfg.LocalNetworks {
		n, err := localnet.ParseCIDR(cidr)
		if err != nil {
			return nil, err
		}
		info.Networks = info.Networks.Add(n)
	}
	for _, s := range cfg.HostAddresses {
		addr, err := model.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid host address: %w", err)
		}
		info.Hosts.Add(addr)
	}
	return info, nil
}

func (d *detector) addInterfaces(info *Info) {
	ifaces, err := d.interfaces()
	if err != nil {
		d.logger.Warn("Failed to enumerate interfaces", zap.Error(err))
		return
	}
	for _, iface := range ifaces {
		for _, a := range iface.Addrs {
			ip, ipNet, err := net.ParseCIDR(a.Addr)
			if err != nil {
				d.logger.Debug("Skipping interface address", zap.String("interface", iface.Name), zap.String("addr", a.Addr))
				continue
			}
			addr, ok := model.AddrFromIP(ip)
			if !ok || len(ipNet.Mask) != net.IPv4len {
				continue
			}
			mask, _ := model.AddrFromIP(net.IP(ipNet.Mask))
			info.Networks = info.Networks.Add(localnet.NewNetwork(addr, mask))
			info.Hosts.Add(addr)
		}
	}
}

func (d *detector) addRouteSource(info *Info, probe string) {
	dst := net.ParseIP(probe)
	if dst == nil {
		d.logger.Warn("Invalid route probe address", zap.String("addr", probe))
		return
	}
	src, err := d.routeSource(dst)
	if err != nil {
		d.logger.Warn("Failed to determine outbound source address", zap.String("probe", probe), zap.Error(err))
		return
	}
	if addr, ok := model.AddrFromIP(src); ok {
		info.Hosts.Add(addr)
	}
}

// dialSource asks the kernel which local address a UDP socket towards dst
// would use. No packet is sent.
func dialSource(dst net.IP) (net.IP, error) {
	conn, err := net.Dial("udp4", net.JoinHostPort(dst.String(), "53"))
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

// CheckPrivileges fails unless the process runs as root, which live
// capture requires.
func CheckPrivileges() error {
	if os.Geteuid() != 0 {
		return ErrNotPrivileged
	}
	return nil
}
