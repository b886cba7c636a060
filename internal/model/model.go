package model

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket/layers"
)

// ErrCaptureTimeout is returned by packet sources when a read timed out
// without a frame. The sensor loop treats it as "try again".
var ErrCaptureTimeout = errors.New("capture read timeout")

// Addr is an IPv4 address held as a big-endian integer.
type Addr uint32

// AddrFromIP converts a net.IP to an Addr. It reports false for non-IPv4 input.
func AddrFromIP(ip net.IP) (Addr, bool) {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, false
	}
	return Addr(binary.BigEndian.Uint32(ip4)), true
}

// ParseAddr parses a dotted-quad IPv4 address.
func ParseAddr(s string) (Addr, error) {
	addr, ok := AddrFromIP(net.ParseIP(s))
	if !ok {
		return 0, fmt.Errorf("invalid IPv4 address '%s'", s)
	}
	return addr, nil
}

// IP returns the address as a net.IP.
func (a Addr) IP() net.IP {
	ip := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(ip, uint32(a))
	return ip
}

func (a Addr) String() string {
	return a.IP().String()
}

// Port is a transport port, or NoPort for protocols that have none.
type Port int32

// NoPort marks port-less protocols such as ICMP.
const NoPort Port = -1

// ParsePort parses the day log representation of a port ("-" for NoPort).
func ParsePort(s string) (Port, error) {
	if s == "-" {
		return NoPort, nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return NoPort, fmt.Errorf("invalid port '%s': %w", s, err)
	}
	return Port(n), nil
}

func (p Port) String() string {
	if p == NoPort {
		return "-"
	}
	return strconv.Itoa(int(p))
}

// MarshalJSON encodes NoPort as null.
func (p Port) MarshalJSON() ([]byte, error) {
	if p == NoPort {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(int(p))), nil
}

// UnmarshalJSON decodes null as NoPort.
func (p *Port) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = NoPort
		return nil
	}
	n, err := strconv.ParseUint(string(data), 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %s: %w", data, err)
	}
	*p = Port(n)
	return nil
}

// Frame is one captured link-layer unit together with its capture metadata.
type Frame struct {
	Data      []byte
	Timestamp time.Time
	LinkType  layers.LinkType
}

// Observation holds the header fields extracted from a single frame.
type Observation struct {
	Protocol  string
	ProtoNum  uint8
	Src       Addr
	Dst       Addr
	SrcPort   Port
	DstPort   Port
	TCPFlags  uint8
	Timestamp time.Time
}

// DestinationKey identifies one service being contacted.
type DestinationKey struct {
	Proto   string
	Dst     Addr
	DstPort Port
}

// StatKey identifies one observed contact relationship.
type StatKey struct {
	Dest DestinationKey
	Src  Addr
}

// DestinationKey returns the key of the contacted service.
func (o *Observation) DestinationKey() DestinationKey {
	return DestinationKey{Proto: o.Protocol, Dst: o.Dst, DstPort: o.DstPort}
}

// StatKey returns the key of the (service, source) relationship.
func (o *Observation) StatKey() StatKey {
	return StatKey{Dest: o.DestinationKey(), Src: o.Src}
}

// Endpoint is one side of a flow.
type Endpoint struct {
	Addr Addr
	Port Port
}

func (e Endpoint) less(o Endpoint) bool {
	if e.Addr != o.Addr {
		return e.Addr < o.Addr
	}
	return e.Port < o.Port
}

// FlowKey is the direction-independent identity of a pair of endpoints.
// A request and its reply produce the same key.
type FlowKey struct {
	Low  Endpoint
	High Endpoint
}

// NewFlowKey builds the canonical key for the two endpoints.
func NewFlowKey(src Addr, srcPort Port, dst Addr, dstPort Port) FlowKey {
	a := Endpoint{Addr: src, Port: srcPort}
	b := Endpoint{Addr: dst, Port: dstPort}
	if b.less(a) {
		a, b = b, a
	}
	return FlowKey{Low: a, High: b}
}

// Stat holds the running statistics of one StatKey. Times are epoch seconds.
type Stat struct {
	FirstSeen int64
	LastSeen  int64
	Count     uint64
}

// Row is one line of a day log.
type Row struct {
	Proto     string `json:"proto"`
	SrcIP     string `json:"src_ip"`
	DstIP     string `json:"dst_ip"`
	DstPort   Port   `json:"dst_port"`
	FirstSeen int64  `json:"first_seen"`
	LastSeen  int64  `json:"last_seen"`
	Count     uint64 `json:"count"`
}

// Less orders rows by protocol, source, destination and port.
func (r Row) Less(o Row) bool {
	if r.Proto != o.Proto {
		return r.Proto < o.Proto
	}
	if r.SrcIP != o.SrcIP {
		return r.SrcIP < o.SrcIP
	}
	if r.DstIP != o.DstIP {
		return r.DstIP < o.DstIP
	}
	if r.DstPort != o.DstPort {
		return r.DstPort < o.DstPort
	}
	if r.FirstSeen != o.FirstSeen {
		return r.FirstSeen < o.FirstSeen
	}
	if r.LastSeen != o.LastSeen {
		return r.LastSeen < o.LastSeen
	}
	return r.Count < o.Count
}
