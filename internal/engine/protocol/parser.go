package protocol

import (
	"encoding/binary"
	"fmt"

	"ScanSentry/internal/engine/localnet"
	"ScanSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// SkipReason says why a frame produced no observation.
// It implements error so callers can match it with errors.Is.
type SkipReason int

const (
	ReasonUnsupportedLink SkipReason = iota + 1
	ReasonNotIPv4
	ReasonMalformed
	ReasonUnknownProtocol
	ReasonIgnoredAddress
	ReasonNotHostDestination
	ReasonIgnoredPort
	ReasonReflection
)

var reasonNames = map[SkipReason]string{
	ReasonUnsupportedLink:    "unsupported_link",
	ReasonNotIPv4:            "not_ipv4",
	ReasonMalformed:          "malformed",
	ReasonUnknownProtocol:    "unknown_protocol",
	ReasonIgnoredAddress:     "ignored_address",
	ReasonNotHostDestination: "not_host_destination",
	ReasonIgnoredPort:        "ignored_port",
	ReasonReflection:         "reflection",
}

func (r SkipReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

func (r SkipReason) Error() string {
	return "frame skipped: " + r.String()
}

// SkipError is returned by Decode for every frame that is not of interest.
type SkipError struct {
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason.Error(), e.Err)
	}
	return e.Reason.Error()
}

// Is matches the skip reason.
func (e *SkipError) Is(target error) bool {
	r, ok := target.(SkipReason)
	return ok && r == e.Reason
}

func (e *SkipError) Unwrap() error {
	return e.Err
}

func skip(reason SkipReason, err error) *SkipError {
	return &SkipError{Reason: reason, Err: err}
}

// TCP flag bits as they appear in byte 13 of the TCP header.
const (
	FlagFIN uint8 = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// tcpPrefixLen covers the ports, sequence and acknowledgement numbers, the
// data offset byte and the flag byte.
const tcpPrefixLen = 14

// Options configures a Decoder.
type Options struct {
	IgnoreAddresses []model.Addr
	IgnorePorts     []model.Port
	Hosts           localnet.HostSet
}

// Decoder turns captured frames into observations.
type Decoder struct {
	ignoreAddrs map[model.Addr]struct{}
	ignorePorts map[model.Port]struct{}
	hosts       localnet.HostSet
}

// NewDecoder creates a decoder with the given ignore lists and host addresses.
func NewDecoder(opts Options) *Decoder {
	d := &Decoder{
		ignoreAddrs: make(map[model.Addr]struct{}, len(opts.IgnoreAddresses)),
		ignorePorts: make(map[model.Port]struct{}, len(opts.IgnorePorts)),
		hosts:       opts.Hosts,
	}
	for _, a := range opts.IgnoreAddresses {
		d.ignoreAddrs[a] = struct{}{}
	}
	for _, p := range opts.IgnorePorts {
		d.ignorePorts[p] = struct{}{}
	}
	return d
}

// Decode parses the link, IPv4 and transport headers of a frame.
// Every frame that yields no observation returns a *SkipError.
func (d *Decoder) Decode(frame model.Frame) (obs *model.Observation, err error) {
	defer func() {
		if r := recover(); r != nil {
			obs, err = nil, skip(ReasonMalformed, fmt.Errorf("panic while decoding: %v", r))
		}
	}()

	ethType, payload, err := linkPayload(frame)
	if err != nil {
		return nil, err
	}
	if ethType != layers.EthernetTypeIPv4 {
		return nil, skip(ReasonNotIPv4, nil)
	}

	// DecodeFromBytes truncates the payload to the IPv4 total length.
	var ip layers.IPv4
	if err := ip.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
		return nil, skip(ReasonMalformed, err)
	}

	protoNum := uint8(ip.Protocol)
	name, ok := Name(protoNum)
	if !ok {
		return nil, skip(ReasonUnknownProtocol, fmt.Errorf("protocol number %d", protoNum))
	}

	src, _ := model.AddrFromIP(ip.SrcIP)
	dst, _ := model.AddrFromIP(ip.DstIP)
	if d.ignoredAddr(src) || d.ignoredAddr(dst) {
		return nil, skip(ReasonIgnoredAddress, nil)
	}
	if len(d.hosts) > 0 && !d.hosts.Has(dst) {
		return nil, skip(ReasonNotHostDestination, nil)
	}

	obs = &model.Observation{
		Protocol:  name,
		ProtoNum:  protoNum,
		Src:       src,
		Dst:       dst,
		SrcPort:   model.NoPort,
		DstPort:   model.NoPort,
		Timestamp: frame.Timestamp,
	}

	switch ip.Protocol {
	case layers.IPProtocolTCP:
		// Ports and the flag byte sit in the first 14 bytes. The data offset and
		// options are not checked, so crafted probes are still counted.
		if len(ip.Payload) < tcpPrefixLen {
			return nil, skip(ReasonMalformed, fmt.Errorf("tcp header too short (%d bytes)", len(ip.Payload)))
		}
		obs.SrcPort = model.Port(binary.BigEndian.Uint16(ip.Payload[0:2]))
		obs.DstPort = model.Port(binary.BigEndian.Uint16(ip.Payload[2:4]))
		obs.TCPFlags = ip.Payload[13]
	case layers.IPProtocolUDP:
		// Only the port pair is needed, so a snap-truncated UDP header is enough.
		if len(ip.Payload) < 4 {
			return nil, skip(ReasonMalformed, fmt.Errorf("udp header too short (%d bytes)", len(ip.Payload)))
		}
		obs.SrcPort = model.Port(binary.BigEndian.Uint16(ip.Payload[0:2]))
		obs.DstPort = model.Port(binary.BigEndian.Uint16(ip.Payload[2:4]))
		// A well-known source answering an ephemeral port on this host is most
		// likely a reflected response to a spoofed request.
		if obs.SrcPort < 1024 && obs.DstPort > 1024 && d.hosts.Has(dst) {
			return nil, skip(ReasonReflection, nil)
		}
	}

	if d.ignoredPort(obs.SrcPort) || d.ignoredPort(obs.DstPort) {
		return nil, skip(ReasonIgnoredPort, nil)
	}
	return obs, nil
}

func linkPayload(frame model.Frame) (layers.EthernetType, []byte, error) {
	switch frame.LinkType {
	case layers.LinkTypeEthernet:
		var eth layers.Ethernet
		if err := eth.DecodeFromBytes(frame.Data, gopacket.NilDecodeFeedback); err != nil {
			return 0, nil, skip(ReasonMalformed, err)
		}
		return eth.EthernetType, eth.Payload, nil
	case layers.LinkTypeLinuxSLL:
		var sll layers.LinuxSLL
		if err := sll.DecodeFromBytes(frame.Data, gopacket.NilDecodeFeedback); err != nil {
			return 0, nil, skip(ReasonMalformed, err)
		}
		return sll.EthernetType, sll.Payload, nil
	default:
		return 0, nil, skip(ReasonUnsupportedLink, fmt.Errorf("link type %s", frame.LinkType))
	}
}

// SupportedLinkType reports whether frames of the given link type can be decoded.
func SupportedLinkType(lt layers.LinkType) bool {
	return lt == layers.LinkTypeEthernet || lt == layers.LinkTypeLinuxSLL
}

func (d *Decoder) ignoredAddr(a model.Addr) bool {
	_, ok := d.ignoreAddrs[a]
	return ok
}

func (d *Decoder) ignoredPort(p model.Port) bool {
	if p == model.NoPort {
		return false
	}
	_, ok := d.ignorePorts[p]
	return ok
}
