package pcap

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Packet is a frame together with the time it should carry in a pcap file.
type Packet struct {
	Timestamp time.Time
	Data      []byte
}

// TCPFrame builds an Ethernet/IPv4/TCP frame with the given flag byte.
func TCPFrame(src, dst string, srcPort, dstPort uint16, flags uint8) ([]byte, error) {
	ip, err := ipv4Layer(src, dst, layers.IPProtocolTCP)
	if err != nil {
		return nil, err
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(srcPort),
		DstPort: layers.TCPPort(dstPort),
		Seq:     1000,
		Window:  14600,
		FIN:     flags&0x01 != 0,
		SYN:     flags&0x02 != 0,
		RST:     flags&0x04 != 0,
		PSH:     flags&0x08 != 0,
		ACK:     flags&0x10 != 0,
		URG:     flags&0x20 != 0,
		ECE:     flags&0x40 != 0,
		CWR:     flags&0x80 != 0,
	}
	if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernetLayer(), ip, tcp)
}

// UDPFrame builds an Ethernet/IPv4/UDP frame.
func UDPFrame(src, dst string, srcPort, dstPort uint16, payload []byte) ([]byte, error) {
	ip, err := ipv4Layer(src, dst, layers.IPProtocolUDP)
	if err != nil {
		return nil, err
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(srcPort),
		DstPort: layers.UDPPort(dstPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	return serialize(ethernetLayer(), ip, udp, gopacket.Payload(payload))
}

// ICMPEchoFrame builds an echo request, or an echo reply when reply is set.
func ICMPEchoFrame(src, dst string, reply bool) ([]byte, error) {
	ip, err := ipv4Layer(src, dst, layers.IPProtocolICMPv4)
	if err != nil {
		return nil, err
	}
	typ := uint8(layers.ICMPv4TypeEchoRequest)
	if reply {
		typ = layers.ICMPv4TypeEchoReply
	}
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(typ, 0),
		Id:       1,
		Seq:      1,
	}
	return serialize(ethernetLayer(), ip, icmp, gopacket.Payload([]byte("ping")))
}

// ToLinuxSLL rewrites an Ethernet frame as a Linux cooked-capture frame.
func ToLinuxSLL(ethFrame []byte) []byte {
	if len(ethFrame) < 14 {
		return nil
	}
	header := make([]byte, 16)
	header[3] = 1 // ARPHRD_ETHER
	header[5] = 6
	copy(header[6:12], srcMAC)
	copy(header[14:16], ethFrame[12:14])
	return append(header, ethFrame[14:]...)
}

// WriteFile writes packets to a new pcap file with the given link type.
func WriteFile(path string, linkType layers.LinkType, packets []Packet) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, linkType); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for _, p := range packets {
		ci := gopacket.CaptureInfo{
			Timestamp:     p.Timestamp,
			CaptureLength: len(p.Data),
			Length:        len(p.Data),
		}
		if err := w.WritePacket(ci, p.Data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
	return nil
}

func ethernetLayer() *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
}

func ipv4Layer(src, dst string, proto layers.IPProtocol) (*layers.IPv4, error) {
	srcIP := net.ParseIP(src).To4()
	dstIP := net.ParseIP(dst).To4()
	if srcIP == nil || dstIP == nil {
		return nil, fmt.Errorf("invalid IPv4 pair %s -> %s", src, dst)
	}
	return &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: proto,
		SrcIP:    srcIP,
		DstIP:    dstIP,
	}, nil
}

func serialize(ls ...gopacket.SerializableLayer) ([]byte, error) {
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{
		ComputeChecksums: true,
		FixLengths:       true,
	}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("failed to serialize layers: %w", err)
	}
	return buf.Bytes(), nil
}
