package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"ScanSentry/internal/engine/protocol"
	"ScanSentry/pkg/pcap"

	"github.com/google/gopacket/layers"
)

// Generates a capture of a host being probed: SYN scans, UDP probes and
// pings from random external sources, mixed with local chatter and
// established TCP traffic that the sensor should not count.
func main() {
	outputFile := flag.String("o", "test.pcap", "Output pcap file path")
	packetCount := flag.Int("c", 1000, "Number of packets to generate")
	target := flag.String("target", "10.0.0.2", "Monitored host address")
	scanners := flag.Int("scanners", 20, "Number of distinct external sources")
	cooked := flag.Bool("sll", false, "Write Linux cooked-capture frames instead of Ethernet")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	sources := make([]string, *scanners)
	for i := range sources {
		sources[i] = fmt.Sprintf("%d.%d.%d.%d", 11+rng.Intn(180), rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
	}
	ports := []uint16{21, 22, 23, 25, 53, 80, 110, 123, 143, 161, 443, 445, 3306, 3389, 5432, 8080}

	log.Printf("Generating %d packets into %s...", *packetCount, *outputFile)

	ts := time.Now().UTC()
	packets := make([]pcap.Packet, 0, *packetCount)
	for i := 0; i < *packetCount; i++ {
		ts = ts.Add(time.Duration(rng.Intn(500)) * time.Millisecond)
		src := sources[rng.Intn(len(sources))]
		sport := uint16(rng.Intn(65535-1024) + 1025)
		dport := ports[rng.Intn(len(ports))]

		var data []byte
		var err error
		switch n := rng.Intn(10); {
		case n < 5:
			data, err = pcap.TCPFrame(src, *target, sport, dport, protocol.FlagSYN)
		case n < 6:
			data, err = pcap.TCPFrame(src, *target, sport, dport, protocol.FlagACK|protocol.FlagPSH)
		case n < 8:
			data, err = pcap.UDPFrame(src, *target, sport, dport, []byte("probe"))
		case n < 9:
			data, err = pcap.ICMPEchoFrame(src, *target, false)
		default:
			data, err = pcap.UDPFrame("10.0.0.77", *target, sport, 53, []byte("query"))
		}
		if err != nil {
			log.Fatalf("Failed to build packet: %v", err)
		}
		if *cooked {
			data = pcap.ToLinuxSLL(data)
		}
		packets = append(packets, pcap.Packet{Timestamp: ts, Data: data})
	}

	linkType := layers.LinkTypeEthernet
	if *cooked {
		linkType = layers.LinkTypeLinuxSLL
	}
	if err := pcap.WriteFile(*outputFile, linkType, packets); err != nil {
		log.Fatalf("Failed to write %s: %v", *outputFile, err)
	}
	log.Printf("Finished generating %d packets.", len(packets))
}
