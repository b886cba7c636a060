package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"ScanSentry/internal/engine/localnet"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/model"
	"ScanSentry/pkg/pcap"
)

// Prints what the decoder makes of every frame in a capture file, followed
// by a tally of skip reasons.
func main() {
	hosts := flag.String("host", "", "Only accept frames destined to this address")
	limit := flag.Int("n", 0, "Stop after this many frames (0 = all)")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Println("Usage: go run ./scripts/pcapana [-host 10.0.0.2] [-n 100] <path_to_pcap_file>")
		os.Exit(1)
	}

	opts := protocol.Options{}
	if *hosts != "" {
		addr, err := model.ParseAddr(*hosts)
		if err != nil {
			log.Fatal(err)
		}
		opts.Hosts = localnet.NewHostSet(addr)
	}
	decoder := protocol.NewDecoder(opts)

	reader, err := pcap.NewReader(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	defer reader.Close()

	skips := make(map[string]int)
	i := 0
	for *limit == 0 || i < *limit {
		data, ci, err := reader.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		i++

		obs, err := decoder.Decode(model.Frame{Data: data, Timestamp: ci.Timestamp, LinkType: reader.LinkType()})
		if err != nil {
			var skipErr *protocol.SkipError
			reason := "error"
			if errors.As(err, &skipErr) {
				reason = skipErr.Reason.String()
			}
			skips[reason]++
			fmt.Printf("[%s] skipped: %v\n", ci.Timestamp.Format("15:04:05.000"), err)
			continue
		}
		fmt.Printf("[%s] %s %s:%s -> %s:%s flags=%#02x\n",
			obs.Timestamp.Format("15:04:05.000"), obs.Protocol,
			obs.Src, obs.SrcPort, obs.Dst, obs.DstPort, obs.TCPFlags)
	}

	reasons := make([]string, 0, len(skips))
	for r := range skips {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	fmt.Printf("\n%d frames\n", i)
	for _, r := range reasons {
		fmt.Printf("  %-22s %d\n", r, skips[r])
	}
}
