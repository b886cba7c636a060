// Package capture opens live capture handles through libpcap.
package capture

import (
	"errors"
	"fmt"
	"time"

	"ScanSentry/internal/model"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// Options describes the capture handle to open.
type Options struct {
	Interface   string
	SnapLen     int32
	Promiscuous bool
	ReadTimeout time.Duration
	Filter      string
}

// Live is a packet source backed by a live pcap handle.
type Live struct {
	handle *pcap.Handle
}

// OpenLive opens the interface and installs the capture filter, if any.
func OpenLive(opts Options) (*Live, error) {
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}
	handle, err := pcap.OpenLive(opts.Interface, opts.SnapLen, opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("error opening device %s: %w", opts.Interface, err)
	}
	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("error setting filter '%s': %w", opts.Filter, err)
		}
	}
	return &Live{handle: handle}, nil
}

// ReadPacketData returns the next frame, or model.ErrCaptureTimeout when the
// read timeout expired without one.
func (l *Live) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := l.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, ci, model.ErrCaptureTimeout
	}
	return data, ci, err
}

// LinkType returns the datalink type of the handle.
func (l *Live) LinkType() layers.LinkType {
	return l.handle.LinkType()
}

// Stats returns the received and dropped frame counters kept by libpcap.
func (l *Live) Stats() (*pcap.Stats, error) {
	return l.handle.Stats()
}

func (l *Live) Close() {
	l.handle.Close()
}
