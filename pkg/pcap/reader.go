package pcap

import (
	"fmt"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Reader reads packets from a pcap file.
type Reader struct {
	file   *os.File
	reader *pcapgo.Reader
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: file, reader: reader}, nil
}

// ReadPacketData returns the next frame. It returns io.EOF at the end of the file.
func (r *Reader) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	return r.reader.ReadPacketData()
}

// LinkType returns the link type recorded in the file header.
func (r *Reader) LinkType() layers.LinkType {
	return r.reader.LinkType()
}

// Close closes the underlying file.
func (r *Reader) Close() {
	r.file.Close()
}

// FirstTimestamp returns the capture time of the first packet in a file.
func FirstTimestamp(filePath string) (time.Time, error) {
	r, err := NewReader(filePath)
	if err != nil {
		return time.Time{}, err
	}
	defer r.Close()

	_, ci, err := r.ReadPacketData()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read first packet: %w", err)
	}
	return ci.Timestamp, nil
}
