package aggregator

import (
	"testing"
	"time"

	"ScanSentry/internal/engine/localnet"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const base = int64(1700000000)

func addr(t *testing.T, s string) model.Addr {
	t.Helper()
	a, err := model.ParseAddr(s)
	require.NoError(t, err)
	return a
}

func locals(t *testing.T) localnet.Networks {
	t.Helper()
	n, err := localnet.ParseCIDR("10.0.0.0/24")
	require.NoError(t, err)
	return localnet.Networks{n}
}

func tcp(t *testing.T, src, dst string, sport, dport model.Port, flags uint8, sec int64) *model.Observation {
	return &model.Observation{
		Protocol:  "tcp",
		ProtoNum:  6,
		Src:       addr(t, src),
		Dst:       addr(t, dst),
		SrcPort:   sport,
		DstPort:   dport,
		TCPFlags:  flags,
		Timestamp: time.Unix(sec, 0),
	}
}

func udp(t *testing.T, src, dst string, sport, dport model.Port, sec int64) *model.Observation {
	return &model.Observation{
		Protocol:  "udp",
		ProtoNum:  17,
		Src:       addr(t, src),
		Dst:       addr(t, dst),
		SrcPort:   sport,
		DstPort:   dport,
		Timestamp: time.Unix(sec, 0),
	}
}

func icmp(t *testing.T, src, dst string, sec int64) *model.Observation {
	return &model.Observation{
		Protocol:  "icmp",
		ProtoNum:  1,
		Src:       addr(t, src),
		Dst:       addr(t, dst),
		SrcPort:   model.NoPort,
		DstPort:   model.NoPort,
		Timestamp: time.Unix(sec, 0),
	}
}

func TestProcess_TCPSynTwice(t *testing.T) {
	a := New(locals(t))

	assert.Equal(t, NewContact, a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 50000, 22, protocol.FlagSYN, base)))
	assert.Equal(t, Updated, a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 50001, 22, protocol.FlagSYN, base+5)))

	rows := a.Rows(nil)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Row{
		Proto:     "tcp",
		SrcIP:     "203.0.113.5",
		DstIP:     "10.0.0.2",
		DstPort:   22,
		FirstSeen: base,
		LastSeen:  base + 5,
		Count:     2,
	}, rows[0])
}

func TestProcess_TCPNonSynIgnored(t *testing.T) {
	a := New(locals(t))

	for _, flags := range []uint8{
		protocol.FlagSYN | protocol.FlagACK,
		protocol.FlagACK,
		protocol.FlagRST,
		protocol.FlagSYN | protocol.FlagECE | protocol.FlagCWR,
	} {
		assert.Equal(t, Ignored, a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 50000, 22, flags, base)))
	}
	dests, stats, flows := a.Sizes()
	assert.Zero(t, dests)
	assert.Zero(t, stats)
	assert.Zero(t, flows)
}

func TestProcess_TCPLocalSynIgnored(t *testing.T) {
	a := New(locals(t))

	assert.Equal(t, LocalOrigin, a.Process(tcp(t, "10.0.0.7", "10.0.0.2", 50000, 22, protocol.FlagSYN, base)))
	assert.Empty(t, a.Rows(nil))
}

func TestProcess_LocalUDPSuppressesReply(t *testing.T) {
	a := New(locals(t))

	// A local query claims the flow; the remote answer on the same flow is not a contact.
	assert.Equal(t, LocalOrigin, a.Process(udp(t, "10.0.0.2", "198.51.100.9", 40000, 53, base)))
	assert.Equal(t, Ignored, a.Process(udp(t, "198.51.100.9", "10.0.0.2", 53, 40000, base+1)))

	assert.Empty(t, a.Rows(nil))
	assert.True(t, a.FlowSeen(model.NewFlowKey(addr(t, "198.51.100.9"), 53, addr(t, "10.0.0.2"), 40000)))
}

func TestProcess_RemoteUDPFlow(t *testing.T) {
	a := New(locals(t))

	assert.Equal(t, NewContact, a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 161, base)))
	assert.Equal(t, Updated, a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 161, base+3)))
	// The local reply belongs to the same flow and is credited to the remote contact.
	assert.Equal(t, Updated, a.Process(udp(t, "10.0.0.2", "198.51.100.9", 161, 40000, base+4)))

	st, ok := a.Stat(model.StatKey{
		Dest: model.DestinationKey{Proto: "udp", Dst: addr(t, "10.0.0.2"), DstPort: 161},
		Src:  addr(t, "198.51.100.9"),
	})
	require.True(t, ok)
	assert.Equal(t, model.Stat{FirstSeen: base, LastSeen: base + 4, Count: 3}, st)
	assert.Len(t, a.Rows(nil), 1)
}

func TestProcess_NewFlowSameContactAccumulates(t *testing.T) {
	a := New(locals(t))

	a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 161, base))
	assert.Equal(t, Updated, a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40001, 161, base+10)))

	rows := a.Rows(nil)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(2), rows[0].Count)
	assert.Equal(t, base, rows[0].FirstSeen)
	assert.Equal(t, base+10, rows[0].LastSeen)
}

func TestProcess_ICMPEchoAndReply(t *testing.T) {
	a := New(locals(t))

	assert.Equal(t, NewContact, a.Process(icmp(t, "198.51.100.9", "10.0.0.2", base)))
	assert.Equal(t, Updated, a.Process(icmp(t, "10.0.0.2", "198.51.100.9", base+1)))

	dk := model.DestinationKey{Proto: "icmp", Dst: addr(t, "10.0.0.2"), DstPort: model.NoPort}
	assert.Equal(t, []model.Addr{addr(t, "198.51.100.9")}, a.Contacts(dk))

	rows := a.Rows(nil)
	require.Len(t, rows, 1)
	assert.Equal(t, "icmp", rows[0].Proto)
	assert.Equal(t, "198.51.100.9", rows[0].SrcIP)
	assert.Equal(t, model.NoPort, rows[0].DstPort)
	assert.Equal(t, uint64(2), rows[0].Count)
	assert.Equal(t, base+1, rows[0].LastSeen)
}

func TestProcess_OutOfOrderTimestamps(t *testing.T) {
	a := New(nil)

	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 1, 22, protocol.FlagSYN, base+10))
	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 2, 22, protocol.FlagSYN, base))

	rows := a.Rows(nil)
	require.Len(t, rows, 1)
	assert.Equal(t, base, rows[0].FirstSeen)
	assert.Equal(t, base+10, rows[0].LastSeen)
}

func TestRows_SortedAndFiltered(t *testing.T) {
	a := New(locals(t))

	a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 53, base))
	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 1, 443, protocol.FlagSYN, base))
	a.Process(tcp(t, "192.0.2.1", "10.0.0.2", 1, 22, protocol.FlagSYN, base))
	a.Process(tcp(t, "192.0.2.1", "10.0.0.2", 1, 21, protocol.FlagSYN, base))

	rows := a.Rows(nil)
	require.Len(t, rows, 4)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i-1].Less(rows[i]))
	}
	assert.Equal(t, model.Port(21), rows[0].DstPort)
	assert.Equal(t, "udp", rows[3].Proto)

	white := addr(t, "192.0.2.1")
	rows = a.Rows(func(src model.Addr) bool { return src == white })
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotEqual(t, "192.0.2.1", r.SrcIP)
	}

	// Filtering only affects the output.
	_, stats, _ := a.Sizes()
	assert.Equal(t, 4, stats)
}

func TestSeed_RoundTrip(t *testing.T) {
	a := New(locals(t))
	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 1, 22, protocol.FlagSYN, base))
	a.Process(icmp(t, "198.51.100.9", "10.0.0.2", base))
	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 2, 22, protocol.FlagSYN, base+5))
	rows := a.Rows(nil)

	restored := New(locals(t))
	require.NoError(t, restored.Seed(rows))
	assert.Equal(t, rows, restored.Rows(nil))

	// Counting resumes from the restored values.
	restored.Process(tcp(t, "203.0.113.5", "10.0.0.2", 3, 22, protocol.FlagSYN, base+9))
	st, ok := restored.Stat(model.StatKey{
		Dest: model.DestinationKey{Proto: "tcp", Dst: addr(t, "10.0.0.2"), DstPort: 22},
		Src:  addr(t, "203.0.113.5"),
	})
	require.True(t, ok)
	assert.Equal(t, model.Stat{FirstSeen: base, LastSeen: base + 9, Count: 3}, st)
}

func TestSeed_RejectsBadRows(t *testing.T) {
	a := New(nil)

	assert.Error(t, a.Seed([]model.Row{{Proto: "tcp", SrcIP: "nope", DstIP: "10.0.0.2", DstPort: 22, Count: 1}}))
	assert.Error(t, a.Seed([]model.Row{{Proto: "tcp", SrcIP: "192.0.2.1", DstIP: "10.0.0.2", DstPort: 22, FirstSeen: 5, LastSeen: 4, Count: 1}}))
	assert.Error(t, a.Seed([]model.Row{{Proto: "tcp", SrcIP: "192.0.2.1", DstIP: "10.0.0.2", DstPort: 22}}))
}

func TestReset(t *testing.T) {
	a := New(locals(t))
	a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 161, base))

	a.Reset()
	dests, stats, flows := a.Sizes()
	assert.Zero(t, dests+stats+flows)

	// A reset window sees the flow as new again.
	assert.Equal(t, NewContact, a.Process(udp(t, "198.51.100.9", "10.0.0.2", 40000, 161, base+1)))
}

func TestContacts(t *testing.T) {
	a := New(nil)
	a.Process(tcp(t, "203.0.113.5", "10.0.0.2", 1, 22, protocol.FlagSYN, base))
	a.Process(tcp(t, "192.0.2.1", "10.0.0.2", 1, 22, protocol.FlagSYN, base))

	dk := model.DestinationKey{Proto: "tcp", Dst: addr(t, "10.0.0.2"), DstPort: 22}
	assert.Equal(t, []model.Addr{addr(t, "192.0.2.1"), addr(t, "203.0.113.5")}, a.Contacts(dk))
	assert.Equal(t, "updated", Updated.String())
}
