package aggregator

import (
	"fmt"
	"sort"

	"ScanSentry/internal/engine/localnet"
	"ScanSentry/internal/engine/protocol"
	"ScanSentry/internal/model"

	"github.com/google/gopacket/layers"
)

// Outcome describes what Process did with an observation.
type Outcome int

const (
	// Ignored observations changed nothing (non-SYN TCP, or a packet of an
	// already seen flow that has no recorded contact in either direction).
	Ignored Outcome = iota
	// LocalOrigin observations came from a local network and were not recorded.
	LocalOrigin
	// NewContact observations created a statistics entry.
	NewContact
	// Updated observations folded into an existing statistics entry.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case LocalOrigin:
		return "local_origin"
	case NewContact:
		return "new_contact"
	case Updated:
		return "updated"
	default:
		return "ignored"
	}
}

// Aggregator owns the traffic table, the statistics table and the set of
// already seen non-TCP flows for the current aggregation window.
// It is not safe for concurrent use; the sensor loop is its only caller.
type Aggregator struct {
	locals  localnet.Networks
	traffic map[model.DestinationKey]map[model.Addr]struct{}
	stats   map[model.StatKey]*model.Stat
	flows   map[model.FlowKey]struct{}
}

// New creates an empty aggregator that classifies sources against locals.
func New(locals localnet.Networks) *Aggregator {
	a := &Aggregator{locals: locals}
	a.Reset()
	return a
}

// Reset clears all tables, starting a new aggregation window.
func (a *Aggregator) Reset() {
	a.traffic = make(map[model.DestinationKey]map[model.Addr]struct{})
	a.stats = make(map[model.StatKey]*model.Stat)
	a.flows = make(map[model.FlowKey]struct{})
}

// Process folds one observation into the tables.
func (a *Aggregator) Process(obs *model.Observation) Outcome {
	sec := obs.Timestamp.Unix()

	if obs.ProtoNum == uint8(layers.IPProtocolTCP) {
		// Only connection attempts are of interest.
		if obs.TCPFlags != protocol.FlagSYN {
			return Ignored
		}
		if a.locals.IsLocal(obs.Src) {
			return LocalOrigin
		}
		return a.record(obs, sec)
	}

	flow := model.NewFlowKey(obs.Src, obs.SrcPort, obs.Dst, obs.DstPort)
	if _, seen := a.flows[flow]; !seen {
		// The flow is claimed before the origin check, so a locally started
		// exchange also suppresses a later external packet on the same flow.
		a.flows[flow] = struct{}{}
		if a.locals.IsLocal(obs.Src) {
			return LocalOrigin
		}
		return a.record(obs, sec)
	}

	st, ok := a.stats[obs.StatKey()]
	if !ok {
		// Replies travel the other way; credit them to the contact that opened the flow.
		st, ok = a.stats[replyKey(obs)]
	}
	if ok {
		update(st, sec)
		return Updated
	}
	return Ignored
}

func replyKey(obs *model.Observation) model.StatKey {
	return model.StatKey{
		Dest: model.DestinationKey{Proto: obs.Protocol, Dst: obs.Src, DstPort: obs.SrcPort},
		Src:  obs.Dst,
	}
}

func (a *Aggregator) record(obs *model.Observation, sec int64) Outcome {
	a.addContact(obs.DestinationKey(), obs.Src)

	key := obs.StatKey()
	if st, ok := a.stats[key]; ok {
		update(st, sec)
		return Updated
	}
	a.stats[key] = &model.Stat{FirstSeen: sec, LastSeen: sec, Count: 1}
	return NewContact
}

func (a *Aggregator) addContact(dk model.DestinationKey, src model.Addr) {
	sources, ok := a.traffic[dk]
	if !ok {
		sources = make(map[model.Addr]struct{})
		a.traffic[dk] = sources
	}
	sources[src] = struct{}{}
}

// update keeps FirstSeen <= LastSeen even when frames arrive out of order.
func update(st *model.Stat, sec int64) {
	if sec < st.FirstSeen {
		st.FirstSeen = sec
	}
	if sec > st.LastSeen {
		st.LastSeen = sec
	}
	st.Count++
}

// Seed loads rows read back from a day log into the tables.
func (a *Aggregator) Seed(rows []model.Row) error {
	for _, row := range rows {
		src, err := model.ParseAddr(row.SrcIP)
		if err != nil {
			return fmt.Errorf("failed to seed row: %w", err)
		}
		dst, err := model.ParseAddr(row.DstIP)
		if err != nil {
			return fmt.Errorf("failed to seed row: %w", err)
		}
		if row.Count == 0 || row.FirstSeen > row.LastSeen {
			return fmt.Errorf("failed to seed row: inconsistent statistics %+v", row)
		}

		dk := model.DestinationKey{Proto: row.Proto, Dst: dst, DstPort: row.DstPort}
		a.addContact(dk, src)
		a.stats[model.StatKey{Dest: dk, Src: src}] = &model.Stat{
			FirstSeen: row.FirstSeen,
			LastSeen:  row.LastSeen,
			Count:     row.Count,
		}
	}
	return nil
}

// Rows returns one row per recorded contact in day log order.
// Sources for which exclude returns true are left out.
func (a *Aggregator) Rows(exclude func(model.Addr) bool) []model.Row {
	rows := make([]model.Row, 0, len(a.stats))
	for dk, sources := range a.traffic {
		for src := range sources {
			if exclude != nil && exclude(src) {
				continue
			}
			st, ok := a.stats[model.StatKey{Dest: dk, Src: src}]
			if !ok {
				continue
			}
			rows = append(rows, model.Row{
				Proto:     dk.Proto,
				SrcIP:     src.String(),
				DstIP:     dk.Dst.String(),
				DstPort:   dk.DstPort,
				FirstSeen: st.FirstSeen,
				LastSeen:  st.LastSeen,
				Count:     st.Count,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Less(rows[j]) })
	return rows
}

// Contacts returns the sources recorded for a destination.
func (a *Aggregator) Contacts(dk model.DestinationKey) []model.Addr {
	sources := a.traffic[dk]
	out := make([]model.Addr, 0, len(sources))
	for src := range sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Stat returns a copy of the statistics for a contact relationship.
func (a *Aggregator) Stat(key model.StatKey) (model.Stat, bool) {
	st, ok := a.stats[key]
	if !ok {
		return model.Stat{}, false
	}
	return *st, true
}

// FlowSeen reports whether a non-TCP flow was already claimed in this window.
func (a *Aggregator) FlowSeen(key model.FlowKey) bool {
	_, ok := a.flows[key]
	return ok
}

// Sizes returns the number of destinations, statistics entries and seen flows.
func (a *Aggregator) Sizes() (destinations, stats, flows int) {
	return len(a.traffic), len(a.stats), len(a.flows)
}
