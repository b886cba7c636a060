package protocol

// names maps IANA protocol numbers to the names written in day logs.
// Frames carrying any other protocol are skipped.
var names = map[uint8]string{
	0:   "hopopt",
	1:   "icmp",
	2:   "igmp",
	4:   "ipip",
	6:   "tcp",
	8:   "egp",
	12:  "pup",
	17:  "udp",
	22:  "idp",
	29:  "tp",
	41:  "ipv6",
	46:  "rsvp",
	47:  "gre",
	50:  "esp",
	51:  "ah",
	58:  "icmpv6",
	89:  "ospf",
	103: "pim",
	112: "vrrp",
	132: "sctp",
	255: "raw",
}

// Name returns the protocol name for an IANA protocol number.
func Name(num uint8) (string, bool) {
	name, ok := names[num]
	return name, ok
}
