// Package rteflow defines the hardware flow-table vocabulary spoken by
// offload drivers: match items, actions, flow attributes, and the Driver
// interface a NIC backend implements.
package rteflow

// ItemType identifies a match item in a flow pattern.
type ItemType int

const (
	ItemEnd ItemType = iota
	ItemEth
	ItemVLAN
	ItemIPv4
	ItemUDP
	ItemTCP
	ItemSCTP
	ItemICMP
	ItemVXLAN
)

var itemNames = map[ItemType]string{
	ItemEnd:   "end",
	ItemEth:   "eth",
	ItemVLAN:  "vlan",
	ItemIPv4:  "ipv4",
	ItemUDP:   "udp",
	ItemTCP:   "tcp",
	ItemSCTP:  "sctp",
	ItemICMP:  "icmp",
	ItemVXLAN: "vxlan",
}

func (t ItemType) String() string {
	if s, ok := itemNames[t]; ok {
		return s
	}
	return "unknown"
}

// Item is one entry of a flow pattern. Spec carries the values to match,
// Mask selects the bits of Spec that are significant. Both are nil for a
// match-any item. Spec and Mask point at the *Spec structs below and must
// share the same concrete type.
type Item struct {
	Type ItemType
	Spec any
	Mask any
}

// EthSpec matches the Ethernet header.
type EthSpec struct {
	Dst  [6]byte
	Src  [6]byte
	Type uint16
}

// VLANSpec matches the 802.1Q tag.
type VLANSpec struct {
	TCI       uint16
	InnerType uint16
}

// IPv4Spec matches the IPv4 header.
type IPv4Spec struct {
	TOS   uint8
	TTL   uint8
	Proto uint8
	Src   uint32
	Dst   uint32
}

// UDPSpec matches UDP ports.
type UDPSpec struct {
	SrcPort uint16
	DstPort uint16
}

// TCPSpec matches TCP ports and flags.
type TCPSpec struct {
	SrcPort uint16
	DstPort uint16
	DataOff uint8
	Flags   uint8
}

// SCTPSpec matches SCTP ports.
type SCTPSpec struct {
	SrcPort uint16
	DstPort uint16
}

// ICMPSpec matches the ICMP type/code pair.
type ICMPSpec struct {
	TypeVal uint8
	Code    uint8
}

// VXLANSpec matches the VXLAN header. VNI holds the 24-bit network
// identifier in wire order.
type VXLANSpec struct {
	Flags uint8
	VNI   [3]byte
}

// ActionType identifies an action in a flow program.
type ActionType int

const (
	ActionEnd ActionType = iota
	ActionMark
	ActionCount
	ActionPortID
	ActionJump
	ActionRSS
	ActionRawEncap
	ActionVXLANDecap
)

var actionNames = map[ActionType]string{
	ActionEnd:        "end",
	ActionMark:       "mark",
	ActionCount:      "count",
	ActionPortID:     "port-id",
	ActionJump:       "jump",
	ActionRSS:        "rss",
	ActionRawEncap:   "raw-encap",
	ActionVXLANDecap: "vxlan-decap",
}

func (t ActionType) String() string {
	if s, ok := actionNames[t]; ok {
		return s
	}
	return "unknown"
}

// Action is one entry of a flow action list. Conf points at the matching
// *Conf struct below, or is nil for actions without configuration.
type Action struct {
	Type ActionType
	Conf any
}

// MarkConf stamps a 32-bit mark into packet metadata for miss recovery.
type MarkConf struct {
	ID uint32
}

// PortIDConf redirects matching packets to a hardware port.
type PortIDConf struct {
	ID       uint16
	Original bool
}

// JumpConf continues matching in another flow table group.
type JumpConf struct {
	Group uint32
}

// RSSConf spreads matching packets across receive queues.
type RSSConf struct {
	Queues []uint16
}

// RawEncapConf prepends raw header bytes to matching packets. Data is
// owned by the caller of the driver and must stay valid for the lifetime
// of the flow.
type RawEncapConf struct {
	Data []byte
}

// Attr carries per-flow attributes: the target table group, priority
// within it, and direction/transfer flags.
type Attr struct {
	Group    uint32
	Priority uint32
	Ingress  bool
	Egress   bool
	Transfer bool
}
