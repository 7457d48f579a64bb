// Package offload translates datapath flows into hardware flow-table
// programs and keeps the bookkeeping that ties them together: port and
// flow registries, tunnel outer-id and hardware table-id pools, and the
// miss contexts that let software recover packet metadata after a
// partial hardware match.
package offload

// Flow table groups. Table 0 is the root group some NICs reserve;
// dispatch by table id skips TableUnknown entries.
const (
	TableUnknown      uint32 = 0
	TableRoot         uint32 = 1
	TableVXLAN        uint32 = 2
	TableConntrack    uint32 = 3
	TableConntrackNAT uint32 = 4

	// MaxTables bounds the per-port default-flow slots.
	MaxTables = 31
)

// Mark space. Flow marks below MinReservedMark identify individual
// flows; marks at or above it are exception marks, one per tunnel
// port, assigned in registration order starting at VXLANExceptionMark.
const (
	MinReservedMark uint32 = 1 << 24

	// VXLANExceptionMark is the first exception mark. A tunnel table's
	// default flow stamps the owning port's mark so software knows the
	// packet needs decapsulation.
	VXLANExceptionMark = MinReservedMark
)

// Id pool bounds. Outer ids name offloaded tunnel headers; hardware
// table ids name dynamically allocated flow-table groups, starting
// above the fixed tables.
const (
	MinOuterID uint32 = 1
	MaxOuterID uint32 = 0xffff

	MinHWTableID uint32 = 64
	MaxHWTableID uint32 = 0xff00
)

// PortKind classifies a registered datapath port.
type PortKind int

const (
	// PortUnknown is a port of a type the offload layer does not manage.
	PortUnknown PortKind = iota
	// PortPhysical is a NIC-backed port, an uplink candidate.
	PortPhysical
	// PortTunnel is a virtual tunnel endpoint (vxlan).
	PortTunnel
)

var portKindNames = map[PortKind]string{
	PortUnknown:  "unknown",
	PortPhysical: "physical",
	PortTunnel:   "tunnel",
}

func (k PortKind) String() string {
	if s, ok := portKindNames[k]; ok {
		return s
	}
	return "invalid"
}
