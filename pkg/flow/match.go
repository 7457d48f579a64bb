package flow

// Ethertype and IP protocol numbers used by the offload translator.
const (
	EthTypeIPv4 = 0x0800

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
	ProtoSCTP = 132
)

// VLANCFI is the canonical-format bit inside the TCI field; it is never
// matched in hardware.
const VLANCFI = 0x1000

// Connection tracking state bits.
const (
	CTStateNew         = 1 << 0
	CTStateEstablished = 1 << 1
	CTStateRelated     = 1 << 2
	CTStateReply       = 1 << 3
	CTStateInvalid     = 1 << 4
	CTStateTracked     = 1 << 5
)

// TunnelInfo describes the outer tunnel header of a flow or packet.
// IP addresses are IPv4 in network byte order packed into a uint32; ID
// carries the tunnel key (VXLAN: the 24-bit VNI in the low bits).
type TunnelInfo struct {
	Src   uint32
	Dst   uint32
	ID    uint64
	TOS   uint8
	TTL   uint8
	Flags uint8
	TpSrc uint16
	TpDst uint16
}

// IsZero reports whether no tunnel field is set.
func (t TunnelInfo) IsZero() bool {
	return t == TunnelInfo{}
}

// Key is the set of packet header fields and metadata a flow can match
// on. The same struct doubles as the wildcard mask: a zero field in the
// mask means "don't care". Only the subset this layer can offload is
// broken out into typed fields; everything on the validation deny-list
// is carried too so that an attempt to match it is detected, not lost.
type Key struct {
	InPort   uint32
	RecircID uint32

	// L2
	EthSrc  [6]byte
	EthDst  [6]byte
	EthType uint16
	VLANTCI uint16

	// IPv4
	IPSrc   uint32
	IPDst   uint32
	NwTOS   uint8
	NwTTL   uint8
	NwProto uint8
	NwFrag  uint8

	// L4
	TpSrc    uint16
	TpDst    uint16
	TCPFlags uint16

	// Outer tunnel header
	Tunnel TunnelInfo

	// Fields the offload layer never supports; a non-zero mask on any of
	// them fails validation.
	Metadata     uint64
	SkbPriority  uint32
	PktMark      uint32
	DpHash       uint32
	ConjID       uint32
	ActsetOutput uint32

	CTState   uint32
	CTZone    uint16
	CTMark    uint32
	CTLabel   [16]byte
	CTNwProto uint8
	CTNwSrc   uint32
	CTNwDst   uint32
	CTIPv6Src [16]byte
	CTIPv6Dst [16]byte
	CTTpSrc   uint16
	CTTpDst   uint16

	MPLSLse [3]uint32

	IPv6Src   [16]byte
	IPv6Dst   [16]byte
	IPv6Label uint32
	NDTarget  [16]byte
	NSH       [16]byte
	ARPSha    [6]byte
	ARPTha    [6]byte

	IGMPGroupIP4 uint32
}

// Match pairs the flow key with its wildcard mask.
type Match struct {
	Flow Key
	Mask Key
}

// EthMasked reports whether any L2 address bit is significant.
func (m *Match) EthMasked() bool {
	return m.Mask.EthSrc != [6]byte{} || m.Mask.EthDst != [6]byte{}
}

// TunnelMasked reports whether the match constrains any outer tunnel
// field (mask applied).
func (m *Match) TunnelMasked() bool {
	f, w := m.Flow.Tunnel, m.Mask.Tunnel
	masked := TunnelInfo{
		Src:   f.Src & w.Src,
		Dst:   f.Dst & w.Dst,
		ID:    f.ID & w.ID,
		TOS:   f.TOS & w.TOS,
		TTL:   f.TTL & w.TTL,
		Flags: f.Flags & w.Flags,
		TpSrc: f.TpSrc & w.TpSrc,
		TpDst: f.TpDst & w.TpDst,
	}
	return !masked.IsZero()
}
