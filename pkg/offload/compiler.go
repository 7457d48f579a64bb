package offload

import (
	"fmt"

	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// patternSpecs owns the spec/mask storage behind one built pattern. The
// builder's items point into it, so it must outlive the driver call; the
// translation paths keep one on the stack for the duration.
type patternSpecs struct {
	eth      rteflow.EthSpec
	ethMask  rteflow.EthSpec
	vlan     rteflow.VLANSpec
	vlanMask rteflow.VLANSpec
	ipv4     rteflow.IPv4Spec
	ipv4Mask rteflow.IPv4Spec
	tcp      rteflow.TCPSpec
	tcpMask  rteflow.TCPSpec
	udp      rteflow.UDPSpec
	udpMask  rteflow.UDPSpec
	sctp     rteflow.SCTPSpec
	sctpMask rteflow.SCTPSpec
	icmp     rteflow.ICMPSpec
	icmpMask rteflow.ICMPSpec

	outerIPv4     rteflow.IPv4Spec
	outerIPv4Mask rteflow.IPv4Spec
	outerUDP      rteflow.UDPSpec
	outerUDPMask  rteflow.UDPSpec
	vxlan         rteflow.VXLANSpec
	vxlanMask     rteflow.VXLANSpec
}

// validateMatch rejects matches this layer cannot express in hardware.
// tunnel selects whether an outer tunnel header is expected; on plain
// flows any tunnel constraint fails.
func validateMatch(m *flow.Match, tunnel bool) error {
	deny := func(field string) error {
		return fmt.Errorf("match on %s: %w", field, ErrUnsupportedMatch)
	}

	if !tunnel && m.TunnelMasked() {
		return deny("tunnel header")
	}
	if m.Mask.Metadata != 0 {
		return deny("metadata")
	}
	if m.Mask.SkbPriority != 0 {
		return deny("skb priority")
	}
	if m.Mask.PktMark != 0 {
		return deny("packet mark")
	}
	if m.Mask.DpHash != 0 {
		return deny("datapath hash")
	}

	// Only the established bit of the connection state is realizable.
	if m.Mask.CTState != 0 && m.Mask.CTState&flow.CTStateEstablished == 0 {
		return deny("ct state")
	}
	if m.Mask.CTNwProto != 0 {
		return deny("ct protocol")
	}
	if m.Mask.CTZone != 0 {
		return deny("ct zone")
	}
	if m.Mask.CTMark != 0 {
		return deny("ct mark")
	}
	if m.Mask.CTLabel != [16]byte{} {
		return deny("ct label")
	}
	if m.Mask.CTNwSrc != 0 || m.Mask.CTNwDst != 0 {
		return deny("ct address")
	}
	if m.Mask.CTIPv6Src != [16]byte{} || m.Mask.CTIPv6Dst != [16]byte{} {
		return deny("ct ipv6 address")
	}
	if m.Mask.CTTpSrc != 0 || m.Mask.CTTpDst != 0 {
		return deny("ct port")
	}

	if m.Mask.ConjID != 0 {
		return deny("conjunction id")
	}
	if m.Mask.ActsetOutput != 0 {
		return deny("action-set output")
	}
	for _, lse := range m.Mask.MPLSLse {
		if lse != 0 {
			return deny("mpls")
		}
	}
	if m.Mask.IPv6Label != 0 {
		return deny("ipv6 label")
	}
	if m.Mask.IPv6Src != [16]byte{} || m.Mask.IPv6Dst != [16]byte{} {
		return deny("ipv6 address")
	}
	if m.Mask.NDTarget != [16]byte{} {
		return deny("nd target")
	}
	if m.Mask.NSH != [16]byte{} {
		return deny("nsh")
	}
	if m.Mask.ARPSha != [6]byte{} || m.Mask.ARPTha != [6]byte{} {
		return deny("arp hardware address")
	}
	if m.Flow.NwFrag&m.Mask.NwFrag != 0 {
		return deny("ip fragment")
	}
	if m.Mask.IGMPGroupIP4 != 0 {
		return deny("igmp group")
	}
	return nil
}

// buildPatterns translates the (inner) packet-header half of a match
// into hardware match items. Assumes validateMatch already passed.
func buildPatterns(b *rteflow.PatternBuilder, s *patternSpecs, m *flow.Match) error {
	// Some NICs refuse flows without an L2 item, so one is always
	// emitted; with nothing to match it goes in as match-any.
	if m.EthMasked() {
		s.eth = rteflow.EthSpec{
			Dst:  m.Flow.EthDst,
			Src:  m.Flow.EthSrc,
			Type: m.Flow.EthType,
		}
		s.ethMask = rteflow.EthSpec{
			Dst:  m.Mask.EthDst,
			Src:  m.Mask.EthSrc,
			Type: m.Mask.EthType,
		}
		b.Add(rteflow.ItemEth, &s.eth, &s.ethMask)
	} else {
		b.Add(rteflow.ItemEth, nil, nil)
	}

	if m.Mask.VLANTCI != 0 && m.Flow.VLANTCI != 0 {
		// The CFI bit has no hardware meaning; the inner ethertype is
		// already pinned by the L3 item.
		s.vlan = rteflow.VLANSpec{TCI: m.Flow.VLANTCI &^ flow.VLANCFI}
		s.vlanMask = rteflow.VLANSpec{TCI: m.Mask.VLANTCI &^ flow.VLANCFI}
		b.Add(rteflow.ItemVLAN, &s.vlan, &s.vlanMask)
	}

	var proto uint8
	if m.Flow.EthType == flow.EthTypeIPv4 {
		s.ipv4 = rteflow.IPv4Spec{
			TOS:   m.Flow.NwTOS,
			TTL:   m.Flow.NwTTL,
			Proto: m.Flow.NwProto,
			Src:   m.Flow.IPSrc,
			Dst:   m.Flow.IPDst,
		}
		s.ipv4Mask = rteflow.IPv4Spec{
			TOS:   m.Mask.NwTOS,
			TTL:   m.Mask.NwTTL,
			Proto: m.Mask.NwProto,
			Src:   m.Mask.IPSrc,
			Dst:   m.Mask.IPDst,
		}
		b.Add(rteflow.ItemIPv4, &s.ipv4, &s.ipv4Mask)
		proto = s.ipv4.Proto & s.ipv4Mask.Proto
	}

	switch proto {
	case flow.ProtoICMP, flow.ProtoUDP, flow.ProtoSCTP, flow.ProtoTCP:
	default:
		if m.Mask.TpSrc != 0 || m.Mask.TpDst != 0 || m.Mask.TCPFlags != 0 {
			return fmt.Errorf("l4 match on protocol %d: %w", proto, ErrUnsupportedMatch)
		}
		return nil
	}

	// Partial port masks are not realizable.
	if (m.Mask.TpSrc != 0 && m.Mask.TpSrc != 0xffff) ||
		(m.Mask.TpDst != 0 && m.Mask.TpDst != 0xffff) {
		return fmt.Errorf("partial l4 port mask: %w", ErrUnsupportedMatch)
	}

	switch proto {
	case flow.ProtoICMP:
		s.icmp = rteflow.ICMPSpec{
			TypeVal: uint8(m.Flow.TpSrc),
			Code:    uint8(m.Flow.TpDst),
		}
		s.icmpMask = rteflow.ICMPSpec{
			TypeVal: uint8(m.Mask.TpSrc),
			Code:    uint8(m.Mask.TpDst),
		}
		b.Add(rteflow.ItemICMP, &s.icmp, &s.icmpMask)
	case flow.ProtoUDP:
		s.udp = rteflow.UDPSpec{SrcPort: m.Flow.TpSrc, DstPort: m.Flow.TpDst}
		s.udpMask = rteflow.UDPSpec{SrcPort: m.Mask.TpSrc, DstPort: m.Mask.TpDst}
		b.Add(rteflow.ItemUDP, &s.udp, &s.udpMask)
	case flow.ProtoSCTP:
		s.sctp = rteflow.SCTPSpec{SrcPort: m.Flow.TpSrc, DstPort: m.Flow.TpDst}
		s.sctpMask = rteflow.SCTPSpec{SrcPort: m.Mask.TpSrc, DstPort: m.Mask.TpDst}
		b.Add(rteflow.ItemSCTP, &s.sctp, &s.sctpMask)
	case flow.ProtoTCP:
		s.tcp = rteflow.TCPSpec{
			SrcPort: m.Flow.TpSrc,
			DstPort: m.Flow.TpDst,
			DataOff: uint8(m.Flow.TCPFlags >> 8),
			Flags:   uint8(m.Flow.TCPFlags),
		}
		s.tcpMask = rteflow.TCPSpec{
			SrcPort: m.Mask.TpSrc,
			DstPort: m.Mask.TpDst,
			DataOff: uint8(m.Mask.TCPFlags >> 8),
			Flags:   uint8(m.Mask.TCPFlags),
		}
		b.Add(rteflow.ItemTCP, &s.tcp, &s.tcpMask)
	}

	// The L4 item pins the protocol, so the redundant IPv4 proto match
	// is dropped. The builder item aliases s.ipv4Mask, clearing here is
	// enough.
	s.ipv4Mask.Proto = 0
	return nil
}

// buildTunnelPatterns emits the outer-header items of a tunnel flow:
// outer IPv4, outer UDP, and the VXLAN header. The inner headers follow
// via buildPatterns on the same builder.
func buildTunnelPatterns(b *rteflow.PatternBuilder, s *patternSpecs, m *flow.Match) error {
	if m.Flow.EthType != flow.EthTypeIPv4 {
		return fmt.Errorf("tunnel over non-ipv4 outer header: %w", ErrUnsupportedMatch)
	}

	s.outerIPv4 = rteflow.IPv4Spec{
		TOS:   m.Flow.Tunnel.TOS,
		TTL:   m.Flow.Tunnel.TTL,
		Proto: flow.ProtoUDP,
		Src:   m.Flow.Tunnel.Src,
		Dst:   m.Flow.Tunnel.Dst,
	}
	s.outerIPv4Mask = rteflow.IPv4Spec{
		TOS:   m.Mask.Tunnel.TOS,
		TTL:   m.Mask.Tunnel.TTL,
		Proto: 0xff,
		Src:   m.Mask.Tunnel.Src,
		Dst:   m.Mask.Tunnel.Dst,
	}
	b.Add(rteflow.ItemIPv4, &s.outerIPv4, &s.outerIPv4Mask)

	if s.outerIPv4.Proto&s.outerIPv4Mask.Proto != flow.ProtoUDP {
		return fmt.Errorf("tunnel outer protocol is not udp: %w", ErrUnsupportedMatch)
	}
	s.outerUDP = rteflow.UDPSpec{
		SrcPort: m.Flow.Tunnel.TpSrc,
		DstPort: m.Flow.Tunnel.TpDst,
	}
	s.outerUDPMask = rteflow.UDPSpec{
		SrcPort: m.Mask.Tunnel.TpSrc,
		DstPort: m.Mask.Tunnel.TpDst,
	}
	b.Add(rteflow.ItemUDP, &s.outerUDP, &s.outerUDPMask)

	s.vxlan = rteflow.VXLANSpec{
		Flags: m.Flow.Tunnel.Flags,
		VNI:   vniBytes(m.Flow.Tunnel.ID),
	}
	s.vxlanMask = rteflow.VXLANSpec{
		Flags: m.Mask.Tunnel.Flags,
		VNI:   vniBytes(m.Mask.Tunnel.ID),
	}
	b.Add(rteflow.ItemVXLAN, &s.vxlan, &s.vxlanMask)
	return nil
}

// vniBytes packs the low 24 bits of a tunnel key into wire order.
func vniBytes(id uint64) [3]byte {
	return [3]byte{byte(id >> 16), byte(id >> 8), byte(id)}
}
