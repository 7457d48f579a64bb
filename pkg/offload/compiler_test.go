package offload

import (
	"errors"
	"testing"

	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

func udpMatch() *flow.Match {
	m := &flow.Match{}
	m.Flow.EthType = flow.EthTypeIPv4
	m.Mask.EthType = 0xffff
	m.Flow.NwProto = flow.ProtoUDP
	m.Mask.NwProto = 0xff
	m.Flow.TpDst = 4789
	m.Mask.TpDst = 0xffff
	return m
}

func TestValidateMatchDenyList(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*flow.Match)
	}{
		{"metadata", func(m *flow.Match) { m.Mask.Metadata = 1 }},
		{"skb priority", func(m *flow.Match) { m.Mask.SkbPriority = 1 }},
		{"packet mark", func(m *flow.Match) { m.Mask.PktMark = 1 }},
		{"dp hash", func(m *flow.Match) { m.Mask.DpHash = 1 }},
		{"ct state beyond established", func(m *flow.Match) { m.Mask.CTState = flow.CTStateNew }},
		{"ct protocol", func(m *flow.Match) { m.Mask.CTNwProto = 6 }},
		{"ct zone", func(m *flow.Match) { m.Mask.CTZone = 1 }},
		{"ct mark", func(m *flow.Match) { m.Mask.CTMark = 1 }},
		{"ct label", func(m *flow.Match) { m.Mask.CTLabel[15] = 1 }},
		{"ct address", func(m *flow.Match) { m.Mask.CTNwSrc = 1 }},
		{"ct port", func(m *flow.Match) { m.Mask.CTTpDst = 1 }},
		{"conjunction", func(m *flow.Match) { m.Mask.ConjID = 1 }},
		{"action-set output", func(m *flow.Match) { m.Mask.ActsetOutput = 1 }},
		{"mpls", func(m *flow.Match) { m.Mask.MPLSLse[0] = 1 }},
		{"ipv6 address", func(m *flow.Match) { m.Mask.IPv6Src[0] = 1 }},
		{"ipv6 label", func(m *flow.Match) { m.Mask.IPv6Label = 1 }},
		{"nd target", func(m *flow.Match) { m.Mask.NDTarget[0] = 1 }},
		{"nsh", func(m *flow.Match) { m.Mask.NSH[0] = 1 }},
		{"arp sha", func(m *flow.Match) { m.Mask.ARPSha[0] = 1 }},
		{"ip fragment", func(m *flow.Match) {
			m.Flow.NwFrag = 1
			m.Mask.NwFrag = 1
		}},
		{"igmp group", func(m *flow.Match) { m.Mask.IGMPGroupIP4 = 1 }},
		{"tunnel on plain flow", func(m *flow.Match) {
			m.Flow.Tunnel.Dst = 0x0a000001
			m.Mask.Tunnel.Dst = 0xffffffff
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := udpMatch()
			tc.mutate(m)
			if err := validateMatch(m, false); !errors.Is(err, ErrUnsupportedMatch) {
				t.Errorf("validateMatch() = %v, want ErrUnsupportedMatch", err)
			}
		})
	}
}

func TestValidateMatchAccepts(t *testing.T) {
	m := udpMatch()
	m.Mask.CTState = flow.CTStateEstablished
	if err := validateMatch(m, false); err != nil {
		t.Errorf("validateMatch() = %v, want nil", err)
	}
}

func TestBuildPatternsUDP(t *testing.T) {
	m := udpMatch()
	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildPatterns(&b, &s, m); err != nil {
		t.Fatalf("buildPatterns() = %v", err)
	}
	b.End()

	items := b.Items()
	want := []rteflow.ItemType{rteflow.ItemEth, rteflow.ItemIPv4, rteflow.ItemUDP, rteflow.ItemEnd}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].Type != w {
			t.Errorf("item %d = %s, want %s", i, items[i].Type, w)
		}
	}

	// No L2 constraint: the eth item goes in as match-any.
	if items[0].Spec != nil || items[0].Mask != nil {
		t.Error("eth item should be match-any")
	}
	// The udp item pins the protocol, so the ipv4 proto mask is dropped.
	if s.ipv4Mask.Proto != 0 {
		t.Errorf("ipv4 proto mask = %#x, want 0 after l4 item", s.ipv4Mask.Proto)
	}
	udpMask := items[2].Mask.(*rteflow.UDPSpec)
	if udpMask.DstPort != 0xffff || udpMask.SrcPort != 0 {
		t.Errorf("udp mask = %+v, want dst-only", udpMask)
	}
}

func TestBuildPatternsVLAN(t *testing.T) {
	m := udpMatch()
	m.Flow.VLANTCI = 100 | flow.VLANCFI
	m.Mask.VLANTCI = 0xffff

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildPatterns(&b, &s, m); err != nil {
		t.Fatalf("buildPatterns() = %v", err)
	}

	var vlan *rteflow.Item
	for i := range b.Items() {
		if b.Items()[i].Type == rteflow.ItemVLAN {
			vlan = &b.Items()[i]
		}
	}
	if vlan == nil {
		t.Fatal("no vlan item emitted")
	}
	spec := vlan.Spec.(*rteflow.VLANSpec)
	mask := vlan.Mask.(*rteflow.VLANSpec)
	if spec.TCI&flow.VLANCFI != 0 || mask.TCI&flow.VLANCFI != 0 {
		t.Error("cfi bit not cleared from vlan tci")
	}
	if spec.TCI != 100 {
		t.Errorf("vlan tci = %d, want 100", spec.TCI)
	}
	if mask.InnerType != 0 {
		t.Errorf("vlan inner-type mask = %#x, want 0", mask.InnerType)
	}
}

func TestBuildPatternsTCPFlags(t *testing.T) {
	m := udpMatch()
	m.Flow.NwProto = flow.ProtoTCP
	m.Flow.TCPFlags = 0x0312
	m.Mask.TCPFlags = 0x0fff

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildPatterns(&b, &s, m); err != nil {
		t.Fatalf("buildPatterns() = %v", err)
	}

	if s.tcp.DataOff != 0x03 || s.tcp.Flags != 0x12 {
		t.Errorf("tcp spec split = %#x/%#x, want 0x03/0x12", s.tcp.DataOff, s.tcp.Flags)
	}
	if s.tcpMask.DataOff != 0x0f || s.tcpMask.Flags != 0xff {
		t.Errorf("tcp mask split = %#x/%#x, want 0x0f/0xff", s.tcpMask.DataOff, s.tcpMask.Flags)
	}
}

func TestBuildPatternsUnsupportedL4(t *testing.T) {
	m := udpMatch()
	m.Flow.NwProto = 47 // no hardware item for this protocol

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildPatterns(&b, &s, m); !errors.Is(err, ErrUnsupportedMatch) {
		t.Errorf("buildPatterns() = %v, want ErrUnsupportedMatch", err)
	}
}

func TestBuildPatternsPartialPortMask(t *testing.T) {
	m := udpMatch()
	m.Mask.TpDst = 0xff00

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildPatterns(&b, &s, m); !errors.Is(err, ErrUnsupportedMatch) {
		t.Errorf("buildPatterns() = %v, want ErrUnsupportedMatch", err)
	}
}

func TestBuildTunnelPatterns(t *testing.T) {
	m := udpMatch()
	m.Flow.Tunnel = flow.TunnelInfo{
		Src:   0x0a000001,
		Dst:   0x0a000002,
		ID:    0x123456,
		TTL:   64,
		TpDst: 4789,
	}
	m.Mask.Tunnel = flow.TunnelInfo{
		Src:   0xffffffff,
		Dst:   0xffffffff,
		ID:    0xffffff,
		TTL:   0xff,
		TpDst: 0xffff,
	}

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildTunnelPatterns(&b, &s, m); err != nil {
		t.Fatalf("buildTunnelPatterns() = %v", err)
	}

	items := b.Items()
	want := []rteflow.ItemType{rteflow.ItemIPv4, rteflow.ItemUDP, rteflow.ItemVXLAN}
	if len(items) != len(want) {
		t.Fatalf("got %d items, want %d", len(items), len(want))
	}
	for i, w := range want {
		if items[i].Type != w {
			t.Errorf("item %d = %s, want %s", i, items[i].Type, w)
		}
	}

	// The outer header must be pinned to udp regardless of the mask.
	if s.outerIPv4.Proto != flow.ProtoUDP || s.outerIPv4Mask.Proto != 0xff {
		t.Errorf("outer proto %d/%#x, want udp fully masked", s.outerIPv4.Proto, s.outerIPv4Mask.Proto)
	}
	if s.vxlan.VNI != [3]byte{0x12, 0x34, 0x56} {
		t.Errorf("vni bytes = %v, want 12 34 56", s.vxlan.VNI)
	}
	if s.vxlanMask.VNI != [3]byte{0xff, 0xff, 0xff} {
		t.Errorf("vni mask bytes = %v, want ff ff ff", s.vxlanMask.VNI)
	}
}

func TestBuildTunnelPatternsNonIPv4(t *testing.T) {
	m := udpMatch()
	m.Flow.EthType = 0x86dd

	var s patternSpecs
	var b rteflow.PatternBuilder
	if err := buildTunnelPatterns(&b, &s, m); !errors.Is(err, ErrUnsupportedMatch) {
		t.Errorf("buildTunnelPatterns() = %v, want ErrUnsupportedMatch", err)
	}
}
