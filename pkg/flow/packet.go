package flow

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Metadata is the software-visible packet context the miss path has to
// reconstruct after a partial hardware match.
type Metadata struct {
	InPort uint32
	Mark   uint32
	Tunnel TunnelInfo

	CTState uint8
	CTZone  uint16
	CTMark  uint32
}

// Packet is a received frame plus its datapath metadata.
type Packet struct {
	Data []byte
	Meta Metadata
}

// PopVXLAN strips the outer Ethernet/IPv4/UDP/VXLAN headers from the
// packet, records the outer tunnel fields in the metadata, and leaves
// the inner frame in Data. This is the software half of a tunnel flow
// that matched its outer headers in hardware but missed on the inner
// lookup.
func (p *Packet) PopVXLAN() error {
	pkt := gopacket.NewPacket(p.Data, layers.LayerTypeEthernet, gopacket.Default)

	ip4Layer := pkt.Layer(layers.LayerTypeIPv4)
	udpLayer := pkt.Layer(layers.LayerTypeUDP)
	vxLayer := pkt.Layer(layers.LayerTypeVXLAN)
	if ip4Layer == nil || udpLayer == nil || vxLayer == nil {
		return fmt.Errorf("not a vxlan-in-ipv4 packet")
	}

	ip4 := ip4Layer.(*layers.IPv4)
	udp := udpLayer.(*layers.UDP)
	vx := vxLayer.(*layers.VXLAN)

	inner := vx.LayerPayload()
	if len(inner) == 0 {
		return fmt.Errorf("empty vxlan payload")
	}

	p.Meta.Tunnel = TunnelInfo{
		Src:   ipv4ToUint32(ip4.SrcIP),
		Dst:   ipv4ToUint32(ip4.DstIP),
		ID:    uint64(vx.VNI),
		TOS:   ip4.TOS,
		TTL:   ip4.TTL,
		TpSrc: uint16(udp.SrcPort),
		TpDst: uint16(udp.DstPort),
	}
	p.Data = inner
	return nil
}

func ipv4ToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v4)
}
