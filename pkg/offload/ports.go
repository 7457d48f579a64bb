package offload

import (
	"github.com/vswitchio/hwoffload/pkg/cmap"
	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// Port is the offload-side record of a datapath port. Packet-path
// readers reach it through the registry maps; the mutable fields below
// the netdev are written only under the offloader's control-plane lock.
type Port struct {
	DPPort uint32
	Netdev rteflow.Netdev
	Kind   PortKind

	// Physical ports.
	HWPortID uint16
	Queues   int

	// Tunnel ports.
	TableID       uint32
	ExceptionMark uint32

	// defaultFlows holds the lazily installed catch-all flow per target
	// table, created the first time a jump into that table is programmed.
	defaultFlows [MaxTables]rteflow.Flow

	// flows maps each offloaded flow identity on this port to its
	// hardware realizations.
	flows cmap.Map[flow.UFID, *flowSet]
}

// PortRegistry indexes registered ports by datapath port number and, for
// tunnel ports, by exception mark. Readers are lock-free; mutation is
// serialized by the offloader.
type PortRegistry struct {
	ports cmap.Map[uint32, *Port]
	marks cmap.Map[uint32, *Port]

	// physCount tracks registered physical ports, read when sizing the
	// tunnel-flow fan-out. Control-plane lock only.
	physCount int
}

// Find returns the port registered under the datapath port number.
func (r *PortRegistry) Find(dpPort uint32) (*Port, bool) {
	return r.ports.Load(dpPort)
}

// FindByMark returns the tunnel port owning the exception mark.
func (r *PortRegistry) FindByMark(mark uint32) (*Port, bool) {
	return r.marks.Load(mark)
}

// Len reports the number of registered ports.
func (r *PortRegistry) Len() int {
	return r.ports.Len()
}

// Counts reports registered ports per kind.
func (r *PortRegistry) Counts() map[PortKind]int {
	counts := make(map[PortKind]int)
	r.ports.Range(func(_ uint32, p *Port) bool {
		counts[p.Kind]++
		return true
	})
	return counts
}

// rangePhysical calls fn for every physical port.
func (r *PortRegistry) rangePhysical(fn func(*Port) bool) {
	r.ports.Range(func(_ uint32, p *Port) bool {
		if p.Kind != PortPhysical {
			return true
		}
		return fn(p)
	})
}

// flowCount sums live hardware flow handles across all ports.
func (r *PortRegistry) flowCount() int {
	n := 0
	r.ports.Range(func(_ uint32, p *Port) bool {
		p.flows.Range(func(_ flow.UFID, s *flowSet) bool {
			n += s.len()
			return true
		})
		return true
	})
	return n
}
