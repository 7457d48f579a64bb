package offload

import (
	"fmt"

	"github.com/vswitchio/hwoffload/pkg/cmap"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// MissKind tags what a flow mark stands for when a partially matched
// packet reaches software.
type MissKind int

const (
	// MissConntrack marks a packet whose connection state was matched in
	// hardware and must be restored.
	MissConntrack MissKind = iota
	// MissFlowConntrack marks a megaflow that also carries conntrack
	// state.
	MissFlowConntrack
	// MissFlow marks a plain megaflow match.
	MissFlow
	// MissTunnel marks a packet that still carries its outer tunnel
	// header.
	MissTunnel
)

var missKindNames = map[MissKind]string{
	MissConntrack:     "ct",
	MissFlowConntrack: "flow-ct",
	MissFlow:          "flow",
	MissTunnel:        "tunnel",
}

func (k MissKind) String() string {
	if s, ok := missKindNames[k]; ok {
		return s
	}
	return "invalid"
}

// Connection directions of a conntrack miss context.
const (
	dirInit  = 0
	dirReply = 1
	dirCount = 2
)

// CTContext is the conntrack payload of a miss context: the metadata to
// restore plus the hardware flows installed for each direction of the
// connection.
type CTContext struct {
	Mark    uint32
	Zone    uint16
	State   uint8
	OuterID uint32

	flows   [dirCount]rteflow.Flow
	inPorts [dirCount]uint32
}

// FlowContext is the megaflow payload of a miss context.
type FlowContext struct {
	OuterID uint32
	HWID    uint32
	IsPort  bool
	InPort  uint32
}

// MissContext binds a flow mark to the software state a marked packet
// needs restored. Exactly one payload pointer matches Kind.
type MissContext struct {
	Mark uint32
	Kind MissKind
	CT   *CTContext
	Flow *FlowContext
}

// MissStore indexes miss contexts by flow mark. Readers are lock-free on
// the packet path; mutation happens under the offloader's control-plane
// lock.
type MissStore struct {
	byMark cmap.Map[uint32, *MissContext]
}

// Find returns the context registered under mark.
func (s *MissStore) Find(mark uint32) (*MissContext, bool) {
	return s.byMark.Load(mark)
}

// Len reports the number of registered contexts.
func (s *MissStore) Len() int {
	return s.byMark.Len()
}

// saveFlow registers a megaflow context under mark, replacing any
// previous context with the same mark.
func (s *MissStore) saveFlow(mark uint32, fc FlowContext, withCT bool) {
	kind := MissFlow
	if withCT {
		kind = MissFlowConntrack
	}
	fcCopy := fc
	s.byMark.Store(mark, &MissContext{Mark: mark, Kind: kind, Flow: &fcCopy})
}

// saveCT registers one direction of a connection under mark. The two
// directions share a single context; the first direction's payload
// wins and existed tells the caller its payload was discarded, so any
// reference it carries must be dropped. Registering the same direction
// twice is an error.
func (s *MissStore) saveCT(mark uint32, handle rteflow.Flow, inPort uint32, reply bool, ct CTContext) (existed bool, err error) {
	dir := dirInit
	if reply {
		dir = dirReply
	}

	ctx, ok := s.byMark.Load(mark)
	if !ok {
		ctCopy := ct
		ctx = &MissContext{Mark: mark, Kind: MissConntrack, CT: &ctCopy}
		s.byMark.Store(mark, ctx)
	}
	if ctx.Kind != MissConntrack || ctx.CT == nil {
		return ok, fmt.Errorf("mark %d already maps a %s context", mark, ctx.Kind)
	}
	if ctx.CT.flows[dir] != nil {
		return ok, fmt.Errorf("mark %d direction %d already registered", mark, dir)
	}
	ctx.CT.flows[dir] = handle
	ctx.CT.inPorts[dir] = inPort
	return ok, nil
}

// take removes and returns the context registered under mark.
func (s *MissStore) take(mark uint32) (*MissContext, bool) {
	return s.byMark.LoadAndDelete(mark)
}
