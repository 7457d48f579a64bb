package offload

import (
	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// flowRef is one hardware realization of a flow identity, paired with
// the device it was installed on so it can be destroyed later.
type flowRef struct {
	handle rteflow.Flow
	netdev rteflow.Netdev
}

// flowSet collects the hardware flows installed for one flow identity.
// A physical-port flow has exactly one entry; a tunnel flow fans out
// with one entry per uplink. Capacity is fixed at creation; extra
// handles beyond it are destroyed on arrival rather than leaked.
type flowSet struct {
	ufid flow.UFID
	refs []flowRef
	max  int
}

func newFlowSet(ufid flow.UFID, max int) *flowSet {
	return &flowSet{ufid: ufid, refs: make([]flowRef, 0, max), max: max}
}

func (s *flowSet) len() int {
	return len(s.refs)
}

// add records a hardware flow. A handle past the set's capacity is
// destroyed immediately so no untracked flow survives in the NIC.
func (s *flowSet) add(drv rteflow.Driver, handle rteflow.Flow, netdev rteflow.Netdev, rl errorSink) {
	if handle == nil {
		return
	}
	if len(s.refs) >= s.max {
		rl.Error("flow set full, destroying surplus hardware flow",
			"ufid", s.ufid.String(), "netdev", netdev.Name(), "max", s.max)
		if err := drv.DestroyFlow(netdev, handle); err != nil {
			rl.Error("destroying surplus hardware flow", "netdev", netdev.Name(), "err", err)
		}
		return
	}
	s.refs = append(s.refs, flowRef{handle: handle, netdev: netdev})
}

// destroyAll removes every hardware flow of the identity, best effort:
// a failing destroy is logged and the teardown continues. It returns
// the number of failed destroys.
func (s *flowSet) destroyAll(drv rteflow.Driver, rl errorSink) int {
	failed := 0
	for _, ref := range s.refs {
		if err := drv.DestroyFlow(ref.netdev, ref.handle); err != nil {
			failed++
			rl.Error("destroying hardware flow",
				"ufid", s.ufid.String(), "netdev", ref.netdev.Name(), "err", err)
		}
	}
	s.refs = s.refs[:0]
	return failed
}

// errorSink is the slice of the rate limiter the flow set needs.
type errorSink interface {
	Error(msg string, args ...any)
}
