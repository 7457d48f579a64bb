package offload

import (
	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// actionSpecs owns the configuration storage behind one built action
// list, mirroring patternSpecs on the pattern side.
type actionSpecs struct {
	mark    rteflow.MarkConf
	portID  rteflow.PortIDConf
	jump    rteflow.JumpConf
	encap   rteflow.RawEncapConf
	cloneID rteflow.PortIDConf
}

// translateActions compiles a datapath action list into hardware
// actions. It returns the tunnel-pop target port when the list jumps
// into a tunnel table, and ok=false when some action has no hardware
// equivalent, in which case the caller falls back to a mark/RSS flow.
func (o *Offloader) translateActions(b *rteflow.ActionBuilder, s *actionSpecs, actions []flow.Action) (popTarget *Port, ok bool) {
	for i := range actions {
		a := &actions[i]
		switch a.Type {
		case flow.ActionTunnelPop:
			vport, found := o.ports.Find(a.Port)
			if !found || vport.Kind != PortTunnel || vport.TableID == TableUnknown {
				return nil, false
			}
			s.jump = rteflow.JumpConf{Group: vport.TableID}
			b.Add(rteflow.ActionJump, &s.jump)
			b.Add(rteflow.ActionCount, nil)
			popTarget = vport

		case flow.ActionOutput:
			target, found := o.ports.Find(a.Port)
			if !found || target.Kind != PortPhysical {
				return nil, false
			}
			b.Add(rteflow.ActionCount, nil)
			s.portID = rteflow.PortIDConf{ID: target.HWPortID}
			b.Add(rteflow.ActionPortID, &s.portID)

		case flow.ActionClone:
			if !o.translateClone(b, s, a.Clone) {
				return nil, false
			}

		default:
			return nil, false
		}
	}
	return popTarget, true
}

// translateClone compiles the nested list of a clone action. Only the
// encapsulate-then-output shape is realizable.
func (o *Offloader) translateClone(b *rteflow.ActionBuilder, s *actionSpecs, nested []flow.Action) bool {
	for i := range nested {
		a := &nested[i]
		switch a.Type {
		case flow.ActionTunnelPush:
			s.encap = rteflow.RawEncapConf{Data: a.TunnelHeader}
			b.Add(rteflow.ActionRawEncap, &s.encap)

		case flow.ActionOutput:
			target, found := o.ports.Find(a.Port)
			if !found || target.Kind != PortPhysical {
				return false
			}
			b.Add(rteflow.ActionCount, nil)
			s.cloneID = rteflow.PortIDConf{ID: target.HWPortID}
			b.Add(rteflow.ActionPortID, &s.cloneID)

		default:
			return false
		}
	}
	return true
}

// markRSSActions builds the partial-offload action list: stamp the flow
// mark and spread the packet over the port's receive queues so software
// finishes the job.
func markRSSActions(b *rteflow.ActionBuilder, s *actionSpecs, mark uint32, queues int) {
	s.mark = rteflow.MarkConf{ID: mark}
	b.Add(rteflow.ActionMark, &s.mark)
	b.AddRSS(queues)
	b.End()
}

// installDefaultFlow creates the catch-all flow of a tunnel table on one
// ingress port: anything a specific flow in the table does not claim is
// stamped with the table owner's exception mark and punted to software.
func (o *Offloader) installDefaultFlow(ingress, vport *Port) (rteflow.Flow, error) {
	var pb rteflow.PatternBuilder
	pb.End()

	var ab rteflow.ActionBuilder
	var s actionSpecs
	markRSSActions(&ab, &s, vport.ExceptionMark, ingress.Queues)

	attr := rteflow.Attr{
		Group:    vport.TableID,
		Priority: 1, // below every specific flow in the table
		Ingress:  true,
	}
	return o.drv.CreateFlow(ingress.Netdev, &attr, pb.Items(), ab.Actions())
}
