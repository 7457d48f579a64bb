package offload

import (
	"fmt"

	"github.com/vswitchio/hwoffload/pkg/flow"
)

// clsInfo is the classification of a flow for the mark-based
// multi-table pipeline: what the match keys on and which bookkeeping
// resources the action list needs.
type clsInfo struct {
	recircID uint32
	tunnel   bool

	popTunnel bool
	hasCT     bool
	ctZone    uint16
	hasRecirc bool
	actRecirc uint32
	hasOutput bool
	output    uint32
}

// classifyFlow derives the pipeline classification of a flow. Shapes
// that will never be built (conntrack NAT) fail here so no resources
// are touched for them.
func classifyFlow(m *flow.Match, actions []flow.Action) (*clsInfo, error) {
	c := &clsInfo{
		recircID: m.Flow.RecircID,
		tunnel:   m.TunnelMasked(),
	}
	for i := range actions {
		a := &actions[i]
		switch a.Type {
		case flow.ActionTunnelPop:
			c.popTunnel = true
		case flow.ActionCT:
			if a.CT != nil && a.CT.NAT {
				return nil, fmt.Errorf("conntrack nat offload: %w", ErrNotImplemented)
			}
			c.hasCT = true
			if a.CT != nil {
				c.ctZone = a.CT.Zone
			}
		case flow.ActionRecirc:
			c.hasRecirc = true
			c.actRecirc = a.RecircID
		case flow.ActionOutput:
			c.hasOutput = true
			c.output = a.Port
		}
	}
	return c, nil
}

// PutHandle registers the bookkeeping of a flow in the mark-based
// multi-table pipeline: the outer id of its tunnel, the hardware table
// id of its recirculation or virtual-port table, and the miss context
// under the flow mark so marked packets recover their metadata.
//
// The hardware flow programs of this pipeline are not built yet; the
// call installs the bookkeeping and reports ErrNotImplemented so the
// caller keeps the flow in software. DelHandle releases everything.
func (o *Offloader) PutHandle(match *flow.Match, actions []flow.Action, mark uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	cls, err := classifyFlow(match, actions)
	if err != nil {
		return err
	}

	var fc FlowContext
	fc.InPort = match.Flow.InPort

	if cls.tunnel {
		id, refErr := o.tunnels.Ref(match.Flow.Tunnel)
		if refErr != nil {
			return refErr
		}
		fc.OuterID = id
	}

	switch {
	case cls.recircID != 0:
		hw, refErr := o.tables.refRecirc(cls.recircID)
		if refErr != nil {
			o.putHandleRollback(&fc)
			return refErr
		}
		fc.HWID = hw
	default:
		if p, ok := o.ports.Find(match.Flow.InPort); ok && p.Kind == PortTunnel {
			hw, refErr := o.tables.refPort(p.DPPort)
			if refErr != nil {
				o.putHandleRollback(&fc)
				return refErr
			}
			fc.HWID = hw
			fc.IsPort = true
		}
	}

	o.miss.saveFlow(mark, fc, cls.hasCT)
	return fmt.Errorf("multi-table flow program for mark %d: %w", mark, ErrNotImplemented)
}

func (o *Offloader) putHandleRollback(fc *FlowContext) {
	if fc.OuterID != 0 {
		o.tunnels.UnrefID(fc.OuterID)
	}
	if fc.HWID != 0 {
		o.tables.unrefHW(fc.HWID)
	}
}

// DelHandle releases the bookkeeping registered under a flow mark:
// the miss context and the ids it references.
func (o *Offloader) DelHandle(mark uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, ok := o.miss.take(mark)
	if !ok {
		return fmt.Errorf("mark %d: %w", mark, ErrNotFound)
	}

	switch ctx.Kind {
	case MissFlow, MissFlowConntrack:
		o.putHandleRollback(ctx.Flow)
	case MissConntrack:
		o.releaseCTContext(ctx.CT)
	}
	return nil
}

// ConnInfo describes one direction of an offloaded connection.
type ConnInfo struct {
	Zone   uint16
	Mark   uint32
	State  uint8
	Tunnel flow.TunnelInfo
	InPort uint32
	Reply  bool
}

// CTPut registers the miss context of a tracked connection under its
// flow mark, so packets the NIC marks with it get their conntrack
// metadata restored in software. The hardware conntrack flow itself is
// not built yet; the call reports ErrNotImplemented once the context is
// in place.
func (o *Offloader) CTPut(conn ConnInfo, mark uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var outerID uint32
	if !conn.Tunnel.IsZero() {
		id, err := o.tunnels.Ref(conn.Tunnel)
		if err != nil {
			return err
		}
		outerID = id
	}

	ct := CTContext{
		Mark:    conn.Mark,
		Zone:    conn.Zone,
		State:   conn.State,
		OuterID: outerID,
	}
	existed, err := o.miss.saveCT(mark, nil, conn.InPort, conn.Reply, ct)
	if err != nil {
		if outerID != 0 {
			o.tunnels.UnrefID(outerID)
		}
		return err
	}
	// Both directions share the first direction's payload; the second
	// direction's tunnel reference is a duplicate and must not outlive
	// this call.
	if existed && outerID != 0 {
		o.tunnels.UnrefID(outerID)
	}
	return fmt.Errorf("conntrack flow program for mark %d: %w", mark, ErrNotImplemented)
}

// CTDel releases the connection context registered under mark, tearing
// down any per-direction hardware flows it accumulated.
func (o *Offloader) CTDel(mark uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ctx, ok := o.miss.take(mark)
	if !ok {
		return fmt.Errorf("mark %d: %w", mark, ErrNotFound)
	}
	if ctx.Kind != MissConntrack {
		o.miss.byMark.Store(mark, ctx)
		return fmt.Errorf("mark %d maps a %s context, not a connection", mark, ctx.Kind)
	}
	o.releaseCTContext(ctx.CT)
	return nil
}

// releaseCTContext frees the ids and hardware flows of a connection
// context, best effort.
func (o *Offloader) releaseCTContext(ct *CTContext) {
	if ct == nil {
		return
	}
	for dir := 0; dir < dirCount; dir++ {
		handle := ct.flows[dir]
		if handle == nil {
			continue
		}
		port, ok := o.ports.Find(ct.inPorts[dir])
		if !ok {
			o.rl.Error("connection flow references missing port",
				"port", ct.inPorts[dir])
			continue
		}
		if err := o.drv.DestroyFlow(port.Netdev, handle); err != nil {
			o.driverErrors.Add(1)
			o.rl.Error("destroying connection flow",
				"netdev", port.Netdev.Name(), "err", err)
		}
		ct.flows[dir] = nil
	}
	if ct.OuterID != 0 {
		o.tunnels.UnrefID(ct.OuterID)
		ct.OuterID = 0
	}
}
