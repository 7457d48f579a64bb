package offload

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/vswitchio/hwoffload/pkg/cmap"
	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/idpool"
	"github.com/vswitchio/hwoffload/pkg/logging"
	"github.com/vswitchio/hwoffload/pkg/rteflow"
)

// Config tunes the offloader's id pools and diagnostics rate limit.
// The zero value selects the defaults.
type Config struct {
	OuterIDMin uint32
	OuterIDMax uint32

	TableIDMin uint32
	TableIDMax uint32

	LogPerMinute int
	LogBurst     int
}

func (c Config) withDefaults() Config {
	if c.OuterIDMin == 0 {
		c.OuterIDMin = MinOuterID
	}
	if c.OuterIDMax == 0 {
		c.OuterIDMax = MaxOuterID
	}
	if c.TableIDMin == 0 {
		c.TableIDMin = MinHWTableID
	}
	if c.TableIDMax == 0 {
		c.TableIDMax = MaxHWTableID
	}
	if c.LogPerMinute == 0 {
		c.LogPerMinute = 100
	}
	if c.LogBurst == 0 {
		c.LogBurst = 5
	}
	return c
}

// Info carries the per-call parameters and results of a flow offload.
type Info struct {
	// FlowMark is stamped by partial-offload flows so software can
	// correlate marked packets back to this flow.
	FlowMark uint32

	// FullOffload reports whether every action was realized in hardware.
	// When false the flow is installed as a mark/RSS classification aid
	// and software still executes the actions.
	FullOffload bool
}

// Offloader owns all hardware offload state of one datapath: the driver,
// the port and flow registries, the id pools, and the miss contexts.
//
// Control-plane operations (port add/del, flow put/del) are serialized
// by an internal mutex. Preprocess runs lock-free on the packet path.
type Offloader struct {
	mu  sync.Mutex
	drv rteflow.Driver
	rl  *logging.RateLimiter

	ports      PortRegistry
	ufidToPort cmap.Map[flow.UFID, uint32]
	tunnels    *TunnelTable
	tables     *tableIDMap
	miss       MissStore

	// nextMark is the next unassigned exception mark. Marks are never
	// recycled; a re-added tunnel port keeps its original mark.
	nextMark uint32

	driverErrors atomic.Uint64
	missLookups  atomic.Uint64
	missHits     atomic.Uint64
}

// New creates an offloader backed by the given driver.
func New(drv rteflow.Driver, cfg Config) *Offloader {
	cfg = cfg.withDefaults()
	return &Offloader{
		drv:      drv,
		rl:       logging.NewRateLimiter(cfg.LogPerMinute, cfg.LogBurst),
		tunnels:  newTunnelTable(idpool.New(cfg.OuterIDMin, cfg.OuterIDMax)),
		tables:   newTableIDMap(idpool.New(cfg.TableIDMin, cfg.TableIDMax)),
		nextMark: VXLANExceptionMark,
	}
}

// Driver returns the backend this offloader programs.
func (o *Offloader) Driver() rteflow.Driver {
	return o.drv
}

// PortAdd registers a datapath port with the offload layer. Physical
// ports become fan-out targets for tunnel flows; tunnel ports get a
// flow table and an exception mark. Re-adding a port refreshes its
// attributes. Ports of other kinds are ignored.
func (o *Offloader) PortAdd(netdev rteflow.Netdev, dpPort uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var kind PortKind
	switch netdev.Kind() {
	case "dpdk":
		kind = PortPhysical
	case "vxlan":
		kind = PortTunnel
	default:
		slog.Debug("port not eligible for offload",
			"netdev", netdev.Name(), "type", netdev.Kind())
		return nil
	}

	p, existed := o.ports.Find(dpPort)
	if !existed {
		p = &Port{DPPort: dpPort}
	} else if p.Kind != kind {
		// Flows installed for the old kind target the wrong tables now.
		o.flushPortFlowsLocked(p)
		o.detachPortLocked(p)
	}
	p.Netdev = netdev

	switch kind {
	case PortPhysical:
		if p.Kind != PortPhysical {
			o.ports.physCount++
		}
		p.Kind = PortPhysical
		p.HWPortID = o.drv.HWPortID(netdev)
		p.Queues = o.drv.RxQueueCount(netdev)
		if p.Queues < 1 {
			p.Queues = 1
		}
	case PortTunnel:
		p.Kind = PortTunnel
		p.TableID = TableVXLAN
		if p.ExceptionMark == 0 {
			p.ExceptionMark = o.nextMark
			o.nextMark++
		}
		o.ports.marks.Store(p.ExceptionMark, p)
	}

	o.ports.ports.Store(dpPort, p)
	slog.Info("offload port registered",
		"netdev", netdev.Name(), "port", dpPort, "kind", p.Kind.String())
	return nil
}

// PortDel removes a port, tearing down every hardware flow installed
// for it.
func (o *Offloader) PortDel(dpPort uint32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.ports.Find(dpPort)
	if !ok {
		return fmt.Errorf("port %d: %w", dpPort, ErrNotFound)
	}
	o.flushPortFlowsLocked(p)
	o.detachPortLocked(p)
	o.ports.ports.Delete(dpPort)
	slog.Info("offload port removed", "netdev", p.Netdev.Name(), "port", dpPort)
	return nil
}

// detachPortLocked undoes the kind-specific registration of a port:
// default flows and the physical-port count, or the exception-mark
// index entry.
func (o *Offloader) detachPortLocked(p *Port) {
	switch p.Kind {
	case PortPhysical:
		for i, df := range p.defaultFlows {
			if df == nil {
				continue
			}
			if err := o.drv.DestroyFlow(p.Netdev, df); err != nil {
				o.driverErrors.Add(1)
				o.rl.Error("destroying default flow",
					"netdev", p.Netdev.Name(), "table", i, "err", err)
			}
			p.defaultFlows[i] = nil
		}
		o.ports.physCount--
	case PortTunnel:
		o.ports.marks.Delete(p.ExceptionMark)
	}
	p.Kind = PortUnknown
}

// flushPortFlowsLocked destroys every flow identity installed on p.
func (o *Offloader) flushPortFlowsLocked(p *Port) {
	p.flows.Range(func(ufid flow.UFID, set *flowSet) bool {
		p.flows.Delete(ufid)
		o.ufidToPort.Delete(ufid)
		if failed := set.destroyAll(o.drv, o.rl); failed > 0 {
			o.driverErrors.Add(uint64(failed))
		}
		return true
	})
}

// FlowPut installs or replaces the hardware realization of a flow. On a
// modify the previous realization is fully destroyed before the new one
// is created, so the old and new never coexist in the NIC. The error
// reports why the flow stays in software; the datapath keeps working
// either way.
func (o *Offloader) FlowPut(match *flow.Match, actions []flow.Action, ufid flow.UFID, info *Info) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.ufidToPort.Load(ufid); ok {
		if err := o.flowDelLocked(ufid); err != nil {
			return fmt.Errorf("replacing flow %s: %w", ufid, err)
		}
	}

	port, ok := o.ports.Find(match.Flow.InPort)
	if !ok {
		return fmt.Errorf("in-port %d: %w", match.Flow.InPort, ErrNotFound)
	}
	switch port.Kind {
	case PortPhysical:
		return o.putPhysFlow(port, match, actions, ufid, info)
	case PortTunnel:
		return o.putTunnelFlow(port, match, actions, ufid, info)
	default:
		return nil
	}
}

// putPhysFlow installs a flow arriving on a physical port: one hardware
// flow, either the fully translated action list or the mark/RSS partial
// program when the actions cannot be expressed.
func (o *Offloader) putPhysFlow(port *Port, match *flow.Match, actions []flow.Action, ufid flow.UFID, info *Info) error {
	if err := validateMatch(match, false); err != nil {
		return err
	}
	// A flow without actions drops in software; an END-only hardware
	// program would misreport it as offloaded.
	if len(actions) == 0 {
		return nil
	}

	var ps patternSpecs
	var pb rteflow.PatternBuilder
	if err := buildPatterns(&pb, &ps, match); err != nil {
		return err
	}
	pb.End()

	var ab rteflow.ActionBuilder
	var as actionSpecs
	popTarget, supported := o.translateActions(&ab, &as, actions)

	var handle rteflow.Flow
	var err error
	if supported {
		ab.End()
		attr := rteflow.Attr{Ingress: true, Transfer: true}
		handle, err = o.drv.CreateFlow(port.Netdev, &attr, pb.Items(), ab.Actions())
	} else {
		ab.Reset()
		markRSSActions(&ab, &as, info.FlowMark, port.Queues)
		attr := rteflow.Attr{Ingress: true}
		handle, err = o.drv.CreateFlow(port.Netdev, &attr, pb.Items(), ab.Actions())
	}
	if err != nil {
		o.driverErrors.Add(1)
		return fmt.Errorf("creating flow on %s: %w: %v", port.Netdev.Name(), ErrDriverRejected, err)
	}

	// A jump into a tunnel table only works if the table catches the
	// packets no specific flow claims. The catch-all is installed lazily
	// per ingress port; if it cannot be, the jump must not stay live.
	if popTarget != nil && port.defaultFlows[popTarget.TableID] == nil {
		df, dfErr := o.installDefaultFlow(port, popTarget)
		if dfErr != nil {
			o.driverErrors.Add(1)
			if destroyErr := o.drv.DestroyFlow(port.Netdev, handle); destroyErr != nil {
				o.rl.Error("rolling back flow after default-flow failure",
					"netdev", port.Netdev.Name(), "err", destroyErr)
			}
			return fmt.Errorf("installing default flow for table %d on %s: %w: %v",
				popTarget.TableID, port.Netdev.Name(), ErrDriverRejected, dfErr)
		}
		port.defaultFlows[popTarget.TableID] = df
	}

	set := newFlowSet(ufid, 1)
	set.add(o.drv, handle, port.Netdev, o.rl)
	port.flows.Store(ufid, set)
	o.ufidToPort.Store(ufid, port.DPPort)
	info.FullOffload = supported
	return nil
}

// putTunnelFlow installs a flow arriving on a tunnel port. The flow is
// fanned out to every uplink, since the encapsulated packet may enter
// the NIC on any of them. Per-uplink failures degrade to a mark/RSS
// program on that uplink; the put succeeds as long as one uplink took
// the flow.
func (o *Offloader) putTunnelFlow(vport *Port, match *flow.Match, actions []flow.Action, ufid flow.UFID, info *Info) error {
	if err := validateMatch(match, true); err != nil {
		return err
	}
	if len(actions) == 0 {
		return nil
	}

	var ps patternSpecs
	var pb rteflow.PatternBuilder
	if err := buildTunnelPatterns(&pb, &ps, match); err != nil {
		return err
	}
	if err := buildPatterns(&pb, &ps, match); err != nil {
		return err
	}
	pb.End()

	outTarget, supported, err := o.classifyTunnelActions(actions)
	if err != nil {
		return err
	}

	var uplinks []*Port
	o.ports.rangePhysical(func(p *Port) bool {
		if o.drv.IsUplinkPort(p.Netdev) {
			uplinks = append(uplinks, p)
		}
		return true
	})
	if len(uplinks) == 0 {
		return fmt.Errorf("no uplink ports for tunnel flow %s", ufid)
	}

	set := newFlowSet(ufid, len(uplinks))
	fullOffload := supported
	for _, up := range uplinks {
		var ab rteflow.ActionBuilder
		var as actionSpecs

		if supported {
			ab.Add(rteflow.ActionVXLANDecap, nil)
			if outTarget != nil {
				ab.Add(rteflow.ActionCount, nil)
				as.portID = rteflow.PortIDConf{ID: outTarget.HWPortID}
				ab.Add(rteflow.ActionPortID, &as.portID)
			}
			ab.End()
			attr := rteflow.Attr{Group: vport.TableID, Ingress: true, Transfer: true}
			handle, createErr := o.drv.CreateFlow(up.Netdev, &attr, pb.Items(), ab.Actions())
			if createErr == nil {
				set.add(o.drv, handle, up.Netdev, o.rl)
				continue
			}
			o.driverErrors.Add(1)
			o.rl.Warn("tunnel flow rejected, degrading to partial offload",
				"netdev", up.Netdev.Name(), "ufid", ufid.String(), "err", createErr)
			ab.Reset()
		}

		ab.Add(rteflow.ActionVXLANDecap, nil)
		markRSSActions(&ab, &as, info.FlowMark, up.Queues)
		attr := rteflow.Attr{Group: vport.TableID, Ingress: true}
		handle, createErr := o.drv.CreateFlow(up.Netdev, &attr, pb.Items(), ab.Actions())
		if createErr != nil {
			o.driverErrors.Add(1)
			o.rl.Error("tunnel flow rejected on uplink",
				"netdev", up.Netdev.Name(), "ufid", ufid.String(), "err", createErr)
			continue
		}
		set.add(o.drv, handle, up.Netdev, o.rl)
		fullOffload = false
	}

	if set.len() == 0 {
		return fmt.Errorf("creating tunnel flow %s: %w", ufid, ErrDriverRejected)
	}
	vport.flows.Store(ufid, set)
	o.ufidToPort.Store(ufid, vport.DPPort)
	info.FullOffload = fullOffload && set.len() == len(uplinks)
	return nil
}

// classifyTunnelActions decides how a tunnel flow's action list maps to
// hardware: a lone output is fully realizable after decap, conntrack
// shapes are explicitly not built yet, anything else degrades to the
// mark/RSS program.
func (o *Offloader) classifyTunnelActions(actions []flow.Action) (outTarget *Port, supported bool, err error) {
	supported = true
	sawCT := false
	for i := range actions {
		a := &actions[i]
		switch a.Type {
		case flow.ActionOutput:
			target, found := o.ports.Find(a.Port)
			if !found || target.Kind != PortPhysical {
				supported = false
				continue
			}
			outTarget = target

		case flow.ActionCT:
			if a.CT != nil && a.CT.NAT {
				return nil, false, fmt.Errorf("conntrack nat offload: %w", ErrNotImplemented)
			}
			if a.CT != nil && a.CT.Zone != 0 {
				return nil, false, fmt.Errorf("conntrack zone offload: %w", ErrNotImplemented)
			}
			sawCT = true
			supported = false

		case flow.ActionRecirc:
			if sawCT {
				return nil, false, fmt.Errorf("post-conntrack recirculation offload: %w", ErrNotImplemented)
			}
			supported = false

		default:
			supported = false
		}
	}
	if !supported {
		outTarget = nil
	}
	return outTarget, supported, nil
}

// FlowDel removes the hardware realization of a flow. Destroy failures
// are logged and do not abort the teardown.
func (o *Offloader) FlowDel(ufid flow.UFID) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flowDelLocked(ufid)
}

func (o *Offloader) flowDelLocked(ufid flow.UFID) error {
	dpPort, ok := o.ufidToPort.LoadAndDelete(ufid)
	if !ok {
		return fmt.Errorf("flow %s: %w", ufid, ErrNotFound)
	}
	port, ok := o.ports.Find(dpPort)
	if !ok {
		return fmt.Errorf("flow %s references missing port %d: %w", ufid, dpPort, ErrNotFound)
	}
	set, ok := port.flows.LoadAndDelete(ufid)
	if !ok {
		return nil
	}
	if failed := set.destroyAll(o.drv, o.rl); failed > 0 {
		o.driverErrors.Add(uint64(failed))
	}
	return nil
}

// Preprocess recovers the software-visible context of a packet that hit
// a marking hardware flow: tunnel-table exception marks trigger software
// decapsulation, flow marks restore the metadata stashed in the miss
// context. Runs lock-free on the packet path; failures leave the packet
// for the slow path untouched.
func (o *Offloader) Preprocess(p *flow.Packet, mark uint32) {
	if mark == 0 {
		return
	}
	o.missLookups.Add(1)

	if port, ok := o.ports.FindByMark(mark); ok {
		o.missHits.Add(1)
		if err := p.PopVXLAN(); err != nil {
			o.rl.Warn("decapsulating marked packet", "mark", mark, "err", err)
			return
		}
		p.Meta.InPort = port.DPPort
		return
	}

	ctx, ok := o.miss.Find(mark)
	if !ok {
		return
	}
	o.missHits.Add(1)

	switch ctx.Kind {
	case MissConntrack:
		ct := ctx.CT
		p.Meta.CTState = ct.State
		p.Meta.CTZone = ct.Zone
		p.Meta.CTMark = ct.Mark
		if ct.OuterID != 0 {
			if info, found := o.tunnels.Lookup(ct.OuterID); found {
				p.Meta.Tunnel = info
			}
		}
	case MissFlow:
		fc := ctx.Flow
		if fc.OuterID != 0 {
			if info, found := o.tunnels.Lookup(fc.OuterID); found {
				p.Meta.Tunnel = info
			}
		}
		if fc.InPort != 0 {
			p.Meta.InPort = fc.InPort
		}
	default:
		o.rl.Warn("miss context recovery not supported",
			"mark", mark, "kind", ctx.Kind.String())
	}
}

// Close tears down every port and the hardware flows behind them.
func (o *Offloader) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.ports.ports.Range(func(dpPort uint32, p *Port) bool {
		o.flushPortFlowsLocked(p)
		o.detachPortLocked(p)
		o.ports.ports.Delete(dpPort)
		return true
	})
	return nil
}

// Stats is a point-in-time snapshot of the offloader's bookkeeping.
type Stats struct {
	PhysicalPorts int
	TunnelPorts   int
	HardwareFlows int
	OuterIDs      int
	TableIDs      int
	MissContexts  int

	DriverErrors uint64
	MissLookups  uint64
	MissHits     uint64
	LogsDropped  uint64
}

// StatsSnapshot collects current counters for export.
func (o *Offloader) StatsSnapshot() Stats {
	counts := o.ports.Counts()
	return Stats{
		PhysicalPorts: counts[PortPhysical],
		TunnelPorts:   counts[PortTunnel],
		HardwareFlows: o.ports.flowCount(),
		OuterIDs:      o.tunnels.InUse(),
		TableIDs:      o.tables.inUse(),
		MissContexts:  o.miss.Len(),
		DriverErrors:  o.driverErrors.Load(),
		MissLookups:   o.missLookups.Load(),
		MissHits:      o.missHits.Load(),
		LogsDropped:   o.rl.Dropped(),
	}
}
