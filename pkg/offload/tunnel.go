package offload

import (
	"fmt"

	"github.com/vswitchio/hwoffload/pkg/cmap"
	"github.com/vswitchio/hwoffload/pkg/flow"
)

// TunnelTuple identifies an offloaded tunnel header: outer IPv4
// endpoints plus the tunnel key.
type TunnelTuple struct {
	Src uint32
	Dst uint32
	ID  uint64
}

// TupleFromInfo extracts the identifying triple from a tunnel header.
func TupleFromInfo(t flow.TunnelInfo) TunnelTuple {
	return TunnelTuple{Src: t.Src, Dst: t.Dst, ID: t.ID}
}

// tunnelEntry binds a tuple to its outer id. refCount is guarded by the
// offloader's control-plane lock; the maps themselves are lock-free for
// readers.
type tunnelEntry struct {
	tuple    TunnelTuple
	info     flow.TunnelInfo
	outerID  uint32
	refCount int
}

// TunnelTable hands out compact outer ids for tunnel headers and keeps
// the two-way tuple/id association. Ids are refcounted: flows sharing a
// tunnel share the id, and the id returns to the pool when the last
// reference drops.
type TunnelTable struct {
	pool    pool
	byTuple cmap.Map[TunnelTuple, *tunnelEntry]
	byID    cmap.Map[uint32, *tunnelEntry]
}

// pool is the id allocator slice TunnelTable and tableIDMap need.
type pool interface {
	Alloc() (uint32, bool)
	Free(id uint32)
	InUse() int
}

func newTunnelTable(p pool) *TunnelTable {
	return &TunnelTable{pool: p}
}

// Ref returns the outer id for the tunnel header, allocating one on
// first use and bumping the reference count otherwise. Control-plane
// lock required.
func (t *TunnelTable) Ref(info flow.TunnelInfo) (uint32, error) {
	tuple := TupleFromInfo(info)
	if e, ok := t.byTuple.Load(tuple); ok {
		e.refCount++
		return e.outerID, nil
	}

	id, ok := t.pool.Alloc()
	if !ok {
		return 0, fmt.Errorf("allocating outer id: %w", ErrExhausted)
	}
	e := &tunnelEntry{tuple: tuple, info: info, outerID: id, refCount: 1}
	t.byTuple.Store(tuple, e)
	t.byID.Store(id, e)
	return id, nil
}

// Unref drops one reference on the tunnel's outer id, releasing the id
// when the count reaches zero. Control-plane lock required.
func (t *TunnelTable) Unref(info flow.TunnelInfo) {
	tuple := TupleFromInfo(info)
	e, ok := t.byTuple.Load(tuple)
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	t.byTuple.Delete(tuple)
	t.byID.Delete(e.outerID)
	t.pool.Free(e.outerID)
}

// UnrefID is Unref keyed by outer id, for callers holding only the id.
func (t *TunnelTable) UnrefID(id uint32) {
	if e, ok := t.byID.Load(id); ok {
		t.Unref(e.info)
	}
}

// Lookup resolves an outer id back to the tunnel header it names. Safe
// on the packet path.
func (t *TunnelTable) Lookup(id uint32) (flow.TunnelInfo, bool) {
	e, ok := t.byID.Load(id)
	if !ok {
		return flow.TunnelInfo{}, false
	}
	return e.info, true
}

// InUse reports how many outer ids are currently allocated.
func (t *TunnelTable) InUse() int {
	return t.pool.InUse()
}

// refCount returns the reference count of the tuple's entry, for tests.
func (t *TunnelTable) refCountOf(info flow.TunnelInfo) int {
	e, ok := t.byTuple.Load(TupleFromInfo(info))
	if !ok {
		return 0
	}
	return e.refCount
}
