package offload

import (
	"fmt"

	"github.com/vswitchio/hwoffload/pkg/cmap"
)

// tableKey names a software flow table: either a recirculation id or a
// virtual port's table, never both under the same key.
type tableKey struct {
	id     uint32
	isPort bool
}

// tableEntry binds a software table to its hardware table id. refCount
// is guarded by the offloader's control-plane lock.
type tableEntry struct {
	key      tableKey
	hwID     uint32
	refCount int
}

// tableIDMap allocates hardware flow-table ids for software tables and
// keeps both directions of the association. Dynamic ids start above the
// fixed tables so they never collide with them.
type tableIDMap struct {
	pool pool
	bySW cmap.Map[tableKey, *tableEntry]
	byHW cmap.Map[uint32, *tableEntry]
}

func newTableIDMap(p pool) *tableIDMap {
	return &tableIDMap{pool: p}
}

// refRecirc returns the hardware table id for a recirculation id.
func (m *tableIDMap) refRecirc(recircID uint32) (uint32, error) {
	return m.ref(tableKey{id: recircID})
}

// refPort returns the hardware table id for a virtual port table.
func (m *tableIDMap) refPort(portID uint32) (uint32, error) {
	return m.ref(tableKey{id: portID, isPort: true})
}

func (m *tableIDMap) ref(key tableKey) (uint32, error) {
	if e, ok := m.bySW.Load(key); ok {
		e.refCount++
		return e.hwID, nil
	}

	id, ok := m.pool.Alloc()
	if !ok {
		return 0, fmt.Errorf("allocating hardware table id: %w", ErrExhausted)
	}
	e := &tableEntry{key: key, hwID: id, refCount: 1}
	m.bySW.Store(key, e)
	m.byHW.Store(id, e)
	return id, nil
}

// unrefRecirc drops one reference on a recirculation table id.
func (m *tableIDMap) unrefRecirc(recircID uint32) {
	m.unref(tableKey{id: recircID})
}

// unrefPort drops one reference on a virtual port table id.
func (m *tableIDMap) unrefPort(portID uint32) {
	m.unref(tableKey{id: portID, isPort: true})
}

func (m *tableIDMap) unref(key tableKey) {
	e, ok := m.bySW.Load(key)
	if !ok {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	m.bySW.Delete(key)
	m.byHW.Delete(e.hwID)
	m.pool.Free(e.hwID)
}

// unrefHW drops one reference given the hardware id, for teardown paths
// that only recorded the hardware side.
func (m *tableIDMap) unrefHW(hwID uint32) {
	if e, ok := m.byHW.Load(hwID); ok {
		m.unref(e.key)
	}
}

// swFromHW resolves a hardware table id back to the software table it
// was allocated for. Safe on the packet path.
func (m *tableIDMap) swFromHW(hwID uint32) (id uint32, isPort, ok bool) {
	e, found := m.byHW.Load(hwID)
	if !found {
		return 0, false, false
	}
	return e.key.id, e.key.isPort, true
}

// inUse reports how many hardware table ids are currently allocated.
func (m *tableIDMap) inUse() int {
	return m.pool.InUse()
}
