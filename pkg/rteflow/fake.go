package rteflow

import (
	"fmt"
	"sync"
)

// FakeFlow is the handle type produced by FakeDriver.
type FakeFlow struct {
	ID      uint64
	Netdev  string
	Attr    Attr
	Pattern []Item
	Actions []Action
}

// FakeDriver is an in-memory Driver backend. It records every created
// flow and supports programmable failures, which makes it the driver
// mock for tests and the backend for the simulator daemon.
type FakeDriver struct {
	mu      sync.Mutex
	nextID  uint64
	flows   map[uint64]*FakeFlow
	created uint64
	deleted uint64

	// FailCreate, when set, is consulted before each CreateFlow; a
	// non-nil return fails the call.
	FailCreate func(netdev Netdev, attr *Attr, pattern []Item, actions []Action) error
	// Uplinks marks netdev names treated as uplink physical ports. A nil
	// map means every device is an uplink.
	Uplinks map[string]bool
	// Queues maps netdev names to rx queue counts; missing entries get 1.
	Queues map[string]int
	// PortIDs maps netdev names to hardware port indices.
	PortIDs map[string]uint16
}

// NewFakeDriver returns an empty fake backend.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{flows: make(map[uint64]*FakeFlow)}
}

// CreateFlow implements Driver.
func (d *FakeDriver) CreateFlow(netdev Netdev, attr *Attr, pattern []Item, actions []Action) (Flow, error) {
	if d.FailCreate != nil {
		if err := d.FailCreate(netdev, attr, pattern, actions); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.created++
	f := &FakeFlow{
		ID:      d.nextID,
		Netdev:  netdev.Name(),
		Attr:    *attr,
		Pattern: append([]Item(nil), pattern...),
		Actions: append([]Action(nil), actions...),
	}
	d.flows[f.ID] = f
	return f, nil
}

// DestroyFlow implements Driver.
func (d *FakeDriver) DestroyFlow(_ Netdev, flow Flow) error {
	f, ok := flow.(*FakeFlow)
	if !ok {
		return fmt.Errorf("not a fake flow handle: %T", flow)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, live := d.flows[f.ID]; !live {
		return fmt.Errorf("flow %d already destroyed", f.ID)
	}
	delete(d.flows, f.ID)
	d.deleted++
	return nil
}

// IsUplinkPort implements Driver.
func (d *FakeDriver) IsUplinkPort(netdev Netdev) bool {
	if d.Uplinks == nil {
		return true
	}
	return d.Uplinks[netdev.Name()]
}

// RxQueueCount implements Driver.
func (d *FakeDriver) RxQueueCount(netdev Netdev) int {
	if n, ok := d.Queues[netdev.Name()]; ok {
		return n
	}
	return 1
}

// HWPortID implements Driver.
func (d *FakeDriver) HWPortID(netdev Netdev) uint16 {
	return d.PortIDs[netdev.Name()]
}

// LiveFlows returns the currently installed flows.
func (d *FakeDriver) LiveFlows() []*FakeFlow {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*FakeFlow, 0, len(d.flows))
	for _, f := range d.flows {
		out = append(out, f)
	}
	return out
}

// LiveCount returns the number of installed flows.
func (d *FakeDriver) LiveCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.flows)
}

// Stats returns lifetime create/destroy counts.
func (d *FakeDriver) Stats() (created, deleted uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created, d.deleted
}

func init() {
	RegisterDriver("fake", func() Driver { return NewFakeDriver() })
}
