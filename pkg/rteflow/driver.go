package rteflow

import "fmt"

// Netdev is a handle to a network device known to the datapath. The
// offload layer never inspects devices itself; everything it needs comes
// from this interface and the Driver.
type Netdev interface {
	// Name returns the device name, used in diagnostics.
	Name() string
	// Kind returns the datapath device type, e.g. "dpdk" or "vxlan".
	Kind() string
}

// Flow is an opaque handle to an installed hardware flow, returned by
// Driver.CreateFlow and meaningful only to the driver that produced it.
type Flow any

// Driver is the hardware offload backend. Implementations program NIC
// flow tables; calls are synchronous and bounded, and may be rejected
// for NIC-specific reasons at any time.
type Driver interface {
	// CreateFlow installs a flow and returns its handle.
	CreateFlow(netdev Netdev, attr *Attr, pattern []Item, actions []Action) (Flow, error)
	// DestroyFlow removes a previously created flow.
	DestroyFlow(netdev Netdev, flow Flow) error
	// IsUplinkPort reports whether netdev is an uplink physical port,
	// eligible as a fan-out target for tunnel flows.
	IsUplinkPort(netdev Netdev) bool
	// RxQueueCount returns the receive queue count used to size RSS fans.
	RxQueueCount(netdev Netdev) int
	// HWPortID returns the hardware port index for port-redirect actions.
	HWPortID(netdev Netdev) uint16
}

// driverRegistry holds constructors for driver backends. Backends
// register themselves via RegisterDriver in their init().
var driverRegistry = map[string]func() Driver{}

// RegisterDriver registers a driver constructor under the given name.
func RegisterDriver(name string, ctor func() Driver) {
	driverRegistry[name] = ctor
}

// NewDriver creates a driver backend by name. An empty name defaults to
// the fake in-memory backend.
func NewDriver(name string) (Driver, error) {
	switch name {
	case "", "fake":
		return NewFakeDriver(), nil
	default:
		if ctor, ok := driverRegistry[name]; ok {
			return ctor(), nil
		}
		return nil, fmt.Errorf("unknown offload driver %q", name)
	}
}
