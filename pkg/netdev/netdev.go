// Package netdev provides the network-device handles handed to the
// offload layer: static devices described by configuration, and system
// devices resolved through netlink.
package netdev

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// Static is a device described entirely by configuration, used by the
// simulator and by tests.
type Static struct {
	name string
	kind string
}

// NewStatic returns a device handle with the given name and datapath
// type.
func NewStatic(name, kind string) *Static {
	return &Static{name: name, kind: kind}
}

func (d *Static) Name() string { return d.name }
func (d *Static) Kind() string { return d.kind }

// System is a device resolved from the running kernel. The datapath
// type is derived from the netlink link type.
type System struct {
	name  string
	kind  string
	index int
	mtu   int
}

// FromSystem looks up a kernel interface and wraps it as a device
// handle. VXLAN links map to the tunnel type; anything else is treated
// as a physical port.
func FromSystem(name string) (*System, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("looking up link %s: %w", name, err)
	}

	kind := "dpdk"
	if link.Type() == "vxlan" {
		kind = "vxlan"
	}
	attrs := link.Attrs()
	return &System{
		name:  name,
		kind:  kind,
		index: attrs.Index,
		mtu:   attrs.MTU,
	}, nil
}

func (d *System) Name() string { return d.name }
func (d *System) Kind() string { return d.kind }

// Index returns the kernel interface index.
func (d *System) Index() int { return d.index }

// MTU returns the kernel interface MTU.
func (d *System) MTU() int { return d.mtu }
