package offload

import "errors"

// Error taxonomy of the offload layer. All of these except ErrNotFound
// mean "this flow stays in software"; a failed offload attempt never
// prevents the flow from working.
var (
	// ErrUnsupportedMatch marks a match that constrains a field this
	// layer cannot express in hardware.
	ErrUnsupportedMatch = errors.New("match not supported in hardware")

	// ErrExhausted marks an empty id pool (outer-id or table-id).
	ErrExhausted = errors.New("id pool exhausted")

	// ErrDriverRejected marks a flow the driver refused to install,
	// typically a NIC-specific limitation.
	ErrDriverRejected = errors.New("offload driver rejected flow")

	// ErrNotFound marks a delete or modify referencing an unknown flow
	// identifier or port. Caller error; no state changed.
	ErrNotFound = errors.New("not found")

	// ErrNotImplemented marks program shapes the layer deliberately does
	// not construct yet (conntrack NAT, recirculation tables, generic
	// table jumps).
	ErrNotImplemented = errors.New("offload program not implemented")
)
