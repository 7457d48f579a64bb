// Package flow holds the software-side flow representation handed to the
// offload layer by the datapath classifier: unique flow identifiers,
// match structures with wildcard masks, type-tagged action lists, and
// received-packet metadata for the miss path.
package flow

import "fmt"

// UFID is the 128-bit unique flow identifier correlating a software flow
// with its hardware realizations.
type UFID [16]byte

// String renders the identifier in UUID form.
func (u UFID) String() string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", u[0:4], u[4:6], u[6:8], u[8:10], u[10:16])
}

// IsZero reports whether the identifier is all zeroes.
func (u UFID) IsZero() bool {
	return u == UFID{}
}
