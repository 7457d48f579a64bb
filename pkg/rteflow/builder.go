package rteflow

// builderInitialCap is the starting capacity of pattern and action
// builders; it doubles on overflow.
const builderInitialCap = 8

// PatternBuilder accumulates match items for one driver call. The zero
// value is ready to use. Builders are owned by a single translation call
// and must not be shared.
type PatternBuilder struct {
	items []Item
}

// Add appends a match item.
func (b *PatternBuilder) Add(t ItemType, spec, mask any) {
	b.items = growAppend(b.items, Item{Type: t, Spec: spec, Mask: mask})
}

// End appends the list terminator expected by drivers.
func (b *PatternBuilder) End() {
	b.Add(ItemEnd, nil, nil)
}

// Items returns the built pattern. The returned slice aliases the
// builder and is only valid until the next Add or Reset.
func (b *PatternBuilder) Items() []Item {
	return b.items
}

// Len reports the number of items added so far.
func (b *PatternBuilder) Len() int {
	return len(b.items)
}

// Reset empties the builder, keeping its capacity.
func (b *PatternBuilder) Reset() {
	b.items = b.items[:0]
}

// ActionBuilder accumulates actions for one driver call. Same ownership
// rules as PatternBuilder.
type ActionBuilder struct {
	actions []Action
}

// Add appends an action.
func (b *ActionBuilder) Add(t ActionType, conf any) {
	b.actions = growAppend(b.actions, Action{Type: t, Conf: conf})
}

// AddRSS appends an RSS action fanning out over queues 0..numQueues-1.
func (b *ActionBuilder) AddRSS(numQueues int) {
	queues := make([]uint16, numQueues)
	for i := range queues {
		queues[i] = uint16(i)
	}
	b.Add(ActionRSS, &RSSConf{Queues: queues})
}

// End appends the list terminator expected by drivers.
func (b *ActionBuilder) End() {
	b.Add(ActionEnd, nil)
}

// Actions returns the built action list. The returned slice aliases the
// builder and is only valid until the next Add or Reset.
func (b *ActionBuilder) Actions() []Action {
	return b.actions
}

// Len reports the number of actions added so far.
func (b *ActionBuilder) Len() int {
	return len(b.actions)
}

// Reset empties the builder, keeping its capacity.
func (b *ActionBuilder) Reset() {
	b.actions = b.actions[:0]
}

// growAppend appends with the 8-then-double growth policy instead of the
// runtime's, so builder reuse settles quickly at a stable capacity.
func growAppend[T any](s []T, v T) []T {
	if cap(s) == len(s) {
		newCap := builderInitialCap
		if cap(s) > 0 {
			newCap = cap(s) * 2
		}
		grown := make([]T, len(s), newCap)
		copy(grown, s)
		s = grown
	}
	return append(s, v)
}
