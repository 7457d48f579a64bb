package flow

// ActionType tags one entry of a datapath action list.
type ActionType int

const (
	// ActionOutput forwards to a datapath port.
	ActionOutput ActionType = iota
	// ActionTunnelPop decapsulates and re-injects on a virtual port.
	ActionTunnelPop
	// ActionTunnelPush prepends an encapsulation header.
	ActionTunnelPush
	// ActionClone runs a nested action list on a packet copy.
	ActionClone
	// ActionCT sends the packet through connection tracking.
	ActionCT
	// ActionRecirc recirculates into another lookup pass.
	ActionRecirc
	// ActionPushVLAN and below are recognized but never offloaded.
	ActionPushVLAN
	ActionPopVLAN
	ActionSet
	ActionUserspace
)

var actionNames = map[ActionType]string{
	ActionOutput:     "output",
	ActionTunnelPop:  "tunnel-pop",
	ActionTunnelPush: "tunnel-push",
	ActionClone:      "clone",
	ActionCT:         "ct",
	ActionRecirc:     "recirc",
	ActionPushVLAN:   "push-vlan",
	ActionPopVLAN:    "pop-vlan",
	ActionSet:        "set",
	ActionUserspace:  "userspace",
}

func (t ActionType) String() string {
	if s, ok := actionNames[t]; ok {
		return s
	}
	return "unknown"
}

// CTSpec carries the attributes of a conntrack action.
type CTSpec struct {
	Zone        uint16
	Commit      bool
	ForceCommit bool
	NAT         bool
	Mark        uint32
	Helper      string
}

// Action is one type-tagged entry of an action list. Which fields are
// meaningful depends on Type; nested lists (clone) reference further
// actions.
type Action struct {
	Type ActionType

	// Port is the target datapath port for output and tunnel-pop.
	Port uint32

	// TunnelHeader holds the raw encapsulation bytes for tunnel-push.
	// The slice is owned by the caller and must outlive any hardware
	// flow referencing it.
	TunnelHeader []byte

	// Clone is the nested action list for clone.
	Clone []Action

	// CT is set for conntrack actions.
	CT *CTSpec

	// RecircID is the recirculation target for recirc.
	RecircID uint32
}

// Walk calls fn for each action in order, telling it whether the action
// is the last of the list. It stops early when fn returns false.
func Walk(actions []Action, fn func(a *Action, last bool) bool) {
	for i := range actions {
		if !fn(&actions[i], i == len(actions)-1) {
			return
		}
	}
}
