package flow

import "testing"

func TestEthMasked(t *testing.T) {
	var m Match
	if m.EthMasked() {
		t.Error("empty match reports l2 constraint")
	}
	m.Mask.EthDst = [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	if !m.EthMasked() {
		t.Error("dst-masked match reports no l2 constraint")
	}
}

func TestTunnelMasked(t *testing.T) {
	var m Match

	// A masked field with a zero value is still no constraint.
	m.Mask.Tunnel.Dst = 0xffffffff
	if m.TunnelMasked() {
		t.Error("zero-valued tunnel field counts as constraint")
	}

	m.Flow.Tunnel.Dst = 0x0a000001
	if !m.TunnelMasked() {
		t.Error("masked tunnel destination not detected")
	}

	// Value without mask bits does not constrain either.
	m.Mask.Tunnel.Dst = 0
	if m.TunnelMasked() {
		t.Error("unmasked tunnel value counts as constraint")
	}
}

func TestWalk(t *testing.T) {
	actions := []Action{
		{Type: ActionOutput, Port: 1},
		{Type: ActionOutput, Port: 2},
		{Type: ActionOutput, Port: 3},
	}

	var seen []uint32
	var lastFlags []bool
	Walk(actions, func(a *Action, last bool) bool {
		seen = append(seen, a.Port)
		lastFlags = append(lastFlags, last)
		return true
	})
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Errorf("walked %v, want ports 1 2 3", seen)
	}
	if lastFlags[0] || lastFlags[1] || !lastFlags[2] {
		t.Errorf("last flags = %v, want only final true", lastFlags)
	}

	// Early stop.
	var count int
	Walk(actions, func(*Action, bool) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("walked %d actions after stop, want 1", count)
	}
}

func TestUFIDString(t *testing.T) {
	u := UFID{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	want := "12345678-9abc-def0-0000-000000000000"
	if got := u.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if u.IsZero() {
		t.Error("non-zero ufid reports zero")
	}
	if !(UFID{}).IsZero() {
		t.Error("zero ufid not detected")
	}
}
