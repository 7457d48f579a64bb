package offload

import (
	"errors"
	"testing"

	"github.com/vswitchio/hwoffload/pkg/flow"
	"github.com/vswitchio/hwoffload/pkg/idpool"
)

func TestTunnelTableRefcount(t *testing.T) {
	tt := newTunnelTable(idpool.New(MinOuterID, MaxOuterID))
	info := flow.TunnelInfo{Src: 1, Dst: 2, ID: 42}

	id1, err := tt.Ref(info)
	if err != nil {
		t.Fatalf("Ref() = %v", err)
	}
	id2, err := tt.Ref(info)
	if err != nil {
		t.Fatalf("second Ref() = %v", err)
	}
	if id1 != id2 {
		t.Fatalf("same tunnel got ids %d and %d", id1, id2)
	}
	if rc := tt.refCountOf(info); rc != 2 {
		t.Errorf("refcount = %d, want 2", rc)
	}

	tt.Unref(info)
	if _, ok := tt.Lookup(id1); !ok {
		t.Error("id released while still referenced")
	}

	tt.Unref(info)
	if _, ok := tt.Lookup(id1); ok {
		t.Error("id still resolvable after last unref")
	}
	if tt.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", tt.InUse())
	}
}

func TestTunnelTableExhaustion(t *testing.T) {
	tt := newTunnelTable(idpool.New(1, 2))

	if _, err := tt.Ref(flow.TunnelInfo{ID: 1}); err != nil {
		t.Fatalf("Ref() = %v", err)
	}
	if _, err := tt.Ref(flow.TunnelInfo{ID: 2}); err != nil {
		t.Fatalf("Ref() = %v", err)
	}
	if _, err := tt.Ref(flow.TunnelInfo{ID: 3}); !errors.Is(err, ErrExhausted) {
		t.Fatalf("Ref() = %v, want ErrExhausted", err)
	}
	if tt.InUse() != 2 {
		t.Errorf("InUse() = %d after failed alloc, want 2", tt.InUse())
	}

	// Releasing one id makes room again.
	tt.Unref(flow.TunnelInfo{ID: 1})
	if _, err := tt.Ref(flow.TunnelInfo{ID: 3}); err != nil {
		t.Errorf("Ref() after release = %v", err)
	}
}

func TestTableIDMapDiscriminates(t *testing.T) {
	m := newTableIDMap(idpool.New(MinHWTableID, MaxHWTableID))

	recircHW, err := m.refRecirc(5)
	if err != nil {
		t.Fatalf("refRecirc() = %v", err)
	}
	portHW, err := m.refPort(5)
	if err != nil {
		t.Fatalf("refPort() = %v", err)
	}
	if recircHW == portHW {
		t.Fatal("recirc table 5 and port table 5 share a hardware id")
	}
	if recircHW < MinHWTableID || portHW < MinHWTableID {
		t.Errorf("dynamic ids %d, %d below %d", recircHW, portHW, MinHWTableID)
	}

	id, isPort, ok := m.swFromHW(portHW)
	if !ok || !isPort || id != 5 {
		t.Errorf("swFromHW(%d) = (%d, %v, %v), want (5, true, true)", portHW, id, isPort, ok)
	}
	id, isPort, ok = m.swFromHW(recircHW)
	if !ok || isPort || id != 5 {
		t.Errorf("swFromHW(%d) = (%d, %v, %v), want (5, false, true)", recircHW, id, isPort, ok)
	}
}

func TestTableIDExhaustion(t *testing.T) {
	m := newTableIDMap(idpool.New(64, 65))

	if _, err := m.refRecirc(1); err != nil {
		t.Fatalf("refRecirc() = %v", err)
	}
	if _, err := m.refRecirc(2); err != nil {
		t.Fatalf("refRecirc() = %v", err)
	}
	if _, err := m.refRecirc(3); !errors.Is(err, ErrExhausted) {
		t.Fatalf("refRecirc() = %v, want ErrExhausted", err)
	}
	if m.inUse() != 2 {
		t.Errorf("inUse() = %d after failed alloc, want 2", m.inUse())
	}

	m.unrefRecirc(1)
	hw, err := m.refRecirc(3)
	if err != nil {
		t.Fatalf("refRecirc() after release = %v", err)
	}
	if hw != 64 {
		t.Errorf("recycled hardware id = %d, want 64", hw)
	}
}

func TestMissStoreCTDirections(t *testing.T) {
	var s MissStore
	ct := CTContext{Zone: 3, State: flow.CTStateEstablished}

	existed, err := s.saveCT(7, "init-handle", 1, false, ct)
	if err != nil {
		t.Fatalf("saveCT(init) = %v", err)
	}
	if existed {
		t.Error("first direction reported an existing context")
	}
	existed, err = s.saveCT(7, "reply-handle", 2, true, ct)
	if err != nil {
		t.Fatalf("saveCT(reply) = %v", err)
	}
	if !existed {
		t.Error("second direction did not report the existing context")
	}
	if _, err := s.saveCT(7, "dup-handle", 3, false, ct); err == nil {
		t.Error("duplicate direction registration should fail")
	}

	ctx, ok := s.Find(7)
	if !ok || ctx.Kind != MissConntrack {
		t.Fatalf("Find(7) = %v, %v", ctx, ok)
	}
	if ctx.CT.Zone != 3 {
		t.Errorf("zone = %d, want 3", ctx.CT.Zone)
	}
	if ctx.CT.flows[dirInit] != "init-handle" || ctx.CT.flows[dirReply] != "reply-handle" {
		t.Error("direction handles not stored separately")
	}

	if _, ok := s.take(7); !ok {
		t.Fatal("take(7) found nothing")
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after take, want 0", s.Len())
	}
}
