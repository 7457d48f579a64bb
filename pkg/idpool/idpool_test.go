package idpool

import "testing"

func TestAllocSequential(t *testing.T) {
	p := New(1, 5)
	for want := uint32(1); want <= 5; want++ {
		id, ok := p.Alloc()
		if !ok {
			t.Fatalf("alloc %d failed", want)
		}
		if id != want {
			t.Errorf("expected id %d, got %d", want, id)
		}
	}
	if _, ok := p.Alloc(); ok {
		t.Error("expected exhaustion after 5 allocs")
	}
}

func TestExhaustionDoesNotCorruptFreeList(t *testing.T) {
	p := New(1, 3)
	ids := make([]uint32, 0, 3)
	for i := 0; i < 3; i++ {
		id, ok := p.Alloc()
		if !ok {
			t.Fatalf("alloc %d failed", i)
		}
		ids = append(ids, id)
	}

	// One past the range must fail cleanly.
	if _, ok := p.Alloc(); ok {
		t.Fatal("expected exhaustion")
	}

	// Releases after exhaustion must still be reusable.
	p.Free(ids[1])
	id, ok := p.Alloc()
	if !ok {
		t.Fatal("alloc after free failed")
	}
	if id != ids[1] {
		t.Errorf("expected recycled id %d, got %d", ids[1], id)
	}
}

func TestFreeReuseOrder(t *testing.T) {
	p := New(10, 20)
	a, _ := p.Alloc()
	b, _ := p.Alloc()
	p.Free(a)
	p.Free(b)

	got, _ := p.Alloc()
	if got != a {
		t.Errorf("expected FIFO reuse of %d, got %d", a, got)
	}
}

func TestInUse(t *testing.T) {
	p := New(1, 100)
	if p.InUse() != 0 {
		t.Fatalf("fresh pool InUse = %d", p.InUse())
	}
	a, _ := p.Alloc()
	p.Alloc()
	if p.InUse() != 2 {
		t.Errorf("InUse = %d, want 2", p.InUse())
	}
	p.Free(a)
	if p.InUse() != 1 {
		t.Errorf("InUse = %d, want 1", p.InUse())
	}
}
