package rteflow

import "testing"

func TestPatternBuilderGrowth(t *testing.T) {
	var b PatternBuilder
	for i := 0; i < 20; i++ {
		b.Add(ItemEth, nil, nil)
	}
	b.End()

	items := b.Items()
	if len(items) != 21 {
		t.Fatalf("expected 21 items, got %d", len(items))
	}
	if items[20].Type != ItemEnd {
		t.Errorf("last item is %v, want end", items[20].Type)
	}
}

func TestActionBuilderRSSQueues(t *testing.T) {
	var b ActionBuilder
	b.AddRSS(4)

	actions := b.Actions()
	if len(actions) != 1 || actions[0].Type != ActionRSS {
		t.Fatalf("unexpected actions %v", actions)
	}
	conf := actions[0].Conf.(*RSSConf)
	if len(conf.Queues) != 4 {
		t.Fatalf("expected 4 queues, got %d", len(conf.Queues))
	}
	for i, q := range conf.Queues {
		if q != uint16(i) {
			t.Errorf("queue[%d] = %d", i, q)
		}
	}
}

func TestBuilderReset(t *testing.T) {
	var b ActionBuilder
	b.Add(ActionCount, nil)
	b.Add(ActionPortID, &PortIDConf{ID: 3})
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("len after reset = %d", b.Len())
	}
	b.End()
	if got := b.Actions(); len(got) != 1 || got[0].Type != ActionEnd {
		t.Errorf("unexpected actions after reset: %v", got)
	}
}

func TestFakeDriverDestroyTwice(t *testing.T) {
	d := NewFakeDriver()
	nd := fakeNetdev{name: "p0"}
	f, err := d.CreateFlow(nd, &Attr{Ingress: true}, nil, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.DestroyFlow(nd, f); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := d.DestroyFlow(nd, f); err == nil {
		t.Error("second destroy should fail")
	}
	if d.LiveCount() != 0 {
		t.Errorf("live count = %d", d.LiveCount())
	}
}

type fakeNetdev struct{ name string }

func (n fakeNetdev) Name() string { return n.name }
func (n fakeNetdev) Kind() string { return "dpdk" }
