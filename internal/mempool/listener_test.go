package mempool

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/metrics"
)

// tagged appends its tag to a shared log on every Added call.
type tagged struct {
	NoopListener
	tag string
	log *[]string
}

func (l tagged) Added(_, _ *Transaction) { *l.log = append(*l.log, l.tag) }

func TestMultiListenerOrder(t *testing.T) {
	var calls []string
	multi := MultiListener{tagged{tag: "first", log: &calls}, tagged{tag: "second", log: &calls}, NewLogListener()}
	p := New(DefaultOptions, nil, nil, multi)
	mustImport(t, p, makeTx(1, 0, 10))

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("calls = %v, want [first second]", calls)
	}
}

func TestFeedListener(t *testing.T) {
	feed := NewFeedListener()
	defer feed.Close()
	events := make(chan TxEvent, 8)
	sub := feed.Subscribe(events)
	defer sub.Unsubscribe()

	p := New(DefaultOptions, nil, nil, feed)
	a, d := makeTx(1, 0, 10), makeTx(1, 0, 20)
	mustImport(t, p, a, d)
	p.Mined(d.Hash())

	want := []struct {
		kind  EventKind
		tx    *Transaction
		other *Transaction
	}{
		{EventAdded, a, nil},
		{EventAdded, d, a},
		{EventMined, d, nil},
	}
	for i, w := range want {
		select {
		case ev := <-events:
			if ev.Kind != w.kind || ev.Tx != w.tx || ev.Other != w.other {
				t.Errorf("event %d = %v, want %v", i, ev.Kind, w.kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not delivered", i)
		}
	}
}

func TestRejectionCache(t *testing.T) {
	cache, err := NewRejectionCache(2)
	if err != nil {
		t.Fatalf("NewRejectionCache: %v", err)
	}
	p := New(Options{MaxCount: 1, MaxPerSender: 16, MaxMemUsage: 1 << 20}, nil, nil, cache)

	a, b, c := makeTx(1, 0, 10), makeTx(2, 0, 5), makeTx(3, 0, 20)
	mustImport(t, p, a)
	if _, err := p.ImportVerified(b); !errors.Is(err, ErrTooCheapToEnter) {
		t.Fatalf("err = %v, want ErrTooCheapToEnter", err)
	}
	reason, ok := cache.Reason(b.Hash())
	if !ok || !strings.Contains(reason, "too cheap") {
		t.Errorf("Reason(b) = %q, %v", reason, ok)
	}

	mustImport(t, p, c)
	if reason, ok := cache.Reason(a.Hash()); !ok || !strings.Contains(reason, "dropped") {
		t.Errorf("Reason(a) = %q, %v, want dropped", reason, ok)
	}
	if _, ok := cache.Reason(c.Hash()); ok {
		t.Error("admitted transaction has a rejection reason")
	}

	// Re-admission clears the record
	p.Remove(c.Hash())
	mustImport(t, p, a)
	if _, ok := cache.Reason(a.Hash()); ok {
		t.Error("reason kept after re-admission")
	}

	if _, err := NewRejectionCache(0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestMetricsListener(t *testing.T) {
	metrics.Enabled = true
	defer func() { metrics.Enabled = false }()

	reg := metrics.NewRegistry()
	p := New(DefaultOptions, nil, nil, NewMetricsListener(reg))
	a := makeTx(1, 0, 10)
	mustImport(t, p, a, makeTx(1, 0, 20), makeTx(2, 0, 10))
	p.ImportVerified(makeTx(1, 0, 5))

	gauges := NewStatusGauges(reg)
	gauges.Update(p.LightStatus())

	meter := func(name string) int64 {
		m, ok := reg.Get(name).(metrics.Meter)
		if !ok {
			t.Fatalf("meter %s not registered", name)
		}
		return m.Snapshot().Count()
	}
	if got := meter("txpool/added"); got != 2 {
		t.Errorf("added = %d, want 2", got)
	}
	if got := meter("txpool/replaced"); got != 1 {
		t.Errorf("replaced = %d, want 1", got)
	}
	if got := meter("txpool/rejected"); got != 1 {
		t.Errorf("rejected = %d, want 1", got)
	}
	if g, ok := reg.Get("txpool/count").(metrics.Gauge); !ok || g.Snapshot().Value() != 2 {
		t.Error("txpool/count gauge not updated")
	}
}
