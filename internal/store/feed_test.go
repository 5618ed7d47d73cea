package store

import "testing"

func TestFeedCoalesces(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(Change{Op: OpIncrement, Key: "/1"})
	f.Publish(Change{Op: OpIncrement, Key: "/2"})
	f.Publish(Change{Op: OpDelete, Key: "/3"})

	c := <-ch
	if c.Key != "/3" {
		t.Errorf("pending change key = %q, want /3", c.Key)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected second change %+v", extra)
	default:
	}
}

func TestFeedKeepsKeyedChangeOverMaintenance(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	defer cancel()

	f.Publish(Change{Op: OpIncrement, Key: "/1"})
	f.Publish(Change{Op: OpDecay, Rows: 4})
	f.Publish(Change{Op: OpPrune, Rows: 2})

	if c := <-ch; c.Op != OpIncrement || c.Key != "/1" {
		t.Errorf("pending change = %+v, want increment of /1", c)
	}

	f.Publish(Change{Op: OpPrune, Rows: 2})
	f.Publish(Change{Op: OpRename, Key: "/2"})
	if c := <-ch; c.Op != OpRename {
		t.Errorf("pending change = %+v, want rename", c)
	}
}

func TestFeedFanOut(t *testing.T) {
	f := NewFeed()
	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelA()
	defer cancelB()

	f.Publish(Change{Op: OpPrune, Rows: 3})
	if c := <-a; c.Rows != 3 {
		t.Errorf("a got %+v", c)
	}
	if c := <-b; c.Rows != 3 {
		t.Errorf("b got %+v", c)
	}
}

func TestFeedCancel(t *testing.T) {
	f := NewFeed()
	ch, cancel := f.Subscribe()
	if f.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", f.Subscribers())
	}

	cancel()
	cancel() // idempotent

	if f.Subscribers() != 0 {
		t.Errorf("Subscribers = %d, want 0", f.Subscribers())
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}

	// Publishing with no subscribers must not panic.
	f.Publish(Change{Op: OpDecay})
}
