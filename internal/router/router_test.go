package router

import "testing"

func TestRouteDispatchesTell(t *testing.T) {
	var gotFrom, gotTo string
	r := New(Handlers{
		OnTell: func(id, fromMUD, fromUser, toUser string, payload []byte) {
			gotFrom, gotTo = fromUser, toUser
		},
	})
	r.Route("tell", "id1", "AckerMUD", "bob", "carol", "", []byte("hi"))
	if gotFrom != "bob" || gotTo != "carol" {
		t.Fatalf("got from=%q to=%q", gotFrom, gotTo)
	}
}

func TestRouteNilHandlerDoesNotPanic(t *testing.T) {
	r := New(Handlers{})
	r.Route("tell", "id1", "AckerMUD", "bob", "carol", "", []byte("hi"))
}

func TestRouteDispatchesEachKnownKind(t *testing.T) {
	var called []string
	r := New(Handlers{
		OnTell:     func(string, string, string, string, []byte) { called = append(called, "tell") },
		OnEmote:    func(string, string, string, []byte) { called = append(called, "emote") },
		OnEmoteTo:  func(string, string, string, string, []byte) { called = append(called, "emoteto") },
		OnChannel:  func(string, string, string, string, []byte) { called = append(called, "channel") },
		OnWho:      func(string, string, []byte) { called = append(called, "who") },
		OnFinger:   func(string, string, []byte) { called = append(called, "finger") },
		OnLocate:   func(string, string, []byte) { called = append(called, "locate") },
		OnPresence: func(string, string, []byte) { called = append(called, "presence") },
		OnAuth:     func(string, string, []byte) { called = append(called, "auth") },
		OnPing:     func(string, string, []byte) { called = append(called, "ping") },
		OnPong:     func(string, string, []byte) { called = append(called, "pong") },
		OnError:    func(string, string, []byte) { called = append(called, "error") },
	})

	kinds := []string{"tell", "emote", "emoteto", "channel", "who", "finger", "locate", "presence", "auth", "ping", "pong", "error"}
	for _, k := range kinds {
		r.Route(k, "id", "AckerMUD", "bob", "carol", "gossip", nil)
	}
	if len(called) != len(kinds) {
		t.Fatalf("called %d handlers, want %d: %v", len(called), len(kinds), called)
	}
}

func TestRouteFallsBackToUnknown(t *testing.T) {
	var gotKind string
	r := New(Handlers{Unknown: func(kind, id, fromMUD string, payload []byte) { gotKind = kind }})
	r.Route("bogus", "id", "AckerMUD", "", "", "", nil)
	if gotKind != "bogus" {
		t.Fatalf("gotKind = %q, want bogus", gotKind)
	}
}

func TestCorrelatorRegisterAndResolve(t *testing.T) {
	c := NewCorrelator()
	c.Register("req-1", "who", 0)
	kind, ok := c.Resolve("req-1")
	if !ok || kind != "who" {
		t.Fatalf("Resolve = (%q, %v), want (who, true)", kind, ok)
	}
	if _, ok := c.Resolve("req-1"); ok {
		t.Fatal("expected a second Resolve of the same id to fail")
	}
}

func TestCorrelatorResolveUnknownID(t *testing.T) {
	c := NewCorrelator()
	if _, ok := c.Resolve("nope"); ok {
		t.Fatal("expected Resolve of an unregistered id to fail")
	}
}

func TestCorrelatorSweepExpiresOldRequests(t *testing.T) {
	c := NewCorrelator()
	c.Register("req-1", "finger", 0)
	c.Register("req-2", "locate", 20)

	expired := c.SweepExpired(30)
	if len(expired) != 1 || expired[0] != "req-1" {
		t.Fatalf("expired = %v, want [req-1]", expired)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}

	expired = c.SweepExpired(50)
	if len(expired) != 1 || expired[0] != "req-2" {
		t.Fatalf("expired = %v, want [req-2]", expired)
	}
	if c.Pending() != 0 {
		t.Fatalf("Pending() = %d, want 0", c.Pending())
	}
}

func TestCorrelatorSweepKeepsFreshRequests(t *testing.T) {
	c := NewCorrelator()
	c.Register("req-1", "who", 0)
	expired := c.SweepExpired(10)
	if len(expired) != 0 {
		t.Fatalf("expired = %v, want none", expired)
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}
}
