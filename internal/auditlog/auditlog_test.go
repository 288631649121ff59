package auditlog

import "testing"

func newMemLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestMigrationsApplied(t *testing.T) {
	l := newMemLog(t)

	var current int
	if err := l.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		t.Fatalf("query schema_migrations: %v", err)
	}
	if current != len(migrations) {
		t.Fatalf("schema version = %d, want %d", current, len(migrations))
	}
}

func TestAppendAndCount(t *testing.T) {
	l := newMemLog(t)

	err := l.Append(Record{
		Direction:  DirectionInbound,
		Kind:       "tell",
		From:       "bob@AckerMUD",
		To:         "carol@LocalMUD",
		EnvelopeID: "abc-123",
		Raw:        `{"type":"tell"}`,
		CreatedAt:  1000,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	n, err := l.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count() = %d, want 1", n)
	}
}

func TestRecentByKindOrdersNewestFirst(t *testing.T) {
	l := newMemLog(t)

	for i, ts := range []int64{100, 200, 300} {
		if err := l.Append(Record{
			Direction: DirectionOutbound,
			Kind:      "channel",
			Raw:       "payload",
			CreatedAt: ts,
		}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	// Unrelated kind shouldn't show up in the filtered query.
	if err := l.Append(Record{Direction: DirectionOutbound, Kind: "who", Raw: "x", CreatedAt: 150}); err != nil {
		t.Fatalf("Append who: %v", err)
	}

	recs, err := l.RecentByKind("channel", 10)
	if err != nil {
		t.Fatalf("RecentByKind: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("len(recs) = %d, want 3", len(recs))
	}
	if recs[0].CreatedAt != 300 || recs[1].CreatedAt != 200 || recs[2].CreatedAt != 100 {
		t.Fatalf("records not newest-first: %+v", recs)
	}
}

func TestRecentByKindRespectsLimit(t *testing.T) {
	l := newMemLog(t)
	for i := 0; i < 5; i++ {
		if err := l.Append(Record{Direction: DirectionInbound, Kind: "ping", Raw: "x", CreatedAt: int64(i)}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	recs, err := l.RecentByKind("ping", 2)
	if err != nil {
		t.Fatalf("RecentByKind: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
}
