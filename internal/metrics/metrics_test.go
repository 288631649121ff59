package metrics

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestRunLogsWhenActive(t *testing.T) {
	c := &Counters{}
	c.EnvelopesSent.Store(10)
	c.BytesSent.Store(5000)

	var mu sync.Mutex
	var lines []string
	logf := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, c, 20*time.Millisecond, logf)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(lines) == 0 {
		t.Fatal("expected at least one metrics line for active counters")
	}
}

func TestRunSilentWhenEmpty(t *testing.T) {
	c := &Counters{}

	var mu sync.Mutex
	var lines []string
	logf := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, c, 20*time.Millisecond, logf)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 0 {
		t.Fatalf("expected no output for idle counters, got %v", lines)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	c := &Counters{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, c, 10*time.Millisecond, func(string) {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunLogsReconnectsEvenWithoutTraffic(t *testing.T) {
	c := &Counters{}
	c.Reconnects.Store(1)

	var mu sync.Mutex
	var lines []string
	logf := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, line)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, c, 20*time.Millisecond, logf)
		close(done)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(lines) == 0 {
		t.Fatal("expected a metrics line when reconnects changed even without traffic")
	}
}
