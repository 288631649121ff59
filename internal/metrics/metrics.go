// Package metrics implements the periodic traffic summary (§4.12: EXPANSION
// item 12), a ticker-driven goroutine that logs counters at a fixed
// interval, only when there is something to report.
//
// Grounded directly on the teacher's server.RunMetrics (server/metrics.go):
// same ticker/select/ctx.Done shape, same "stay silent when nothing
// happened" rule. Byte and rate figures are rendered with
// github.com/dustin/go-humanize instead of the teacher's hand-rolled
// "%.1f KB/s", since that library is already part of the dependency set
// (cmd/meshdemo's timestamp formatting) and the teacher repo has no objection to
// humanize elsewhere in the stack.
package metrics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Counters tracks cumulative mesh traffic. Zero value is ready to use.
type Counters struct {
	EnvelopesSent     atomic.Int64
	EnvelopesReceived atomic.Int64
	BytesSent         atomic.Int64
	BytesReceived     atomic.Int64
	Reconnects        atomic.Int64
	RateLimited       atomic.Int64
}

// snapshot is an immutable read of Counters at one instant.
type snapshot struct {
	envelopesSent, envelopesReceived int64
	bytesSent, bytesReceived         int64
	reconnects, rateLimited          int64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		envelopesSent:     c.EnvelopesSent.Load(),
		envelopesReceived: c.EnvelopesReceived.Load(),
		bytesSent:         c.BytesSent.Load(),
		bytesReceived:     c.BytesReceived.Load(),
		reconnects:        c.Reconnects.Load(),
		rateLimited:       c.RateLimited.Load(),
	}
}

// LogFunc receives one formatted metrics line per active interval.
type LogFunc func(line string)

// Run logs a traffic summary every interval until ctx is cancelled. It stays
// silent for intervals with no activity at all, mirroring the teacher's
// "only log when clients > 0 || datagrams > 0" guard.
func Run(ctx context.Context, c *Counters, interval time.Duration, logf LogFunc) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var prev snapshot
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := c.snapshot()
			sentDelta := cur.envelopesSent - prev.envelopesSent
			recvDelta := cur.envelopesReceived - prev.envelopesReceived
			bytesDelta := cur.bytesSent - prev.bytesSent + cur.bytesReceived - prev.bytesReceived
			if sentDelta > 0 || recvDelta > 0 || cur.reconnects != prev.reconnects {
				rate := float64(bytesDelta) / interval.Seconds()
				logf(formatLine(sentDelta, recvDelta, bytesDelta, rate, cur))
			}
			prev = cur
		}
	}
}

func formatLine(sentDelta, recvDelta, bytesDelta int64, rate float64, cur snapshot) string {
	return "sent=" + humanize.Comma(sentDelta) +
		" received=" + humanize.Comma(recvDelta) +
		" bytes=" + humanize.Bytes(uint64(maxInt64(bytesDelta, 0))) +
		" rate=" + humanize.Bytes(uint64(maxInt64(int64(rate), 0))) + "/s" +
		" reconnects=" + humanize.Comma(cur.reconnects) +
		" rate_limited=" + humanize.Comma(cur.rateLimited)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
