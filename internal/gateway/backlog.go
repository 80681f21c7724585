package gateway

import (
	"strconv"
	"time"
)

// backlog numbers the envelopes of one channel ("report:BTC-EUR",
// "trade:BTC-EUR") and keeps the newest of them for clients that reconnect
// with ?since=N. Sequence numbers are contiguous from 1, so an envelope's
// slot in the ring is seq % len(ring). Guarded by Hub.mu.
type backlog struct {
	channel string
	ring    [][]byte
	next    int64 // seq of the next envelope
}

func newBacklog(channel string, capacity int) *backlog {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &backlog{channel: channel, ring: make([][]byte, capacity), next: 1}
}

// append wraps data in the channel's next envelope, keeps it and returns it.
func (b *backlog) append(data []byte, now time.Time) []byte {
	env := buildEnvelope(b.channel, data, now, b.next)
	b.ring[b.slot(b.next)] = env
	b.next++
	return env
}

// last is the newest envelope, nil before the first append.
func (b *backlog) last() []byte {
	if b.next == 1 {
		return nil
	}
	return b.ring[b.slot(b.next-1)]
}

// since returns the kept envelopes with seq > after, oldest first. Envelopes
// already pushed out of the ring are gone.
func (b *backlog) since(after int64) [][]byte {
	from := b.next - int64(len(b.ring))
	if from < after+1 {
		from = after + 1
	}
	if from < 1 {
		from = 1
	}
	if from >= b.next {
		return nil
	}
	out := make([][]byte, 0, b.next-from)
	for seq := from; seq < b.next; seq++ {
		out = append(out, b.ring[b.slot(seq)])
	}
	return out
}

func (b *backlog) slot(seq int64) int { return int(seq % int64(len(b.ring))) }

// buildEnvelope hand-crafts {"channel":..,"data":..,"ts":..,"seq":..}.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
