package codec

import (
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// Encoder is the Output Multiplexer. It packs queued messages into the
// device's transmit buffers.
type Encoder struct {
	Format contracts.WireFormat
	Logger contracts.Logger

	// MaxGroupsPerPort caps the groups one port may place in a single fill.
	// Zero means no limit.
	MaxGroupsPerPort int
}

// PrepareOutput fills bufs from the head of q and returns the byte count
// written to each buffer; a count of 0 means nothing to send on that pipe.
// With two buffers, even ports go to the first and odd ports to the second.
// A message that does not fit stays at the head of q with its cursor advanced,
// and the next call resumes exactly there.
func (e *Encoder) PrepareOutput(q *WriteQueue, bufs ...[]byte) []int {
	counts := make([]int, len(bufs))
	if len(bufs) == 0 {
		return counts
	}
	var perPort [contracts.MaxPorts]int

fill:
	for q.Len() > 0 {
		el := q.Front()
		bi := e.bufferFor(el.Port, len(bufs))
		buf := bufs[bi]
		port := el.Port & 0x0F

		for el.BytesSent < len(el.Data) {
			if counts[bi]+contracts.GroupSize > len(buf) {
				break fill
			}
			if e.MaxGroupsPerPort > 0 && perPort[port] >= e.MaxGroupsPerPort {
				break fill
			}

			payload, skip := nextGroup(el.Remaining())
			if skip > 0 {
				e.Logger.Debug("Skipping undefined status in output",
					e.Logger.Field().Int("port", el.Port),
					e.Logger.Field().Uint8("status", el.Data[el.BytesSent]),
					e.Logger.Field().Int("bytes", skip))
				el.BytesSent += skip
				continue
			}

			g := buf[counts[bi] : counts[bi]+contracts.GroupSize]
			n := e.putGroup(g, port, payload)
			el.BytesSent += n
			counts[bi] += contracts.GroupSize
			perPort[port]++
		}
		if el.BytesSent >= len(el.Data) {
			q.PopFront()
		}
	}

	// A null group marks the end of the transfer on every pipe that has
	// data and room for it.
	for i, buf := range bufs {
		if counts[i] > 0 && counts[i]+contracts.GroupSize <= len(buf) {
			clear(buf[counts[i] : counts[i]+contracts.GroupSize])
			counts[i] += contracts.GroupSize
		}
	}
	return counts
}

func (e *Encoder) bufferFor(port, n int) int {
	if n > 1 && e.Format == contracts.WireFormatMultiplexed {
		return port & 1
	}
	return 0
}

// putGroup frames payload into g and returns how many payload bytes it used.
func (e *Encoder) putGroup(g []byte, port int, payload []byte) int {
	clear(g)
	if e.Format == contracts.WireFormatClassCompliant {
		cin, n := classCIN(payload)
		g[0] = byte(port)<<4 | cin
		copy(g[1:], payload[:n])
		return n
	}
	copy(g[:3], payload)
	g[3] = byte(port)<<4 | byte(len(payload))
	return len(payload)
}

// nextGroup returns the bytes of src that belong in the next group. When src
// starts with an undefined status, payload is nil and skip counts the status
// and the data bytes following it.
func nextGroup(src []byte) (payload []byte, skip int) {
	c := src[0]
	switch {
	case !IsStatus(c):
		return src[:sysExRun(src, 3)], 0
	case c == StatusSysEx:
		return src[:1+sysExRun(src[1:], 2)], 0
	case c == StatusEOX || c == StatusTuneRequest || IsRealTime(c):
		if _, err := DataBytesFollowing(c); err == nil {
			return src[:1], 0
		}
	}

	want, err := DataBytesFollowing(c)
	if err != nil {
		if IsRealTime(c) {
			return nil, 1
		}
		skip = 1
		for skip < len(src) && !IsStatus(src[skip]) {
			skip++
		}
		return nil, skip
	}
	n := 1
	for n <= want && n < len(src) && !IsStatus(src[n]) {
		n++
	}
	return src[:n], 0
}

// sysExRun counts up to limit leading bytes of src that are data bytes, stopping
// after a terminating EOX.
func sysExRun(src []byte, limit int) int {
	n := 0
	for n < limit && n < len(src) {
		b := src[n]
		if b == StatusEOX {
			return n + 1
		}
		if IsStatus(b) {
			break
		}
		n++
	}
	return n
}
