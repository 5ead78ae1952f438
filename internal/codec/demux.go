package codec

import (
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// InputSummary reports what one call to HandleInput consumed.
type InputSummary struct {
	Groups     int  // wire groups carrying data
	Messages   int  // messages delivered to the sink
	Dropped    int  // bytes discarded while resynchronizing
	Terminated bool // a null group ended the transfer early
}

// Decoder is the Input Demultiplexer. It holds no per-port state of its own:
// the caller passes the port states in, so several devices never interfere.
type Decoder struct {
	Format contracts.WireFormat
	Sink   contracts.Receiver
	Logger contracts.Logger

	// SysExChunkSize, when positive, delivers long SysEx runs in fragments of
	// this many bytes instead of one message.
	SysExChunkSize int
}

// run collects the completed messages of the port currently being scanned.
type run struct {
	port    int
	ts      uint64
	out     []contracts.MIDI
	dropped int
}

func (r *run) emit(data []byte) {
	r.out = append(r.out, contracts.MIDI{
		Timestamp: r.ts,
		Port:      r.port,
		Data:      append([]byte(nil), data...),
	})
}

// HandleInput scans one completed USB read and delivers the decoded messages
// to the sink, one call per run of groups from the same port. Messages that are
// still incomplete at the end of buf stay in states for the next call.
func (d *Decoder) HandleInput(states []PortState, buf []byte, timestamp uint64) InputSummary {
	var sum InputSummary
	r := run{ts: timestamp}
	prev := -1

	for off := 0; off+contracts.GroupSize <= len(buf); off += contracts.GroupSize {
		port, payload, ok := d.unpack(buf[off : off+contracts.GroupSize])
		if !ok {
			sum.Terminated = true
			break
		}
		sum.Groups++

		if port >= len(states) {
			d.Logger.Warn("Dropping group for unknown port",
				d.Logger.Field().Int("port", port),
				d.Logger.Field().Int("ports", len(states)))
			r.dropped += len(payload)
			continue
		}

		if prev != -1 && port != prev {
			// A port switch ends the previous port's SysEx run.
			d.truncateSysEx(&states[prev], &r)
			sum.Messages += d.flush(&r)
		}
		prev = port
		r.port = port

		for _, b := range payload {
			d.feed(&states[port], b, &r)
		}
	}

	if rem := len(buf) % contracts.GroupSize; rem != 0 && !sum.Terminated {
		d.Logger.Debug("Ignoring trailing partial group", d.Logger.Field().Int("bytes", rem))
	}
	if prev != -1 {
		sum.Messages += d.flush(&r)
	}
	sum.Dropped = r.dropped
	return sum
}

func (d *Decoder) flush(r *run) int {
	n := len(r.out)
	if n == 0 {
		return 0
	}
	if d.Sink != nil {
		d.Sink.Received(r.port, r.ts, r.out)
	}
	r.out = nil
	return n
}

// unpack extracts port and payload from one group; ok is false for the
// end-of-transfer sentinel.
func (d *Decoder) unpack(g []byte) (port int, payload []byte, ok bool) {
	if d.Format == contracts.WireFormatClassCompliant {
		if g[0] == 0 {
			return 0, nil, false
		}
		return int(g[0] >> 4), g[1 : 1+cinLength[g[0]&0x0F]], true
	}

	n := int(g[3] & 0x0F)
	if n == 0 {
		return 0, nil, false
	}
	if n > 3 {
		d.Logger.Debug("Clamping oversized group count", d.Logger.Field().Int("count", n))
		n = 3
	}
	return int(g[3] >> 4), g[:n], true
}

func (d *Decoder) feed(s *PortState, b byte, r *run) {
	if IsStatus(b) {
		d.status(s, b, r)
		return
	}

	switch {
	case s.Remaining > 0:
		s.msg = append(s.msg, b)
		s.Remaining--
		if s.Remaining == 0 {
			r.emit(s.msg)
			s.msg = s.msg[:0]
		}
	case s.InSysEx:
		s.msg = append(s.msg, b)
		if d.SysExChunkSize > 0 && len(s.msg) >= d.SysExChunkSize {
			r.emit(s.msg)
			s.msg = s.msg[:0]
		}
	case s.skipping:
		r.dropped++
	default:
		// Status omitted: inherit the port's running status.
		n, err := DataBytesFollowing(s.RunningStatus)
		if err != nil || n < 1 {
			r.dropped++
			return
		}
		s.msg = append(s.msg[:0], s.RunningStatus, b)
		s.Remaining = n - 1
		if s.Remaining == 0 {
			r.emit(s.msg)
			s.msg = s.msg[:0]
		}
	}
}

func (d *Decoder) status(s *PortState, b byte, r *run) {
	n, err := DataBytesFollowing(b)
	if err != nil {
		r.dropped++
		d.Logger.Debug("Skipping undefined status byte",
			d.Logger.Field().Int("port", r.port),
			d.Logger.Field().Uint8("status", b))
		if !IsRealTime(b) {
			d.abandon(s, r)
			s.skipping = true
		}
		return
	}

	// Real-time bytes complete on their own and leave the interrupted
	// message exactly where it was.
	if IsRealTime(b) {
		r.emit([]byte{b})
		return
	}

	switch b {
	case StatusEOX:
		if s.InSysEx {
			s.msg = append(s.msg, b)
			r.emit(s.msg)
			s.msg = s.msg[:0]
			s.InSysEx = false
			return
		}
		d.abandon(s, r)
		r.emit([]byte{b})
		return
	case StatusSysEx:
		d.abandon(s, r)
		s.InSysEx = true
		s.msg = append(s.msg[:0], b)
		return
	}

	d.abandon(s, r)
	if IsChannelStatus(b) {
		s.RunningStatus = b
	}
	s.msg = append(s.msg[:0], b)
	s.Remaining = n
	if n == 0 {
		r.emit(s.msg)
		s.msg = s.msg[:0]
	}
}

// abandon ends whatever the port was assembling because a new status arrived.
// An open SysEx run is delivered as an unterminated fragment; an incomplete
// channel or common message is dropped.
func (d *Decoder) abandon(s *PortState, r *run) {
	d.truncateSysEx(s, r)
	if s.Remaining > 0 {
		r.dropped += len(s.msg)
		s.Remaining = 0
	}
	s.msg = s.msg[:0]
	s.skipping = false
}

func (d *Decoder) truncateSysEx(s *PortState, r *run) {
	if !s.InSysEx {
		return
	}
	if len(s.msg) > 0 {
		r.emit(s.msg)
	}
	s.msg = s.msg[:0]
	s.InSysEx = false
}

// HandleBytes parses an unframed MIDI byte stream for one port, as delivered
// by host MIDI services, and delivers the completed messages in one call.
func (d *Decoder) HandleBytes(state *PortState, port int, data []byte, timestamp uint64) InputSummary {
	r := run{port: port, ts: timestamp}
	for _, b := range data {
		d.feed(state, b, &r)
	}
	sum := InputSummary{Dropped: r.dropped}
	sum.Messages = d.flush(&r)
	return sum
}
