package codec

// DefaultRunningStatus is assumed for data bytes that arrive on a port before
// any channel status has been seen.
const DefaultRunningStatus byte = 0x90

// Phase is the position of a port's parser within the MIDI byte stream.
type Phase int

const (
	AwaitingStatus Phase = iota
	InMessage
	InSysEx
)

func (p Phase) String() string {
	switch p {
	case AwaitingStatus:
		return "awaiting-status"
	case InMessage:
		return "in-message"
	case InSysEx:
		return "in-sysex"
	}
	return "unknown"
}

// PortState is the parser state of one input port. The session owns one per
// port and hands the slice to Decoder.HandleInput; it is never shared across
// ports or devices.
type PortState struct {
	// RunningStatus is the last channel status seen on the port.
	RunningStatus byte
	// InSysEx is set between F0 and the byte that ends the run.
	InSysEx bool
	// Remaining counts data bytes still expected by the current message.
	Remaining int

	skipping bool
	msg      []byte
}

// NewPortStates returns n freshly reset port states.
func NewPortStates(n int) []PortState {
	states := make([]PortState, n)
	for i := range states {
		states[i].Reset()
	}
	return states
}

// Reset returns the port to AwaitingStatus and discards any partial message.
func (s *PortState) Reset() {
	*s = PortState{RunningStatus: DefaultRunningStatus, msg: s.msg[:0]}
}

// Phase reports where the parser stands.
func (s *PortState) Phase() Phase {
	switch {
	case s.Remaining > 0:
		return InMessage
	case s.InSysEx:
		return InSysEx
	}
	return AwaitingStatus
}

// Pending returns a copy of the bytes of the message being assembled.
func (s *PortState) Pending() []byte {
	return append([]byte(nil), s.msg...)
}
