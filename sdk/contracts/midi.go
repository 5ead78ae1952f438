package contracts

import "context"

// MIDI is one complete MIDI message bound to a port of the interface.
// Data holds the status byte followed by its data bytes; SysEx messages carry
// the whole F0 ... F7 run, or a fragment of it when the run was cut short.
type MIDI struct {
	Timestamp uint64 // Timestamp is the host time (ns) the USB transfer completed.
	Port      int    // Port is the 0-based MIDI port of the interface.
	Data      []byte // Data is the raw message.
}

// Status returns the status byte, or 0 for an empty message.
func (m MIDI) Status() byte {
	if len(m.Data) == 0 {
		return 0
	}
	return m.Data[0]
}

// Command returns the command nibble for channel messages (e.g. 0x90) and the
// full status byte for system messages.
func (m MIDI) Command() byte {
	s := m.Status()
	if s >= 0x80 && s < 0xF0 {
		return s & 0xF0
	}
	return s
}

// Channel returns the 0-based MIDI channel of a channel message.
func (m MIDI) Channel() byte {
	return m.Status() & 0x0F
}

// Note returns the first data byte (note number for note messages).
func (m MIDI) Note() byte {
	if len(m.Data) < 2 {
		return 0
	}
	return m.Data[1]
}

// Velocity returns the second data byte (velocity for note messages).
func (m MIDI) Velocity() byte {
	if len(m.Data) < 3 {
		return 0
	}
	return m.Data[2]
}

// IsSysEx reports whether the message is (part of) a system exclusive run.
func (m MIDI) IsSysEx() bool {
	s := m.Status()
	return s == 0xF0 || (len(m.Data) > 0 && s < 0x80)
}

// Receiver is the per-port sink for decoded input. It is called once per run of
// consecutive messages from the same port, in arrival order.
type Receiver interface {
	Received(port int, timestamp uint64, msgs []MIDI)
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(port int, timestamp uint64, msgs []MIDI)

// Received calls f(port, timestamp, msgs).
func (f ReceiverFunc) Received(port int, timestamp uint64, msgs []MIDI) {
	f(port, timestamp, msgs)
}

// ClientMIDI defines the host side of the bridge: the operating system's MIDI
// services, from which messages are captured and to which device input is forwarded.
type ClientMIDI interface {
	Stop() error                         // Stops the MIDI client and releases resources.
	ListDevices() ([]DeviceInfo, error)  // Lists all available MIDI sources.
	SelectDevice(deviceID int) error     // Selects a MIDI source by its ID for capture.
	StartCapture(eventChannel chan MIDI) // Starts capturing MIDI events and sends them to the specified channel.
	ListOutputs() ([]DeviceInfo, error)  // Lists all available MIDI destinations.
	SelectOutput(deviceID int) error     // Selects the MIDI destination used by Send.
	Send(msg MIDI) error                 // Sends one message to the selected destination.
}

// Driver is the USB side of the bridge: an attached MIDISPORT interface.
type Driver interface {
	Run(ctx context.Context) error       // Attaches to the device and services it until ctx ends.
	Send(msg MIDI) error                 // Queues msg for output on msg.Port.
	StartCapture(eventChannel chan MIDI) // Delivers device input to eventChannel.
	StopCapture(eventChannel chan MIDI)  // Stops delivering device input to eventChannel.
	Ports() []PortInfo                   // Lists the ports of the attached device.
	Close() error                        // Detaches from the device.
}
