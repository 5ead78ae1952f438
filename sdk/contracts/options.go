package contracts

import "time"

// MIDICommand represents the types of MIDI commands for event filtering.
type MIDICommand byte

const (
	// NoteOn is the MIDI command for a Note On event (0x90).
	NoteOn MIDICommand = 0x90
	// NoteOff is the MIDI command for a Note Off event (0x80).
	NoteOff MIDICommand = 0x80
	// ControlChange is the MIDI command for a Control Change event (0xB0).
	ControlChange MIDICommand = 0xB0
	// ProgramChange is the MIDI command for a Program Change event (0xC0).
	ProgramChange MIDICommand = 0xC0
	// SysEx is the status of a System Exclusive message (0xF0).
	SysEx MIDICommand = 0xF0
	// TimingClock is the real-time clock status (0xF8).
	TimingClock MIDICommand = 0xF8
)

// MIDIEventFilter allows users to specify which MIDI commands to capture.
// An empty filter lets everything through.
type MIDIEventFilter struct {
	Commands []MIDICommand // List of MIDI commands to filter.
	Ports    []int         // Optional list of device ports to capture; empty means all.
}

// Allows reports whether msg passes the filter.
func (f *MIDIEventFilter) Allows(msg MIDI) bool {
	if f == nil {
		return true
	}
	if len(f.Ports) > 0 {
		found := false
		for _, p := range f.Ports {
			if p == msg.Port {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Commands) == 0 {
		return true
	}
	cmd := msg.Command()
	if msg.IsSysEx() {
		cmd = byte(SysEx)
	}
	for _, c := range f.Commands {
		if byte(c) == cmd {
			return true
		}
	}
	return false
}

// CoreMIDIConfig holds configuration for CoreMIDI.
type CoreMIDIConfig struct {
	ClientName string // Name of the MIDI client.
}

// ClientOptions defines the configuration options for the MIDI client and the USB driver.
type ClientOptions struct {
	Logger          Logger           // Logger for logging events and errors.
	LogLevel        LogLevel         // Level of logging to use.
	LogFilePath     string           // File path for logging if file logging is enabled.
	MIDIEventFilter *MIDIEventFilter // Optional filter for MIDI events to capture.
	CoreMIDIConfig  *CoreMIDIConfig  // Configuration specific to CoreMIDI.

	ConfigFile     string         // Hardware configuration YAML; empty uses the built-in table.
	Profile        *DeviceProfile // Forces a profile instead of matching attached devices.
	Receiver       Receiver       // Extra sink for decoded device input.
	SysExChunkSize int            // Emit SysEx in fragments of this many bytes; 0 keeps whole messages.
	BootTimeout    time.Duration  // How long to wait for a device to re-enumerate after firmware upload.
	SkipFirmware   bool           // Do not upload firmware to cold devices.
}

// Option is a function that modifies ClientOptions.
type Option func(*ClientOptions)

// WithLogger sets the logger for the MIDI client.
func WithLogger(l Logger) Option {
	return func(opts *ClientOptions) {
		opts.Logger = l
	}
}

// WithLogLevel sets the logging level for the MIDI client.
func WithLogLevel(level LogLevel) Option {
	return func(opts *ClientOptions) {
		opts.LogLevel = level
	}
}

// WithLogFilePath sends log output to a rotating file at path.
func WithLogFilePath(path string) Option {
	return func(opts *ClientOptions) {
		opts.LogFilePath = path
	}
}

// WithMIDIEventFilter sets the MIDI event filter for the MIDI client.
func WithMIDIEventFilter(filter MIDIEventFilter) Option {
	return func(opts *ClientOptions) {
		opts.MIDIEventFilter = &filter
	}
}

// WithCoreMIDIConfig sets the CoreMIDI configuration for the MIDI client.
func WithCoreMIDIConfig(config CoreMIDIConfig) Option {
	return func(opts *ClientOptions) {
		opts.CoreMIDIConfig = &config
	}
}

// WithConfigFile loads device profiles from a hardware configuration file.
func WithConfigFile(path string) Option {
	return func(opts *ClientOptions) {
		opts.ConfigFile = path
	}
}

// WithProfile pins the driver to one device profile.
func WithProfile(p DeviceProfile) Option {
	return func(opts *ClientOptions) {
		opts.Profile = &p
	}
}

// WithReceiver registers a sink for decoded device input.
func WithReceiver(r Receiver) Option {
	return func(opts *ClientOptions) {
		opts.Receiver = r
	}
}

// WithSysExChunkSize makes the decoder deliver SysEx in fragments of at most n bytes.
func WithSysExChunkSize(n int) Option {
	return func(opts *ClientOptions) {
		if n >= 0 {
			opts.SysExChunkSize = n
		}
	}
}

// WithBootTimeout sets how long the driver waits for a freshly loaded device to re-enumerate.
func WithBootTimeout(d time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.BootTimeout = d
	}
}

// WithoutFirmwareUpload disables booting cold devices.
func WithoutFirmwareUpload() Option {
	return func(opts *ClientOptions) {
		opts.SkipFirmware = true
	}
}
