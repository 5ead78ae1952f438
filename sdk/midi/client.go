// Package midi is the entry point of the library: NewDriver attaches to a
// MIDISPORT interface over USB, NewMIDIClient opens the host's own MIDI
// services so that the two can be bridged.
package midi

import (
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// NewMIDIClient opens the host MIDI services (CoreMIDI on macOS, winmm on
// Windows) with the given options. Captured host input goes through the same
// MIDIEventFilter as device input.
func NewMIDIClient(opts ...contracts.Option) (contracts.ClientMIDI, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}
	return NewClient(&options)
}
