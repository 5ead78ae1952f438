package midi

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/leandrodaf/midisport/internal/midi/mididarwin"
	"github.com/leandrodaf/midisport/internal/midi/midiwindows"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// ErrUnsupportedOS is returned on systems without a host MIDI backend. The
// USB driver itself works everywhere libusb does.
var ErrUnsupportedOS = errors.New("no host MIDI backend for this operating system")

type hostBackend func(*contracts.ClientOptions) (contracts.ClientMIDI, error)

var hostBackends = map[string]hostBackend{
	"darwin":  mididarwin.NewMIDIClient,
	"windows": midiwindows.NewMIDIClient,
}

// NewClient returns the host MIDI client for runtime.GOOS.
func NewClient(opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	return newClientFor(runtime.GOOS, opts)
}

func newClientFor(goos string, opts *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	backend, ok := hostBackends[goos]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOS, goos)
	}
	client, err := backend(opts)
	if err != nil {
		return nil, fmt.Errorf("opening %s MIDI services: %w", goos, err)
	}
	return client, nil
}
