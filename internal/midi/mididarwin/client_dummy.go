//go:build !darwin
// +build !darwin

package mididarwin

import (
	"errors"

	"github.com/leandrodaf/midisport/sdk/contracts"
)

// ErrUnavailable is returned by every operation of the dummy client.
var ErrUnavailable = errors.New("CoreMIDI is not available on this platform")

type DummyMIDIClient struct {
	logger contracts.Logger
}

func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	options.Logger.Info("Using dummy MIDI client for non-macOS system")
	return &DummyMIDIClient{
		logger: options.Logger,
	}, nil
}

func (m *DummyMIDIClient) ListDevices() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListDevices called on dummy MIDI client")
	return nil, ErrUnavailable
}

func (m *DummyMIDIClient) SelectDevice(deviceID int) error {
	m.logger.Warn("SelectDevice called on dummy MIDI client")
	return ErrUnavailable
}

func (m *DummyMIDIClient) ListOutputs() ([]contracts.DeviceInfo, error) {
	m.logger.Warn("ListOutputs called on dummy MIDI client")
	return nil, ErrUnavailable
}

func (m *DummyMIDIClient) SelectOutput(deviceID int) error {
	m.logger.Warn("SelectOutput called on dummy MIDI client")
	return ErrUnavailable
}

func (m *DummyMIDIClient) Send(msg contracts.MIDI) error {
	return ErrUnavailable
}

func (m *DummyMIDIClient) StartCapture(eventChannel chan contracts.MIDI) {
	m.logger.Warn("StartCapture called on dummy MIDI client")
}

func (m *DummyMIDIClient) Stop() error {
	m.logger.Warn("Stop called on dummy MIDI client")
	return nil
}
