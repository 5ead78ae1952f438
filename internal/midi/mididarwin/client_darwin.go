//go:build darwin
// +build darwin

package mididarwin

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leandrodaf/midisport/internal/codec"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"github.com/youpy/go-coremidi"
)

// Error definitions for MIDI connection and handling issues.
var (
	ErrNoMIDIDevices       = contracts.ErrNoDevices
	ErrInvalidMIDIDevice   = errors.New("invalid MIDI device")
	ErrMIDIConnectionError = errors.New("error connecting to MIDI device")
	ErrCreateInputPort     = errors.New("error creating input port")
	ErrCreateOutputPort    = errors.New("error creating output port")
	ErrNoOutputSelected    = errors.New("no MIDI destination selected")
)

// internalPortConnection is an interface for handling disconnection from a MIDI port.
type internalPortConnection interface {
	Disconnect()
}

// ClientMid bridges the driver to CoreMIDI. Packets from the selected source
// are split into messages and captured; Send writes to the selected destination.
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value               // chan contracts.MIDI
	client          coremidi.Client            // CoreMIDI client instance for MIDI operations.
	inputPort       coremidi.InputPort         // Input port for receiving MIDI events.
	outputPort      *coremidi.OutputPort       // Output port, created on first SelectOutput.
	destination     *coremidi.Destination      // Destination used by Send.
	portConn        internalPortConnection     // Connection to the MIDI port.
	midiEventFilter *contracts.MIDIEventFilter // Filter for specific MIDI events.
	mu              sync.Mutex                 // Mutex for thread safety on shared resources.
	capturing       bool                       // Indicates if event capturing is currently active.
	wg              sync.WaitGroup             // WaitGroup for managing concurrent MIDI event processing.
	stopOnce        sync.Once                  // Ensures Stop() is executed only once.

	parseMu sync.Mutex
	parser  codec.Decoder
	state   codec.PortState
}

// NewMIDIClient initializes a new ClientMid for handling MIDI events on macOS.
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	client, err := coremidi.NewClient(options.CoreMIDIConfig.ClientName)
	if err != nil {
		return nil, err
	}
	options.Logger.Info("MIDI client successfully created")

	m := &ClientMid{
		logger:          options.Logger,
		client:          client,
		midiEventFilter: options.MIDIEventFilter,
	}
	m.parser = codec.Decoder{Logger: options.Logger, Sink: contracts.ReceiverFunc(m.deliver)}
	m.state.Reset()
	return m, nil
}

// ListDevices retrieves and returns available MIDI sources.
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	sources, err := coremidi.AllSources()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI sources: %w", err)
	}
	if len(sources) == 0 {
		m.logger.Warn(ErrNoMIDIDevices.Error())
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(sources))
	for i, source := range sources {
		sourceEntity := source.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         source.Name(),
			EntityName:   sourceEntity.Name(),
			Manufacturer: sourceEntity.Manufacturer(),
		}
	}
	return devices, nil
}

// ListOutputs retrieves and returns available MIDI destinations.
func (m *ClientMid) ListOutputs() ([]contracts.DeviceInfo, error) {
	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return nil, fmt.Errorf("error listing MIDI destinations: %w", err)
	}
	if len(destinations) == 0 {
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, len(destinations))
	for i, dest := range destinations {
		entity := dest.Entity()
		devices[i] = contracts.DeviceInfo{
			Name:         dest.Name(),
			EntityName:   entity.Name(),
			Manufacturer: entity.Manufacturer(),
		}
	}
	return devices, nil
}

// SelectDevice selects a MIDI source by ID and connects to it.
// If a source is already connected, it disconnects first.
func (m *ClientMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sources, err := coremidi.AllSources()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI sources: %w", err)
	}
	if deviceID < 0 || deviceID >= len(sources) {
		m.logger.Error(ErrInvalidMIDIDevice.Error())
		return ErrInvalidMIDIDevice
	}

	if m.portConn != nil {
		m.portConn.Disconnect()
		m.portConn = nil
	}

	source := sources[deviceID]
	m.logger.Info("MIDI device selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", source.Name()))

	m.inputPort, err = coremidi.NewInputPort(m.client, "Input Port", m.handleMIDIMessage)
	if err != nil {
		m.logger.Error(ErrCreateInputPort.Error())
		return fmt.Errorf("%w: %v", ErrCreateInputPort, err)
	}

	m.portConn, err = m.inputPort.Connect(source)
	if err != nil {
		m.logger.Error(ErrMIDIConnectionError.Error())
		return fmt.Errorf("%w: %v", ErrMIDIConnectionError, err)
	}

	m.parseMu.Lock()
	m.state.Reset()
	m.parseMu.Unlock()

	m.logger.Info("MIDI device successfully connected")
	return nil
}

// SelectOutput selects the MIDI destination used by Send.
func (m *ClientMid) SelectOutput(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	destinations, err := coremidi.AllDestinations()
	if err != nil {
		return fmt.Errorf("error retrieving MIDI destinations: %w", err)
	}
	if deviceID < 0 || deviceID >= len(destinations) {
		return ErrInvalidMIDIDevice
	}

	if m.outputPort == nil {
		port, err := coremidi.NewOutputPort(m.client, "Output Port")
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCreateOutputPort, err)
		}
		m.outputPort = &port
	}
	dest := destinations[deviceID]
	m.destination = &dest
	m.logger.Info("MIDI destination selected",
		m.logger.Field().Int("deviceID", deviceID),
		m.logger.Field().String("deviceName", dest.Name()))
	return nil
}

// Send writes msg to the selected destination.
func (m *ClientMid) Send(msg contracts.MIDI) error {
	m.mu.Lock()
	port, dest := m.outputPort, m.destination
	m.mu.Unlock()
	if port == nil || dest == nil {
		return ErrNoOutputSelected
	}

	packet := coremidi.NewPacket(msg.Data, 0)
	if err := packet.Send(port, dest); err != nil {
		return fmt.Errorf("sending to %s: %w", dest.Name(), err)
	}
	return nil
}

// handleMIDIMessage splits an incoming CoreMIDI packet into messages.
func (m *ClientMid) handleMIDIMessage(source coremidi.Source, packet coremidi.Packet) {
	m.wg.Add(1)
	defer m.wg.Done()

	m.parseMu.Lock()
	defer m.parseMu.Unlock()
	m.parser.HandleBytes(&m.state, 0, packet.Data, packet.TimeStamp)
}

// deliver applies the filter and hands messages to the capture channel.
func (m *ClientMid) deliver(_ int, _ uint64, msgs []contracts.MIDI) {
	eventChannel, _ := m.eventChannel.Load().(chan contracts.MIDI)
	if eventChannel == nil {
		m.logger.Warn("eventChannel not initialized or of invalid type")
		return
	}

	for _, event := range msgs {
		if !m.midiEventFilter.Allows(event) {
			continue
		}
		select {
		case eventChannel <- event:
		default:
			m.logger.Warn("Event buffer full; dropping MIDI event")
		}
	}
}

// StartCapture begins capturing MIDI events by storing the event channel and marking capturing as active.
func (m *ClientMid) StartCapture(eventChannel chan contracts.MIDI) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if eventChannel == nil {
		m.logger.Error("StartCapture called with nil eventChannel")
		return
	}
	if m.capturing {
		m.logger.Warn("Capture already started; replacing event channel")
	}

	m.logger.Info("Starting MIDI event capture")
	m.eventChannel.Store(eventChannel)
	m.capturing = true
}

// Stop halts MIDI event capturing, disconnects from the device, and waits for ongoing processing to complete.
// This function ensures it only executes once, even if called multiple times.
func (m *ClientMid) Stop() error {
	m.stopOnce.Do(func() {
		m.logger.Info("Stopping MIDI capture")
		m.mu.Lock()
		defer m.mu.Unlock()

		if m.portConn != nil {
			m.portConn.Disconnect()
			m.portConn = nil
		}
		if m.capturing {
			m.capturing = false
			// A fresh unbuffered channel nobody reads keeps late callbacks from blocking.
			m.eventChannel.Store(make(chan contracts.MIDI))
			m.wg.Wait()
			m.logger.Info("MIDI capture stopped")
		}
	})
	return nil
}
