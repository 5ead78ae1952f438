//go:build windows
// +build windows

package midiwindows

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/leandrodaf/midisport/internal/codec"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"golang.org/x/sys/windows"
)

// Type definitions for MIDI handles
type (
	HMIDIIN  windows.Handle
	HMIDIOUT windows.Handle
)

// Constants for callback flags
const (
	CALLBACK_NULL     = 0x00000000 // No callback
	CALLBACK_FUNCTION = 0x00030000 // Indicates that the callback is a function
	MIDI_IO_STATUS    = 0x00000020 // MIDI input/output status
)

// Constants for MIDI message types
const (
	MIM_OPEN      = 0x3C1 // MIDI device opened
	MIM_CLOSE     = 0x3C2 // MIDI device closed
	MIM_DATA      = 0x3C3 // MIDI data received
	MIM_LONGDATA  = 0x3C4 // SysEx buffer returned
	MIM_ERROR     = 0x3C5 // MIDI error
	MIM_LONGERROR = 0x3C6 // Long MIDI error
	MIM_MOREDATA  = 0x3CC // More MIDI data available
)

// MIDIHDR flags
const (
	MHDR_DONE = 0x00000001 // Set by the driver when it has finished with the buffer
)

// winmmProc is the call surface of a winmm export.
type winmmProc interface {
	Call(a ...uintptr) (r1, r2 uintptr, lastErr error)
}

// ErrNoMIDIDevices is returned when winmm reports no devices.
var (
	ErrNoMIDIDevices    = contracts.ErrNoDevices
	ErrNoOutputSelected = errors.New("no MIDI output selected")
)

// Struct representing MIDI device capabilities
type midiInCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	dwSupport      uint32
}

type midiOutCaps struct {
	wMid           uint16
	wPid           uint16
	vDriverVersion uint32
	szPname        [32]uint16
	wTechnology    uint16
	wVoices        uint16
	wNotes         uint16
	wChannelMask   uint16
	dwSupport      uint32
}

// midiHdr mirrors MIDIHDR, used for SysEx output.
type midiHdr struct {
	lpData          uintptr
	dwBufferLength  uint32
	dwBytesRecorded uint32
	dwUser          uintptr
	dwFlags         uint32
	lpNext          uintptr
	reserved        uintptr
	dwOffset        uint32
	dwReserved      [8]uintptr
}

// ClientMid manages MIDI on Windows
type ClientMid struct {
	logger          contracts.Logger
	eventChannel    atomic.Value
	handle          HMIDIIN
	out             HMIDIOUT
	portConn        bool
	mu              sync.Mutex
	outMu           sync.Mutex
	long            longSender // zero value uses winmm
	pending         *longMsg   // SysEx buffer owned by winmm
	callback        uintptr
	midiEventFilter *contracts.MIDIEventFilter
	coreMIDIConfig  *contracts.CoreMIDIConfig
}

// Load the winmm.dll library and required functions
var (
	winmm                      = windows.NewLazySystemDLL("winmm.dll")
	procMidiInGetNumDevs       = winmm.NewProc("midiInGetNumDevs")
	procMidiInGetDevCaps       = winmm.NewProc("midiInGetDevCapsW")
	procMidiInOpen             = winmm.NewProc("midiInOpen")
	procMidiInStart            = winmm.NewProc("midiInStart")
	procMidiInStop             = winmm.NewProc("midiInStop")
	procMidiInClose            = winmm.NewProc("midiInClose")
	procMidiOutGetNumDevs      = winmm.NewProc("midiOutGetNumDevs")
	procMidiOutGetDevCaps      = winmm.NewProc("midiOutGetDevCapsW")
	procMidiOutOpen            = winmm.NewProc("midiOutOpen")
	procMidiOutShortMsg        = winmm.NewProc("midiOutShortMsg")
	procMidiOutLongMsg         = winmm.NewProc("midiOutLongMsg")
	procMidiOutPrepareHeader   = winmm.NewProc("midiOutPrepareHeader")
	procMidiOutUnprepareHeader = winmm.NewProc("midiOutUnprepareHeader")
	procMidiOutReset           = winmm.NewProc("midiOutReset")
	procMidiOutClose           = winmm.NewProc("midiOutClose")
)

// NewMIDIClient creates a MIDI client for Windows
func NewMIDIClient(options *contracts.ClientOptions) (contracts.ClientMIDI, error) {
	options.Logger.Info("MIDI client created for Windows")

	return &ClientMid{
		logger:          options.Logger,
		midiEventFilter: options.MIDIEventFilter,
		coreMIDIConfig:  options.CoreMIDIConfig,
	}, nil
}

// ListDevices lists the available MIDI input devices
func (m *ClientMid) ListDevices() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiInGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		m.logger.Warn("No MIDI devices found")
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiInCaps
		r1, _, _ := procMidiInGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			m.logger.Warn("Failed to get information for MIDI device", m.logger.Field().Int("device", int(i)))
			continue
		}
		devices[i] = deviceInfo(caps.szPname[:], caps.wMid, caps.wPid)
	}
	return devices, nil
}

// ListOutputs lists the available MIDI output devices
func (m *ClientMid) ListOutputs() ([]contracts.DeviceInfo, error) {
	r0, _, _ := procMidiOutGetNumDevs.Call()
	numDevices := uint32(r0)
	if numDevices == 0 {
		return nil, ErrNoMIDIDevices
	}

	devices := make([]contracts.DeviceInfo, numDevices)
	for i := uint32(0); i < numDevices; i++ {
		var caps midiOutCaps
		r1, _, _ := procMidiOutGetDevCaps.Call(
			uintptr(i),
			uintptr(unsafe.Pointer(&caps)),
			unsafe.Sizeof(caps),
		)
		if r1 != 0 {
			m.logger.Warn("Failed to get information for MIDI output", m.logger.Field().Int("device", int(i)))
			continue
		}
		devices[i] = deviceInfo(caps.szPname[:], caps.wMid, caps.wPid)
	}
	return devices, nil
}

func deviceInfo(pname []uint16, mid, pid uint16) contracts.DeviceInfo {
	name := windows.UTF16ToString(pname)
	return contracts.DeviceInfo{
		Name:         name,
		EntityName:   name,
		Manufacturer: fmt.Sprintf("MID: %d PID: %d", mid, pid),
	}
}

// SelectDevice selects a MIDI input device
func (m *ClientMid) SelectDevice(deviceID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.portConn {
		if err := m.stopCapture(); err != nil {
			return fmt.Errorf("failed to stop previous MIDI capture: %w", err)
		}
	}

	m.callback = windows.NewCallback(midiInCallback)
	fdwOpen := CALLBACK_FUNCTION | MIDI_IO_STATUS

	r1, _, err := procMidiInOpen.Call(
		uintptr(unsafe.Pointer(&m.handle)),
		uintptr(deviceID),
		m.callback,
		uintptr(unsafe.Pointer(m)),
		uintptr(fdwOpen),
	)
	if r1 != 0 {
		m.logger.Error("Failed to open MIDI device", m.logger.Field().Int("device", deviceID), m.logger.Field().Error("error", err))
		return fmt.Errorf("failed to open MIDI device %d: %v", deviceID, err)
	}

	m.portConn = true
	m.logger.Info("MIDI device connected", m.logger.Field().Int("device", deviceID))
	return nil
}

// SelectOutput opens the MIDI output device used by Send.
func (m *ClientMid) SelectOutput(deviceID int) error {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if m.out != 0 {
		procMidiOutClose.Call(uintptr(m.out))
		m.out = 0
	}

	r1, _, err := procMidiOutOpen.Call(
		uintptr(unsafe.Pointer(&m.out)),
		uintptr(deviceID),
		0,
		0,
		CALLBACK_NULL,
	)
	if r1 != 0 {
		m.out = 0
		return fmt.Errorf("failed to open MIDI output %d: %v", deviceID, err)
	}
	m.logger.Info("MIDI output connected", m.logger.Field().Int("device", deviceID))
	return nil
}

// Send writes msg to the selected output. Short messages are packed into one
// DWORD; SysEx goes out through a prepared MIDIHDR.
func (m *ClientMid) Send(msg contracts.MIDI) error {
	m.outMu.Lock()
	defer m.outMu.Unlock()

	if m.out == 0 {
		return ErrNoOutputSelected
	}
	if len(msg.Data) == 0 {
		return nil
	}
	if msg.IsSysEx() || len(msg.Data) > 3 {
		return m.sendLong(msg.Data)
	}

	var word uintptr
	for i, b := range msg.Data {
		word |= uintptr(b) << (8 * i)
	}
	if r1, _, err := procMidiOutShortMsg.Call(uintptr(m.out), word); r1 != 0 {
		return fmt.Errorf("midiOutShortMsg: %v", err)
	}
	return nil
}

// longSender drives one SysEx transfer: prepare the header, queue it, wait
// until winmm marks it done, then unprepare. winmm reads the buffer
// asynchronously, so neither may be released before MHDR_DONE.
type longSender struct {
	prepare, send, unprepare, reset winmmProc
	poll                            time.Duration
	grace                           time.Duration
}

var defaultLongSender = longSender{
	prepare:   procMidiOutPrepareHeader,
	send:      procMidiOutLongMsg,
	unprepare: procMidiOutUnprepareHeader,
	reset:     procMidiOutReset,
	poll:      time.Millisecond,
	grace:     time.Second,
}

// longMsg is kept reachable from ClientMid while winmm owns it.
type longMsg struct {
	hdr midiHdr
	buf []byte
}

// playTime is the wire time of n bytes at 31250 baud.
func playTime(n int) time.Duration {
	return time.Duration(n) * 320 * time.Microsecond
}

func (m *ClientMid) sendLong(data []byte) error {
	s := m.long
	if s.send == nil {
		s = defaultLongSender
	}

	msg := &longMsg{buf: append([]byte(nil), data...)}
	msg.hdr.lpData = uintptr(unsafe.Pointer(&msg.buf[0]))
	msg.hdr.dwBufferLength = uint32(len(msg.buf))
	m.pending = msg

	hdr := uintptr(unsafe.Pointer(&msg.hdr))
	size := unsafe.Sizeof(msg.hdr)
	if r1, _, err := s.prepare.Call(uintptr(m.out), hdr, size); r1 != 0 {
		m.pending = nil
		return fmt.Errorf("midiOutPrepareHeader: %v", err)
	}
	if r1, _, err := s.send.Call(uintptr(m.out), hdr, size); r1 != 0 {
		s.unprepare.Call(uintptr(m.out), hdr, size)
		m.pending = nil
		return fmt.Errorf("midiOutLongMsg: %v", err)
	}

	deadline := time.Now().Add(playTime(len(msg.buf)) + s.grace)
	reset := false
	for atomic.LoadUint32(&msg.hdr.dwFlags)&MHDR_DONE == 0 {
		if time.Now().After(deadline) {
			if reset {
				// Still owned by the driver; m.pending keeps it alive.
				return fmt.Errorf("midiOutLongMsg: buffer not returned after reset")
			}
			m.logger.Warn("SysEx output stalled, resetting MIDI output", m.logger.Field().Int("bytes", len(msg.buf)))
			s.reset.Call(uintptr(m.out))
			reset = true
			deadline = time.Now().Add(s.grace)
		}
		time.Sleep(s.poll)
	}

	r1, _, err := s.unprepare.Call(uintptr(m.out), hdr, size)
	runtime.KeepAlive(msg)
	m.pending = nil
	if r1 != 0 {
		return fmt.Errorf("midiOutUnprepareHeader: %v", err)
	}
	return nil
}

// StartCapture initializes MIDI event capture
func (m *ClientMid) StartCapture(eventChannel chan contracts.MIDI) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.portConn {
		m.logger.Error("Cannot start capture: No MIDI device selected")
		return
	}

	if ch, ok := m.eventChannel.Load().(chan contracts.MIDI); ok && ch != nil {
		m.logger.Warn("Capture already started")
		return
	}

	m.eventChannel.Store(eventChannel)

	if m.handle == 0 {
		m.logger.Error("Invalid MIDI device handle")
		return
	}

	r1, _, err := procMidiInStart.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to start MIDI capture", m.logger.Field().Error("error", err))
		return
	}

	m.logger.Info("MIDI capture started")
}

// shortMessage unpacks a MIM_DATA parameter into the bytes of one message.
func shortMessage(param uintptr) []byte {
	status := byte(param & 0xFF)
	n, err := codec.DataBytesFollowing(status)
	if err != nil || n < 0 {
		n = 0
	}
	data := make([]byte, 1+n)
	for i := range data {
		data[i] = byte(param >> (8 * i))
	}
	return data
}

// midiInCallback processes incoming MIDI messages
func midiInCallback(hMidiIn uintptr, wMsg uint32, dwInstance uintptr, dwParam1 uintptr, dwParam2 uintptr) uintptr {
	m := (*ClientMid)(unsafe.Pointer(dwInstance))

	switch wMsg {
	case MIM_OPEN:
		m.logger.Info("MIDI device opened")
	case MIM_CLOSE:
		m.logger.Info("MIDI device closed")
	case MIM_DATA:
		midiEvent := contracts.MIDI{
			Timestamp: uint64(time.Now().UnixNano()),
			Data:      shortMessage(dwParam1),
		}

		if !m.midiEventFilter.Allows(midiEvent) {
			m.logger.Debug("MIDI message filtered out", m.logger.Field().Uint8("status", midiEvent.Status()))
			return 0
		}

		if ch, ok := m.eventChannel.Load().(chan contracts.MIDI); ok && ch != nil {
			select {
			case ch <- midiEvent:
			default:
				m.logger.Warn("MIDI event channel is full; event discarded")
			}
		}
	case MIM_ERROR, MIM_LONGERROR:
		m.logger.Error("MIDI error", m.logger.Field().Int("msg", int(wMsg)))
	case MIM_LONGDATA, MIM_MOREDATA:
		m.logger.Debug("Ignoring winmm input message", m.logger.Field().Int("msg", int(wMsg)))
	default:
		m.logger.Warn("Unknown MIDI message", m.logger.Field().Int("msg", int(wMsg)))
	}

	return 0
}

// Stop terminates MIDI event capture and closes both devices
func (m *ClientMid) Stop() error {
	m.outMu.Lock()
	if m.out != 0 {
		procMidiOutClose.Call(uintptr(m.out))
		m.out = 0
	}
	m.outMu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.portConn {
		m.logger.Warn("No MIDI device is connected")
		return nil
	}

	if err := m.stopCapture(); err != nil {
		return fmt.Errorf("failed to stop MIDI capture: %w", err)
	}
	m.logger.Info("MIDI capture stopped and device closed")
	return nil
}

// stopCapture stops the capture and releases resources
func (m *ClientMid) stopCapture() error {
	if m.handle == 0 {
		return fmt.Errorf("invalid MIDI device handle")
	}

	r1, _, err := procMidiInStop.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to stop MIDI capture", m.logger.Field().Error("error", err))
		return err
	}

	r1, _, err = procMidiInClose.Call(uintptr(m.handle))
	if r1 != 0 {
		m.logger.Error("Failed to close MIDI device", m.logger.Field().Error("error", err))
		return err
	}

	m.portConn = false
	m.handle = 0
	// atomic.Value rejects nil, so a typed nil channel marks capture as off.
	m.eventChannel.Store((chan contracts.MIDI)(nil))
	return nil
}
