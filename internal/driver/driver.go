// Package driver attaches to a MIDISPORT interface, boots it when needed and
// fans decoded input out to capture channels.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/leandrodaf/midisport/internal/session"
	"github.com/leandrodaf/midisport/sdk/contracts"
	gomidi "gitlab.com/gomidi/midi/v2"
)

var (
	// ErrNotRunning is returned by Send while no device is attached.
	ErrNotRunning = errors.New("driver is not attached to a device")
	// ErrRunning is returned by Run when the driver is already attached.
	ErrRunning = errors.New("driver is already running")
)

// State is the lifecycle stage of the driver.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopped  State = "stopped"
)

// Opener attaches to a device and returns a session over its pipes. The
// closer releases the device once the session has stopped.
type Opener interface {
	Open(ctx context.Context, sink contracts.Receiver) (*session.Session, io.Closer, error)
}

// Status is a snapshot of the driver for status surfaces.
type Status struct {
	State   State                `json:"state"`
	Device  string               `json:"device,omitempty"`
	Ports   []contracts.PortInfo `json:"ports,omitempty"`
	Stats   session.Stats        `json:"stats"`
	Pending int                  `json:"pendingBytes"`
	Error   string               `json:"error,omitempty"`
}

// Driver implements contracts.Driver.
type Driver struct {
	opener Opener
	log    contracts.Logger
	filter *contracts.MIDIEventFilter
	extra  contracts.Receiver

	mu       sync.RWMutex
	state    State
	sess     *session.Session
	cancel   context.CancelFunc
	captures []chan contracts.MIDI
	lastErr  error
}

// New returns a driver that attaches through opener.
func New(opener Opener, opts *contracts.ClientOptions) *Driver {
	return &Driver{
		opener: opener,
		log:    opts.Logger,
		filter: opts.MIDIEventFilter,
		extra:  opts.Receiver,
		state:  StateIdle,
	}
}

// Run attaches to the device and services it until ctx is cancelled, Close
// is called or a transfer fails.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.state == StateStarting || d.state == StateRunning {
		d.mu.Unlock()
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	d.state = StateStarting
	d.cancel = cancel
	d.lastErr = nil
	d.mu.Unlock()
	defer cancel()

	sess, closer, err := d.opener.Open(ctx, d)
	if err != nil {
		d.stopped(err)
		return fmt.Errorf("attaching device: %w", err)
	}

	d.mu.Lock()
	d.sess = sess
	d.state = StateRunning
	d.mu.Unlock()
	d.log.Info("Device attached",
		d.log.Field().String("device", sess.Profile().Name),
		d.log.Field().Int("ports", sess.Profile().Ports()))

	err = sess.Run(ctx)
	if cerr := closer.Close(); cerr != nil {
		d.log.Warn("Releasing device failed", d.log.Field().Error("error", cerr))
	}
	d.stopped(err)
	return err
}

func (d *Driver) stopped(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateStopped
	d.lastErr = err
}

// Close detaches from the device. It is safe to call at any time.
func (d *Driver) Close() error {
	d.mu.RLock()
	cancel := d.cancel
	d.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Send queues msg for output on msg.Port.
func (d *Driver) Send(msg contracts.MIDI) error {
	d.mu.RLock()
	sess, state := d.sess, d.state
	d.mu.RUnlock()
	if sess == nil || state != StateRunning {
		return ErrNotRunning
	}
	d.log.Debug("MIDI out",
		d.log.Field().Int("port", msg.Port),
		d.log.Field().String("message", render(msg.Data)))
	return sess.Send(msg.Port, msg.Data)
}

// StartCapture registers a channel for device input. Messages are dropped
// rather than stalling the reader when the channel is full.
func (d *Driver) StartCapture(eventChannel chan contracts.MIDI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.captures = append(d.captures, eventChannel)
}

// StopCapture unregisters eventChannel. It is a no-op for a channel that was
// never registered.
func (d *Driver) StopCapture(eventChannel chan contracts.MIDI) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := make([]chan contracts.MIDI, 0, len(d.captures))
	for _, ch := range d.captures {
		if ch != eventChannel {
			kept = append(kept, ch)
		}
	}
	d.captures = kept
}

// Ports lists the ports of the attached device.
func (d *Driver) Ports() []contracts.PortInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.sess == nil {
		return nil
	}
	return d.sess.Profile().PortInfos()
}

// Status returns a snapshot of the driver.
func (d *Driver) Status() Status {
	d.mu.RLock()
	defer d.mu.RUnlock()
	st := Status{State: d.state}
	if d.lastErr != nil {
		st.Error = d.lastErr.Error()
	}
	if d.sess != nil {
		st.Device = d.sess.Profile().Name
		st.Ports = d.sess.Profile().PortInfos()
		st.Stats = d.sess.Stats()
		st.Pending = d.sess.Pending()
	}
	return st
}

// Received implements contracts.Receiver for the session.
func (d *Driver) Received(port int, timestamp uint64, msgs []contracts.MIDI) {
	d.mu.RLock()
	captures := d.captures
	d.mu.RUnlock()

	passed := msgs[:0:0]
	for _, msg := range msgs {
		if !d.filter.Allows(msg) {
			continue
		}
		passed = append(passed, msg)
		d.log.Debug("MIDI in",
			d.log.Field().Int("port", port),
			d.log.Field().Uint64("timestamp", timestamp),
			d.log.Field().String("message", render(msg.Data)))

		for _, ch := range captures {
			select {
			case ch <- msg:
			default:
				d.log.Warn("Capture channel full, dropping message", d.log.Field().Int("port", port))
			}
		}
	}
	if d.extra != nil && len(passed) > 0 {
		d.extra.Received(port, timestamp, passed)
	}
}

// render formats a message for logs. SysEx fragments are not complete
// messages, so they are shown as raw bytes.
func render(data []byte) string {
	if len(data) > 0 && data[0] < 0x80 {
		return fmt.Sprintf("SysEx fragment % X", data)
	}
	return gomidi.Message(data).String()
}
