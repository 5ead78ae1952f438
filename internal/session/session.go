// Package session runs one attached interface: it owns the write queue, the
// per-port parser state and the transfer buffers, and keeps one read and at
// most one write in flight.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/leandrodaf/midisport/internal/codec"
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"go.uber.org/multierr"
)

var (
	// ErrClosed is returned by Send after the session has been torn down.
	ErrClosed = errors.New("session closed")
	// ErrBadPort is returned by Send for a port the device does not have.
	ErrBadPort = errors.New("no such output port")
	// ErrPipes is returned by New when the pipes do not match the profile.
	ErrPipes = errors.New("pipe count does not match device")
)

// InPipe is the device's input endpoint.
type InPipe interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// OutPipe is one of the device's output endpoints.
type OutPipe interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

// Session drives the codec against a device's pipes.
type Session struct {
	profile contracts.DeviceProfile
	in      InPipe
	outs    []OutPipe
	log     contracts.Logger
	sink    contracts.Receiver
	clock   func() uint64
	chunk   int

	dec codec.Decoder
	enc codec.Encoder

	states    []codec.PortState
	readBuf   []byte
	writeBufs [][]byte

	mu           sync.Mutex
	queue        codec.WriteQueue
	writePending bool
	closed       bool
	kick         chan struct{}

	stats counters
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(l contracts.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// WithReceiver sets the sink for decoded input.
func WithReceiver(r contracts.Receiver) Option {
	return func(s *Session) {
		s.sink = r
	}
}

// WithClock replaces the host clock used to stamp transfers.
func WithClock(clock func() uint64) Option {
	return func(s *Session) {
		s.clock = clock
	}
}

// WithSysExChunkSize delivers SysEx input in fragments of at most n bytes.
func WithSysExChunkSize(n int) Option {
	return func(s *Session) {
		s.chunk = n
	}
}

// HostTime returns the current host time in nanoseconds.
func HostTime() uint64 {
	return uint64(time.Now().UTC().UnixNano())
}

// New creates a session for a device described by p. outs must hold one pipe
// per output buffer of the profile.
func New(p contracts.DeviceProfile, in InPipe, outs []OutPipe, opts ...Option) (*Session, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(outs) != p.OutputBuffers() {
		return nil, fmt.Errorf("%w: %s wants %d output pipes, got %d", ErrPipes, p.Name, p.OutputBuffers(), len(outs))
	}

	s := &Session{
		profile: p,
		in:      in,
		outs:    outs,
		clock:   HostTime,
		kick:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNopLogger()
	}

	s.dec = codec.Decoder{
		Format:         p.WireFormat,
		Sink:           s.sink,
		Logger:         s.log,
		SysExChunkSize: s.chunk,
	}
	s.enc = codec.Encoder{
		Format:           p.WireFormat,
		Logger:           s.log,
		MaxGroupsPerPort: p.MaxGroupsPerPort,
	}
	s.states = codec.NewPortStates(p.Ports())
	s.readBuf = make([]byte, p.ReadBufferSize)
	s.writeBufs = make([][]byte, len(outs))
	for i := range s.writeBufs {
		s.writeBufs[i] = make([]byte, p.WriteBufferSize)
	}
	return s, nil
}

// Profile returns the device profile the session was created with.
func (s *Session) Profile() contracts.DeviceProfile {
	return s.profile
}

// Send queues data for transmission on port and starts a write if none is in
// flight. data is copied.
func (s *Session) Send(port int, data []byte) error {
	if port < 0 || port >= s.profile.OutputPorts {
		return fmt.Errorf("%w: %d", ErrBadPort, port)
	}
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.queue.Push(port, data, s.clock())
	start := !s.writePending
	s.writePending = true
	s.mu.Unlock()

	s.stats.messagesOut.Add(1)
	if start {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of bytes waiting to be written.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.PendingBytes()
}

// Run services the pipes until ctx is cancelled or a transfer fails, then
// tears the session down. A cancelled context is not an error.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.log.Info("Session started",
		s.log.Field().String("device", s.profile.Name),
		s.log.Field().Int("ports", s.profile.Ports()),
		s.log.Field().String("format", s.profile.WireFormat.String()))

	var (
		wg      sync.WaitGroup
		readErr error
		wrErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		readErr = s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		wrErr = s.writeLoop(ctx)
	}()
	wg.Wait()

	s.teardown()
	err := multierr.Combine(readErr, wrErr)
	if err != nil {
		s.log.Error("Session stopped", s.log.Field().Error("error", err))
	} else {
		s.log.Info("Session stopped", s.log.Field().String("device", s.profile.Name))
	}
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		n, err := s.in.ReadContext(ctx, s.readBuf)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input pipe: %w", err)
		}
		s.stats.reads.Add(1)
		if n == 0 {
			continue
		}

		sum := s.dec.HandleInput(s.states, s.readBuf[:n], s.clock())
		s.stats.groupsIn.Add(uint64(sum.Groups))
		s.stats.messagesIn.Add(uint64(sum.Messages))
		s.stats.dropped.Add(uint64(sum.Dropped))
	}
}

func (s *Session) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.kick:
		}

		for {
			s.mu.Lock()
			counts := s.enc.PrepareOutput(&s.queue, s.writeBufs...)
			total := 0
			for _, n := range counts {
				total += n
			}
			if total == 0 {
				s.writePending = false
				s.mu.Unlock()
				break
			}
			s.mu.Unlock()

			for i, n := range counts {
				if n == 0 {
					continue
				}
				if _, err := s.outs[i].WriteContext(ctx, s.writeBufs[i][:n]); err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return fmt.Errorf("writing output pipe %d: %w", i, err)
				}
				s.stats.writes.Add(1)
				s.stats.groupsOut.Add(uint64(n / contracts.GroupSize))
			}
		}
	}
}

// teardown discards queued output and resets the parser, so a later session
// on the same device starts clean.
func (s *Session) teardown() {
	s.mu.Lock()
	s.closed = true
	discarded := s.queue.PendingBytes()
	s.queue.Clear()
	s.writePending = false
	s.mu.Unlock()

	if discarded > 0 {
		s.log.Warn("Discarding unsent output", s.log.Field().Int("bytes", discarded))
	}
	for i := range s.states {
		s.states[i].Reset()
	}
}
