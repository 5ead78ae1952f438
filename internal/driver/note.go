package driver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/leandrodaf/midisport/sdk/contracts"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// MaxNoteDuration bounds how long PlayNote holds a note.
const MaxNoteDuration = 10 * time.Second

// ErrBadNote is returned by PlayNote for out-of-range arguments.
var ErrBadNote = errors.New("note arguments out of range")

// Note is a single note played on one port. Channel is 0-based.
type Note struct {
	Channel  uint8
	Key      uint8
	Velocity uint8
	Duration time.Duration
}

// Default arguments of NoteArgs.
const (
	DefaultVelocity   = 100
	DefaultDurationMS = 500
)

// NoteArgs is a note as control surfaces take it: channels 1-16, velocity
// 1-127 and the duration in milliseconds.
type NoteArgs struct {
	Channel    int `json:"channel"`
	Note       int `json:"note"`
	Velocity   int `json:"velocity"`
	DurationMS int `json:"duration_ms"`
}

// DefaultNoteArgs returns channel 1 at the default velocity and duration.
func DefaultNoteArgs() NoteArgs {
	return NoteArgs{Channel: 1, Velocity: DefaultVelocity, DurationMS: DefaultDurationMS}
}

// Note converts a to a Note, checking every range.
func (a NoteArgs) Note() (Note, error) {
	switch {
	case a.Channel < 1 || a.Channel > 16:
		return Note{}, fmt.Errorf("%w: channel %d is not 1-16", ErrBadNote, a.Channel)
	case a.Note < 0 || a.Note > 127:
		return Note{}, fmt.Errorf("%w: note %d is not 0-127", ErrBadNote, a.Note)
	case a.Velocity < 1 || a.Velocity > 127:
		return Note{}, fmt.Errorf("%w: velocity %d is not 1-127", ErrBadNote, a.Velocity)
	}
	n := Note{
		Channel:  uint8(a.Channel - 1),
		Key:      uint8(a.Note),
		Velocity: uint8(a.Velocity),
		Duration: time.Duration(a.DurationMS) * time.Millisecond,
	}
	return n, n.Validate()
}

// Validate checks the MIDI ranges of n.
func (n Note) Validate() error {
	switch {
	case n.Channel > 15, n.Key > 127, n.Velocity > 127:
		return ErrBadNote
	case n.Duration < 0 || n.Duration > MaxNoteDuration:
		return ErrBadNote
	}
	return nil
}

// PlayNote sends a Note On, waits for the duration and sends the matching
// Note Off. The Note Off is sent even when ctx ends early.
func PlayNote(ctx context.Context, dev contracts.Driver, port int, n Note) error {
	if err := n.Validate(); err != nil {
		return err
	}
	on := gomidi.NoteOn(n.Channel, n.Key, n.Velocity)
	if err := dev.Send(contracts.MIDI{Port: port, Data: on.Bytes()}); err != nil {
		return err
	}

	t := time.NewTimer(n.Duration)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}

	off := gomidi.NoteOff(n.Channel, n.Key)
	return dev.Send(contracts.MIDI{Port: port, Data: off.Bytes()})
}
