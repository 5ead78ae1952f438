package driver

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leandrodaf/midisport/sdk/contracts"
)

func TestPlayNote(t *testing.T) {
	dev := &fakeDevice{}
	n := Note{Channel: 2, Key: 60, Velocity: 100, Duration: time.Millisecond}
	if err := PlayNote(context.Background(), dev, 1, n); err != nil {
		t.Fatal(err)
	}

	sent := dev.messages()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	want := [][]byte{{0x92, 60, 100}, {0x82, 60, 0}}
	for i, msg := range sent {
		if msg.Port != 1 || !bytes.Equal(msg.Data, want[i]) {
			t.Errorf("message %d = port %d % X, want port 1 % X", i, msg.Port, msg.Data, want[i])
		}
	}
}

func TestPlayNoteCancelledStillReleases(t *testing.T) {
	dev := &fakeDevice{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := PlayNote(ctx, dev, 0, Note{Key: 64, Velocity: 1, Duration: time.Second}); err != nil {
		t.Fatal(err)
	}
	if sent := dev.messages(); len(sent) != 2 || sent[1].Command() != byte(contracts.NoteOff) {
		t.Errorf("sent = %+v", sent)
	}
}

func TestPlayNoteValidates(t *testing.T) {
	tests := []Note{
		{Channel: 16},
		{Key: 128},
		{Velocity: 200},
		{Duration: -time.Second},
		{Duration: MaxNoteDuration + time.Second},
	}
	for _, n := range tests {
		if err := PlayNote(context.Background(), &fakeDevice{}, 0, n); err != ErrBadNote {
			t.Errorf("PlayNote(%+v) = %v, want ErrBadNote", n, err)
		}
	}
}

func TestNoteArgs(t *testing.T) {
	tests := []struct {
		args NoteArgs
		want Note
		ok   bool
	}{
		{NoteArgs{Channel: 1, Note: 60, Velocity: 100, DurationMS: 250}, Note{Channel: 0, Key: 60, Velocity: 100, Duration: 250 * time.Millisecond}, true},
		{NoteArgs{Channel: 16, Note: 127, Velocity: 1}, Note{Channel: 15, Key: 127, Velocity: 1}, true},
		{NoteArgs{Channel: 0, Note: 60, Velocity: 100}, Note{}, false},
		{NoteArgs{Channel: 17, Note: 60, Velocity: 100}, Note{}, false},
		{NoteArgs{Channel: 1, Note: 128, Velocity: 100}, Note{}, false},
		{NoteArgs{Channel: 1, Note: 60, Velocity: 0}, Note{}, false},
		{NoteArgs{Channel: 1, Note: 60, Velocity: 100, DurationMS: 60000}, Note{}, false},
	}
	for _, tt := range tests {
		got, err := tt.args.Note()
		if (err == nil) != tt.ok {
			t.Errorf("%+v: err = %v", tt.args, err)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("%+v: got %+v, want %+v", tt.args, got, tt.want)
		}
		if !tt.ok && !errors.Is(err, ErrBadNote) {
			t.Errorf("%+v: err = %v, want ErrBadNote", tt.args, err)
		}
	}

	if d := DefaultNoteArgs(); d.Channel != 1 || d.Velocity != DefaultVelocity || d.DurationMS != DefaultDurationMS {
		t.Errorf("DefaultNoteArgs() = %+v", d)
	}
}
