//go:build windows
// +build windows

package midiwindows

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"

	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

func TestShortMessage(t *testing.T) {
	tests := []struct {
		param uintptr
		want  []byte
	}{
		{0x7F3C90, []byte{0x90, 0x3C, 0x7F}},
		{0x0005C1, []byte{0xC1, 0x05}},
		{0x0000F8, []byte{0xF8}},
		{0x1234F2, []byte{0xF2, 0x34, 0x12}},
	}
	for _, tt := range tests {
		if got := shortMessage(tt.param); !bytes.Equal(got, tt.want) {
			t.Errorf("shortMessage(%#x) = % X, want % X", tt.param, got, tt.want)
		}
	}
}

type procFunc func(a ...uintptr) (uintptr, uintptr, error)

func (f procFunc) Call(a ...uintptr) (uintptr, uintptr, error) { return f(a...) }

func headerAt(p uintptr) *midiHdr {
	return (*midiHdr)(unsafe.Pointer(p))
}

// fakeWinmm records calls and completes buffers the way the driver does:
// some time after midiOutLongMsg, or on midiOutReset.
type fakeWinmm struct {
	mu           sync.Mutex
	calls        []string
	sent         []byte
	doneAfter    time.Duration // 0 never completes on its own
	doneAtUnprep bool
}

func (f *fakeWinmm) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeWinmm) sender() longSender {
	return longSender{
		prepare: procFunc(func(a ...uintptr) (uintptr, uintptr, error) {
			f.record("prepare")
			return 0, 0, nil
		}),
		send: procFunc(func(a ...uintptr) (uintptr, uintptr, error) {
			f.record("send")
			hdr := headerAt(a[1])
			f.mu.Lock()
			f.sent = append([]byte(nil), unsafe.Slice((*byte)(unsafe.Pointer(hdr.lpData)), hdr.dwBufferLength)...)
			f.mu.Unlock()
			if f.doneAfter > 0 {
				go func() {
					time.Sleep(f.doneAfter)
					atomic.StoreUint32(&hdr.dwFlags, MHDR_DONE)
				}()
			}
			return 0, 0, nil
		}),
		unprepare: procFunc(func(a ...uintptr) (uintptr, uintptr, error) {
			f.record("unprepare")
			f.mu.Lock()
			f.doneAtUnprep = atomic.LoadUint32(&headerAt(a[1]).dwFlags)&MHDR_DONE != 0
			f.mu.Unlock()
			return 0, 0, nil
		}),
		poll:  time.Millisecond,
		grace: 20 * time.Millisecond,
	}
}

func newOutputClient(f *fakeWinmm) *ClientMid {
	m := &ClientMid{logger: logger.NewNopLogger(), out: 1}
	m.long = f.sender()
	return m
}

func TestSendLongWaitsForDone(t *testing.T) {
	f := &fakeWinmm{doneAfter: 10 * time.Millisecond}
	m := newOutputClient(f)
	m.long.reset = procFunc(func(a ...uintptr) (uintptr, uintptr, error) {
		t.Error("reset called for a buffer that completed")
		return 0, 0, nil
	})

	sysex := []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}
	if err := m.Send(contracts.MIDI{Data: sysex}); err != nil {
		t.Fatal(err)
	}

	if got := strings.Join(f.calls, ","); got != "prepare,send,unprepare" {
		t.Errorf("calls = %s", got)
	}
	if !f.doneAtUnprep {
		t.Error("header unprepared before the driver marked it done")
	}
	if !bytes.Equal(f.sent, sysex) {
		t.Errorf("sent % X, want % X", f.sent, sysex)
	}
	if m.pending != nil {
		t.Error("buffer still pending after completion")
	}
}

func TestSendLongResetsStalledBuffer(t *testing.T) {
	f := &fakeWinmm{}
	m := newOutputClient(f)
	m.long.reset = procFunc(func(a ...uintptr) (uintptr, uintptr, error) {
		f.record("reset")
		atomic.StoreUint32(&m.pending.hdr.dwFlags, MHDR_DONE)
		return 0, 0, nil
	})

	if err := m.Send(contracts.MIDI{Data: []byte{0xF0, 0x01, 0xF7}}); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(f.calls, ","); got != "prepare,send,reset,unprepare" {
		t.Errorf("calls = %s", got)
	}
	if !f.doneAtUnprep {
		t.Error("header unprepared before the driver marked it done")
	}
}

func TestSendLongKeepsBufferWhenNeverReturned(t *testing.T) {
	f := &fakeWinmm{}
	m := newOutputClient(f)
	m.long.reset = procFunc(func(a ...uintptr) (uintptr, uintptr, error) { return 0, 0, nil })

	if err := m.Send(contracts.MIDI{Data: []byte{0xF0, 0x01, 0xF7}}); err == nil {
		t.Fatal("expected an error for a buffer the driver never returned")
	}
	for _, c := range f.calls {
		if c == "unprepare" {
			t.Error("unprepared a buffer still owned by the driver")
		}
	}
	if m.pending == nil {
		t.Error("pending buffer released while owned by the driver")
	}
}
