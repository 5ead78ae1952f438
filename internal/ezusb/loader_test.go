package ezusb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type call struct {
	req  uint8
	val  uint16
	data []byte
}

func (c call) String() string {
	return fmt.Sprintf("%02X@%04X[% X]", c.req, c.val, c.data)
}

type fakeDevice struct {
	calls  []call
	failAt int
}

func (f *fakeDevice) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	if rType != 0x40 || idx != 0 {
		return 0, fmt.Errorf("unexpected request type 0x%02X index %d", rType, idx)
	}
	f.calls = append(f.calls, call{request, val, append([]byte(nil), data...)})
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return 0, errors.New("stall")
	}
	return len(data), nil
}

var (
	hold    = call{0xA0, 0x7F92, []byte{1}}
	release = call{0xA0, 0x7F92, []byte{0}}
)

func expectCalls(t *testing.T, got, want []call) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d calls %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i].req != want[i].req || got[i].val != want[i].val || !bytes.Equal(got[i].data, want[i].data) {
			t.Errorf("call %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownloadTwoPass(t *testing.T) {
	dev := &fakeDevice{}
	img := Image{
		{Address: 0x0000, Data: []byte{0x55}},
		{Address: 0x2000, Data: []byte{0xAA, 0xBB}},
		{Address: 0x1B3F, Data: []byte{0x01}},
	}

	var progress []Progress
	l := New(dev, WithProgressCallback(func(p Progress) { progress = append(progress, p) }))
	if err := l.Download(PhaseFirmware, img); err != nil {
		t.Fatal(err)
	}

	expectCalls(t, dev.calls, []call{
		{0xA3, 0x2000, []byte{0xAA, 0xBB}},
		hold,
		{0xA0, 0x0000, []byte{0x55}},
		{0xA0, 0x1B3F, []byte{0x01}},
	})
	if len(progress) != 3 || progress[0].Internal || !progress[2].Internal || progress[2].Record != 3 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestStartSequence(t *testing.T) {
	dev := &fakeDevice{}
	loader := Image{{Address: 0x0100, Data: []byte{0x10}}}
	firmware := Image{{Address: 0x4000, Data: []byte{0x20}}, {Address: 0x0000, Data: []byte{0x30}}}

	if err := New(dev).Start(loader, firmware); err != nil {
		t.Fatal(err)
	}
	expectCalls(t, dev.calls, []call{
		hold,
		hold,
		{0xA0, 0x0100, []byte{0x10}},
		release,
		{0xA3, 0x4000, []byte{0x20}},
		hold,
		{0xA0, 0x0000, []byte{0x30}},
		hold,
		release,
	})
}

func TestStartStopsOnError(t *testing.T) {
	dev := &fakeDevice{failAt: 3}
	loader := Image{{Address: 0x0100, Data: []byte{0x10}}}
	err := New(dev).Start(loader, loader)
	if err == nil {
		t.Fatal("Start succeeded despite a stalled transfer")
	}
	if len(dev.calls) != 3 {
		t.Errorf("made %d calls after failure, want 3", len(dev.calls))
	}
}

func TestWaitFor(t *testing.T) {
	polls := 0
	err := WaitFor(context.Background(), 5, time.Millisecond, func() (bool, error) {
		polls++
		return polls == 3, nil
	})
	if err != nil || polls != 3 {
		t.Errorf("WaitFor = %v after %d polls, want nil after 3", err, polls)
	}

	err = WaitFor(context.Background(), 2, time.Millisecond, func() (bool, error) { return false, nil })
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("WaitFor = %v, want ErrTimeout", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WaitFor(ctx, 3, time.Hour, func() (bool, error) { return false, nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFor = %v, want context.Canceled", err)
	}
}
