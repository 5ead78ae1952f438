package codec

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type delivery struct {
	port int
	msgs [][]byte
}

// collector records every Received call.
type collector struct {
	calls []delivery
}

func (c *collector) Received(port int, _ uint64, msgs []contracts.MIDI) {
	d := delivery{port: port}
	for _, m := range msgs {
		if m.Port != port {
			panic(fmt.Sprintf("message for port %d delivered in call for port %d", m.Port, port))
		}
		d.msgs = append(d.msgs, m.Data)
	}
	c.calls = append(c.calls, d)
}

// byPort flattens the recorded calls into per-port message lists.
func (c *collector) byPort() map[int][][]byte {
	out := map[int][][]byte{}
	for _, d := range c.calls {
		out[d.port] = append(out[d.port], d.msgs...)
	}
	return out
}

func newTestLogger() (contracts.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return logger.NewWithCore(core), logs
}

func newDecoder(format contracts.WireFormat) (*Decoder, *collector) {
	c := &collector{}
	log, _ := newTestLogger()
	return &Decoder{Format: format, Sink: c, Logger: log}, c
}

func newEncoder(format contracts.WireFormat) *Encoder {
	log, _ := newTestLogger()
	return &Encoder{Format: format, Logger: log}
}

func cat(groups ...[]byte) []byte {
	return bytes.Join(groups, nil)
}

func equalMsgs(t *testing.T, what string, got, want [][]byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d messages % X, want %d % X", what, len(got), got, len(want), want)
	}
	for i := range want {
		if !bytes.Equal(got[i], want[i]) {
			t.Errorf("%s: message %d = % X, want % X", what, i, got[i], want[i])
		}
	}
}
