package mcptool

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"github.com/mark3labs/mcp-go/mcp"
)

type fakeDevice struct {
	mu    sync.Mutex
	ports []contracts.PortInfo
	sent  []contracts.MIDI
}

func (d *fakeDevice) Run(context.Context) error        { return nil }
func (d *fakeDevice) Close() error                     { return nil }
func (d *fakeDevice) StartCapture(chan contracts.MIDI) {}
func (d *fakeDevice) StopCapture(chan contracts.MIDI)  {}
func (d *fakeDevice) Ports() []contracts.PortInfo      { return d.ports }
func (d *fakeDevice) Status() driver.Status {
	return driver.Status{State: driver.StateRunning, Device: "MIDISPORT 4x4"}
}

func (d *fakeDevice) Send(msg contracts.MIDI) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}

func newTools() (*tools, *fakeDevice) {
	dev := &fakeDevice{ports: []contracts.PortInfo{{Index: 0, Name: "Port A", Input: true, Output: true}}}
	return &tools{dev: dev, log: logger.NewNopLogger()}, dev
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatal("empty result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return text.Text
}

func TestListPorts(t *testing.T) {
	tl, dev := newTools()
	res, err := tl.listPorts(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	var ports []contracts.PortInfo
	if err := json.Unmarshal([]byte(resultText(t, res)), &ports); err != nil {
		t.Fatal(err)
	}
	if len(ports) != 1 || ports[0].Name != "Port A" {
		t.Errorf("ports = %+v", ports)
	}

	dev.ports = nil
	res, _ = tl.listPorts(context.Background(), call(nil))
	if !res.IsError {
		t.Error("expected an error result without a device")
	}
}

func TestStatusTool(t *testing.T) {
	tl, _ := newTools()
	res, err := tl.status(context.Background(), call(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resultText(t, res), "MIDISPORT 4x4") {
		t.Errorf("status = %s", resultText(t, res))
	}
}

func TestSendTool(t *testing.T) {
	testcases := []struct {
		args    map[string]interface{}
		isError bool
		want    []byte
	}{
		{map[string]interface{}{"port": 0, "data": "b0 07 7f"}, false, []byte{0xB0, 0x07, 0x7F}},
		{map[string]interface{}{"port": 0, "data": "nothex"}, true, nil},
		{map[string]interface{}{"port": 0}, true, nil},
		{map[string]interface{}{"data": "f8"}, true, nil},
	}
	for _, tc := range testcases {
		tl, dev := newTools()
		res, err := tl.send(context.Background(), call(tc.args))
		if err != nil {
			t.Fatal(err)
		}
		if res.IsError != tc.isError {
			t.Errorf("%v: IsError = %v", tc.args, res.IsError)
			continue
		}
		if tc.want != nil && (len(dev.sent) != 1 || !bytes.Equal(dev.sent[0].Data, tc.want)) {
			t.Errorf("%v: sent %+v", tc.args, dev.sent)
		}
	}
}

func TestPlayNoteTool(t *testing.T) {
	tl, dev := newTools()
	res, err := tl.playNote(context.Background(), call(map[string]interface{}{
		"port": 0, "note": 60, "channel": 10, "duration_ms": 1,
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("error result: %s", resultText(t, res))
	}
	want := [][]byte{{0x99, 60, 100}, {0x89, 60, 0}}
	if len(dev.sent) != 2 {
		t.Fatalf("sent %+v", dev.sent)
	}
	for i := range want {
		if !bytes.Equal(dev.sent[i].Data, want[i]) {
			t.Errorf("message %d = % X, want % X", i, dev.sent[i].Data, want[i])
		}
	}

	res, _ = tl.playNote(context.Background(), call(map[string]interface{}{"port": 0, "note": 60, "channel": 0}))
	if !res.IsError {
		t.Error("channel 0 accepted")
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	dev := &fakeDevice{}
	if s := NewServer(dev, logger.NewNopLogger(), "test"); s == nil {
		t.Fatal("nil server")
	}
}
