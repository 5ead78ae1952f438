package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

type fakeDevice struct {
	mu      sync.Mutex
	ports   []contracts.PortInfo
	sent    []contracts.MIDI
	sendErr error
}

func (d *fakeDevice) Run(context.Context) error        { return nil }
func (d *fakeDevice) Close() error                     { return nil }
func (d *fakeDevice) StartCapture(chan contracts.MIDI) {}
func (d *fakeDevice) StopCapture(chan contracts.MIDI)  {}
func (d *fakeDevice) Ports() []contracts.PortInfo      { return d.ports }
func (d *fakeDevice) Status() driver.Status {
	return driver.Status{State: driver.StateRunning, Device: "MIDISPORT 2x2", Ports: d.ports}
}

func (d *fakeDevice) Send(msg contracts.MIDI) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return d.sendErr
	}
	d.sent = append(d.sent, msg)
	return nil
}

func newTestServer() (*Server, *fakeDevice) {
	dev := &fakeDevice{ports: []contracts.PortInfo{
		{Index: 0, Name: "Port A", Input: true, Output: true},
		{Index: 1, Name: "Port B", Input: true, Output: true},
		{Index: 2, Name: "SMPTE Port", Input: true},
	}}
	return New(DefaultAddr, dev, logger.NewNopLogger()), dev
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s, _ := newTestServer()
	rec := do(s, "GET", "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var st driver.Status
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != driver.StateRunning || st.Device != "MIDISPORT 2x2" || len(st.Ports) != 3 {
		t.Errorf("status = %+v", st)
	}
}

func TestPorts(t *testing.T) {
	s, _ := newTestServer()
	rec := do(s, "GET", "/ports", "")
	var ports []contracts.PortInfo
	if err := json.NewDecoder(rec.Body).Decode(&ports); err != nil {
		t.Fatal(err)
	}
	if len(ports) != 3 || ports[2].Name != "SMPTE Port" || ports[2].Output {
		t.Errorf("ports = %+v", ports)
	}
}

func TestSend(t *testing.T) {
	testcases := []struct {
		path string
		body string
		code int
		want []byte
	}{
		{"/send/1", "903c64", http.StatusOK, []byte{0x90, 0x3C, 0x64}},
		{"/send/0", "F0 7E 7F 06 01 F7\n", http.StatusOK, []byte{0xF0, 0x7E, 0x7F, 0x06, 0x01, 0xF7}},
		{"/send/0", "zz", http.StatusBadRequest, nil},
		{"/send/0", "", http.StatusBadRequest, nil},
		{"/send/2", "f8", http.StatusBadRequest, nil},
		{"/send/9", "f8", http.StatusBadRequest, nil},
		{"/send/x", "f8", http.StatusBadRequest, nil},
	}
	for _, tc := range testcases {
		s, dev := newTestServer()
		rec := do(s, "POST", tc.path, tc.body)
		if rec.Code != tc.code {
			t.Errorf("POST %s %q: code %d, want %d", tc.path, tc.body, rec.Code, tc.code)
			continue
		}
		if tc.want == nil {
			if len(dev.sent) != 0 {
				t.Errorf("POST %s %q: sent %+v", tc.path, tc.body, dev.sent)
			}
			continue
		}
		if len(dev.sent) != 1 || !bytes.Equal(dev.sent[0].Data, tc.want) {
			t.Errorf("POST %s %q: sent %+v, want % X", tc.path, tc.body, dev.sent, tc.want)
		}
	}
}

func TestSendNotRunning(t *testing.T) {
	s, dev := newTestServer()
	dev.ports = nil
	if rec := do(s, "POST", "/send/0", "f8"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestSendWrongMethod(t *testing.T) {
	s, _ := newTestServer()
	if rec := do(s, "GET", "/send/0", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("code = %d", rec.Code)
	}
}

func TestNote(t *testing.T) {
	s, dev := newTestServer()
	rec := do(s, "POST", "/note/1", `{"channel":10,"note":36,"velocity":90,"duration_ms":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	want := [][]byte{{0x99, 36, 90}, {0x89, 36, 0}}
	if len(dev.sent) != len(want) {
		t.Fatalf("sent %+v", dev.sent)
	}
	for i, msg := range dev.sent {
		if msg.Port != 1 || !bytes.Equal(msg.Data, want[i]) {
			t.Errorf("message %d = %+v, want % X", i, msg, want[i])
		}
	}
}

func TestNoteDefaultsToFirstChannel(t *testing.T) {
	s, dev := newTestServer()
	rec := do(s, "POST", "/note/1", `{"note":60,"duration_ms":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body)
	}
	if len(dev.sent) != 2 || !bytes.Equal(dev.sent[0].Data, []byte{0x90, 60, 100}) {
		t.Errorf("sent %+v", dev.sent)
	}
	if !strings.Contains(rec.Body.String(), `"channel":1`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestNoteRejectsBadArguments(t *testing.T) {
	s, dev := newTestServer()
	for _, body := range []string{`{"note":200}`, `{"channel":0}`, `{"channel":17}`, `{"duration_ms":60000}`, `not json`} {
		if rec := do(s, "POST", "/note/0", body); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: code = %d", body, rec.Code)
		}
	}
	if len(dev.sent) != 0 {
		t.Errorf("sent %+v", dev.sent)
	}
}
