package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/leandrodaf/midisport/sdk/contracts"
)

func TestBuiltinProfilesAreValid(t *testing.T) {
	for _, p := range Builtin() {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: %v", p.Name, err)
		}
		if p.VendorID != VendorMAudio {
			t.Errorf("%s: vendor 0x%04X", p.Name, p.VendorID)
		}
	}
}

func TestLookup(t *testing.T) {
	cfg := Default()

	tests := []struct {
		pid      uint16
		cold     bool
		name     string
		ports    int
		maxGroup int
	}{
		{0x1010, true, "MIDISPORT 1x1", 1, 0},
		{0x1002, false, "MIDISPORT 2x2", 2, 0},
		{0x1020, true, "MIDISPORT 4x4", 4, 0},
		{0x1031, false, "MIDISPORT 8x8", 9, 2},
	}
	for _, tt := range tests {
		var (
			p   contracts.DeviceProfile
			err error
		)
		if tt.cold {
			p, err = cfg.ByColdBootID(tt.pid)
		} else {
			p, err = cfg.ByWarmID(tt.pid)
		}
		if err != nil {
			t.Errorf("lookup 0x%04X: %v", tt.pid, err)
			continue
		}
		if p.Name != tt.name || p.Ports() != tt.ports || p.MaxGroupsPerPort != tt.maxGroup {
			t.Errorf("lookup 0x%04X = %s/%d/%d, want %s/%d/%d", tt.pid, p.Name, p.Ports(), p.MaxGroupsPerPort, tt.name, tt.ports, tt.maxGroup)
		}
	}

	if _, err := cfg.ByWarmID(0x1010); !errors.Is(err, ErrUnknownProduct) {
		t.Errorf("cold ID looked up as warm: err = %v", err)
	}
	if _, err := cfg.ByName("MIDISPORT 8x8"); err != nil {
		t.Errorf("ByName: %v", err)
	}
}

func TestPortNames(t *testing.T) {
	cfg := Default()
	tests := []struct {
		name  string
		port  int
		label string
	}{
		{"MIDISPORT 1x1", 0, "MIDISPORT 1x1"},
		{"MIDISPORT 2x2", 1, "Port B"},
		{"MIDISPORT 4x4", 3, "Port D"},
		{"MIDISPORT 8x8", 0, "Port 1"},
		{"MIDISPORT 8x8", 7, "Port 8"},
		{"MIDISPORT 8x8", 8, "SMPTE Port"},
	}
	for _, tt := range tests {
		p, err := cfg.ByName(tt.name)
		if err != nil {
			t.Fatal(err)
		}
		if got := p.PortName(tt.port); got != tt.label {
			t.Errorf("%s port %d = %q, want %q", tt.name, tt.port, got, tt.label)
		}
	}
}

const sampleConfig = `
hex_loader: loader/MidiSportLoader.ihx
devices:
  - name: MIDISPORT 2x2 Anniversary
    firmware: MidiSport2x2.ihx
    cold_boot_product_id: 0x1001
    warm_product_id: 0x1002
    ports: 2
    read_buffer_size: 32
    write_buffer_size: 32
  - name: Class Box
    vendor_id: 0x1234
    warm_product_id: 0x0001
    input_ports: 1
    output_ports: 3
    smpte_port: 2
    read_buffer_size: 64
    write_buffer_size: 64
    wire_format: class
    in_endpoint: 2
    out_endpoints: [1]
    in_endpoint_type: bulk
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HexLoader != "loader/MidiSportLoader.ihx" {
		t.Errorf("hex loader = %q", cfg.HexLoader)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(cfg.Devices))
	}

	legacy := cfg.Devices[0]
	if legacy.InputPorts != 2 || legacy.OutputPorts != 2 {
		t.Errorf("legacy ports = %d/%d, want 2/2", legacy.InputPorts, legacy.OutputPorts)
	}
	if legacy.SMPTEPort != -1 {
		t.Errorf("absent smpte_port = %d, want -1", legacy.SMPTEPort)
	}
	if legacy.VendorID != VendorMAudio || legacy.InEndpoint != DefaultInEndpoint || !legacy.DualOutput {
		t.Errorf("defaults not applied: %+v", legacy)
	}

	class := cfg.Devices[1]
	if class.WireFormat != contracts.WireFormatClassCompliant {
		t.Errorf("wire format = %v", class.WireFormat)
	}
	if class.DualOutput || class.OutputBuffers() != 1 {
		t.Errorf("class device uses %d output buffers", class.OutputBuffers())
	}
	if class.Ports() != 3 || class.PortName(2) != "SMPTE Port" || class.PortName(1) != "Port B" {
		t.Errorf("ports = %d, names %q %q", class.Ports(), class.PortName(1), class.PortName(2))
	}
	if class.InEndpointType != contracts.EndpointBulk {
		t.Errorf("in endpoint type = %q", class.InEndpointType)
	}
}

func TestParseRejectsInvalidDevice(t *testing.T) {
	_, err := Parse([]byte(`
devices:
  - name: Broken
    ports: 2
    read_buffer_size: 30
    write_buffer_size: 32
`))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Index != 0 || verr.Name != "Broken" || !errors.Is(err, contracts.ErrInvalidProfile) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestParseEmptyUsesBuiltin(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Devices) != len(builtin) || cfg.HexLoader != DefaultHexLoader {
		t.Errorf("got %d devices, loader %q", len(cfg.Devices), cfg.HexLoader)
	}
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "midisport.yaml")
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, want := cfg.LoaderPath(), filepath.Join(dir, "loader", "MidiSportLoader.ihx"); got != want {
		t.Errorf("loader path = %q, want %q", got, want)
	}
	if got, want := cfg.FirmwarePath(cfg.Devices[0]), filepath.Join(dir, "MidiSport2x2.ihx"); got != want {
		t.Errorf("firmware path = %q, want %q", got, want)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
