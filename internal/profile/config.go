package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/leandrodaf/midisport/sdk/contracts"
	"gopkg.in/yaml.v3"
)

// ErrUnknownProduct is returned when no profile matches a USB product ID.
var ErrUnknownProduct = errors.New("unknown MIDISPORT product")

// ValidationError reports which device entry of a configuration is invalid.
type ValidationError struct {
	Index int
	Name  string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("device %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Config is the hardware configuration: the loader image and the device table.
type Config struct {
	HexLoader string
	Devices   []contracts.DeviceProfile

	dir string
}

// device mirrors contracts.DeviceProfile with optional fields so that absent
// keys can be told apart from zero values.
type device struct {
	Name              string               `yaml:"name"`
	FirmwareFile      string               `yaml:"firmware"`
	VendorID          uint16               `yaml:"vendor_id"`
	ColdBootProductID uint16               `yaml:"cold_boot_product_id"`
	WarmProductID     uint16               `yaml:"warm_product_id"`
	Ports             *int                 `yaml:"ports"`
	InputPorts        *int                 `yaml:"input_ports"`
	OutputPorts       *int                 `yaml:"output_ports"`
	SMPTEPort         *int                 `yaml:"smpte_port"`
	NumericPortNaming bool                 `yaml:"numeric_port_naming"`
	ReadBufferSize    int                  `yaml:"read_buffer_size"`
	WriteBufferSize   int                  `yaml:"write_buffer_size"`
	WireFormat        contracts.WireFormat `yaml:"wire_format"`
	DualOutput        *bool                `yaml:"dual_output"`
	Interface         int                  `yaml:"interface"`
	InEndpoint        int                  `yaml:"in_endpoint"`
	OutEndpoints      []int                `yaml:"out_endpoints"`
	InEndpointType    string               `yaml:"in_endpoint_type"`
	OutEndpointType   string               `yaml:"out_endpoint_type"`
	MaxGroupsPerPort  int                  `yaml:"max_groups_per_port"`
}

type file struct {
	HexLoader string   `yaml:"hex_loader"`
	Devices   []device `yaml:"devices"`
}

// Default returns the configuration made of the built-in table.
func Default() *Config {
	return &Config{HexLoader: DefaultHexLoader, Devices: Builtin()}
}

// Load reads a hardware configuration file. Relative firmware paths are
// resolved against the directory of path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hardware configuration: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a hardware configuration document. A document without
// devices gets the built-in table.
func Parse(data []byte) (*Config, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing hardware configuration: %w", err)
	}

	cfg := &Config{HexLoader: f.HexLoader}
	if cfg.HexLoader == "" {
		cfg.HexLoader = DefaultHexLoader
	}
	if len(f.Devices) == 0 {
		cfg.Devices = Builtin()
		return cfg, nil
	}

	for i, d := range f.Devices {
		p := d.profile()
		if err := p.Validate(); err != nil {
			return nil, &ValidationError{Index: i, Name: p.Name, Err: err}
		}
		cfg.Devices = append(cfg.Devices, p)
	}
	return cfg, nil
}

func (d device) profile() contracts.DeviceProfile {
	p := contracts.DeviceProfile{
		Name:              d.Name,
		FirmwareFile:      d.FirmwareFile,
		VendorID:          d.VendorID,
		ColdBootProductID: d.ColdBootProductID,
		WarmProductID:     d.WarmProductID,
		SMPTEPort:         -1,
		NumericPortNaming: d.NumericPortNaming,
		ReadBufferSize:    d.ReadBufferSize,
		WriteBufferSize:   d.WriteBufferSize,
		WireFormat:        d.WireFormat,
		Interface:         d.Interface,
		InEndpoint:        d.InEndpoint,
		OutEndpoints:      d.OutEndpoints,
		InEndpointType:    contracts.EndpointType(d.InEndpointType),
		OutEndpointType:   contracts.EndpointType(d.OutEndpointType),
		MaxGroupsPerPort:  d.MaxGroupsPerPort,
	}
	// The legacy port count sets both directions; explicit counts win.
	if d.Ports != nil {
		p.InputPorts, p.OutputPorts = *d.Ports, *d.Ports
	}
	if d.InputPorts != nil {
		p.InputPorts = *d.InputPorts
	}
	if d.OutputPorts != nil {
		p.OutputPorts = *d.OutputPorts
	}
	if d.SMPTEPort != nil {
		p.SMPTEPort = *d.SMPTEPort
	}

	p = withDefaults(p)
	if d.DualOutput != nil {
		p.DualOutput = *d.DualOutput
	}
	return p
}

// ByColdBootID returns the profile whose firmware-less product ID is pid.
func (c *Config) ByColdBootID(pid uint16) (contracts.DeviceProfile, error) {
	for _, p := range c.Devices {
		if p.ColdBootProductID == pid {
			return p, nil
		}
	}
	return contracts.DeviceProfile{}, fmt.Errorf("%w: cold boot product 0x%04X", ErrUnknownProduct, pid)
}

// ByWarmID returns the profile whose running-firmware product ID is pid.
func (c *Config) ByWarmID(pid uint16) (contracts.DeviceProfile, error) {
	for _, p := range c.Devices {
		if p.WarmProductID == pid {
			return p, nil
		}
	}
	return contracts.DeviceProfile{}, fmt.Errorf("%w: product 0x%04X", ErrUnknownProduct, pid)
}

// ByName returns the profile with the given model name.
func (c *Config) ByName(name string) (contracts.DeviceProfile, error) {
	for _, p := range c.Devices {
		if p.Name == name {
			return p, nil
		}
	}
	return contracts.DeviceProfile{}, fmt.Errorf("%w: %q", ErrUnknownProduct, name)
}

// Resolve turns a path from the configuration into one usable from the
// working directory.
func (c *Config) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

// LoaderPath returns the resolved path of the EZ-USB loader image.
func (c *Config) LoaderPath() string {
	return c.Resolve(c.HexLoader)
}

// FirmwarePath returns the resolved firmware path of p.
func (c *Config) FirmwarePath(p contracts.DeviceProfile) string {
	return c.Resolve(p.FirmwareFile)
}
