package contracts

import (
	"errors"
	"fmt"
	"strings"
)

// WireFormat selects how MIDI bytes are framed into 4-byte USB groups.
type WireFormat int

const (
	// WireFormatMultiplexed is the vendor framing: bytes[0..2] payload,
	// byte[3] = port<<4 | count. A count of 0 ends the transfer.
	WireFormatMultiplexed WireFormat = iota
	// WireFormatClassCompliant is the USB-MIDI class framing: byte[0] = cable<<4 | CIN,
	// bytes[1..3] payload. A zero byte[0] ends the transfer.
	WireFormatClassCompliant
)

// String returns the configuration name of the format.
func (f WireFormat) String() string {
	switch f {
	case WireFormatMultiplexed:
		return "multiplexed"
	case WireFormatClassCompliant:
		return "class"
	}
	return fmt.Sprintf("WireFormat(%d)", int(f))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *WireFormat) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "multiplexed", "vendor":
		*f = WireFormatMultiplexed
	case "class", "class-compliant":
		*f = WireFormatClassCompliant
	default:
		return fmt.Errorf("unknown wire format %q", text)
	}
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (f WireFormat) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// EndpointType is the USB transfer type of a pipe.
type EndpointType string

const (
	EndpointBulk      EndpointType = "bulk"
	EndpointInterrupt EndpointType = "interrupt"
)

// InterfaceInfo holds the per-device transfer constants.
type InterfaceInfo struct {
	InEndpointType  EndpointType
	OutEndpointType EndpointType
	ReadBufferSize  int
	WriteBufferSize int
}

// GroupSize is the size of one wire group in both formats.
const GroupSize = 4

// MaxPorts is the number of ports addressable by the 4-bit port nibble.
const MaxPorts = 16

// DeviceProfile describes one hardware model. The per-model differences of the
// interfaces are data, so a single codec serves them all.
type DeviceProfile struct {
	Name              string       `yaml:"name" json:"name"`
	FirmwareFile      string       `yaml:"firmware" json:"firmware,omitempty"`
	VendorID          uint16       `yaml:"vendor_id" json:"vendorId"`
	ColdBootProductID uint16       `yaml:"cold_boot_product_id" json:"coldBootProductId"`
	WarmProductID     uint16       `yaml:"warm_product_id" json:"warmProductId"`
	InputPorts        int          `yaml:"input_ports" json:"inputPorts"`
	OutputPorts       int          `yaml:"output_ports" json:"outputPorts"`
	SMPTEPort         int          `yaml:"smpte_port" json:"smptePort"`
	NumericPortNaming bool         `yaml:"numeric_port_naming" json:"numericPortNaming"`
	ReadBufferSize    int          `yaml:"read_buffer_size" json:"readBufferSize"`
	WriteBufferSize   int          `yaml:"write_buffer_size" json:"writeBufferSize"`
	WireFormat        WireFormat   `yaml:"wire_format" json:"wireFormat"`
	DualOutput        bool         `yaml:"dual_output" json:"dualOutput"`
	Interface         int          `yaml:"interface" json:"interface"`
	InEndpoint        int          `yaml:"in_endpoint" json:"inEndpoint"`
	OutEndpoints      []int        `yaml:"out_endpoints" json:"outEndpoints"`
	InEndpointType    EndpointType `yaml:"in_endpoint_type" json:"inEndpointType"`
	OutEndpointType   EndpointType `yaml:"out_endpoint_type" json:"outEndpointType"`
	MaxGroupsPerPort  int          `yaml:"max_groups_per_port" json:"maxGroupsPerPort"`
}

// ErrInvalidProfile is returned by Validate.
var ErrInvalidProfile = errors.New("invalid device profile")

// Ports returns the number of logical ports, the larger of the input and output counts.
func (p DeviceProfile) Ports() int {
	if p.InputPorts > p.OutputPorts {
		return p.InputPorts
	}
	return p.OutputPorts
}

// OutputBuffers returns how many transmit buffers the Output Multiplexer fills.
func (p DeviceProfile) OutputBuffers() int {
	if p.DualOutput && p.WireFormat == WireFormatMultiplexed {
		return 2
	}
	return 1
}

// InterfaceInfo returns the endpoint types and buffer sizes of the device.
func (p DeviceProfile) InterfaceInfo() InterfaceInfo {
	return InterfaceInfo{
		InEndpointType:  p.InEndpointType,
		OutEndpointType: p.OutEndpointType,
		ReadBufferSize:  p.ReadBufferSize,
		WriteBufferSize: p.WriteBufferSize,
	}
}

// PortName returns the user facing name of a port.
func (p DeviceProfile) PortName(port int) string {
	switch {
	case p.SMPTEPort >= 0 && port == p.SMPTEPort && p.Ports() > 1:
		return "SMPTE Port"
	case p.Ports() == 1:
		return p.Name
	case p.NumericPortNaming:
		return fmt.Sprintf("Port %d", port+1)
	}
	return fmt.Sprintf("Port %c", 'A'+port)
}

// PortInfos lists every port with its direction flags.
func (p DeviceProfile) PortInfos() []PortInfo {
	n := p.Ports()
	infos := make([]PortInfo, n)
	for i := range infos {
		infos[i] = PortInfo{
			Index:  i,
			Name:   p.PortName(i),
			Input:  i < p.InputPorts,
			Output: i < p.OutputPorts,
		}
	}
	return infos
}

// Validate checks the constraints the codec relies on.
func (p DeviceProfile) Validate() error {
	switch {
	case p.Ports() < 1 || p.Ports() > MaxPorts:
		return fmt.Errorf("%w: %s: port count %d out of range 1-%d", ErrInvalidProfile, p.Name, p.Ports(), MaxPorts)
	case p.ReadBufferSize < GroupSize || p.ReadBufferSize%GroupSize != 0:
		return fmt.Errorf("%w: %s: read buffer size %d is not a positive multiple of %d", ErrInvalidProfile, p.Name, p.ReadBufferSize, GroupSize)
	case p.WriteBufferSize < 2*GroupSize || p.WriteBufferSize%GroupSize != 0:
		return fmt.Errorf("%w: %s: write buffer size %d must be a multiple of %d holding at least two groups", ErrInvalidProfile, p.Name, p.WriteBufferSize, GroupSize)
	case len(p.OutEndpoints) < p.OutputBuffers():
		return fmt.Errorf("%w: %s: %d output buffers need as many out endpoints, have %d", ErrInvalidProfile, p.Name, p.OutputBuffers(), len(p.OutEndpoints))
	case p.MaxGroupsPerPort < 0:
		return fmt.Errorf("%w: %s: negative group limit", ErrInvalidProfile, p.Name)
	}
	return nil
}
