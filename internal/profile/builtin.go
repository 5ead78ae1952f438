// Package profile holds the MIDISPORT device table and loads hardware
// configuration files that extend or replace it.
package profile

import "github.com/leandrodaf/midisport/sdk/contracts"

// VendorMAudio is the USB vendor ID of every MIDISPORT model.
const VendorMAudio uint16 = 0x0763

// DefaultHexLoader is the EZ-USB loader image used when the configuration
// does not name one.
const DefaultHexLoader = "MidiSportLoader.ihx"

// Input endpoints: the firmware normally reports on DefaultInEndpoint; some
// revisions only expose AltInEndpoint.
const (
	DefaultInEndpoint = 1
	AltInEndpoint     = 2
)

var defaultOutEndpoints = []int{2, 4}

var builtin = []contracts.DeviceProfile{
	{
		Name:              "MIDISPORT 1x1",
		FirmwareFile:      "MidiSport1x1.ihx",
		ColdBootProductID: 0x1010,
		WarmProductID:     0x1011,
		InputPorts:        1,
		OutputPorts:       1,
		SMPTEPort:         -1,
		ReadBufferSize:    32,
		WriteBufferSize:   32,
	},
	{
		Name:              "MIDISPORT 2x2",
		FirmwareFile:      "MidiSport2x2.ihx",
		ColdBootProductID: 0x1001,
		WarmProductID:     0x1002,
		InputPorts:        2,
		OutputPorts:       2,
		SMPTEPort:         -1,
		ReadBufferSize:    32,
		WriteBufferSize:   32,
	},
	{
		Name:              "MIDISPORT 4x4",
		FirmwareFile:      "MidiSport4x4.ihx",
		ColdBootProductID: 0x1020,
		WarmProductID:     0x1021,
		InputPorts:        4,
		OutputPorts:       4,
		SMPTEPort:         -1,
		ReadBufferSize:    64,
		WriteBufferSize:   64,
	},
	{
		Name:              "MIDISPORT 8x8",
		FirmwareFile:      "MidiSport8x8.ihx",
		ColdBootProductID: 0x1030,
		WarmProductID:     0x1031,
		InputPorts:        9,
		OutputPorts:       9,
		SMPTEPort:         8,
		NumericPortNaming: true,
		ReadBufferSize:    64,
		WriteBufferSize:   32,
		MaxGroupsPerPort:  2,
	},
}

// Builtin returns the known MIDISPORT models.
func Builtin() []contracts.DeviceProfile {
	out := make([]contracts.DeviceProfile, len(builtin))
	for i, p := range builtin {
		out[i] = withDefaults(p)
	}
	return out
}

// withDefaults fills the transport fields shared by every model.
func withDefaults(p contracts.DeviceProfile) contracts.DeviceProfile {
	if p.VendorID == 0 {
		p.VendorID = VendorMAudio
	}
	if p.InEndpoint == 0 {
		p.InEndpoint = DefaultInEndpoint
	}
	if len(p.OutEndpoints) == 0 {
		p.OutEndpoints = append([]int(nil), defaultOutEndpoints...)
	} else {
		p.OutEndpoints = append([]int(nil), p.OutEndpoints...)
	}
	if p.InEndpointType == "" {
		p.InEndpointType = contracts.EndpointInterrupt
	}
	if p.OutEndpointType == "" {
		p.OutEndpointType = contracts.EndpointBulk
	}
	if p.WireFormat == contracts.WireFormatMultiplexed && len(p.OutEndpoints) > 1 {
		p.DualOutput = true
	}
	return p
}
