package contracts

import "errors"

// ErrNoDevices is returned by host clients when the system reports no MIDI ports.
var ErrNoDevices = errors.New("no MIDI devices found")

// DeviceInfo contains information about a MIDI device.
type DeviceInfo struct {
	Name         string // Device name.
	Manufacturer string // Device manufacturer.
	EntityName   string // Name of the entity to which the device belongs.
}

// PortInfo describes one logical MIDI port of a USB interface.
type PortInfo struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Input  bool   `json:"input"`
	Output bool   `json:"output"`
}
