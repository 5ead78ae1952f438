// Package usbio opens MIDISPORT devices through libusb (gousb) and exposes
// their endpoints as pipes.
package usbio

import (
	"errors"
	"fmt"

	"github.com/google/gousb"
	"github.com/leandrodaf/midisport/internal/profile"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"go.uber.org/multierr"
)

// ErrNotFound is returned when no attached device matches.
var ErrNotFound = errors.New("device not found")

// Error records the USB operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	return "usb: " + e.Op + ": " + e.Err.Error()
}

func wrapErr(op string, err *error) {
	if *err != nil {
		*err = &Error{op, *err}
	}
}

// Attached describes a device seen on the bus.
type Attached struct {
	VendorID  uint16
	ProductID uint16
	Bus       int
	Address   int
}

// Matches reports whether desc is the device a was listed from.
func (a Attached) Matches(desc *gousb.DeviceDesc) bool {
	return uint16(desc.Vendor) == a.VendorID && uint16(desc.Product) == a.ProductID &&
		desc.Bus == a.Bus && desc.Address == a.Address
}

// ControlCloser is an open device used only for control transfers.
type ControlCloser interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
	Close() error
}

// Bus is a libusb context.
type Bus struct {
	ctx *gousb.Context
	log contracts.Logger
}

// NewBus opens a libusb context.
func NewBus(log contracts.Logger) *Bus {
	return &Bus{ctx: gousb.NewContext(), log: log}
}

// Close releases the libusb context.
func (b *Bus) Close() (err error) {
	defer wrapErr("Close", &err)
	return b.ctx.Close()
}

// List returns every attached device with the given vendor ID whose product
// ID is one of pids, or any product when pids is empty.
func (b *Bus) List(vid uint16, pids ...uint16) (found []Attached, err error) {
	defer wrapErr("List", &err)

	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if uint16(desc.Vendor) != vid {
			return false
		}
		if len(pids) == 0 {
			return true
		}
		for _, pid := range pids {
			if uint16(desc.Product) == pid {
				return true
			}
		}
		return false
	})
	for _, d := range devs {
		found = append(found, Attached{
			VendorID:  uint16(d.Desc.Vendor),
			ProductID: uint16(d.Desc.Product),
			Bus:       d.Desc.Bus,
			Address:   d.Desc.Address,
		})
		err = multierr.Append(err, d.Close())
	}
	return found, err
}

// Open opens the first device with the given IDs.
func (b *Bus) Open(vid, pid uint16) (d *Device, err error) {
	defer wrapErr("Open", &err)

	dev, err := b.ctx.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return nil, err
	}
	if dev == nil {
		return nil, fmt.Errorf("%w: %04x:%04x", ErrNotFound, vid, pid)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		b.log.Debug("Auto detach unavailable", b.log.Field().Error("error", err))
	}
	return &Device{dev: dev, log: b.log}, nil
}

// OpenAttached opens the device at the bus address recorded in a. Several
// units of one model share their IDs, so the address tells them apart.
func (b *Bus) OpenAttached(a Attached) (d *Device, err error) {
	defer wrapErr("OpenAttached", &err)

	var picked *gousb.Device
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return a.Matches(desc)
	})
	for _, dev := range devs {
		if picked == nil {
			picked = dev
			continue
		}
		err = multierr.Append(err, dev.Close())
	}
	if picked == nil {
		if err == nil {
			err = fmt.Errorf("%w: %04x:%04x at bus %d address %d", ErrNotFound, a.VendorID, a.ProductID, a.Bus, a.Address)
		}
		return nil, err
	}
	if err != nil {
		b.log.Debug("Ignoring errors from unrelated devices", b.log.Field().Error("error", err))
	}
	if aerr := picked.SetAutoDetach(true); aerr != nil {
		b.log.Debug("Auto detach unavailable", b.log.Field().Error("error", aerr))
	}
	return &Device{dev: picked, log: b.log}, nil
}

// OpenControl is OpenAttached for callers that only issue control transfers.
func (b *Bus) OpenControl(a Attached) (ControlCloser, error) {
	d, err := b.OpenAttached(a)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Device is an open USB device.
type Device struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	log  contracts.Logger
}

// ProductID returns the product ID the device enumerated with.
func (d *Device) ProductID() uint16 {
	return uint16(d.dev.Desc.Product)
}

// String identifies the device in logs.
func (d *Device) String() string {
	return d.dev.String()
}

// Control issues a control transfer on endpoint 0.
func (d *Device) Control(rType, request uint8, val, idx uint16, data []byte) (n int, err error) {
	defer wrapErr("Control", &err)
	return d.dev.Control(rType, request, val, idx, data)
}

// Pipes are the claimed endpoints of a device.
type Pipes struct {
	In  *gousb.InEndpoint
	Out []*gousb.OutEndpoint
}

// Claim selects the active configuration, claims the MIDI interface of p and
// opens its endpoints. The input endpoint falls back to the alternate number
// when the configured one is missing.
func (d *Device) Claim(p contracts.DeviceProfile) (pipes *Pipes, err error) {
	defer wrapErr("Claim", &err)

	num, err := d.dev.ActiveConfigNum()
	if err != nil {
		return nil, err
	}
	if d.cfg, err = d.dev.Config(num); err != nil {
		return nil, err
	}
	if d.intf, err = d.cfg.Interface(p.Interface, 0); err != nil {
		return nil, err
	}

	pipes = &Pipes{}
	pipes.In, err = d.intf.InEndpoint(p.InEndpoint)
	if err != nil && p.InEndpoint != profile.AltInEndpoint {
		d.log.Debug("Input endpoint missing, trying alternate",
			d.log.Field().Int("endpoint", p.InEndpoint),
			d.log.Field().Int("alternate", profile.AltInEndpoint))
		pipes.In, err = d.intf.InEndpoint(profile.AltInEndpoint)
	}
	if err != nil {
		return nil, err
	}

	for _, num := range p.OutEndpoints[:p.OutputBuffers()] {
		out, err := d.intf.OutEndpoint(num)
		if err != nil {
			return nil, err
		}
		pipes.Out = append(pipes.Out, out)
	}
	return pipes, nil
}

// Close releases the interface, configuration and device.
func (d *Device) Close() (err error) {
	defer wrapErr("Close", &err)
	if d.intf != nil {
		d.intf.Close()
	}
	if d.cfg != nil {
		err = multierr.Append(err, d.cfg.Close())
	}
	return multierr.Append(err, d.dev.Close())
}
