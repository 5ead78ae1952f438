package driver

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/leandrodaf/midisport/internal/ezusb"
	"github.com/leandrodaf/midisport/internal/profile"
	"github.com/leandrodaf/midisport/internal/session"
	"github.com/leandrodaf/midisport/internal/usbio"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"go.uber.org/multierr"
)

// PollInterval is the time between checks for a re-enumerated device.
const PollInterval = 2 * time.Second

// DefaultBootTimeout allows the usual ten polls for re-enumeration.
const DefaultBootTimeout = 10 * PollInterval

// USBOpener boots cold devices and attaches to the first warm one.
type USBOpener struct {
	Config         *profile.Config
	Profile        *contracts.DeviceProfile
	Logger         contracts.Logger
	SkipFirmware   bool
	BootTimeout    time.Duration
	SysExChunkSize int
}

// NewUSBOpener builds an opener from client options.
func NewUSBOpener(cfg *profile.Config, opts *contracts.ClientOptions) *USBOpener {
	return &USBOpener{
		Config:         cfg,
		Profile:        opts.Profile,
		Logger:         opts.Logger,
		SkipFirmware:   opts.SkipFirmware,
		BootTimeout:    opts.BootTimeout,
		SysExChunkSize: opts.SysExChunkSize,
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Open implements Opener.
func (o *USBOpener) Open(ctx context.Context, sink contracts.Receiver) (*session.Session, io.Closer, error) {
	bus := usbio.NewBus(o.Logger)

	if !o.SkipFirmware {
		if err := o.Boot(ctx, bus); err != nil {
			return nil, nil, multierr.Append(err, bus.Close())
		}
	}

	p, dev, err := o.openWarm(bus)
	if err != nil {
		return nil, nil, multierr.Append(err, bus.Close())
	}
	release := closerFunc(func() error {
		return multierr.Combine(dev.Close(), bus.Close())
	})

	pipes, err := dev.Claim(p)
	if err != nil {
		return nil, nil, multierr.Append(err, release.Close())
	}
	outs := make([]session.OutPipe, len(pipes.Out))
	for i, out := range pipes.Out {
		outs[i] = out
	}

	sess, err := session.New(p, pipes.In, outs,
		session.WithLogger(o.Logger),
		session.WithReceiver(sink),
		session.WithSysExChunkSize(o.SysExChunkSize))
	if err != nil {
		return nil, nil, multierr.Append(err, release.Close())
	}
	return sess, release, nil
}

func (o *USBOpener) profiles() []contracts.DeviceProfile {
	if o.Profile != nil {
		return []contracts.DeviceProfile{*o.Profile}
	}
	return o.Config.Devices
}

// BootBus is the part of usbio.Bus that booting needs.
type BootBus interface {
	List(vid uint16, pids ...uint16) ([]usbio.Attached, error)
	OpenControl(a usbio.Attached) (usbio.ControlCloser, error)
}

// Boot uploads firmware to every attached cold-boot device and waits for
// them to come back with their warm product IDs.
func (o *USBOpener) Boot(ctx context.Context, bus BootBus) error {
	var booted []contracts.DeviceProfile
	for _, p := range o.profiles() {
		if p.ColdBootProductID == 0 {
			continue
		}
		found, err := bus.List(p.VendorID, p.ColdBootProductID)
		if err != nil {
			return err
		}
		for _, a := range found {
			if err := o.boot(bus, p, a); err != nil {
				return err
			}
			booted = append(booted, p)
		}
	}

	timeout := o.BootTimeout
	if timeout <= 0 {
		timeout = DefaultBootTimeout
	}
	attempts := int(timeout / PollInterval)
	if attempts < 1 {
		attempts = 1
	}

	// Every booted unit must come back, not just the first of a model.
	type warmID struct{ vid, pid uint16 }
	want := make(map[warmID]int)
	var order []contracts.DeviceProfile
	for _, p := range booted {
		id := warmID{p.VendorID, p.WarmProductID}
		if want[id] == 0 {
			order = append(order, p)
		}
		want[id]++
	}
	for _, p := range order {
		n := want[warmID{p.VendorID, p.WarmProductID}]
		o.Logger.Info("Waiting for device to re-enumerate",
			o.Logger.Field().String("device", p.Name),
			o.Logger.Field().Int("units", n))
		err := ezusb.WaitFor(ctx, attempts, PollInterval, func() (bool, error) {
			found, err := bus.List(p.VendorID, p.WarmProductID)
			return len(found) >= n, err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
	}
	return nil
}

func (o *USBOpener) boot(bus BootBus, p contracts.DeviceProfile, a usbio.Attached) error {
	loader, err := ezusb.ParseHexFile(o.Config.LoaderPath())
	if err != nil {
		return fmt.Errorf("loading bootstrap loader: %w", err)
	}
	firmware, err := ezusb.ParseHexFile(o.Config.FirmwarePath(p))
	if err != nil {
		return fmt.Errorf("loading %s firmware: %w", p.Name, err)
	}

	dev, err := bus.OpenControl(a)
	if err != nil {
		return err
	}
	o.Logger.Info("Booting device",
		o.Logger.Field().String("device", p.Name),
		o.Logger.Field().Int("bus", a.Bus),
		o.Logger.Field().Int("address", a.Address),
		o.Logger.Field().String("firmware", p.FirmwareFile))

	l := ezusb.New(dev,
		ezusb.WithLogger(o.Logger),
		ezusb.WithProgressCallback(func(pr ezusb.Progress) {
			if pr.Record == pr.Total {
				o.Logger.Debug("Download pass complete",
					o.Logger.Field().String("phase", pr.Phase),
					o.Logger.Field().Bool("internal", pr.Internal))
			}
		}))
	return multierr.Append(l.Start(loader, firmware), dev.Close())
}

func (o *USBOpener) openWarm(bus *usbio.Bus) (contracts.DeviceProfile, *usbio.Device, error) {
	for _, p := range o.profiles() {
		found, err := bus.List(p.VendorID, p.WarmProductID)
		if err != nil {
			return p, nil, err
		}
		if len(found) == 0 {
			continue
		}
		dev, err := bus.Open(p.VendorID, p.WarmProductID)
		return p, dev, err
	}
	return contracts.DeviceProfile{}, nil, fmt.Errorf("%w: no MIDISPORT with running firmware", usbio.ErrNotFound)
}
