package ezusb

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// Vendor requests and registers of the EZ-USB controller.
const (
	RequestLoadInternal uint8  = 0xA0
	RequestLoadExternal uint8  = 0xA3
	RegCPUCS            uint16 = 0x7F92
	MaxInternalAddress  uint16 = 0x1B3F
)

const requestType = gousb.ControlOut | gousb.ControlVendor | gousb.ControlDevice

// ControlDevice issues control transfers on endpoint 0.
type ControlDevice interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Loader downloads images into a device that has not re-enumerated yet.
type Loader struct {
	dev ControlDevice
	cfg Config
}

// New returns a loader for dev.
func New(dev ControlDevice, opts ...Option) *Loader {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{dev: dev, cfg: cfg}
}

// Reset holds (hold=true) or releases the 8051 core through the CPUCS register.
func (l *Loader) Reset(hold bool) error {
	bit := []byte{0}
	if hold {
		bit[0] = 1
	}
	if _, err := l.dev.Control(requestType, RequestLoadInternal, RegCPUCS, 0, bit); err != nil {
		return fmt.Errorf("setting 8051 reset to %d: %w", bit[0], err)
	}
	return nil
}

// Download writes img in two passes. External RAM goes first, through the
// loader already running on the device; then the 8051 is held in reset and
// internal RAM is written, which overwrites that loader.
func (l *Loader) Download(phase string, img Image) error {
	if err := l.load(phase, img, false); err != nil {
		return err
	}
	if err := l.Reset(true); err != nil {
		return err
	}
	return l.load(phase, img, true)
}

func (l *Loader) load(phase string, img Image, internal bool) error {
	req, ram := RequestLoadExternal, "external"
	if internal {
		req, ram = RequestLoadInternal, "internal"
	}

	for i, rec := range img {
		if rec.Internal() != internal {
			continue
		}
		l.cfg.Logger.Debug("Downloading record",
			l.cfg.Logger.Field().String("ram", ram),
			l.cfg.Logger.Field().Int("bytes", len(rec.Data)),
			l.cfg.Logger.Field().Int("address", int(rec.Address)))
		if _, err := l.dev.Control(requestType, req, rec.Address, 0, rec.Data); err != nil {
			return fmt.Errorf("writing %d bytes to %s RAM at 0x%04X: %w", len(rec.Data), ram, rec.Address, err)
		}
		l.report(Progress{Phase: phase, Internal: internal, Record: i + 1, Total: len(img), Address: rec.Address})
	}
	return nil
}

// Start boots the device: the loader image is placed and run so that
// external RAM can be written, then the application firmware is loaded and
// the 8051 restarted. The device re-enumerates with its warm product ID.
func (l *Loader) Start(loader, firmware Image) error {
	l.cfg.Logger.Info("Downloading bootstrap loader", l.cfg.Logger.Field().Int("bytes", loader.Size()))
	if err := l.Reset(true); err != nil {
		return err
	}
	if err := l.Download(PhaseLoader, loader); err != nil {
		return fmt.Errorf("bootstrap loader: %w", err)
	}
	if err := l.Reset(false); err != nil {
		return err
	}

	l.cfg.Logger.Info("Downloading application firmware", l.cfg.Logger.Field().Int("bytes", firmware.Size()))
	if err := l.Download(PhaseFirmware, firmware); err != nil {
		return fmt.Errorf("application firmware: %w", err)
	}
	if err := l.Reset(true); err != nil {
		return err
	}
	return l.Reset(false)
}

func (l *Loader) report(p Progress) {
	if l.cfg.Progress != nil {
		l.cfg.Progress(p)
	}
}

// WaitFor polls present until it reports true, up to attempts times with
// interval between polls.
func WaitFor(ctx context.Context, attempts int, interval time.Duration, present func() (bool, error)) error {
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
		ok, err := present()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrTimeout, attempts)
}
