package driver

import (
	"context"

	"github.com/leandrodaf/midisport/sdk/contracts"
)

// Bridge forwards messages between a host MIDI client and the device:
// captured host input goes out on DevicePort, device input goes to the host
// destination selected on Host.
type Bridge struct {
	Device     contracts.Driver
	Host       contracts.ClientMIDI
	DevicePort int
	Logger     contracts.Logger

	// ToHost disables forwarding device input to the host when false.
	ToHost bool
}

// Run forwards until ctx is cancelled. Device input stops being captured
// once Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	fromHost := make(chan contracts.MIDI, 256)
	fromDevice := make(chan contracts.MIDI, 256)
	b.Host.StartCapture(fromHost)
	if b.ToHost {
		b.Device.StartCapture(fromDevice)
		defer b.Device.StopCapture(fromDevice)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-fromHost:
			msg.Port = b.DevicePort
			if err := b.Device.Send(msg); err != nil {
				b.Logger.Warn("Forwarding host message to device failed",
					b.Logger.Field().Int("port", msg.Port),
					b.Logger.Field().Error("error", err))
			}
		case msg := <-fromDevice:
			if err := b.Host.Send(msg); err != nil {
				b.Logger.Warn("Forwarding device message to host failed",
					b.Logger.Field().Int("port", msg.Port),
					b.Logger.Field().Error("error", err))
			}
		}
	}
}
