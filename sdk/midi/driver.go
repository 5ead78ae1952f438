package midi

import (
	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/internal/profile"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// NewDriver creates a driver for an attached MIDISPORT interface. Device
// profiles come from the configuration file named by WithConfigFile, or the
// built-in table when none is given. The device is not touched until Run.
func NewDriver(opts ...contracts.Option) (*driver.Driver, error) {
	options, err := applyDefaultOptions(opts...)
	if err != nil {
		return nil, err
	}

	cfg := profile.Default()
	if options.ConfigFile != "" {
		if cfg, err = profile.Load(options.ConfigFile); err != nil {
			return nil, err
		}
	}
	if options.Profile != nil {
		if err := options.Profile.Validate(); err != nil {
			return nil, err
		}
	}

	return driver.New(driver.NewUSBOpener(cfg, &options), &options), nil
}
