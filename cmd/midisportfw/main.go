// Command midisportfw uploads firmware to MIDISPORT interfaces that have not
// been booted yet, then waits for them to re-enumerate.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/internal/ezusb"
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/internal/profile"
	"github.com/leandrodaf/midisport/internal/usbio"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

func main() {
	var (
		config  = flag.String("c", "", "Hardware configuration file (YAML). The built-in device table is used when empty")
		model   = flag.String("m", "", "Only boot this model, e.g. \"MIDISPORT 8x8\"")
		list    = flag.Bool("list", false, "List attached MIDISPORT devices and exit")
		check   = flag.String("check", "", "Parse an Intel hex file, print its records and exit")
		timeout = flag.Duration("t", driver.DefaultBootTimeout, "How long to wait for booted devices to re-enumerate")
		verbose = flag.Bool("v", false, "Log every downloaded record")
	)
	flag.Parse()

	log := logger.NewStandardLogger()
	if *verbose {
		log.SetLevel(contracts.DebugLevel)
	}

	if *check != "" {
		if err := checkHex(*check); err != nil {
			log.Fatal("Invalid hex file", log.Field().String("file", *check), log.Field().Error("error", err))
		}
		return
	}

	cfg := profile.Default()
	if *config != "" {
		var err error
		if cfg, err = profile.Load(*config); err != nil {
			log.Fatal("Loading configuration failed", log.Field().Error("error", err))
		}
	}

	bus := usbio.NewBus(log)
	defer bus.Close()

	if *list {
		if err := listDevices(bus, cfg); err != nil {
			log.Fatal("Listing devices failed", log.Field().Error("error", err))
		}
		return
	}

	opener := driver.NewUSBOpener(cfg, &contracts.ClientOptions{Logger: log, BootTimeout: *timeout})
	if *model != "" {
		p, err := cfg.ByName(*model)
		if err != nil {
			log.Fatal("Unknown model", log.Field().String("model", *model), log.Field().Error("error", err))
		}
		opener.Profile = &p
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	if err := opener.Boot(ctx, bus); err != nil {
		log.Fatal("Boot failed", log.Field().Error("error", err))
	}
	log.Info("Done", log.Field().String("elapsed", time.Since(start).Round(time.Millisecond).String()))
}

func listDevices(bus *usbio.Bus, cfg *profile.Config) error {
	found, err := bus.List(profile.VendorMAudio)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("No MIDISPORT devices attached")
		return nil
	}
	for _, a := range found {
		state, name := "unknown", fmt.Sprintf("%04x:%04x", a.VendorID, a.ProductID)
		if p, err := cfg.ByColdBootID(a.ProductID); err == nil {
			state, name = "needs firmware", p.Name
		} else if p, err := cfg.ByWarmID(a.ProductID); err == nil {
			state, name = "ready", p.Name
		}
		fmt.Printf("bus %03d device %03d: %s (%s)\n", a.Bus, a.Address, name, state)
	}
	return nil
}

func checkHex(path string) error {
	img, err := ezusb.ParseHexFile(path)
	if err != nil {
		return err
	}
	internal := 0
	for _, rec := range img {
		if rec.Internal() {
			internal += len(rec.Data)
		}
	}
	fmt.Printf("%d records, %d bytes (%d internal, %d external)\n",
		len(img), img.Size(), internal, img.Size()-internal)
	return nil
}
