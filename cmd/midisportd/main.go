// Command midisportd boots attached MIDISPORT interfaces, services them and
// exposes them over HTTP or MCP, optionally bridging to the host's MIDI ports.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/internal/mcptool"
	"github.com/leandrodaf/midisport/internal/profile"
	"github.com/leandrodaf/midisport/internal/server"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"github.com/leandrodaf/midisport/sdk/midi"
	"go.uber.org/multierr"
)

const version = "1.0.0"

func main() {
	options := parseFlags()
	if options.versionFlag {
		fmt.Printf("midisportd version %s\n", version)
		return
	}

	log := logger.NewStandardLogger()
	if err := run(options, log); err != nil {
		log.Fatal("midisportd failed", log.Field().Error("error", err))
	}
}

func clientOptions(o initOptions, log contracts.Logger) ([]contracts.Option, error) {
	level := contracts.InfoLevel
	if o.verbose {
		level = contracts.DebugLevel
	}
	opts := []contracts.Option{
		contracts.WithLogger(log),
		contracts.WithLogLevel(level),
		contracts.WithSysExChunkSize(o.chunk),
	}
	if o.logfile != "" {
		opts = append(opts, contracts.WithLogFilePath(o.logfile))
	}
	if o.config != "" {
		opts = append(opts, contracts.WithConfigFile(o.config))
	}
	if o.noFirmware {
		opts = append(opts, contracts.WithoutFirmwareUpload())
	}
	if len(o.only) > 0 {
		opts = append(opts, contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{Commands: o.only}))
	}
	if o.model != "" {
		cfg := profile.Default()
		if o.config != "" {
			var err error
			if cfg, err = profile.Load(o.config); err != nil {
				return nil, err
			}
		}
		p, err := cfg.ByName(o.model)
		if err != nil {
			return nil, err
		}
		opts = append(opts, contracts.WithProfile(p))
	}
	return opts, nil
}

func run(o initOptions, log contracts.Logger) error {
	opts, err := clientOptions(o, log)
	if err != nil {
		return err
	}

	if o.listHost {
		return listHost(opts)
	}

	dev, err := midi.NewDriver(opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs error
	)
	spawn := func(name string, f func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := f(ctx)
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Component stopped", log.Field().String("component", name), log.Field().Error("error", err))
				mu.Lock()
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
			}
			stop()
		}()
	}

	spawn("driver", dev.Run)

	if o.hostIn >= 0 || o.hostOut >= 0 {
		host, err := openHost(o, opts)
		if err != nil {
			stop()
			wg.Wait()
			return err
		}
		defer host.Stop()
		b := &driver.Bridge{
			Device:     dev,
			Host:       host,
			DevicePort: o.hostPort,
			Logger:     log,
			ToHost:     o.hostOut >= 0,
		}
		spawn("bridge", b.Run)
	}

	switch {
	case o.mcp:
		// ServeStdio only returns when stdin closes, so it is not waited for.
		s := mcptool.NewServer(dev, log, version)
		go func() {
			if err := mcptool.Serve(s); err != nil {
				log.Warn("MCP server stopped", log.Field().Error("error", err))
			}
			stop()
		}()
	case o.httpAddr != "":
		spawn("http", server.New(o.httpAddr, dev, log).Run)
	}

	<-ctx.Done()
	log.Info("Shutting down")
	dev.Close()
	wg.Wait()
	return errs
}

func openHost(o initOptions, opts []contracts.Option) (contracts.ClientMIDI, error) {
	host, err := midi.NewMIDIClient(opts...)
	if err != nil {
		return nil, err
	}
	if o.hostIn >= 0 {
		if err := host.SelectDevice(o.hostIn); err != nil {
			return nil, multierr.Append(err, host.Stop())
		}
	}
	if o.hostOut >= 0 {
		if err := host.SelectOutput(o.hostOut); err != nil {
			return nil, multierr.Append(err, host.Stop())
		}
	}
	return host, nil
}

func listHost(opts []contracts.Option) error {
	host, err := midi.NewMIDIClient(opts...)
	if err != nil {
		return err
	}
	defer host.Stop()

	sources, err := host.ListDevices()
	if err != nil && !errors.Is(err, contracts.ErrNoDevices) {
		return err
	}
	fmt.Println("Sources:")
	for i, d := range sources {
		fmt.Printf("  %d: %s (%s)\n", i, d.Name, d.Manufacturer)
	}

	destinations, err := host.ListOutputs()
	if err != nil && !errors.Is(err, contracts.ErrNoDevices) {
		return err
	}
	fmt.Println("Destinations:")
	for i, d := range destinations {
		fmt.Printf("  %d: %s (%s)\n", i, d.Name, d.Manufacturer)
	}
	return nil
}
