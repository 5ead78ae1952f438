package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/leandrodaf/midisport/internal/logger"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"github.com/leandrodaf/midisport/sdk/midi"
)

func main() {
	log := logger.NewStandardLogger()

	dev, err := midi.NewDriver(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithMIDIEventFilter(contracts.MIDIEventFilter{
			Commands: []contracts.MIDICommand{contracts.NoteOn, contracts.NoteOff},
		}),
	)
	if err != nil {
		log.Error("Failed to initialize MIDISPORT driver", log.Field().Error("error", err))
		return
	}

	eventChannel := make(chan contracts.MIDI, 100)
	go func() {
		for event := range eventChannel {
			log.Info("MIDI Event",
				log.Field().Uint64("Timestamp", event.Timestamp),
				log.Field().Int("Port", event.Port),
				log.Field().Int("Command", int(event.Command())),
				log.Field().Int("Note", int(event.Note())),
				log.Field().Int("Velocity", int(event.Velocity())),
			)
			// Echo every note back out of the port it came in on.
			if err := dev.Send(event); err != nil {
				log.Warn("Echo failed", log.Field().Error("error", err))
			}
		}
	}()
	dev.StartCapture(eventChannel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Println("Capturing MIDI events... Press Ctrl+C to exit.")
	if err := dev.Run(ctx); err != nil {
		log.Error("Driver stopped", log.Field().Error("error", err))
	}
}
