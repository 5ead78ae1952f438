package main

import (
	"flag"
	"strconv"
	"strings"

	"github.com/leandrodaf/midisport/internal/server"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// commandList collects -only values such as "90,80" or "B0".
type commandList []contracts.MIDICommand

func (c *commandList) String() string {
	parts := make([]string, len(*c))
	for i, cmd := range *c {
		parts[i] = strconv.FormatUint(uint64(cmd), 16)
	}
	return strings.Join(parts, ",")
}

func (c *commandList) Set(value string) error {
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(part), "0x"), 16, 8)
		if err != nil {
			return err
		}
		*c = append(*c, contracts.MIDICommand(n))
	}
	return nil
}

type initOptions struct {
	config      string
	model       string
	logfile     string
	verbose     bool
	httpAddr    string
	mcp         bool
	noFirmware  bool
	chunk       int
	only        commandList
	hostIn      int
	hostOut     int
	hostPort    int
	listHost    bool
	versionFlag bool
}

func parseFlags() initOptions {
	var options initOptions
	flag.StringVar(
		&(options.config),
		"c",
		"",
		"Hardware configuration file (YAML). The built-in device table is used when empty",
	)
	flag.StringVar(
		&(options.model),
		"m",
		"",
		"Only attach to this model, e.g. \"MIDISPORT 2x2\"",
	)
	flag.StringVar(
		&(options.logfile),
		"l",
		"",
		"Log into a file, rotating after 20MB",
	)
	flag.BoolVar(
		&(options.verbose),
		"v",
		false,
		"Write every MIDI message to the log",
	)
	flag.StringVar(
		&(options.httpAddr),
		"http",
		server.DefaultAddr,
		"Serve the HTTP API on this address. Empty disables it",
	)
	flag.BoolVar(
		&(options.mcp),
		"mcp",
		false,
		"Serve MCP tools on stdin/stdout instead of the HTTP API",
	)
	flag.BoolVar(
		&(options.noFirmware),
		"no-firmware",
		false,
		"Do not upload firmware to devices that have not been booted yet",
	)
	flag.IntVar(
		&(options.chunk),
		"sysex-chunk",
		0,
		"Deliver SysEx input in fragments of at most this many bytes. 0 keeps whole messages",
	)
	flag.Var(
		&(options.only),
		"only",
		"Capture only these commands (hex status, comma separated). Example: midisportd -only 90,80",
	)
	flag.IntVar(
		&(options.hostIn),
		"host-in",
		-1,
		"Forward this host MIDI source to the device. Example: midisportd -host-in 0 -port 1",
	)
	flag.IntVar(
		&(options.hostOut),
		"host-out",
		-1,
		"Forward device input to this host MIDI destination",
	)
	flag.IntVar(
		&(options.hostPort),
		"port",
		0,
		"Device port receiving host MIDI",
	)
	flag.BoolVar(
		&(options.listHost),
		"list-host",
		false,
		"List host MIDI sources and destinations and exit",
	)
	flag.BoolVar(
		&(options.versionFlag),
		"version",
		false,
		"Write version",
	)
	flag.Parse()
	return options
}
