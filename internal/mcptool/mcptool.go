// Package mcptool exposes the driver as MCP tools over stdio.
package mcptool

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/sdk/contracts"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Device is what the tools control.
type Device interface {
	contracts.Driver
	Status() driver.Status
}

type tools struct {
	dev Device
	log contracts.Logger
}

// NewServer registers the midisport_* tools on a new MCP server.
func NewServer(dev Device, log contracts.Logger, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"MIDISPORT MCP",
		version,
		server.WithToolCapabilities(false),
	)
	t := &tools{dev: dev, log: log}

	s.AddTool(mcp.NewTool("midisport_list-ports",
		mcp.WithDescription("Lists the MIDI ports of the attached MIDISPORT interface."),
	), t.listPorts)

	s.AddTool(mcp.NewTool("midisport_status",
		mcp.WithDescription("Returns the driver state, the attached model and transfer statistics."),
	), t.status)

	s.AddTool(mcp.NewTool("midisport_send",
		mcp.WithDescription("Sends raw MIDI bytes to an output port."),
		mcp.WithNumber("port", mcp.Required(), mcp.Description("The 0-based output port.")),
		mcp.WithString("data", mcp.Required(), mcp.Description("The MIDI bytes in hex, e.g. \"90 3C 64\" or a whole SysEx dump.")),
	), t.send)

	s.AddTool(mcp.NewTool("midisport_play-note",
		mcp.WithDescription("Plays one note on an output port."),
		mcp.WithNumber("port", mcp.Required(), mcp.Description("The 0-based output port.")),
		mcp.WithNumber("note", mcp.Required(), mcp.Description("The MIDI note number (0-127).")),
		mcp.WithNumber("velocity", mcp.Description("The Note On velocity (1-127), default 100.")),
		mcp.WithNumber("channel", mcp.Description("The MIDI channel (1-16), default 1.")),
		mcp.WithNumber("duration_ms", mcp.Description("How long the note is held, default 500.")),
	), t.playNote)

	return s
}

// Serve runs s on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func (t *tools) listPorts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.log.Debug("Handling list ports request")
	ports := t.dev.Ports()
	if len(ports) == 0 {
		return mcp.NewToolResultError(driver.ErrNotRunning.Error()), nil
	}
	return jsonResult(ports)
}

func (t *tools) status(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t.log.Debug("Handling status request")
	return jsonResult(t.dev.Status())
}

func (t *tools) send(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, err := request.RequireInt("port")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	text, err := request.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := hex.DecodeString(strings.Join(strings.Fields(text), ""))
	if err != nil || len(data) == 0 {
		return mcp.NewToolResultError(fmt.Sprintf("data must be hex encoded MIDI bytes: %q", text)), nil
	}

	t.log.Debug("Handling send request", t.log.Field().Int("port", port), t.log.Field().Bytes("data", data))
	if err := t.dev.Send(contracts.MIDI{Port: port, Data: data}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Queued %d bytes on port %d.", len(data), port)), nil
}

func (t *tools) playNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	port, err := request.RequireInt("port")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	key, err := request.RequireInt("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := driver.DefaultNoteArgs()
	args.Note = key
	args.Velocity = request.GetInt("velocity", args.Velocity)
	args.Channel = request.GetInt("channel", args.Channel)
	args.DurationMS = request.GetInt("duration_ms", args.DurationMS)
	n, err := args.Note()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	t.log.Debug("Handling play note request", t.log.Field().Int("port", port), t.log.Field().Int("note", key))
	if err := driver.PlayNote(ctx, t.dev, port, n); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Played note %d on port %d, channel %d.", key, port, args.Channel)), nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	asJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result to JSON: %v", err)
	}
	return mcp.NewToolResultText(string(asJSON)), nil
}
