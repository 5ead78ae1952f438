// Package server exposes the driver over a loopback HTTP API.
package server

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/leandrodaf/midisport/internal/driver"
	"github.com/leandrodaf/midisport/sdk/contracts"
)

// DefaultAddr is the loopback address the API listens on.
const DefaultAddr = "127.0.0.1:21928"

// maxBody bounds request bodies; SysEx dumps are sent hex encoded.
const maxBody = 1 << 20

var (
	ErrMalformedData = errors.New("malformed data")
	ErrBadPort       = errors.New("bad port")
)

// Device is what the API controls.
type Device interface {
	contracts.Driver
	Status() driver.Status
}

type Server struct {
	http *http.Server
	dev  Device
	log  contracts.Logger
}

// New builds the API on addr. Requests are logged in the Apache format
// through log.
func New(addr string, dev Device, log contracts.Logger) *Server {
	s := &Server{
		http: &http.Server{Addr: addr, ReadHeaderTimeout: 5 * time.Second},
		dev:  dev,
		log:  log,
	}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.Status).Methods("GET")
	r.HandleFunc("/ports", s.Ports).Methods("GET")

	sr := r.Methods("POST").Subrouter()
	sr.HandleFunc("/send/{port}", s.Send)
	sr.HandleFunc("/note/{port}", s.Note)

	s.http.Handler = handlers.LoggingHandler(logWriter{log}, r)
	return s
}

// Handler returns the routed and logged handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("HTTP API listening", s.log.Field().String("addr", s.http.Addr))
		errc <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdown)
	}
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.dev.Status())
}

func (s *Server) Ports(w http.ResponseWriter, r *http.Request) {
	ports := s.dev.Ports()
	if ports == nil {
		ports = []contracts.PortInfo{}
	}
	s.respond(w, ports)
}

// Send queues the hex encoded body as MIDI bytes on the port.
func (s *Server) Send(w http.ResponseWriter, r *http.Request) {
	port, err := s.outputPort(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.respondError(w, err)
		return
	}
	data, err := hex.DecodeString(string(bytes.Join(bytes.Fields(body), nil)))
	if err != nil || len(data) == 0 {
		s.respondError(w, ErrMalformedData)
		return
	}

	if err := s.dev.Send(contracts.MIDI{Port: port, Data: data}); err != nil {
		s.respondError(w, err)
		return
	}

	type result struct {
		Port  int `json:"port"`
		Bytes int `json:"bytes"`
	}
	s.respond(w, result{Port: port, Bytes: len(data)})
}

// Note plays one note on the port and returns once it has been released.
// Channels are numbered 1-16, as in the MCP tool.
func (s *Server) Note(w http.ResponseWriter, r *http.Request) {
	port, err := s.outputPort(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	req := driver.DefaultNoteArgs()
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&req); err != nil {
		s.respondError(w, err)
		return
	}
	n, err := req.Note()
	if err != nil {
		s.respondError(w, err)
		return
	}

	if err := driver.PlayNote(r.Context(), s.dev, port, n); err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, req)
}

func (s *Server) outputPort(r *http.Request) (int, error) {
	port, err := strconv.Atoi(mux.Vars(r)["port"])
	if err != nil {
		return 0, ErrBadPort
	}
	ports := s.dev.Ports()
	if len(ports) == 0 {
		return 0, driver.ErrNotRunning
	}
	for _, p := range ports {
		if p.Index == port && p.Output {
			return port, nil
		}
	}
	return 0, ErrBadPort
}

func (s *Server) respond(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("Encoding response failed", s.log.Field().Error("error", err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	type jsonError struct {
		Error string `json:"error"`
	}
	status := http.StatusBadRequest
	if errors.Is(err, driver.ErrNotRunning) {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(jsonError{Error: err.Error()})
}

// logWriter feeds Apache format access lines into the structured logger.
type logWriter struct {
	log contracts.Logger
}

func (l logWriter) Write(p []byte) (int, error) {
	l.log.Info("HTTP request", l.log.Field().String("access", string(bytes.TrimSpace(p))))
	return len(p), nil
}
