// Package httpapi is the HTTP/JSON surface (component E): a mirror of
// the gRPC surface's operations plus a server-sent-events stream of
// registry activity, for consumers that would rather not speak gRPC.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lengoman/grpc-hub/internal/eventbus"
	"github.com/lengoman/grpc-hub/internal/huberr"
	"github.com/lengoman/grpc-hub/internal/proxy"
	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/telemetry"
)

// KeepAliveInterval governs how often an idle SSE stream gets a
// comment-only ping (§3: "30s keep-alive pings").
const KeepAliveInterval = 30 * time.Second

// Server wires registry/bus/proxy operations onto a *http.ServeMux.
type Server struct {
	store *registry.Store
	bus   *eventbus.Bus
	proxy *proxy.Proxy
	log   telemetry.Logger
}

// New constructs a Server. log may be nil.
func New(store *registry.Store, bus *eventbus.Bus, px *proxy.Proxy, log telemetry.Logger) *Server {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	return &Server{store: store, bus: bus, proxy: px, log: log}
}

// Mux builds the HTTP route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", s.handleListServices)
	mux.HandleFunc("GET /api/services/{id}", s.handleGetService)
	mux.HandleFunc("DELETE /api/services/{id}", s.handleUnregister)
	mux.HandleFunc("POST /api/services", s.handleRegister)
	mux.HandleFunc("POST /api/services/{id}/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("GET /api/service-schema", s.handleServiceSchema)
	mux.HandleFunc("POST /api/grpc-call", s.handleForwardCall)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return mux
}

// handleIndex serves the peripheral browser UI's landing page (§1:
// presentation is out of scope for this core, so this is the smallest
// stub that makes "GET /" a valid, documented endpoint rather than a
// 404 — a real UI build would replace this with a static file server).
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, "<!doctype html><title>grpc-hub</title><p>grpc-hub is running. See /api/services.</p>")
}

type registerRequest struct {
	ServiceName    string            `json:"service_name"`
	ServiceVersion string            `json:"service_version"`
	FQServiceName  string            `json:"fq_service_name"`
	Address        string            `json:"address"`
	Port           string            `json:"port"`
	Methods        []string          `json:"methods"`
	Metadata       map[string]string `json:"metadata"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	id, err := s.store.Register(req.ServiceName, req.ServiceVersion, req.FQServiceName, req.Address, req.Port, req.Methods, req.Metadata)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"service_id": id})
}

type unregisterResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Unregister(id); err != nil {
		writeHuberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, unregisterResponse{Success: true, Message: "service unregistered"})
}

type listServicesResponse struct {
	Services []*registry.Record `json:"services"`
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("service_name")
	writeJSON(w, http.StatusOK, listServicesResponse{Services: s.store.List(registry.Filter{Name: name})})
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.PathValue("id"))
	if err != nil {
		writeHuberr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type heartbeatRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if err := s.store.Heartbeat(r.PathValue("id"), registry.Status(req.Status)); err != nil {
		writeHuberr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// forwardCallRequest mirrors the wire contract of §4.5 exactly: `service`,
// `method`, `input`, and an optional explicit `host`/`port` pair that
// bypasses registry discovery and addresses a downstream directly.
type forwardCallRequest struct {
	Service string          `json:"service"`
	Method  string          `json:"method"`
	Input   json.RawMessage `json:"input"`
	Host    string          `json:"host"`
	Port    string          `json:"port"`
}

type forwardCallResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleForwardCall(w http.ResponseWriter, r *http.Request) {
	var req forwardCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	rec, ok := s.resolveTarget(req.Service, req.Host, req.Port)
	if !ok {
		writeJSON(w, http.StatusBadGateway, forwardCallResponse{Success: false, Error: "no dispatchable instance for " + req.Service})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), proxy.CallTimeout)
	defer cancel()

	result, err := s.proxy.Forward(ctx, rec, req.Method, req.Input)
	if err != nil {
		s.log.Warn(r.Context(), "forward call failed", "service", req.Service, "method", req.Method, "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if !result.Success {
		writeJSON(w, http.StatusBadGateway, forwardCallResponse{Success: false, Error: result.Error})
		return
	}
	writeJSON(w, http.StatusOK, forwardCallResponse{Success: true, Data: result.Data})
}

// resolveTarget mirrors rpc.Server.resolveTarget: an explicit host/port
// bypasses the registry entirely and addresses a downstream directly,
// using service as the fully-qualified name reflection resolves against.
func (s *Server) resolveTarget(service, host, port string) (*registry.Record, bool) {
	if host != "" && port != "" {
		return &registry.Record{ServiceName: service, FQServiceName: service, Address: host, Port: port, Status: registry.StatusOnline}, true
	}
	return s.store.LookupForDispatch(service)
}

// methodSchema is one entry of a serviceSchema's methods list (§4.5).
type methodSchema struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	RequestSchema map[string]any `json:"request_schema,omitempty"`
}

// serviceSchema is one entry of GET /api/service-schema's `schemas`
// array, matching the wire shape of §4.5 field-for-field.
type serviceSchema struct {
	ServiceName    string            `json:"service_name"`
	ServiceVersion string            `json:"service_version"`
	ServiceAddress string            `json:"service_address"`
	ServicePort    string            `json:"service_port"`
	Methods        []methodSchema    `json:"methods"`
	Metadata       map[string]string `json:"metadata"`
}

// handleServiceSchema answers reflection-style "what can I call and
// what does it look like" queries without requiring a caller to speak
// gRPC reflection itself (§1: "Schema introspection ... is a peripheral
// concern and is specified only as an interface the core must
// expose"). Per-method request shapes are best-effort: a downstream
// that cannot be reached for reflection still appears with its
// advertised method descriptor string, just without a request_schema.
func (s *Server) handleServiceSchema(w http.ResponseWriter, r *http.Request) {
	recs := s.store.List(registry.Filter{})
	schemas := make([]serviceSchema, 0, len(recs))
	for _, rec := range recs {
		methods := make([]methodSchema, 0, len(rec.Methods))
		for _, desc := range rec.Methods {
			name := methodNameOf(desc)
			sc := methodSchema{Name: name, Description: desc}
			if reqSchema, err := s.proxy.DescribeMethod(r.Context(), rec, name); err == nil {
				sc.RequestSchema = reqSchema
			} else {
				s.log.Debug(r.Context(), "service-schema: could not reflect method", "service_name", rec.ServiceName, "method", name, "err", err)
			}
			methods = append(methods, sc)
		}
		schemas = append(schemas, serviceSchema{
			ServiceName:    rec.ServiceName,
			ServiceVersion: rec.ServiceVersion,
			ServiceAddress: rec.Address,
			ServicePort:    rec.Port,
			Methods:        methods,
			Metadata:       rec.Metadata,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

// methodNameOf extracts "GetX" from a method descriptor string like
// "GetX(GetXRequest)" (§3: the record's free-form methods field).
func methodNameOf(desc string) string {
	if i := strings.IndexByte(desc, '('); i >= 0 {
		return desc[:i]
	}
	return desc
}

// handleEvents streams registry events as SSE, one `event:`/`data:`
// frame per Event, with a 30s keep-alive comment when the stream is
// idle (§3).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.bus.Subscribe()
	defer sub.Close()

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt registry.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeHuberr(w http.ResponseWriter, err error) {
	switch huberr.KindOf(err) {
	case huberr.NotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case huberr.InvalidArgument:
		writeError(w, http.StatusBadRequest, err.Error())
	case huberr.DispatchFailure, huberr.Timeout:
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
