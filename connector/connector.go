// Package connector is the client library a downstream service links
// against to register itself with a hub, report health, and discover
// peers (component G). It talks to the hub's HTTP/JSON surface: no
// protoc-generated stubs exist for the hub's gRPC surface in this
// module, and a plain net/http client keeps the dependency this
// library imposes on its callers minimal.
package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultCacheTTL is how long a discovered set of instances for one
// service_name is trusted before the connector re-polls the hub.
const DefaultCacheTTL = 30 * time.Second

// Default hub address a connector talks to when a caller has none of
// its own. §6 documents the connector's default as "hub at
// 127.0.0.1:50099" — that is the hub's gRPC surface port, but this
// connector speaks the HTTP/JSON surface (§9's Design Notes), so the
// default below points at DefaultHubPort, the HTTP surface's own
// documented default (§6 "http-port 8080"), not the gRPC one. See
// DESIGN.md for the full rationale.
const (
	DefaultHubHost = "127.0.0.1"
	DefaultHubPort = "8080"
)

// ServiceRecord mirrors the hub's wire representation of a registered
// instance, trimmed to what a caller needs to dial it.
type ServiceRecord struct {
	ServiceID      string            `json:"service_id"`
	ServiceName    string            `json:"service_name"`
	ServiceVersion string            `json:"service_version"`
	FQServiceName  string            `json:"fq_service_name"`
	Address        string            `json:"address"`
	Port           string            `json:"port"`
	Methods        []string          `json:"methods"`
	Metadata       map[string]string `json:"metadata"`
	Status         string            `json:"status"`
}

// Connector is the handle a service process holds for its lifetime: it
// both advertises the service itself (if Register is called) and
// discovers peers.
type Connector struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache

	serviceID string // set after a successful Register
}

// Option configures a Connector at construction time.
type Option func(*Connector)

// WithHTTPClient overrides the default http.Client, e.g. to set
// transport-level timeouts or TLS config.
func WithHTTPClient(c *http.Client) Option {
	return func(cn *Connector) { cn.httpClient = c }
}

// WithCacheTTL overrides DefaultCacheTTL for discovery results.
func WithCacheTTL(ttl time.Duration) Option {
	return func(cn *Connector) { cn.cache = newCache(ttl) }
}

// NewDefault constructs a Connector pointed at the default hub address
// (DefaultHubHost:DefaultHubPort).
func NewDefault(opts ...Option) *Connector {
	return New(DefaultHubHost, DefaultHubPort, opts...)
}

// New constructs a Connector pointed at a hub reachable at
// http://host:port (its HTTP/JSON surface address, not its gRPC port).
func New(hubHost string, hubPort string, opts ...Option) *Connector {
	cn := &Connector{
		baseURL:    fmt.Sprintf("http://%s:%s", hubHost, hubPort),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		cache:      newCache(DefaultCacheTTL),
	}
	for _, o := range opts {
		o(cn)
	}
	return cn
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

// Register advertises this process as an instance of name, remembering
// the assigned service_id for subsequent heartbeat/status calls.
func (c *Connector) Register(ctx context.Context, name, version, fqName, address, port string, methods []string, metadata map[string]string) (string, error) {
	req := registerRequest{
		ServiceName: name, ServiceVersion: version, FQServiceName: fqName,
		Address: address, Port: port, Methods: methods, Metadata: metadata,
	}
	var resp struct {
		ServiceID string `json:"service_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/services", req, &resp); err != nil {
		return "", err
	}
	c.serviceID = resp.ServiceID
	return resp.ServiceID, nil
}

// Unregister removes this process's own registration, if any.
func (c *Connector) Unregister(ctx context.Context) error {
	if c.serviceID == "" {
		return fmt.Errorf("connector: nothing registered")
	}
	return c.doJSON(ctx, http.MethodDelete, "/api/services/"+c.serviceID, nil, nil)
}

// SetBusy reports this process as busy (advisory only).
func (c *Connector) SetBusy(ctx context.Context) error { return c.setStatus(ctx, "busy") }

// SetOnline reports this process back online after SetBusy.
func (c *Connector) SetOnline(ctx context.Context) error { return c.setStatus(ctx, "online") }

func (c *Connector) setStatus(ctx context.Context, status string) error {
	if c.serviceID == "" {
		return fmt.Errorf("connector: nothing registered")
	}
	body := map[string]string{"status": status}
	return c.doJSON(ctx, http.MethodPost, "/api/services/"+c.serviceID+"/heartbeat", body, nil)
}

// Discover returns one dispatchable instance of name, preferring the
// connector's own cache (TTL DefaultCacheTTL / WithCacheTTL) and
// round-robin cursor over the hub's own, per §5.
func (c *Connector) Discover(ctx context.Context, name string) (ServiceRecord, error) {
	if _, ok := c.cache.get(name); ok {
		if rec, ok := c.cache.next(name); ok {
			return rec, nil
		}
	}

	recs, err := c.listRemote(ctx, name)
	if err != nil {
		return ServiceRecord{}, err
	}
	dispatchable := make([]ServiceRecord, 0, len(recs))
	for _, r := range recs {
		if r.Status != "offline" {
			dispatchable = append(dispatchable, r)
		}
	}
	c.cache.set(name, dispatchable)

	rec, ok := c.cache.next(name)
	if !ok {
		return ServiceRecord{}, fmt.Errorf("connector: no dispatchable instance of %s", name)
	}
	return rec, nil
}

// ListAll returns every record the hub knows about for name, bypassing
// the round-robin cache (useful for diagnostics/UI, not dispatch).
func (c *Connector) ListAll(ctx context.Context, name string) ([]ServiceRecord, error) {
	return c.listRemote(ctx, name)
}

// IsOnline reports whether any instance of name is currently
// dispatchable, per the hub's live state (not the connector's cache).
func (c *Connector) IsOnline(ctx context.Context, name string) (bool, error) {
	recs, err := c.listRemote(ctx, name)
	if err != nil {
		return false, err
	}
	for _, r := range recs {
		if r.Status != "offline" {
			return true, nil
		}
	}
	return false, nil
}

// ClearCache discards every cached discovery result.
func (c *Connector) ClearCache() { c.cache.Clear() }

// CacheInfo reports whether the discovery cache is populated and the
// time of its most recent refresh (§4.7).
func (c *Connector) CacheInfo() (populated bool, lastRefresh time.Time) { return c.cache.Populated() }

func (c *Connector) listRemote(ctx context.Context, name string) ([]ServiceRecord, error) {
	var resp struct {
		Services []ServiceRecord `json:"services"`
	}
	path := "/api/services?service_name=" + name
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Services, nil
}

func (c *Connector) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("connector: encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("connector: build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connector: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("connector: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("connector: decode response: %w", err)
	}
	return nil
}
