package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/telemetry"
	"github.com/lengoman/grpc-hub/internal/wire"
)

// statusCodeError is the otel span status code used to mark a forwarded
// call as failed (structural validation or invalid payload), kept as a
// named constant so the two `codes` packages in this file (grpc and
// otel) are never confused at the call site.
const statusCodeError = otelcodes.Error

// CallTimeout bounds every forwarded call so one unresponsive
// downstream can never hang a proxy request indefinitely (§4.3).
const CallTimeout = 30 * time.Second

// Result is the shape returned to both the RPC and HTTP surfaces after
// a forwarded call, win or lose.
type Result struct {
	Success bool
	Data    json.RawMessage
	Error   string
}

// Proxy forwards a named method call to a registry record's downstream
// service, validating the payload against an optional per-method JSON
// schema carried in the record's metadata before constructing the wire
// message.
type Proxy struct {
	resolver *Resolver
	metrics  telemetry.Metrics
	tracer   telemetry.Tracer
}

// Option configures optional telemetry hooks on a Proxy at construction
// time. Every component in this repo defaults to the no-op
// implementations so callers (and every existing test) may omit these
// entirely.
type Option func(*Proxy)

// WithMetrics records per-call duration/outcome against m.
func WithMetrics(m telemetry.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithTracer starts one client-kind span per forwarded call against t.
func WithTracer(t telemetry.Tracer) Option {
	return func(p *Proxy) { p.tracer = t }
}

// New constructs a Proxy using its own Resolver.
func New(opts ...Option) *Proxy {
	p := &Proxy{resolver: NewResolver(), metrics: telemetry.NewNoopMetrics(), tracer: telemetry.NewNoopTracer()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Close releases cached downstream connections.
func (p *Proxy) Close() { p.resolver.Close() }

// schemaMetadataKey is the metadata convention a registrant uses to
// advertise a JSON Schema for one of its methods' request payloads:
// "schema.<MethodName>" -> schema document as a JSON string.
func schemaMetadataKey(method string) string {
	return "schema." + method
}

// Forward validates payloadJSON (if the target advertised a schema for
// method), builds a dynamicpb request from it via reflection-resolved
// descriptors, invokes the call, and returns the JSON-encoded response.
// It never holds the registry lock — rec is a snapshot copy handed in
// by the caller after LookupForDispatch has already released it.
func (p *Proxy) Forward(ctx context.Context, rec *registry.Record, method string, payloadJSON json.RawMessage) (*Result, error) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "proxy.Forward", trace.WithSpanKind(trace.SpanKindClient))
	outcome := "error"
	defer func() {
		span.End()
		p.metrics.RecordTimer("proxy_call_duration", time.Since(start), "method", method)
		p.metrics.IncCounter("proxy_call_total", 1, "method", method, "outcome", outcome)
	}()

	if schemaDoc, ok := rec.Metadata[schemaMetadataKey(method)]; ok && strings.TrimSpace(schemaDoc) != "" {
		if err := validateAgainstSchema(schemaDoc, payloadJSON); err != nil {
			span.SetStatus(statusCodeError, err.Error())
			return &Result{Success: false, Error: "invalid_argument: " + err.Error()}, nil
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	fqService := rec.FQServiceName
	if fqService == "" {
		fqService = rec.ServiceName
	}

	conn, md, err := p.resolver.Resolve(callCtx, rec.Address, rec.Port, fqService, method)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("proxy: resolve %s.%s: %w", fqService, method, err)
	}

	reqMsg := dynamicpb.NewMessage(md.Input())
	if err := protojson.Unmarshal(payloadJSON, reqMsg); err != nil {
		span.SetStatus(statusCodeError, err.Error())
		return &Result{Success: false, Error: fmt.Sprintf("invalid_argument: bad payload for %s: %v", method, err)}, nil
	}

	respMsg := dynamicpb.NewMessage(md.Output())

	fullMethod := fmt.Sprintf("/%s/%s", fqService, method)
	if err := conn.Invoke(callCtx, fullMethod, reqMsg, respMsg); err != nil {
		span.RecordError(err)
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) || status.Code(err) == codes.DeadlineExceeded {
			outcome = "timeout"
			return &Result{Success: false, Error: "timeout: " + err.Error()}, nil
		}
		outcome = "dispatch_failure"
		return &Result{Success: false, Error: "dispatch_failure: " + err.Error()}, nil
	}

	data, err := protojson.Marshal(proto.Message(respMsg))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("proxy: encode response: %w", err)
	}

	outcome = "success"
	return &Result{Success: true, Data: data}, nil
}

// DescribeMethod resolves method's request descriptor on rec's
// downstream via the same reflection machinery Forward uses, and
// renders it as a JSON Schema document — the data behind the HTTP
// surface's `/api/service-schema` endpoint (§4.5, "Schema introspection
// ... specified only as an interface the core must expose").
func (p *Proxy) DescribeMethod(ctx context.Context, rec *registry.Record, method string) (map[string]any, error) {
	fqService := rec.FQServiceName
	if fqService == "" {
		fqService = rec.ServiceName
	}
	_, md, err := p.resolver.Resolve(ctx, rec.Address, rec.Port, fqService, method)
	if err != nil {
		return nil, fmt.Errorf("proxy: describe %s.%s: %w", fqService, method, err)
	}
	return wire.MessageDescriptorToJSONSchema(md.Input()), nil
}

func validateAgainstSchema(schemaDoc string, payload json.RawMessage) error {
	var schemaObj any
	if err := json.Unmarshal([]byte(schemaDoc), &schemaObj); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", schemaObj); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	var doc any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return fmt.Errorf("invalid payload json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("payload failed schema validation: %w", err)
	}
	return nil
}
