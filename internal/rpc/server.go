// Package rpc hosts the hub's own gRPC surface (component D): a
// hand-wired grpc.ServiceDesc whose methods are served entirely through
// dynamicpb messages built from the programmatically-constructed
// descriptor in internal/wire, with no protoc-generated stubs anywhere
// in the call path. Server reflection is registered against the same
// descriptor so any standard gRPC client (grpcurl, grpcui) can discover
// and call it without a .proto file. This repo's own connector uses the
// HTTP/JSON surface instead.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/lengoman/grpc-hub/internal/eventbus"
	"github.com/lengoman/grpc-hub/internal/huberr"
	"github.com/lengoman/grpc-hub/internal/proxy"
	"github.com/lengoman/grpc-hub/internal/registry"
	"github.com/lengoman/grpc-hub/internal/telemetry"
	"github.com/lengoman/grpc-hub/internal/wire"
)

// Server implements the hub's dynamicpb-based gRPC methods.
type Server struct {
	store *registry.Store
	bus   *eventbus.Bus
	proxy *proxy.Proxy
	wr    *wire.Registered
	log   telemetry.Logger

	messages map[string]protoreflect.MessageDescriptor
}

// NewServer wires a Server against the given components. wr must come
// from wire.Register.
func NewServer(store *registry.Store, bus *eventbus.Bus, px *proxy.Proxy, wr *wire.Registered, log telemetry.Logger) (*Server, error) {
	if log == nil {
		log = telemetry.NewNoopLogger()
	}
	s := &Server{store: store, bus: bus, proxy: px, wr: wr, log: log, messages: make(map[string]protoreflect.MessageDescriptor)}

	for _, name := range []string{
		"RegisterRequest", "RegisterResponse",
		"UnregisterRequest", "UnregisterResponse",
		"ListRequest", "ListResponse",
		"GetRequest", "GetResponse",
		"HealthCheckRequest", "HealthCheckResponse",
		"ForwardCallRequest", "ForwardCallResponse",
		"ServiceRecord",
	} {
		md, err := wr.MessageDescriptor(name)
		if err != nil {
			return nil, err
		}
		s.messages[name] = md
	}
	return s, nil
}

func (s *Server) in(name string) *dynamicpb.Message  { return dynamicpb.NewMessage(s.messages[name]) }
func (s *Server) out(name string) *dynamicpb.Message { return dynamicpb.NewMessage(s.messages[name]) }

// Register builds the hand-wired grpc.ServiceDesc and registers it plus
// server reflection onto srv.
func (s *Server) Register(srv *grpc.Server) {
	srv.RegisterService(s.serviceDesc(), s)
	// Reflection reads from protoregistry.GlobalFiles, which already
	// holds this file courtesy of wire.Register.
	reflection.Register(srv)
}

func (s *Server) serviceDesc() *grpc.ServiceDesc {
	fqName := string(s.wr.Service.FullName())
	return &grpc.ServiceDesc{
		ServiceName: fqName,
		HandlerType: (*any)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: wire.MethodRegister, Handler: s.registerHandler},
			{MethodName: wire.MethodUnregister, Handler: s.unregisterHandler},
			{MethodName: wire.MethodList, Handler: s.listHandler},
			{MethodName: wire.MethodGet, Handler: s.getHandler},
			{MethodName: wire.MethodHealthCheck, Handler: s.healthCheckHandler},
			{MethodName: wire.MethodForwardCall, Handler: s.forwardCallHandler},
		},
		Metadata: wire.FileName,
	}
}

func (s *Server) registerHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("RegisterRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleRegister(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodRegister)}, handle)
}

func (s *Server) unregisterHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("UnregisterRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleUnregister(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodUnregister)}, handle)
}

func (s *Server) listHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("ListRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleList(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodList)}, handle)
}

func (s *Server) getHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("GetRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleGet(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodGet)}, handle)
}

func (s *Server) healthCheckHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("HealthCheckRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleHealthCheck(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodHealthCheck)}, handle)
}

func (s *Server) forwardCallHandler(_ any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := s.in("ForwardCallRequest")
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		return s.handleForwardCall(ctx, req.(*dynamicpb.Message))
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: s, FullMethod: s.fullMethod(wire.MethodForwardCall)}, handle)
}

func (s *Server) fullMethod(name string) string {
	return fmt.Sprintf("/%s/%s", s.wr.Service.FullName(), name)
}

// resolveTarget picks the record ForwardCall dispatches to: an explicit
// host/port bypasses registry discovery entirely and addresses the
// downstream directly (§4.4 "optional explicit host/port"), with name
// used as the fully-qualified service name reflection resolves against.
// Otherwise the named service is looked up via the store's round-robin
// cursor, same as the HTTP surface.
func (s *Server) resolveTarget(name, host, port string) (*registry.Record, bool) {
	if host != "" && port != "" {
		return &registry.Record{ServiceName: name, FQServiceName: name, Address: host, Port: port, Status: registry.StatusOnline}, true
	}
	return s.store.LookupForDispatch(name)
}

func (s *Server) handleRegister(_ context.Context, in *dynamicpb.Message) (any, error) {
	name := wire.StringField(in, "service_name")
	version := wire.StringField(in, "service_version")
	fq := wire.StringField(in, "fq_service_name")
	addr := wire.StringField(in, "address")
	port := wire.StringField(in, "port")
	methods := wire.RepeatedStringField(in, "methods")
	metadata := wire.StringMapField(in, "metadata")

	id, err := s.store.Register(name, version, fq, addr, port, methods, metadata)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	out := s.out("RegisterResponse")
	out.Set(out.Descriptor().Fields().ByName("service_id"), protoreflectStringValue(id))
	return out, nil
}

func (s *Server) handleUnregister(_ context.Context, in *dynamicpb.Message) (any, error) {
	id := wire.StringField(in, "service_id")
	err := s.store.Unregister(id)
	out := s.out("UnregisterResponse")
	if err != nil {
		out.Set(out.Descriptor().Fields().ByName("ok"), boolValue(false))
		if huberr.KindOf(err) == huberr.NotFound {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	out.Set(out.Descriptor().Fields().ByName("ok"), boolValue(true))
	return out, nil
}

func (s *Server) handleList(_ context.Context, in *dynamicpb.Message) (any, error) {
	name := wire.StringField(in, "service_name")
	recs := s.store.List(registry.Filter{Name: name})

	out := s.out("ListResponse")
	fd := out.Descriptor().Fields().ByName("records")
	list := out.Mutable(fd).List()
	recordMD := s.messages["ServiceRecord"]
	for _, rec := range recs {
		list.Append(protoreflectMessageValue(wire.RecordToMessage(recordMD, rec)))
	}
	return out, nil
}

func (s *Server) handleGet(_ context.Context, in *dynamicpb.Message) (any, error) {
	id := wire.StringField(in, "service_id")
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	out := s.out("GetResponse")
	fd := out.Descriptor().Fields().ByName("record")
	out.Set(fd, protoreflectMessageValue(wire.RecordToMessage(s.messages["ServiceRecord"], rec)))
	return out, nil
}

func (s *Server) handleHealthCheck(_ context.Context, in *dynamicpb.Message) (any, error) {
	id := wire.StringField(in, "service_id")
	st := registry.Status(wire.StringField(in, "status"))

	out := s.out("HealthCheckResponse")
	if err := s.store.Heartbeat(id, st); err != nil {
		out.Set(out.Descriptor().Fields().ByName("ok"), boolValue(false))
		if huberr.KindOf(err) == huberr.NotFound {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	out.Set(out.Descriptor().Fields().ByName("ok"), boolValue(true))
	return out, nil
}

func (s *Server) handleForwardCall(ctx context.Context, in *dynamicpb.Message) (any, error) {
	name := wire.StringField(in, "service_name")
	method := wire.StringField(in, "method")
	payload := wire.StringField(in, "payload_json")
	host := wire.StringField(in, "host")
	port := wire.StringField(in, "port")

	out := s.out("ForwardCallResponse")

	rec, ok := s.resolveTarget(name, host, port)
	if !ok {
		out.Set(out.Descriptor().Fields().ByName("success"), boolValue(false))
		out.Set(out.Descriptor().Fields().ByName("error"), protoreflectStringValue("no dispatchable instance for "+name))
		return out, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, proxy.CallTimeout)
	defer cancel()

	result, err := s.proxy.Forward(callCtx, rec, method, json.RawMessage(payload))
	if err != nil {
		s.log.Warn(ctx, "forward call failed", "service_name", name, "method", method, "err", err)
		return nil, status.Error(codes.Internal, err.Error())
	}

	out.Set(out.Descriptor().Fields().ByName("success"), boolValue(result.Success))
	if result.Success {
		out.Set(out.Descriptor().Fields().ByName("data_json"), protoreflectStringValue(string(result.Data)))
	} else {
		out.Set(out.Descriptor().Fields().ByName("error"), protoreflectStringValue(result.Error))
	}
	return out, nil
}
