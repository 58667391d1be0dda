// Package wire builds the protobuf schema the hub serves over gRPC
// without any protoc-generated stubs. A single FileDescriptorProto is
// assembled by hand (the way r1cht4-envoyage's xds/snapshot.go builds
// Envoy config messages with small per-message builder functions),
// converted to a live protoreflect.FileDescriptor with protodesc, and
// registered into the global registry so reflection and dynamicpb both
// work against it. Descriptors resolved from downstream services are
// cached by the Dynamic Proxy's own Resolver, not by this package.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Package and service names of the hub's own self-described schema.
const (
	PackageName = "grpchub.v1"
	ServiceName = "HubService"
	FileName    = "grpchub/v1/hub.proto"
)

// Unqualified method names, used both to build the grpc.ServiceDesc
// and as map keys wherever a method needs to be looked up by name.
const (
	MethodRegister    = "Register"
	MethodUnregister  = "Unregister"
	MethodList        = "List"
	MethodGet         = "Get"
	MethodHealthCheck = "HealthCheck"
	MethodForwardCall = "ForwardCall"
)

func strField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_STRING.Enum(),
		JsonName: proto.String(jsonName(name)),
	}
}

func boolField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_BOOL.Enum(),
		JsonName: proto.String(jsonName(name)),
	}
}

func int64Field(name string, number int32) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_INT64.Enum(),
		JsonName: proto.String(jsonName(name)),
	}
}

func repeatedStrField(name string, number int32) *descriptorpb.FieldDescriptorProto {
	f := strField(name, number)
	f.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return f
}

func msgField(name string, number int32, typeName string, repeated bool) *descriptorpb.FieldDescriptorProto {
	label := descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL
	if repeated {
		label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED
	}
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    label.Enum(),
		Type:     descriptorpb.FieldDescriptorProto_TYPE_MESSAGE.Enum(),
		TypeName: proto.String(typeName),
		JsonName: proto.String(jsonName(name)),
	}
}

// stringMapField returns the repeated-entry-message field plus the
// synthetic "XEntry" message proto3 map fields desugar into.
func stringMapField(msgName, fieldName string, number int32) (*descriptorpb.FieldDescriptorProto, *descriptorpb.DescriptorProto) {
	entryName := upperFirst(fieldName) + "Entry"
	entry := &descriptorpb.DescriptorProto{
		Name: proto.String(entryName),
		Field: []*descriptorpb.FieldDescriptorProto{
			strField("key", 1),
			strField("value", 2),
		},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
	field := msgField(fieldName, number, "."+PackageName+"."+msgName+"."+entryName, true)
	return field, entry
}

func jsonName(snake string) string {
	out := make([]byte, 0, len(snake))
	upperNext := false
	for i := 0; i < len(snake); i++ {
		c := snake[i]
		if c == '_' {
			upperNext = true
			continue
		}
		if upperNext && c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
			upperNext = false
		}
		out = append(out, c)
	}
	return string(out)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}

func message(name string, fields ...*descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{Name: proto.String(name), Field: fields}
}

// BuildFileDescriptor assembles the FileDescriptorProto describing
// every request/response message and the HubService itself.
func BuildFileDescriptor() *descriptorpb.FileDescriptorProto {
	metadataField, metadataEntry := stringMapField("ServiceRecord", "metadata", 8)

	serviceRecord := message("ServiceRecord",
		strField("service_id", 1),
		strField("service_name", 2),
		strField("service_version", 3),
		strField("fq_service_name", 4),
		strField("address", 5),
		strField("port", 6),
		repeatedStrField("methods", 7),
		metadataField,
		int64Field("registered_at", 9),
		int64Field("last_heartbeat", 10),
		strField("status", 11),
	)
	serviceRecord.NestedType = []*descriptorpb.DescriptorProto{metadataEntry}

	registerMetaField, registerMetaEntry := stringMapField("RegisterRequest", "metadata", 7)
	registerRequest := message("RegisterRequest",
		strField("service_name", 1),
		strField("service_version", 2),
		strField("fq_service_name", 3),
		strField("address", 4),
		strField("port", 5),
		repeatedStrField("methods", 6),
		registerMetaField,
	)
	registerRequest.NestedType = []*descriptorpb.DescriptorProto{registerMetaEntry}

	registerResponse := message("RegisterResponse", strField("service_id", 1))

	unregisterRequest := message("UnregisterRequest", strField("service_id", 1))
	unregisterResponse := message("UnregisterResponse", boolField("ok", 1))

	listRequest := message("ListRequest", strField("service_name", 1))
	listResponse := message("ListResponse",
		msgField("records", 1, "."+PackageName+".ServiceRecord", true))

	getRequest := message("GetRequest", strField("service_id", 1))
	getResponse := message("GetResponse",
		msgField("record", 1, "."+PackageName+".ServiceRecord", false))

	healthCheckRequest := message("HealthCheckRequest",
		strField("service_id", 1), strField("status", 2))
	healthCheckResponse := message("HealthCheckResponse", boolField("ok", 1))

	forwardCallRequest := message("ForwardCallRequest",
		strField("service_name", 1), strField("method", 2), strField("payload_json", 3),
		strField("host", 4), strField("port", 5))
	forwardCallResponse := message("ForwardCallResponse",
		boolField("success", 1), strField("data_json", 2), strField("error", 3))

	svc := &descriptorpb.ServiceDescriptorProto{
		Name: proto.String(ServiceName),
		Method: []*descriptorpb.MethodDescriptorProto{
			rpcMethod(MethodRegister, "RegisterRequest", "RegisterResponse"),
			rpcMethod(MethodUnregister, "UnregisterRequest", "UnregisterResponse"),
			rpcMethod(MethodList, "ListRequest", "ListResponse"),
			rpcMethod(MethodGet, "GetRequest", "GetResponse"),
			rpcMethod(MethodHealthCheck, "HealthCheckRequest", "HealthCheckResponse"),
			rpcMethod(MethodForwardCall, "ForwardCallRequest", "ForwardCallResponse"),
		},
	}

	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String(FileName),
		Package: proto.String(PackageName),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			serviceRecord,
			registerRequest, registerResponse,
			unregisterRequest, unregisterResponse,
			listRequest, listResponse,
			getRequest, getResponse,
			healthCheckRequest, healthCheckResponse,
			forwardCallRequest, forwardCallResponse,
		},
		Service: []*descriptorpb.ServiceDescriptorProto{svc},
	}
}

func rpcMethod(name, inType, outType string) *descriptorpb.MethodDescriptorProto {
	return &descriptorpb.MethodDescriptorProto{
		Name:       proto.String(name),
		InputType:  proto.String("." + PackageName + "." + inType),
		OutputType: proto.String("." + PackageName + "." + outType),
	}
}

// Registered holds the live descriptors derived from BuildFileDescriptor,
// ready for dynamicpb message construction and gRPC reflection.
type Registered struct {
	File    protoreflect.FileDescriptor
	Service protoreflect.ServiceDescriptor
}

// Register converts the hand-built FileDescriptorProto into a live
// protoreflect.FileDescriptor and adds it to the global registry, so
// grpc's reflection service can serve it to clients without any
// generated *_grpc.pb.go file existing anywhere in this module. Calling
// Register more than once (every test package that needs a live
// descriptor does) returns the already-registered file rather than
// erroring on a duplicate registration.
func Register() (*Registered, error) {
	var fd protoreflect.FileDescriptor

	if existing, err := protoregistry.GlobalFiles.FindFileByPath(FileName); err == nil {
		fd = existing
	} else {
		fdProto := BuildFileDescriptor()
		built, err := protodesc.NewFile(fdProto, protoregistry.GlobalFiles)
		if err != nil {
			return nil, fmt.Errorf("wire: build file descriptor: %w", err)
		}
		if err := protoregistry.GlobalFiles.RegisterFile(built); err != nil {
			return nil, fmt.Errorf("wire: register file descriptor: %w", err)
		}
		fd = built
	}

	sd := fd.Services().ByName(protoreflect.Name(ServiceName))
	if sd == nil {
		return nil, fmt.Errorf("wire: service %s missing from built descriptor", ServiceName)
	}

	return &Registered{File: fd, Service: sd}, nil
}

// MessageDescriptor looks up one of this file's message types by its
// unqualified name (e.g. "RegisterRequest").
func (r *Registered) MessageDescriptor(name string) (protoreflect.MessageDescriptor, error) {
	md := r.File.Messages().ByName(protoreflect.Name(name))
	if md == nil {
		return nil, fmt.Errorf("wire: message %s not found", name)
	}
	return md, nil
}
