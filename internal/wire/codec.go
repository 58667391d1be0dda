package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/lengoman/grpc-hub/internal/registry"
)

// NewMessage builds an empty dynamicpb.Message for the given message
// descriptor, in place of a generated `New()` func.
func NewMessage(md protoreflect.MessageDescriptor) *dynamicpb.Message {
	return dynamicpb.NewMessage(md)
}

// DecodeJSON unmarshals a JSON payload into a fresh dynamicpb message
// described by md. Unknown fields are rejected, so malformed client
// input returns an error rather than being silently dropped.
func DecodeJSON(md protoreflect.MessageDescriptor, data []byte) (*dynamicpb.Message, error) {
	msg := dynamicpb.NewMessage(md)
	if err := protojson.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("wire: decode json into %s: %w", md.FullName(), err)
	}
	return msg, nil
}

// EncodeJSON marshals a dynamicpb message to JSON using the proto3
// canonical JSON mapping (camelCase field names, per protojson).
func EncodeJSON(msg protoreflect.Message) ([]byte, error) {
	return protojson.Marshal(msg.Interface())
}

// RecordToMessage populates a ServiceRecord dynamicpb.Message from a
// registry.Record.
func RecordToMessage(md protoreflect.MessageDescriptor, rec *registry.Record) *dynamicpb.Message {
	msg := dynamicpb.NewMessage(md)
	fields := md.Fields()

	setStr(msg, fields, "service_id", rec.ServiceID)
	setStr(msg, fields, "service_name", rec.ServiceName)
	setStr(msg, fields, "service_version", rec.ServiceVersion)
	setStr(msg, fields, "fq_service_name", rec.FQServiceName)
	setStr(msg, fields, "address", rec.Address)
	setStr(msg, fields, "port", rec.Port)
	setStr(msg, fields, "status", string(rec.Status))
	msg.Set(fields.ByName("registered_at"), protoreflect.ValueOfInt64(rec.RegisteredAt.Unix()))
	msg.Set(fields.ByName("last_heartbeat"), protoreflect.ValueOfInt64(rec.LastHeartbeat.Unix()))

	if fd := fields.ByName("methods"); fd != nil {
		list := msg.Mutable(fd).List()
		for _, m := range rec.Methods {
			list.Append(protoreflect.ValueOfString(m))
		}
	}
	if fd := fields.ByName("metadata"); fd != nil {
		m := msg.Mutable(fd).Map()
		for k, v := range rec.Metadata {
			m.Set(protoreflect.ValueOfString(k).MapKey(), protoreflect.ValueOfString(v))
		}
	}
	return msg
}

func setStr(msg *dynamicpb.Message, fields protoreflect.FieldDescriptors, name, value string) {
	fd := fields.ByName(protoreflect.Name(name))
	if fd == nil {
		return
	}
	msg.Set(fd, protoreflect.ValueOfString(value))
}

// StringField reads a string-typed field by name, returning "" if
// absent or unset. Centralizes the repetitive
// msg.Get(fields.ByName(name)).String() idiom used across the RPC
// handlers.
func StringField(msg protoreflect.Message, name string) string {
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return ""
	}
	return msg.Get(fd).String()
}

// RepeatedStringField reads a repeated-string field by name.
func RepeatedStringField(msg protoreflect.Message, name string) []string {
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil
	}
	list := msg.Get(fd).List()
	out := make([]string, list.Len())
	for i := 0; i < list.Len(); i++ {
		out[i] = list.Get(i).String()
	}
	return out
}

// StringMapField reads a map<string,string> field by name.
func StringMapField(msg protoreflect.Message, name string) map[string]string {
	fd := msg.Descriptor().Fields().ByName(protoreflect.Name(name))
	if fd == nil {
		return nil
	}
	out := make(map[string]string)
	msg.Get(fd).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}
