package wire

import "google.golang.org/protobuf/reflect/protoreflect"

// MessageDescriptorToJSONSchema renders md as a minimal JSON Schema
// object describing its fields, for the HTTP surface's
// `/api/service-schema` endpoint (§4.5). The Dynamic Proxy does not
// validate forwarded payloads against this schema. This is
// deliberately not a full JSON Schema compiler's worth of feature
// coverage — just enough shape (type, array-ness, nested object
// properties) for a caller to see what a method expects without a
// .proto file.
func MessageDescriptorToJSONSchema(md protoreflect.MessageDescriptor) map[string]any {
	properties := make(map[string]any, md.Fields().Len())
	var required []string

	fields := md.Fields()
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		properties[string(fd.JSONName())] = fieldSchema(fd)
		if fd.Cardinality() == protoreflect.Required {
			required = append(required, string(fd.JSONName()))
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func fieldSchema(fd protoreflect.FieldDescriptor) map[string]any {
	base := scalarSchema(fd)
	if fd.IsMap() {
		return map[string]any{
			"type":                 "object",
			"additionalProperties": scalarKindSchema(fd.MapValue().Kind()),
		}
	}
	if fd.IsList() {
		return map[string]any{
			"type":  "array",
			"items": base,
		}
	}
	return base
}

func scalarSchema(fd protoreflect.FieldDescriptor) map[string]any {
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		return MessageDescriptorToJSONSchema(fd.Message())
	}
	return scalarKindSchema(fd.Kind())
}

func scalarKindSchema(kind protoreflect.Kind) map[string]any {
	switch kind {
	case protoreflect.BoolKind:
		return map[string]any{"type": "boolean"}
	case protoreflect.Int32Kind, protoreflect.Int64Kind, protoreflect.Uint32Kind, protoreflect.Uint64Kind,
		protoreflect.Sint32Kind, protoreflect.Sint64Kind, protoreflect.Fixed32Kind, protoreflect.Fixed64Kind,
		protoreflect.Sfixed32Kind, protoreflect.Sfixed64Kind:
		return map[string]any{"type": "integer"}
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return map[string]any{"type": "number"}
	case protoreflect.StringKind, protoreflect.BytesKind, protoreflect.EnumKind:
		return map[string]any{"type": "string"}
	default:
		return map[string]any{"type": "string"}
	}
}
