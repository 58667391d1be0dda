package rpc

import "google.golang.org/protobuf/reflect/protoreflect"

func protoreflectStringValue(s string) protoreflect.Value { return protoreflect.ValueOfString(s) }

func boolValue(b bool) protoreflect.Value { return protoreflect.ValueOfBool(b) }

func protoreflectMessageValue(m protoreflect.ProtoMessage) protoreflect.Value {
	return protoreflect.ValueOfMessage(m.ProtoReflect())
}
