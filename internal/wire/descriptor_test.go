package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

func TestRegister_ExposesHubServiceAndMessages(t *testing.T) {
	reg, err := Register()
	require.NoError(t, err)
	require.NotNil(t, reg)

	assert.Equal(t, protoreflect.Name(ServiceName), reg.Service.Name())

	methods := reg.Service.Methods()
	names := make([]string, methods.Len())
	for i := 0; i < methods.Len(); i++ {
		names[i] = string(methods.Get(i).Name())
	}
	assert.Contains(t, names, MethodRegister)
	assert.Contains(t, names, MethodForwardCall)
}

func TestMessageDescriptor_ServiceRecordHasExpectedFields(t *testing.T) {
	reg, err := Register()
	require.NoError(t, err)

	md, err := reg.MessageDescriptor("ServiceRecord")
	require.NoError(t, err)

	for _, name := range []string{"service_id", "service_name", "address", "port", "metadata", "methods", "status"} {
		fd := md.Fields().ByName(protoreflect.Name(name))
		assert.NotNilf(t, fd, "expected field %s on ServiceRecord", name)
	}
}

func TestMessageDescriptor_UnknownNameErrors(t *testing.T) {
	reg, err := Register()
	require.NoError(t, err)

	_, err = reg.MessageDescriptor("NoSuchMessage")
	assert.Error(t, err)
}
