// Package design is the source-of-truth API description for the hub,
// expressed in Goa's DSL. It documents the same operations
// internal/wire builds by hand as a FileDescriptorProto; no code is
// generated from this file, since the hub's actual transport is
// dynamicpb-based and descriptor-driven rather than goa-generated. Kept
// in sync with internal/wire/descriptor.go as the human-readable
// description of the wire contract.
package design

import (
	. "goa.design/goa/v3/dsl"
)

var _ = API("grpchub", func() {
	Title("Service Registry and Discovery Hub")
	Description("Central registry for service discovery, liveness tracking, and dynamic dispatch")
	Version("1.0")
	Server("grpchub", func() {
		Host("dev", func() {
			URI("grpc://localhost:50099")
		})
		Services("grpchub")
	})

	Error("not_found", ErrorResult, "Unknown service_id or service_name")
	Error("invalid_argument", ErrorResult, "Malformed or missing request field")
	Error("dispatch_failure", ErrorResult, "Downstream target unreachable or rejected the call")
	Error("timeout", ErrorResult, "Downstream call exceeded its deadline")

	GRPC(func() {
		Response("not_found", CodeNotFound)
		Response("invalid_argument", CodeInvalidArgument)
		Response("dispatch_failure", CodeUnavailable)
		Response("timeout", CodeDeadlineExceeded)
	})
})

var _ = Service("grpchub", func() {
	Description("Registry, liveness, and dynamic dispatch for gRPC services")

	Method("Register", func() {
		Description("Register a service instance, replacing any existing record with the same name/address/port")
		Payload(RegisterPayload)
		Result(RegisterResult)
		Error("invalid_argument")
		GRPC(func() {})
	})

	Method("Unregister", func() {
		Description("Remove a service instance by its service_id")
		Payload(UnregisterPayload)
		Error("not_found")
		GRPC(func() {})
	})

	Method("List", func() {
		Description("List registered instances, optionally filtered by service_name")
		Payload(ListPayload)
		Result(ListResult)
		GRPC(func() {})
	})

	Method("Get", func() {
		Description("Fetch a single instance by its service_id")
		Payload(GetPayload)
		Result(ServiceRecordType)
		Error("not_found")
		GRPC(func() {})
	})

	Method("HealthCheck", func() {
		Description("Refresh last_heartbeat and optionally update status")
		Payload(HealthCheckPayload)
		Error("not_found")
		GRPC(func() {})
	})

	Method("ForwardCall", func() {
		Description("Pick a dispatchable instance of service_name by round-robin and forward a JSON-described call to it")
		Payload(ForwardCallPayload)
		Result(ForwardCallResult)
		Error("dispatch_failure")
		Error("timeout")
		GRPC(func() {})
	})
})

// ServiceRecordType mirrors internal/wire's ServiceRecord message.
var ServiceRecordType = Type("ServiceRecord", func() {
	Field(1, "service_id", String)
	Field(2, "service_name", String)
	Field(3, "service_version", String)
	Field(4, "fq_service_name", String)
	Field(5, "address", String)
	Field(6, "port", String)
	Field(7, "methods", ArrayOf(String))
	Field(8, "metadata", MapOf(String, String))
	Field(9, "registered_at", Int64)
	Field(10, "last_heartbeat", Int64)
	Field(11, "status", String)
})

var RegisterPayload = Type("RegisterPayload", func() {
	Field(1, "service_name", String, func() { MinLength(1) })
	Field(2, "service_version", String)
	Field(3, "fq_service_name", String)
	Field(4, "address", String, func() { MinLength(1) })
	Field(5, "port", String, func() { MinLength(1) })
	Field(6, "methods", ArrayOf(String))
	Field(7, "metadata", MapOf(String, String))
	Required("service_name", "address", "port")
})

var RegisterResult = Type("RegisterResult", func() {
	Field(1, "service_id", String)
})

var UnregisterPayload = Type("UnregisterPayload", func() {
	Field(1, "service_id", String, func() { MinLength(1) })
	Required("service_id")
})

var ListPayload = Type("ListPayload", func() {
	Field(1, "service_name", String)
})

var ListResult = Type("ListResult", func() {
	Field(1, "records", ArrayOf(ServiceRecordType))
})

var GetPayload = Type("GetPayload", func() {
	Field(1, "service_id", String, func() { MinLength(1) })
	Required("service_id")
})

var HealthCheckPayload = Type("HealthCheckPayload", func() {
	Field(1, "service_id", String, func() { MinLength(1) })
	Field(2, "status", String, func() { Enum("online", "busy", "offline") })
	Required("service_id")
})

var ForwardCallPayload = Type("ForwardCallPayload", func() {
	Field(1, "service_name", String, func() { MinLength(1) })
	Field(2, "method", String, func() { MinLength(1) })
	Field(3, "payload_json", String)
	Field(4, "host", String)
	Field(5, "port", String)
	Required("service_name", "method")
})

var ForwardCallResult = Type("ForwardCallResult", func() {
	Field(1, "success", Boolean)
	Field(2, "data_json", String)
	Field(3, "error", String)
})
