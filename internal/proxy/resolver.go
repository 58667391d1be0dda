// Package proxy implements the Dynamic Proxy (component F): it forwards
// a JSON-described call to a downstream gRPC service whose schema it
// has never seen at compile time, resolving that schema live via gRPC
// server reflection.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/reflection/grpcreflect"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// methodKey identifies one resolved method on one downstream instance.
// Descriptors are cached per (host, port, service, method) for the
// process lifetime, since a downstream's schema cannot change without
// a redeploy and re-registration under the spec's model.
type methodKey struct {
	host, port, service, method string
}

// resolved bundles everything needed to build and decode one call.
type resolved struct {
	conn   *grpc.ClientConn
	method protoreflect.MethodDescriptor
}

// Resolver resolves and caches downstream method descriptors via gRPC
// reflection, and caches the client connections used to reach them.
type Resolver struct {
	mu    sync.Mutex
	cache map[methodKey]*resolved
	conns map[string]*grpc.ClientConn // keyed by host:port
}

// NewResolver constructs an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		cache: make(map[methodKey]*resolved),
		conns: make(map[string]*grpc.ClientConn),
	}
}

// Resolve returns the method descriptor and connection for (host, port,
// fqService, method), reflecting against the target the first time and
// reusing the cached result afterward.
func (r *Resolver) Resolve(ctx context.Context, host, port, fqService, method string) (*grpc.ClientConn, protoreflect.MethodDescriptor, error) {
	key := methodKey{host: host, port: port, service: fqService, method: method}

	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached.conn, cached.method, nil
	}
	r.mu.Unlock()

	conn, err := r.connFor(host, port)
	if err != nil {
		return nil, nil, err
	}

	md, err := r.reflectMethod(ctx, conn, fqService, method)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.cache[key] = &resolved{conn: conn, method: md}
	r.mu.Unlock()

	return conn, md, nil
}

func (r *Resolver) connFor(host, port string) (*grpc.ClientConn, error) {
	target := fmt.Sprintf("%s:%s", host, port)

	r.mu.Lock()
	if c, ok := r.conns[target]; ok {
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("proxy: dial %s: %w", target, err)
	}

	r.mu.Lock()
	r.conns[target] = conn
	r.mu.Unlock()
	return conn, nil
}

func (r *Resolver) reflectMethod(ctx context.Context, conn *grpc.ClientConn, fqService, method string) (protoreflect.MethodDescriptor, error) {
	rc := grpcreflect.NewClientAuto(ctx, conn)
	defer rc.Reset()

	sd, err := rc.ResolveService(fqService)
	if err != nil {
		return nil, fmt.Errorf("proxy: reflect service %s: %w", fqService, err)
	}

	md := sd.Methods().ByName(protoreflect.Name(method))
	if md == nil {
		return nil, fmt.Errorf("proxy: method %s not found on service %s", method, fqService)
	}
	return md, nil
}

// Close tears down every cached connection. Intended for shutdown only.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conns {
		c.Close()
	}
}
