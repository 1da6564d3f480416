// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package proxy generates method stubs for a server-object type and binds
// them to a (session, handle) pair. Generation itself is a pure function
// of a schema; the schema source (JSON-schema-driven discovery against the
// live engine) is an external collaborator referenced only through the
// SchemaLookup interface below.
package proxy

import (
	"context"
	"fmt"
	"sync"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
)

// Sender is the subset of the session the generated stubs need: build and
// send one request, and receive back the fully processed result (after
// the session's response-interceptor chain has run).
type Sender interface {
	Send(ctx context.Context, req *jsonrpc.Request) (jsonrpc.RawMessage, error)
}

// Schema describes the remote method surface for one object type. It is
// the pure input to Generate; how a Schema is discovered (querying the
// engine, parsing a JSON schema document) is outside this package.
type Schema struct {
	Type    string
	Methods []string
}

// SchemaLookup resolves an object type to its Schema. A generator backed
// by a live engine connection, a static table, or a test fixture can all
// satisfy this.
type SchemaLookup func(objType string) (Schema, error)

// Stub builds and sends one request on behalf of a bound Proxy.
type Stub func(ctx context.Context, p *Proxy, params any) (jsonrpc.RawMessage, error)

// MethodSet maps method name to its bound stub.
type MethodSet map[string]Stub

// Generated is the per-type product of Factory.Generate: a method set plus
// a Create method that binds it to a concrete handle.
type Generated struct {
	objType string
	methods MethodSet
}

// Create returns a proxy exposing the generated method set, bound to
// session and handle. id is the server's stable object identifier (used
// across reattachment during resume); delta requests delta-encoded
// results for this proxy's calls; genericType carries a supertype name
// when the server reports one (e.g. a concrete chart type whose generic
// type is "visualization").
func (g *Generated) Create(session Sender, handle jsonrpc.Handle, id string, delta bool, genericType string) *Proxy {
	return &Proxy{
		session:     session,
		handle:      handle,
		id:          id,
		delta:       delta,
		genericType: genericType,
		objType:     g.objType,
		methods:     g.methods,
	}
}

// Factory generates method sets from schemas and memoizes them per type, so
// a session reuses one generated set across every handle of the same
// type, per the factory's statelessness contract.
type Factory struct {
	lookup SchemaLookup

	mu    sync.Mutex
	cache map[string]*Generated
}

// NewFactory builds a Factory that resolves schemas via lookup.
func NewFactory(lookup SchemaLookup) *Factory {
	return &Factory{
		lookup: lookup,
		cache:  make(map[string]*Generated),
	}
}

// Generate returns the Generated method set for objType, building and
// caching it on first use.
func (f *Factory) Generate(objType string) (*Generated, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if g, ok := f.cache[objType]; ok {
		return g, nil
	}

	schema, err := f.lookup(objType)
	if err != nil {
		return nil, fmt.Errorf("proxy: resolve schema for %q: %w", objType, err)
	}

	methods := make(MethodSet, len(schema.Methods))
	for _, name := range schema.Methods {
		name := name // capture
		methods[name] = func(ctx context.Context, p *Proxy, params any) (jsonrpc.RawMessage, error) {
			return p.send(ctx, name, params)
		}
	}

	g := &Generated{objType: objType, methods: methods}
	f.cache[objType] = g
	return g, nil
}

// Proxy exposes a server object's method surface as callable stubs. It
// holds only a non-owning reference to the session; the API cache owns
// the Proxy itself via its Entry.
type Proxy struct {
	session     Sender
	handle      jsonrpc.Handle
	id          string
	delta       bool
	genericType string
	objType     string
	methods     MethodSet
}

// Handle returns the server handle this proxy is currently bound to. It
// changes in place across a resume reattachment.
func (p *Proxy) Handle() jsonrpc.Handle { return p.handle }

// ID returns the stable server-side object identifier.
func (p *Proxy) ID() string { return p.id }

// Type returns the concrete object type this proxy was generated for.
func (p *Proxy) Type() string { return p.objType }

// GenericType returns the supertype name reported by the server, if any.
func (p *Proxy) GenericType() string { return p.genericType }

// Rebind updates the proxy's handle in place, used by the suspend/resume
// controller to preserve proxy identity across a reattachment.
func (p *Proxy) Rebind(handle jsonrpc.Handle) { p.handle = handle }

// Call invokes the named remote method with params, returning the
// session's fully processed result.
func (p *Proxy) Call(ctx context.Context, method string, params any) (jsonrpc.RawMessage, error) {
	return p.call(ctx, method, params)
}

// CallRaw sends an ad hoc request assembled from a caller-supplied options
// map, for invoking a remote method outside this proxy's generated method
// set (e.g. one the server added after Generate ran). raw is stripped to
// the wire allow-list before the request is built; handle is always this
// proxy's own, regardless of what raw supplies.
func (p *Proxy) CallRaw(ctx context.Context, raw map[string]any) (jsonrpc.RawMessage, error) {
	clean := jsonrpc.StripUnknown(raw)
	clean["handle"] = p.handle
	req, err := jsonrpc.RequestFromMap(clean)
	if err != nil {
		return nil, fmt.Errorf("proxy: build raw request: %w", err)
	}
	return p.session.Send(ctx, req)
}

// Methods lists the names of every stub this proxy exposes.
func (p *Proxy) Methods() []string {
	names := make([]string, 0, len(p.methods))
	for name := range p.methods {
		names = append(names, name)
	}
	return names
}

func (p *Proxy) call(ctx context.Context, method string, params any) (jsonrpc.RawMessage, error) {
	stub, ok := p.methods[method]
	if !ok {
		return nil, fmt.Errorf("proxy: %s has no method %q", p.objType, method)
	}
	return stub(ctx, p, params)
}

func (p *Proxy) send(ctx context.Context, method string, params any) (jsonrpc.RawMessage, error) {
	var raw jsonrpc.RawMessage
	if params != nil {
		data, err := marshalParams(params)
		if err != nil {
			return nil, fmt.Errorf("proxy: marshal params for %s: %w", method, err)
		}
		raw = data
	}

	req := &jsonrpc.Request{
		Method: method,
		Handle: p.handle,
		Params: raw,
	}
	if p.delta {
		t := true
		req.Delta = &t
	}
	return p.session.Send(ctx, req)
}
