// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package apicache is the mapping from a live server handle to its
// generated proxy, plus the per-handle changed/closed event bus. At most
// one entry exists per live handle.
package apicache

import (
	"sync"

	"github.com/engineclient/rpcsession/internal/jsonrpc"
	"github.com/engineclient/rpcsession/internal/pubsub"
)

// Entry is the cache record for one live handle. API holds the proxy
// produced by the proxy factory; it is stored as any so this package does
// not need to depend on the proxy package.
type Entry struct {
	Handle      jsonrpc.Handle
	Type        string
	GenericType string
	ID          string
	API         any

	mu       sync.Mutex
	patchees map[string]jsonrpc.RawMessage
}

// Cache is keyed by handle. Lookup is O(1); iteration follows insertion
// order. Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[jsonrpc.Handle]*Entry
	order   []jsonrpc.Handle

	changed *pubsub.Registry[jsonrpc.Handle, jsonrpc.Handle]
	closed  *pubsub.Registry[jsonrpc.Handle, jsonrpc.Handle]
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{
		entries: make(map[jsonrpc.Handle]*Entry),
		changed: pubsub.NewRegistry[jsonrpc.Handle, jsonrpc.Handle](),
		closed:  pubsub.NewRegistry[jsonrpc.Handle, jsonrpc.Handle](),
	}
}

// Add inserts or replaces the entry for handle. Replacing an existing
// handle emits no event -- callers are expected to manage collisions
// themselves, per the cache's contract.
func (c *Cache) Add(handle jsonrpc.Handle, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[handle]; !exists {
		c.order = append(c.order, handle)
	}
	entry.Handle = handle
	c.entries[handle] = entry
}

// Remove deletes the entry for handle, if any.
func (c *Cache) Remove(handle jsonrpc.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[handle]; !exists {
		return
	}
	delete(c.entries, handle)
	for i, h := range c.order {
		if h == handle {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// GetAPI returns the proxy stored for handle, or nil if no live entry
// exists.
func (c *Cache) GetAPI(handle jsonrpc.Handle) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[handle]
	if !ok {
		return nil
	}
	return e.API
}

// GetEntry returns the entry for handle, or nil.
func (c *Cache) GetEntry(handle jsonrpc.Handle) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[handle]
}

// GetAPIs returns every live proxy, in insertion order.
func (c *Cache) GetAPIs() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, 0, len(c.order))
	for _, h := range c.order {
		out = append(out, c.entries[h].API)
	}
	return out
}

// Handles returns every live handle, in insertion order.
func (c *Cache) Handles() []jsonrpc.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]jsonrpc.Handle, len(c.order))
	copy(out, c.order)
	return out
}

// GetPatchee returns the last known base payload for (handle, method), used
// by a delta-application interceptor to patch an incoming delta against.
func (c *Cache) GetPatchee(handle jsonrpc.Handle, method string) (jsonrpc.RawMessage, bool) {
	c.mu.Lock()
	e, ok := c.entries[handle]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	base, ok := e.patchees[method]
	return base, ok
}

// SetPatchee records the full (post-delta) payload for (handle, method) as
// the new base for the next delta.
func (c *Cache) SetPatchee(handle jsonrpc.Handle, method string, base jsonrpc.RawMessage) {
	c.mu.Lock()
	e, ok := c.entries[handle]
	c.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Lock()
	if e.patchees == nil {
		e.patchees = make(map[string]jsonrpc.RawMessage)
	}
	e.patchees[method] = base
	e.mu.Unlock()
}

// OnChanged subscribes to change events for handle.
func (c *Cache) OnChanged(handle jsonrpc.Handle, fn func(jsonrpc.Handle)) (unsubscribe func()) {
	return c.changed.Topic(handle).Subscribe(fn)
}

// OnClosed subscribes to close events for handle.
func (c *Cache) OnClosed(handle jsonrpc.Handle, fn func(jsonrpc.Handle)) (unsubscribe func()) {
	return c.closed.Topic(handle).Subscribe(fn)
}

// EmitChanged fires the change event for handle without altering the
// cache, used by the session when a response's change array names handle.
func (c *Cache) EmitChanged(handle jsonrpc.Handle) {
	c.changed.Publish(handle, handle)
}

// EmitClosed removes handle from the cache and fires its close event, used
// by the session when a response's close array names handle, or when the
// whole cache is cleared on session close.
func (c *Cache) EmitClosed(handle jsonrpc.Handle) {
	c.Remove(handle)
	c.closed.Publish(handle, handle)
	c.changed.Delete(handle)
	c.closed.Delete(handle)
}

// Clear removes every entry, firing a close event for each -- used when
// the session itself closes.
func (c *Cache) Clear() {
	for _, h := range c.Handles() {
		c.EmitClosed(h)
	}
}
