// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package proxy

import "fmt"

// NewStaticSchemaLookup builds a SchemaLookup backed by a fixed table of
// type name to method list, useful for tests and for engines whose method
// surface is known ahead of time rather than discovered at runtime.
func NewStaticSchemaLookup(methodsByType map[string][]string) SchemaLookup {
	return func(objType string) (Schema, error) {
		methods, ok := methodsByType[objType]
		if !ok {
			return Schema{}, fmt.Errorf("proxy: no static schema registered for type %q", objType)
		}
		return Schema{Type: objType, Methods: methods}, nil
	}
}
