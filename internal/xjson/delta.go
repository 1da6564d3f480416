// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package xjson applies the engine's delta-encoded result payloads to a
// previously cached base. The real patch semantics are the engine's own
// (an external collaborator per the core's scope); this implements the
// RFC 7396 JSON Merge Patch subset that is sufficient to exercise the
// interceptor pipeline end to end, and is swappable for the engine's exact
// algorithm without changing the interceptor's shape.
package xjson

import "github.com/segmentio/encoding/json"

// ApplyMergePatch merges patch onto base following RFC 7396: object keys in
// patch overwrite or remove (on null) the matching key in base; any other
// JSON value in patch fully replaces base. A nil base is treated as an
// empty object.
func ApplyMergePatch(base, patch []byte) ([]byte, error) {
	var patchVal any
	if err := json.Unmarshal(patch, &patchVal); err != nil {
		return nil, err
	}

	patchObj, ok := patchVal.(map[string]any)
	if !ok {
		// Non-object patch values fully replace the base.
		return json.Marshal(patchVal)
	}

	var baseObj map[string]any
	if len(base) > 0 {
		var baseVal any
		if err := json.Unmarshal(base, &baseVal); err != nil {
			return nil, err
		}
		if m, ok := baseVal.(map[string]any); ok {
			baseObj = m
		}
	}
	if baseObj == nil {
		baseObj = make(map[string]any)
	}

	merged := mergeObjects(baseObj, patchObj)
	return json.Marshal(merged)
}

func mergeObjects(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		if patchChild, ok := v.(map[string]any); ok {
			if baseChild, ok := out[k].(map[string]any); ok {
				out[k] = mergeObjects(baseChild, patchChild)
				continue
			}
		}
		out[k] = v
	}
	return out
}
