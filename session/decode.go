// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package session

import "github.com/segmentio/encoding/json"

// decodeResult unmarshals a proxy call's raw result into v.
func decodeResult(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
