// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Command rpcsession-demo exercises open/suspend/resume/close against a
// live analytics engine endpoint, for manual smoke testing of the core.
package main

import (
	"fmt"
	"os"

	"github.com/engineclient/rpcsession/cmd/rpcsession-demo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
