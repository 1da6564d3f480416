// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/engineclient/rpcsession/proxy"
	"github.com/engineclient/rpcsession/session"
)

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open a session, suspend it, then resume it",
	RunE:  runOpen,
}

func runOpen(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	s := session.New(session.Options{
		URL: url,
		SchemaLookup: proxy.NewStaticSchemaLookup(map[string][]string{
			session.GlobalObjectType: {"GetObject", "OpenDoc"},
		}),
	})

	s.OnOpened(func() { fmt.Println("session opened") })
	s.OnSuspended(func() { fmt.Println("session suspended") })
	s.OnResumed(func(evt session.ResumedEvent) {
		fmt.Printf("session resumed, lost handles: %v\n", evt.ClosedHandles)
	})
	s.OnClosed(func(evt session.ClosedEvent) {
		fmt.Printf("session closed: code=%d reason=%s\n", evt.Code, evt.Reason)
	})

	if err := s.Open(ctx); err != nil {
		return fmt.Errorf("open: %w", err)
	}

	if err := s.Suspend(ctx, "demo suspend"); err != nil {
		return fmt.Errorf("suspend: %w", err)
	}

	if _, err := s.Resume(ctx, false); err != nil {
		return fmt.Errorf("resume: %w", err)
	}

	return s.Close(ctx, "demo done")
}
