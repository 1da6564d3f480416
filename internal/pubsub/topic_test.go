// Copyright 2025 The rpcsession Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pubsub

import "testing"

func TestTopicPublishDeliversInOrder(t *testing.T) {
	top := New[int]()
	var got []int
	top.Subscribe(func(v int) { got = append(got, v*10) })
	top.Subscribe(func(v int) { got = append(got, v*100) })

	top.Publish(1)

	want := []int{10, 100}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTopicUnsubscribe(t *testing.T) {
	top := New[int]()
	calls := 0
	unsub := top.Subscribe(func(int) { calls++ })
	top.Publish(1)
	unsub()
	top.Publish(1)

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestTopicPublishRecoversPanic(t *testing.T) {
	top := New[int]()
	second := false
	top.Subscribe(func(int) { panic("boom") })
	top.Subscribe(func(int) { second = true })

	top.Publish(1) // must not panic out of Publish

	if !second {
		t.Fatal("second subscriber was not called after first panicked")
	}
}

func TestRegistryPublishOnlyExistingTopic(t *testing.T) {
	reg := NewRegistry[string, int]()
	called := false
	reg.Topic("a").Subscribe(func(int) { called = true })

	reg.Publish("b", 1) // no topic "b" exists; must not create one implicitly
	if called {
		t.Fatal("subscriber for topic a was called by a publish to topic b")
	}

	reg.Publish("a", 1)
	if !called {
		t.Fatal("subscriber for topic a was not called")
	}
}

func TestRegistryDelete(t *testing.T) {
	reg := NewRegistry[string, int]()
	calls := 0
	reg.Topic("a").Subscribe(func(int) { calls++ })
	reg.Delete("a")

	// Topic("a") recreates an empty topic; the old subscriber is gone.
	reg.Topic("a").Subscribe(func(int) { calls += 10 })
	reg.Publish("a", 1)

	if calls != 10 {
		t.Fatalf("calls = %d, want 10", calls)
	}
}
