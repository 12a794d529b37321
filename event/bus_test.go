package event_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/echosdaw/echos/event"
)

func TestPublishReachesKindSubscribersInOrder(t *testing.T) {
	b := event.NewBus(zaptest.NewLogger(t))
	var got []string
	b.Subscribe(event.NodeAdded, func(e event.Event) { got = append(got, "first:"+e.NodeID) })
	b.Subscribe(event.NodeAdded, func(e event.Event) { got = append(got, "second:"+e.NodeID) })
	b.Subscribe(event.NodeRemoved, func(e event.Event) { got = append(got, "removed:"+e.NodeID) })
	b.SubscribeAll(func(e event.Event) { got = append(got, "all:"+e.Kind.String()) })
	b.Publish(event.Event{Kind: event.NodeAdded, NodeID: "a"})
	want := []string{"first:a", "second:a", "all:NodeAdded"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected delivery (-want +got):\n%s", diff)
	}
}

func TestCancelAndPanickingHandler(t *testing.T) {
	b := event.NewBus(zaptest.NewLogger(t))
	calls := 0
	b.Subscribe(event.ParameterChanged, func(event.Event) { panic("handler bug") })
	cancel := b.Subscribe(event.ParameterChanged, func(event.Event) { calls++ })
	b.Publish(event.Event{Kind: event.ParameterChanged})
	if calls != 1 {
		t.Fatalf("handler after a panicking one was called %d times", calls)
	}
	cancel()
	b.Publish(event.Event{Kind: event.ParameterChanged})
	if calls != 1 {
		t.Fatalf("cancelled handler still called")
	}
	if n := b.Subscribers(event.ParameterChanged); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}
}

func TestHandlersMayPublish(t *testing.T) {
	b := event.NewBus(nil)
	var kinds []event.Kind
	b.Subscribe(event.NodeAdded, func(e event.Event) {
		b.Publish(event.Event{Kind: event.NodeRenamed, NodeID: e.NodeID})
	})
	b.SubscribeAll(func(e event.Event) { kinds = append(kinds, e.Kind) })
	b.Publish(event.Event{Kind: event.NodeAdded, NodeID: "x"})
	if diff := cmp.Diff([]event.Kind{event.NodeRenamed, event.NodeAdded}, kinds); diff != "" {
		t.Fatalf("nested publish delivered unexpectedly (-want +got):\n%s", diff)
	}
}
