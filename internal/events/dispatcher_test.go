package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherDeliversInSubscriptionOrder(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventCaseFlagged, func(context.Context, Event) error {
		calls = append(calls, "first")
		return nil
	})
	d.Subscribe(EventCaseFlagged, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventCaseReviewed, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventCaseFlagged, CaseID: "c1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestDispatcherIsolatesHandlerFailures(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	reached := false
	d.Subscribe(EventCaseAssigned, func(context.Context, Event) error {
		return errors.New("sink down")
	})
	d.Subscribe(EventCaseAssigned, func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventCaseAssigned, func(context.Context, Event) error {
		reached = true
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventCaseAssigned}); err != nil {
		t.Fatalf("publish returned %v", err)
	}
	if !reached {
		t.Fatal("expected later handler to run after failures")
	}
}
