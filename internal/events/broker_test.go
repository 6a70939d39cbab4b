package events

import (
	"testing"
	"time"
)

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker(nil)
	a, cancelA := b.Subscribe(4)
	c, cancelC := b.Subscribe(4)
	defer cancelA()
	defer cancelC()

	b.Publish(Event{Type: TypeJobStage, JobID: "j1", Stage: "SYNTHESIZING", Progress: 10})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			if e.JobID != "j1" || e.Stage != "SYNTHESIZING" {
				t.Errorf("unexpected event %+v", e)
			}
			if e.At.IsZero() {
				t.Error("timestamp should be set")
			}
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBroker_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeJobStage, Progress: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	if e := <-ch; e.Progress != 0 {
		t.Errorf("first queued event should be kept, got progress %d", e.Progress)
	}
}

func TestBroker_Cancel(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe(0)
	if b.Subscribers() != 1 {
		t.Fatalf("expected 1 subscriber")
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if b.Subscribers() != 0 {
		t.Error("subscriber should be removed")
	}
	b.Publish(Event{Type: TypeJobDone})
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker(nil)
	ch, cancel := b.Subscribe(1)
	b.Close()
	cancel()

	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	late, _ := b.Subscribe(1)
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}
