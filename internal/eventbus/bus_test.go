package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDropsWhenFull(t *testing.T) {
	bus := New()
	a, unsubA := bus.Subscribe(1)
	b, unsubB := bus.Subscribe(4)
	defer unsubB()

	bus.Publish(Event{Type: TypeAttention})
	bus.Publish(Event{Type: TypeCampaignFinished})

	if got := len(a); got != 1 {
		t.Fatalf("slow subscriber buffered %d events, want 1", got)
	}
	if got := len(b); got != 2 {
		t.Fatalf("subscriber buffered %d events, want 2", got)
	}
	e := <-b
	if e.Type != TypeAttention || e.Time.IsZero() {
		t.Fatalf("unexpected first event %+v", e)
	}

	unsubA()
	unsubA()
	bus.Publish(Event{Type: TypeDigest, Time: time.Now()})
}
