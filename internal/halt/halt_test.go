package halt

import (
	"sync"
	"testing"
	"time"
)

func TestRequestFirstReasonWins(t *testing.T) {
	t.Parallel()
	s := New()
	if s.Requested() {
		t.Fatal("new signal already requested")
	}
	var wg sync.WaitGroup
	s.Request("se presionó Q")
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Request("otro motivo")
		}()
	}
	wg.Wait()
	if !s.Requested() || s.Reason() != "se presionó Q" {
		t.Fatalf("requested=%v reason=%q", s.Requested(), s.Reason())
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestSleepWakesEarly(t *testing.T) {
	t.Parallel()
	s := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Request("stop")
	}()
	start := time.Now()
	if s.Sleep(10 * time.Second) {
		t.Fatal("Sleep reported full duration")
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("Sleep took %v after stop", el)
	}
	if s.Sleep(time.Second) {
		t.Fatal("Sleep after stop should return false immediately")
	}
}

func TestSleepFullDuration(t *testing.T) {
	t.Parallel()
	if !New().Sleep(5 * time.Millisecond) {
		t.Fatal("Sleep without stop should complete")
	}
}
