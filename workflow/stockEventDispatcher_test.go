package workflow

import (
	"context"
	"testing"
	"time"
)

func TestNextBackoff(t *testing.T) {
	initial := 5 * time.Second
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 5 * time.Second},
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{7, 320 * time.Second},
		{8, maxPublishBackoff},
		{50, maxPublishBackoff},
	}
	for _, tc := range cases {
		if got := nextBackoff(initial, tc.attempt); got != tc.want {
			t.Fatalf("nextBackoff(%s, %d) = %s, want %s", initial, tc.attempt, got, tc.want)
		}
	}
	if got := nextBackoff(time.Hour, 1); got != maxPublishBackoff {
		t.Fatalf("initial above cap = %s, want %s", got, maxPublishBackoff)
	}
}

func TestDispatchOnceWithoutDatabaseIsNoop(t *testing.T) {
	d := NewStockEventDispatcher(nil, nil)
	if d.DispatcherID == "" || d.Publish == nil {
		t.Fatalf("dispatcher defaults not set: %+v", d)
	}
	sent, err := d.DispatchOnce(context.Background())
	if err != nil || sent != 0 {
		t.Fatalf("DispatchOnce = %d, %v", sent, err)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	d := NewStockEventDispatcher(nil, nil)
	d.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
