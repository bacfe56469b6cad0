package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
)

type countingSchedule struct {
	mu    sync.Mutex
	calls map[string]int
	err   error
}

func (c *countingSchedule) Execute(_ context.Context, stream domain.ScanStream) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[stream.Key]++
	return 1, c.err
}

func (c *countingSchedule) Backfill(context.Context, domain.ScanStream, time.Time, time.Time) (int, error) {
	return 0, nil
}

func (c *countingSchedule) count(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[key]
}

func TestTickerRunsEveryStreamAtStartup(t *testing.T) {
	uc := &countingSchedule{calls: make(map[string]int), err: domain.ErrPassInFlight}
	streams := []domain.ScanStream{{Key: "trade_monitor"}, {Key: "shift_left"}}
	ticker, err := NewStreamTicker(uc, streams, time.Hour, contextkeys.NoopLogger())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = ticker.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for uc.count("trade_monitor") == 0 || uc.count("shift_left") == 0 {
		select {
		case <-deadline:
			t.Fatal("streams were not scheduled at startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	// интервал в час: кроме стартового прохода других быть не должно
	if got := uc.count("trade_monitor"); got != 1 {
		t.Errorf("trade_monitor scheduled %d times, want 1", got)
	}
	_ = ticker.Close()
}

func TestTickerRepeatsOnInterval(t *testing.T) {
	uc := &countingSchedule{calls: make(map[string]int)}
	ticker, _ := NewStreamTicker(uc, []domain.ScanStream{{Key: "trade_monitor"}}, 10*time.Millisecond, contextkeys.NoopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go func() { _ = ticker.Start(ctx) }()

	for uc.count("trade_monitor") < 3 {
		select {
		case <-ctx.Done():
			t.Fatalf("only %d passes before timeout", uc.count("trade_monitor"))
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	_ = ticker.Close()
}

func TestNewStreamTickerRejectsZeroInterval(t *testing.T) {
	if _, err := NewStreamTicker(&countingSchedule{}, nil, 0, contextkeys.NoopLogger()); err == nil {
		t.Error("expected an error for zero interval")
	}
}
