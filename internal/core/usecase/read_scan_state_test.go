package usecase

import (
	"context"
	"testing"
	"time"
)

func TestReadScanState(t *testing.T) {
	wm := newFakeWatermarks()
	wm.values["trade_monitor"] = day0
	tracker := NewProgressTracker(wm, time.Hour)
	uc := NewReadScanStateUseCase(wm, tracker)

	got, inFlight, err := uc.Execute(context.Background(), "trade_monitor")
	if err != nil || !got.Equal(day0) || inFlight {
		t.Errorf("Execute() = %v, %v, %v", got, inFlight, err)
	}

	tracker.BeginPass("trade_monitor", threeWindows())
	if _, inFlight, _ := uc.Execute(context.Background(), "trade_monitor"); !inFlight {
		t.Error("running pass not reported")
	}
}
