package usecase

import (
	"context"
	"errors"
	"testing"

	"fedresurs-radar/internal/core/domain"
)

func TestProcessScanTaskPaginatesAndCounts(t *testing.T) {
	unsupported := message("<x/>")
	unsupported.Type = "Unknown"
	client := &fakeClient{
		total: 5,
		messages: []domain.RegistryMessage{
			message("многоквартирный дом"),
			message(""),
			unsupported,
			message("bad"),
			message("офисное здание"),
		},
	}
	ingest := &fakeIngest{}
	progress := &fakeProgress{}
	uc := NewProcessScanTaskUseCase(client, fakeDecodePool{}, ingest, progress, 2)

	task := domain.ScanTask{StreamKey: "trade_monitor", Source: domain.SourceTradeMessages}
	stats, err := uc.Execute(context.Background(), task)
	if err != nil {
		t.Fatal(err)
	}

	if len(client.queries) != 3 {
		t.Fatalf("fetched %d pages, want 3", len(client.queries))
	}
	for i, q := range client.queries {
		if q.Offset != i*2 || q.Limit != 2 {
			t.Errorf("page %d query = offset %d limit %d", i, q.Offset, q.Limit)
		}
	}

	want := domain.ScanStats{Fetched: 5, Ingested: 2, NewLots: 2, Skipped: 2, Failed: 1}
	if stats != want {
		t.Errorf("stats = %+v, want %+v", stats, want)
	}
	if len(ingest.calls) != 2 || ingest.calls[0].Content != "многоквартирный дом" {
		t.Errorf("documents reached ingest out of order: %+v", ingest.calls)
	}
	if len(progress.calls) != 1 || !progress.calls[0].success {
		t.Errorf("progress calls = %+v, want one success", progress.calls)
	}
}

func TestProcessScanTaskPropagatesClientError(t *testing.T) {
	client := &fakeClient{fetchErr: &domain.RateLimitError{Attempts: 4}}
	progress := &fakeProgress{}
	uc := NewProcessScanTaskUseCase(client, fakeDecodePool{}, &fakeIngest{}, progress, 500)

	_, err := uc.Execute(context.Background(), domain.ScanTask{})
	var rateErr *domain.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}
	if domain.ClassifyTaskError(err) != domain.DispositionRetry {
		t.Error("wrapped rate limit error is no longer retryable")
	}
	if len(progress.calls) != 0 {
		t.Error("failed task reported progress")
	}
}

func TestProcessScanTaskStopsOnPersistenceError(t *testing.T) {
	client := &fakeClient{total: 2, messages: []domain.RegistryMessage{message("a"), message("b")}}
	ingest := &fakeIngest{err: &domain.PersistenceError{Op: "commit", Err: errors.New("connection reset")}}
	progress := &fakeProgress{}
	uc := NewProcessScanTaskUseCase(client, fakeDecodePool{}, ingest, progress, 500)

	_, err := uc.Execute(context.Background(), domain.ScanTask{})
	var persistErr *domain.PersistenceError
	if !errors.As(err, &persistErr) {
		t.Fatalf("error = %v, want PersistenceError", err)
	}
	if len(ingest.calls) != 1 {
		t.Errorf("ingest called %d times, want to stop after the first failure", len(ingest.calls))
	}
	if len(progress.calls) != 0 {
		t.Error("failed task reported progress")
	}
}

func TestAbandonReportsFailure(t *testing.T) {
	progress := &fakeProgress{}
	uc := NewProcessScanTaskUseCase(&fakeClient{}, fakeDecodePool{}, &fakeIngest{}, progress, 500)

	uc.Abandon(context.Background(), domain.ScanTask{StreamKey: "trade_monitor"}, errors.New("gone"))
	if len(progress.calls) != 1 || progress.calls[0].success {
		t.Errorf("progress calls = %+v, want one failure", progress.calls)
	}
}
