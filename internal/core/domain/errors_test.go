package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyTaskError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want TaskDisposition
	}{
		{"rate limit", &RateLimitError{Attempts: 4}, DispositionRetry},
		{"wrapped rate limit", fmt.Errorf("page 3: %w", &RateLimitError{Attempts: 4}), DispositionRetry},
		{"network", &ApiError{Kind: FailureNetwork}, DispositionRetry},
		{"persistence", &PersistenceError{Op: "upsert lot", Err: errors.New("conn reset")}, DispositionRetry},
		{"reauth failure", &AuthenticationError{StatusCode: 401}, DispositionRetry},
		{"server error after client retries", &ApiError{Kind: FailureServer, StatusCode: 502}, DispositionDrop},
		{"client error", &ApiError{Kind: FailureClient, StatusCode: 400}, DispositionDrop},
		{"bad payload", &ApiError{Kind: FailurePayload}, DispositionDrop},
		{"decode", &DecodeError{Err: errors.New("bad xml")}, DispositionDrop},
		{"window too wide", ErrWindowTooWide, DispositionDrop},
		{"unknown", errors.New("boom"), DispositionDrop},
		{"nil", nil, DispositionDrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTaskError(tt.err); got != tt.want {
				t.Errorf("ClassifyTaskError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldRetryTask(t *testing.T) {
	rateErr := &RateLimitError{Attempts: 4}

	if !ShouldRetryTask(rateErr, ScanTask{Attempt: 0}, 3) {
		t.Error("first attempt under rate limit should be retried")
	}
	if ShouldRetryTask(rateErr, ScanTask{Attempt: 2}, 3) {
		t.Error("last allowed attempt should not be retried")
	}
	if ShouldRetryTask(&ApiError{Kind: FailureServer}, ScanTask{}, 3) {
		t.Error("server errors should not be retried at task level")
	}
}
