package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxRegistryWindow - максимальная ширина диапазона дат, которую принимает реестр
const MaxRegistryWindow = 31 * 24 * time.Hour

// ScanStream - именованный поток сканирования со своим водяным знаком
type ScanStream struct {
	Key    string
	Source MessageSource
	Types  []string
}

// ScanTask - задача на сканирование одного поддиапазона [Start, End)
type ScanTask struct {
	ID        uuid.UUID
	PassID    uuid.UUID
	StreamKey string
	Source    MessageSource
	Types     []string
	Start     time.Time
	End       time.Time
	Attempt   int
}

// Window - поддиапазон дат [Start, End)
type Window struct {
	Start time.Time
	End   time.Time
}

// ScanStats - счетчики по одной задаче сканирования
type ScanStats struct {
	Fetched  int
	Ingested int
	NewLots  int
	Skipped  int
	Filtered int
	Failed   int
}

// Add суммирует счетчики
func (s *ScanStats) Add(other ScanStats) {
	s.Fetched += other.Fetched
	s.Ingested += other.Ingested
	s.NewLots += other.NewLots
	s.Skipped += other.Skipped
	s.Filtered += other.Filtered
	s.Failed += other.Failed
}

// SplitWindow разбивает [from, to) на смежные поддиапазоны шагом step.
// Шаг ограничивается MaxRegistryWindow. Последний поддиапазон обрезается по to.
func SplitWindow(from, to time.Time, step time.Duration) []Window {
	if !from.Before(to) {
		return nil
	}
	if step <= 0 || step > MaxRegistryWindow {
		step = MaxRegistryWindow
	}

	windows := make([]Window, 0, int(to.Sub(from)/step)+1)
	for cur := from; cur.Before(to); {
		next := cur.Add(step)
		if next.After(to) {
			next = to
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next
	}
	return windows
}
