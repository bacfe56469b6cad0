package rest

import (
	"time"

	"fedresurs-radar/internal/core/domain"
)

type ScanStateResponse struct {
	TaskKey      string     `json:"taskKey"`
	Watermark    *time.Time `json:"watermark"`
	PassInFlight bool       `json:"passInFlight"`
}

type ScanTriggerResponse struct {
	TaskKey  string     `json:"taskKey"`
	Backfill bool       `json:"backfill"`
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Enqueued int        `json:"enqueued"`
}

type ScanStatsResponse struct {
	Fetched  int `json:"fetched"`
	Ingested int `json:"ingested"`
	NewLots  int `json:"newLots"`
	Skipped  int `json:"skipped"`
	Filtered int `json:"filtered"`
	Failed   int `json:"failed"`
}

func toScanStatsResponse(s domain.ScanStats) ScanStatsResponse {
	return ScanStatsResponse{
		Fetched:  s.Fetched,
		Ingested: s.Ingested,
		NewLots:  s.NewLots,
		Skipped:  s.Skipped,
		Filtered: s.Filtered,
		Failed:   s.Failed,
	}
}
