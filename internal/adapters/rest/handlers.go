package rest

import (
	"errors"
	"net/http"
	"time"

	"fedresurs-radar/internal/contextkeys"
	"fedresurs-radar/internal/core/domain"
	"fedresurs-radar/internal/core/port"
	"fedresurs-radar/internal/core/port/usecases_port"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ScanHandler обслуживает административные эндпоинты сканирования
type ScanHandler struct {
	scheduleUC  usecases_port.ScheduleScanPort
	readStateUC usecases_port.ReadScanStatePort
	reingestUC  usecases_port.ReingestMessagePort
	streams     map[string]domain.ScanStream
}

func NewScanHandler(
	scheduleUC usecases_port.ScheduleScanPort,
	readStateUC usecases_port.ReadScanStatePort,
	reingestUC usecases_port.ReingestMessagePort,
	streams map[string]domain.ScanStream,
) *ScanHandler {
	return &ScanHandler{
		scheduleUC:  scheduleUC,
		readStateUC: readStateUC,
		reingestUC:  reingestUC,
		streams:     streams,
	}
}

// GetState обрабатывает GET /api/v1/state/{taskKey}
func (h *ScanHandler) GetState(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context())
	taskKey := chi.URLParam(r, "taskKey")

	if _, ok := h.streams[taskKey]; !ok {
		WriteJSONError(w, http.StatusNotFound, "unknown scan stream")
		return
	}

	watermark, inFlight, err := h.readStateUC.Execute(r.Context(), taskKey)
	if err != nil {
		logger.Error("Failed to read scan state", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "failed to read scan state")
		return
	}

	resp := ScanStateResponse{TaskKey: taskKey, PassInFlight: inFlight}
	if !watermark.IsZero() {
		resp.Watermark = &watermark
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

// TriggerScan обрабатывает POST /api/v1/scans/{taskKey}[?from=&to=].
// С параметрами from/to ставит backfill, водяной знак при этом не двигается.
func (h *ScanHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context())
	taskKey := chi.URLParam(r, "taskKey")

	stream, ok := h.streams[taskKey]
	if !ok {
		WriteJSONError(w, http.StatusNotFound, "unknown scan stream")
		return
	}

	from, err := parseOptionalTime(r, "from")
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid 'from', expected RFC3339")
		return
	}
	to, err := parseOptionalTime(r, "to")
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid 'to', expected RFC3339")
		return
	}

	resp := ScanTriggerResponse{TaskKey: taskKey}
	var enqueued int
	if from.IsZero() && to.IsZero() {
		enqueued, err = h.scheduleUC.Execute(r.Context(), stream)
	} else {
		if to.IsZero() {
			to = time.Now()
		}
		resp.Backfill, resp.From, resp.To = true, &from, &to
		enqueued, err = h.scheduleUC.Backfill(r.Context(), stream, from, to)
	}
	resp.Enqueued = enqueued

	switch {
	case err == nil:
		RespondWithJSON(w, http.StatusAccepted, resp)
	case errors.Is(err, domain.ErrPassInFlight):
		WriteJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidRange):
		WriteJSONError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Failed to schedule scan", err, port.Fields{"enqueued": enqueued})
		WriteJSONError(w, http.StatusInternalServerError, "failed to schedule scan")
	}
}

// ReingestMessage обрабатывает POST /api/v1/messages/{guid}/reingest[?linked=true]
func (h *ScanHandler) ReingestMessage(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context())

	guid, err := uuid.Parse(chi.URLParam(r, "guid"))
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid message guid")
		return
	}

	stats, err := h.reingestUC.Execute(r.Context(), guid, parseBoolOrDefault(r, "linked", false))
	if err != nil {
		var apiErr *domain.ApiError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			WriteJSONError(w, http.StatusNotFound, "message not found in registry")
			return
		}
		logger.Error("Failed to reingest message", err, nil)
		WriteJSONError(w, http.StatusBadGateway, "failed to reingest message")
		return
	}
	RespondWithJSON(w, http.StatusOK, toScanStatsResponse(stats))
}

// Healthz - проверка живости
func Healthz(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
