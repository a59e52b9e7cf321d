package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/service"
)

// Ledger is what the log handler needs from the service layer.
type Ledger interface {
	LogWater(ctx context.Context, userID string, amountMl int, loc *time.Location) (*model.UserProfile, error)
	ListLogs(ctx context.Context, userID string, limit, offset int) ([]model.WaterLog, error)
	LatestLog(ctx context.Context, userID string) (*model.WaterLog, error)
	History(ctx context.Context, userID string, days int, loc *time.Location) ([]model.DailyTotal, error)
}

type LogHandler struct {
	ledger  Ledger
	locator Locator
	logger  *slog.Logger
}

func NewLogHandler(ledger Ledger, locator Locator, logger *slog.Logger) *LogHandler {
	return &LogHandler{ledger: ledger, locator: locator, logger: logger}
}

// LogRequest is the body of POST /api/logs. Units defaults to ml.
type LogRequest struct {
	Amount float64     `json:"amount"`
	Units  model.Units `json:"units,omitempty"`
}

// HandleCreate records a drink and returns the updated profile.
//
// HTTP: POST /api/logs {"amount": 8, "units": "oz"}
//
// A 503 (transaction_failed) means nothing was saved and the request can be
// resubmitted as is.
func (h *LogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, loc, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	var req LogRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Units == "" {
		req.Units = model.UnitsMl
	}
	if !req.Units.Valid() {
		writeError(w, apperror.ValidationFailed("units", "units must be ml or oz"))
		return
	}
	if req.Amount <= 0 {
		writeError(w, apperror.ValidationFailed("amount", "amount must be a positive number"))
		return
	}
	// Checked before conversion so huge floats never reach the int cast.
	if req.Amount > float64(service.MaxLogAmount) {
		writeError(w, tooMuch())
		return
	}
	ml := model.ToMilliliters(req.Amount, req.Units)
	if ml > service.MaxLogAmount {
		writeError(w, tooMuch())
		return
	}

	p, err := h.ledger.LogWater(r.Context(), userID, ml, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newProfileResponse(p))
}

func tooMuch() error {
	return apperror.ValidationFailed("amount",
		fmt.Sprintf("a single log can be at most %d ml", service.MaxLogAmount))
}

// HandleList returns log entries newest first.
//
// HTTP: GET /api/logs?limit=20&offset=0
func (h *LogHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	logs, err := h.ledger.ListLogs(r.Context(), userID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if logs == nil {
		logs = []model.WaterLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// HandleLatest returns the most recent entry, or 404 before the first log.
//
// HTTP: GET /api/logs/latest
func (h *LogHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	l, err := h.ledger.LatestLog(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// HandleHistory returns per-day totals in the caller's timezone.
//
// HTTP: GET /api/history?days=7
func (h *LogHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, loc, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	totals, err := h.ledger.History(r.Context(), userID, days, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}
