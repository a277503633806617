package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"

	"railwatch/internal/api/dto"
	"railwatch/internal/dispatch"
	"railwatch/internal/scraper"
)

const (
	liveStatusCacheControl = "public, max-age=300"
	scheduleCacheControl   = "public, max-age=3600"
	pnrCacheControl        = "no-store"
)

var errInvalidPayload = errors.New("invalid request payload")

func (h *api) liveStatus(w http.ResponseWriter, r *http.Request) {
	trainNumber, err := trainNumberFromRequest(r)
	if err != nil {
		writeError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if trainNumber == "" {
		writeError(w, "Train number is required", http.StatusBadRequest)
		return
	}

	status, err := h.trains.LiveStatus(r.Context(), trainNumber)
	if err != nil {
		writeTrainError(w, r, "live status", err)
		return
	}

	w.Header().Set("Cache-Control", liveStatusCacheControl)
	writeJSON(w, http.StatusOK, dto.Envelope{
		Status:  dto.StatusSuccess,
		Message: "Live status fetched successfully",
		Data:    status,
	})
}

func (h *api) trainSchedule(w http.ResponseWriter, r *http.Request) {
	trainNumber, err := trainNumberFromRequest(r)
	if err != nil {
		writeError(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if trainNumber == "" {
		writeError(w, "Train number is required", http.StatusBadRequest)
		return
	}

	schedule, err := h.trains.Schedule(r.Context(), trainNumber)
	if err != nil {
		writeTrainError(w, r, "train schedule", err)
		return
	}

	w.Header().Set("Cache-Control", scheduleCacheControl)
	writeJSON(w, http.StatusOK, dto.Envelope{
		Status:  dto.StatusSuccess,
		Message: "Schedule fetched successfully",
		Data:    schedule,
	})
}

func (h *api) pnrStatus(w http.ResponseWriter, r *http.Request) {
	pnrNumber := strings.TrimSpace(r.PathValue("pnr_number"))
	if r.Method == http.MethodPost {
		var payload dto.PNRNumberRequest
		if err := decodeOptionalJSON(r, &payload); err != nil {
			writeError(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
		if value := strings.TrimSpace(payload.PNRNumber); value != "" {
			pnrNumber = value
		}
	}
	if pnrNumber == "" {
		writeError(w, "PNR number is required", http.StatusBadRequest)
		return
	}

	status, err := h.trains.PNRStatus(r.Context(), pnrNumber)
	if err != nil {
		writeTrainError(w, r, "pnr status", err)
		return
	}

	w.Header().Set("Cache-Control", pnrCacheControl)
	writeJSON(w, http.StatusOK, dto.Envelope{
		Status:  dto.StatusSuccess,
		Message: "PNR status fetched successfully",
		Data:    status,
	})
}

// trainNumberFromRequest prefers the POST body over the path segment.
func trainNumberFromRequest(r *http.Request) (string, error) {
	trainNumber := strings.TrimSpace(r.PathValue("train_number"))
	if r.Method != http.MethodPost {
		return trainNumber, nil
	}

	var payload dto.TrainNumberRequest
	if err := decodeOptionalJSON(r, &payload); err != nil {
		return "", err
	}
	if value := strings.TrimSpace(payload.TrainNumber); value != "" {
		trainNumber = value
	}
	return trainNumber, nil
}

func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return errInvalidPayload
}

func writeTrainError(w http.ResponseWriter, r *http.Request, what string, err error) {
	switch {
	case errors.Is(err, scraper.ErrInvalidTrainNumber),
		errors.Is(err, scraper.ErrInvalidPNR):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scraper.ErrNotFound):
		writeError(w, "No data found for "+what, http.StatusNotFound)
	case errors.Is(err, dispatch.ErrNoProxyAvailable):
		writeError(w, "Failed to get "+what+" - no proxy available", http.StatusServiceUnavailable)
	case errors.Is(err, scraper.ErrUpstreamUnavailable),
		errors.Is(err, scraper.ErrDisallowedByRobots):
		log.Warn("Upstream lookup failed", "what", what, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, "Failed to get "+what+" - Service temporarily unavailable", http.StatusBadGateway)
	default:
		log.Error("Train lookup failed", "what", what, "request_id", RequestIDFromContext(r.Context()), "error", err)
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
