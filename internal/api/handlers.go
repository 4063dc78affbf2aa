package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hackgods/therapy-slot-booking/internal/appointment"
	"github.com/hackgods/therapy-slot-booking/internal/reconcile"
	"github.com/hackgods/therapy-slot-booking/pkg/logging"
)

func listRecordsHandler(store RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := appointment.ListFilter{
			Status:      appointment.Status(q.Get("status")),
			ClinicianID: q.Get("clinician_id"),
		}

		var err error
		if filter.Limit, err = intParam(q.Get("limit")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}
		if filter.Offset, err = intParam(q.Get("offset")); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be an integer")
			return
		}

		records, err := store.List(r.Context(), filter)
		if err != nil {
			handleStoreError(w, err)
			return
		}

		resp := ListRecordsResponse{
			Records: make([]RecordResponse, 0, len(records)),
			Count:   len(records),
		}
		for i := range records {
			resp.Records = append(resp.Records, toRecordResponse(&records[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func lookupRecordHandler(store RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		href := strings.TrimSpace(r.URL.Query().Get("href"))
		if href == "" {
			writeError(w, http.StatusBadRequest, "missing_href", "href query parameter is required")
			return
		}
		annotateHref(r, href)

		rec, err := store.Find(r.Context(), href)
		if err != nil {
			handleStoreError(w, err)
			return
		}
		if rec == nil {
			writeError(w, http.StatusNotFound, "record_not_found", appointment.ErrRecordNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, toRecordResponse(rec))
	}
}

// enrollHandler queues an href for the reconcile worker without touching the
// booking site.
func enrollHandler(store RecordStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBookingRequest(w, r)
		if !ok {
			return
		}

		rec, err := store.Upsert(r.Context(), appointment.UpsertInput{
			Href:    req.Href,
			Patient: req.Patient,
		})
		if err != nil {
			handleStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toRecordResponse(rec))
	}
}

func submitHandler(booker Booker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeBookingRequest(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, booker.Submit(r.Context(), req.Patient, req.Href))
	}
}

func checkHandler(checker AvailabilityChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		req.Href = strings.TrimSpace(req.Href)
		if !appointment.ValidHref(req.Href) {
			writeError(w, http.StatusBadRequest, "invalid_href", appointment.ErrInvalidHref.Error())
			return
		}
		annotateHref(r, req.Href)

		writeJSON(w, http.StatusOK, CheckResponse{
			Href:   req.Href,
			Booked: checker.IsBooked(r.Context(), req.Href),
		})
	}
}

const defaultReconcileTimeout = 30 * time.Minute

// reconcileHandler runs on a context detached from the request so a client
// that disconnects does not abort the items already in flight.
func reconcileHandler(rec Reconciler, timeout time.Duration, logger *logging.Logger) http.HandlerFunc {
	if timeout <= 0 {
		timeout = defaultReconcileTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
		defer cancel()

		summary, err := rec.ProcessPending(ctx)
		if r.Context().Err() != nil {
			logger.Warn("client left before reconcile finished",
				"request_id", GetRequestID(r.Context()),
				"total", summary.Total,
				"error", err,
			)
		}
		if err != nil {
			if errors.Is(err, reconcile.ErrAlreadyRunning) {
				writeError(w, http.StatusConflict, "reconcile_in_progress", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func decodeBookingRequest(w http.ResponseWriter, r *http.Request) (BookingRequest, bool) {
	var req BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return req, false
	}
	req.Href = strings.TrimSpace(req.Href)
	if !appointment.ValidHref(req.Href) {
		writeError(w, http.StatusBadRequest, "invalid_href", appointment.ErrInvalidHref.Error())
		return req, false
	}
	annotateHref(r, req.Href)
	return req, true
}

func handleStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidHref):
		writeError(w, http.StatusBadRequest, "invalid_href", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, appointment.ErrRecordNotFound):
		writeError(w, http.StatusNotFound, "record_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
