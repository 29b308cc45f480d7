package web

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"casebridge/internal/core"
)

var validate = validator.New()

// batchRequest is the JSON body for starting a batch without a CSV file.
type batchRequest struct {
	Rows []core.RawRow `json:"rows" validate:"required,min=1"`
}

// duplicateRequest is the JSON body for a duplicate check.
type duplicateRequest struct {
	Rows []core.RawRow `json:"rows" validate:"required,min=1"`

	// Targeted switches from snapshot comparison to per-row remote lookups.
	Targeted bool `json:"targeted"`
}

// handleStartBatch accepts rows either as a multipart CSV upload (field
// "file") or as a JSON body, and starts an asynchronous submission batch.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	rows, err := s.readRows(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	batchID, err := s.service.StartBatch(r.Context(), rows)
	if err != nil {
		s.respondError(w, r, err, http.StatusTooManyRequests)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, map[string]any{
		"batch_id":   batchID,
		"total_rows": len(rows),
	})
}

// readRows extracts submission rows from either a multipart form or a JSON body.
func (s *Server) readRows(w http.ResponseWriter, r *http.Request) ([]core.RawRow, error) {
	maxSize := s.cfg.Batch.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, fmt.Errorf("file too large or invalid form: %w", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, fmt.Errorf("no file provided: %w", err)
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("read file: %w", err)
		}
		return core.ParseRows(data)
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return req.Rows, nil
}

// handleBatchStatus returns the current progress snapshot without blocking.
func (s *Server) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	progress, err := s.service.GetProgress(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, progress)
}

// handleBatchProgress streams batch progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter.
func (s *Server) handleBatchProgress(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	progressCh, err := s.service.SubscribeProgress(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			// The event ID is the progress percentage, which lets clients
			// skip already-received events after reconnection.
			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleBatchReport returns the final report for a batch, blocking until the
// batch finishes if it is still running.
func (s *Server) handleBatchReport(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	report, err := s.service.GetReport(batchID)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]any{
		"report":  report,
		"summary": report.Summary(),
	})
}

// handleCancelBatch cancels an in-progress batch.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")

	if err := s.service.CancelBatch(batchID); err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleRecentBatches lists recently finished batches, newest first.
func (s *Server) handleRecentBatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"batches": s.service.RecentBatches(),
		"limiter": s.service.LimiterStatus(),
	})
}

// handleCheckDuplicates flags rows whose injured-party identity already
// exists in the remote collection.
func (s *Server) handleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var req duplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, fmt.Errorf("invalid request body: %w", err), http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		s.respondError(w, r, fmt.Errorf("invalid request: %w", err), http.StatusBadRequest)
		return
	}

	var (
		flagged    map[int]bool
		bestEffort bool
		err        error
	)
	if req.Targeted {
		flagged, err = s.service.CheckDuplicatesTargeted(r.Context(), req.Rows)
	} else {
		flagged, bestEffort, err = s.service.CheckDuplicates(r.Context(), req.Rows)
	}
	if err != nil && len(flagged) == 0 {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}

	resp := map[string]any{
		"duplicate_rows": sortedIndexes(flagged),
		"checked_rows":   len(req.Rows),
	}
	if bestEffort {
		resp["best_effort"] = true
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, resp)
}

// handleListCases fetches every case from the remote collection, walking all
// pages. Query parameters are passed through as remote filters.
func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	filters := make(map[string]string)
	for key, vals := range r.URL.Query() {
		if len(vals) > 0 && vals[0] != "" {
			filters[key] = vals[0]
		}
	}

	cases, err := s.service.FetchCases(r.Context(), filters)
	if err != nil && len(cases) == 0 {
		s.respondError(w, r, err, http.StatusBadGateway)
		return
	}

	resp := map[string]any{
		"cases": cases,
		"count": len(cases),
	}
	if err != nil {
		// A mid-walk failure still returns the pages fetched so far.
		resp["partial"] = true
		resp["error"] = err.Error()
	}
	writeJSON(w, resp)
}

// handleHealth reports process liveness and batch slot occupancy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	})
}

// sortedIndexes converts a flagged-row set into an ordered slice.
func sortedIndexes(flagged map[int]bool) []int {
	out := make([]int, 0, len(flagged))
	for i, dup := range flagged {
		if dup {
			out = append(out, i)
		}
	}
	sort.Ints(out)
	return out
}
