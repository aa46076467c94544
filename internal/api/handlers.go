package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/avlog/internal/recordservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *recordservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *recordservice.Service) *Handler {
	return &Handler{svc: svc}
}

// hourParam parses the {hour} URL parameter.
func hourParam(r *http.Request) (int, bool) {
	h, err := strconv.Atoi(chi.URLParam(r, "hour"))
	if err != nil {
		return 0, false
	}
	return h, true
}

// Frames handles GET /api/frames.
//
//	@Summary		Get the aggregate frames document
//	@Tags			frames
//	@Produce		json
//	@Success		200	{array}		models.Frame
//	@Failure		404	{object}	errorBody
//	@Security		BearerAuth
//	@Router			/frames [get]
func (h *Handler) Frames(w http.ResponseWriter, r *http.Request) {
	raw, err := h.svc.Frames(r.Context())
	if err != nil {
		writeServiceError(w, "read frames", err)
		return
	}
	writeRaw(w, raw)
}

// ListHours handles GET /api/hours.
//
//	@Summary		List hour buckets with record counts
//	@Tags			records
//	@Produce		json
//	@Success		200	{object}	HourListResponse
//	@Security		BearerAuth
//	@Router			/hours [get]
func (h *Handler) ListHours(w http.ResponseWriter, r *http.Request) {
	hours, err := h.svc.Hours(r.Context())
	if err != nil {
		writeServiceError(w, "list hours", err)
		return
	}
	writeJSON(w, http.StatusOK, HourListResponse{Hours: hours})
}

// ListRecords handles GET /api/hours/{hour}.
//
//	@Summary		List record files in one hour bucket
//	@Tags			records
//	@Produce		json
//	@Param			hour	path		int	true	"Hour 0-23"
//	@Success		200		{object}	RecordListResponse
//	@Failure		400		{object}	errorBody
//	@Failure		404		{object}	errorBody
//	@Security		BearerAuth
//	@Router			/hours/{hour} [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	hour, ok := hourParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeBadRequest, "hour must be an integer")
		return
	}
	entries, err := h.svc.Records(r.Context(), hour)
	if err != nil {
		writeServiceError(w, "list records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Hour: hour, Records: entries})
}

// GetRecord handles GET /api/records/{hour}/{name}.
//
//	@Summary		Get one record document
//	@Tags			records
//	@Produce		json
//	@Param			hour	path		int		true	"Hour 0-23"
//	@Param			name	path		string	true	"Record file name, e.g. 09:30:00.000.json"
//	@Success		200		{object}	RecordDetail
//	@Failure		400		{object}	errorBody
//	@Failure		404		{object}	errorBody
//	@Security		BearerAuth
//	@Router			/records/{hour}/{name} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	hour, ok := hourParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, codeBadRequest, "hour must be an integer")
		return
	}
	name := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	detail, err := h.svc.Record(r.Context(), hour, name)
	if err != nil {
		writeServiceError(w, "get record", err)
		return
	}
	w.Header().Set("ETag", `"`+detail.Checksum+`"`)
	writeJSON(w, http.StatusOK, detail)
}

// QueryRecords handles GET /api/records.
//
//	@Summary		Query catalogued records by time range
//	@Tags			catalog
//	@Produce		json
//	@Param			from	query		string	false	"Inclusive lower bound (RFC 3339)"
//	@Param			to		query		string	false	"Exclusive upper bound (RFC 3339)"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	RecordQueryResponse
//	@Failure		400		{object}	errorBody
//	@Failure		501		{object}	errorBody
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) QueryRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseTime(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "from: "+err.Error())
		return
	}
	to, err := parseTime(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "to: "+err.Error())
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	rows, err := h.svc.Query(r.Context(), from, to, limit)
	if err != nil {
		writeServiceError(w, "query records", err)
		return
	}
	writeJSON(w, http.StatusOK, RecordQueryResponse{Records: rows})
}

// Stats handles GET /api/stats.
//
//	@Summary		Catalog totals
//	@Tags			catalog
//	@Produce		json
//	@Success		200	{object}	index.Stats
//	@Failure		501	{object}	errorBody
//	@Security		BearerAuth
//	@Router			/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// LastRun handles GET /api/runs/last.
//
//	@Summary		Summary of the most recent conversion
//	@Tags			runs
//	@Produce		json
//	@Success		200	{object}	models.Summary
//	@Failure		404	{object}	errorBody
//	@Security		BearerAuth
//	@Router			/runs/last [get]
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.LastRun(r.Context())
	if err != nil {
		writeServiceError(w, "last run", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
