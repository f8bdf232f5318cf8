package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mymindmirror/mindmirror/internal/journal"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/types"
	"github.com/mymindmirror/mindmirror/internal/validation"
)

// Journal defines the journaling operations the API exposes. Implemented
// by journal.Service; an interface here so handlers are testable with a
// scripted core.
type Journal interface {
	Create(ctx context.Context, sess journal.Session, text string, entryDate time.Time) (*types.Entry, error)
	Update(ctx context.Context, sess journal.Session, id, text string, entryDate time.Time) (*types.Entry, error)
	Delete(ctx context.Context, sess journal.Session, id string) error
	Get(ctx context.Context, sess journal.Session, id string) (*types.Entry, error)
	ListByOwner(ctx context.Context, sess journal.Session, start, end *time.Time) ([]types.Entry, error)
	MoodSeries(ctx context.Context, sess journal.Session, start, end *time.Time) ([]types.MoodPoint, error)
	SearchKeyword(ctx context.Context, sess journal.Session, keyword string) ([]types.Entry, error)
	SearchMoodRange(ctx context.Context, sess journal.Session, min, max float64) ([]types.Entry, error)
	Cluster(ctx context.Context, sess journal.Session, clusterCount int) (*types.ClusterOutcome, error)
	Reflect(ctx context.Context, prompt string) string
}

// StatsStore is the slice of the store the health endpoint needs.
type StatsStore interface {
	GetStats(ctx context.Context) (*store.Stats, error)
}

// Handler implements the API handlers.
type Handler struct {
	journal             Journal
	stats               StatsStore
	apiKey              string
	version             string
	defaultClusterCount int
}

// NewHandler creates a new Handler.
func NewHandler(j Journal, stats StatsStore, apiKey, version string, defaultClusterCount int) *Handler {
	return &Handler{
		journal:             j,
		stats:               stats,
		apiKey:              apiKey,
		version:             version,
		defaultClusterCount: defaultClusterCount,
	}
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	EntryCount      int64  `json:"entry_count"`
	PendingAnalysis int64  `json:"pending_analysis"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:          "healthy",
		Version:         h.version,
		EntryCount:      stats.EntryCount,
		PendingAnalysis: stats.PendingAnalysis,
	})
}

type entryRequest struct {
	Text      string `json:"text"`
	EntryDate string `json:"entry_date,omitempty"` // YYYY-MM-DD, defaults to today
}

// CreateEntry handles POST /api/v1/entries
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}

	if errs := validation.ValidateEntryText(req.Text); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}
	entryDate, ok := parseEntryDate(w, r, req.EntryDate)
	if !ok {
		return
	}

	entry, err := h.journal.Create(r.Context(), sess, req.Text, entryDate)
	if err != nil {
		slog.Error("create entry failed", "error", err, "owner_id", sess.OwnerID)
		MapServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// GetEntry handles GET /api/v1/entries/{id}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if errs := validation.ValidateEntryID(id); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid entry id", errs)
		return
	}

	entry, err := h.journal.Get(r.Context(), sess, id)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// UpdateEntry handles PUT /api/v1/entries/{id}
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if errs := validation.ValidateEntryID(id); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid entry id", errs)
		return
	}

	var req entryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if errs := validation.ValidateEntryText(req.Text); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Request contains invalid fields", errs)
		return
	}
	entryDate, ok := parseEntryDate(w, r, req.EntryDate)
	if !ok {
		return
	}

	entry, err := h.journal.Update(r.Context(), sess, id, req.Text, entryDate)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// DeleteEntry handles DELETE /api/v1/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if errs := validation.ValidateEntryID(id); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid entry id", errs)
		return
	}

	if err := h.journal.Delete(r.Context(), sess, id); err != nil {
		MapServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEntries handles GET /api/v1/entries
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	entries, err := h.journal.ListByOwner(r.Context(), sess, start, end)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// SearchEntries handles GET /api/v1/entries/search
func (h *Handler) SearchEntries(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	keyword := r.URL.Query().Get("q")
	if errs := validation.ValidateKeyword(keyword); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid search query", errs)
		return
	}

	entries, err := h.journal.SearchKeyword(r.Context(), sess, keyword)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// SearchByMood handles GET /api/v1/entries/mood
func (h *Handler) SearchByMood(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	min, ok := parseFloatParam(w, r, "min", -1)
	if !ok {
		return
	}
	max, ok := parseFloatParam(w, r, "max", 1)
	if !ok {
		return
	}
	if errs := validation.ValidateMoodRange(min, max); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid mood range", errs)
		return
	}

	entries, err := h.journal.SearchMoodRange(r.Context(), sess, min, max)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// MoodSeries handles GET /api/v1/entries/mood-series
func (h *Handler) MoodSeries(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())
	start, end, ok := parseDateRange(w, r)
	if !ok {
		return
	}

	points, err := h.journal.MoodSeries(r.Context(), sess, start, end)
	if err != nil {
		MapServiceError(w, r, err)
		return
	}
	if points == nil {
		points = []types.MoodPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

type clusterRequest struct {
	ClusterCount int `json:"cluster_count,omitempty"`
}

// TriggerClustering handles POST /api/v1/clustering. A failed run is a
// domain outcome, not a transport error: it comes back 200 with status
// "failed" and zero assignments.
func (h *Handler) TriggerClustering(w http.ResponseWriter, r *http.Request) {
	sess := MustSessionFromContext(r.Context())

	var req clusterRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
			return
		}
	}
	if req.ClusterCount == 0 {
		req.ClusterCount = h.defaultClusterCount
	}
	if errs := validation.ValidateClusterCount(req.ClusterCount); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid cluster count", errs)
		return
	}

	outcome, err := h.journal.Cluster(r.Context(), sess, req.ClusterCount)
	if err != nil {
		slog.Error("clustering run error", "error", err, "owner_id", sess.OwnerID)
		MapServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

type reflectRequest struct {
	Prompt string `json:"prompt"`
}

type reflectResponse struct {
	Reflection string `json:"reflection"`
}

// Reflect handles POST /api/v1/reflect
func (h *Handler) Reflect(w http.ResponseWriter, r *http.Request) {
	var req reflectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err.Error()))
		return
	}
	if errs := validation.ValidatePrompt(req.Prompt); len(errs) > 0 {
		WriteProblemWithErrors(w, r, "Invalid prompt", errs)
		return
	}

	writeJSON(w, http.StatusOK, reflectResponse{
		Reflection: h.journal.Reflect(r.Context(), req.Prompt),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// parseEntryDate parses an optional YYYY-MM-DD body field. Writes the
// problem response itself; the bool reports success.
func parseEntryDate(w http.ResponseWriter, r *http.Request, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	d, err := time.Parse(time.DateOnly, value)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "entry_date must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return d, true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (start, end *time.Time, ok bool) {
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start", &start}, {"end", &end}} {
		value := r.URL.Query().Get(p.name)
		if value == "" {
			continue
		}
		d, err := time.Parse(time.DateOnly, value)
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("%s must be YYYY-MM-DD", p.name))
			return nil, nil, false
		}
		*p.dst = &d
	}
	return start, end, true
}

func parseFloatParam(w http.ResponseWriter, r *http.Request, name string, fallback float64) (float64, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("%s must be a number", name))
		return 0, false
	}
	return f, true
}
