package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mymindmirror/mindmirror/internal/journal"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/types"
)

const (
	testAPIKey = "test-api-key"
	testOwner  = "owner-1"
	testSecret = "owner-secret"
	testULID   = "01ARZ3NDEKTSV4RRFFQ69G5FAV"
)

// fakeJournal is a scriptable Journal. Nil functions get benign defaults.
type fakeJournal struct {
	createFn  func(sess journal.Session, text string) (*types.Entry, error)
	updateFn  func(sess journal.Session, id, text string) (*types.Entry, error)
	deleteFn  func(sess journal.Session, id string) error
	getFn     func(sess journal.Session, id string) (*types.Entry, error)
	clusterFn func(sess journal.Session, count int) (*types.ClusterOutcome, error)
}

func sampleEntry(sess journal.Session, text string) *types.Entry {
	return &types.Entry{
		ID:             testULID,
		OwnerID:        sess.OwnerID,
		Text:           text,
		AnalysisStatus: types.AnalysisComplete,
	}
}

func (f *fakeJournal) Create(ctx context.Context, sess journal.Session, text string, entryDate time.Time) (*types.Entry, error) {
	if f.createFn == nil {
		return sampleEntry(sess, text), nil
	}
	return f.createFn(sess, text)
}

func (f *fakeJournal) Update(ctx context.Context, sess journal.Session, id, text string, entryDate time.Time) (*types.Entry, error) {
	if f.updateFn == nil {
		return sampleEntry(sess, text), nil
	}
	return f.updateFn(sess, id, text)
}

func (f *fakeJournal) Delete(ctx context.Context, sess journal.Session, id string) error {
	if f.deleteFn == nil {
		return nil
	}
	return f.deleteFn(sess, id)
}

func (f *fakeJournal) Get(ctx context.Context, sess journal.Session, id string) (*types.Entry, error) {
	if f.getFn == nil {
		return sampleEntry(sess, "stored text"), nil
	}
	return f.getFn(sess, id)
}

func (f *fakeJournal) ListByOwner(ctx context.Context, sess journal.Session, start, end *time.Time) ([]types.Entry, error) {
	return []types.Entry{*sampleEntry(sess, "stored text")}, nil
}

func (f *fakeJournal) MoodSeries(ctx context.Context, sess journal.Session, start, end *time.Time) ([]types.MoodPoint, error) {
	return []types.MoodPoint{{MoodScore: 0.5}}, nil
}

func (f *fakeJournal) SearchKeyword(ctx context.Context, sess journal.Session, keyword string) ([]types.Entry, error) {
	return []types.Entry{*sampleEntry(sess, "matched "+keyword)}, nil
}

func (f *fakeJournal) SearchMoodRange(ctx context.Context, sess journal.Session, min, max float64) ([]types.Entry, error) {
	return []types.Entry{}, nil
}

func (f *fakeJournal) Cluster(ctx context.Context, sess journal.Session, clusterCount int) (*types.ClusterOutcome, error) {
	if f.clusterFn == nil {
		return &types.ClusterOutcome{Status: types.ClusterRunReconciled, NumClusters: clusterCount}, nil
	}
	return f.clusterFn(sess, clusterCount)
}

func (f *fakeJournal) Reflect(ctx context.Context, prompt string) string {
	return "a reflection"
}

type fakeStats struct{}

func (fakeStats) GetStats(ctx context.Context) (*store.Stats, error) {
	return &store.Stats{EntryCount: 7}, nil
}

func newTestRouter(fj *fakeJournal) http.Handler {
	h := NewHandler(fj, fakeStats{}, testAPIKey, "test", 5)
	return NewRouter(h)
}

// doRequest performs an authenticated request with owner headers attached.
func doRequest(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set(headerOwnerID, testOwner)
	req.Header.Set(headerOwnerSecret, testSecret)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealth_NoAuthRequired(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.EntryCount != 7 {
		t.Errorf("unexpected health payload: %+v", resp)
	}
}

func TestEntries_RequireAPIKey(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil)
	req.Header.Set(headerOwnerID, testOwner)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without API key, got %d", rec.Code)
	}
}

func TestEntries_RequireOwnerHeader(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entries", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without owner header, got %d", rec.Code)
	}
}

func TestCreateEntry(t *testing.T) {
	var gotSess journal.Session
	fj := &fakeJournal{
		createFn: func(sess journal.Session, text string) (*types.Entry, error) {
			gotSess = sess
			return sampleEntry(sess, text), nil
		},
	}
	router := newTestRouter(fj)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/entries", map[string]string{
		"text": "a new entry",
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotSess.OwnerID != testOwner || gotSess.Secret != testSecret {
		t.Error("session not threaded from headers")
	}
	var entry types.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Text != "a new entry" {
		t.Errorf("expected decrypted text in response, got %q", entry.Text)
	}
}

func TestCreateEntry_InvalidJSON(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entries", bytes.NewBufferString("{broken"))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set(headerOwnerID, testOwner)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("expected problem content type, got %q", ct)
	}
}

func TestCreateEntry_ValidationError(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/entries", map[string]string{
		"text": "bad\x00bytes",
	})

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestGetEntry_NotOwner(t *testing.T) {
	fj := &fakeJournal{
		getFn: func(sess journal.Session, id string) (*types.Entry, error) {
			return nil, journal.ErrNotOwner
		},
	}
	router := newTestRouter(fj)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries/"+testULID, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	fj := &fakeJournal{
		getFn: func(sess journal.Session, id string) (*types.Entry, error) {
			return nil, store.ErrNotFound
		},
	}
	router := newTestRouter(fj)

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries/"+testULID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGetEntry_InvalidID(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries/not-a-ulid", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rec.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodDelete, "/api/v1/entries/"+testULID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestSearchEntries_RequiresQuery(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries/search", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for missing q, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/entries/search?q=happy", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSearchByMood_ParamHandling(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries/mood?min=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric min, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/entries/mood?min=0.9&max=0.1", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for inverted range, got %d", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/entries/mood?min=-0.5&max=0.5", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestListEntries_BadDate(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/entries?start=June-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed date, got %d", rec.Code)
	}
}

func TestTriggerClustering_DefaultCount(t *testing.T) {
	var gotCount int
	fj := &fakeJournal{
		clusterFn: func(sess journal.Session, count int) (*types.ClusterOutcome, error) {
			gotCount = count
			return &types.ClusterOutcome{Status: types.ClusterRunReconciled, NumClusters: count}, nil
		},
	}
	router := newTestRouter(fj)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/clustering", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gotCount != 5 {
		t.Errorf("expected configured default count 5, got %d", gotCount)
	}
}

func TestTriggerClustering_FailedRunIsStill200(t *testing.T) {
	fj := &fakeJournal{
		clusterFn: func(sess journal.Session, count int) (*types.ClusterOutcome, error) {
			return &types.ClusterOutcome{Status: types.ClusterRunFailed, Message: "oracle unavailable"}, nil
		},
	}
	router := newTestRouter(fj)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/clustering", map[string]int{"cluster_count": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for a failed run, got %d", rec.Code)
	}
	var outcome types.ClusterOutcome
	if err := json.Unmarshal(rec.Body.Bytes(), &outcome); err != nil {
		t.Fatal(err)
	}
	if outcome.Status != types.ClusterRunFailed {
		t.Errorf("expected failed status in payload, got %s", outcome.Status)
	}
	if outcome.Assignments == nil {
		t.Error("assignments must marshal as an empty list, not null")
	}
}

func TestTriggerClustering_InvalidCount(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/clustering", map[string]int{"cluster_count": 1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for count below 2, got %d", rec.Code)
	}
}

func TestReflect(t *testing.T) {
	router := newTestRouter(&fakeJournal{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/reflect", map[string]string{
		"prompt": "how was my week",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp reflectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reflection != "a reflection" {
		t.Errorf("unexpected reflection %q", resp.Reflection)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/reflect", map[string]string{"prompt": " "})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for empty prompt, got %d", rec.Code)
	}
}
