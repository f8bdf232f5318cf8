// Package journal is the encrypted journaling core. It owns the decrypted
// boundary: text is encrypted before it reaches the store and decrypted on
// every read path, so ciphertext never leaves this package. It also owns
// ownership enforcement and the degrade-don't-fail policy for the analysis
// oracle.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/mymindmirror/mindmirror/internal/crypto"
	"github.com/mymindmirror/mindmirror/internal/oracle"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/types"
)

// ReflectionFallback is returned whenever the oracle cannot produce a
// reflection. Callers get this message, never an error.
const ReflectionFallback = "Keep reflecting on your thoughts and feelings. You're doing great by journaling!"

// Session identifies the calling owner and carries the secret used to
// derive that owner's encryption key. The secret lives only in memory for
// the duration of a request and must never be logged.
type Session struct {
	OwnerID string
	Secret  string
}

// AnalysisQueue receives entries whose analysis failed so a background
// worker can retry. The plaintext is handed over directly because the
// worker has no way to re-derive the owner's key later.
type AnalysisQueue interface {
	Enqueue(entryID, ownerID, plaintext string)
}

// Service implements the journaling operations over an encrypted store and
// a fallible analysis oracle.
type Service struct {
	store          store.Store
	codec          *crypto.Codec
	oracle         oracle.Oracle
	queue          AnalysisQueue
	locks          *ownerLocks
	clusterTimeout time.Duration
}

// NewService wires the journaling core. queue may be nil, in which case
// failed analyses are not retried. clusterTimeout bounds each clustering
// oracle round trip; zero means no bound beyond the client's own.
func NewService(st store.Store, codec *crypto.Codec, orc oracle.Oracle, queue AnalysisQueue, clusterTimeout time.Duration) *Service {
	return &Service{
		store:          st,
		codec:          codec,
		oracle:         orc,
		queue:          queue,
		locks:          newOwnerLocks(),
		clusterTimeout: clusterTimeout,
	}
}

// Create encrypts text and persists a new entry, then attempts analysis.
// The create succeeds even when the oracle is down: the entry is stored
// with null AI fields and pending status, and the analysis is queued for
// retry.
func (s *Service) Create(ctx context.Context, sess Session, text string, entryDate time.Time) (*types.Entry, error) {
	if sess.OwnerID == "" {
		return nil, ErrNoOwner
	}

	blob, err := s.codec.Encrypt(text, sess.Secret)
	if err != nil {
		return nil, err
	}

	if entryDate.IsZero() {
		entryDate = time.Now().UTC()
	}

	rec := &store.Record{
		OwnerID:    sess.OwnerID,
		EntryDate:  entryDate,
		Ciphertext: blob,
	}
	if err := s.store.CreateEntry(ctx, rec); err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}

	entry := s.toEntry(rec, text)
	s.analyze(ctx, entry, text)
	return entry, nil
}

// Update re-encrypts the entry text. Analysis fields are reset and the
// entry re-analyzed only when the decrypted plaintext actually changed;
// a no-op edit keeps the existing enrichment. The cluster label is never
// touched here.
func (s *Service) Update(ctx context.Context, sess Session, id, text string, entryDate time.Time) (*types.Entry, error) {
	if err := requireSecret(sess); err != nil {
		return nil, err
	}
	rec, err := s.ownedRecord(ctx, sess, id)
	if err != nil {
		return nil, err
	}

	previous := s.codec.Decrypt(rec.Ciphertext, sess.Secret).Value()
	changed := previous != text

	blob, err := s.codec.Encrypt(text, sess.Secret)
	if err != nil {
		return nil, err
	}
	rec.Ciphertext = blob
	if !entryDate.IsZero() {
		rec.EntryDate = entryDate
	}
	if changed {
		rec.MoodScore = nil
		rec.Emotions = nil
		rec.CoreConcerns = nil
		rec.Summary = nil
		rec.GrowthTips = nil
		rec.KeyPhrases = nil
		rec.AnalysisStatus = types.AnalysisPending
	}
	if err := s.store.UpdateEntry(ctx, rec); err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}

	entry := s.decryptRecord(rec, sess.Secret)
	if changed {
		s.analyze(ctx, entry, text)
	}
	return entry, nil
}

// Delete permanently discards the entry and its ciphertext. There is no
// soft delete.
func (s *Service) Delete(ctx context.Context, sess Session, id string) error {
	if _, err := s.ownedRecord(ctx, sess, id); err != nil {
		return err
	}
	return s.store.DeleteEntry(ctx, id)
}

// Get returns one decrypted entry.
func (s *Service) Get(ctx context.Context, sess Session, id string) (*types.Entry, error) {
	if err := requireSecret(sess); err != nil {
		return nil, err
	}
	rec, err := s.ownedRecord(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	return s.decryptRecord(rec, sess.Secret), nil
}

// ListByOwner returns the owner's decrypted entries, newest first,
// optionally bounded by entry date.
func (s *Service) ListByOwner(ctx context.Context, sess Session, start, end *time.Time) ([]types.Entry, error) {
	if err := requireSecret(sess); err != nil {
		return nil, err
	}
	recs, err := s.store.ListByOwner(ctx, sess.OwnerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return s.decryptRecords(recs, sess.Secret), nil
}

// MoodSeries returns the mood-over-time feed for charting: one point per
// analyzed entry, ascending by entry date. Entries without a mood score
// are skipped.
func (s *Service) MoodSeries(ctx context.Context, sess Session, start, end *time.Time) ([]types.MoodPoint, error) {
	if sess.OwnerID == "" {
		return nil, ErrNoOwner
	}
	recs, err := s.store.ListByOwner(ctx, sess.OwnerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	points := make([]types.MoodPoint, 0, len(recs))
	for i := range recs {
		if recs[i].MoodScore == nil {
			continue
		}
		points = append(points, types.MoodPoint{
			Date:      recs[i].EntryDate,
			MoodScore: *recs[i].MoodScore,
		})
	}
	// The store lists by creation time; the chart orders by entry date,
	// which differs for backdated entries.
	sort.Slice(points, func(i, j int) bool {
		return points[i].Date.Before(points[j].Date)
	})
	return points, nil
}

// Reflect asks the oracle for a short reflection over the prompt. Oracle
// failure degrades to a fixed fallback message, never an error.
func (s *Service) Reflect(ctx context.Context, prompt string) string {
	reflection, err := s.oracle.Reflect(ctx, prompt)
	if err != nil {
		slog.Warn("reflection unavailable, using fallback",
			"component", "journal",
			"action", "reflect_fallback",
			"error", err,
		)
		return ReflectionFallback
	}
	return reflection
}

// requireSecret guards every path that decrypts stored text. Without the
// owner's secret the codec cannot tell real ciphertext from a legacy plain
// value, and a read would hand the stored blob back as if it were text.
func requireSecret(sess Session) error {
	if sess.OwnerID == "" {
		return ErrNoOwner
	}
	if sess.Secret == "" {
		return crypto.ErrNoSecret
	}
	return nil
}

// ownedRecord loads a record and enforces ownership before any crypto work.
func (s *Service) ownedRecord(ctx context.Context, sess Session, id string) (*store.Record, error) {
	if sess.OwnerID == "" {
		return nil, ErrNoOwner
	}
	rec, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != sess.OwnerID {
		return nil, ErrNotOwner
	}
	return rec, nil
}

// analyze runs oracle analysis for a freshly written plaintext and persists
// the result. On failure the entry keeps its null AI fields and pending
// status, and the work is queued for the retry worker.
func (s *Service) analyze(ctx context.Context, entry *types.Entry, text string) {
	res, err := s.oracle.Analyze(ctx, text)
	if err != nil {
		slog.Warn("analysis unavailable, entry saved without enrichment",
			"component", "journal",
			"action", "analyze_degraded",
			"entry_id", entry.ID,
			"error", err,
		)
		if s.queue != nil {
			s.queue.Enqueue(entry.ID, entry.OwnerID, text)
		}
		return
	}

	fields, err := EncodeAnalysis(res)
	if err != nil {
		slog.Error("encode analysis result",
			"component", "journal",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}
	if err := s.store.SetAnalysis(ctx, entry.ID, fields, types.AnalysisComplete); err != nil {
		slog.Error("persist analysis result",
			"component", "journal",
			"entry_id", entry.ID,
			"error", err,
		)
		return
	}
	applyAnalysis(entry, res)
}

// toEntry builds the decrypted view for a record whose plaintext is already
// known, skipping a decrypt round trip.
func (s *Service) toEntry(rec *store.Record, text string) *types.Entry {
	e := &types.Entry{
		ID:             rec.ID,
		OwnerID:        rec.OwnerID,
		EntryDate:      rec.EntryDate,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
		Text:           text,
		MoodScore:      rec.MoodScore,
		Summary:        rec.Summary,
		ClusterID:      rec.ClusterID,
		AnalysisStatus: rec.AnalysisStatus,
	}
	e.Emotions = decodeMap(rec.Emotions)
	e.CoreConcerns = decodeList(rec.CoreConcerns)
	e.GrowthTips = decodeList(rec.GrowthTips)
	e.KeyPhrases = decodeList(rec.KeyPhrases)
	return e
}

// decryptRecord converts a stored record into the decrypted entry view.
// Legacy or corrupted blobs degrade to the raw stored value; a warning is
// the only trace they leave.
func (s *Service) decryptRecord(rec *store.Record, secret string) *types.Entry {
	res := s.codec.Decrypt(rec.Ciphertext, secret)
	if res.Outcome != crypto.OutcomeDecrypted {
		slog.Warn("entry text did not decrypt cleanly, returning stored value",
			"component", "journal",
			"action", "decrypt_fallback",
			"entry_id", rec.ID,
			"outcome", res.Outcome,
			"error", res.Err,
		)
	}
	return s.toEntry(rec, res.Value())
}

func (s *Service) decryptRecords(recs []store.Record, secret string) []types.Entry {
	entries := make([]types.Entry, 0, len(recs))
	for i := range recs {
		entries = append(entries, *s.decryptRecord(&recs[i], secret))
	}
	return entries
}

// EncodeAnalysis encodes an oracle result into the nullable JSON columns.
// The retry worker shares this encoding so retried and first-pass analyses
// persist identically.
func EncodeAnalysis(res *types.AnalysisResult) (store.AnalysisFields, error) {
	var fields store.AnalysisFields
	fields.MoodScore = &res.MoodScore
	fields.Summary = &res.Summary

	var err error
	if fields.Emotions, err = encodeJSON(res.Emotions); err != nil {
		return fields, err
	}
	if fields.CoreConcerns, err = encodeJSON(res.CoreConcerns); err != nil {
		return fields, err
	}
	if fields.GrowthTips, err = encodeJSON(res.GrowthTips); err != nil {
		return fields, err
	}
	if fields.KeyPhrases, err = encodeJSON(res.KeyPhrases); err != nil {
		return fields, err
	}
	return fields, nil
}

func applyAnalysis(entry *types.Entry, res *types.AnalysisResult) {
	mood := res.MoodScore
	summary := res.Summary
	entry.MoodScore = &mood
	entry.Emotions = res.Emotions
	entry.CoreConcerns = res.CoreConcerns
	entry.Summary = &summary
	entry.GrowthTips = res.GrowthTips
	entry.KeyPhrases = res.KeyPhrases
	entry.AnalysisStatus = types.AnalysisComplete
}

func encodeJSON(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func decodeMap(s *string) map[string]float64 {
	if s == nil {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		slog.Warn("malformed emotions payload", "component", "journal", "error", err)
		return nil
	}
	return m
}

func decodeList(s *string) []string {
	if s == nil {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(*s), &list); err != nil {
		slog.Warn("malformed list payload", "component", "journal", "error", err)
		return nil
	}
	return list
}

// containsFold reports whether text contains keyword, case-insensitively.
func containsFold(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}
