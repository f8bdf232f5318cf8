// Package worker runs background coordinators for the journaling service.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mymindmirror/mindmirror/internal/journal"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/types"
)

// AnalysisStore defines the store operations needed by the retry worker.
type AnalysisStore interface {
	SetAnalysis(ctx context.Context, id string, fields store.AnalysisFields, status types.AnalysisStatus) error
}

// Analyzer defines the oracle operation needed by the worker.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*types.AnalysisResult, error)
}

type pendingAnalysis struct {
	entryID   string
	ownerID   string
	plaintext string
	attempts  int
}

// AnalysisRetryWorker retries failed entry analyses. The journal service
// enqueues the plaintext at failure time because the worker has no access
// to owner secrets and cannot decrypt stored ciphertext on its own; the
// queue therefore lives only in memory and is lost on restart, leaving
// those entries in pending status.
type AnalysisRetryWorker struct {
	store       AnalysisStore
	analyzer    Analyzer
	interval    time.Duration
	maxAttempts int

	mu    sync.Mutex
	queue map[string]*pendingAnalysis // keyed by entry id
}

// NewAnalysisRetryWorker creates a new analysis retry worker.
func NewAnalysisRetryWorker(s AnalysisStore, a Analyzer, interval time.Duration, maxAttempts int) *AnalysisRetryWorker {
	return &AnalysisRetryWorker{
		store:       s,
		analyzer:    a,
		interval:    interval,
		maxAttempts: maxAttempts,
		queue:       make(map[string]*pendingAnalysis),
	}
}

// Enqueue registers an entry for retry. A second enqueue for the same
// entry replaces the plaintext and resets the attempt count: the entry
// was edited, so earlier failures no longer count against it.
func (w *AnalysisRetryWorker) Enqueue(entryID, ownerID, plaintext string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue[entryID] = &pendingAnalysis{
		entryID:   entryID,
		ownerID:   ownerID,
		plaintext: plaintext,
	}
}

// Run starts the worker loop. Blocks until ctx is cancelled.
func (w *AnalysisRetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processQueue(ctx)
		}
	}
}

func (w *AnalysisRetryWorker) processQueue(ctx context.Context) {
	w.mu.Lock()
	batch := make([]*pendingAnalysis, 0, len(w.queue))
	for _, p := range w.queue {
		batch = append(batch, p)
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	var successCount int
	for _, p := range batch {
		if ctx.Err() != nil {
			return
		}
		if w.retryOne(ctx, p) {
			successCount++
		}
	}

	if successCount > 0 {
		slog.Info("retried pending analyses",
			"action", "analysis_retry",
			"count", successCount,
			"component", "worker",
		)
	}
}

// retryOne attempts a single analysis. Returns true on success.
func (w *AnalysisRetryWorker) retryOne(ctx context.Context, p *pendingAnalysis) bool {
	res, err := w.analyzer.Analyze(ctx, p.plaintext)
	if err != nil {
		w.recordFailure(ctx, p, err)
		return false
	}

	fields, err := journal.EncodeAnalysis(res)
	if err != nil {
		slog.Error("failed to encode retried analysis",
			"entry_id", p.entryID,
			"error", err,
			"component", "worker",
		)
		w.drop(p.entryID)
		return false
	}

	if err := w.store.SetAnalysis(ctx, p.entryID, fields, types.AnalysisComplete); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Entry deleted while queued; nothing to retry anymore.
			w.drop(p.entryID)
			return false
		}
		slog.Error("failed to persist retried analysis",
			"entry_id", p.entryID,
			"error", err,
			"component", "worker",
		)
		w.recordFailure(ctx, p, err)
		return false
	}

	w.drop(p.entryID)
	return true
}

func (w *AnalysisRetryWorker) recordFailure(ctx context.Context, p *pendingAnalysis, cause error) {
	w.mu.Lock()
	current, ok := w.queue[p.entryID]
	if !ok || current != p {
		// Superseded by a newer enqueue while this retry ran.
		w.mu.Unlock()
		return
	}
	current.attempts++
	exhausted := current.attempts >= w.maxAttempts
	if exhausted {
		delete(w.queue, p.entryID)
	}
	w.mu.Unlock()

	if !exhausted {
		slog.Warn("analysis retry failed, will retry",
			"entry_id", p.entryID,
			"attempts", current.attempts,
			"error", cause,
			"component", "worker",
		)
		return
	}

	if err := w.store.SetAnalysis(ctx, p.entryID, store.AnalysisFields{}, types.AnalysisFailed); err != nil {
		slog.Error("failed to mark analysis as failed",
			"entry_id", p.entryID,
			"error", err,
			"component", "worker",
		)
		return
	}
	slog.Error("analysis permanently failed",
		"action", "analysis_retry",
		"entry_id", p.entryID,
		"attempts", current.attempts,
		"component", "worker",
	)
}

func (w *AnalysisRetryWorker) drop(entryID string) {
	w.mu.Lock()
	delete(w.queue, entryID)
	w.mu.Unlock()
}
