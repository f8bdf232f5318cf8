package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mymindmirror/mindmirror/internal/crypto"
	"github.com/mymindmirror/mindmirror/internal/oracle"
	"github.com/mymindmirror/mindmirror/internal/store"
	"github.com/mymindmirror/mindmirror/internal/types"
)

// runState tracks a clustering run through its lifecycle. Reconciled and
// failed are terminal; a run can fail from any state after corpus
// collection.
type runState string

const (
	stateIdle            runState = "idle"
	stateCorpusCollected runState = "corpus_collected"
	stateRequestSent     runState = "request_sent"
	stateResultReceived  runState = "result_received"
	stateReconciled      runState = "reconciled"
	stateFailed          runState = "failed"
)

// Cluster runs one clustering pass over the owner's full corpus: collect
// and decrypt every entry in canonical order, submit the ordered texts to
// the oracle, and write the returned labels back in a single transaction.
//
// Runs for the same owner serialize on an owner-scoped lock held for the
// whole round trip; two interleaved runs could submit different corpora
// and write back mismatched labels. Oracle failure, timeout, or a label
// count that does not match the corpus all end the run with zero
// mutations and a failed outcome rather than an error.
func (s *Service) Cluster(ctx context.Context, sess Session, clusterCount int) (*types.ClusterOutcome, error) {
	if sess.OwnerID == "" {
		return nil, ErrNoOwner
	}
	if sess.Secret == "" {
		return nil, crypto.ErrNoSecret
	}

	lock := s.locks.get(sess.OwnerID)
	lock.Lock()
	defer lock.Unlock()

	state := stateIdle

	corpus, err := s.store.CorpusByOwner(ctx, sess.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("collect corpus: %w", err)
	}
	if len(corpus) < 2 {
		return s.failRun(sess.OwnerID, state,
			fmt.Sprintf("clustering needs at least 2 entries, corpus has %d", len(corpus))), nil
	}

	// Canonical order is fixed here and reused for both submission and
	// reconciliation.
	req := oracle.ClusterRequest{
		OwnerID:      sess.OwnerID,
		EntryIDs:     make([]string, len(corpus)),
		Texts:        make([]string, len(corpus)),
		ClusterCount: clusterCount,
	}
	for i := range corpus {
		req.EntryIDs[i] = corpus[i].ID
		req.Texts[i] = s.codec.Decrypt(corpus[i].Ciphertext, sess.Secret).Value()
	}
	state = stateCorpusCollected

	slog.Info("clustering run started",
		"component", "journal",
		"action", "cluster_request",
		"owner_id", sess.OwnerID,
		"corpus_size", len(corpus),
		"cluster_count", clusterCount,
	)
	state = stateRequestSent

	oracleCtx := ctx
	if s.clusterTimeout > 0 {
		var cancel context.CancelFunc
		oracleCtx, cancel = context.WithTimeout(ctx, s.clusterTimeout)
		defer cancel()
	}
	resp, err := s.oracle.Cluster(oracleCtx, req)
	if err != nil {
		return s.failRun(sess.OwnerID, state, fmt.Sprintf("clustering oracle unavailable: %v", err)), nil
	}
	state = stateResultReceived

	assignments, reason := reconcile(corpus, resp)
	if reason != "" {
		return s.failRun(sess.OwnerID, state, reason), nil
	}

	// Writes begin. Reconciliation must run to completion once started, so
	// the batch write is shielded from caller cancellation; atomicity is
	// the store's transaction.
	if err := s.store.AssignClusters(context.WithoutCancel(ctx), assignments); err != nil {
		return nil, fmt.Errorf("persist cluster assignments: %w", err)
	}
	state = stateReconciled

	slog.Info("clustering run reconciled",
		"component", "journal",
		"action", "cluster_reconciled",
		"owner_id", sess.OwnerID,
		"state", state,
		"num_clusters", resp.NumClusters,
		"assignments", len(assignments),
	)

	return &types.ClusterOutcome{
		Status:        types.ClusterRunReconciled,
		NumClusters:   resp.NumClusters,
		ClusterThemes: resp.Themes,
		Assignments:   assignments,
	}, nil
}

// reconcile maps the oracle's labels onto corpus entries. When the oracle
// echoes entry ids the mapping is keyed by id; otherwise it falls back to
// positional zip against the canonical order. Either way the label count
// must exactly equal the corpus size, or no assignment is produced.
func reconcile(corpus []store.Record, resp *oracle.ClusterResponse) ([]types.EntryAssignment, string) {
	if len(resp.ClusterIDs) != len(corpus) {
		return nil, fmt.Sprintf("label count %d does not match corpus size %d",
			len(resp.ClusterIDs), len(corpus))
	}

	if len(resp.EntryIDs) > 0 {
		if len(resp.EntryIDs) != len(resp.ClusterIDs) {
			return nil, fmt.Sprintf("echoed id count %d does not match label count %d",
				len(resp.EntryIDs), len(resp.ClusterIDs))
		}
		submitted := make(map[string]bool, len(corpus))
		for i := range corpus {
			submitted[corpus[i].ID] = true
		}
		assignments := make([]types.EntryAssignment, len(resp.EntryIDs))
		for i, id := range resp.EntryIDs {
			if !submitted[id] {
				return nil, fmt.Sprintf("oracle echoed unknown entry id %s", id)
			}
			delete(submitted, id) // reject duplicate echoes
			assignments[i] = types.EntryAssignment{EntryID: id, ClusterID: resp.ClusterIDs[i]}
		}
		return assignments, ""
	}

	assignments := make([]types.EntryAssignment, len(corpus))
	for i := range corpus {
		assignments[i] = types.EntryAssignment{EntryID: corpus[i].ID, ClusterID: resp.ClusterIDs[i]}
	}
	return assignments, ""
}

// failRun ends a clustering run with zero mutations and a caller-visible
// failed outcome.
func (s *Service) failRun(ownerID string, from runState, message string) *types.ClusterOutcome {
	slog.Warn("clustering run failed",
		"component", "journal",
		"action", "cluster_failed",
		"owner_id", ownerID,
		"state", from,
		"reason", message,
	)
	return &types.ClusterOutcome{
		Status:  types.ClusterRunFailed,
		Message: message,
	}
}
