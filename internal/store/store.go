package store

import (
	"context"
	"time"

	"github.com/mymindmirror/mindmirror/internal/types"
)

// Record is the persisted shape of a journal entry. Text is stored only as
// an opaque ciphertext blob; the decrypted boundary lives one layer up in
// the journal service. Structured AI fields are stored as nullable JSON
// text, matching the persisted layout.
type Record struct {
	ID             string
	OwnerID        string
	EntryDate      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Ciphertext     string
	MoodScore      *float64
	Emotions       *string
	CoreConcerns   *string
	Summary        *string
	GrowthTips     *string
	KeyPhrases     *string
	ClusterID      *int
	AnalysisStatus types.AnalysisStatus
}

// AnalysisFields carries the AI-derived columns for an update. Nil pointers
// write NULL, which is how a failed analysis resets the fields.
type AnalysisFields struct {
	MoodScore    *float64
	Emotions     *string
	CoreConcerns *string
	Summary      *string
	GrowthTips   *string
	KeyPhrases   *string
}

// Stats holds aggregate store statistics for the health endpoint.
type Stats struct {
	EntryCount      int64
	PendingAnalysis int64
}

// Store defines the persistence contract for journal entry records.
type Store interface {
	CreateEntry(ctx context.Context, rec *Record) error
	GetEntry(ctx context.Context, id string) (*Record, error)
	UpdateEntry(ctx context.Context, rec *Record) error
	DeleteEntry(ctx context.Context, id string) error

	// ListByOwner returns an owner's entries filtered by entry date,
	// newest first. Nil bounds are open.
	ListByOwner(ctx context.Context, ownerID string, start, end *time.Time) ([]Record, error)

	// CorpusByOwner returns all of an owner's entries in canonical order:
	// ascending creation timestamp, id as the deterministic tiebreak.
	CorpusByOwner(ctx context.Context, ownerID string) ([]Record, error)

	ListByMoodRange(ctx context.Context, ownerID string, min, max float64) ([]Record, error)

	// AssignClusters writes cluster labels for a reconciliation run in a
	// single transaction: either every assignment lands or none do.
	AssignClusters(ctx context.Context, assignments []types.EntryAssignment) error

	// SetAnalysis updates the AI-derived fields and analysis status of one
	// entry. It never touches cluster_id.
	SetAnalysis(ctx context.Context, id string, fields AnalysisFields, status types.AnalysisStatus) error

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}
