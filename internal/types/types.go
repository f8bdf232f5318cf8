package types

import (
	"encoding/json"
	"time"
)

// AnalysisStatus tracks the enrichment lifecycle of an entry.
type AnalysisStatus string

const (
	// AnalysisComplete means the oracle returned a full analysis.
	AnalysisComplete AnalysisStatus = "complete"
	// AnalysisPending means the oracle was unavailable; the retry worker may
	// still pick the entry up.
	AnalysisPending AnalysisStatus = "pending"
	// AnalysisFailed means retries were exhausted.
	AnalysisFailed AnalysisStatus = "failed"
)

// Entry is the decrypted view of a journal entry. Text is always plaintext;
// ciphertext never crosses the store boundary.
type Entry struct {
	ID             string             `json:"id"`
	OwnerID        string             `json:"owner_id"`
	EntryDate      time.Time          `json:"entry_date"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
	Text           string             `json:"text"`
	MoodScore      *float64           `json:"mood_score"`
	Emotions       map[string]float64 `json:"emotions,omitempty"`
	CoreConcerns   []string           `json:"core_concerns,omitempty"`
	Summary        *string            `json:"summary"`
	GrowthTips     []string           `json:"growth_tips,omitempty"`
	KeyPhrases     []string           `json:"key_phrases"`
	ClusterID      *int               `json:"cluster_id"`
	AnalysisStatus AnalysisStatus     `json:"analysis_status"`
}

// AnalysisResult holds the AI-derived fields for a single entry.
type AnalysisResult struct {
	MoodScore    float64            `json:"moodScore"`
	Emotions     map[string]float64 `json:"emotions"`
	CoreConcerns []string           `json:"coreConcerns"`
	Summary      string             `json:"summary"`
	GrowthTips   []string           `json:"growthTips"`
	KeyPhrases   []string           `json:"keyPhrases"`
}

// ClusterRunStatus is the terminal state of a clustering run.
type ClusterRunStatus string

const (
	ClusterRunReconciled ClusterRunStatus = "reconciled"
	ClusterRunFailed     ClusterRunStatus = "failed"
)

// EntryAssignment records the cluster label written to one entry during
// reconciliation. Returned for observability only.
type EntryAssignment struct {
	EntryID   string `json:"entry_id"`
	ClusterID int    `json:"cluster_id"`
}

// ClusterOutcome is the caller-visible result of a clustering run. A failed
// run always carries zero assignments: reconciliation is all-or-nothing.
type ClusterOutcome struct {
	Status        ClusterRunStatus  `json:"status"`
	NumClusters   int               `json:"num_clusters"`
	ClusterThemes map[string]string `json:"cluster_themes"`
	Assignments   []EntryAssignment `json:"assignments"`
	Message       string            `json:"message,omitempty"`
}

// MoodPoint is one point in the mood-over-time chart feed.
type MoodPoint struct {
	Date      time.Time `json:"date"`
	MoodScore float64   `json:"mood_score"`
}

// MarshalJSON ensures nil slices in Entry marshal as [] not null.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.KeyPhrases == nil {
		e.KeyPhrases = []string{}
	}
	type Alias Entry
	return json.Marshal(Alias(e))
}

// MarshalJSON ensures nil maps and slices in ClusterOutcome marshal as
// empty containers, not null.
func (o ClusterOutcome) MarshalJSON() ([]byte, error) {
	if o.ClusterThemes == nil {
		o.ClusterThemes = map[string]string{}
	}
	if o.Assignments == nil {
		o.Assignments = []EntryAssignment{}
	}
	type Alias ClusterOutcome
	return json.Marshal(Alias(o))
}
