// Package oracle is the client for the external analysis service. The
// service is an opaque collaborator: it analyzes entry text, clusters a
// corpus, and generates reflections. Every operation is fallible and callers
// are expected to degrade rather than fail hard.
package oracle

import (
	"context"

	"github.com/mymindmirror/mindmirror/internal/types"
)

// ClusterRequest carries one clustering run's corpus in canonical order.
// EntryIDs[i] corresponds to Texts[i].
type ClusterRequest struct {
	OwnerID      string
	EntryIDs     []string
	Texts        []string
	ClusterCount int
}

// ClusterResponse is the oracle's clustering result. ClusterIDs[i] is the
// label for the i-th submitted text. EntryIDs, when present, echoes the
// submitted ids so reconciliation can be keyed by id instead of position.
type ClusterResponse struct {
	NumClusters int               `json:"numClusters"`
	Themes      map[string]string `json:"clusterThemes"`
	ClusterIDs  []int             `json:"entryClusters"`
	EntryIDs    []string          `json:"entryIds,omitempty"`
}

// Oracle defines the analysis service operations the core consumes.
// This abstraction enables testing without a running ML service.
type Oracle interface {
	Analyze(ctx context.Context, text string) (*types.AnalysisResult, error)
	Cluster(ctx context.Context, req ClusterRequest) (*ClusterResponse, error)
	Reflect(ctx context.Context, prompt string) (string, error)
}
