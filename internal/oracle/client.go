package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mymindmirror/mindmirror/internal/types"
)

// Compile-time interface check
var _ Oracle = (*Client)(nil)

// Client talks to the analysis service over HTTP with a JSON contract.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an oracle client for the given base URL. The timeout
// bounds each request end to end; a context deadline shorter than the
// timeout wins.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type analyzeRequest struct {
	Text string `json:"text"`
}

type clusterRequestBody struct {
	UserID       string   `json:"userId"`
	EntryIDs     []string `json:"entryIds"`
	JournalTexts []string `json:"journalTexts"`
	NClusters    int      `json:"nClusters"`
}

type reflectRequest struct {
	PromptText string `json:"prompt_text"`
}

type reflectResponse struct {
	Reflection string `json:"reflection"`
}

// Analyze submits entry text for AI enrichment.
func (c *Client) Analyze(ctx context.Context, text string) (*types.AnalysisResult, error) {
	var result types.AnalysisResult
	if err := c.post(ctx, "/ml/journal/analyze_journal", analyzeRequest{Text: text}, &result); err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return &result, nil
}

// Cluster submits an ordered corpus for clustering.
func (c *Client) Cluster(ctx context.Context, req ClusterRequest) (*ClusterResponse, error) {
	body := clusterRequestBody{
		UserID:       req.OwnerID,
		EntryIDs:     req.EntryIDs,
		JournalTexts: req.Texts,
		NClusters:    req.ClusterCount,
	}

	var result ClusterResponse
	if err := c.post(ctx, "/ml/journal/cluster_journal_entries", body, &result); err != nil {
		return nil, fmt.Errorf("cluster: %w", err)
	}
	return &result, nil
}

// Reflect generates a reflection for the given prompt.
func (c *Client) Reflect(ctx context.Context, prompt string) (string, error) {
	var result reflectResponse
	if err := c.post(ctx, "/generate_reflection", reflectRequest{PromptText: prompt}, &result); err != nil {
		return "", fmt.Errorf("reflect: %w", err)
	}
	return result.Reflection, nil
}

// post sends a JSON request and decodes the JSON response into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle error (status %d): %s", resp.StatusCode, truncate(data, 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
