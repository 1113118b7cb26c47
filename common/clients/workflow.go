package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/VenkataVardineni/flowforge-automations/common/cache"
	"github.com/VenkataVardineni/flowforge-automations/common/models"
)

// WorkflowClient fetches workflow definitions from the workflow service
type WorkflowClient struct {
	baseURL  string
	http     *HTTPClient
	logger   Logger
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewWorkflowClient creates a new workflow service client.
// defCache may be nil, which disables definition caching.
// fetchTimeout <= 0 falls back to 30s.
func NewWorkflowClient(baseURL string, fetchTimeout time.Duration, logger Logger, defCache cache.Cache, cacheTTL time.Duration) *WorkflowClient {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	httpClient := &http.Client{
		Timeout: fetchTimeout,
	}

	return &WorkflowClient{
		baseURL:  baseURL,
		http:     NewHTTPClient(httpClient, logger),
		logger:   logger,
		cache:    defCache,
		cacheTTL: cacheTTL,
	}
}

// FetchWorkflow retrieves a workflow graph by ID.
// Requires: ctx with UserID set via WithUserID() for header propagation.
func (c *WorkflowClient) FetchWorkflow(ctx context.Context, workflowID uuid.UUID) (*models.WorkflowGraph, error) {
	cacheKey := "workflow:" + workflowID.String()

	if c.cache != nil {
		if raw, ok, err := c.cache.Get(ctx, cacheKey); err == nil && ok {
			var graph models.WorkflowGraph
			if err := json.Unmarshal(raw, &graph); err == nil {
				c.logger.Debug("workflow definition cache hit", "workflow_id", workflowID)
				return &graph, nil
			}
		}
	}

	url := fmt.Sprintf("%s/api/workflows/%s", c.baseURL, workflowID)
	resp, err := c.http.DoRequest(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch workflow: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch workflow: status %d", resp.StatusCode)
	}

	var payload struct {
		Graph models.WorkflowGraph `json:"graph"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode workflow response: %w", err)
	}

	if c.cache != nil {
		if raw, err := json.Marshal(&payload.Graph); err == nil {
			_ = c.cache.Set(ctx, cacheKey, raw, c.cacheTTL)
		}
	}

	c.logger.Debug("fetched workflow definition",
		"workflow_id", workflowID,
		"nodes", len(payload.Graph.Nodes),
		"edges", len(payload.Graph.Edges))

	return &payload.Graph, nil
}
