// internal/clients/catalog_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"toolforge/internal/catalog"
)

// CatalogClient is a resty-backed read client for the catalog service.
type CatalogClient struct {
	httpClient *resty.Client
}

func NewCatalogClient(baseURL string) *CatalogClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &CatalogClient{httpClient: client}
}

func (c *CatalogClient) GetTool(ctx context.Context, id uuid.UUID) (*catalog.Tool, error) {
	var tool catalog.Tool
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&tool).
		Get(fmt.Sprintf("/tools/%s", id))
	if err != nil {
		return nil, fmt.Errorf("catalog get tool: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("tool %s: %w", id, catalog.ErrToolNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog get tool: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &tool, nil
}

func (c *CatalogClient) GetToolByCode(ctx context.Context, code string) (*catalog.Tool, error) {
	var tool catalog.Tool
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&tool).
		Get(fmt.Sprintf("/tools/code/%s", code))
	if err != nil {
		return nil, fmt.Errorf("catalog get tool by code: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("tool %s: %w", code, catalog.ErrToolNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("catalog get tool by code: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &tool, nil
}
