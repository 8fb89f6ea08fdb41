// internal/clients/workforce_client.go
package clients

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"toolforge/internal/workforce"
)

// WorkforceClient is a resty-backed read client for the workforce service.
type WorkforceClient struct {
	httpClient *resty.Client
}

func NewWorkforceClient(baseURL string) *WorkforceClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(10 * time.Second)
	return &WorkforceClient{httpClient: client}
}

func (c *WorkforceClient) GetWorker(ctx context.Context, id uuid.UUID) (*workforce.Worker, error) {
	var worker workforce.Worker
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&worker).
		Get(fmt.Sprintf("/workers/%s", id))
	if err != nil {
		return nil, fmt.Errorf("workforce get worker: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, fmt.Errorf("worker %s: %w", id, workforce.ErrWorkerNotFound)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("workforce get worker: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &worker, nil
}

func (c *WorkforceClient) ListFactories(ctx context.Context) ([]*workforce.Factory, error) {
	var factories []*workforce.Factory
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&factories).
		Get("/factories")
	if err != nil {
		return nil, fmt.Errorf("workforce list factories: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("workforce list factories: status %d: %s", resp.StatusCode(), resp.String())
	}
	return factories, nil
}

func (c *WorkforceClient) ListSupervisors(ctx context.Context, factoryID uuid.UUID) ([]*workforce.Worker, error) {
	var supervisors []*workforce.Worker
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&supervisors).
		Get(fmt.Sprintf("/factories/%s/supervisors", factoryID))
	if err != nil {
		return nil, fmt.Errorf("workforce list supervisors: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("workforce list supervisors: status %d: %s", resp.StatusCode(), resp.String())
	}
	return supervisors, nil
}
