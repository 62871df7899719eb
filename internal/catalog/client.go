package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joao-fontenele/foodorder/internal/domain"
)

// Client reads menu item snapshots from the catalog service.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *Client) Snapshot(ctx context.Context, ids []string) (map[string]domain.MenuItemSnapshot, error) {
	data, err := json.Marshal(snapshotRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/menu-items/snapshot", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot menu items: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, decodeError(resp))
	case http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, decodeError(resp))
	default:
		return nil, fmt.Errorf("catalog service returned status %d", resp.StatusCode)
	}

	var body snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode snapshot response: %w", err)
	}

	return body.Items, nil
}

func decodeError(resp *http.Response) string {
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body["error"] == "" {
		return http.StatusText(resp.StatusCode)
	}
	return body["error"]
}
