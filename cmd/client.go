package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/matheuscscp/oauth2-flow-coordinator/internal/registry"
)

// apiClient is a thin client for the coordinator control API.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient() *apiClient {
	return &apiClient{
		baseURL:    strings.TrimSuffix(serverAddr, "/"),
		httpClient: http.DefaultClient,
	}
}

func (c *apiClient) startFlow(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodPost, path, http.StatusOK, out)
}

func (c *apiClient) pollFlow(ctx context.Context, path string) (registry.Status, error) {
	var status registry.Status
	err := c.do(ctx, http.MethodGet, path, http.StatusOK, &status)
	return status, err
}

func (c *apiClient) cancelFlow(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, http.StatusNoContent, nil)
}

func (c *apiClient) do(ctx context.Context, method, path string, expectedStatus int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("is the coordinator running? %w", err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != expectedStatus {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s from coordinator", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(b, out)
}
