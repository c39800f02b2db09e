package crud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// FetchAPIKey reads the translation credential from the service's /config
// record. Accepted keys: llmApiKey, llm.apiKey and llm_api_key.
func (c *Client) FetchAPIKey(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/config", nil)
	if err != nil {
		return "", err
	}

	var doc any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return "", fmt.Errorf("failed to parse /config: %w", err)
	}
	// Some deployments return the config record wrapped in a list.
	if list, ok := doc.([]any); ok && len(list) > 0 {
		doc = list[0]
	}

	cfg, ok := doc.(map[string]any)
	if !ok {
		return "", fmt.Errorf("/config is not an object")
	}

	var nested any
	if llm, ok := cfg["llm"].(map[string]any); ok {
		nested = llm["apiKey"]
	}
	candidates := []any{cfg["llmApiKey"], nested, cfg["llm_api_key"]}
	for _, v := range candidates {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
	}
	return "", fmt.Errorf("/config carries no llm api key")
}
