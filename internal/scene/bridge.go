package scene

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPEngine reads scene state from the authoring engine's local
// bridge endpoint.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates an engine client for the given bridge URL.
func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Summary fetches the slow-changing scene summary.
func (e *HTTPEngine) Summary() (Summary, error) {
	var summary Summary
	if err := e.get("/scene/summary", &summary); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Selection fetches the current selection counts.
func (e *HTTPEngine) Selection() (Selection, error) {
	var selection Selection
	if err := e.get("/scene/selection", &selection); err != nil {
		return Selection{}, err
	}
	return selection, nil
}

func (e *HTTPEngine) get(path string, out any) error {
	resp, err := e.client.Get(e.baseURL + path)
	if err != nil {
		return fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bridge returned %d for %s: %s", resp.StatusCode, path, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode bridge response: %w", err)
	}
	return nil
}
