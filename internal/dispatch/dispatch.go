// Package dispatch is the boundary to the action dispatcher: the
// external service that owns the atomic scene-editing actions. The
// router never edits the scene itself.
package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/scenesmith/scenepilot/internal/expand"
)

// Dispatcher forwards sanitized calls for execution.
type Dispatcher interface {
	Dispatch(call *expand.Call) error
}

// HTTPDispatcher posts calls to the engine bridge.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL string) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type actionRequest struct {
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

func (d *HTTPDispatcher) Dispatch(call *expand.Call) error {
	payload, err := json.Marshal(actionRequest{Action: call.Action, Args: call.Args})
	if err != nil {
		return fmt.Errorf("failed to encode action %s: %w", call.Action, err)
	}

	resp, err := d.client.Post(d.baseURL+"/actions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("dispatch of %s failed: %w", call.Action, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("dispatcher returned %d for %s: %s",
			resp.StatusCode, call.Action, strings.TrimSpace(string(body)))
	}
	return nil
}

// DryRun logs calls instead of executing them.
type DryRun struct {
	log *zap.SugaredLogger
}

func NewDryRun(log *zap.SugaredLogger) *DryRun {
	return &DryRun{log: log}
}

func (d *DryRun) Dispatch(call *expand.Call) error {
	d.log.Infow("dry-run: would dispatch",
		"action", call.Action, "step", call.StepIndex, "args", call.Args)
	return nil
}
