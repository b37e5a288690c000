// ABOUTME: HTTP client for the execution engine's send endpoint and its SSE stream.
// ABOUTME: Parses event/data frames and dispatches typed events to a callback.

package engine

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// streamEventType enumerates the SSE event names the engine emits.
type streamEventType string

const (
	streamThinking   streamEventType = "thinking"
	streamText       streamEventType = "text"
	streamToolUse    streamEventType = "tool_use"
	streamToolResult streamEventType = "tool_result"
	streamApproval   streamEventType = "approval_request"
	streamFile       streamEventType = "file"
	streamDone       streamEventType = "done"
	streamError      streamEventType = "error"
)

// streamEvent is one parsed SSE frame.
type streamEvent struct {
	Type streamEventType
	Data string
}

// textEventData carries text/thinking chunks and the final response.
type textEventData struct {
	Text         string `json:"text,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
}

// toolUseData announces a tool invocation.
type toolUseData struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// toolResultData reports a tool invocation's outcome.
type toolResultData struct {
	ID      string `json:"id"`
	IsError bool   `json:"is_error,omitempty"`
	Error   string `json:"error,omitempty"`
}

// approvalRequestData asks the connector to confirm a sensitive action.
// The engine blocks the invocation until a decision is posted back.
type approvalRequestData struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// fileEventData carries file content the engine wants shown in the chat.
type fileEventData struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// errorEventData is the body of error events and non-200 JSON responses.
type errorEventData struct {
	Error string `json:"error"`
}

// executeRequest is the body for POST /v1/execute.
type executeRequest struct {
	SessionID  string `json:"session_id"`
	Prompt     string `json:"prompt"`
	System     string `json:"system,omitempty"`
	Model      string `json:"model,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`

	AllowedTools []string `json:"allowed_tools,omitempty"`
}

// client talks to one engine endpoint on behalf of all sessions.
type client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newClient(baseURL, apiKey string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Execute posts the prompt and streams SSE events to onEvent until the
// stream ends. Returns the full response text from the done event.
func (c *client) Execute(ctx context.Context, req executeRequest, onEvent func(streamEvent)) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/execute", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.errorFromResponse(resp)
	}

	return c.parseStream(ctx, resp.Body, onEvent)
}

// PostDecision reports an approval decision back to the engine.
func (c *client) PostDecision(ctx context.Context, approvalID string, approved bool) error {
	return c.postJSON(ctx, "/v1/approvals/"+approvalID, map[string]any{"approved": approved})
}

// PostToolResult returns a connector-side tool's output to the engine.
func (c *client) PostToolResult(ctx context.Context, invocationID, output string, failed bool) error {
	return c.postJSON(ctx, "/v1/tool_results/"+invocationID, map[string]any{
		"output":   output,
		"is_error": failed,
	})
}

func (c *client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Ping checks engine reachability for the health subcommand.
func (c *client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("reaching engine: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("engine health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *client) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp errorEventData
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("engine error (%d): %s", resp.StatusCode, errResp.Error)
		}
	}
	return fmt.Errorf("engine returned status %d: %s", resp.StatusCode, string(body))
}

// parseStream reads event/data frames until EOF. An error event aborts the
// stream and becomes the returned error.
func (c *client) parseStream(ctx context.Context, body io.Reader, onEvent func(streamEvent)) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType streamEventType
	var dataLines []string
	var fullResponse string

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return fullResponse, ctx.Err()
		default:
		}

		line := scanner.Text()

		// Blank line terminates a frame.
		if line == "" {
			if eventType != "" && len(dataLines) > 0 {
				ev := streamEvent{Type: eventType, Data: strings.Join(dataLines, "\n")}

				if eventType == streamDone {
					var data textEventData
					if json.Unmarshal([]byte(ev.Data), &data) == nil {
						fullResponse = data.FullResponse
					}
				}
				if eventType == streamError {
					var data errorEventData
					if json.Unmarshal([]byte(ev.Data), &data) == nil && data.Error != "" {
						return "", fmt.Errorf("engine error: %s", data.Error)
					}
					return "", fmt.Errorf("engine error: %s", ev.Data)
				}

				if onEvent != nil {
					onEvent(ev)
				}
			}
			eventType = ""
			dataLines = nil
			continue
		}

		if after, found := strings.CutPrefix(line, "event:"); found {
			eventType = streamEventType(strings.TrimSpace(after))
			continue
		}
		if after, found := strings.CutPrefix(line, "data:"); found {
			dataLines = append(dataLines, strings.TrimPrefix(after, " "))
			continue
		}
	}

	if err := scanner.Err(); err != nil {
		return fullResponse, fmt.Errorf("reading event stream: %w", err)
	}
	return fullResponse, nil
}
