// ABOUTME: Minimal Slack Web API client: JSON POSTs with bearer auth.
// ABOUTME: Covers the handful of methods the adapter needs; no SDK.

package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultAPIBase = "https://slack.com/api"

// webClient calls Slack Web API methods. Slack signals failure inside a
// 200 response, so every call checks the ok field.
type webClient struct {
	base     string
	botToken string
	appToken string
	http     *http.Client
}

func newWebClient(botToken, appToken string) *webClient {
	return &webClient{
		base:     defaultAPIBase,
		botToken: botToken,
		appToken: appToken,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`

	TS      string `json:"ts"`      // chat.postMessage / chat.update
	URL     string `json:"url"`     // apps.connections.open
	UserID  string `json:"user_id"` // auth.test
	Channel string `json:"channel"`
}

// call POSTs args as JSON to one API method and decodes the envelope.
func (c *webClient) call(ctx context.Context, method, token string, args any) (*apiResponse, error) {
	body, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s args: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/"+method, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%s failed: %s", method, parsed.Error)
	}
	return &parsed, nil
}

// authTest returns the bot's own user ID.
func (c *webClient) authTest(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "auth.test", c.botToken, map[string]any{})
	if err != nil {
		return "", err
	}
	return resp.UserID, nil
}

// connectionsOpen returns a fresh Socket Mode websocket URL.
func (c *webClient) connectionsOpen(ctx context.Context) (string, error) {
	resp, err := c.call(ctx, "apps.connections.open", c.appToken, map[string]any{})
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// postMessage sends text (and optional Block Kit blocks) and returns the
// message timestamp, Slack's message ID.
func (c *webClient) postMessage(ctx context.Context, channel, text, threadTS string, blocks []block) (string, error) {
	args := map[string]any{
		"channel": channel,
		"text":    text,
	}
	if threadTS != "" {
		args["thread_ts"] = threadTS
	}
	if len(blocks) > 0 {
		args["blocks"] = blocks
	}
	resp, err := c.call(ctx, "chat.postMessage", c.botToken, args)
	if err != nil {
		return "", err
	}
	return resp.TS, nil
}

func (c *webClient) updateMessage(ctx context.Context, channel, ts, text string) error {
	_, err := c.call(ctx, "chat.update", c.botToken, map[string]any{
		"channel": channel,
		"ts":      ts,
		"text":    text,
	})
	return err
}

func (c *webClient) deleteMessage(ctx context.Context, channel, ts string) error {
	_, err := c.call(ctx, "chat.delete", c.botToken, map[string]any{
		"channel": channel,
		"ts":      ts,
	})
	return err
}

func (c *webClient) addReaction(ctx context.Context, channel, ts, emoji string) error {
	_, err := c.call(ctx, "reactions.add", c.botToken, map[string]any{
		"channel":   channel,
		"timestamp": ts,
		"name":      emoji,
	})
	return err
}

func (c *webClient) removeReaction(ctx context.Context, channel, ts, emoji string) error {
	_, err := c.call(ctx, "reactions.remove", c.botToken, map[string]any{
		"channel":   channel,
		"timestamp": ts,
		"name":      emoji,
	})
	return err
}

// block is a loose Block Kit element. Built as maps because the adapter
// only ever constructs two shapes (section text and approval buttons).
type block map[string]any
