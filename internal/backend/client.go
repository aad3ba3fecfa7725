// Package backend is the REST client for the classroom service: session
// config, room entry, authoritative room/course state, per-user attribute
// updates, recording control and token refresh.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// fetchRetries is how many times a network-level failure is retried before
// surfacing. API-level errors (code != 0) are never retried.
const fetchRetries = 3

// APIError is a non-zero status code returned by the backend.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("backend error %d: %s", e.Code, e.Msg)
	}
	return fmt.Sprintf("backend error code: %d", e.Code)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// Client talks to one backend deployment. Session identity (app id, room
// id, user token) is captured by Login/Entry and reused by later calls.
type Client struct {
	baseURL string
	authKey string
	http    *http.Client

	appID     string
	roomID    string
	userToken string
	recordID  string
}

func NewClient(baseURL, authKey string) *Client {
	return &Client{
		baseURL: baseURL,
		authKey: authKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// RoomID returns the room identity captured at entry.
func (c *Client) RoomID() string { return c.roomID }

func (c *Client) fetchJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = b
	}

	var lastErr error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		raw, err := c.doOnce(ctx, method, path, payload)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("module", "backend").Str("path", path).Int("attempt", attempt+1).Msg("fetch failed")
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode envelope: %w", err)
		}
		if env.Code != 0 {
			return &APIError{Code: env.Code, Msg: env.Msg}
		}
		if out != nil && len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				return fmt.Errorf("decode data: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("backend unreachable after %d attempts: %w", fetchRetries, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authKey != "" {
		req.Header.Set("Authorization", "Basic "+c.authKey)
	}
	if c.userToken != "" {
		req.Header.Set("token", c.userToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode)
	}
	return raw, nil
}
