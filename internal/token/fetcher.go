// Package token fetches and issues the short-lived meeting tokens used to join a call.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrEmptyToken is returned when the token endpoint answers without a token.
var ErrEmptyToken = errors.New("token endpoint returned an empty token")

// Request is the JSON body sent to the token endpoint.
type Request struct {
	RoomName string `json:"roomName"`
	IsOwner  bool   `json:"isOwner"`
}

// Response is the part of the token endpoint response we use.
type Response struct {
	Token string `json:"token"`
}

// Fetcher requests meeting tokens from a trusted backend endpoint.
type Fetcher struct {
	endpoint string
	client   *http.Client
}

// NewFetcher creates a Fetcher. If client is nil a client with a 10s timeout is used.
func NewFetcher(endpoint string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Fetcher{endpoint: endpoint, client: client}
}

// Token performs a single POST to the endpoint and returns the token.
// There is no retry; any failure aborts the caller's bootstrap.
func (f *Fetcher) Token(ctx context.Context, roomName string, isOwner bool) (string, error) {
	body, err := json.Marshal(Request{RoomName: roomName, IsOwner: isOwner})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if out.Token == "" {
		return "", ErrEmptyToken
	}

	return out.Token, nil
}
