// Package session issues and fetches short-lived Realtime session
// credentials. The issuer proxies OpenAI's sessions endpoint with the
// operator API key; the returned client secret authorizes a browser or
// agent to negotiate a peer session without ever seeing that key.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/voicebridge/voicebridge/internal/httpc"
	"github.com/voicebridge/voicebridge/pkg/realtime"
)

// ClientSecret is the short-lived credential value.
type ClientSecret struct {
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Credential is the session object returned by the issuer. Extra upstream
// fields are ignored.
type Credential struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Voice        string       `json:"voice"`
	ClientSecret ClientSecret `json:"client_secret"`
}

// UpstreamError reports a non-200 reply from the sessions endpoint. The
// issuer forwards status and body to its own caller unchanged.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("session: upstream status %d: %s", e.Status, e.Body)
}

// Minter creates session credentials against the OpenAI API.
type Minter struct {
	APIKey string
	Model  string
	Voice  string

	// BaseURL overrides the sessions endpoint, for tests.
	BaseURL string

	// HTTPClient defaults to the shared httpc client.
	HTTPClient *http.Client
}

// Mint requests a new Realtime session and returns the upstream JSON
// verbatim, so the issuer endpoint stays a transparent proxy.
func (m *Minter) Mint(ctx context.Context) (json.RawMessage, error) {
	url := m.BaseURL
	if url == "" {
		url = realtime.SessionsURL
	}

	payload, err := json.Marshal(map[string]string{
		"model": m.Model,
		"voice": m.Voice,
	})
	if err != nil {
		return nil, fmt.Errorf("session: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := m.HTTPClient
	if client == nil {
		client = httpc.Client
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: create session: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}
	return json.RawMessage(body), nil
}

// Fetch obtains a credential from a voicebridge issuer's /session
// endpoint. Used by the Go agent client.
func Fetch(ctx context.Context, issuerURL string) (*Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: build request: %w", err)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session: fetch credential: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read credential: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	var cred Credential
	if err := json.Unmarshal(body, &cred); err != nil {
		return nil, fmt.Errorf("session: parse credential: %w", err)
	}
	if cred.ClientSecret.Value == "" {
		return nil, fmt.Errorf("session: credential missing client secret")
	}
	return &cred, nil
}
