package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMint(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "gpt-4o-realtime-preview-2025-06-03", payload["model"])
		assert.Equal(t, "verse", payload["voice"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_abc","expires_at":1735000000}}`))
	}))
	defer upstream.Close()

	m := &Minter{
		APIKey:  "sk-test",
		Model:   "gpt-4o-realtime-preview-2025-06-03",
		Voice:   "verse",
		BaseURL: upstream.URL,
	}

	raw, err := m.Mint(context.Background())
	require.NoError(t, err)

	var cred Credential
	require.NoError(t, json.Unmarshal(raw, &cred))
	assert.Equal(t, "sess_1", cred.ID)
	assert.Equal(t, "ek_abc", cred.ClientSecret.Value)
}

func TestMintForwardsUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer upstream.Close()

	m := &Minter{APIKey: "sk-bad", BaseURL: upstream.URL}

	_, err := m.Mint(context.Background())
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusUnauthorized, ue.Status)
	assert.Contains(t, ue.Body, "bad key")
}

func TestFetch(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess_2","model":"gpt-4o-realtime-preview-2025-06-03","client_secret":{"value":"ek_xyz","expires_at":1735000000}}`))
	}))
	defer issuer.Close()

	cred, err := Fetch(context.Background(), issuer.URL+"/session")
	require.NoError(t, err)
	assert.Equal(t, "ek_xyz", cred.ClientSecret.Value)
	assert.Equal(t, "gpt-4o-realtime-preview-2025-06-03", cred.Model)
}

func TestFetchRejectsMissingSecret(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"sess_3"}`))
	}))
	defer issuer.Close()

	_, err := Fetch(context.Background(), issuer.URL+"/session")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client secret")
}

func TestFetchIssuerError(t *testing.T) {
	issuer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("down"))
	}))
	defer issuer.Close()

	_, err := Fetch(context.Background(), issuer.URL+"/session")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
}
