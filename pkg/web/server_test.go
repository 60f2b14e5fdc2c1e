package web

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicebridge/voicebridge/pkg/session"
	"github.com/voicebridge/voicebridge/pkg/tools"
)

func TestHealthz(t *testing.T) {
	s := NewServer(Config{Port: "0"})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestSessionProxiesUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"sess_1","client_secret":{"value":"ek_abc","expires_at":1735000000}}`))
	}))
	defer upstream.Close()

	s := NewServer(Config{
		Port:   "0",
		Minter: &session.Minter{APIKey: "sk-test", BaseURL: upstream.URL},
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/session", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var cred session.Credential
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cred))
	assert.Equal(t, "ek_abc", cred.ClientSecret.Value)
}

func TestSessionForwardsUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer upstream.Close()

	s := NewServer(Config{
		Port:   "0",
		Minter: &session.Minter{APIKey: "sk-bad", BaseURL: upstream.URL},
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/session", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "invalid api key")
}

func TestSessionWithoutMinter(t *testing.T) {
	s := NewServer(Config{Port: "0"})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/session", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestToolAPI(t *testing.T) {
	reg := tools.New()
	require.True(t, reg.Create(tools.CreateSpec{
		Name:        "add_one",
		Description: "Adds one",
		Code:        "return args.x + 1",
	}).Success)

	s := NewServer(Config{Port: "0", Registry: reg})

	// List shows the dynamic tool.
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	require.NoError(t, err)
	var infos []tools.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	resp.Body.Close()
	require.Len(t, infos, 1)
	assert.Equal(t, "add_one", infos[0].Name)

	// Trigger it manually.
	req := httptest.NewRequest(http.MethodPost, "/api/tools/add_one",
		strings.NewReader(`{"args":{"x":4}}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.App().Test(req)
	require.NoError(t, err)
	var triggered map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&triggered))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 5, triggered["result"])

	// Remove it.
	resp, err = s.App().Test(httptest.NewRequest(http.MethodDelete, "/api/tools/add_one", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, reg.List())

	// Removing again is a 404.
	resp, err = s.App().Test(httptest.NewRequest(http.MethodDelete, "/api/tools/add_one", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTriggerUnknownTool(t *testing.T) {
	s := NewServer(Config{Port: "0", Registry: tools.New()})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodPost, "/api/tools/nope", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
