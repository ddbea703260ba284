package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umar/agentmesh/internal/service"
	"github.com/umar/agentmesh/internal/snapshot"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st, err := snapshot.Open(filepath.Join(t.TempDir(), "agentmesh.json"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := httptest.NewServer(NewRouter(service.New(st), "*"))
	t.Cleanup(srv.Close)
	return srv
}

type client struct {
	t      *testing.T
	base   string
	apiKey string
}

func (c *client) do(method, path, body string) (int, map[string]interface{}) {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func createRoom(t *testing.T, srv *httptest.Server, name string) *client {
	t.Helper()
	anon := &client{t: t, base: srv.URL}
	code, body := anon.do(http.MethodPost, "/rooms", `{"name":"`+name+`"}`)
	require.Equal(t, http.StatusCreated, code)
	key, _ := body["api_key"].(string)
	require.NotEmpty(t, key)
	return &client{t: t, base: srv.URL, apiKey: key}
}

func TestEndToEndFlow(t *testing.T) {
	srv := newTestServer(t)
	c := createRoom(t, srv, "P")

	code, body := c.do(http.MethodPost, "/agents", `{"name":"Keko"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "Keko", body["agent"].(map[string]interface{})["name"])

	code, body = c.do(http.MethodPost, "/messages", `{"from":"Keko","content":"hi"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 1, body["id"])

	code, body = c.do(http.MethodGet, "/messages", "")
	require.Equal(t, http.StatusOK, code)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 1)
	msg := msgs[0].(map[string]interface{})
	assert.EqualValues(t, 1, msg["id"])
	assert.Equal(t, "Keko", msg["from_agent"])
	assert.Equal(t, "hi", msg["content"])
	assert.Equal(t, "message", msg["type"])
	assert.Nil(t, msg["to_agent"])
	assert.Equal(t, []interface{}{}, msg["read_by"])
	assert.NotEmpty(t, msg["created_at"])

	code, body = c.do(http.MethodPost, "/messages/read", `{"agent":"Keko","up_to_id":1}`)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, body["marked"])

	code, body = c.do(http.MethodPost, "/tasks", `{"title":"Review","created_by":"Keko"}`)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 1, body["id"])

	code, _ = c.do(http.MethodPatch, "/tasks/1", `{"status":"done"}`)
	require.Equal(t, http.StatusOK, code)

	code, body = c.do(http.MethodGet, "/tasks?status=done", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["tasks"], 1)

	code, body = c.do(http.MethodGet, "/rooms", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "P", body["room"].(map[string]interface{})["name"])
	assert.Len(t, body["agents"], 1)
}

func TestAuthGate(t *testing.T) {
	srv := newTestServer(t)

	anon := &client{t: t, base: srv.URL}
	code, body := anon.do(http.MethodGet, "/agents", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.NotEmpty(t, body["error"])

	bogus := &client{t: t, base: srv.URL, apiKey: "amesh_0000"}
	code, body = bogus.do(http.MethodGet, "/agents", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.NotEmpty(t, body["error"])

	for _, path := range []string{"/", "/help", "/health"} {
		code, _ = anon.do(http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, code, path)
	}
}

func TestCrossRoomIsolation(t *testing.T) {
	srv := newTestServer(t)
	a := createRoom(t, srv, "A")
	b := createRoom(t, srv, "B")

	a.do(http.MethodPost, "/agents", `{"name":"Keko"}`)
	a.do(http.MethodPost, "/messages", `{"from":"Keko","content":"secret"}`)
	a.do(http.MethodPost, "/tasks", `{"title":"private","created_by":"Keko"}`)

	_, body := b.do(http.MethodGet, "/agents", "")
	assert.Empty(t, body["agents"])

	_, body = b.do(http.MethodGet, "/messages", "")
	assert.Empty(t, body["messages"])

	_, body = b.do(http.MethodGet, "/tasks", "")
	assert.Empty(t, body["tasks"])

	_, body = b.do(http.MethodPost, "/messages/read", `{"agent":"Keko","up_to_id":1}`)
	assert.EqualValues(t, 0, body["marked"])

	code, _ := b.do(http.MethodPatch, "/tasks/1", `{"status":"stolen"}`)
	assert.Equal(t, http.StatusNotFound, code)

	_, body = a.do(http.MethodGet, "/tasks", "")
	tasks := body["tasks"].([]interface{})
	require.Len(t, tasks, 1)
	assert.Equal(t, "pending", tasks[0].(map[string]interface{})["status"])
}

func TestUnknownRoutesAndMethods(t *testing.T) {
	srv := newTestServer(t)
	c := createRoom(t, srv, "P")

	code, body := c.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotEmpty(t, body["error"])

	code, body = c.do(http.MethodDelete, "/tasks/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.NotEmpty(t, body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	c := createRoom(t, srv, "P")
	c.do(http.MethodGet, "/agents", "")

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "agentmesh_rooms_created_total")
	assert.Contains(t, string(raw), `agentmesh_http_requests_total{method="GET",path="/agents",status="200"}`)
}
