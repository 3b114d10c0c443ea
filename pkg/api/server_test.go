package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/app"
	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/infrastructure/eventbus"
	"github.com/sipeed/picocrud/pkg/infrastructure/persistence"
	"github.com/sipeed/picocrud/pkg/metrics"
	"github.com/sipeed/picocrud/pkg/nested"
)

const testKey = "test-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func newTestServer(t *testing.T, tweak func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Gateway.APIKey = testKey
	cfg.Gateway.RateLimit.RPS = 0
	if tweak != nil {
		tweak(cfg)
	}
	repo, err := persistence.NewFileResourceRepository(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()
	container := app.NewContainer(eventbus.New(), repo, nested.WithRecorder(m))
	return NewServer(cfg, container, m, nil)
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testKey)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type characteristicsReply struct {
	Status   int                     `json:"status"`
	Children []*child.Characteristic `json:"children"`
	Parent   *struct {
		ID              string                  `json:"id"`
		Characteristics []*child.Characteristic `json:"characteristics"`
	} `json:"parent"`
}

func createParent(t *testing.T, s *Server) string {
	t.Helper()
	w := do(t, s, http.MethodPost, "/api/resources", map[string]any{"name": "printer"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	return res["id"].(string)
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Len(t, body["kinds"], len(child.AllKinds()))
}

func TestMissingTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/resources", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	env := decode[ErrorEnvelope](t, w)
	assert.Equal(t, "unauthorized", env.Error.Code)
}

func TestJWTCallerIsRecordedOnParent(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.Gateway.JWTSecret = "jwt-secret" })
	token, err := auth.NewVerifier("", "jwt-secret").Issue(domain.User{ID: "carol"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/resources", strings.NewReader(`{"name":"desk"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "carol", decode[map[string]any](t, w)["updated_by"])
}

func TestResourceRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)

	w := do(t, s, http.MethodGet, "/api/resources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["count"])

	w = do(t, s, http.MethodPatch, "/api/resources/"+id, map[string]string{"status": "archived"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "archived", decode[map[string]any](t, w)["status"])

	w = do(t, s, http.MethodPatch, "/api/resources/"+id, map[string]string{"status": "active"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, s, http.MethodDelete, "/api/resources/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/api/resources/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "domain_not_found", decode[ErrorEnvelope](t, w).Error.Code)
}

func TestChildLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)
	base := "/api/resources/" + id + "/characteristic"

	w := do(t, s, http.MethodPost, base, map[string]string{"key": "color", "value": "red"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[characteristicsReply](t, w)
	require.Len(t, saved.Children, 1)
	childID := string(saved.Children[0].ID)
	assert.NotEmpty(t, childID)
	require.NotNil(t, saved.Parent)
	assert.Len(t, saved.Parent.Characteristics, 1)

	w = do(t, s, http.MethodPost, base+"/many", []map[string]string{
		{"key": "size", "value": "A4"},
		{"key": "speed", "value": "fast"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, s, http.MethodGet, base+"?key.in=color,size", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[characteristicsReply](t, w).Children, 2)

	w = do(t, s, http.MethodGet, base+"/items/"+childID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "red", decode[characteristicsReply](t, w).Children[0].Value)

	w = do(t, s, http.MethodPut, base+"/by/key/color", map[string]string{"key": "color", "value": "blue"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[characteristicsReply](t, w)
	assert.Equal(t, childID, string(updated.Children[0].ID))
	assert.Equal(t, "blue", updated.Children[0].Value)

	w = do(t, s, http.MethodPut, base+"/items/"+childID, map[string]string{"key": "color", "value": "green"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodDelete, base+"/by/key/speed", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, s, http.MethodDelete, base+"/many?key=speed", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorEnvelope](t, w).Error.Code)

	w = do(t, s, http.MethodDelete, base+"/items/"+childID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[characteristicsReply](t, w).Children, 1)
}

func TestChildErrors(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)
	base := "/api/resources/" + id + "/characteristic"

	w := do(t, s, http.MethodPost, base, map[string]string{"id": "c1", "key": "color"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown kind", http.MethodGet, "/api/resources/" + id + "/widgets", nil, http.StatusBadRequest, "bad_request"},
		{"missing parent", http.MethodGet, "/api/resources/nope/characteristic", nil, http.StatusNotFound, "domain_not_found"},
		{"key not exposed", http.MethodPut, base + "/by/name/x", map[string]string{"key": "k"}, http.StatusBadRequest, "bad_request"},
		{"unknown field", http.MethodDelete, base + "/by/colour/x", nil, http.StatusBadRequest, "bad_request"},
		{"empty body", http.MethodPost, base, "", http.StatusBadRequest, "bad_request"},
		{"bad operator", http.MethodGet, base + "?key.like=c", nil, http.StatusBadRequest, "bad_request"},
		{"duplicate id", http.MethodPost, base + "/many", []map[string]string{{"id": "c1", "key": "k"}}, http.StatusConflict, "conflict"},
		{"update missing id", http.MethodPut, base + "/many", []map[string]string{{"id": "zz", "key": "k"}}, http.StatusNotFound, "not_found"},
		{"no match", http.MethodPut, base + "?key=size", map[string]string{"key": "size"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorEnvelope](t, w).Error.Code)
		})
	}
}

func TestMistypedCriteriaLeavesCollection(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)
	base := "/api/resources/" + id + "/characteristic"

	w := do(t, s, http.MethodPost, base+"/many", []map[string]string{
		{"key": "color", "value": "red"},
		{"key": "size", "value": "A4"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	for _, tt := range []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"delete many misspelled", http.MethodDelete, base + "/many?kye=color", nil},
		{"delete many without filter", http.MethodDelete, base + "/many", nil},
		{"delete misspelled", http.MethodDelete, base + "?kye=color", nil},
		{"update without filter", http.MethodPut, base, map[string]string{"key": "shape", "value": "round"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "bad_request", decode[ErrorEnvelope](t, w).Error.Code)
		})
	}

	w = do(t, s, http.MethodGet, base+"?page=2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	kept := decode[characteristicsReply](t, w).Children
	require.Len(t, kept, 2)
	assert.ElementsMatch(t, []string{"red", "A4"}, []string{kept[0].Value, kept[1].Value})
}

func TestQueryTokenIsNotCriteria(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)
	base := "/api/resources/" + id + "/characteristic"
	w := do(t, s, http.MethodPost, base, map[string]string{"key": "color", "value": "red"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodDelete, base+"/many?key=color&token="+testKey, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[characteristicsReply](t, rec).Children, 1)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Gateway.RateLimit.RPS = 0.001
		c.Gateway.RateLimit.Burst = 1
	})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/resources", nil).Code)
	w := do(t, s, http.MethodGet, "/api/resources", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decode[ErrorEnvelope](t, w).Error.Code)
}

func TestRateLimiterSweep(t *testing.T) {
	rl := newRateLimiter(1, 1)
	rl.allow("a")
	assert.Equal(t, 0, rl.sweep(time.Hour))
	assert.Equal(t, 1, rl.sweep(-time.Second))
	assert.Nil(t, newRateLimiter(0, 5))
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)
	do(t, s, http.MethodGet, "/api/resources/"+id+"/characteristic", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `route="/api/resources/:id/:kind"`)
	assert.Contains(t, body, `picocrud_child_operations_total{kind="characteristic",operation="get",status="200"} 1`)
}

func TestWebSocketCommands(t *testing.T) {
	s := newTestServer(t, nil)
	id := createParent(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.wsHub.Run(ctx)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?token=" + testKey
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first WSEvent
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "initial_state", first.Type)

	require.NoError(t, conn.WriteJSON(WSRequest{
		ID: "r1",
		Command: app.Command{
			Operation: domain.OpSave,
			Kind:      child.KindContactMedium,
			ParentID:  domain.EntityID(id),
			Element:   json.RawMessage(`{"name":"work","type":"email","value":"a@b.c"}`),
		},
	}))
	resp := readReply(t, conn)
	assert.Equal(t, "r1", resp.ID)
	assert.Equal(t, http.StatusCreated, resp.Status)
	require.NotNil(t, resp.Reply)

	require.NoError(t, conn.WriteJSON(WSRequest{
		ID:      "r2",
		Command: app.Command{Operation: domain.OpDeleteByName, Kind: child.KindContactMedium, ParentID: domain.EntityID(id), Value: "home"},
	}))
	resp = readReply(t, conn)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)
}

func readReply(t *testing.T, conn *websocket.Conn) WSResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var resp WSResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		if resp.Type == "reply" {
			return resp
		}
	}
}

func TestEventBridgeBroadcastsDomainEvents(t *testing.T) {
	events := eventbus.New()
	hub := NewWSHub(nil, nil, time.Now())
	NewEventBridge(events, nil, hub).Run(context.Background())

	events.Publish(domain.NewEvent(domain.EventChildSaved, "p1", domain.ChildChange{Kind: "characteristic"}))

	select {
	case ev := <-hub.broadcast:
		assert.Equal(t, string(domain.EventChildSaved), ev.Type)
		data := ev.Data.(map[string]interface{})
		assert.Equal(t, domain.EntityID("p1"), data["aggregate_id"])
	case <-time.After(time.Second):
		t.Fatal("event not broadcast")
	}
}
