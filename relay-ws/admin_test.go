package relayws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tj/assert"
)

func TestAdminRoutes(t *testing.T) {
	serveWith := func(cfg Config, registry Registry, sender *fakeSender, endpoints *[]string, method, path string) *httptest.ResponseRecorder {
		router := AdminRoutes(NewLifecycle(cfg, registry), registry, sender.factory(endpoints))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(method, path, nil))
		return w
	}
	serve := func(registry Registry, method, path string) *httptest.ResponseRecorder {
		return serveWith(testConfig(), registry, newFakeSender(), nil, method, path)
	}

	t.Run("list connections", func(t *testing.T) {
		w := serve(newSpyRegistry(conn("alice", "c1"), conn("bob", "c2")), http.MethodGet, "/connections")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp connectionsResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Connections, 2)
	})

	t.Run("list empty registry", func(t *testing.T) {
		w := serve(newSpyRegistry(), http.MethodGet, "/connections")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"connections":[]}`, w.Body.String())
	})

	t.Run("client connections", func(t *testing.T) {
		w := serve(newSpyRegistry(conn("alice", "c1"), conn("alice", "c2"), conn("bob", "c3")), http.MethodGet, "/clients/alice/connections")
		assert.Equal(t, http.StatusOK, w.Code)

		var resp connectionsResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Connections, 2)
	})

	t.Run("force disconnect closes the socket", func(t *testing.T) {
		alice := conn("alice", "c1")
		alice.Endpoint = "https://abc.example.com/dev"
		registry := newSpyRegistry(alice, conn("bob", "c1"))
		sender := newFakeSender()
		var endpoints []string

		w := serveWith(testConfig(), registry, sender, &endpoints, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"connectionId":"c1","removed":2,"gateway":"closed"}`, w.Body.String())
		assert.Equal(t, 0, registry.Len())
		assert.Equal(t, []string{"c1"}, sender.closed)
		assert.Equal(t, []string{"https://abc.example.com/dev"}, endpoints)
	})

	t.Run("force disconnect falls back to the default endpoint", func(t *testing.T) {
		cfg := testConfig()
		cfg.DefaultEndpoint = "https://default/dev"
		sender := newFakeSender()
		var endpoints []string

		w := serveWith(cfg, newSpyRegistry(conn("alice", "c1")), sender, &endpoints, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"c1"}, sender.closed)
		assert.Equal(t, []string{"https://default/dev"}, endpoints)
	})

	t.Run("force disconnect removes records when the close fails", func(t *testing.T) {
		alice := conn("alice", "c1")
		alice.Endpoint = "https://abc.example.com/dev"
		registry := newSpyRegistry(alice)
		sender := newFakeSender().set("c1", Failed)

		w := serveWith(testConfig(), registry, sender, nil, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"connectionId":"c1","removed":1,"gateway":"failed"}`, w.Body.String())
		assert.Equal(t, 0, registry.Len())
		assert.Equal(t, []string{"c1"}, sender.closed)
	})

	t.Run("force disconnect without any endpoint", func(t *testing.T) {
		registry := newSpyRegistry(conn("alice", "c1"))
		sender := newFakeSender()

		w := serveWith(testConfig(), registry, sender, nil, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"connectionId":"c1","removed":1,"gateway":"failed"}`, w.Body.String())
		assert.Equal(t, 0, registry.Len())
		assert.Empty(t, sender.closed)
	})

	t.Run("force disconnect of a connection already gone", func(t *testing.T) {
		alice := conn("alice", "c1")
		alice.Endpoint = "https://abc.example.com/dev"
		sender := newFakeSender().set("c1", Gone)

		w := serveWith(testConfig(), newSpyRegistry(alice), sender, nil, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"connectionId":"c1","removed":1,"gateway":"gone"}`, w.Body.String())
	})

	t.Run("force disconnect unknown", func(t *testing.T) {
		sender := newFakeSender()
		w := serveWith(testConfig(), newSpyRegistry(), sender, nil, http.MethodDelete, "/connections/c1")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Empty(t, sender.closed)
	})

	t.Run("store failure hides the cause", func(t *testing.T) {
		registry := newSpyRegistry()
		registry.err = errors.New("secret table details")
		w := serve(registry, http.MethodGet, "/connections")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
	})
}
