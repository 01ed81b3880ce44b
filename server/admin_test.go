package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"battl3ship/protocol"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read %s: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func TestAdminRoutes(t *testing.T) {
	s, addr := startServer(t, func(c *Config) { c.Password = "secret" })
	c := dial(t, addr)
	c.send(&protocol.Hello{Name: "alice", Password: protocol.String("secret")})
	c.recv()
	c.recv()

	hs := httptest.NewServer(NewRouter(s, nil))
	defer hs.Close()

	if code, body := get(t, hs.URL+"/healthz"); code != http.StatusOK || body != "ok" {
		t.Fatalf("healthz: %d %q", code, body)
	}

	code, body := get(t, hs.URL+"/admin/stats")
	if code != http.StatusOK {
		t.Fatalf("stats: %d", code)
	}
	var stats struct {
		Registry Stats            `json:"registry"`
		Metrics  map[string]int64 `json:"metrics"`
	}
	if err := json.Unmarshal([]byte(body), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Registry.Players != 1 || stats.Registry.Roster[0].Name != "alice" {
		t.Fatalf("unexpected registry %+v", stats.Registry)
	}
	if stats.Metrics["connections_accepted"] != 1 {
		t.Fatalf("unexpected metrics %v", stats.Metrics)
	}

	_, body = get(t, hs.URL+"/admin/config")
	if strings.Contains(body, "secret") || !strings.Contains(body, `"passwordRequired":true`) {
		t.Fatalf("config view leaks or misses password state: %s", body)
	}

	_, body = get(t, hs.URL+"/metrics")
	for _, name := range []string{"battl3ship_players 1", "battl3ship_connections_accepted_total 1", "battl3ship_active_matches 0"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics missing %q", name)
		}
	}

	if code, _ := get(t, hs.URL+"/ws"); code != http.StatusNotFound {
		t.Fatalf("/ws without a gateway should 404, got %d", code)
	}
}
