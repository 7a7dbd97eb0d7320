package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tradlet-core/internal/archive"
	"tradlet-core/internal/exec"
	"tradlet-core/internal/num"
	"tradlet-core/internal/tradlet"
)

func init() { gin.SetMode(gin.TestMode) }

func testServer(t *testing.T) (*Server, *tradlet.Engine, *archive.Store) {
	t.Helper()
	log := zerolog.Nop()
	var engine *tradlet.Engine
	gw := exec.NewSimGateway(func(rep exec.Report) { engine.QueueReport(rep) }, 0, log)
	g := tradlet.NewGroup(tradlet.GroupConfig{
		ID:              "g1",
		State:           tradlet.GroupEnabled,
		Interests:       []tradlet.Interest{{Instrument: "au2606"}},
		StrokeThreshold: num.FromInt(2),
	}, gw, log)
	engine = tradlet.NewEngine(g, log)
	engine.Start()
	t.Cleanup(engine.Stop)

	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return NewServer([]*tradlet.Engine{engine}, store, log), engine, store
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

func TestListGroups(t *testing.T) {
	s, _, _ := testServer(t)
	w := doRequest(s, http.MethodGet, "/api/groups", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	var views []tradlet.GroupView
	if err := json.Unmarshal(w.Body.Bytes(), &views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].ID != "g1" || views[0].State != "Enabled" {
		t.Fatalf("views=%+v", views)
	}
}

func TestGetGroup(t *testing.T) {
	s, _, _ := testServer(t)
	if w := doRequest(s, http.MethodGet, "/api/groups/g1", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/api/groups/nope", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d for unknown group", w.Code)
	}
}

func TestSetGroupState(t *testing.T) {
	s, engine, _ := testServer(t)
	w := doRequest(s, http.MethodPost, "/api/groups/g1/state", `{"state":"CloseOnly"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if engine.Group().State() == tradlet.GroupCloseOnly {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("state command never applied")
}

func TestSetGroupStateRejectsGarbage(t *testing.T) {
	s, _, _ := testServer(t)
	tests := []struct {
		body string
		code int
	}{
		{`{"state":"Turbo"}`, http.StatusBadRequest},
		{`{}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := doRequest(s, http.MethodPost, "/api/groups/g1/state", tt.body); w.Code != tt.code {
			t.Fatalf("body=%q status=%d, expected %d", tt.body, w.Code, tt.code)
		}
	}
}

func TestListArchived(t *testing.T) {
	s, _, store := testServer(t)
	err := store.SaveTerminal("g1", tradlet.Record{
		ID: "pb-1", Template: "demo", Instrument: "au2606",
		Direction: "Long", State: "Closed", OpenTime: time.Now().UTC(),
	})
	if err != nil {
		t.Fatal(err)
	}
	w := doRequest(s, http.MethodGet, "/api/playbooks/archived?group=g1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	var records []archive.ArchivedRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].ID != "pb-1" {
		t.Fatalf("records=%+v", records)
	}
	if w := doRequest(s, http.MethodGet, "/api/playbooks/archived?limit=zero", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d for bad limit", w.Code)
	}
}
