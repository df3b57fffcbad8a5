package backend

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crewdlabs/crewd/internal/domain"
	"github.com/crewdlabs/crewd/internal/store"

	_ "modernc.org/sqlite"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.NewFromDB(db)
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(st, nil), st
}

func newAuthedRequest(srv *Server, method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+srv.AuthToken())
	return req
}

func serveMux(srv *Server) *http.ServeMux {
	mux := http.NewServeMux()
	srv.registerRoutes(mux)
	return mux
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.SetVersion("v0.9.0")
	mux := serveMux(srv)

	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %v", resp["status"])
	}
	if resp["version"] != "v0.9.0" {
		t.Errorf("version = %v, want v0.9.0", resp["version"])
	}
}

func TestAuthRequired(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	req := httptest.NewRequest("GET", "/api/channels/team-alpha/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/channels/team-alpha/messages", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", w.Code)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	body, _ := json.Marshal(map[string]string{"recipient": "builder-1", "text": "hello"})
	req := newAuthedRequest(srv, "POST", "/api/channels/team-alpha/messages", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var e domain.FeedEntry
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(e.ID, "msg_") || e.Text != "hello" {
		t.Errorf("entry = %+v", e)
	}

	// Empty text is rejected.
	body, _ = json.Marshal(map[string]string{"text": "  "})
	req = newAuthedRequest(srv, "POST", "/api/channels/team-alpha/messages", bytes.NewReader(body))
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty text: expected 400, got %d", w.Code)
	}
}

func TestSaveCommandEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	payload := map[string]any{
		"raw":    "/shell ls",
		"result": domain.CommandResult{Shell: &domain.ShellResult{Stdout: "x\n", ExitCode: 0}},
	}
	body, _ := json.Marshal(payload)
	req := newAuthedRequest(srv, "POST", "/api/channels/team-alpha/commands", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var e domain.FeedEntry
	if err := json.NewDecoder(w.Body).Decode(&e); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(e.ID, "cmd_") {
		t.Errorf("id = %q, want cmd_ prefix", e.ID)
	}
	if e.Result == nil || e.Result.Shell == nil || e.Result.Shell.Stdout != "x\n" {
		t.Errorf("result = %+v", e.Result)
	}
}

func TestShellEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	body, _ := json.Marshal(map[string]string{"args": "echo hello; echo oops >&2", "cwd": t.TempDir()})
	req := newAuthedRequest(srv, "POST", "/api/channels/team-alpha/shell", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res domain.ShellResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "oops\n" {
		t.Errorf("stderr = %q", res.Stderr)
	}
	if res.ExitCode != 0 {
		t.Errorf("exit = %d", res.ExitCode)
	}
}

func TestShellEndpointNonZeroExit(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	body, _ := json.Marshal(map[string]string{"args": "exit 3"})
	req := newAuthedRequest(srv, "POST", "/api/channels/team-alpha/shell", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var res domain.ShellResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 3 {
		t.Errorf("exit = %d, want 3", res.ExitCode)
	}
}

func TestShellEndpointRejectsEmptyArgs(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	body, _ := json.Marshal(map[string]string{"args": "   "})
	req := newAuthedRequest(srv, "POST", "/api/channels/team-alpha/shell", bytes.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestDiffEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	mux := serveMux(srv)

	task, err := st.CreateTask("team-alpha", "tweak greeting", domain.TaskReview, "tweak/greeting", 0)
	if err != nil {
		t.Fatal(err)
	}
	err = st.AddSnapshot(store.Snapshot{
		TaskID: task.ID, Repo: "backend", Path: "greet.go",
		BaseText: "hello\n", HeadText: "goodbye\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	req := newAuthedRequest(srv, "GET", "/api/tasks/"+task.ID+"/diff", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res domain.DiffResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Branch != "tweak/greeting" {
		t.Errorf("branch = %q", res.Branch)
	}
	diff := res.PerRepoDiff["backend"]
	if !strings.Contains(diff, "-hello") || !strings.Contains(diff, "+goodbye") {
		t.Errorf("diff = %q", diff)
	}
}

func TestDiffEndpointNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	mux := serveMux(srv)

	req := newAuthedRequest(srv, "GET", "/api/tasks/task_missing/diff", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCostEndpoint(t *testing.T) {
	srv, st := newTestServer(t)
	mux := serveMux(srv)

	if _, err := st.CreateTask("team-alpha", "expensive refactor", domain.TaskDone, "", 2.50); err != nil {
		t.Fatal(err)
	}

	req := newAuthedRequest(srv, "GET", "/api/channels/team-alpha/cost", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	var res domain.CostResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Today != 2.50 {
		t.Errorf("today = %v, want 2.50", res.Today)
	}
	if len(res.TopTasks) != 1 || res.TopTasks[0].Title != "expensive refactor" {
		t.Errorf("top tasks = %+v", res.TopTasks)
	}
}
