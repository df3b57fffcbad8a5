package backend

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gammazero/workerpool"

	"github.com/crewdlabs/crewd/internal/config"
	"github.com/crewdlabs/crewd/internal/domain"
	"github.com/crewdlabs/crewd/internal/store"
)

// Server is the HTTP daemon that owns the store and executes commands
// on behalf of connected consoles.
type Server struct {
	store  *store.Store
	logger *config.Logger

	port    int
	ready   chan struct{} // closed once port is assigned in Start()
	server  *http.Server
	quiet   bool
	token   string
	version string

	// Shell commands run sequentially: one channel workspace, one
	// command at a time, in submission order.
	shellPool *workerpool.WorkerPool
}

// NewServer creates a new backend server.
func NewServer(st *store.Store, logger *config.Logger) *Server {
	return &Server{
		store:     st,
		logger:    logger,
		ready:     make(chan struct{}),
		token:     generateAuthToken(),
		shellPool: workerpool.New(1),
	}
}

func generateAuthToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}

// AuthToken returns the bearer token consoles must present.
func (s *Server) AuthToken() string {
	return s.token
}

// SetQuiet suppresses startup output.
func (s *Server) SetQuiet(quiet bool) {
	s.quiet = quiet
}

// SetVersion records the binary version, advertised in the lockfile
// and the health response.
func (s *Server) SetVersion(v string) {
	s.version = v
}

// Port returns the bound port. Valid after Start has signalled ready.
func (s *Server) Port() int {
	<-s.ready
	return s.port
}

// Start listens on the given port (falling back to an OS-assigned one)
// and serves until Shutdown.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		// Port in use -- let OS assign
		ln, err = net.Listen("tcp", "localhost:0")
		if err != nil {
			return fmt.Errorf("listening: %w", err)
		}
	}
	s.port = ln.Addr().(*net.TCPAddr).Port
	if !s.quiet {
		fmt.Fprintf(os.Stderr, "crewd backend listening on port %d\n", s.port)
	}
	close(s.ready)

	if err := WriteLockfile(s.port, s.token, s.version); err != nil {
		ln.Close()
		return fmt.Errorf("writing lockfile: %w", err)
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{Handler: mux}
	if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server and removes the lockfile.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shellPool.Stop()
	if err := RemoveLockfile(); err != nil {
		s.logf("shutdown: remove lockfile: %v", err)
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/channels", s.withAuth(s.handleListChannels))
	mux.HandleFunc("POST /api/channels/{ch}/messages", s.withAuth(s.handleSendMessage))
	mux.HandleFunc("GET /api/channels/{ch}/messages", s.withAuth(s.handleFetchMessages))
	mux.HandleFunc("POST /api/channels/{ch}/commands", s.withAuth(s.handleSaveCommand))
	mux.HandleFunc("POST /api/channels/{ch}/shell", s.withAuth(s.handleShell))
	mux.HandleFunc("GET /api/channels/{ch}/tasks", s.withAuth(s.handleTasks))
	mux.HandleFunc("GET /api/channels/{ch}/cost", s.withAuth(s.handleCost))
	mux.HandleFunc("GET /api/tasks/{id}/diff", s.withAuth(s.handleDiff))
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(r.Header.Get("Authorization"))
		const bearer = "Bearer "
		if strings.HasPrefix(got, bearer) {
			got = strings.TrimSpace(strings.TrimPrefix(got, bearer))
		}
		// Constant-time compare to avoid token oracle behavior.
		if got == "" || s.token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// logf records a failed request. Every call site is a failure path,
// so these land at warn level.
func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf("backend: "+format, args...)
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"pid":     os.Getpid(),
		"port":    s.port,
		"version": s.version,
	})
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListChannels()
	if err != nil {
		s.logf("list channels: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": names})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("ch")
	var req struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Text      string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty message"})
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = "operator"
	}
	e, err := s.store.SaveMessage(channel, domain.EntryChat, sender, req.Recipient, req.Text)
	if err != nil {
		s.logf("send message: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleFetchMessages(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("ch")
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		entries []domain.FeedEntry
		err     error
	)
	if beforeID := q.Get("before_id"); beforeID != "" {
		entries, err = s.store.EntriesBefore(channel, beforeID, limit)
	} else {
		var since time.Time
		if v := q.Get("since"); v != "" {
			since, err = time.Parse(time.RFC3339Nano, v)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since cursor"})
				return
			}
		}
		entries, err = s.store.EntriesSince(channel, since, limit)
	}
	if err != nil {
		s.logf("fetch messages: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSaveCommand(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("ch")
	var req struct {
		Sender string               `json:"sender"`
		Raw    string               `json:"raw"`
		Result domain.CommandResult `json:"result"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Raw == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing raw command"})
		return
	}
	sender := req.Sender
	if sender == "" {
		sender = "operator"
	}
	e, err := s.store.SaveCommand(channel, sender, req.Raw, req.Result)
	if err != nil {
		s.logf("save command: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Args string `json:"args"`
		Cwd  string `json:"cwd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Args) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "empty shell command"})
		return
	}

	var result domain.ShellResult
	s.shellPool.SubmitWait(func() {
		result = runShell(req.Args, req.Cwd)
	})
	writeJSON(w, http.StatusOK, result)
}

// runShell executes args through the system shell in cwd, capturing
// stdout and stderr separately.
func runShell(args, cwd string) domain.ShellResult {
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	start := time.Now()
	c := exec.Command("/bin/sh", "-c", args)
	c.Dir = cwd
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	err := c.Run()

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (bad cwd, missing shell): no process ran.
			exitCode = -1
			if stderr.Len() == 0 {
				stderr.WriteString(err.Error())
			}
		}
	}
	return domain.ShellResult{
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode,
		Cwd:        cwd,
		DurationMs: time.Since(start).Milliseconds(),
	}
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("ch")
	tasks, err := s.store.Tasks(channel)
	if err != nil {
		s.logf("tasks: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("ch")
	sum, err := s.store.CostSummary(channel, time.Now())
	if err != nil {
		s.logf("cost: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.store.TaskByID(id)
	if err == sql.ErrNoRows {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		s.logf("diff: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	snaps, err := s.store.SnapshotsForTask(id)
	if err != nil {
		s.logf("diff snapshots: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, domain.DiffResult{
		TaskID:      task.ID,
		Branch:      task.Branch,
		PerRepoDiff: PerRepoDiffs(snaps),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "backend: write json response: %v\n", err)
	}
}
