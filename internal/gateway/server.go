// Package gateway exposes the runtime's live state over HTTP for
// inspection: domains, the task hierarchy, recent events, schedule entries,
// and a websocket event stream. State is in-memory only; nothing is
// persisted.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/lifecycle"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/schedule"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

// Server is the inspection HTTP server.
type Server struct {
	httpServer *http.Server
	rt         *runtime.Runtime
	schedule   *schedule.Scheduler // optional
	hook       *lifecycle.Hook     // optional
	host       string
	port       int
}

// NewServer creates a gateway over the given runtime. The schedule and hook
// may be nil when no periodic entries or view lifecycle are configured.
func NewServer(rt *runtime.Runtime, sched *schedule.Scheduler, hook *lifecycle.Hook, host string, port int) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	s := &Server{rt: rt, schedule: sched, hook: hook, host: host, port: port}

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/domains", s.handleDomains)
	r.Get("/api/tasks", s.handleTasks)
	r.Get("/api/tasks/{id}", s.handleTaskShow)
	r.Post("/api/tasks/{id}/cancel", s.handleTaskCancel)
	r.Get("/api/events", s.handleEvents)
	r.Get("/api/schedules", s.handleSchedules)
	r.Post("/api/views/{name}/appear", s.handleViewAppear)
	r.Post("/api/views/{name}/disappear", s.handleViewDisappear)
	r.Get("/api/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: r,
	}
	return s
}

// Handler returns the HTTP handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDomains(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rt.Domains())
}

// taskNode is a task with its structured children nested, for the tree view.
type taskNode struct {
	task.Info
	Children []*taskNode `json:"children,omitempty"`
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	infos := s.rt.Tasks().List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := infos[:0]
		for _, info := range infos {
			if string(info.Status) == status {
				filtered = append(filtered, info)
			}
		}
		infos = filtered
	}
	if r.URL.Query().Get("view") == "tree" {
		writeJSON(w, http.StatusOK, buildTree(infos))
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// buildTree nests tasks under their structured parents, preserving list
// order. Tasks whose parent is absent (detached roots, filtered-out parents)
// surface as roots.
func buildTree(infos []task.Info) []*taskNode {
	nodes := make(map[string]*taskNode, len(infos))
	order := make([]*taskNode, 0, len(infos))
	for _, info := range infos {
		n := &taskNode{Info: info}
		nodes[info.ID] = n
		order = append(order, n)
	}

	var roots []*taskNode
	for _, n := range order {
		if parent, ok := nodes[n.ParentID]; ok && n.ParentID != "" {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	return roots
}

func (s *Server) handleTaskShow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.rt.Tasks().Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, t.Snapshot())
}

func (s *Server) handleTaskCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.rt.Tasks().Cancel(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, task.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancel requested"})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, s.rt.Bus().History(limit))
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedule == nil {
		writeJSON(w, http.StatusOK, []schedule.EntryInfo{})
		return
	}
	writeJSON(w, http.StatusOK, s.schedule.Entries())
}

// handleViewAppear spawns the view's root session task. The root parks on
// the clock until its cancellation flag is set, standing in for whatever
// per-view work a host embedding the runtime would run.
func (s *Server) handleViewAppear(w http.ResponseWriter, r *http.Request) {
	if s.hook == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "view lifecycle not configured"})
		return
	}
	name := chi.URLParam(r, "name")

	var iso isolation.Context
	if domain := r.URL.Query().Get("domain"); domain != "" {
		iso = isolation.Bound(s.rt.AddDomain(domain))
	}

	clock := s.rt.Scheduler().Clock()
	root, err := s.hook.OnAppear(r.Context(), name, iso, func(ctx context.Context) (any, error) {
		for {
			if err := task.CheckCancelled(ctx); err != nil {
				return nil, err
			}
			if err := clock.Sleep(ctx, 50*time.Millisecond); err != nil {
				return nil, err
			}
		}
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"view": name, "task_id": root.ID()})
}

func (s *Server) handleViewDisappear(w http.ResponseWriter, r *http.Request) {
	if s.hook == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "view lifecycle not configured"})
		return
	}
	name := chi.URLParam(r, "name")
	s.hook.OnDisappear(name)
	writeJSON(w, http.StatusOK, map[string]string{"view": name, "status": "disappear recorded"})
}
