package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AlaaAmrAmin/concurrency-playground/internal/config"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/isolation"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/lifecycle"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/runtime"
	"github.com/AlaaAmrAmin/concurrency-playground/internal/task"
)

func newTestServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	rt := runtime.New(config.Default())
	t.Cleanup(rt.Stop)
	hook := lifecycle.New(rt.Tasks(), rt.Bus(), lifecycle.ModeStructured)
	return NewServer(rt, nil, hook, "127.0.0.1", 0), rt
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDomainsListsConfigured(t *testing.T) {
	s, rt := newTestServer(t)
	rt.AddDomain("payments")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/domains", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var domains []runtime.DomainInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &domains); err != nil {
		t.Fatalf("decode: %v", err)
	}
	names := make(map[string]bool)
	for _, d := range domains {
		names[d.Name] = true
	}
	if !names["main"] || !names["payments"] {
		t.Fatalf("expected main and payments in %v", domains)
	}
}

func TestTaskShowAndCancel(t *testing.T) {
	s, rt := newTestServer(t)

	release := make(chan struct{})
	tk, err := rt.Tasks().SpawnDetached(context.Background(), isolation.None(), func(ctx context.Context) (any, error) {
		<-release
		return nil, task.CheckCancelled(ctx)
	}, task.WithName("inspect-me"))
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/"+tk.ID(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("show status = %d, want 200", rec.Code)
	}
	var info task.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Name != "inspect-me" {
		t.Fatalf("name = %q, want inspect-me", info.Name)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/"+tk.ID()+"/cancel", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200", rec.Code)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tk.Await(ctx); err == nil {
		t.Fatal("expected cancelled outcome after gateway cancel")
	}
	if tk.Status() != task.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", tk.Status())
	}
}

func TestTaskEndpointsUnknownID(t *testing.T) {
	s, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks/task_missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("show status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks/task_missing/cancel", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cancel status = %d, want 404", rec.Code)
	}
}

func TestTasksTreeView(t *testing.T) {
	s, rt := newTestServer(t)

	parent, err := rt.Tasks().SpawnStructured(context.Background(), nil, isolation.None(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, task.WithName("root"))
	if err != nil {
		t.Fatalf("spawn parent: %v", err)
	}
	child, err := rt.Tasks().SpawnStructured(context.Background(), parent, isolation.None(), func(ctx context.Context) (any, error) {
		return nil, nil
	}, task.WithName("leaf"))
	if err != nil {
		t.Fatalf("spawn child: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := parent.Await(ctx); err != nil {
		t.Fatalf("await parent: %v", err)
	}
	if _, err := child.Await(ctx); err != nil {
		t.Fatalf("await child: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tasks?view=tree", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var roots []struct {
		ID       string `json:"id"`
		Children []struct {
			ID string `json:"id"`
		} `json:"children"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &roots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(roots) != 1 {
		t.Fatalf("got %d roots, want 1", len(roots))
	}
	if roots[0].ID != parent.ID() {
		t.Errorf("root = %s, want %s", roots[0].ID, parent.ID())
	}
	if len(roots[0].Children) != 1 || roots[0].Children[0].ID != child.ID() {
		t.Errorf("unexpected children: %+v", roots[0].Children)
	}
}

func TestViewAppearDisappear(t *testing.T) {
	s, rt := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/views/settings/appear?domain=ui", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("appear status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		TaskID string `json:"task_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	root, ok := rt.Tasks().Get(resp.TaskID)
	if !ok {
		t.Fatalf("view root %s not registered", resp.TaskID)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/views/settings/disappear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("disappear status = %d, want 200", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := root.Await(ctx); err == nil {
		t.Fatal("expected cancelled outcome for the view root")
	}
	if root.Status() != task.StatusCancelled {
		t.Fatalf("status = %q, want cancelled", root.Status())
	}
}

func TestEventsHistory(t *testing.T) {
	s, rt := newTestServer(t)

	tk, err := rt.Tasks().SpawnDetached(context.Background(), isolation.None(), func(ctx context.Context) (any, error) {
		return "done", nil
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := tk.Await(ctx); err != nil {
		t.Fatalf("await: %v", err)
	}

	// The bus dispatches asynchronously; poll until history fills in.
	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/events?limit=10", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(raw) > 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("no events recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
