package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"taskpulse/internal/domain"
	"taskpulse/internal/priority"
	"taskpulse/internal/store"
)

type Server struct {
	r     *chi.Mux
	store store.Store
	now   func() time.Time
}

func NewServer(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	s := &Server{r: r, store: st, now: time.Now}

	r.Get("/health", s.health)
	r.Get("/metrics", s.metrics)

	r.Post("/api/users", s.createUser)
	r.Post("/api/users/{id}/deactivate", s.deactivateUser)

	r.Post("/api/workspaces", s.createWorkspace)
	r.Get("/api/workspaces/{id}", s.getWorkspace)
	r.Post("/api/workspaces/{id}/members", s.addMember)
	r.Get("/api/workspaces/{id}/members", s.listMembers)
	r.Get("/api/workspaces/{id}/tasks", s.listTasks)

	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Put("/api/tasks/{id}", s.updateTask)
	r.Post("/api/tasks/{id}/complete", s.completeTask)
	r.Post("/api/tasks/{id}/trash", s.trashTask)
	r.Post("/api/tasks/{id}/restore", s.restoreTask)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain; version=0.0.4")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("taskpulse_up 1\n"))
}

type createUserReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Username == "" || req.Email == "" {
		http.Error(w, "username and email are required", 400)
		return
	}
	id, err := s.store.CreateUser(r.Context(), domain.User{Username: req.Username, Email: req.Email, IsActive: true})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) deactivateUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetUserActive(r.Context(), id, false); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", 404)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createWorkspaceReq struct {
	Name string `json:"name"`
}

func (s *Server) createWorkspace(w http.ResponseWriter, r *http.Request) {
	var req createWorkspaceReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", 400)
		return
	}
	id, err := s.store.CreateWorkspace(r.Context(), domain.Workspace{Name: req.Name})
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) getWorkspace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ws, err := s.store.GetWorkspace(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	counts, err := s.store.StatusCounts(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{
		"id":            ws.ID,
		"name":          ws.Name,
		"created_at":    ws.CreatedAt.Format(time.RFC3339),
		"status_counts": counts,
	})
}

type addMemberReq struct {
	UserID string `json:"user_id"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	wsID := chi.URLParam(r, "id")
	var req addMemberReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", 400)
		return
	}
	if _, err := s.store.GetWorkspace(r.Context(), wsID); err != nil {
		http.Error(w, "not found", 404)
		return
	}
	if err := s.store.AddMember(r.Context(), wsID, req.UserID); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	wsID := chi.URLParam(r, "id")
	members, err := s.store.GetWorkspaceMembers(r.Context(), wsID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(members))
	for _, m := range members {
		out = append(out, map[string]any{
			"id": m.ID, "username": m.Username, "email": m.Email, "is_active": m.IsActive,
		})
	}
	writeJSON(w, 200, out)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	wsID := chi.URLParam(r, "id")
	tasks, err := s.store.ListWorkspaceTasks(r.Context(), wsID)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskJSON(t))
	}
	writeJSON(w, 200, out)
}

type createTaskReq struct {
	WorkspaceID string  `json:"workspace_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline"` // RFC 3339
	AssignedTo  *string `json:"assigned_to"`
	CreatedBy   string  `json:"created_by"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.WorkspaceID == "" || req.Title == "" || req.Description == "" || req.CreatedBy == "" {
		http.Error(w, "workspace_id, title, description and created_by are required", 400)
		return
	}
	deadline, err := time.Parse(time.RFC3339, req.Deadline)
	if err != nil {
		http.Error(w, "deadline must be RFC 3339", 400)
		return
	}

	t := domain.Task{
		WorkspaceID: req.WorkspaceID,
		Title:       req.Title,
		Description: req.Description,
		Deadline:    deadline,
		Priority:    priority.Classify(req.Description, deadline, s.now()),
		Status:      domain.StatusPending,
		AssignedTo:  req.AssignedTo,
		CreatedBy:   req.CreatedBy,
	}
	id, err := s.store.CreateTask(r.Context(), t)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "priority": t.Priority})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, taskJSON(t))
}

type updateTaskReq struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Deadline    string  `json:"deadline"`
	Status      string  `json:"status"`
	AssignedTo  *string `json:"assigned_to"`
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.store.GetTask(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}

	var req updateTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}

	if req.Title != "" {
		t.Title = req.Title
	}
	if req.Description != "" {
		t.Description = req.Description
	}
	if req.Deadline != "" {
		deadline, err := time.Parse(time.RFC3339, req.Deadline)
		if err != nil {
			http.Error(w, "deadline must be RFC 3339", 400)
			return
		}
		t.Deadline = deadline
	}
	if req.Status != "" {
		switch req.Status {
		case domain.StatusPending, domain.StatusDoing, domain.StatusCompleted:
			t.Status = req.Status
		default:
			http.Error(w, "invalid status", 400)
			return
		}
	}
	if req.AssignedTo != nil {
		if *req.AssignedTo == "" {
			t.AssignedTo = nil
		} else {
			t.AssignedTo = req.AssignedTo
		}
	}

	// Priority follows description and deadline on every edit.
	t.Priority = priority.Classify(t.Description, t.Deadline, s.now())

	if err := s.store.UpdateTask(r.Context(), t); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, taskJSON(t))
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, domain.StatusCompleted)
}

func (s *Server) trashTask(w http.ResponseWriter, r *http.Request) {
	s.setStatus(w, r, domain.StatusTrash)
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request, status string) {
	id := chi.URLParam(r, "id")
	if err := s.store.SetTaskStatus(r.Context(), id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", 404)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// restoreTask moves a task back to pending and clears the overdue flag so a
// fresh deadline can trigger the alert again.
func (s *Server) restoreTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.RestoreTask(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", 404)
			return
		}
		http.Error(w, err.Error(), 500)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func taskJSON(t domain.Task) map[string]any {
	out := map[string]any{
		"id":               t.ID,
		"workspace_id":     t.WorkspaceID,
		"title":            t.Title,
		"description":      t.Description,
		"deadline":         t.Deadline.Format(time.RFC3339),
		"priority":         t.Priority,
		"status":           t.Status,
		"created_by":       t.CreatedBy,
		"reminder_sent":    t.ReminderSent,
		"overdue_notified": t.OverdueNotified,
	}
	if t.AssignedTo != nil {
		out["assigned_to"] = *t.AssignedTo
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
