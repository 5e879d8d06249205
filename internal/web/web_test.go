package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/model"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	logger := logging.Discard()

	server := httptest.NewServer(NewServer(db.NewStore(conn), logger).Handler())
	t.Cleanup(func() {
		server.Close()
		_ = conn.Close()
	})
	return server
}

func newTestClient(t *testing.T, server *httptest.Server) *api.Client {
	t.Helper()
	logger := logging.Discard()
	client, err := api.NewClient(server.URL+"/api", api.Options{Logger: logger})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func signUp(t *testing.T, client *api.Client, email string) model.User {
	t.Helper()
	ctx := context.Background()
	if _, err := client.Register(ctx, "Ada", email, "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	user, err := client.Login(ctx, email, "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	return user
}

func TestTasksRequireSessionCookie(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/tasks?user_id=1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error == "" {
		t.Fatalf("expected error envelope, got %+v", body)
	}
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()

	if _, err := client.Register(ctx, "Ada", "ada@example.com", "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := client.Login(ctx, "ada@example.com", "wrong")
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Invalid email or password" {
		t.Fatalf("expected 401 invalid credentials, got %v", err)
	}

	_, err = client.Register(ctx, "Ada", "ada@example.com", "again")
	if !errors.As(err, &apiErr) || apiErr.Message != "Email already exists" {
		t.Fatalf("expected duplicate email error, got %v", err)
	}
}

func TestTaskLifecycleThroughClient(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()
	user := signUp(t, client, "ada@example.com")

	due := time.Date(2030, 1, 2, 9, 0, 0, 0, time.UTC)
	created, err := client.CreateTask(ctx, user.ID, model.TaskFields{
		Title:       "Write report",
		Description: model.StringPtr("quarterly"),
		Priority:    model.PriorityHigh,
		DueDate:     &due,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 || created.UserID != user.ID {
		t.Fatalf("unexpected created task: %+v", created)
	}
	if created.DueDate == nil || !created.DueDate.Equal(due) {
		t.Fatalf("expected due %v, got %v", due, created.DueDate)
	}
	if _, err := client.CreateTask(ctx, user.ID, model.TaskFields{Title: "Undated"}); err != nil {
		t.Fatalf("create undated: %v", err)
	}

	tasks, err := client.ListTasks(ctx, user.ID, model.FilterAll)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 2 || tasks[0].Title != "Write report" || tasks[1].Title != "Undated" {
		t.Fatalf("expected dated task first, got %+v", tasks)
	}
	if tasks[1].Priority != model.PriorityMedium {
		t.Fatalf("expected default medium priority, got %q", tasks[1].Priority)
	}

	updated, err := client.UpdateTask(ctx, created.ID, model.TaskFields{Title: "Write final report", Priority: model.PriorityLow})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Write final report" || updated.Description != nil || updated.DueDate != nil {
		t.Fatalf("expected full field set applied, got %+v", updated)
	}

	completed, err := client.ToggleTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !completed {
		t.Fatalf("expected toggle to complete the task")
	}
	done, err := client.ListTasks(ctx, user.ID, model.FilterCompleted)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(done) != 1 || done[0].ID != created.ID || done[0].CompletedAt == nil {
		t.Fatalf("expected one completed task with timestamp, got %+v", done)
	}

	if err := client.DeleteTask(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := client.DeleteTask(ctx, created.ID); !api.IsNotFound(err) {
		t.Fatalf("expected 404 on second delete, got %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()
	user := signUp(t, client, "ada@example.com")

	_, err := client.CreateTask(ctx, user.ID, model.TaskFields{Title: ""})
	var apiErr *api.Error
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Message != "Task title is required" {
		t.Fatalf("expected title required, got %v", err)
	}

	_, err = client.CreateTask(ctx, user.ID, model.TaskFields{Title: "x", Priority: "urgent"})
	if !errors.As(err, &apiErr) || apiErr.Message != "Invalid priority value" {
		t.Fatalf("expected invalid priority, got %v", err)
	}
}

func TestOtherUsersTasksAreHidden(t *testing.T) {
	server := newTestServer(t)
	ada := newTestClient(t, server)
	bob := newTestClient(t, server)
	ctx := context.Background()
	adaUser := signUp(t, ada, "ada@example.com")
	signUp(t, bob, "bob@example.com")

	task, err := ada.CreateTask(ctx, adaUser.ID, model.TaskFields{Title: "private"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := bob.ListTasks(ctx, adaUser.ID, model.FilterAll); err == nil {
		t.Fatalf("expected bob to be refused ada's list")
	}
	if _, err := bob.ToggleTask(ctx, task.ID); !api.IsNotFound(err) {
		t.Fatalf("expected 404 for another user's task, got %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()
	user := signUp(t, client, "ada@example.com")

	if err := client.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := client.ListTasks(ctx, user.ID, model.FilterAll); !api.IsUnauthorized(err) {
		t.Fatalf("expected 401 after logout, got %v", err)
	}
}

func TestDashboardStats(t *testing.T) {
	server := newTestServer(t)
	client := newTestClient(t, server)
	ctx := context.Background()
	user := signUp(t, client, "ada@example.com")

	past := time.Now().Add(-48 * time.Hour)
	if _, err := client.CreateTask(ctx, user.ID, model.TaskFields{Title: "late", DueDate: &past}); err != nil {
		t.Fatalf("create: %v", err)
	}
	done, err := client.CreateTask(ctx, user.ID, model.TaskFields{Title: "done"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := client.ToggleTask(ctx, done.ID); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	jarClient := &http.Client{Jar: newJar(t)}
	loginBody := strings.NewReader(`{"email": "ada@example.com", "password": "secret"}`)
	resp, err := jarClient.Post(server.URL+"/api/login", "application/json", loginBody)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	resp.Body.Close()

	resp, err = jarClient.Get(server.URL + "/api/dashboard-stats?user_id=" + strconv.FormatInt(user.ID, 10))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Stats struct {
			Total          int     `json:"total_tasks"`
			Completed      int     `json:"completed_tasks"`
			Pending        int     `json:"pending_tasks"`
			Overdue        int     `json:"overdue_tasks"`
			CompletionRate float64 `json:"completion_rate"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	stats := body.Stats
	if stats.Total != 2 || stats.Completed != 1 || stats.Pending != 1 || stats.Overdue != 1 || stats.CompletionRate != 50 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func newJar(t *testing.T) http.CookieJar {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookie jar: %v", err)
	}
	return jar
}
