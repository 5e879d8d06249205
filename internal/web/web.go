// Package web is a development implementation of the task API, backed by the
// local sqlite store. The terminal client talks to it exactly as it would to
// a remote deployment.
package web

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	sessionCookie = "session_id"
	sessionMaxAge = 7 * 24 * 60 * 60
	userKey       = "user"
)

type Server struct {
	store   *db.Store
	logger  *logrus.Entry
	metrics http.Handler
}

type Option func(*Server)

// WithMetrics serves handler at /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func NewServer(store *db.Store, logger *logrus.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{store: store, logger: logger.WithField("component", "dev_api")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger)

	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}

	apiGroup := router.Group("/api")
	apiGroup.GET("/health", s.health)
	apiGroup.POST("/register", s.register)
	apiGroup.POST("/login", s.login)
	apiGroup.POST("/logout", s.logout)
	apiGroup.GET("/check-auth", s.checkAuth)

	authed := apiGroup.Group("", s.requireSession)
	authed.GET("/tasks", s.listTasks)
	authed.POST("/tasks", s.createTask)
	authed.GET("/tasks/:id", s.getTask)
	authed.PUT("/tasks/:id", s.updateTask)
	authed.DELETE("/tasks/:id", s.deleteTask)
	authed.PUT("/tasks/:id/toggle", s.toggleTask)
	authed.GET("/dashboard-stats", s.dashboardStats)

	router.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "Resource not found")
	})
	return router
}

func (s *Server) requestLogger(c *gin.Context) {
	start := time.Now()
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)

	c.Next()

	s.logger.WithFields(logrus.Fields{
		"request_id":  requestID,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"status":      c.Writer.Status(),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("request completed")
}

func (s *Server) requireSession(c *gin.Context) {
	sessionID, err := c.Cookie(sessionCookie)
	if err != nil || sessionID == "" {
		fail(c, http.StatusUnauthorized, "Authentication required")
		c.Abort()
		return
	}
	user, err := s.store.SessionUser(c.Request.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.logger.WithError(err).Error("look up session")
		}
		fail(c, http.StatusUnauthorized, "Session expired")
		c.Abort()
		return
	}
	c.Set(userKey, user)
	c.Next()
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

func (s *Server) register(c *gin.Context) {
	var req api.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "All fields are required")
		return
	}

	user, err := s.store.CreateUser(c.Request.Context(), req.Name, req.Email, req.Password)
	if errors.Is(err, db.ErrEmailTaken) {
		fail(c, http.StatusBadRequest, "Email already exists")
		return
	}
	if err != nil {
		s.internalError(c, "register", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "User registered successfully", "user": api.NewUserPayload(user)})
}

func (s *Server) login(c *gin.Context) {
	var req api.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Email and password required")
		return
	}

	ctx := c.Request.Context()
	user, err := s.store.Authenticate(ctx, req.Email, req.Password)
	if errors.Is(err, db.ErrInvalidCredentials) {
		fail(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if err != nil {
		s.internalError(c, "login", err)
		return
	}

	sessionID, err := s.store.CreateSession(ctx, user.ID)
	if err != nil {
		s.internalError(c, "create session", err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, sessionID, sessionMaxAge, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful", "user": api.NewUserPayload(user)})
}

func (s *Server) logout(c *gin.Context) {
	if sessionID, err := c.Cookie(sessionCookie); err == nil && sessionID != "" {
		if err := s.store.DeleteSession(c.Request.Context(), sessionID); err != nil {
			s.internalError(c, "logout", err)
			return
		}
	}
	c.SetCookie(sessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (s *Server) checkAuth(c *gin.Context) {
	sessionID, err := c.Cookie(sessionCookie)
	if err == nil && sessionID != "" {
		if user, err := s.store.SessionUser(c.Request.Context(), sessionID); err == nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "authenticated": true, "user": api.NewUserPayload(user)})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "authenticated": false, "message": "Not authenticated"})
}

func (s *Server) listTasks(c *gin.Context) {
	user, ok := s.matchUserParam(c, c.Query("user_id"))
	if !ok {
		return
	}

	query := db.TaskQuery{
		Priority: model.Priority(strings.ToLower(c.Query("priority"))),
		Search:   c.Query("search"),
	}
	switch strings.ToLower(c.Query("completed")) {
	case "true":
		completed := true
		query.Completed = &completed
	case "false":
		completed := false
		query.Completed = &completed
	}

	tasks, err := s.store.ListTasks(c.Request.Context(), user.ID, query)
	if err != nil {
		s.internalError(c, "list tasks", err)
		return
	}
	payloads := make([]api.TaskPayload, 0, len(tasks))
	for _, task := range tasks {
		payloads = append(payloads, api.NewTaskPayload(task))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tasks": payloads, "count": len(payloads)})
}

func (s *Server) createTask(c *gin.Context) {
	fields, err := decodeFields(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, ok := s.matchUserParam(c, rawString(fields["user_id"]))
	if !ok {
		return
	}

	input := db.TaskInput{}
	if err := decodeInto(fields, "title", &input.Title); err != nil || strings.TrimSpace(input.Title) == "" {
		fail(c, http.StatusBadRequest, "Task title is required")
		return
	}
	if _, err := decodeOptionalString(fields, "description", &input.Description); err != nil {
		fail(c, http.StatusBadRequest, "Invalid description")
		return
	}
	var priority string
	if err := decodeInto(fields, "priority", &priority); err != nil {
		fail(c, http.StatusBadRequest, "Invalid priority value")
		return
	}
	input.Priority = model.Priority(priority)
	if _, err := decodeDue(fields, &input.DueDate); err != nil {
		fail(c, http.StatusBadRequest, "Invalid date format. Use YYYY-MM-DD")
		return
	}
	if err := decodeInto(fields, "completed", &input.Completed); err != nil {
		fail(c, http.StatusBadRequest, "Invalid completed value")
		return
	}

	task, err := s.store.CreateTask(c.Request.Context(), user.ID, input)
	if err != nil {
		s.storeError(c, "create task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task created successfully", "task": api.NewTaskPayload(task)})
}

func (s *Server) getTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := s.store.GetTask(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.storeError(c, "get task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": api.NewTaskPayload(task)})
}

func (s *Server) updateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	fields, err := decodeFields(c)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	var patch db.TaskPatch
	if _, present := fields["title"]; present {
		var title string
		if err := decodeInto(fields, "title", &title); err != nil {
			fail(c, http.StatusBadRequest, "Task title cannot be empty")
			return
		}
		patch.Title = &title
	}
	if patch.SetDescription, err = decodeOptionalString(fields, "description", &patch.Description); err != nil {
		fail(c, http.StatusBadRequest, "Invalid description")
		return
	}
	if _, present := fields["priority"]; present {
		var priority string
		if err := decodeInto(fields, "priority", &priority); err != nil {
			fail(c, http.StatusBadRequest, "Invalid priority value")
			return
		}
		value := model.Priority(priority)
		patch.Priority = &value
	}
	if patch.SetDueDate, err = decodeDue(fields, &patch.DueDate); err != nil {
		fail(c, http.StatusBadRequest, "Invalid date format")
		return
	}
	if _, present := fields["completed"]; present {
		var completed bool
		if err := decodeInto(fields, "completed", &completed); err != nil {
			fail(c, http.StatusBadRequest, "Invalid completed value")
			return
		}
		patch.Completed = &completed
	}

	task, err := s.store.UpdateTask(c.Request.Context(), currentUser(c).ID, id, patch)
	if err != nil {
		s.storeError(c, "update task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task updated successfully", "task": api.NewTaskPayload(task)})
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), currentUser(c).ID, id); err != nil {
		s.storeError(c, "delete task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task deleted successfully"})
}

func (s *Server) toggleTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	task, err := s.store.ToggleTask(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		s.storeError(c, "toggle task", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task updated successfully", "completed": task.Completed})
}

func (s *Server) dashboardStats(c *gin.Context) {
	user, ok := s.matchUserParam(c, c.Query("user_id"))
	if !ok {
		return
	}
	tasks, err := s.store.ListTasks(c.Request.Context(), user.ID, db.TaskQuery{})
	if err != nil {
		s.internalError(c, "dashboard stats", err)
		return
	}

	now := time.Now()
	var completed, overdue int
	breakdown := map[string]int{}
	for _, task := range tasks {
		if task.Completed {
			completed++
			continue
		}
		breakdown[string(task.Priority)]++
		if task.DueDate != nil && task.DueDate.Before(now) {
			overdue++
		}
	}
	rate := 0.0
	if len(tasks) > 0 {
		rate = math.Round(float64(completed)/float64(len(tasks))*1000) / 10
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": gin.H{
		"total_tasks":        len(tasks),
		"completed_tasks":    completed,
		"pending_tasks":      len(tasks) - completed,
		"overdue_tasks":      overdue,
		"priority_breakdown": breakdown,
		"completion_rate":    rate,
	}})
}

// matchUserParam requires the user_id parameter the API contract carries and
// checks it against the session's user.
func (s *Server) matchUserParam(c *gin.Context, raw string) (model.User, bool) {
	user := currentUser(c)
	if strings.TrimSpace(raw) == "" {
		fail(c, http.StatusBadRequest, "User ID required")
		return model.User{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "User ID required")
		return model.User{}, false
	}
	if id != user.ID {
		fail(c, http.StatusForbidden, "Forbidden")
		return model.User{}, false
	}
	return user, true
}

func (s *Server) storeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		fail(c, http.StatusNotFound, "Task not found")
	case errors.Is(err, db.ErrEmptyTitle):
		fail(c, http.StatusBadRequest, "Task title cannot be empty")
	case errors.Is(err, db.ErrInvalidPriority):
		fail(c, http.StatusBadRequest, "Invalid priority value")
	default:
		s.internalError(c, op, err)
	}
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.logger.WithError(err).WithField("op", op).Error("request failed")
	fail(c, http.StatusInternalServerError, "Internal server error")
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func currentUser(c *gin.Context) model.User {
	value, _ := c.Get(userKey)
	user, _ := value.(model.User)
	return user
}

func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusNotFound, "Task not found")
		return 0, false
	}
	return id, true
}

type rawFields map[string]json.RawMessage

func decodeFields(c *gin.Context) (rawFields, error) {
	fields := rawFields{}
	if err := json.NewDecoder(c.Request.Body).Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// decodeInto leaves dest untouched for a missing or null key.
func decodeInto(fields rawFields, key string, dest any) error {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dest)
}

// decodeOptionalString reports whether key was present. Null clears.
func decodeOptionalString(fields rawFields, key string, dest **string) (bool, error) {
	raw, ok := fields[key]
	if !ok {
		return false, nil
	}
	if string(raw) == "null" {
		*dest = nil
		return true, nil
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return true, err
	}
	*dest = &value
	return true, nil
}

func decodeDue(fields rawFields, dest **time.Time) (bool, error) {
	var value *string
	present, err := decodeOptionalString(fields, "due_date", &value)
	if err != nil || !present {
		return present, err
	}
	if value == nil || strings.TrimSpace(*value) == "" {
		*dest = nil
		return true, nil
	}
	parsed, err := model.ParseTimestamp(*value)
	if err != nil {
		return true, err
	}
	*dest = &parsed
	return true, nil
}

// rawString reads a JSON number or string as text.
func rawString(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}
