// Package cache owns the client's mirror of the user's tasks. The mirror only
// changes after the API confirms a change, and is re-fetched wholesale after
// every create, update and toggle.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/sirupsen/logrus"
)

// ErrUnauthenticated means the session is missing, was rejected by the API,
// or ended while the request was in flight. No session is left when it is
// returned.
var ErrUnauthenticated = errors.New("your session has expired, please sign in again")

type Gateway interface {
	ListTasks(ctx context.Context, userID int64, filter model.Filter) ([]model.Task, error)
	CreateTask(ctx context.Context, userID int64, fields model.TaskFields) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, fields model.TaskFields) (model.Task, error)
	DeleteTask(ctx context.Context, id int64) error
	ToggleTask(ctx context.Context, id int64) (bool, error)
}

type Session interface {
	UserID(ctx context.Context) (string, bool)
	Clear(ctx context.Context) error
}

// ValidationError is a locally detected problem with task fields.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RefreshError reports a confirmed change whose follow-up refresh failed.
// The change itself was applied by the API.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("saved, but the task list could not be refreshed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

type Cache struct {
	gateway Gateway
	session Session
	logger  *logrus.Entry

	mu      sync.Mutex
	tasks   []model.Task
	filter  model.Filter
	pending int
	gen     int
}

// stamp identifies the session a request was issued for. Reset starts a new
// generation, so answers for an ended session can be told apart.
type stamp struct {
	gen    int
	userID int64
}

func New(gateway Gateway, session Session, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Cache{
		gateway: gateway,
		session: session,
		logger:  logger.WithField("component", "task_cache"),
		filter:  model.FilterAll,
	}
}

// Validate checks fields before anything is sent.
func Validate(fields model.TaskFields) error {
	if strings.TrimSpace(fields.Title) == "" {
		return &ValidationError{Field: "title", Message: "Task title is required"}
	}
	if fields.Priority != "" {
		if _, err := model.ParsePriority(string(fields.Priority)); err != nil {
			return &ValidationError{Field: "priority", Message: "Priority must be low, medium or high"}
		}
	}
	return nil
}

// Refresh replaces the mirror with the API's list for filter.
func (c *Cache) Refresh(ctx context.Context, filter model.Filter) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	issued := c.begin(userID)
	tasks, err := c.gateway.ListTasks(ctx, userID, filter)
	c.end()
	if !c.current(ctx, issued) {
		return c.ended("refresh")
	}
	if err != nil {
		return c.fail(ctx, "refresh", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != issued.gen {
		return c.ended("refresh")
	}
	c.tasks = append([]model.Task(nil), tasks...)
	c.filter = filter
	return nil
}

func (c *Cache) Create(ctx context.Context, fields model.TaskFields) error {
	if err := Validate(fields); err != nil {
		return err
	}
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	fields.Title = strings.TrimSpace(fields.Title)
	issued := c.begin(userID)
	_, err = c.gateway.CreateTask(ctx, userID, fields)
	c.end()
	if !c.current(ctx, issued) {
		return c.ended("create")
	}
	if err != nil {
		return c.fail(ctx, "create", err)
	}
	return c.refreshAfter(ctx)
}

func (c *Cache) Update(ctx context.Context, id int64, fields model.TaskFields) error {
	if err := Validate(fields); err != nil {
		return err
	}
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	fields.Title = strings.TrimSpace(fields.Title)
	issued := c.begin(userID)
	_, err = c.gateway.UpdateTask(ctx, id, fields)
	c.end()
	if !c.current(ctx, issued) {
		return c.ended("update")
	}
	if err != nil {
		return c.fail(ctx, "update", err)
	}
	return c.refreshAfter(ctx)
}

func (c *Cache) Toggle(ctx context.Context, id int64) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	issued := c.begin(userID)
	_, err = c.gateway.ToggleTask(ctx, id)
	c.end()
	if !c.current(ctx, issued) {
		return c.ended("toggle")
	}
	if err != nil {
		return c.fail(ctx, "toggle", err)
	}
	return c.refreshAfter(ctx)
}

// Remove deletes a task and drops it from the mirror without a refresh. A
// task the API no longer has counts as removed.
func (c *Cache) Remove(ctx context.Context, id int64) error {
	userID, err := c.userID(ctx)
	if err != nil {
		return err
	}

	issued := c.begin(userID)
	err = c.gateway.DeleteTask(ctx, id)
	c.end()
	if !c.current(ctx, issued) {
		return c.ended("remove")
	}
	if err != nil && !api.IsNotFound(err) {
		return c.fail(ctx, "remove", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != issued.gen {
		return c.ended("remove")
	}
	for i, task := range c.tasks {
		if task.ID == id {
			c.tasks = append(c.tasks[:i:i], c.tasks[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot returns a copy of the mirror.
func (c *Cache) Snapshot() []model.Task {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Task(nil), c.tasks...)
}

func (c *Cache) Task(id int64) (model.Task, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, task := range c.tasks {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

func (c *Cache) Filter() model.Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Pending is the number of API calls currently in flight.
func (c *Cache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Reset empties the mirror and returns the filter to all, as on sign-out.
// Requests still in flight are discarded when they return.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.tasks = nil
	c.filter = model.FilterAll
}

func (c *Cache) refreshAfter(ctx context.Context) error {
	err := c.Refresh(ctx, c.Filter())
	if err == nil || errors.Is(err, ErrUnauthenticated) {
		return err
	}
	return &RefreshError{Err: err}
}

func (c *Cache) userID(ctx context.Context) (int64, error) {
	value, ok := c.session.UserID(ctx)
	if !ok {
		return 0, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		c.logger.WithField("user_id", value).Warn("stored user id is not numeric")
		c.clearSession(ctx)
		return 0, ErrUnauthenticated
	}
	return id, nil
}

func (c *Cache) fail(ctx context.Context, op string, err error) error {
	if api.IsUnauthorized(err) {
		c.logger.WithField("op", op).Info("session rejected by api")
		c.clearSession(ctx)
		return ErrUnauthenticated
	}
	c.logger.WithError(err).WithField("op", op).Warn("task operation failed")
	return err
}

func (c *Cache) clearSession(ctx context.Context) {
	if err := c.session.Clear(ctx); err != nil {
		c.logger.WithError(err).Error("clear session")
	}
	c.Reset()
}

func (c *Cache) begin(userID int64) stamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
	return stamp{gen: c.gen, userID: userID}
}

// current reports whether the request stamped with issued still belongs to
// the signed-in session.
func (c *Cache) current(ctx context.Context, issued stamp) bool {
	value, ok := c.session.UserID(ctx)
	if !ok || value != strconv.FormatInt(issued.userID, 10) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == issued.gen
}

// ended drops the answer to a request whose session is gone. The mirror and
// the session are left as they are.
func (c *Cache) ended(op string) error {
	c.logger.WithField("op", op).Debug("dropped response for an ended session")
	return ErrUnauthenticated
}

func (c *Cache) end() {
	c.mu.Lock()
	c.pending--
	c.mu.Unlock()
}
