// Package api is the typed HTTP client for the task API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const DefaultTimeout = 10 * time.Second

type Options struct {
	Timeout    time.Duration
	Logger     *logrus.Logger
	Metrics    *Metrics
	HTTPClient *http.Client
}

// Client issues one request per call and never retries. Session cookies set
// by the API are kept in the client's cookie jar.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	logger  *logrus.Logger
	metrics *Metrics
}

func NewClient(baseURL string, opts Options) (*Client, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("api url %q must be absolute", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL: parsed.String(),
		http:    httpClient,
		timeout: timeout,
		logger:  logger,
		metrics: opts.Metrics,
	}, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (model.User, error) {
	var resp userResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return model.User{}, err
	}
	return resp.User.ToModel(), nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) (model.User, error) {
	var resp userResponse
	if err := c.do(ctx, "register", http.MethodPost, "/register", RegisterRequest{Name: name, Email: email, Password: password}, &resp); err != nil {
		return model.User{}, err
	}
	return resp.User.ToModel(), nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/logout", nil, nil)
}

func (c *Client) ListTasks(ctx context.Context, userID int64, filter model.Filter) ([]model.Task, error) {
	query := url.Values{}
	query.Set("user_id", strconv.FormatInt(userID, 10))
	if completed := filter.CompletedParam(); completed != "" {
		query.Set("completed", completed)
	}

	var resp tasksResponse
	if err := c.do(ctx, "list_tasks", http.MethodGet, "/tasks?"+query.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(resp.Tasks))
	for _, payload := range resp.Tasks {
		tasks = append(tasks, payload.ToModel())
	}
	return tasks, nil
}

func (c *Client) CreateTask(ctx context.Context, userID int64, fields model.TaskFields) (model.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, "create_task", http.MethodPost, "/tasks", newTaskRequest(userID, fields), &resp); err != nil {
		return model.Task{}, err
	}
	return resp.Task.ToModel(), nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, fields model.TaskFields) (model.Task, error) {
	var resp taskResponse
	if err := c.do(ctx, "update_task", http.MethodPut, taskPath(id), newTaskRequest(0, fields), &resp); err != nil {
		return model.Task{}, err
	}
	return resp.Task.ToModel(), nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, "delete_task", http.MethodDelete, taskPath(id), nil, nil)
}

// ToggleTask flips a task's completion and returns the new state.
func (c *Client) ToggleTask(ctx context.Context, id int64) (bool, error) {
	var resp toggleResponse
	if err := c.do(ctx, "toggle_task", http.MethodPut, taskPath(id)+"/toggle", nil, &resp); err != nil {
		return false, err
	}
	return resp.Completed, nil
}

func taskPath(id int64) string {
	return "/tasks/" + strconv.FormatInt(id, 10)
}

// do sends one request. Any failure comes back as *Error; out is decoded
// only from a successful response.
func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	requestID := uuid.NewString()
	logEntry := c.logger.WithFields(logrus.Fields{
		"component":  "api_client",
		"op":         op,
		"request_id": requestID,
	})
	start := time.Now()

	status, err := c.send(ctx, method, path, requestID, body, out)

	duration := time.Since(start)
	logEntry = logEntry.WithFields(logrus.Fields{
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})

	outcome := outcomeOK
	switch {
	case err == nil:
		logEntry.Debug("api call succeeded")
	case err.Network():
		outcome = outcomeNetwork
		logEntry.Warn("api call failed to complete")
	case err.Status == http.StatusUnauthorized:
		outcome = outcomeUnauthorized
		logEntry.Info("api call unauthorized")
	default:
		outcome = outcomeError
		logEntry.WithField("error", err.Message).Info("api call rejected")
	}
	c.metrics.observe(op, outcome, duration.Seconds())

	if err != nil {
		return err
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path, requestID string, body, out any) (int, *Error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, networkError()
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, networkError()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, networkError()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, networkError()
	}

	var env envelope
	decodeErr := json.Unmarshal(data, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := env.Error
		if decodeErr != nil || message == "" {
			message = fmt.Sprintf("Request failed (%d %s)", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return resp.StatusCode, &Error{Message: message, Status: resp.StatusCode}
	}
	if decodeErr != nil {
		return resp.StatusCode, networkError()
	}
	if env.Success != nil && !*env.Success {
		message := env.Error
		if message == "" {
			message = "Request failed"
		}
		return resp.StatusCode, &Error{Message: message, Status: resp.StatusCode}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, networkError()
		}
	}
	return resp.StatusCode, nil
}
