package api

import (
	"strings"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

// Wire types of the task API. The dev server encodes with the same types.

type envelope struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
}

type UserPayload struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func NewUserPayload(user model.User) UserPayload {
	return UserPayload{ID: user.ID, Name: user.Name, Email: user.Email}
}

func (u UserPayload) ToModel() model.User {
	return model.User{ID: u.ID, Name: u.Name, Email: u.Email}
}

type TaskPayload struct {
	ID          int64            `json:"id"`
	UserID      int64            `json:"user_id"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	DueDate     *model.Timestamp `json:"due_date"`
	Priority    string           `json:"priority"`
	Completed   bool             `json:"completed"`
	CompletedAt *model.Timestamp `json:"completed_at,omitempty"`
	CreatedAt   *model.Timestamp `json:"created_at,omitempty"`
	UpdatedAt   *model.Timestamp `json:"updated_at,omitempty"`
}

func NewTaskPayload(task model.Task) TaskPayload {
	return TaskPayload{
		ID:          task.ID,
		UserID:      task.UserID,
		Title:       task.Title,
		Description: task.Description,
		DueDate:     model.TimestampOf(task.DueDate),
		Priority:    string(task.Priority),
		Completed:   task.Completed,
		CompletedAt: model.TimestampOf(task.CompletedAt),
		CreatedAt:   model.TimestampOf(task.CreatedAt),
		UpdatedAt:   model.TimestampOf(task.UpdatedAt),
	}
}

func (t TaskPayload) ToModel() model.Task {
	task := model.Task{
		ID:          t.ID,
		UserID:      t.UserID,
		Title:       t.Title,
		Description: t.Description,
		Priority:    model.Priority(strings.ToLower(t.Priority)),
		DueDate:     t.DueDate.Ptr(),
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt.Ptr(),
		CreatedAt:   t.CreatedAt.Ptr(),
		UpdatedAt:   t.UpdatedAt.Ptr(),
	}
	if task.Priority == "" {
		task.Priority = model.PriorityMedium
	}
	return task
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// taskRequest always carries description and due_date so an edit can clear them.
type taskRequest struct {
	UserID      int64            `json:"user_id,omitempty"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Priority    string           `json:"priority"`
	DueDate     *model.Timestamp `json:"due_date"`
}

func newTaskRequest(userID int64, fields model.TaskFields) taskRequest {
	return taskRequest{
		UserID:      userID,
		Title:       fields.Title,
		Description: fields.Description,
		Priority:    string(fields.Priority),
		DueDate:     model.TimestampOf(fields.DueDate),
	}
}

type userResponse struct {
	User UserPayload `json:"user"`
}

type taskResponse struct {
	Task TaskPayload `json:"task"`
}

type tasksResponse struct {
	Tasks []TaskPayload `json:"tasks"`
}

type toggleResponse struct {
	Completed bool `json:"completed"`
}
