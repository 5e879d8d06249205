package model

import (
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func ParsePriority(value string) (Priority, error) {
	switch Priority(strings.TrimSpace(strings.ToLower(value))) {
	case PriorityLow:
		return PriorityLow, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityHigh:
		return PriorityHigh, nil
	}
	return "", fmt.Errorf("invalid priority %q", value)
}

type Task struct {
	ID          int64
	UserID      int64
	Title       string
	Description *string
	Priority    Priority
	DueDate     *time.Time
	Completed   bool
	CompletedAt *time.Time
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
}

// TaskFields is the editable part of a task, sent on create and update.
type TaskFields struct {
	Title       string
	Description *string
	Priority    Priority
	DueDate     *time.Time
}

func FieldsFromTask(task Task) TaskFields {
	return TaskFields{
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		DueDate:     task.DueDate,
	}
}

type User struct {
	ID    int64
	Name  string
	Email string
}

type Session struct {
	UserID    string
	UserName  string
	UserEmail string
}

func (s Session) Authenticated() bool {
	return s.UserID != ""
}

type Filter string

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
	FilterToday     Filter = "today"
)

var Filters = []Filter{FilterAll, FilterPending, FilterCompleted, FilterToday}

// CompletedParam is the value of the completed query parameter for the
// filter, or "" when the parameter is omitted.
func (f Filter) CompletedParam() string {
	switch f {
	case FilterPending:
		return "false"
	case FilterCompleted:
		return "true"
	default:
		return ""
	}
}

// Matches reports whether a task belongs to the filter's rendered subset.
func (f Filter) Matches(task Task, now time.Time) bool {
	switch f {
	case FilterPending:
		return !task.Completed
	case FilterCompleted:
		return task.Completed
	case FilterToday:
		if task.DueDate == nil {
			return false
		}
		due := task.DueDate.In(now.Location())
		y1, m1, d1 := due.Date()
		y2, m2, d2 := now.Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	default:
		return true
	}
}

func (f Filter) Label() string {
	switch f {
	case FilterPending:
		return "Pending"
	case FilterCompleted:
		return "Completed"
	case FilterToday:
		return "Today"
	default:
		return "All"
	}
}

func StringPtr(value string) *string {
	return &value
}
