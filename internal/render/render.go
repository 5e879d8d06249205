// Package render derives display fields for a task list. Nothing here keeps
// state; every function is a pure transformation of its inputs.
package render

import (
	"math"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const DueLayout = "Mon, Jan 2, 2006"

type Item struct {
	Task          model.Task
	PriorityLabel string
	DueLabel      string
	DueRelative   string
	Overdue       bool
}

type Summary struct {
	Total     int
	Completed int
	Pending   int
	Overdue   int
}

// CompletionRate is the completed share in percent, rounded to one decimal.
func (s Summary) CompletionRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return math.Round(float64(s.Completed)/float64(s.Total)*1000) / 10
}

type List struct {
	Items   []Item
	Summary Summary
	Empty   bool
}

// Render keeps the input order.
func Render(tasks []model.Task, now time.Time) List {
	list := List{Items: make([]Item, 0, len(tasks))}
	for _, task := range tasks {
		item := RenderItem(task, now)
		list.Items = append(list.Items, item)

		list.Summary.Total++
		if task.Completed {
			list.Summary.Completed++
		}
		if item.Overdue {
			list.Summary.Overdue++
		}
	}
	list.Summary.Pending = list.Summary.Total - list.Summary.Completed
	list.Empty = len(list.Items) == 0
	return list
}

func RenderItem(task model.Task, now time.Time) Item {
	item := Item{
		Task:          task,
		PriorityLabel: PriorityLabel(task.Priority),
		Overdue:       IsOverdue(task, now),
		DueLabel:      "No due date",
	}
	if task.DueDate != nil {
		due := task.DueDate.In(now.Location())
		item.DueLabel = due.Format(DueLayout)
		if item.Overdue {
			item.DueLabel = "Overdue: " + item.DueLabel
		}
		item.DueRelative = humanize.RelTime(due, now, "ago", "from now")
	}
	return item
}

// IsOverdue is true for a pending task whose due date is already past.
func IsOverdue(task model.Task, now time.Time) bool {
	return task.DueDate != nil && !task.Completed && task.DueDate.Before(now)
}

func PriorityLabel(priority model.Priority) string {
	if priority == "" {
		return ""
	}
	// Casers are stateful: one per call.
	return cases.Title(language.English).String(string(priority))
}

// Apply narrows tasks to what filter shows. Only the today filter narrows on
// the client; the others are answered by the list query.
func Apply(filter model.Filter, tasks []model.Task, now time.Time) []model.Task {
	if filter != model.FilterToday {
		return tasks
	}
	result := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if filter.Matches(task, now) {
			result = append(result, task)
		}
	}
	return result
}
