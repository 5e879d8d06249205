package tui

import (
	"fmt"
	"strings"

	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/Joseda-hg/taskdeck/internal/render"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

func colorize(color, text string) string {
	if color == "" || text == "" {
		return text
	}
	return color + text + ansiReset
}

func priorityColor(priority model.Priority) string {
	switch priority {
	case model.PriorityHigh:
		return ansiRed
	case model.PriorityMedium:
		return ansiYellow
	case model.PriorityLow:
		return ansiGreen
	}
	return ""
}

func checkbox(completed bool) string {
	if completed {
		return "[x]"
	}
	return "[ ]"
}

// formatTaskRow is one line of the task list:
// checkbox, priority, title, then the due date with its relative form.
func formatTaskRow(item render.Item) string {
	title := item.Task.Title
	if item.Task.Completed {
		title = colorize(ansiDim, title)
	}

	due := item.DueLabel
	if item.DueRelative != "" {
		due = fmt.Sprintf("%s (%s)", due, item.DueRelative)
	}
	if item.Overdue {
		due = colorize(ansiRed, due)
	}

	priority := fmt.Sprintf("%-6s", item.PriorityLabel)
	return fmt.Sprintf("%s %s %s | %s", checkbox(item.Task.Completed), colorize(priorityColor(item.Task.Priority), priority), title, due)
}

// formatDescription is the indented second line shown under the selected row.
func formatDescription(task model.Task) string {
	if task.Description == nil {
		return ""
	}
	text := strings.TrimSpace(*task.Description)
	if text == "" {
		return ""
	}
	return "      " + colorize(ansiDim, strings.ReplaceAll(text, "\n", " "))
}

func formatSummary(summary render.Summary) string {
	return fmt.Sprintf("Total %d | Completed %d | Pending %d | Overdue %d | %.1f%% done",
		summary.Total, summary.Completed, summary.Pending, summary.Overdue, summary.CompletionRate())
}

// formatFilterTabs marks the active filter, numbered by its key.
func formatFilterTabs(active model.Filter) string {
	parts := make([]string, 0, len(model.Filters))
	for i, filter := range model.Filters {
		label := fmt.Sprintf("%d %s", i+1, filter.Label())
		if filter == active {
			label = colorize(ansiBlue, "["+label+"]")
		}
		parts = append(parts, label)
	}
	return strings.Join(parts, "  ")
}
