package tui

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
)

type formField struct {
	Label  string
	Value  string
	Secret bool
	Choice bool
}

// display is the field value as drawn; secrets are masked.
func (f formField) display() string {
	if f.Secret {
		return strings.Repeat("*", len([]rune(f.Value)))
	}
	return f.Value
}

const (
	fieldTitle = iota
	fieldDescription
	fieldPriority
	fieldDue
)

const dueInputLayout = "2006-01-02"

var dueInputLayouts = []string{"2006-01-02 15:04", dueInputLayout}

func buildTaskFields(task *model.Task) []formField {
	fields := []formField{
		{Label: "Title"},
		{Label: "Description"},
		{Label: "Priority (space/←→)", Choice: true, Value: string(model.PriorityMedium)},
		{Label: "Due (YYYY-MM-DD [HH:MM])"},
	}
	if task == nil {
		return fields
	}

	current := model.FieldsFromTask(*task)
	fields[fieldTitle].Value = current.Title
	if current.Description != nil {
		fields[fieldDescription].Value = *current.Description
	}
	if current.Priority != "" {
		fields[fieldPriority].Value = string(current.Priority)
	}
	if current.DueDate != nil {
		due := current.DueDate.In(time.Local)
		if due.Hour() == 0 && due.Minute() == 0 {
			fields[fieldDue].Value = due.Format(dueInputLayout)
		} else {
			fields[fieldDue].Value = due.Format(dueInputLayouts[0])
		}
	}
	return fields
}

// parseTaskFields turns modal input into the full field set sent on create
// and update. An empty description is sent as null.
func parseTaskFields(fields []formField) (model.TaskFields, error) {
	priority, err := model.ParsePriority(fields[fieldPriority].Value)
	if err != nil {
		return model.TaskFields{}, fmt.Errorf("priority must be low, medium or high")
	}

	due, err := parseDue(fields[fieldDue].Value)
	if err != nil {
		return model.TaskFields{}, err
	}

	result := model.TaskFields{
		Title:    strings.TrimSpace(fields[fieldTitle].Value),
		Priority: priority,
		DueDate:  due,
	}
	if description := strings.TrimSpace(fields[fieldDescription].Value); description != "" {
		result.Description = &description
	}
	return result, nil
}

func parseDue(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	for _, layout := range dueInputLayouts {
		if parsed, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid due date, use YYYY-MM-DD")
}

func cyclePriority(current string, delta int) string {
	index := 0
	for i, priority := range model.Priorities {
		if string(priority) == current {
			index = i
			break
		}
	}
	count := len(model.Priorities)
	return string(model.Priorities[((index+delta)%count+count)%count])
}

const (
	loginEmail = iota
	loginPassword
)

const (
	registerName = iota
	registerEmail
	registerPassword
	registerConfirm
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func buildLoginFields(email string) []formField {
	return []formField{
		{Label: "Email", Value: email},
		{Label: "Password", Secret: true},
	}
}

func buildRegisterFields() []formField {
	return []formField{
		{Label: "Name"},
		{Label: "Email"},
		{Label: "Password", Secret: true},
		{Label: "Confirm password", Secret: true},
	}
}

// validateLogin returns the problem to show, or "".
func validateLogin(fields []formField) string {
	email := strings.TrimSpace(fields[loginEmail].Value)
	if email == "" || fields[loginPassword].Value == "" {
		return "Please fill in all fields"
	}
	if !emailPattern.MatchString(email) {
		return "Please enter a valid email address"
	}
	return ""
}

func validateRegister(fields []formField) string {
	name := strings.TrimSpace(fields[registerName].Value)
	email := strings.TrimSpace(fields[registerEmail].Value)
	password := fields[registerPassword].Value
	if name == "" || email == "" || password == "" || fields[registerConfirm].Value == "" {
		return "Please fill in all fields"
	}
	if len([]rune(name)) < 2 {
		return "Name must be at least 2 characters"
	}
	if !emailPattern.MatchString(email) {
		return "Please enter a valid email address"
	}
	if len(password) < 6 {
		return "Password must be at least 6 characters"
	}
	if password != fields[registerConfirm].Value {
		return "Passwords do not match"
	}
	return ""
}
