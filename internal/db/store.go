package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidPriority    = errors.New("invalid priority value")
	ErrEmptyTitle         = errors.New("task title cannot be empty")
)

// Store backs the development task API: users, login sessions and tasks.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

type TaskInput struct {
	Title       string
	Description *string
	Priority    model.Priority
	DueDate     *time.Time
	Completed   bool
}

// TaskPatch carries a partial update. Description and DueDate are applied
// only when their Set flag is true, so they can be cleared to null.
type TaskPatch struct {
	Title          *string
	SetDescription bool
	Description    *string
	Priority       *model.Priority
	SetDueDate     bool
	DueDate        *time.Time
	Completed      *bool
}

type TaskQuery struct {
	Completed *bool
	Priority  model.Priority
	Search    string
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, Now: time.Now}
}

func (s *Store) CreateUser(ctx context.Context, name, email, password string) (model.User, error) {
	email = normalizeEmail(email)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}

	var exists int
	err = s.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE email = ?", email).Scan(&exists)
	if err == nil {
		return model.User{}, ErrEmailTaken
	}
	if err != sql.ErrNoRows {
		return model.User{}, err
	}

	result, err := s.DB.ExecContext(ctx, "INSERT INTO users (email, password, name) VALUES (?, ?, ?)", email, string(hash), strings.TrimSpace(name))
	if err != nil {
		return model.User{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{ID: id, Name: strings.TrimSpace(name), Email: email}, nil
}

func (s *Store) Authenticate(ctx context.Context, email, password string) (model.User, error) {
	var user model.User
	var hash string
	err := s.DB.QueryRowContext(ctx, "SELECT id, name, email, password FROM users WHERE email = ?", normalizeEmail(email)).
		Scan(&user.ID, &user.Name, &user.Email, &hash)
	if err == sql.ErrNoRows {
		return model.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return model.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return model.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Store) CreateSession(ctx context.Context, userID int64) (string, error) {
	id := uuid.NewString()
	if _, err := s.DB.ExecContext(ctx, "INSERT INTO sessions (id, user_id) VALUES (?, ?)", id, userID); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) SessionUser(ctx context.Context, sessionID string) (model.User, error) {
	var user model.User
	err := s.DB.QueryRowContext(ctx, `SELECT u.id, u.name, u.email FROM sessions s
		JOIN users u ON u.id = s.user_id WHERE s.id = ?`, sessionID).Scan(&user.ID, &user.Name, &user.Email)
	if err == sql.ErrNoRows {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return user, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

func (s *Store) CreateTask(ctx context.Context, userID int64, input TaskInput) (model.Task, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Task{}, ErrEmptyTitle
	}
	priority, err := normalizePriority(input.Priority)
	if err != nil {
		return model.Task{}, err
	}

	now := s.Now().UTC()
	var completedAt sql.NullTime
	if input.Completed {
		completedAt = sql.NullTime{Time: now, Valid: true}
	}

	result, err := s.DB.ExecContext(ctx, `INSERT INTO tasks
		(user_id, title, description, due_date, priority, completed, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID, title, nullString(input.Description), nullTime(input.DueDate), string(priority), input.Completed, completedAt, now, now)
	if err != nil {
		return model.Task{}, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Task{}, err
	}

	return s.GetTask(ctx, userID, id)
}

func (s *Store) UpdateTask(ctx context.Context, userID, taskID int64, patch TaskPatch) (model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return model.Task{}, err
	}

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return model.Task{}, ErrEmptyTitle
		}
		task.Title = title
	}
	if patch.SetDescription {
		task.Description = normalizeDescription(patch.Description)
	}
	if patch.Priority != nil {
		priority, err := normalizePriority(*patch.Priority)
		if err != nil {
			return model.Task{}, err
		}
		task.Priority = priority
	}
	if patch.SetDueDate {
		task.DueDate = patch.DueDate
	}
	now := s.Now().UTC()
	if patch.Completed != nil && *patch.Completed != task.Completed {
		task.Completed = *patch.Completed
		task.CompletedAt = completionTime(task.Completed, now)
	}

	if err := s.writeTask(ctx, task, now); err != nil {
		return model.Task{}, err
	}
	return s.GetTask(ctx, userID, taskID)
}

// ToggleTask flips completion and stamps or clears completed_at.
func (s *Store) ToggleTask(ctx context.Context, userID, taskID int64) (model.Task, error) {
	task, err := s.GetTask(ctx, userID, taskID)
	if err != nil {
		return model.Task{}, err
	}

	now := s.Now().UTC()
	task.Completed = !task.Completed
	task.CompletedAt = completionTime(task.Completed, now)
	if err := s.writeTask(ctx, task, now); err != nil {
		return model.Task{}, err
	}
	return s.GetTask(ctx, userID, taskID)
}

func (s *Store) DeleteTask(ctx context.Context, userID, taskID int64) error {
	result, err := s.DB.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", taskID, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, userID, taskID int64) (model.Task, error) {
	row := s.DB.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ? AND user_id = ?", taskID, userID)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return model.Task{}, ErrNotFound
	}
	return task, err
}

// ListTasks returns a user's tasks ordered by due date (undated last), then
// priority high to low.
func (s *Store) ListTasks(ctx context.Context, userID int64, query TaskQuery) ([]model.Task, error) {
	clauses := []string{"user_id = ?"}
	args := []any{userID}

	if query.Completed != nil {
		clauses = append(clauses, "completed = ?")
		args = append(args, *query.Completed)
	}
	if query.Priority != "" {
		if priority, err := model.ParsePriority(string(query.Priority)); err == nil {
			clauses = append(clauses, "priority = ?")
			args = append(args, string(priority))
		}
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}

	rows, err := s.DB.QueryContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE "+strings.Join(clauses, " AND ")+`
		ORDER BY CASE WHEN due_date IS NULL THEN 1 ELSE 0 END, due_date ASC,
		CASE priority WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END, id ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

const taskColumns = "id, user_id, title, description, due_date, priority, completed, completed_at, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (model.Task, error) {
	var task model.Task
	var description sql.NullString
	var dueDate, completedAt sql.NullTime
	var createdAt, updatedAt time.Time
	var priority string

	if err := row.Scan(&task.ID, &task.UserID, &task.Title, &description, &dueDate, &priority, &task.Completed, &completedAt, &createdAt, &updatedAt); err != nil {
		return model.Task{}, err
	}

	task.Priority = model.Priority(priority)
	if description.Valid {
		task.Description = &description.String
	}
	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	task.CreatedAt = &createdAt
	task.UpdatedAt = &updatedAt
	return task, nil
}

func (s *Store) writeTask(ctx context.Context, task model.Task, now time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, due_date = ?, priority = ?,
		completed = ?, completed_at = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		task.Title, nullString(task.Description), nullTime(task.DueDate), string(task.Priority),
		task.Completed, nullTime(task.CompletedAt), now, task.ID, task.UserID)
	if err != nil {
		return fmt.Errorf("update task %d: %w", task.ID, err)
	}
	return nil
}

func completionTime(completed bool, now time.Time) *time.Time {
	if !completed {
		return nil
	}
	return &now
}

func normalizePriority(priority model.Priority) (model.Priority, error) {
	if priority == "" {
		return model.PriorityMedium, nil
	}
	parsed, err := model.ParsePriority(string(priority))
	if err != nil {
		return "", ErrInvalidPriority
	}
	return parsed, nil
}

func normalizeDescription(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(value *string) sql.NullString {
	value = normalizeDescription(value)
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
