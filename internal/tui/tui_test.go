package tui

import (
	"context"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/cache"
	"github.com/Joseda-hg/taskdeck/internal/db"
	"github.com/Joseda-hg/taskdeck/internal/logging"
	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/Joseda-hg/taskdeck/internal/render"
	"github.com/Joseda-hg/taskdeck/internal/session"
	"github.com/Joseda-hg/taskdeck/internal/web"
	"github.com/jesseduffield/gocui"
)

// queueRunner holds work until flush, so tests can observe in-flight state.
type queueRunner struct {
	jobs []func() func()
}

func (r *queueRunner) Go(work func() func()) {
	r.jobs = append(r.jobs, work)
}

// take removes the oldest queued job without running it.
func (r *queueRunner) take() func() func() {
	job := r.jobs[0]
	r.jobs = r.jobs[1:]
	return job
}

func (r *queueRunner) flush() {
	for len(r.jobs) > 0 {
		job := r.jobs[0]
		r.jobs = r.jobs[1:]
		if apply := job(); apply != nil {
			apply()
		}
	}
}

type harness struct {
	ctrl     *Controller
	runner   *queueRunner
	client   *api.Client
	sessions *session.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	logger := logging.Discard()

	server := httptest.NewServer(web.NewServer(db.NewStore(conn), logger).Handler())
	t.Cleanup(func() {
		server.Close()
		_ = conn.Close()
	})

	client, err := api.NewClient(server.URL+"/api", api.Options{Logger: logger})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Register(context.Background(), "Ada", "ada@example.com", "secret"); err != nil {
		t.Fatalf("register: %v", err)
	}

	sessions := session.NewStore(session.NewMemoryKV())
	runner := &queueRunner{}
	ctrl := NewController(Deps{
		Cache:    cache.New(client, sessions, logger),
		Sessions: sessions,
		Auth:     client,
		Logger:   logger,
	}, runner, nil)

	return &harness{ctrl: ctrl, runner: runner, client: client, sessions: sessions}
}

func (h *harness) typeText(text string) {
	for _, ch := range text {
		h.ctrl.TypeRune(ch)
	}
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	h.ctrl.Start()
	h.typeText("ada@example.com")
	h.ctrl.MoveField(1)
	h.typeText("secret")
	h.ctrl.SubmitLogin()
	h.runner.flush()
	if h.ctrl.screen != ScreenDashboard {
		t.Fatalf("expected dashboard after login, got screen %d (%s)", h.ctrl.screen, h.ctrl.login.err)
	}
}

func (h *harness) createTask(t *testing.T, title string) model.Task {
	t.Helper()
	value, _ := h.sessions.UserID(context.Background())
	userID, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		t.Fatalf("stored user id %q: %v", value, err)
	}
	task, err := h.client.CreateTask(context.Background(), userID, model.TaskFields{Title: title, Priority: model.PriorityHigh})
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	h.ctrl.Reload()
	h.runner.flush()
	return task
}

func TestLoginOpensDashboard(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	current, ok := h.sessions.Current(context.Background())
	if !ok || current.UserName != "Ada" || current.UserEmail != "ada@example.com" {
		t.Fatalf("expected stored session for Ada, got %+v", current)
	}
	if h.ctrl.user.UserName != "Ada" {
		t.Fatalf("expected controller user Ada, got %q", h.ctrl.user.UserName)
	}
	if !h.ctrl.view.Empty {
		t.Fatalf("expected empty task list for a new account")
	}
	if text, _ := h.ctrl.notes.current(); text != "Login successful!" {
		t.Fatalf("expected login notification, got %q", text)
	}
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()

	h.ctrl.SubmitLogin()
	if h.ctrl.login.err != "Please fill in all fields" {
		t.Fatalf("expected presence error, got %q", h.ctrl.login.err)
	}

	h.typeText("not-an-email")
	h.ctrl.MoveField(1)
	h.typeText("secret")
	h.ctrl.SubmitLogin()
	if h.ctrl.login.err != "Please enter a valid email address" {
		t.Fatalf("expected email error, got %q", h.ctrl.login.err)
	}
	if len(h.runner.jobs) != 0 {
		t.Fatalf("expected no request for invalid input, got %d jobs", len(h.runner.jobs))
	}
}

func TestLoginRejectedShowsServerMessage(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.typeText("ada@example.com")
	h.ctrl.MoveField(1)
	h.typeText("wrong-password")

	h.ctrl.SubmitLogin()
	if !h.ctrl.login.busy {
		t.Fatalf("expected login form busy while in flight")
	}
	h.ctrl.SubmitLogin()
	if len(h.runner.jobs) != 1 {
		t.Fatalf("expected one login request, got %d", len(h.runner.jobs))
	}
	h.runner.flush()

	if h.ctrl.screen != ScreenLogin {
		t.Fatalf("expected to stay on login")
	}
	if h.ctrl.login.err != "Invalid email or password" {
		t.Fatalf("expected server message, got %q", h.ctrl.login.err)
	}
	if h.sessions.IsAuthenticated(context.Background()) {
		t.Fatalf("expected no session after rejected login")
	}
}

func TestRegisterReturnsToLoginWithEmail(t *testing.T) {
	h := newHarness(t)
	h.ctrl.Start()
	h.ctrl.ShowRegister()

	h.typeText("Grace")
	h.ctrl.MoveField(1)
	h.typeText("grace@example.com")
	h.ctrl.MoveField(1)
	h.typeText("secret")
	h.ctrl.MoveField(1)
	h.typeText("secreT")
	h.ctrl.SubmitRegister()
	if h.ctrl.register.err != "Passwords do not match" {
		t.Fatalf("expected mismatch error, got %q", h.ctrl.register.err)
	}

	h.ctrl.Backspace()
	h.typeText("t")
	h.ctrl.SubmitRegister()
	h.runner.flush()

	if h.ctrl.screen != ScreenLogin {
		t.Fatalf("expected login screen after register, got %d (%s)", h.ctrl.screen, h.ctrl.register.err)
	}
	if h.ctrl.login.fields[loginEmail].Value != "grace@example.com" {
		t.Fatalf("expected email prefilled, got %q", h.ctrl.login.fields[loginEmail].Value)
	}
	if h.ctrl.login.index != loginPassword {
		t.Fatalf("expected focus on password field")
	}
}

func TestCreateModalLifecycle(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.OpenCreate()
	m := h.ctrl.modals[ModalCreate]
	if m.state != ModalOpen {
		t.Fatalf("expected open modal, got %s", m.state)
	}
	h.typeText("Write report")
	h.ctrl.OpenCreate()
	if m.fields[fieldTitle].Value != "Write report" {
		t.Fatalf("expected reopening to keep input, got %q", m.fields[fieldTitle].Value)
	}

	h.ctrl.SubmitModal(ModalCreate)
	if m.state != ModalSubmitting {
		t.Fatalf("expected submitting, got %s", m.state)
	}
	h.ctrl.SubmitModal(ModalCreate)
	if len(h.runner.jobs) != 1 {
		t.Fatalf("expected one create request, got %d", len(h.runner.jobs))
	}
	h.runner.flush()

	if m.state != ModalClosed {
		t.Fatalf("expected closed modal after success, got %s", m.state)
	}
	if len(h.ctrl.view.Items) != 1 || h.ctrl.view.Items[0].Task.Title != "Write report" {
		t.Fatalf("expected created task in list, got %+v", h.ctrl.view.Items)
	}
	if h.ctrl.view.Items[0].Task.Priority != model.PriorityMedium {
		t.Fatalf("expected default medium priority, got %q", h.ctrl.view.Items[0].Task.Priority)
	}
	if text, _ := h.ctrl.notes.current(); text != "Task added successfully!" {
		t.Fatalf("unexpected notification %q", text)
	}

	h.ctrl.OpenCreate()
	if m.fields[fieldTitle].Value != "" {
		t.Fatalf("expected a fresh form, got %q", m.fields[fieldTitle].Value)
	}
}

func TestCreateValidationKeepsModalOpen(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.OpenCreate()
	h.typeText("   ")
	h.ctrl.SubmitModal(ModalCreate)

	m := h.ctrl.modals[ModalCreate]
	if m.state != ModalOpen || m.err != "Task title is required" {
		t.Fatalf("expected open modal with title error, got %s %q", m.state, m.err)
	}
	if len(h.runner.jobs) != 0 {
		t.Fatalf("expected no request, got %d", len(h.runner.jobs))
	}

	h.ctrl.MoveField(fieldDue)
	h.typeText("someday")
	h.ctrl.MoveField(-fieldDue)
	h.typeText("Real title")
	h.ctrl.SubmitModal(ModalCreate)
	if m.state != ModalOpen || !strings.Contains(m.err, "due date") {
		t.Fatalf("expected due date error, got %s %q", m.state, m.err)
	}
}

func TestCloseWhileSubmittingDiscardsForm(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.OpenCreate()
	h.typeText("Late arrival")
	h.ctrl.SubmitModal(ModalCreate)
	h.ctrl.CloseModal(ModalCreate)
	h.runner.flush()

	m := h.ctrl.modals[ModalCreate]
	if m.state != ModalClosed || len(m.fields) != 0 {
		t.Fatalf("expected discarded modal, got %s with %d fields", m.state, len(m.fields))
	}
	if len(h.ctrl.view.Items) != 1 {
		t.Fatalf("expected the confirmed task to be listed, got %d", len(h.ctrl.view.Items))
	}
}

func TestEditRequiresTaskInMirror(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.OpenEdit()
	if h.ctrl.modals[ModalEdit].state != ModalClosed {
		t.Fatalf("expected no edit modal without a selection")
	}

	h.ctrl.view = render.Render([]model.Task{{ID: 999, Title: "Ghost"}}, time.Now())
	h.ctrl.OpenEdit()
	if h.ctrl.modals[ModalEdit].state != ModalClosed {
		t.Fatalf("expected no edit modal for a task missing from the cache")
	}
}

func TestEditUpdatesTask(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	task := h.createTask(t, "Draft")

	h.ctrl.OpenEdit()
	m := h.ctrl.modals[ModalEdit]
	if m.state != ModalOpen || m.taskID != task.ID {
		t.Fatalf("expected edit modal for task %d, got %s %d", task.ID, m.state, m.taskID)
	}
	if m.fields[fieldTitle].Value != "Draft" || m.fields[fieldPriority].Value != "high" {
		t.Fatalf("expected prefilled fields, got %+v", m.fields)
	}

	h.ctrl.ClearField()
	h.typeText("Final")
	h.ctrl.MoveField(fieldPriority)
	h.ctrl.CycleChoice(-1)
	h.ctrl.SubmitModal(ModalEdit)
	h.runner.flush()

	if m.state != ModalClosed {
		t.Fatalf("expected closed modal, got %s (%s)", m.state, m.err)
	}
	updated, ok := h.ctrl.cache.Task(task.ID)
	if !ok || updated.Title != "Final" || updated.Priority != model.PriorityMedium {
		t.Fatalf("expected updated task, got %+v", updated)
	}
	if text, _ := h.ctrl.notes.current(); text != "Task updated!" {
		t.Fatalf("unexpected notification %q", text)
	}
}

func TestFailedUpdateKeepsInput(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	task := h.createTask(t, "Doomed")

	h.ctrl.OpenEdit()
	h.typeText(" edited")
	if err := h.client.DeleteTask(context.Background(), task.ID); err != nil {
		t.Fatalf("delete behind the controller: %v", err)
	}
	h.ctrl.SubmitModal(ModalEdit)
	h.runner.flush()

	m := h.ctrl.modals[ModalEdit]
	if m.state != ModalOpen {
		t.Fatalf("expected modal to stay open, got %s", m.state)
	}
	if m.err != "Task not found" {
		t.Fatalf("expected server error in modal, got %q", m.err)
	}
	if m.fields[fieldTitle].Value != "Doomed edited" {
		t.Fatalf("expected input kept, got %q", m.fields[fieldTitle].Value)
	}
	if _, ok := h.ctrl.cache.Task(task.ID); !ok {
		t.Fatalf("expected mirror unchanged after failure")
	}
}

func TestDeleteNeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	task := h.createTask(t, "Disposable")

	h.ctrl.RequestDelete()
	if h.ctrl.confirmDelete != task.ID {
		t.Fatalf("expected confirmation prompt for %d", task.ID)
	}
	if len(h.runner.jobs) != 0 {
		t.Fatalf("expected no request before confirming")
	}
	h.ctrl.CancelDelete()
	if h.ctrl.confirmDelete != 0 || len(h.runner.jobs) != 0 {
		t.Fatalf("expected cancel to drop the prompt")
	}

	h.ctrl.RequestDelete()
	h.ctrl.ConfirmDelete()
	h.ctrl.RequestDelete()
	h.ctrl.ConfirmDelete()
	if len(h.runner.jobs) != 1 {
		t.Fatalf("expected one delete in flight, got %d", len(h.runner.jobs))
	}
	h.runner.flush()

	if !h.ctrl.view.Empty {
		t.Fatalf("expected empty list after delete")
	}
	if text, _ := h.ctrl.notes.current(); text != "Task deleted successfully!" {
		t.Fatalf("unexpected notification %q", text)
	}
}

func TestToggleSelectedRefreshes(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.createTask(t, "Flip me")

	h.ctrl.ToggleSelected()
	h.runner.flush()

	summary := h.ctrl.view.Summary
	if summary.Total != 1 || summary.Completed != 1 || summary.Pending != 0 {
		t.Fatalf("expected {1,1,0}, got %+v", summary)
	}
}

func TestExpiredSessionReturnsToLogin(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.createTask(t, "Orphan")

	if err := h.client.Logout(context.Background()); err != nil {
		t.Fatalf("logout behind the controller: %v", err)
	}
	h.ctrl.Reload()
	h.runner.flush()

	if h.ctrl.screen != ScreenLogin {
		t.Fatalf("expected login screen, got %d", h.ctrl.screen)
	}
	if h.sessions.IsAuthenticated(context.Background()) {
		t.Fatalf("expected session cleared")
	}
	if len(h.ctrl.cache.Snapshot()) != 0 {
		t.Fatalf("expected mirror cleared")
	}
	if text, level := h.ctrl.notes.current(); level != noteError || !strings.Contains(text, "expired") {
		t.Fatalf("expected expiry notification, got %q", text)
	}
}

func TestRefreshFinishingAfterLogoutIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.createTask(t, "Ada's task")

	h.ctrl.Reload()
	apply := h.runner.take()()

	h.ctrl.Logout()
	h.runner.flush()
	apply()

	if h.ctrl.screen != ScreenLogin {
		t.Fatalf("expected login screen, got %d", h.ctrl.screen)
	}
	if len(h.ctrl.view.Items) != 0 {
		t.Fatalf("expected no rendered tasks after logout, got %d", len(h.ctrl.view.Items))
	}
	if len(h.ctrl.cache.Snapshot()) != 0 {
		t.Fatalf("expected empty mirror after logout")
	}
	if text, _ := h.ctrl.notes.current(); text != "Logged out successfully!" {
		t.Fatalf("expected logout notification to stay, got %q", text)
	}

	h.ctrl.OpenEdit()
	if h.ctrl.modals[ModalEdit].state != ModalClosed {
		t.Fatalf("expected no edit modal on the login screen")
	}
}

func TestLogoutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.ctrl.Logout()
	h.runner.flush()

	if h.ctrl.screen != ScreenLogin {
		t.Fatalf("expected login screen after logout")
	}
	if h.sessions.IsAuthenticated(context.Background()) {
		t.Fatalf("expected session cleared")
	}
	if text, _ := h.ctrl.notes.current(); text != "Logged out successfully!" {
		t.Fatalf("unexpected notification %q", text)
	}
}

func TestStaleTimerKeepsNewerNotification(t *testing.T) {
	var timers []func()
	n := &notifier{timeout: time.Second, after: func(_ time.Duration, fn func()) {
		timers = append(timers, fn)
	}}

	n.show(noteSuccess, "first")
	n.show(noteError, "second")
	timers[0]()
	if text, level := n.current(); text != "second" || level != noteError {
		t.Fatalf("expected second to survive the first timer, got %q", text)
	}
	timers[1]()
	if text, _ := n.current(); text != "" {
		t.Fatalf("expected notification hidden, got %q", text)
	}
}

func TestBindingsFilterKeys(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.createTask(t, "Pending one")
	ui := newUI(h.ctrl)

	seen := map[string]bool{}
	var completed func(*gocui.Gui, *gocui.View) error
	for _, b := range ui.bindings() {
		for _, view := range b.views {
			id := view + "/" + keyName(b.key)
			if seen[id] {
				t.Fatalf("duplicate binding %s", id)
			}
			seen[id] = true
			if view == viewTasks && b.key == '3' {
				completed = b.handler
			}
		}
	}
	if completed == nil {
		t.Fatalf("expected a binding for the completed filter")
	}

	if err := completed(nil, nil); err != nil {
		t.Fatalf("filter handler: %v", err)
	}
	h.runner.flush()
	if h.ctrl.cache.Filter() != model.FilterCompleted {
		t.Fatalf("expected completed filter, got %q", h.ctrl.cache.Filter())
	}
	if !h.ctrl.view.Empty {
		t.Fatalf("expected no completed tasks")
	}
}

func TestFormEditorTypesIntoModal(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	ui := newUI(h.ctrl)
	view := &gocui.View{}

	h.ctrl.OpenCreate()
	for _, ch := range "Hi" {
		ui.editor.Edit(view, 0, ch, gocui.ModNone)
	}
	ui.editor.Edit(view, gocui.KeyBackspace2, 0, gocui.ModNone)
	if got := h.ctrl.modals[ModalCreate].fields[fieldTitle].Value; got != "H" {
		t.Fatalf("expected H, got %q", got)
	}

	h.ctrl.MoveField(fieldPriority)
	ui.editor.Edit(view, gocui.KeySpace, 0, gocui.ModNone)
	if got := h.ctrl.modals[ModalCreate].fields[fieldPriority].Value; got != "high" {
		t.Fatalf("expected space to cycle priority to high, got %q", got)
	}
	if ui.editor.Edit(view, gocui.KeyF1, 0, gocui.ModNone) {
		t.Fatalf("expected unhandled key to fall through")
	}
}

func TestParseTaskFields(t *testing.T) {
	fields := buildTaskFields(nil)
	fields[fieldTitle].Value = "  Plan trip "
	fields[fieldDue].Value = "2025-03-04 09:30"

	parsed, err := parseTaskFields(fields)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Title != "Plan trip" || parsed.Description != nil || parsed.Priority != model.PriorityMedium {
		t.Fatalf("unexpected fields %+v", parsed)
	}
	expected := time.Date(2025, 3, 4, 9, 30, 0, 0, time.Local)
	if parsed.DueDate == nil || !parsed.DueDate.Equal(expected) {
		t.Fatalf("expected due %v, got %v", expected, parsed.DueDate)
	}

	rebuilt := buildTaskFields(&model.Task{Title: "Plan trip", DueDate: parsed.DueDate})
	if rebuilt[fieldDue].Value != "2025-03-04 09:30" {
		t.Fatalf("expected due to round-trip, got %q", rebuilt[fieldDue].Value)
	}
}

func TestFormatTaskRow(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.Local)
	due := now.Add(-48 * time.Hour)
	item := render.RenderItem(model.Task{Title: "Pay rent", Priority: model.PriorityHigh, DueDate: &due}, now)

	row := formatTaskRow(item)
	if !strings.HasPrefix(row, "[ ] ") {
		t.Fatalf("expected open checkbox, got %q", row)
	}
	if !strings.Contains(row, "Pay rent") || !strings.Contains(row, "Overdue: Sun, Mar 2, 2025") || !strings.Contains(row, ansiRed) {
		t.Fatalf("expected overdue row, got %q", row)
	}
}

func keyName(key any) string {
	switch k := key.(type) {
	case rune:
		return "rune:" + string(k)
	case gocui.Key:
		return "key:" + string(rune(int(k)+0x10000))
	}
	return "?"
}
