package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/api"
	"github.com/Joseda-hg/taskdeck/internal/cache"
	"github.com/Joseda-hg/taskdeck/internal/model"
	"github.com/Joseda-hg/taskdeck/internal/render"
	"github.com/Joseda-hg/taskdeck/internal/session"
	"github.com/sirupsen/logrus"
)

type Screen int

const (
	ScreenLogin Screen = iota
	ScreenRegister
	ScreenDashboard
)

type ModalKind string

const (
	ModalCreate ModalKind = "create"
	ModalEdit   ModalKind = "edit"
)

type ModalState int

const (
	ModalClosed ModalState = iota
	ModalOpen
	ModalSubmitting
)

func (s ModalState) String() string {
	switch s {
	case ModalOpen:
		return "open"
	case ModalSubmitting:
		return "submitting"
	default:
		return "closed"
	}
}

// modal holds one modal kind's form. gen changes whenever the modal is
// discarded, so a late submit result can tell it no longer owns the modal.
type modal struct {
	state  ModalState
	gen    int
	taskID int64
	fields []formField
	index  int
	err    string
}

type authForm struct {
	fields []formField
	index  int
	err    string
	busy   bool
}

type Authenticator interface {
	Login(ctx context.Context, email, password string) (model.User, error)
	Register(ctx context.Context, name, email, password string) (model.User, error)
	Logout(ctx context.Context) error
}

// Runner moves blocking work off the UI loop. The func returned by work is
// applied back on the loop.
type Runner interface {
	Go(work func() func())
}

type syncRunner struct{}

func (syncRunner) Go(work func() func()) {
	if apply := work(); apply != nil {
		apply()
	}
}

type Deps struct {
	Cache         *cache.Cache
	Sessions      *session.Store
	Auth          Authenticator
	Logger        *logrus.Logger
	NotifyTimeout time.Duration
}

// Controller holds every piece of interaction state. All methods run on the
// UI loop; only work passed to the runner runs elsewhere.
type Controller struct {
	ctx      context.Context
	cache    *cache.Cache
	sessions *session.Store
	auth     Authenticator
	runner   Runner
	notes    *notifier
	logger   *logrus.Entry
	now      func() time.Time

	screen   Screen
	user     model.Session
	login    *authForm
	register *authForm
	modals   map[ModalKind]*modal

	view          render.List
	selected      int
	loading       bool
	confirmDelete int64
	deleting      map[int64]bool
}

// NewController wires the controller. after schedules a func on the UI loop
// once the duration has passed; nil disables notification auto-hide.
func NewController(deps Deps, runner Runner, after func(time.Duration, func())) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if runner == nil {
		runner = syncRunner{}
	}
	return &Controller{
		ctx:      context.Background(),
		cache:    deps.Cache,
		sessions: deps.Sessions,
		auth:     deps.Auth,
		runner:   runner,
		notes:    &notifier{timeout: deps.NotifyTimeout, after: after},
		logger:   logger.WithField("component", "controller"),
		now:      time.Now,
		screen:   ScreenLogin,
		login:    &authForm{fields: buildLoginFields("")},
		register: &authForm{fields: buildRegisterFields()},
		modals: map[ModalKind]*modal{
			ModalCreate: {},
			ModalEdit:   {},
		},
		deleting: map[int64]bool{},
	}
}

// Start opens the dashboard for a stored session, otherwise the login screen.
func (c *Controller) Start() {
	current, ok := c.sessions.Current(c.ctx)
	if !ok {
		c.showLogin("")
		return
	}
	c.user = current
	c.screen = ScreenDashboard
	c.refresh(model.FilterAll)
}

func (c *Controller) refresh(filter model.Filter) {
	user := c.user
	c.loading = true
	c.runner.Go(func() func() {
		err := c.cache.Refresh(c.ctx, filter)
		return func() {
			if c.signedOutSince(user) {
				return
			}
			c.loading = false
			if err != nil {
				c.handleError(err, "Failed to load tasks")
				return
			}
			c.rebuild()
		}
	})
}

// rebuild re-renders the visible list from the cache.
func (c *Controller) rebuild() {
	now := c.now()
	c.view = render.Render(render.Apply(c.cache.Filter(), c.cache.Snapshot(), now), now)
	if c.selected >= len(c.view.Items) {
		c.selected = max(len(c.view.Items)-1, 0)
	}
}

func (c *Controller) SetFilter(filter model.Filter) {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	c.selected = 0
	c.refresh(filter)
}

func (c *Controller) Reload() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	c.refresh(c.cache.Filter())
}

func (c *Controller) MoveSelection(delta int) {
	if c.inputActive() || len(c.view.Items) == 0 {
		return
	}
	c.selected = min(max(c.selected+delta, 0), len(c.view.Items)-1)
}

func (c *Controller) SelectedTask() (model.Task, bool) {
	if c.selected < 0 || c.selected >= len(c.view.Items) {
		return model.Task{}, false
	}
	return c.view.Items[c.selected].Task, true
}

func (c *Controller) OpenCreate() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	m := c.modals[ModalCreate]
	if m.state != ModalClosed {
		return
	}
	*m = modal{state: ModalOpen, gen: m.gen, fields: buildTaskFields(nil)}
}

// OpenEdit pre-fills the edit modal from the selected task. A task that is
// no longer in the mirror opens nothing.
func (c *Controller) OpenEdit() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	selected, ok := c.SelectedTask()
	if !ok {
		return
	}
	task, ok := c.cache.Task(selected.ID)
	if !ok {
		return
	}
	m := c.modals[ModalEdit]
	if m.state != ModalClosed {
		return
	}
	*m = modal{state: ModalOpen, gen: m.gen, taskID: task.ID, fields: buildTaskFields(&task)}
}

// CloseModal discards the modal's form, including one still submitting.
func (c *Controller) CloseModal(kind ModalKind) {
	m := c.modals[kind]
	if m.state == ModalClosed {
		return
	}
	*m = modal{gen: m.gen + 1}
}

func (c *Controller) SubmitModal(kind ModalKind) {
	m := c.modals[kind]
	if m.state != ModalOpen {
		return
	}

	fields, err := parseTaskFields(m.fields)
	if err != nil {
		m.err = err.Error()
		return
	}
	if err := cache.Validate(fields); err != nil {
		m.err = err.Error()
		return
	}

	m.state = ModalSubmitting
	m.err = ""
	gen, taskID, user := m.gen, m.taskID, c.user
	c.runner.Go(func() func() {
		var err error
		if kind == ModalCreate {
			err = c.cache.Create(c.ctx, fields)
		} else {
			err = c.cache.Update(c.ctx, taskID, fields)
		}
		return func() {
			if c.signedOutSince(user) {
				return
			}
			c.finishSubmit(kind, gen, err)
		}
	})
}

func (c *Controller) finishSubmit(kind ModalKind, gen int, err error) {
	m := c.modals[kind]
	owned := m.gen == gen && m.state == ModalSubmitting

	var refreshErr *cache.RefreshError
	switch {
	case errors.Is(err, cache.ErrUnauthenticated):
		c.expireSession()
	case err == nil || errors.As(err, &refreshErr):
		if owned {
			*m = modal{gen: gen + 1}
		}
		if refreshErr != nil {
			c.notes.show(noteWarning, refreshErr.Error())
		} else if kind == ModalCreate {
			c.notes.show(noteSuccess, "Task added successfully!")
		} else {
			c.notes.show(noteSuccess, "Task updated!")
		}
		c.rebuild()
	case owned:
		m.state = ModalOpen
		m.err = errorMessage(err, "Failed to save task")
	default:
		c.notes.show(noteError, errorMessage(err, "Failed to save task"))
	}
}

func (c *Controller) ToggleSelected() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	task, ok := c.SelectedTask()
	if !ok {
		return
	}
	user := c.user
	c.runner.Go(func() func() {
		err := c.cache.Toggle(c.ctx, task.ID)
		return func() {
			if c.signedOutSince(user) {
				return
			}
			var refreshErr *cache.RefreshError
			switch {
			case errors.Is(err, cache.ErrUnauthenticated):
				c.expireSession()
				return
			case errors.As(err, &refreshErr):
				c.notes.show(noteWarning, refreshErr.Error())
			case err != nil:
				c.handleError(err, "Failed to update task")
				return
			default:
				c.notes.show(noteSuccess, "Task updated!")
			}
			c.rebuild()
		}
	})
}

// RequestDelete asks for confirmation before deleting the selected task.
func (c *Controller) RequestDelete() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	task, ok := c.SelectedTask()
	if !ok || c.deleting[task.ID] {
		return
	}
	c.confirmDelete = task.ID
}

func (c *Controller) CancelDelete() {
	c.confirmDelete = 0
}

// ConfirmDelete removes the task awaiting confirmation. A delete already in
// flight for the same task is not sent again.
func (c *Controller) ConfirmDelete() {
	id := c.confirmDelete
	c.confirmDelete = 0
	if id == 0 || c.deleting[id] {
		return
	}

	c.deleting[id] = true
	user := c.user
	c.runner.Go(func() func() {
		err := c.cache.Remove(c.ctx, id)
		return func() {
			if c.signedOutSince(user) {
				return
			}
			delete(c.deleting, id)
			if err != nil {
				c.handleError(err, "Failed to delete task")
				return
			}
			c.notes.show(noteSuccess, "Task deleted successfully!")
			c.rebuild()
		}
	})
}

func (c *Controller) ShowRegister() {
	if c.screen == ScreenDashboard {
		return
	}
	c.register = &authForm{fields: buildRegisterFields()}
	c.screen = ScreenRegister
}

func (c *Controller) ShowLogin() {
	if c.screen == ScreenDashboard {
		return
	}
	c.showLogin("")
}

func (c *Controller) showLogin(email string) {
	c.login = &authForm{fields: buildLoginFields(email)}
	c.screen = ScreenLogin
}

func (c *Controller) SubmitLogin() {
	form := c.login
	if c.screen != ScreenLogin || form.busy {
		return
	}
	if problem := validateLogin(form.fields); problem != "" {
		form.err = problem
		return
	}

	form.busy = true
	form.err = ""
	email := strings.TrimSpace(form.fields[loginEmail].Value)
	password := form.fields[loginPassword].Value
	c.runner.Go(func() func() {
		user, err := c.auth.Login(c.ctx, email, password)
		if err == nil {
			err = c.sessions.Set(c.ctx, strconv.FormatInt(user.ID, 10), user.Name, user.Email)
		}
		return func() {
			form.busy = false
			if err != nil {
				form.err = errorMessage(err, "Login failed")
				return
			}
			c.user = model.Session{UserID: strconv.FormatInt(user.ID, 10), UserName: user.Name, UserEmail: user.Email}
			c.login = &authForm{fields: buildLoginFields("")}
			c.screen = ScreenDashboard
			c.selected = 0
			c.notes.show(noteSuccess, "Login successful!")
			c.refresh(model.FilterAll)
		}
	})
}

func (c *Controller) SubmitRegister() {
	form := c.register
	if c.screen != ScreenRegister || form.busy {
		return
	}
	if problem := validateRegister(form.fields); problem != "" {
		form.err = problem
		return
	}

	form.busy = true
	form.err = ""
	name := strings.TrimSpace(form.fields[registerName].Value)
	email := strings.TrimSpace(form.fields[registerEmail].Value)
	password := form.fields[registerPassword].Value
	c.runner.Go(func() func() {
		_, err := c.auth.Register(c.ctx, name, email, password)
		return func() {
			form.busy = false
			if err != nil {
				form.err = errorMessage(err, "Registration failed")
				return
			}
			if c.screen == ScreenRegister {
				c.showLogin(email)
				c.login.index = loginPassword
			}
			c.notes.show(noteSuccess, "Account created successfully! Please sign in.")
		}
	})
}

// Logout always ends the local session, whatever the API answers.
func (c *Controller) Logout() {
	if c.screen != ScreenDashboard || c.inputActive() {
		return
	}
	c.runner.Go(func() func() {
		if err := c.auth.Logout(c.ctx); err != nil {
			c.logger.WithError(err).Warn("logout request failed")
		}
		err := c.sessions.Clear(c.ctx)
		return func() {
			if err != nil {
				c.logger.WithError(err).Error("clear session")
			}
			c.signOut()
			c.notes.show(noteSuccess, "Logged out successfully!")
		}
	})
}

func (c *Controller) handleError(err error, fallback string) {
	if errors.Is(err, cache.ErrUnauthenticated) {
		c.expireSession()
		return
	}
	c.notes.show(noteError, errorMessage(err, fallback))
}

// signedOutSince reports whether user, captured when a request was issued,
// is no longer the one on the dashboard. Such results are discarded.
func (c *Controller) signedOutSince(user model.Session) bool {
	return c.screen != ScreenDashboard || !c.user.Authenticated() || c.user != user
}

// expireSession is the only path from the dashboard back to login after the
// API rejects the session.
func (c *Controller) expireSession() {
	if err := c.sessions.Clear(c.ctx); err != nil {
		c.logger.WithError(err).Error("clear session")
	}
	c.signOut()
	c.notes.show(noteError, "Your session has expired. Please sign in again.")
}

func (c *Controller) signOut() {
	c.cache.Reset()
	for _, m := range c.modals {
		*m = modal{gen: m.gen + 1}
	}
	c.user = model.Session{}
	c.view = render.List{}
	c.selected = 0
	c.loading = false
	c.confirmDelete = 0
	c.deleting = map[int64]bool{}
	c.showLogin("")
}

// openModal returns the modal currently taking input, create first.
func (c *Controller) openModal() (ModalKind, *modal) {
	for _, kind := range []ModalKind{ModalCreate, ModalEdit} {
		if m := c.modals[kind]; m.state != ModalClosed {
			return kind, m
		}
	}
	return "", nil
}

func (c *Controller) inputActive() bool {
	_, m := c.openModal()
	return m != nil || c.confirmDelete != 0
}

// activeForm is the field list keyboard input goes to, if any.
func (c *Controller) activeForm() ([]formField, *int, bool) {
	if _, m := c.openModal(); m != nil {
		return m.fields, &m.index, m.state == ModalOpen
	}
	switch c.screen {
	case ScreenLogin:
		return c.login.fields, &c.login.index, !c.login.busy
	case ScreenRegister:
		return c.register.fields, &c.register.index, !c.register.busy
	}
	return nil, nil, false
}

func (c *Controller) TypeRune(ch rune) {
	fields, index, editable := c.activeForm()
	if !editable {
		return
	}
	field := &fields[*index]
	if field.Choice {
		if ch == ' ' {
			field.Value = cyclePriority(field.Value, 1)
		}
		return
	}
	field.Value += string(ch)
}

func (c *Controller) Backspace() {
	fields, index, editable := c.activeForm()
	if !editable {
		return
	}
	field := &fields[*index]
	if field.Choice {
		return
	}
	runes := []rune(field.Value)
	if len(runes) > 0 {
		field.Value = string(runes[:len(runes)-1])
	}
}

func (c *Controller) ClearField() {
	fields, index, editable := c.activeForm()
	if !editable || fields[*index].Choice {
		return
	}
	fields[*index].Value = ""
}

func (c *Controller) CycleChoice(delta int) {
	fields, index, editable := c.activeForm()
	if !editable || !fields[*index].Choice {
		return
	}
	fields[*index].Value = cyclePriority(fields[*index].Value, delta)
}

func (c *Controller) MoveField(delta int) {
	fields, index, _ := c.activeForm()
	if len(fields) == 0 {
		return
	}
	*index = (*index + delta + len(fields)) % len(fields)
}

// errorMessage is what the user sees for err.
func errorMessage(err error, fallback string) string {
	var apiErr *api.Error
	var validation *cache.ValidationError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.As(err, &validation):
		return validation.Message
	case err != nil && fallback == "":
		return err.Error()
	}
	return fallback
}

type noteLevel int

const (
	noteInfo noteLevel = iota
	noteSuccess
	noteWarning
	noteError
)

// notifier is the single status line. A newer message replaces the current
// one, and a timer started for an older message never hides a newer one.
type notifier struct {
	text    string
	level   noteLevel
	gen     int
	timeout time.Duration
	after   func(time.Duration, func())
}

func (n *notifier) show(level noteLevel, text string) {
	n.gen++
	n.text = text
	n.level = level
	if n.timeout <= 0 || n.after == nil {
		return
	}
	gen := n.gen
	n.after(n.timeout, func() {
		if n.gen == gen {
			n.text = ""
		}
	})
}

func (n *notifier) current() (string, noteLevel) {
	return n.text, n.level
}
