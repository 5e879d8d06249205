package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Joseda-hg/taskdeck/internal/model"
	goerrors "github.com/go-errors/errors"
	"github.com/jesseduffield/gocui"
)

const (
	viewLogin    = "login"
	viewRegister = "register"
	viewHeader   = "header"
	viewTasks    = "tasks"
	viewEmpty    = "empty"
	viewModal    = "modal"
	viewConfirm  = "confirm"
	viewFooter   = "footer"
)

var (
	authViews      = []string{viewLogin, viewRegister}
	dashboardViews = []string{viewHeader, viewTasks, viewEmpty, viewModal, viewConfirm}
	listViews      = []string{viewTasks, viewEmpty}
	formViews      = []string{viewLogin, viewRegister, viewModal}
)

type UI struct {
	ctrl   *Controller
	gui    *gocui.Gui
	editor *formEditor
}

// binding is one row of the key table. An empty view name binds globally.
type binding struct {
	views   []string
	key     any
	handler func(*gocui.Gui, *gocui.View) error
}

type formEditor struct {
	ui *UI
}

// guiRunner runs work on its own goroutine and hands the result back to the
// main loop.
type guiRunner struct {
	gui *gocui.Gui
}

func (r guiRunner) Go(work func() func()) {
	go func() {
		apply := work()
		r.gui.Update(func(*gocui.Gui) error {
			if apply != nil {
				apply()
			}
			return nil
		})
	}()
}

func Run(deps Deps) error {
	gui, err := gocui.NewGui(gocui.NewGuiOpts{OutputMode: gocui.OutputNormal})
	if err != nil {
		return err
	}
	defer gui.Close()

	after := func(d time.Duration, fn func()) {
		time.AfterFunc(d, func() {
			gui.Update(func(*gocui.Gui) error {
				fn()
				return nil
			})
		})
	}

	ui := newUI(NewController(deps, guiRunner{gui: gui}, after))
	ui.gui = gui

	gui.SetManagerFunc(ui.layout)
	if err := ui.bindKeys(gui); err != nil {
		return err
	}
	ui.ctrl.Start()

	if err := gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func newUI(ctrl *Controller) *UI {
	ui := &UI{ctrl: ctrl}
	ui.editor = &formEditor{ui: ui}
	return ui
}

func (u *UI) bindKeys(gui *gocui.Gui) error {
	for _, b := range u.bindings() {
		for _, view := range b.views {
			if err := gui.SetKeybinding(view, b.key, gocui.ModNone, b.handler); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *UI) bindings() []binding {
	c := u.ctrl
	return []binding{
		{views: []string{""}, key: gocui.KeyCtrlC, handler: u.quit},
		{views: listViews, key: 'q', handler: u.quit},

		{views: listViews, key: 'j', handler: act(func() { c.MoveSelection(1) })},
		{views: listViews, key: gocui.KeyArrowDown, handler: act(func() { c.MoveSelection(1) })},
		{views: listViews, key: 'k', handler: act(func() { c.MoveSelection(-1) })},
		{views: listViews, key: gocui.KeyArrowUp, handler: act(func() { c.MoveSelection(-1) })},
		{views: listViews, key: 'a', handler: act(c.OpenCreate)},
		{views: listViews, key: 'e', handler: act(c.OpenEdit)},
		{views: listViews, key: gocui.KeyEnter, handler: act(c.OpenEdit)},
		{views: listViews, key: 'x', handler: act(c.ToggleSelected)},
		{views: listViews, key: gocui.KeySpace, handler: act(c.ToggleSelected)},
		{views: listViews, key: 'd', handler: act(c.RequestDelete)},
		{views: listViews, key: 'r', handler: act(c.Reload)},
		{views: listViews, key: 'L', handler: act(c.Logout)},
		{views: listViews, key: '1', handler: u.filter(model.FilterAll)},
		{views: listViews, key: '2', handler: u.filter(model.FilterPending)},
		{views: listViews, key: '3', handler: u.filter(model.FilterCompleted)},
		{views: listViews, key: '4', handler: u.filter(model.FilterToday)},

		{views: []string{viewConfirm}, key: 'y', handler: act(c.ConfirmDelete)},
		{views: []string{viewConfirm}, key: gocui.KeyEnter, handler: act(c.ConfirmDelete)},
		{views: []string{viewConfirm}, key: 'n', handler: act(c.CancelDelete)},
		{views: []string{viewConfirm}, key: gocui.KeyEsc, handler: act(c.CancelDelete)},

		{views: formViews, key: gocui.KeyTab, handler: act(func() { c.MoveField(1) })},
		{views: formViews, key: gocui.KeyArrowDown, handler: act(func() { c.MoveField(1) })},
		{views: formViews, key: gocui.KeyBacktab, handler: act(func() { c.MoveField(-1) })},
		{views: formViews, key: gocui.KeyArrowUp, handler: act(func() { c.MoveField(-1) })},

		{views: []string{viewModal}, key: gocui.KeyEnter, handler: u.submitModal},
		{views: []string{viewModal}, key: gocui.KeyEsc, handler: u.cancelModal},

		{views: []string{viewLogin}, key: gocui.KeyEnter, handler: act(c.SubmitLogin)},
		{views: []string{viewLogin}, key: gocui.KeyCtrlR, handler: act(c.ShowRegister)},
		{views: []string{viewRegister}, key: gocui.KeyEnter, handler: act(c.SubmitRegister)},
		{views: []string{viewRegister}, key: gocui.KeyEsc, handler: act(c.ShowLogin)},
	}
}

func act(fn func()) func(*gocui.Gui, *gocui.View) error {
	return func(*gocui.Gui, *gocui.View) error {
		fn()
		return nil
	}
}

func (u *UI) filter(filter model.Filter) func(*gocui.Gui, *gocui.View) error {
	return act(func() { u.ctrl.SetFilter(filter) })
}

func (u *UI) submitModal(_ *gocui.Gui, _ *gocui.View) error {
	if kind, _ := u.ctrl.openModal(); kind != "" {
		u.ctrl.SubmitModal(kind)
	}
	return nil
}

func (u *UI) cancelModal(_ *gocui.Gui, _ *gocui.View) error {
	if kind, _ := u.ctrl.openModal(); kind != "" {
		u.ctrl.CloseModal(kind)
	}
	return nil
}

func (u *UI) quit(_ *gocui.Gui, _ *gocui.View) error {
	return gocui.ErrQuit
}

// layout draws whatever the controller state calls for and drops the views
// of the other screen.
func (u *UI) layout(gui *gocui.Gui) error {
	maxX, maxY := gui.Size()
	if maxX <= 0 || maxY <= 0 {
		return nil
	}

	footerY1 := max(maxY-1, 1)
	footerY0 := footerY1 - 1
	footerView, err := gui.SetView(viewFooter, 0, footerY0, maxX-1, footerY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	footerView.Frame = false
	footerView.Wrap = true
	footerView.FgColor = gocui.ColorDefault
	u.renderFooter(footerView)

	var focus string
	if u.ctrl.screen == ScreenDashboard {
		deleteViews(gui, authViews...)
		focus, err = u.layoutDashboard(gui, maxX, footerY0)
	} else {
		deleteViews(gui, dashboardViews...)
		focus, err = u.layoutAuth(gui, maxX, maxY)
	}
	if err != nil {
		return err
	}

	if _, err := gui.SetCurrentView(focus); err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return err
	}
	_, _ = gui.SetViewOnTop(focus)
	_, _, editable := u.ctrl.activeForm()
	gui.Cursor = editable
	return nil
}

func (u *UI) layoutAuth(gui *gocui.Gui, maxX, maxY int) (string, error) {
	name, title, form := viewLogin, "Sign in", u.ctrl.login
	if u.ctrl.screen == ScreenRegister {
		name, title, form = viewRegister, "Create account", u.ctrl.register
	}
	deleteViews(gui, otherThan(authViews, name)...)

	width := min(max(50, maxX/3), maxX-1)
	height := len(form.fields) + 5
	x0 := max((maxX-width)/2, 0)
	y0 := max((maxY-height)/2, 0)
	view, err := gui.SetView(name, x0, y0, x0+width, y0+height, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return "", err
	}
	u.prepareForm(view, title)

	status := ""
	switch {
	case form.busy && name == viewLogin:
		status = "Signing in..."
	case form.busy:
		status = "Creating account..."
	case form.err != "":
		status = colorize(ansiRed, form.err)
	}
	hint := "enter sign in | ctrl+r create account | ctrl+c quit"
	if name == viewRegister {
		hint = "enter create | esc back to sign in | ctrl+c quit"
	}
	renderForm(view, form.fields, form.index, status, hint)
	return name, nil
}

func (u *UI) layoutDashboard(gui *gocui.Gui, maxX, bottom int) (string, error) {
	c := u.ctrl

	headerView, err := gui.SetView(viewHeader, 0, 0, maxX-1, 2, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return "", err
	}
	headerView.Frame = false
	u.renderHeader(headerView)

	bodyY0, bodyY1 := 3, max(bottom-1, 4)
	listName := viewTasks
	if c.view.Empty {
		listName = viewEmpty
	}
	deleteViews(gui, otherThan(listViews, listName)...)

	listView, err := gui.SetView(listName, 0, bodyY0, maxX-1, bodyY1, 0)
	if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
		return "", err
	}
	focus := listName

	kind, m := c.openModal()
	confirming := c.confirmDelete != 0
	applyViewStyle(listView, m == nil && !confirming, listName == viewTasks)
	listView.Title = fmt.Sprintf("Tasks (%s)", c.cache.Filter().Label())
	if listName == viewEmpty {
		renderEmpty(listView, c.cache.Filter(), c.loading)
	} else {
		u.renderTasks(listView)
	}

	if m != nil {
		maxY := bottom
		width := min(max(60, maxX/2), maxX-1)
		height := len(m.fields) + 5
		x0 := max((maxX-width)/2, 0)
		y0 := max((maxY-height)/2, 0)
		view, err := gui.SetView(viewModal, x0, y0, x0+width, y0+height, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return "", err
		}
		title := "New Task"
		if kind == ModalEdit {
			title = "Edit Task"
		}
		u.prepareForm(view, title)

		status := ""
		if m.state == ModalSubmitting {
			status = "Saving..."
		} else if m.err != "" {
			status = colorize(ansiRed, m.err)
		}
		renderForm(view, m.fields, m.index, status, "enter save | esc cancel | tab next field | ctrl+u clear")
		focus = viewModal
	} else {
		deleteViews(gui, viewModal)
	}

	if confirming {
		task, _ := c.cache.Task(c.confirmDelete)
		prompt := "Delete this task? (y/n)"
		if task.Title != "" {
			prompt = fmt.Sprintf("Delete %q? (y/n)", task.Title)
		}
		width := min(max(len([]rune(prompt))+4, 30), maxX-1)
		x0 := max((maxX-width)/2, 0)
		y0 := max(bottom/2-1, 0)
		view, err := gui.SetView(viewConfirm, x0, y0, x0+width, y0+2, 0)
		if err != nil && !goerrors.Is(err, gocui.ErrUnknownView) {
			return "", err
		}
		applyViewStyle(view, true, false)
		view.Title = "Confirm"
		view.Clear()
		fmt.Fprint(view, " "+prompt)
		if m == nil {
			focus = viewConfirm
		}
	} else {
		deleteViews(gui, viewConfirm)
	}

	return focus, nil
}

func (u *UI) prepareForm(view *gocui.View, title string) {
	applyViewStyle(view, true, false)
	view.Title = title
	view.Wrap = true
	view.Editable = true
	view.KeybindOnEdit = true
	view.Editor = u.editor
}

func (u *UI) renderHeader(view *gocui.View) {
	c := u.ctrl
	view.Clear()

	who := c.user.UserName
	if c.user.UserEmail != "" {
		who = fmt.Sprintf("%s <%s>", who, c.user.UserEmail)
	}
	line := "taskdeck | " + who
	if c.loading || c.cache.Pending() > 0 {
		line += " | " + colorize(ansiYellow, "loading...")
	}
	fmt.Fprintln(view, line)
	fmt.Fprintln(view, formatFilterTabs(c.cache.Filter()))
	fmt.Fprint(view, formatSummary(c.view.Summary))
}

func (u *UI) renderFooter(view *gocui.View) {
	view.Clear()
	view.SetOrigin(0, 0)

	if u.ctrl.screen == ScreenDashboard {
		fmt.Fprintln(view, "a add | e/enter edit | x/space toggle | d delete | 1-4 filter | r reload | L log out | q quit")
	} else {
		fmt.Fprintln(view, "tab/arrows move between fields | ctrl+u clear field")
	}

	text, level := u.ctrl.notes.current()
	switch level {
	case noteSuccess:
		text = colorize(ansiGreen, text)
	case noteWarning:
		text = colorize(ansiYellow, text)
	case noteError:
		text = colorize(ansiRed, text)
	}
	fmt.Fprint(view, text)
}

func (u *UI) renderTasks(view *gocui.View) {
	c := u.ctrl
	view.Clear()

	// The selected row's description is drawn below it, so rows after the
	// selection sit one line lower and the cursor line equals the index.
	for i, item := range c.view.Items {
		fmt.Fprintln(view, formatTaskRow(item))
		if i == c.selected {
			if description := formatDescription(item.Task); description != "" {
				fmt.Fprintln(view, description)
			}
		}
	}
	view.SetCursor(0, c.selected)
}

func renderEmpty(view *gocui.View, filter model.Filter, loading bool) {
	view.Clear()
	if loading {
		fmt.Fprint(view, "\n  Loading tasks...")
		return
	}
	fmt.Fprintln(view)
	if filter == model.FilterAll {
		fmt.Fprintln(view, "  No tasks yet.")
	} else {
		fmt.Fprintf(view, "  No %s tasks.\n", strings.ToLower(filter.Label()))
	}
	fmt.Fprint(view, "  Press a to add a task.")
}

func renderForm(view *gocui.View, fields []formField, index int, status, hint string) {
	view.Clear()
	for i, field := range fields {
		prefix := "  "
		if i == index {
			prefix = "> "
		}
		fmt.Fprintf(view, "%s%s: %s\n", prefix, field.Label, field.display())
	}
	fmt.Fprintln(view)
	fmt.Fprintln(view, " "+status)
	fmt.Fprint(view, " "+colorize(ansiDim, hint))

	if len(fields) == 0 {
		return
	}
	field := fields[index]
	cursorX := len([]rune(field.Label)) + len([]rune(field.display())) + 4
	view.SetCursor(cursorX, index)
}

// Edit routes typing into whichever form the controller has active.
func (e *formEditor) Edit(view *gocui.View, key gocui.Key, ch rune, mod gocui.Modifier) bool {
	if e.ui == nil || view == nil {
		return false
	}
	c := e.ui.ctrl

	switch key {
	case gocui.KeyBackspace, gocui.KeyBackspace2:
		c.Backspace()
	case gocui.KeySpace:
		c.TypeRune(' ')
	case gocui.KeyCtrlU:
		c.ClearField()
	case gocui.KeyArrowRight:
		c.CycleChoice(1)
	case gocui.KeyArrowLeft:
		c.CycleChoice(-1)
	default:
		if ch == 0 || ch == '\n' || ch == '\r' || mod != 0 {
			return false
		}
		c.TypeRune(ch)
	}
	return true
}

func deleteViews(gui *gocui.Gui, names ...string) {
	for _, name := range names {
		if _, err := gui.View(name); err == nil {
			_ = gui.DeleteView(name)
		}
	}
}

func otherThan(names []string, keep string) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		if name != keep {
			result = append(result, name)
		}
	}
	return result
}

func applyViewStyle(view *gocui.View, focused bool, highlight bool) {
	view.Frame = true
	view.Highlight = focused && highlight
	view.SelBgColor = gocui.ColorBlue
	view.SelFgColor = gocui.ColorBlack
	if focused {
		view.FrameColor = gocui.ColorCyan
		view.TitleColor = gocui.ColorCyan
	} else {
		view.FrameColor = gocui.ColorDefault
		view.TitleColor = gocui.ColorDefault
	}
}
