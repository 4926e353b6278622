// Package tui provides the BubbleTea-based terminal front end for the demo.
package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	godbus "github.com/godbus/dbus/v5"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/busdemo/internal/adapter/output"
	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
	"github.com/jmylchreest/busdemo/internal/store"
)

// Mode represents the current UI mode.
type Mode int

const (
	ModeMain Mode = iota
	ModeDetail
	ModeHelp
)

// logLimit caps how many call records the log pane renders.
const logLimit = 200

// Target is the object the introspection actions look at.
type Target struct {
	Destination string
	Path        godbus.ObjectPath
}

// Action is one entry of the demo menu.
type Action int

const (
	ActionIntrospectSync Action = iota
	ActionIntrospectAsync
	ActionNotifyAsync
	ActionNotifySync
	ActionCloseLast
	ActionServerInfo
)

// Actions returns the menu entries in display order.
func Actions() []Action {
	return []Action{
		ActionIntrospectSync,
		ActionIntrospectAsync,
		ActionNotifyAsync,
		ActionNotifySync,
		ActionCloseLast,
		ActionServerInfo,
	}
}

func (a Action) Title() string {
	switch a {
	case ActionIntrospectSync:
		return "Synchronous D-Bus Connection"
	case ActionIntrospectAsync:
		return "Asynchronous D-Bus Connection"
	case ActionNotifyAsync:
		return "D-Bus Notification"
	case ActionNotifySync:
		return "D-Bus Notification (blocking)"
	case ActionCloseLast:
		return "Close Last Notification"
	case ActionServerInfo:
		return "Server Information"
	default:
		return "unknown"
	}
}

func (a Action) Description() string {
	switch a {
	case ActionIntrospectSync:
		return "Introspect the demo object, blocking until the reply"
	case ActionIntrospectAsync:
		return "Introspect the demo object without blocking"
	case ActionNotifyAsync:
		return "Send the configured notification without blocking"
	case ActionNotifySync:
		return "Send the configured notification and wait for its id"
	case ActionCloseLast:
		return "Close the most recently sent notification"
	case ActionServerInfo:
		return "Ask the notification daemon who it is"
	default:
		return ""
	}
}

func (a Action) FilterValue() string {
	return a.Title()
}

// Model is the main TUI model.
type Model struct {
	// Configuration
	cfg    *config.Config
	client *dbus.Client
	store  *store.Store
	target Target
	ctx    context.Context

	// Current mode
	mode Mode

	// Components
	actions list.Model
	log     viewport.Model
	detail  viewport.Model
	help    help.Model

	// State
	records       []model.CallRecord
	inflight      map[int]func()
	seq           int
	lastID        uint32
	introspection *dbus.Introspection
	width         int
	height        int
	ready         bool

	// Key bindings
	keys KeyMap

	// Status message
	statusMsg string
	statusErr bool

	// Refresh channel subscription
	refreshCh <-chan store.ChangeEvent
}

// New creates the model. client must record into s for the call log to
// show anything.
func New(cfg *config.Config, client *dbus.Client, s *store.Store, target Target) Model {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	items := make([]list.Item, 0, len(Actions()))
	for _, a := range Actions() {
		items = append(items, a)
	}

	delegate := list.NewDefaultDelegate()
	delegate.SetSpacing(0)
	l := list.New(items, delegate, 0, 0)
	l.Title = "D-Bus Demo"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	m := Model{
		cfg:      cfg,
		client:   client,
		store:    s,
		target:   target,
		ctx:      context.Background(),
		mode:     ModeMain,
		actions:  l,
		help:     help.New(),
		keys:     DefaultKeyMap(),
		inflight: make(map[int]func()),
	}
	// Subscribe to store changes if available
	if s != nil {
		m.refreshCh = s.Subscribe()
	}

	return m
}

// Init initializes the TUI.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.loadRecords,
		m.watchForChanges,
	)
}

// loadRecords asks for the call log to be re-read.
func (m Model) loadRecords() tea.Msg {
	return loadRecordsMsg{}
}

type loadRecordsMsg struct{}

// watchForChanges watches for store changes.
func (m Model) watchForChanges() tea.Msg {
	if m.refreshCh == nil {
		return nil
	}
	if _, ok := <-m.refreshCh; !ok {
		return nil
	}
	return refreshMsg{}
}

type refreshMsg struct{}

// introspectMsg carries the outcome of an async introspection.
type introspectMsg struct {
	seq    int
	result *dbus.Introspection
	err    error
}

// notifyMsg carries the outcome of an async notification.
type notifyMsg struct {
	seq    int
	result dbus.Result
	err    error
}

// configMsg delivers a reloaded configuration.
type configMsg struct {
	cfg *config.Config
}

type statusMsg struct {
	text  string
	isErr bool
}

type clearStatusMsg struct{}

type copyResultMsg struct {
	err error
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		listHeight := m.actionsHeight()
		m.actions.SetSize(msg.Width, listHeight)
		m.log = viewport.New(msg.Width, max(msg.Height-listHeight-3, 1))
		m.log.SetContent(m.renderLog())
		m.log.GotoBottom()
		m.detail = viewport.New(msg.Width, max(msg.Height-4, 1))
		m.detail.SetContent(m.renderIntrospection())

		return m, nil

	case loadRecordsMsg:
		m.reloadRecords()
		return m, nil

	case refreshMsg:
		m.reloadRecords()
		return m, m.watchForChanges

	case introspectMsg:
		delete(m.inflight, msg.seq)
		return m.applyIntrospection(model.ModeAsync, msg.result, msg.err)

	case notifyMsg:
		delete(m.inflight, msg.seq)
		return m.applyNotify(model.ModeAsync, msg.result, msg.err)

	case configMsg:
		m.cfg = msg.cfg
		return m, status("Configuration reloaded", false)

	case statusMsg:
		m.statusMsg = msg.text
		m.statusErr = msg.isErr
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearStatusMsg{}
		})

	case clearStatusMsg:
		m.statusMsg = ""
		m.statusErr = false
		return m, nil

	case copyResultMsg:
		if msg.err != nil {
			return m, status("Copy failed: "+msg.err.Error(), true)
		}
		return m, status("Copied to clipboard", false)
	}

	var cmd tea.Cmd
	switch m.mode {
	case ModeMain:
		m.actions, cmd = m.actions.Update(msg)
	case ModeDetail:
		m.detail, cmd = m.detail.Update(msg)
	}
	return m, cmd
}

func status(text string, isErr bool) tea.Cmd {
	return func() tea.Msg {
		return statusMsg{text: text, isErr: isErr}
	}
}

// handleKey handles key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Global keys
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelInflight()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		if m.mode == ModeHelp {
			m.mode = ModeMain
		} else {
			m.mode = ModeHelp
		}
		return m, nil
	}

	switch m.mode {
	case ModeMain:
		return m.handleMainKey(msg)
	case ModeDetail:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeMain
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	case ModeHelp:
		if key.Matches(msg, m.keys.Back) {
			m.mode = ModeMain
		}
		return m, nil
	}

	return m, nil
}

// handleMainKey handles keys on the action menu.
func (m Model) handleMainKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Run):
		a, ok := m.actions.SelectedItem().(Action)
		if !ok {
			return m, nil
		}
		return m.run(a)

	case key.Matches(msg, m.keys.View):
		if m.introspection == nil {
			return m, status("Nothing introspected yet", true)
		}
		m.mode = ModeDetail
		m.detail.GotoTop()
		return m, nil

	case key.Matches(msg, m.keys.Cancel):
		n := m.cancelInflight()
		if n == 0 {
			return m, status("No pending calls", false)
		}
		return m, status(fmt.Sprintf("Cancelled %d pending call(s)", n), false)

	case key.Matches(msg, m.keys.CopyLogJSON):
		data, err := json.MarshalIndent(m.records, "", "  ")
		if err != nil {
			return m, status("Failed to encode JSON: "+err.Error(), true)
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.CopyLogYAML):
		data, err := yaml.Marshal(m.records)
		if err != nil {
			return m, status("Failed to encode YAML: "+err.Error(), true)
		}
		return m, m.copyToClipboard(string(data))

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadRecords

	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.actions, cmd = m.actions.Update(msg)
	return m, cmd
}

// run performs a menu action. Sync actions run inside Update and hold the
// program until the reply arrives; async actions return a command that
// waits for the pending call off the event loop.
func (m Model) run(a Action) (tea.Model, tea.Cmd) {
	if m.client == nil {
		return m, status("Not connected to the session bus", true)
	}

	switch a {
	case ActionIntrospectSync:
		res, err := m.client.Introspect(m.ctx, m.target.Destination, m.target.Path)
		return m.applyIntrospection(model.ModeSync, res, err)

	case ActionIntrospectAsync:
		pending, err := m.client.IntrospectAsync(m.ctx, m.target.Destination, m.target.Path, nil)
		if err != nil {
			return m.applyIntrospection(model.ModeAsync, nil, err)
		}
		seq := m.track(pending.Cancel)
		return m, tea.Batch(
			status("Introspection sent", false),
			func() tea.Msg {
				res, err := pending.Wait(context.Background())
				return introspectMsg{seq: seq, result: res, err: err}
			},
		)

	case ActionNotifyAsync:
		pending, err := m.client.NotifyAsync(m.ctx, m.cfg.Notification.Request(), nil)
		if err != nil {
			return m.applyNotify(model.ModeAsync, dbus.Result{}, err)
		}
		seq := m.track(pending.Cancel)
		return m, tea.Batch(
			status("Notification sent", false),
			func() tea.Msg {
				res, err := pending.Wait(context.Background())
				return notifyMsg{seq: seq, result: res, err: err}
			},
		)

	case ActionNotifySync:
		res, err := m.client.Notify(m.ctx, m.cfg.Notification.Request())
		return m.applyNotify(model.ModeSync, res, err)

	case ActionCloseLast:
		if m.lastID == 0 {
			return m, status("No notification to close", true)
		}
		id := m.lastID
		if err := m.client.CloseNotification(m.ctx, id); err != nil {
			return m, status(fmt.Sprintf("Close %d failed: %v", id, err), true)
		}
		m.lastID = 0
		return m, status(fmt.Sprintf("Closed notification %d", id), false)

	case ActionServerInfo:
		info, err := m.client.ServerInformation(m.ctx)
		if err != nil {
			return m, status("Server information failed: "+err.Error(), true)
		}
		return m, status(fmt.Sprintf("%s %s by %s (spec %s)", info.Name, info.Version, info.Vendor, info.SpecVersion), false)
	}

	return m, nil
}

func (m *Model) track(cancel func()) int {
	m.seq++
	m.inflight[m.seq] = cancel
	return m.seq
}

func (m *Model) cancelInflight() int {
	n := 0
	for seq, cancel := range m.inflight {
		cancel()
		delete(m.inflight, seq)
		n++
	}
	return n
}

func (m Model) applyIntrospection(mode model.Mode, res *dbus.Introspection, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		slog.Debug("introspection failed", "mode", mode, "error", err)
		return m, status(fmt.Sprintf("%s introspection failed: %v", mode, err), true)
	}
	m.introspection = res
	m.detail.SetContent(m.renderIntrospection())
	m.detail.GotoTop()
	return m, status(fmt.Sprintf("%s introspection: %s", mode, res), false)
}

func (m Model) applyNotify(mode model.Mode, res dbus.Result, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		slog.Debug("notification failed", "mode", mode, "error", err)
		return m, status(fmt.Sprintf("%s notification failed: %v", mode, err), true)
	}
	m.lastID = res.ID
	return m, status(fmt.Sprintf("%s notification delivered, id=%d", mode, res.ID), false)
}

func (m *Model) reloadRecords() {
	if m.store == nil {
		return
	}
	m.records = m.store.Filter(store.FilterOptions{Limit: logLimit})
	m.log.SetContent(m.renderLog())
	m.log.GotoBottom()
}

// renderLog renders the call log oldest first.
func (m Model) renderLog() string {
	if len(m.records) == 0 {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render("No calls yet")
	}

	okStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sentStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11"))

	lines := make([]string, 0, len(m.records))
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		line := r.Line()
		switch {
		case r.Failed():
			line = errStyle.Render(line)
		case r.Finished():
			line = okStyle.Render(line)
		default:
			line = sentStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderIntrospection() string {
	if m.introspection == nil {
		return ""
	}
	var buf bytes.Buffer
	f := output.NewFormatter(output.FormatPlain, output.FormatterOptions{ShowXML: true})
	if err := f.Introspection(&buf, m.introspection); err != nil {
		return "failed to render introspection: " + err.Error()
	}
	return buf.String()
}

func (m Model) actionsHeight() int {
	// Two lines per item plus the title block.
	h := len(m.actions.Items())*2 + 3
	if m.height > 0 && h > m.height/2 {
		h = m.height / 2
	}
	return h
}

// copyToClipboard copies text to the system clipboard.
func (m Model) copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		err := copyText(text, m.cfg)
		return copyResultMsg{err: err}
	}
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	switch m.mode {
	case ModeMain:
		return m.viewMain()
	case ModeDetail:
		return m.viewDetail()
	case ModeHelp:
		return m.viewHelp()
	default:
		return ""
	}
}

func (m Model) viewMain() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12"))

	s := m.actions.View()
	s += "\n" + headerStyle.Render(fmt.Sprintf("Call log (%d pending)", len(m.inflight)))
	s += "\n" + m.log.View()

	// Status bar
	if m.statusMsg != "" {
		statusStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("7"))
		if m.statusErr {
			statusStyle = statusStyle.Foreground(lipgloss.Color("9"))
		}
		s += "\n" + statusStyle.Render(m.statusMsg)
	} else if m.cfg.TUI.ShowHelp {
		s += "\n" + m.buildKeybindBar(m.width, "main")
	}

	return s
}

func (m Model) viewDetail() string {
	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Padding(0, 1)

	header := headerStyle.Render(fmt.Sprintf("%s %s", m.introspection.Destination, m.introspection.Path))

	return header + "\n" + m.detail.View() + "\n" + m.buildKeybindBar(m.width, "detail")
}

func (m Model) viewHelp() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		MarginBottom(1)

	s := titleStyle.Render("Keyboard Shortcuts") + "\n\n"
	s += m.help.FullHelpView(m.keys.FullHelp())
	s += "\n\n"
	s += lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(
		"Blocking actions freeze this screen until the bus replies.\nPress ? or esc to return")

	return s
}

// keybind represents a single keybind with priority for the status bar.
type keybind struct {
	key      string
	desc     string
	priority int // lower = more important (shown first)
}

// buildKeybindBar builds a keybind bar that fits within the given width.
// mode determines which keybinds are shown: "main" or "detail".
func (m Model) buildKeybindBar(width int, mode string) string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))

	var binds []keybind

	switch mode {
	case "main":
		binds = []keybind{
			{"q", "quit", 1},
			{"enter", "run", 2},
			{"?", "help", 3},
			{"v", "view", 4},
			{"x", "cancel", 5},
			{"c", "copy json", 6},
			{"C", "copy yaml", 7},
			{"pgup/pgdn", "scroll log", 8},
		}
	case "detail":
		binds = []keybind{
			{"q", "quit", 1},
			{"esc", "back", 2},
			{"j/k", "scroll", 3},
		}
	}

	// Build the bar, adding keybinds until we run out of space
	const separator = "  "
	result := ""
	for _, b := range binds {
		item := keyStyle.Render(b.key) + " " + b.desc
		plainItem := b.key + " " + b.desc
		testLen := len(plainItem)
		if result != "" {
			testLen = len(stripANSI(result)) + len(separator) + len(plainItem)
		}

		if width > 0 && testLen > width {
			break
		}
		if result != "" {
			result += separator
		}
		result += item
	}

	return style.Render(result)
}

// stripANSI removes ANSI escape codes for length calculation.
func stripANSI(s string) string {
	result := make([]byte, 0, len(s))
	inEscape := false
	for i := 0; i < len(s); i++ {
		if s[i] == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if s[i] == 'm' {
				inEscape = false
			}
			continue
		}
		result = append(result, s[i])
	}
	return string(result)
}

// RunOptions configures the TUI.
type RunOptions struct {
	Config      *config.Config
	ConfigPath  string // Config file to watch for changes (empty = no watching)
	Client      *dbus.Client
	Store       *store.Store
	Target      Target
	PersistPath string // Call log to watch for changes (empty = no watching)
	Logger      *slog.Logger
}

// Run starts the TUI with the given options.
func Run(opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := opts.Store
	if s == nil {
		s = store.NewStore(nil)
	}

	// Pick up calls made by other processes sharing the log
	var watcher *store.FileWatcher
	if opts.PersistPath != "" {
		var err error
		watcher, err = store.NewFileWatcher(s, opts.PersistPath, logger)
		if err != nil {
			logger.Warn("failed to create file watcher", "error", err)
		} else if err := watcher.Start(); err != nil {
			logger.Warn("failed to start file watcher", "error", err)
		}
	}

	m := New(opts.Config, opts.Client, s, opts.Target)
	p := tea.NewProgram(m, tea.WithAltScreen())

	var cfgWatcher *config.Watcher
	if opts.ConfigPath != "" {
		var err error
		cfgWatcher, err = config.NewWatcher(opts.ConfigPath, logger, func(cfg *config.Config) {
			p.Send(configMsg{cfg: cfg})
		})
		if err != nil {
			logger.Warn("failed to create config watcher", "error", err)
		} else if err := cfgWatcher.Start(); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		}
	}

	_, err := p.Run()

	if cfgWatcher != nil {
		_ = cfgWatcher.Stop()
	}
	if watcher != nil {
		_ = watcher.Stop()
	}

	return err
}
