package display

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/diamondburned/gotk4/pkg/glib/v2"
	"github.com/diamondburned/gotk4/pkg/gtk/v4"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/demo"
)

const (
	windowTitle  = "D-Bus GTK4 Demo"
	windowWidth  = 500
	windowHeight = 200
)

// Dispatch runs fn on the GTK main loop. It is the client dispatcher for
// the window, so completion callbacks may touch widgets.
func Dispatch(fn func()) {
	glib.IdleAdd(fn)
}

// Options configures the window.
type Options struct {
	// Client must be created with Dispatch as its dispatcher.
	Client  *dbus.Client
	Target  demo.Target
	Request dbus.NotificationRequest
	Logger  *slog.Logger
}

// Window is the demo application window.
type Window struct {
	window *gtk.ApplicationWindow
	ctrl   *demo.Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Widgets
	box       *gtk.Box
	statusLbl *gtk.Label
	logView   *gtk.TextView
	logBuf    *gtk.TextBuffer
}

// NewWindow builds the window. It must be called on the main loop.
func NewWindow(app *gtk.Application, opts Options) *Window {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Window{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	w.ctrl = demo.NewController(opts.Client, opts.Target, opts.Request, w, logger)

	loadStyle(logger)

	w.window = gtk.NewApplicationWindow(app)
	w.window.SetTitle(windowTitle)
	w.window.SetDefaultSize(windowWidth, windowHeight)

	w.buildUI()

	w.window.ConnectCloseRequest(func() bool {
		w.Shutdown()
		return false
	})

	return w
}

// buildUI constructs the widget hierarchy.
func (w *Window) buildUI() {
	w.box = gtk.NewBox(gtk.OrientationVertical, 1)
	w.box.AddCSSClass("demo-window")
	w.box.AddCSSClass(colorSchemeClass())

	w.box.Append(w.button("Synchronous D-Bus Connection", func() {
		w.ctrl.IntrospectSync(w.ctx)
	}))
	w.box.Append(w.button("Asynchronous D-Bus Connection", func() {
		w.ctrl.IntrospectAsync(w.ctx)
	}))
	w.box.Append(w.button("D-Bus Notification", func() {
		w.ctrl.Notify(w.ctx)
	}))
	w.box.Append(w.button("Close Last Notification", func() {
		w.ctrl.CloseLast(w.ctx)
	}))

	w.statusLbl = gtk.NewLabel("Ready")
	w.statusLbl.SetXAlign(0)
	w.statusLbl.AddCSSClass("demo-status")
	w.box.Append(w.statusLbl)

	w.logView = gtk.NewTextView()
	w.logView.SetEditable(false)
	w.logView.SetCursorVisible(false)
	w.logView.SetMonospace(true)
	w.logView.SetWrapMode(gtk.WrapWordChar)
	w.logView.AddCSSClass("demo-log")
	w.logBuf = w.logView.Buffer()

	scroller := gtk.NewScrolledWindow()
	scroller.SetVExpand(true)
	scroller.SetMinContentHeight(120)
	scroller.SetChild(w.logView)
	w.box.Append(scroller)

	w.window.SetChild(w.box)
}

func (w *Window) button(label string, onClick func()) *gtk.Button {
	btn := gtk.NewButtonWithLabel(label)
	btn.ConnectClicked(func() {
		w.logger.Debug("button clicked", "label", label)
		onClick()
	})
	return btn
}

// Present shows the window.
func (w *Window) Present() {
	w.window.Present()
}

// SetRequest replaces the notification the notification button sends.
func (w *Window) SetRequest(req dbus.NotificationRequest) {
	w.ctrl.SetRequest(req)
	w.AppendLog("configuration reloaded")
}

// Shutdown cancels every pending call. Their completions still arrive,
// with ErrCancelled.
func (w *Window) Shutdown() {
	if n := w.ctrl.CancelPending(); n > 0 {
		w.logger.Info("cancelled pending calls", "count", n)
	}
	w.cancel()
}

// AppendLog adds a timestamped line to the log view.
func (w *Window) AppendLog(line string) {
	w.logger.Info(line)

	text := fmt.Sprintf("%s %s\n", time.Now().Format("15:04:05"), line)
	w.logBuf.Insert(w.logBuf.EndIter(), text)
	w.logView.ScrollToIter(w.logBuf.EndIter(), 0, false, 0, 1)
}

// SetStatus updates the status line.
func (w *Window) SetStatus(text string, isErr bool) {
	w.statusLbl.SetText(text)
	if isErr {
		w.statusLbl.AddCSSClass("error")
	} else {
		w.statusLbl.RemoveCSSClass("error")
	}
}
