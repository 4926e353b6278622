// Package demo holds the three demo actions behind the GTK window. It has
// no toolkit dependency; the window supplies a View and a client whose
// dispatcher runs completions on the main loop.
package demo

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	godbus "github.com/godbus/dbus/v5"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

// View is what the controller writes to. Calls arrive on the goroutine
// that runs the client's dispatcher.
type View interface {
	AppendLog(line string)
	SetStatus(text string, isErr bool)
}

// Target is the object the introspection actions look at.
type Target struct {
	Destination string
	Path        godbus.ObjectPath
}

// Controller runs the demo actions against a client.
type Controller struct {
	client *dbus.Client
	target Target
	view   View
	logger *slog.Logger

	mu       sync.Mutex
	request  dbus.NotificationRequest
	inflight map[uint64]func()
	// early holds calls that resolved before they were registered.
	early  map[uint64]bool
	seq    uint64
	lastID uint32
}

// NewController creates a controller. req is the notification the
// notification action sends.
func NewController(client *dbus.Client, target Target, req dbus.NotificationRequest, view View, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client:   client,
		target:   target,
		view:     view,
		logger:   logger,
		request:  req,
		inflight: make(map[uint64]func()),
		early:    make(map[uint64]bool),
	}
}

// SetRequest replaces the notification sent by Notify.
func (c *Controller) SetRequest(req dbus.NotificationRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = req
}

// LastNotificationID returns the id of the last delivered notification,
// or 0 if none was delivered.
func (c *Controller) LastNotificationID() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID
}

// Pending returns how many async calls have not resolved yet.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// IntrospectSync introspects the target and blocks until the reply.
func (c *Controller) IntrospectSync(ctx context.Context) {
	c.view.AppendLog("Synchronous D-Bus connection")
	c.view.AppendLog("dbus_name = " + c.target.Destination)

	res, err := c.client.Introspect(ctx, c.target.Destination, c.target.Path)
	c.introspected("sync", res, err)
}

// IntrospectAsync starts an introspection and returns immediately.
func (c *Controller) IntrospectAsync(ctx context.Context) {
	c.view.AppendLog("Asynchronous D-Bus connection")
	c.view.AppendLog("dbus_name = " + c.target.Destination)

	c.view.SetStatus("Introspection sent", false)
	seq := c.nextSeq()
	pending, err := c.client.IntrospectAsync(ctx, c.target.Destination, c.target.Path,
		func(res *dbus.Introspection, err error) {
			c.untrack(seq)
			c.introspected("async", res, err)
		})
	if err != nil {
		c.introspected("async", nil, err)
		return
	}
	c.track(seq, pending.Cancel)
}

// Notify sends the configured notification without blocking.
func (c *Controller) Notify(ctx context.Context) {
	c.view.AppendLog("Notify")

	c.mu.Lock()
	req := c.request
	c.mu.Unlock()

	c.view.SetStatus("Notification sent", false)
	seq := c.nextSeq()
	pending, err := c.client.NotifyAsync(ctx, req, func(res dbus.Result, err error) {
		c.untrack(seq)
		c.notified(res, err)
	})
	if err != nil {
		c.notified(dbus.Result{}, err)
		return
	}
	c.track(seq, pending.Cancel)
}

// CloseLast closes the last delivered notification.
func (c *Controller) CloseLast(ctx context.Context) {
	id := c.LastNotificationID()
	if id == 0 {
		c.view.SetStatus("No notification to close", true)
		return
	}
	if err := c.client.CloseNotification(ctx, id); err != nil {
		c.view.AppendLog(fmt.Sprintf("close %d failed: %v", id, err))
		c.view.SetStatus("Close failed", true)
		return
	}

	c.mu.Lock()
	if c.lastID == id {
		c.lastID = 0
	}
	c.mu.Unlock()
	c.view.AppendLog(fmt.Sprintf("closed notification %d", id))
	c.view.SetStatus(fmt.Sprintf("Closed notification %d", id), false)
}

// CancelPending cancels every unresolved async call and reports how many
// there were. Each still completes, with ErrCancelled.
func (c *Controller) CancelPending() int {
	c.mu.Lock()
	cancels := make([]func(), 0, len(c.inflight))
	for _, cancel := range c.inflight {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return len(cancels)
}

func (c *Controller) nextSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// track registers the cancel func of call seq. The completion may already
// have run on another goroutine, in which case there is nothing to track.
func (c *Controller) track(seq uint64, cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.early[seq] {
		delete(c.early, seq)
		return
	}
	c.inflight[seq] = cancel
}

func (c *Controller) untrack(seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[seq]; ok {
		delete(c.inflight, seq)
		return
	}
	c.early[seq] = true
}

func (c *Controller) introspected(mode string, res *dbus.Introspection, err error) {
	if err != nil {
		c.logger.Warn("introspection failed", "mode", mode, "error", err)
		c.view.AppendLog(fmt.Sprintf("%s introspection failed: %v", mode, err))
		c.view.SetStatus("Introspection failed", true)
		return
	}

	c.view.AppendLog(fmt.Sprintf("%s introspection: %s", mode, res))
	if names := res.InterfaceNames(); len(names) > 0 {
		c.view.AppendLog("  interfaces: " + strings.Join(names, ", "))
	}
	if children := res.ChildNames(); len(children) > 0 {
		c.view.AppendLog("  children: " + strings.Join(children, ", "))
	}
	c.view.SetStatus("Introspection complete", false)
}

func (c *Controller) notified(res dbus.Result, err error) {
	if err != nil {
		c.logger.Warn("notification failed", "error", err)
		if name := dbus.RemoteErrorName(err); name != "" {
			c.view.AppendLog(fmt.Sprintf("notification failed (%s): %v", name, err))
		} else {
			c.view.AppendLog(fmt.Sprintf("notification failed: %v", err))
		}
		c.view.SetStatus("Notification failed", true)
		return
	}

	c.mu.Lock()
	c.lastID = res.ID
	c.mu.Unlock()

	c.view.AppendLog(fmt.Sprintf("notification id = %d", res.ID))
	c.view.SetStatus("Notification delivered", false)
}
