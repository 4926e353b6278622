package dbus

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// NotificationHandler is called when the loopback server accepts a notification.
type NotificationHandler func(p Payload, id uint32)

// LoopbackServer is a minimal org.freedesktop.Notifications daemon. It
// logs what it receives and hands out ids, so the demo can run on a
// session without a real notification daemon.
type LoopbackServer struct {
	conn   *dbus.Conn
	logger *slog.Logger

	nextID atomic.Uint32

	mu            sync.RWMutex
	active        map[uint32]Payload
	notifyHandler NotificationHandler
	serverInfo    ServerInfo
	running       bool
}

// NewLoopbackServer creates a server on conn.
func NewLoopbackServer(conn *dbus.Conn, logger *slog.Logger) *LoopbackServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoopbackServer{
		conn:       conn,
		logger:     logger,
		active:     make(map[uint32]Payload),
		serverInfo: DefaultServerInfo(),
	}
}

// SetNotifyHandler sets the handler called for each accepted notification.
func (s *LoopbackServer) SetNotifyHandler(handler NotificationHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyHandler = handler
}

// SetServerInfo sets the information returned by GetServerInformation.
func (s *LoopbackServer) SetServerInfo(info ServerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverInfo = info
}

// Start exports the notification interface and claims the bus name.
func (s *LoopbackServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	if err := s.conn.Export(s, NotificationsPath, NotificationsInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: string(NotificationsPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    NotificationsInterface,
				Methods: notificationMethods(),
				Signals: notificationSignals(),
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), NotificationsPath, IntrospectableInterface); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := s.conn.RequestName(NotificationsService, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("bus name %s already taken", NotificationsService)
	}

	s.running = true
	s.logger.Info("loopback notification server started", "name", NotificationsService, "path", NotificationsPath)
	return nil
}

// Stop releases the bus name. The connection stays open; it is shared.
func (s *LoopbackServer) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if _, err := s.conn.ReleaseName(NotificationsService); err != nil {
		s.logger.Warn("failed to release bus name", "error", err)
	}
	s.logger.Info("loopback notification server stopped")
	return nil
}

// GetCapabilities returns the capabilities of the server.
// D-Bus method: GetCapabilities() -> as
func (s *LoopbackServer) GetCapabilities() ([]string, *dbus.Error) {
	return ServerCapabilities, nil
}

// GetServerInformation returns information about the server.
// D-Bus method: GetServerInformation() -> (ssss)
func (s *LoopbackServer) GetServerInformation() (string, string, string, string, *dbus.Error) {
	s.mu.RLock()
	info := s.serverInfo
	s.mu.RUnlock()
	return info.Name, info.Vendor, info.Version, info.SpecVersion, nil
}

// Notify accepts a notification.
// D-Bus method: Notify(susssasa{sv}i) -> u
func (s *LoopbackServer) Notify(
	appName string,
	replacesID uint32,
	appIcon string,
	summary string,
	body string,
	actions []string,
	hints map[string]dbus.Variant,
	expireTimeout int32,
) (uint32, *dbus.Error) {
	p := Payload{
		AppName:       appName,
		ReplacesID:    replacesID,
		AppIcon:       appIcon,
		Summary:       summary,
		Body:          body,
		Actions:       actions,
		Hints:         hints,
		ExpireTimeout: expireTimeout,
	}
	return s.accept(p), nil
}

func (s *LoopbackServer) accept(p Payload) uint32 {
	var id uint32
	s.mu.Lock()
	if _, ok := s.active[p.ReplacesID]; p.ReplacesID > 0 && ok {
		id = p.ReplacesID
	} else {
		id = s.nextID.Add(1)
	}
	s.active[id] = p
	handler := s.notifyHandler
	s.mu.Unlock()

	s.logger.Info("notification received",
		"id", id,
		"app_name", p.AppName,
		"summary", p.Summary,
		"urgency", p.Urgency(),
		"actions", len(p.Actions)/2,
	)

	if handler != nil {
		handler(p, id)
	}
	return id
}

// CloseNotification closes a notification by id.
// D-Bus method: CloseNotification(u)
func (s *LoopbackServer) CloseNotification(id uint32) *dbus.Error {
	if !s.remove(id) {
		return nil
	}
	if err := s.EmitNotificationClosed(id, CloseReasonClosed); err != nil {
		s.logger.Warn("failed to emit NotificationClosed signal", "id", id, "error", err)
	}
	return nil
}

// InvokeAction emits ActionInvoked for id and, unless the notification is
// resident, closes it as dismissed.
func (s *LoopbackServer) InvokeAction(id uint32, actionKey string) error {
	s.mu.RLock()
	p, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %d is not active", id)
	}

	if err := s.EmitActionInvoked(id, actionKey); err != nil {
		return err
	}
	if !p.Resident() {
		s.remove(id)
		return s.EmitNotificationClosed(id, CloseReasonDismissed)
	}
	return nil
}

// Active returns the payload of an open notification.
func (s *LoopbackServer) Active(id uint32) (Payload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.active[id]
	return p, ok
}

func (s *LoopbackServer) remove(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; !ok {
		return false
	}
	delete(s.active, id)
	return true
}

func notificationMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "GetCapabilities",
			Args: []introspect.Arg{
				{Name: "capabilities", Type: "as", Direction: "out"},
			},
		},
		{
			Name: "GetServerInformation",
			Args: []introspect.Arg{
				{Name: "name", Type: "s", Direction: "out"},
				{Name: "vendor", Type: "s", Direction: "out"},
				{Name: "version", Type: "s", Direction: "out"},
				{Name: "spec_version", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Notify",
			Args: []introspect.Arg{
				{Name: "app_name", Type: "s", Direction: "in"},
				{Name: "replaces_id", Type: "u", Direction: "in"},
				{Name: "app_icon", Type: "s", Direction: "in"},
				{Name: "summary", Type: "s", Direction: "in"},
				{Name: "body", Type: "s", Direction: "in"},
				{Name: "actions", Type: "as", Direction: "in"},
				{Name: "hints", Type: "a{sv}", Direction: "in"},
				{Name: "expire_timeout", Type: "i", Direction: "in"},
				{Name: "id", Type: "u", Direction: "out"},
			},
		},
		{
			Name: "CloseNotification",
			Args: []introspect.Arg{
				{Name: "id", Type: "u", Direction: "in"},
			},
		},
	}
}

func notificationSignals() []introspect.Signal {
	return []introspect.Signal{
		{
			Name: "NotificationClosed",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "reason", Type: "u"},
			},
		},
		{
			Name: "ActionInvoked",
			Args: []introspect.Arg{
				{Name: "id", Type: "u"},
				{Name: "action_key", Type: "s"},
			},
		},
	}
}
