package dbus

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	// DemoPath is where the demo object lives, matching the application id
	// org.gtk.example.
	DemoPath = dbus.ObjectPath("/org/gtk/example")
	// DemoInterface is the demo object's own interface.
	DemoInterface = "org.gtk.example.Demo"
)

// DemoService is the object the introspection buttons look at. It is
// exported on the application's own connection, so introspecting the
// connection's unique name at DemoPath always answers.
type DemoService struct {
	conn    *dbus.Conn
	path    dbus.ObjectPath
	version string
	logger  *slog.Logger

	mu       sync.Mutex
	exported bool
}

// NewDemoService creates a demo object for path (DemoPath if empty).
func NewDemoService(conn *dbus.Conn, path dbus.ObjectPath, version string, logger *slog.Logger) *DemoService {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = DemoPath
	}
	return &DemoService{
		conn:    conn,
		path:    path,
		version: version,
		logger:  logger,
	}
}

// Path returns the object path the service is exported at.
func (s *DemoService) Path() dbus.ObjectPath {
	return s.path
}

// Export publishes the object and its introspection data.
func (s *DemoService) Export() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exported {
		return nil
	}
	if !s.path.IsValid() {
		return fmt.Errorf("invalid object path %q", s.path)
	}

	if err := s.conn.Export(s, s.path, DemoInterface); err != nil {
		return fmt.Errorf("failed to export object: %w", err)
	}

	node := &introspect.Node{
		Name: string(s.path),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name:    DemoInterface,
				Methods: demoMethods(),
			},
		},
	}
	if err := s.conn.Export(introspect.NewIntrospectable(node), s.path, IntrospectableInterface); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	s.exported = true
	s.logger.Info("demo object exported", "path", s.path, "interface", DemoInterface)
	return nil
}

// Unexport removes the object from the connection.
func (s *DemoService) Unexport() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.exported {
		return
	}
	if err := s.conn.Export(nil, s.path, DemoInterface); err != nil {
		s.logger.Warn("failed to unexport object", "error", err)
	}
	if err := s.conn.Export(nil, s.path, IntrospectableInterface); err != nil {
		s.logger.Warn("failed to unexport introspectable", "error", err)
	}
	s.exported = false
}

// Ping answers "pong".
// D-Bus method: Ping() -> s
func (s *DemoService) Ping() (string, *dbus.Error) {
	s.logger.Debug("Ping called")
	return "pong", nil
}

// Version returns the application version.
// D-Bus method: Version() -> s
func (s *DemoService) Version() (string, *dbus.Error) {
	return s.version, nil
}

func demoMethods() []introspect.Method {
	return []introspect.Method{
		{
			Name: "Ping",
			Args: []introspect.Arg{
				{Name: "reply", Type: "s", Direction: "out"},
			},
		},
		{
			Name: "Version",
			Args: []introspect.Arg{
				{Name: "version", Type: "s", Direction: "out"},
			},
		},
	}
}
