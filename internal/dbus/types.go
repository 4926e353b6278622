package dbus

import (
	"github.com/godbus/dbus/v5"
)

const (
	// NotificationsService is the well-known bus name of the notification daemon.
	NotificationsService = "org.freedesktop.Notifications"
	// NotificationsPath is the notification object path.
	NotificationsPath = dbus.ObjectPath("/org/freedesktop/Notifications")
	// NotificationsInterface is the notification interface name.
	NotificationsInterface = "org.freedesktop.Notifications"

	// IntrospectableInterface is the standard introspection interface.
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"

	// NotifySignature is the argument signature of Notify.
	NotifySignature = "susssasa{sv}i"
	// NotifyReplySignature is the reply signature of Notify.
	NotifyReplySignature = "u"
)

// Urgency levels matching the freedesktop.org notification specification.
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Expire timeouts with special meaning.
const (
	ExpireDefault int32 = -1
	ExpireNever   int32 = 0
)

// CloseReason represents the reason for closing a notification.
// These values are defined by the freedesktop.org notification specification.
type CloseReason uint32

const (
	// CloseReasonExpired indicates the notification expired (timeout reached).
	CloseReasonExpired CloseReason = 1
	// CloseReasonDismissed indicates the user dismissed the notification.
	CloseReasonDismissed CloseReason = 2
	// CloseReasonClosed indicates the notification was closed via CloseNotification.
	CloseReasonClosed CloseReason = 3
	// CloseReasonUndefined is reserved by the notification specification.
	CloseReasonUndefined CloseReason = 4
)

// String returns the string representation of the close reason.
func (r CloseReason) String() string {
	switch r {
	case CloseReasonExpired:
		return "expired"
	case CloseReasonDismissed:
		return "dismissed"
	case CloseReasonClosed:
		return "closed"
	case CloseReasonUndefined:
		return "undefined"
	default:
		return "unknown"
	}
}

// Action is a notification action: the key reported back through
// ActionInvoked and the label shown to the user.
type Action struct {
	Key   string `json:"key" yaml:"key"`
	Label string `json:"label" yaml:"label"`
}

// NotificationRequest describes one desktop notification to send.
// It is built right before a Notify call and not reused afterwards.
type NotificationRequest struct {
	AppName string
	// ReplacesID is the id of a notification to replace; any negative
	// value (conventionally -1) asks for a new notification.
	ReplacesID int64
	AppIcon    string
	Summary    string
	Body       string
	Actions    []Action
	// Hints maps hint names to typed values, see Build for the accepted types.
	Hints map[string]any
	// ExpireTimeout in milliseconds: -1 = server default, 0 = never expire.
	ExpireTimeout int32
}

// NewRequest returns a request with the defaults the demo uses:
// a new notification with the server's default timeout.
func NewRequest(appName, summary, body string) NotificationRequest {
	return NotificationRequest{
		AppName:       appName,
		ReplacesID:    -1,
		Summary:       summary,
		Body:          body,
		ExpireTimeout: ExpireDefault,
	}
}

// Result is the outcome of a successful Notify call.
type Result struct {
	// ID is the server-assigned notification id.
	ID uint32 `json:"id" yaml:"id"`
}

// ServerInfo contains information about the notification server.
type ServerInfo struct {
	Name        string `json:"name" yaml:"name"`
	Vendor      string `json:"vendor" yaml:"vendor"`
	Version     string `json:"version" yaml:"version"`
	SpecVersion string `json:"spec_version" yaml:"spec_version"`
}

// ServerCapabilities lists the capabilities advertised by the loopback server.
var ServerCapabilities = []string{
	"actions",
	"body",
	"persistence",
}

// DefaultServerInfo returns the loopback server information.
func DefaultServerInfo() ServerInfo {
	return ServerInfo{
		Name:        "busdemo",
		Vendor:      "busdemo",
		Version:     "dev",
		SpecVersion: "1.2",
	}
}
