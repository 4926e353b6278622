package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// EmitNotificationClosed emits the NotificationClosed signal.
func (s *LoopbackServer) EmitNotificationClosed(id uint32, reason CloseReason) error {
	err := s.conn.Emit(NotificationsPath, NotificationsInterface+".NotificationClosed", id, uint32(reason))
	if err != nil {
		return fmt.Errorf("failed to emit NotificationClosed signal: %w", err)
	}
	s.logger.Debug("emitted NotificationClosed signal", "id", id, "reason", reason.String())
	return nil
}

// EmitActionInvoked emits the ActionInvoked signal.
func (s *LoopbackServer) EmitActionInvoked(id uint32, actionKey string) error {
	err := s.conn.Emit(NotificationsPath, NotificationsInterface+".ActionInvoked", id, actionKey)
	if err != nil {
		return fmt.Errorf("failed to emit ActionInvoked signal: %w", err)
	}
	s.logger.Debug("emitted ActionInvoked signal", "id", id, "action_key", actionKey)
	return nil
}

// SignalKind distinguishes the notification signals.
type SignalKind int

const (
	SignalActionInvoked SignalKind = iota
	SignalNotificationClosed
)

// String returns the signal member name.
func (k SignalKind) String() string {
	switch k {
	case SignalActionInvoked:
		return "ActionInvoked"
	case SignalNotificationClosed:
		return "NotificationClosed"
	default:
		return "unknown"
	}
}

// SignalEvent is a decoded notification signal.
type SignalEvent struct {
	Kind      SignalKind
	ID        uint32
	ActionKey string      // ActionInvoked only
	Reason    CloseReason // NotificationClosed only
}

// ParseSignal decodes a notification daemon signal. It reports false for
// any other signal or a malformed body.
func ParseSignal(sig *dbus.Signal) (SignalEvent, bool) {
	if sig == nil || sig.Path != NotificationsPath || len(sig.Body) != 2 {
		return SignalEvent{}, false
	}
	id, ok := sig.Body[0].(uint32)
	if !ok {
		return SignalEvent{}, false
	}

	switch sig.Name {
	case NotificationsInterface + ".ActionInvoked":
		key, ok := sig.Body[1].(string)
		if !ok {
			return SignalEvent{}, false
		}
		return SignalEvent{Kind: SignalActionInvoked, ID: id, ActionKey: key}, true
	case NotificationsInterface + ".NotificationClosed":
		reason, ok := sig.Body[1].(uint32)
		if !ok {
			return SignalEvent{}, false
		}
		return SignalEvent{Kind: SignalNotificationClosed, ID: id, Reason: CloseReason(reason)}, true
	default:
		return SignalEvent{}, false
	}
}

// WatchSignals subscribes to ActionInvoked and NotificationClosed. Events
// are delivered on the returned channel until ctx is done, after which
// the subscription is removed and the channel closed.
func WatchSignals(ctx context.Context, conn *dbus.Conn) (<-chan SignalEvent, error) {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(NotificationsPath),
		dbus.WithMatchInterface(NotificationsInterface),
	}
	if err := conn.AddMatchSignal(opts...); err != nil {
		return nil, fmt.Errorf("failed to add signal match: %w", err)
	}

	raw := make(chan *dbus.Signal, 16)
	conn.Signal(raw)

	events := make(chan SignalEvent, 16)
	go func() {
		defer close(events)
		defer func() {
			conn.RemoveSignal(raw)
			_ = conn.RemoveMatchSignal(opts...)
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-raw:
				if !ok {
					return
				}
				ev, ok := ParseSignal(sig)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}
