// Package dbus talks to the session bus on behalf of the demo.
// It builds org.freedesktop.Notifications Notify payloads, delivers them
// (and Introspect calls) through an injected Transport either blocking or
// asynchronously, and exports the small objects the demo needs on the bus.
package dbus
