package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

func testRecords() []model.CallRecord {
	now := time.Now()
	return []model.CallRecord{
		{
			ID:             "01J0000000000000000000000A",
			Kind:           model.KindNotify,
			Mode:           model.ModeAsync,
			State:          "completed",
			Destination:    dbus.NotificationsService,
			Path:           string(dbus.NotificationsPath),
			Member:         "org.freedesktop.Notifications.Notify",
			NotificationID: 42,
			Summary:        "D-Bus Notification",
			StartedAt:      now.Add(-5 * time.Minute),
			FinishedAt:     now.Add(-5*time.Minute + 250*time.Millisecond),
		},
		{
			ID:          "01J0000000000000000000000B",
			Kind:        model.KindIntrospect,
			Mode:        model.ModeSync,
			State:       "failed",
			Destination: ":1.42",
			Path:        "/org/gtk/example",
			Member:      "org.freedesktop.DBus.Introspectable.Introspect",
			Error:       "transport failure:\nno reply",
			StartedAt:   now.Add(-2 * time.Hour),
			FinishedAt:  now.Add(-2 * time.Hour),
		},
	}
}

const testXML = `<node>
  <interface name="org.gtk.example.Demo">
    <method name="Echo">
      <arg name="in" type="s" direction="in"/>
      <arg name="out" type="s" direction="out"/>
    </method>
    <signal name="Changed">
      <arg name="value" type="u"/>
    </signal>
    <property name="Version" type="s" access="read"/>
  </interface>
  <node name="child"/>
</node>`

func testIntrospection(t *testing.T) *dbus.Introspection {
	t.Helper()
	in, err := dbus.ParseIntrospection(":1.42", dbus.DemoPath, testXML)
	require.NoError(t, err)
	return in
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestNewFormatter(t *testing.T) {
	opts := DefaultFormatterOptions()
	assert.IsType(t, &PlainFormatter{}, NewFormatter(FormatPlain, opts))
	assert.IsType(t, &DmenuFormatter{}, NewFormatter(FormatDmenu, opts))
	assert.IsType(t, &IDsFormatter{}, NewFormatter(FormatIDs, opts))
	assert.IsType(t, &JSONFormatter{}, NewFormatter(FormatJSON, opts))
	assert.IsType(t, &YAMLFormatter{}, NewFormatter(FormatYAML, opts))
	assert.IsType(t, &PlainFormatter{}, NewFormatter("unknown", opts))
}

func TestPlainFormatter_Calls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlainFormatter(DefaultFormatterOptions()).Calls(&buf, testRecords()))

	out := buf.String()
	assert.Contains(t, out, "[1] [async] notify org.freedesktop.Notifications.Notify completed id=42 (250ms)")
	assert.Contains(t, out, "5 minutes ago")
	assert.Contains(t, out, "[2] [sync] introspect")
	assert.Contains(t, out, "    :1.42 /org/gtk/example\n")
}

func TestPlainFormatter_Introspection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewPlainFormatter(DefaultFormatterOptions()).Introspection(&buf, testIntrospection(t)))

	assert.Equal(t, `:1.42 /org/gtk/example
  interface org.gtk.example.Demo
    method   Echo(s) -> s
    signal   Changed(u)
    property Version s read
  node child
`, buf.String())
}

func TestPlainFormatter_Value(t *testing.T) {
	f := NewPlainFormatter(DefaultFormatterOptions())

	var buf bytes.Buffer
	require.NoError(t, f.Value(&buf, dbus.Result{ID: 42}))
	assert.Equal(t, "42\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Value(&buf, []string{"body", "actions"}))
	assert.Equal(t, "body\nactions\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Value(&buf, dbus.DefaultServerInfo()))
	assert.Contains(t, buf.String(), "spec_version: 1.2")
}

func TestDmenuFormatter_Calls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewDmenuFormatter(DefaultFormatterOptions()).Calls(&buf, testRecords()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1 | 5m | async | org.freedesktop.Notifications.Notify completed #42", lines[0])
	assert.Equal(t, "2 | 2h | sync | org.freedesktop.DBus.Introspectable.Introspect failed: transport failure: no reply", lines[1])
}

func TestDmenuFormatter_CustomTemplate(t *testing.T) {
	opts := DefaultFormatterOptions()
	opts.Template = "{{.Index}} {{stateIcon .Call.State}} {{truncate .Call.Member 12}}"

	var buf bytes.Buffer
	require.NoError(t, NewDmenuFormatter(opts).Calls(&buf, testRecords()))
	assert.Equal(t, "1 + org.freed...\n2 ! org.freed...\n", buf.String())
}

func TestDmenuFormatter_InvalidTemplateFallsBack(t *testing.T) {
	opts := DefaultFormatterOptions()
	opts.Template = "{{.Index"

	var buf bytes.Buffer
	require.NoError(t, NewDmenuFormatter(opts).Calls(&buf, testRecords()[:1]))
	assert.True(t, strings.HasPrefix(buf.String(), "1 | "))
}

func TestDmenuFormatter_Introspection(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewDmenuFormatter(DefaultFormatterOptions()).Introspection(&buf, testIntrospection(t)))
	assert.Equal(t, "org.gtk.example.Demo.Echo\norg.gtk.example.Demo.Changed\n", buf.String())
}

func TestIDsFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewIDsFormatter()
	require.NoError(t, f.Calls(&buf, testRecords()))
	assert.Equal(t, "01J0000000000000000000000A\n01J0000000000000000000000B\n", buf.String())

	buf.Reset()
	require.NoError(t, f.Introspection(&buf, testIntrospection(t)))
	assert.Equal(t, "org.gtk.example.Demo\n", buf.String())
}

func TestJSONFormatter_Calls(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(DefaultFormatterOptions()).Calls(&buf, testRecords()))

	var decoded []model.CallRecord
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, uint32(42), decoded[0].NotificationID)
	assert.Equal(t, "failed", decoded[1].State)

	buf.Reset()
	require.NoError(t, NewJSONFormatter(DefaultFormatterOptions()).Calls(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func TestJSONFormatter_Introspection(t *testing.T) {
	opts := DefaultFormatterOptions()
	opts.ShowXML = true

	var buf bytes.Buffer
	require.NoError(t, NewJSONFormatter(opts).Introspection(&buf, testIntrospection(t)))

	var view introspectionView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	assert.Equal(t, ":1.42", view.Destination)
	require.Len(t, view.Interfaces, 1)
	assert.Equal(t, []string{"Echo(s) -> s"}, view.Interfaces[0].Methods)
	assert.Equal(t, []string{"child"}, view.Children)
	assert.Equal(t, testXML, view.XML)
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	f := NewYAMLFormatter(DefaultFormatterOptions())
	require.NoError(t, f.Value(&buf, dbus.DefaultServerInfo()))

	var info dbus.ServerInfo
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &info))
	assert.Equal(t, dbus.DefaultServerInfo(), info)

	buf.Reset()
	require.NoError(t, f.Introspection(&buf, testIntrospection(t)))
	assert.Contains(t, buf.String(), "name: org.gtk.example.Demo")
	assert.NotContains(t, buf.String(), "xml:")
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "unknown", relativeTime(time.Time{}))
	assert.Equal(t, "now", relativeTime(now))
	assert.Equal(t, "3m", relativeTime(now.Add(-3*time.Minute)))
	assert.Equal(t, "5h", relativeTime(now.Add(-5*time.Hour)))
	assert.Equal(t, "2d", relativeTime(now.Add(-50*time.Hour)))
	assert.Equal(t, "2w", relativeTime(now.Add(-15*24*time.Hour)))
}
