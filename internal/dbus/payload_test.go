package dbus

import (
	"math"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_FieldOrder(t *testing.T) {
	req := demoRequest()
	req.Actions = []Action{{Key: "default", Label: "Open"}, {Key: "quit", Label: "Quit"}}

	p, err := Build(req)
	require.NoError(t, err)

	args := p.Args()
	require.Len(t, args, 8)
	assert.Equal(t, "app_name", args[0])
	assert.Equal(t, uint32(0), args[1])
	assert.Equal(t, "", args[2])
	assert.Equal(t, "D-Bus Notification", args[3])
	assert.Equal(t, "Hello World Message", args[4])
	assert.Equal(t, []string{"default", "Open", "quit", "Quit"}, args[5])
	assert.Equal(t, map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))}, args[6])
	assert.Equal(t, int32(-1), args[7])

	assert.Equal(t, NotifySignature, p.Signature().String())
}

func TestBuild_SignatureWithoutActionsOrHints(t *testing.T) {
	p, err := Build(NewRequest("app", "title", "body"))
	require.NoError(t, err)

	assert.Equal(t, NotifySignature, p.Signature().String())
	assert.Empty(t, p.Actions)
	assert.Empty(t, p.Hints)
}

func TestBuild_Idempotent(t *testing.T) {
	req := demoRequest()
	req.Actions = []Action{{Key: "default", Label: "Open"}}
	req.Hints["category"] = "im.received"
	req.Hints["image-data"] = []byte{1, 2, 3}

	first, err := Build(req)
	require.NoError(t, err)
	second, err := Build(req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Args(), second.Args())
}

func TestBuild_DoesNotAliasRequest(t *testing.T) {
	data := []byte{1, 2, 3}
	req := demoRequest()
	req.Actions = []Action{{Key: "quit", Label: "Quit"}}
	req.Hints["x-data"] = data

	p, err := Build(req)
	require.NoError(t, err)

	data[0] = 9
	req.Hints["urgency"] = 2
	assert.Equal(t, []byte{1, 2, 3}, p.Hints["x-data"].Value())
	assert.Equal(t, byte(1), p.Urgency())

	args := p.Args()
	args[5].([]string)[0] = "mutated"
	args[6].(map[string]dbus.Variant)["extra"] = dbus.MakeVariant("x")
	assert.NotContains(t, p.Hints, "extra")
}

func TestBuild_RejectsNUL(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*NotificationRequest)
	}{
		{"summary", func(r *NotificationRequest) { r.Summary = "D-Bus\x00Notification" }},
		{"body", func(r *NotificationRequest) { r.Body = "Hello\x00World" }},
		{"app name", func(r *NotificationRequest) { r.AppName = "app\x00" }},
		{"icon", func(r *NotificationRequest) { r.AppIcon = "\x00" }},
		{"action label", func(r *NotificationRequest) { r.Actions = []Action{{Key: "k", Label: "a\x00b"}} }},
		{"string hint", func(r *NotificationRequest) { r.Hints["category"] = "a\x00" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := demoRequest()
			tt.modify(&req)

			_, err := Build(req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Contains(t, err.Error(), "NUL")
		})
	}
}

func TestBuild_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*NotificationRequest)
	}{
		{"empty app name", func(r *NotificationRequest) { r.AppName = "" }},
		{"invalid utf8 body", func(r *NotificationRequest) { r.Body = "\xff\xfe" }},
		{"replaces id overflow", func(r *NotificationRequest) { r.ReplacesID = math.MaxUint32 + 1 }},
		{"timeout below -1", func(r *NotificationRequest) { r.ExpireTimeout = -2 }},
		{"empty action key", func(r *NotificationRequest) { r.Actions = []Action{{Key: "", Label: "Quit"}} }},
		{"unsupported hint type", func(r *NotificationRequest) { r.Hints["x-list"] = []string{"a"} }},
		{"unsupported hint struct", func(r *NotificationRequest) { r.Hints["x-struct"] = struct{}{} }},
		{"unsupported variant", func(r *NotificationRequest) { r.Hints["x-var"] = dbus.MakeVariant([]string{"a"}) }},
		{"urgency out of range", func(r *NotificationRequest) { r.Hints["urgency"] = 3 }},
		{"urgency not integer", func(r *NotificationRequest) { r.Hints["urgency"] = "high" }},
		{"category not string", func(r *NotificationRequest) { r.Hints["category"] = 5 }},
		{"transient not bool", func(r *NotificationRequest) { r.Hints["transient"] = "yes" }},
		{"int overflow", func(r *NotificationRequest) { r.Hints["value"] = math.MaxInt32 + 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := demoRequest()
			tt.modify(&req)

			_, err := Build(req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBuild_ReplacesID(t *testing.T) {
	tests := []struct {
		in   int64
		want uint32
	}{
		{-1, 0},
		{-100, 0},
		{0, 0},
		{7, 7},
		{math.MaxUint32, math.MaxUint32},
	}

	for _, tt := range tests {
		req := demoRequest()
		req.ReplacesID = tt.in
		p, err := Build(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, p.ReplacesID, "replaces id %d", tt.in)
	}
}

func TestBuild_HintTypes(t *testing.T) {
	req := demoRequest()
	req.Hints = map[string]any{
		"urgency":        int32(2),
		"category":       "email.arrived",
		"transient":      true,
		"value":          50,
		"x-byte":         byte(7),
		"x-int64":        int64(-5),
		"x-uint64":       uint64(5),
		"x-double":       1.5,
		"x-bytes":        []byte("raw"),
		"sound-name":     dbus.MakeVariant("message-new-instant"),
		"x-variant-uint": dbus.MakeVariant(uint32(9)),
	}

	p, err := Build(req)
	require.NoError(t, err)

	sigs := map[string]string{}
	for k, v := range p.Hints {
		sigs[k] = v.Signature().String()
	}
	assert.Equal(t, map[string]string{
		"urgency":        "y",
		"category":       "s",
		"transient":      "b",
		"value":          "i",
		"x-byte":         "y",
		"x-int64":        "x",
		"x-uint64":       "t",
		"x-double":       "d",
		"x-bytes":        "ay",
		"sound-name":     "s",
		"x-variant-uint": "u",
	}, sigs)

	assert.Equal(t, UrgencyCritical, p.Urgency())
	assert.Equal(t, "email.arrived", p.Category())
	assert.True(t, p.Transient())
	assert.Equal(t, NotifySignature, p.Signature().String())
}

func TestActionsFromFlat(t *testing.T) {
	actions, err := ActionsFromFlat([]string{"default", "Open", "quit", "Quit"})
	require.NoError(t, err)
	assert.Equal(t, []Action{{Key: "default", Label: "Open"}, {Key: "quit", Label: "Quit"}}, actions)

	actions, err = ActionsFromFlat(nil)
	require.NoError(t, err)
	assert.Empty(t, actions)

	// A label without its key.
	_, err = ActionsFromFlat([]string{"Quit"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParsePayload_RoundTrip(t *testing.T) {
	req := demoRequest()
	req.Actions = []Action{{Key: "quit", Label: "Quit"}}

	p, err := Build(req)
	require.NoError(t, err)

	decoded, err := ParsePayload(p.Args())
	require.NoError(t, err)
	assert.Equal(t, p, decoded)
	assert.Equal(t, map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(1))}, decoded.Hints)
	assert.Equal(t, []Action{{Key: "quit", Label: "Quit"}}, decoded.ParsedActions())
}

func TestParsePayload_Malformed(t *testing.T) {
	p, err := Build(demoRequest())
	require.NoError(t, err)

	_, err = ParsePayload(p.Args()[:7])
	assert.ErrorIs(t, err, ErrProtocol)

	args := p.Args()
	args[1] = int32(-1)
	_, err = ParsePayload(args)
	assert.ErrorIs(t, err, ErrProtocol)
}

func TestParsedActions(t *testing.T) {
	tests := []struct {
		name     string
		actions  []string
		expected []Action
	}{
		{
			name:     "empty",
			actions:  nil,
			expected: []Action{},
		},
		{
			name:     "single action",
			actions:  []string{"default", "Open"},
			expected: []Action{{Key: "default", Label: "Open"}},
		},
		{
			name:     "odd number (incomplete pair ignored)",
			actions:  []string{"default", "Open", "orphan"},
			expected: []Action{{Key: "default", Label: "Open"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Payload{Actions: tt.actions}
			assert.Equal(t, tt.expected, p.ParsedActions())
		})
	}
}

func TestPayloadHintAccessors(t *testing.T) {
	p := Payload{Hints: map[string]dbus.Variant{
		"urgency":       dbus.MakeVariant("high"),
		"desktop-entry": dbus.MakeVariant("firefox"),
		"resident":      dbus.MakeVariant(true),
	}}

	assert.Equal(t, UrgencyNormal, p.Urgency(), "wrong type falls back to normal")
	assert.Equal(t, "firefox", p.DesktopEntry())
	assert.True(t, p.Resident())
	assert.False(t, p.Transient())
	assert.Equal(t, "", p.Category())
}

func TestCloseReasonString(t *testing.T) {
	tests := []struct {
		reason   CloseReason
		expected string
	}{
		{CloseReasonExpired, "expired"},
		{CloseReasonDismissed, "dismissed"},
		{CloseReasonClosed, "closed"},
		{CloseReasonUndefined, "undefined"},
		{CloseReason(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.reason.String())
		})
	}
}
