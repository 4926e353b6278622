package input

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/busdemo/internal/dbus"
)

func TestDunstSource_Name(t *testing.T) {
	assert.Equal(t, "dunst", NewDunstSource().Name())
}

func TestParseDunstHistory(t *testing.T) {
	// Sample dunstctl history output, newest first
	jsonData := []byte(`{
		"type": "array",
		"data": [[
			{
				"id": {"type": "INT", "data": 124},
				"appname": {"type": "STRING", "data": "slack"},
				"summary": {"type": "STRING", "data": "New Message"},
				"body": {"type": "STRING", "data": "Hello from John"},
				"timeout": {"type": "INT", "data": 0},
				"urgency": {"type": "INT", "data": 2},
				"category": {"type": "STRING", "data": ""},
				"icon_path": {"type": "STRING", "data": ""},
				"default_action_name": {"type": "STRING", "data": "default"},
				"progress": {"type": "INT", "data": -1},
				"stack_tag": {"type": "STRING", "data": ""}
			},
			{
				"id": {"type": "INT", "data": 123},
				"appname": {"type": "STRING", "data": "firefox"},
				"summary": {"type": "STRING", "data": "Download Complete"},
				"body": {"type": "STRING", "data": "myfile.zip has finished downloading"},
				"timeout": {"type": "INT", "data": 10000000},
				"urgency": {"type": "INT", "data": 1},
				"category": {"type": "STRING", "data": "transfer.complete"},
				"icon_path": {"type": "STRING", "data": "/usr/share/icons/firefox.png"},
				"default_action_name": {"type": "STRING", "data": ""},
				"progress": {"type": "INT", "data": 250},
				"stack_tag": {"type": "STRING", "data": "download"}
			}
		]]
	}`)

	requests, err := ParseDunstHistory(jsonData)
	require.NoError(t, err)
	require.Len(t, requests, 2)

	// Oldest first
	r1 := requests[0]
	assert.Equal(t, "firefox", r1.AppName)
	assert.Equal(t, "Download Complete", r1.Summary)
	assert.Equal(t, "myfile.zip has finished downloading", r1.Body)
	assert.Equal(t, "/usr/share/icons/firefox.png", r1.AppIcon)
	assert.Equal(t, int32(10000), r1.ExpireTimeout)
	assert.Equal(t, dbus.UrgencyNormal, r1.Hints["urgency"])
	assert.Equal(t, "transfer.complete", r1.Hints["category"])
	assert.Equal(t, "download", r1.Hints["x-dunst-stack-tag"])
	assert.Equal(t, int32(100), r1.Hints["value"])
	assert.Empty(t, r1.Actions)

	r2 := requests[1]
	assert.Equal(t, "slack", r2.AppName)
	assert.Equal(t, dbus.ExpireDefault, r2.ExpireTimeout)
	assert.Equal(t, dbus.UrgencyCritical, r2.Hints["urgency"])
	assert.NotContains(t, r2.Hints, "category")
	assert.NotContains(t, r2.Hints, "value")
	assert.Equal(t, []dbus.Action{{Key: "default", Label: "default"}}, r2.Actions)

	// Every replayed request builds.
	for _, r := range requests {
		_, err := dbus.Build(r)
		assert.NoError(t, err)
	}
}

func TestParseDunstHistory_EmptyAndInvalid(t *testing.T) {
	requests, err := ParseDunstHistory([]byte(`{"type": "array", "data": [[]]}`))
	require.NoError(t, err)
	assert.Empty(t, requests)

	_, err = ParseDunstHistory([]byte(`not json`))
	var adapterErr *AdapterError
	require.ErrorAs(t, err, &adapterErr)
	assert.Equal(t, "dunst", adapterErr.Source)
}

func TestConvertDunstEntry_Defaults(t *testing.T) {
	req := convertDunstEntry(dunstEntry{
		Summary: dunstValue{Type: "STRING", Data: "nul\x00inside"},
		Urgency: dunstValue{Type: "INT", Data: float64(7)},
	})

	assert.Equal(t, "dunst", req.AppName, "empty app name falls back")
	assert.Equal(t, "nul inside", req.Summary)
	assert.Equal(t, dbus.UrgencyNormal, req.Hints["urgency"])
}

func TestDunstValue(t *testing.T) {
	tests := []struct {
		name string
		val  dunstValue
		str  string
		num  int
	}{
		{"float", dunstValue{Data: float64(42)}, "42", 42},
		{"string", dunstValue{Data: "17"}, "17", 17},
		{"nil", dunstValue{}, "", 0},
		{"bool", dunstValue{Data: true}, "true", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.str, tt.val.String())
			assert.Equal(t, tt.num, tt.val.Int())
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "hello"},
		{"  padded  ", "padded"},
		{"line\nbreak", "line\nbreak"},
		{"tab\there", "tab\there"},
		{"bell\x07ring", "bell ring"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, sanitizeString(tt.input))
	}
}
