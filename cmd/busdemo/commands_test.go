package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/busdemo/internal/config"
	"github.com/jmylchreest/busdemo/internal/dbus"
	"github.com/jmylchreest/busdemo/internal/model"
)

func TestParseActions(t *testing.T) {
	actions, err := parseActions([]string{"default=Open", "quit", "reply=Reply = now"})
	require.NoError(t, err)
	assert.Equal(t, []config.ActionConfig{
		{Key: "default", Label: "Open"},
		{Key: "quit", Label: "quit"},
		{Key: "reply", Label: "Reply = now"},
	}, actions)

	_, err = parseActions([]string{"=Open"})
	assert.Error(t, err)
}

func TestParseNotificationID(t *testing.T) {
	id, err := parseNotificationID("42")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), id)

	for _, bad := range []string{"0", "-1", "abc", "4294967296"} {
		_, err := parseNotificationID(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Cleanup(func() {
		notifyOpts.replaces = 0
		for _, name := range []string{"summary", "urgency", "action"} {
			notifyCmd.Flags().Lookup(name).Changed = false
		}
		notifyOpts.summary, notifyOpts.urgency, notifyOpts.actions = "", "", nil
	})

	base := config.DefaultConfig().Notification

	// Nothing set: the configured notification.
	req, err := buildRequest(notifyCmd, base)
	require.NoError(t, err)
	assert.Equal(t, "D-Bus Notification", req.Summary)
	assert.Equal(t, "Hello World Message", req.Body)
	assert.Equal(t, dbus.UrgencyNormal, req.Hints["urgency"])

	require.NoError(t, notifyCmd.Flags().Set("summary", "Build finished"))
	require.NoError(t, notifyCmd.Flags().Set("urgency", "critical"))
	require.NoError(t, notifyCmd.Flags().Set("action", "default=Open"))
	notifyOpts.replaces = 7

	req, err = buildRequest(notifyCmd, base)
	require.NoError(t, err)
	assert.Equal(t, "Build finished", req.Summary)
	assert.Equal(t, "Hello World Message", req.Body)
	assert.Equal(t, dbus.UrgencyCritical, req.Hints["urgency"])
	assert.Equal(t, []dbus.Action{{Key: "default", Label: "Open"}}, req.Actions)
	assert.Equal(t, int64(7), req.ReplacesID)

	_, err = dbus.Build(req)
	assert.NoError(t, err)

	require.NoError(t, notifyCmd.Flags().Set("urgency", "urgent"))
	_, err = buildRequest(notifyCmd, base)
	assert.Error(t, err)
}

func TestFormatSignal(t *testing.T) {
	assert.Equal(t, "ActionInvoked id=3 action=default",
		formatSignal(dbus.SignalEvent{Kind: dbus.SignalActionInvoked, ID: 3, ActionKey: "default"}))
	assert.Equal(t, "NotificationClosed id=3 reason=dismissed",
		formatSignal(dbus.SignalEvent{Kind: dbus.SignalNotificationClosed, ID: 3, Reason: dbus.CloseReasonDismissed}))
}

func testRecords(now time.Time) []model.CallRecord {
	return []model.CallRecord{
		{ID: "01A", Kind: model.KindNotify, Mode: model.ModeSync, State: "completed", Member: "org.freedesktop.Notifications.Notify",
			StartedAt: now.Add(-10 * 24 * time.Hour), FinishedAt: now.Add(-10 * 24 * time.Hour)},
		{ID: "01B", Kind: model.KindIntrospect, Mode: model.ModeAsync, State: "failed", Error: "call cancelled",
			Member: "org.freedesktop.DBus.Introspectable.Introspect", StartedAt: now.Add(-2 * time.Hour), FinishedAt: now.Add(-2 * time.Hour)},
		{ID: "01C", Kind: model.KindNotify, Mode: model.ModeAsync, State: "completed", Member: "org.freedesktop.Notifications.Notify",
			StartedAt: now.Add(-time.Minute), FinishedAt: now.Add(-time.Minute)},
	}
}

func ids(records []model.CallRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestPruneCandidates(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		olderThan time.Duration
		keep      int
		expected  []string
	}{
		{"older than a week", 7 * 24 * time.Hour, 0, []string{"01A"}},
		{"keep newest two", 0, 2, []string{"01A"}},
		{"keep newest one", 0, 1, []string{"01B", "01A"}},
		{"both", time.Hour, 5, []string{"01B", "01A"}},
		{"nothing", 30 * 24 * time.Hour, 10, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			removed := pruneCandidates(testRecords(now), tt.olderThan, tt.keep, now)
			if tt.expected == nil {
				assert.Empty(t, removed)
				return
			}
			assert.Equal(t, tt.expected, ids(removed))
		})
	}
}

func TestQueryHistory(t *testing.T) {
	saved := historyOpts
	t.Cleanup(func() { historyOpts = saved })

	tests := []struct {
		name     string
		setup    func()
		expected []string
		wantErr  bool
	}{
		{"defaults newest first", func() {}, []string{"01C", "01B", "01A"}, false},
		{"kind", func() { historyOpts.kind = "notify" }, []string{"01C", "01A"}, false},
		{"mode and failed", func() { historyOpts.mode = "async"; historyOpts.failed = true }, []string{"01B"}, false},
		{"since", func() { historyOpts.since = "1d" }, []string{"01C", "01B"}, false},
		{"filter expression", func() { historyOpts.filter = "member~introspect" }, []string{"01B"}, false},
		{"search", func() { historyOpts.search = "cancelled" }, []string{"01B"}, false},
		{"oldest first with limit", func() { historyOpts.sortOrder = "asc"; historyOpts.limit = 2 }, []string{"01A", "01B"}, false},
		{"bad kind", func() { historyOpts.kind = "signal" }, nil, true},
		{"bad mode", func() { historyOpts.mode = "later" }, nil, true},
		{"bad since", func() { historyOpts.since = "soon" }, nil, true},
		{"bad sort", func() { historyOpts.sortBy = "app" }, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			historyOpts = saved
			historyOpts.sortBy, historyOpts.sortOrder = "started", "desc"
			tt.setup()

			records, err := queryHistory(testRecords(time.Now()))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ids(records))
		})
	}
}
