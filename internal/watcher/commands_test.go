package watcher

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/akulearn/akulive/internal/rtclient"
)

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"   ", nil},
		{"sub progress", []string{"sub", "progress"}},
		{`send note text="hello there" n=3`, []string{"send", "note", "text=hello there", "n=3"}},
		{`sub "new content"`, []string{"sub", "new content"}},
		{`send x empty=""`, []string{"send", "x", "empty="}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, splitArgs(tt.in), "input %q", tt.in)
	}
}

func TestParseKV(t *testing.T) {
	got := parseKV([]string{"Topic=progress", "bad", "=x", "msg=a=b"})
	require.Equal(t, map[string]string{"topic": "progress", "msg": "a=b"}, got)
}

func TestParseValue(t *testing.T) {
	require.Equal(t, int64(42), parseValue("42"))
	require.Equal(t, 2.5, parseValue("2.5"))
	require.Equal(t, true, parseValue("true"))
	require.Equal(t, "L1", parseValue("L1"))
	require.Equal(t, "", parseValue(""))
}

func TestPrinterLine(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	p.now = func() time.Time { return time.Date(2025, 1, 10, 9, 5, 7, 0, time.UTC) }

	p.line(kindGood, "streak", "daily: 5 days")
	p.say("plain")
	require.Equal(t, "09:05:07 streak       daily: 5 days\nplain\n", buf.String())
}

// клиент без соединения: Connect не вызывается, сети нет
func newOfflineWatcher(t *testing.T, opts ...Option) (*Watcher, *bytes.Buffer) {
	t.Helper()
	c := rtclient.New("student_001", rtclient.WithHost("127.0.0.1:1"))
	t.Cleanup(c.Disconnect)
	var buf bytes.Buffer
	return New(c, &buf, opts...), &buf
}

func TestHandleCommandOffline(t *testing.T) {
	w, out := newOfflineWatcher(t, WithTopics("progress"))

	require.NoError(t, w.HandleCommand(""))
	require.ErrorIs(t, w.HandleCommand("quit"), ErrQuit)
	require.ErrorIs(t, w.HandleCommand("EXIT"), ErrQuit)

	require.NoError(t, w.HandleCommand("status"))
	require.Contains(t, out.String(), "Disconnected attempts=0")

	require.NoError(t, w.HandleCommand("sub achievements"))
	require.Contains(t, out.String(), "achievements: offline, will retry on connect")
	require.Equal(t, []string{"progress", "achievements"}, w.Topics())

	require.NoError(t, w.HandleCommand("sub progress"))
	require.Contains(t, out.String(), "already tracking progress")
	require.Len(t, w.Topics(), 2)

	require.NoError(t, w.HandleCommand("unsub progress"))
	require.Equal(t, []string{"achievements"}, w.Topics())
	require.Error(t, w.HandleCommand("unsub progress"))

	require.NoError(t, w.HandleCommand("topics"))
	require.Contains(t, out.String(), "topics: achievements")

	require.ErrorIs(t, w.HandleCommand("ping"), errOffline)
	require.ErrorIs(t, w.HandleCommand("get_status"), errOffline)
	require.ErrorIs(t, w.HandleCommand("send note text=hi"), errOffline)

	require.Error(t, w.HandleCommand("sub"))
	require.Error(t, w.HandleCommand("send"))
	require.Error(t, w.HandleCommand("dance"))
}

func TestHandleCommandHelp(t *testing.T) {
	w, out := newOfflineWatcher(t)
	require.NoError(t, w.HandleCommand("help"))
	for _, l := range helpLines {
		require.True(t, strings.Contains(out.String(), l), "help misses %q", l)
	}
}

func TestStartRequiresClient(t *testing.T) {
	var w *Watcher
	require.Error(t, w.Start(testContext(t)))
	require.Error(t, New(nil, &bytes.Buffer{}).Start(testContext(t)))
}
