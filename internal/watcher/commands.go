package watcher

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/akulearn/akulive/internal/rtclient"
)

var (
	// ErrQuit: пользователь попросил выйти.
	ErrQuit    = errors.New("quit")
	errOffline = errors.New("not connected, message dropped")
)

// сплит с поддержкой кавычек: title="Waves and optics"
var reArg = regexp.MustCompile(`(\S+?=)?"([^"]*)"|(\S+)`)

var helpLines = []string{
	"help",
	"status",
	"topics",
	"sub <topic>",
	"unsub <topic>",
	"ping",
	"get_status",
	"send <type> [key=value ...]",
	"connect",
	"quit",
}

// HandleCommand выполняет одну строку из консоли.
func (w *Watcher) HandleCommand(text string) error {
	fields := splitArgs(text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help", "?":
		w.out.say(strings.Join(helpLines, "\n"))
		return nil

	case "quit", "exit":
		return ErrQuit

	case "status":
		st := w.rtc.Status()
		w.out.line(kindInfo, "status", fmt.Sprintf("%s attempts=%d subscribers=%d endpoint=%s",
			st.State, st.ReconnectAttempts, st.SubscriberCount, st.Endpoint))
		return nil

	// ---------- TOPICS ----------
	case "topics":
		topics := w.Topics()
		if len(topics) == 0 {
			w.out.say("topics: (empty)")
			return nil
		}
		w.out.say("topics: " + strings.Join(topics, ", "))
		return nil

	case "sub":
		if len(fields) < 2 {
			return fmt.Errorf("usage: sub <topic>")
		}
		topic := fields[1]
		w.mu.Lock()
		added := w.addTopicLocked(topic)
		w.mu.Unlock()
		if !added {
			w.out.say("already tracking " + topic)
		}
		// запомнили в любом случае: уйдёт при следующем подключении
		if !w.rtc.SubscribeTopic(topic) {
			w.out.line(kindWarn, "subscribe", topic+": offline, will retry on connect")
		}
		return nil

	case "unsub":
		if len(fields) < 2 {
			return fmt.Errorf("usage: unsub <topic>")
		}
		topic := fields[1]
		if !w.removeTopic(topic) {
			return fmt.Errorf("not tracking %q", topic)
		}
		if !w.rtc.UnsubscribeTopic(topic) {
			w.out.line(kindWarn, "unsubscribe", topic+": offline")
		}
		return nil

	// ---------- RAW ----------
	case "ping":
		if !w.rtc.Ping() {
			return errOffline
		}
		return nil

	case "get_status":
		if !w.rtc.RequestStatus() {
			return errOffline
		}
		return nil

	case "send":
		if len(fields) < 2 {
			return fmt.Errorf("usage: send <type> [key=value ...]")
		}
		data := rtclient.Payload{}
		for k, v := range parseKV(fields[2:]) {
			data[k] = parseValue(v)
		}
		if !w.rtc.Send(fields[1], data) {
			return errOffline
		}
		return nil

	case "connect":
		if w.rtc.IsConnected() {
			w.out.say("already connected")
			return nil
		}
		return w.rtc.Connect(context.Background())

	default:
		return fmt.Errorf("unknown command %q, try help", cmd)
	}
}

func splitArgs(s string) []string {
	var out []string
	for _, m := range reArg.FindAllStringSubmatch(s, -1) {
		if m[3] != "" {
			out = append(out, m[3])
		} else {
			out = append(out, m[1]+m[2])
		}
	}
	return out
}

func parseKV(args []string) map[string]string {
	res := map[string]string{}
	for _, a := range args {
		kv := strings.SplitN(a, "=", 2)
		if len(kv) == 2 && kv[0] != "" {
			res[strings.ToLower(kv[0])] = kv[1]
		}
	}
	return res
}

// parseValue: число, true/false или строка как есть.
func parseValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
