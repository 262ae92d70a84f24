package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/akulearn/akulive/internal/rtclient"
)

type Watcher struct {
	rtc *rtclient.Client
	out *printer

	mu      sync.Mutex
	topics  []string
	subs    []*rtclient.Subscription
	running bool
}

type Option func(*Watcher)

// WithTopics: топики, которые watcher (пере)запрашивает при каждом подключении.
func WithTopics(topics ...string) Option {
	return func(w *Watcher) {
		for _, t := range topics {
			w.addTopicLocked(t)
		}
	}
}

func WithColor(on bool) Option {
	return func(w *Watcher) {
		w.out.color = on
	}
}

func New(rtc *rtclient.Client, out io.Writer, opts ...Option) *Watcher {
	w := &Watcher{
		rtc: rtc,
		out: newPrinter(out, false),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start вешает обработчики и подключается. Ошибка dial не фатальна:
// клиент сам переподключается, мы только сообщаем.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil || w.rtc == nil {
		return errors.New("watcher: client not set")
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return errors.New("watcher: already running")
	}
	w.running = true
	w.subs = w.register()
	w.mu.Unlock()

	w.out.line(kindMuted, "connecting", w.rtc.Endpoint())
	if err := w.rtc.Connect(ctx); err != nil {
		w.out.line(kindWarn, "connect", err.Error())
	}
	return nil
}

// Stop отключает клиент. Повторный Stop ничего не делает.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	subs := w.subs
	w.subs = nil
	w.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
	w.rtc.Disconnect()
}

func (w *Watcher) Topics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.topics)
}

// вызывать под w.mu (или до старта)
func (w *Watcher) addTopicLocked(topic string) bool {
	if topic == "" || slices.Contains(w.topics, topic) {
		return false
	}
	w.topics = append(w.topics, topic)
	return true
}

func (w *Watcher) removeTopic(topic string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := slices.Index(w.topics, topic)
	if i < 0 {
		return false
	}
	w.topics = slices.Delete(w.topics, i, i+1)
	return true
}

// resubscribe: при (ре)подключении заново запрашиваем все топики.
// Клиент этого сам не делает, это политика приложения.
func (w *Watcher) resubscribe() {
	for _, t := range w.Topics() {
		if !w.rtc.SubscribeTopic(t) {
			w.out.line(kindWarn, "subscribe", fmt.Sprintf("%s: not sent", t))
		}
	}
}

func (w *Watcher) register() []*rtclient.Subscription {
	c := w.rtc
	return []*rtclient.Subscription{
		rtclient.On(c, func(ev rtclient.ConnectionEstablished) {
			text := ev.StudentID
			if ev.Message != "" {
				text += ": " + ev.Message
			}
			w.out.line(kindGood, "connected", text)
			// одно соединение: локальное событие и серверное, топики шлём по локальному
			if ev.Local {
				w.resubscribe()
			}
		}),
		rtclient.On(c, func(ev rtclient.MasteryUpdate) {
			text := fmt.Sprintf("lesson %s: %.1f%%", ev.LessonID, ev.MasteryData.MasteryPercentage)
			if ev.MasteryData.MasteryLevel != "" {
				text += " (" + ev.MasteryData.MasteryLevel + ")"
			}
			w.out.line(kindInfo, "mastery", text)
		}),
		rtclient.On(c, func(ev rtclient.MasteryLevelUp) {
			w.out.line(kindGood, "level up", fmt.Sprintf("lesson %s: %s -> %s", ev.LessonID, ev.OldLevel, ev.NewLevel))
		}),
		rtclient.On(c, func(ev rtclient.AchievementUnlocked) {
			text := ev.Name()
			if ev.Points > 0 {
				text += fmt.Sprintf(" (+%d)", ev.Points)
			}
			w.out.line(kindGood, "achievement", text)
		}),
		rtclient.On(c, func(ev rtclient.ProgressUpdate) {
			w.out.line(kindInfo, "progress", fmt.Sprintf("lesson %s: mastery %.1f%%, quiz %.1f%%, problems %.1f%%",
				ev.LessonID, ev.MasteryPercentage, ev.QuizScore, ev.ProblemsCompleted))
		}),
		rtclient.On(c, func(ev rtclient.ProgressOverview) {
			w.out.line(kindInfo, "overview", fmt.Sprintf("%d/%d lessons, avg mastery %.1f%%",
				ev.CompletedLessons, ev.TotalLessons, ev.AverageMastery))
		}),
		rtclient.On(c, func(ev rtclient.QuizResult) { w.printQuiz(ev) }),
		rtclient.On(c, func(ev rtclient.QuizCompleted) { w.printQuiz(ev.QuizResult) }),
		rtclient.On(c, func(ev rtclient.LeaderboardUpdate) {
			w.out.line(kindInfo, "leaderboard", fmt.Sprintf("rank %d/%d, %d pts", ev.Rank, ev.TotalStudents, ev.Points))
		}),
		rtclient.On(c, func(ev rtclient.StreakUpdate) {
			w.out.line(kindGood, "streak", fmt.Sprintf("%s: %d days", ev.StreakType, ev.StreakDays))
		}),
		rtclient.On(c, func(ev rtclient.RecommendationsUpdated) {
			w.out.line(kindInfo, "recommend", fmt.Sprintf("%d new recommendations", ev.Count))
		}),
		rtclient.On(c, func(ev rtclient.NewLessonAvailable) {
			w.out.line(kindInfo, "new lesson", fmt.Sprintf("%s: %s (%s)", ev.Subject, ev.Title, ev.LessonID))
		}),
		rtclient.On(c, func(ev rtclient.SubscriptionConfirmed) {
			w.out.line(kindMuted, "subscribed", ev.Topic)
		}),
		rtclient.On(c, func(ev rtclient.UnsubscriptionConfirmed) {
			w.out.line(kindMuted, "unsubscribed", ev.Topic)
		}),
		rtclient.On(c, func(rtclient.Pong) {
			w.out.line(kindMuted, "pong", "")
		}),
		rtclient.On(c, func(ev rtclient.StatusReport) {
			w.out.line(kindMuted, "server", fmt.Sprintf("connected=%t topics=%v", ev.Connected, ev.Subscriptions))
		}),
		rtclient.On(c, func(ev rtclient.ServerError) {
			w.out.line(kindBad, "server err", ev.Message)
		}),
		rtclient.On(c, func(ev rtclient.TransportError) {
			w.out.line(kindBad, "error", ev.Err)
		}),
		rtclient.On(c, func(ev rtclient.Disconnected) {
			w.out.line(kindWarn, "disconnected", fmt.Sprintf("code=%d %s", ev.Code, ev.Reason))
		}),
		rtclient.On(c, func(ev rtclient.MaxReconnectAttempts) {
			w.out.line(kindBad, "gave up", fmt.Sprintf("after %d reconnect attempts; type \"connect\" to retry", ev.Attempts))
		}),
		rtclient.On(c, func(ev rtclient.Unknown) {
			fields := "{}"
			if ev.Fields != nil {
				fields = ev.Fields.String()
			}
			w.out.line(kindMuted, ev.Type, fields)
		}),
	}
}

func (w *Watcher) printQuiz(ev rtclient.QuizResult) {
	k := kindInfo
	if ev.Percentage >= 50 {
		k = kindGood
	}
	w.out.line(k, "quiz", fmt.Sprintf("%s: %g/%g (%.0f%%)", ev.QuizID, ev.Score, ev.MaxScore, ev.Percentage))
}
