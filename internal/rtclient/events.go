package rtclient

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// Типы сообщений протокола.
const (
	TypeConnectionEstablished   = "connection_established"
	TypeMasteryUpdate           = "mastery_update"
	TypeMasteryLevelUp          = "mastery_level_up"
	TypeAchievementUnlocked     = "achievement_unlocked"
	TypeProgressUpdate          = "progress_update"
	TypeProgressOverview        = "progress_overview"
	TypeQuizResult              = "quiz_result"
	TypeQuizCompleted           = "quiz_completed"
	TypeLeaderboardUpdate       = "leaderboard_update"
	TypeStreakUpdate            = "streak_update"
	TypeRecommendationsUpdated  = "recommendations_updated"
	TypeNewLessonAvailable      = "new_lesson_available"
	TypeSubscriptionConfirmed   = "subscription_confirmed"
	TypeUnsubscriptionConfirmed = "unsubscription_confirmed"
	TypePong                    = "pong"
	TypeHeartbeat               = "heartbeat"
	TypeStatus                  = "status"
	TypeError                   = "error"
	TypeDisconnected            = "disconnected"
	TypeMaxReconnectAttempts    = "max_reconnect_attempts"

	// исходящие управляющие
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypeGetStatus   = "get_status"
)

var errMissingType = errors.New("frame has no string \"type\" field")

// Payload: поля сообщения как есть после json.Unmarshal.
type Payload map[string]any

func (p Payload) without(key string) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Message: то, что получают подписчики.
//
// Подписчики конкретного типа получают Payload без поля "type",
// wildcard-подписчики: весь конверт, включая "type". Event одинаков для всех.
// Payload общий для всех подписчиков одного вида: не модифицируйте его.
type Message struct {
	Type    string
	Payload Payload
	Event   Event
}

// Event: разобранное сообщение. Набор вариантов закрыт, всё неизвестное
// приходит как Unknown.
type Event interface {
	EventType() string
}

// ID принимает и строку, и число ("L1", 42).
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// ========================= входящие (сервер) =========================

// ConnectionEstablished приходит дважды на соединение: сразу после open
// от самого клиента (Local) и следом от сервера.
type ConnectionEstablished struct {
	StudentID string `json:"student_id"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Local     bool   `json:"-"`
}

type MasteryData struct {
	MasteryLevel      string  `json:"mastery_level,omitempty"`
	MasteryPercentage float64 `json:"mastery_percentage"`
}

type MasteryUpdate struct {
	LessonID    ID          `json:"lesson_id"`
	MasteryData MasteryData `json:"mastery_data"`
	Timestamp   string      `json:"timestamp,omitempty"`
}

type MasteryLevelUp struct {
	LessonID  ID     `json:"lesson_id"`
	OldLevel  string `json:"old_level"`
	NewLevel  string `json:"new_level"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Achievement struct {
	ID          ID     `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type AchievementUnlocked struct {
	AchievementID ID     `json:"achievement_id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	Points        int    `json:"points"`
	// старые сервера присылают вложенный объект
	Achievement *Achievement `json:"achievement,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// Name: заголовок ачивки с учётом старого формата.
func (a AchievementUnlocked) Name() string {
	if a.Title != "" {
		return a.Title
	}
	if a.Achievement != nil {
		return a.Achievement.Name
	}
	return string(a.AchievementID)
}

type ProgressUpdate struct {
	LessonID          ID              `json:"lesson_id"`
	MasteryLevel      string          `json:"mastery_level,omitempty"`
	MasteryPercentage float64         `json:"mastery_percentage"`
	QuizScore         float64         `json:"quiz_score"`
	ProblemsCompleted float64         `json:"problems_completed"`
	Progress          json.RawMessage `json:"progress,omitempty"`
	Timestamp         string          `json:"timestamp,omitempty"`
}

type ProgressOverview struct {
	TotalLessons     int     `json:"total_lessons"`
	CompletedLessons int     `json:"completed_lessons"`
	AverageMastery   float64 `json:"average_mastery"`
	Timestamp        string  `json:"timestamp,omitempty"`
}

type QuizResult struct {
	QuizID     ID      `json:"quiz_id"`
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Percentage float64 `json:"percentage"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// QuizCompleted: тот же результат под именем, которое шлёт текущий сервер.
type QuizCompleted struct {
	QuizResult
}

type LeaderboardUpdate struct {
	Rank          int             `json:"rank"`
	TotalStudents int             `json:"total_students"`
	Points        int             `json:"points"`
	Leaderboard   json.RawMessage `json:"leaderboard,omitempty"`
	Timestamp     string          `json:"timestamp,omitempty"`
}

type StreakUpdate struct {
	StreakType string `json:"streak_type"`
	StreakDays int    `json:"streak_days"`
	Timestamp  string `json:"timestamp,omitempty"`
}

type RecommendationsUpdated struct {
	Count           int       `json:"count"`
	Recommendations []Payload `json:"recommendations"`
	Timestamp       string    `json:"timestamp,omitempty"`
}

type NewLessonAvailable struct {
	LessonID  ID     `json:"lesson_id"`
	Subject   string `json:"subject"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp,omitempty"`
}

type SubscriptionConfirmed struct {
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp,omitempty"`
}

type UnsubscriptionConfirmed struct {
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp,omitempty"`
}

type Pong struct {
	Timestamp string `json:"timestamp,omitempty"`
}

type Heartbeat struct {
	Timestamp  string `json:"timestamp,omitempty"`
	ServerTime string `json:"server_time,omitempty"`
}

// StatusReport: ответ сервера на get_status.
type StatusReport struct {
	StudentID     string   `json:"student_id"`
	Connected     bool     `json:"connected"`
	Subscriptions []string `json:"subscriptions"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

// ServerError: {"type":"error"} от сервера.
type ServerError struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ========================= локальные (клиент) =========================

// TransportError: ошибка транспорта; приходит подписчикам "error".
type TransportError struct {
	Err string `json:"error"`
}

type Disconnected struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

// MaxReconnectAttempts: терминальное событие: автоматических попыток больше не будет.
type MaxReconnectAttempts struct {
	Attempts int `json:"attempts"`
}

// Unknown: всё, что не легло в известные варианты.
type Unknown struct {
	Type   string
	Fields *structpb.Struct
}

func (ConnectionEstablished) EventType() string   { return TypeConnectionEstablished }
func (MasteryUpdate) EventType() string           { return TypeMasteryUpdate }
func (MasteryLevelUp) EventType() string          { return TypeMasteryLevelUp }
func (AchievementUnlocked) EventType() string     { return TypeAchievementUnlocked }
func (ProgressUpdate) EventType() string          { return TypeProgressUpdate }
func (ProgressOverview) EventType() string        { return TypeProgressOverview }
func (QuizResult) EventType() string              { return TypeQuizResult }
func (QuizCompleted) EventType() string           { return TypeQuizCompleted }
func (LeaderboardUpdate) EventType() string       { return TypeLeaderboardUpdate }
func (StreakUpdate) EventType() string            { return TypeStreakUpdate }
func (RecommendationsUpdated) EventType() string  { return TypeRecommendationsUpdated }
func (NewLessonAvailable) EventType() string      { return TypeNewLessonAvailable }
func (SubscriptionConfirmed) EventType() string   { return TypeSubscriptionConfirmed }
func (UnsubscriptionConfirmed) EventType() string { return TypeUnsubscriptionConfirmed }
func (Pong) EventType() string                    { return TypePong }
func (Heartbeat) EventType() string               { return TypeHeartbeat }
func (StatusReport) EventType() string            { return TypeStatus }
func (ServerError) EventType() string             { return TypeError }
func (TransportError) EventType() string          { return TypeError }
func (Disconnected) EventType() string            { return TypeDisconnected }
func (MaxReconnectAttempts) EventType() string    { return TypeMaxReconnectAttempts }
func (u Unknown) EventType() string               { return u.Type }

func decodeAs[E Event](data []byte) (Event, error) {
	var e E
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return e, nil
}

var decoders = map[string]func([]byte) (Event, error){
	TypeConnectionEstablished:   decodeAs[ConnectionEstablished],
	TypeMasteryUpdate:           decodeAs[MasteryUpdate],
	TypeMasteryLevelUp:          decodeAs[MasteryLevelUp],
	TypeAchievementUnlocked:     decodeAs[AchievementUnlocked],
	TypeProgressUpdate:          decodeAs[ProgressUpdate],
	TypeProgressOverview:        decodeAs[ProgressOverview],
	TypeQuizResult:              decodeAs[QuizResult],
	TypeQuizCompleted:           decodeAs[QuizCompleted],
	TypeLeaderboardUpdate:       decodeAs[LeaderboardUpdate],
	TypeStreakUpdate:            decodeAs[StreakUpdate],
	TypeRecommendationsUpdated:  decodeAs[RecommendationsUpdated],
	TypeNewLessonAvailable:      decodeAs[NewLessonAvailable],
	TypeSubscriptionConfirmed:   decodeAs[SubscriptionConfirmed],
	TypeUnsubscriptionConfirmed: decodeAs[UnsubscriptionConfirmed],
	TypePong:                    decodeAs[Pong],
	TypeHeartbeat:               decodeAs[Heartbeat],
	TypeStatus:                  decodeAs[StatusReport],
	TypeError:                   decodeAs[ServerError],
}

// decodeFrame разбирает входящий кадр один раз: конверт + типизированное событие.
// Ошибка означает битый кадр (не JSON-объект или нет строкового type).
// Известный тип, чьи поля не легли в структуру, отдаётся как Unknown.
func decodeFrame(data []byte) (Message, error) {
	var fields Payload
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("decode frame: %w", err)
	}
	t, ok := fields["type"].(string)
	if !ok || t == "" {
		return Message{}, errMissingType
	}

	msg := Message{Type: t, Payload: fields}
	if dec, known := decoders[t]; known {
		if ev, err := dec(data); err == nil {
			msg.Event = ev
			return msg, nil
		}
	}
	msg.Event = unknownEvent(t, fields)
	return msg, nil
}

// isKnownType: есть ли для типа типизированный вариант.
func isKnownType(t string) bool {
	_, ok := decoders[t]
	return ok
}

func unknownEvent(t string, fields Payload) Unknown {
	st, err := structpb.NewStruct(fields.without("type"))
	if err != nil {
		return Unknown{Type: t}
	}
	return Unknown{Type: t, Fields: st}
}

// localMessage упаковывает событие клиента в тот же вид, что и входящие кадры.
func localMessage(ev Event) Message {
	p := Payload{}
	if b, err := json.Marshal(ev); err == nil {
		_ = json.Unmarshal(b, &p)
	}
	p["type"] = ev.EventType()
	return Message{Type: ev.EventType(), Payload: p, Event: ev}
}
