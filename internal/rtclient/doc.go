// Package rtclient реализует WebSocket-клиент обновлений в реальном времени
// для ученика (mastery, ачивки, прогресс, лидерборд, результаты квизов).
// Клиент держит одно соединение ws://<host>/ws/<identity>, переподключается
// с фиксированным интервалом до MaxReconnectAttempts раз, раздаёт входящие
// JSON-кадры подписчикам по полю "type" и отправляет сообщения и запросы
// на (от)подписку от топиков.
//
// События (подписка через Subscribe / On):
//   - входящие типы сервера: mastery_update, achievement_unlocked,
//     progress_update, quiz_result/quiz_completed, leaderboard_update и др.
//     (см. константы Type*); каждый кадр разбирается один раз в Event;
//   - локальные: connection_established, error, disconnected,
//     max_reconnect_attempts (терминальное, автоматических попыток больше нет);
//   - Wildcard ("*") получает всё, с полным конвертом.
//
// Безопасность и устойчивость:
//   - Запись в сокет сериализована (мьютекс + write-deadline).
//   - Send без соединения возвращает false и ничего не буферизует.
//   - Битые кадры логируются и отбрасываются, паника подписчика перехватывается.
//   - Disconnect: единственная отмена: гасит таймер реконнекта и чистит подписки.
//
// Пример:
//
//	c := rtclient.New("student_001", rtclient.WithHost("api.akulearn.ng"))
//	c.Subscribe(rtclient.TypeConnectionEstablished, func(rtclient.Message) {
//	    c.SubscribeTopic("achievements")
//	})
//	rtclient.On(c, func(ev rtclient.MasteryUpdate) {
//	    fmt.Println(ev.LessonID, ev.MasteryData.MasteryPercentage)
//	})
//	_ = c.Connect(ctx)
//	defer c.Disconnect()
package rtclient
