// Package watcher: консольное приложение поверх rtclient. Watcher:
//   - подписывается на все события клиента и печатает их по строке;
//   - помнит список топиков и заново запрашивает их при каждом подключении
//     (сам клиент подписки на сервере после реконнекта не восстанавливает);
//   - выполняет команды из консоли (help, status, sub, unsub, topics, ping,
//     get_status, send, connect, quit).
//
// Жизненный цикл:
//   - Создать клиент rtclient.New(...) и watcher.New(client, os.Stdout, ...).
//   - Start(ctx): навешивает обработчики и подключается.
//   - HandleCommand(line): на каждую строку ввода; ErrQuit означает выход.
//   - Stop(): отключение, повторный вызов ничего не делает.
//
// Пример:
//
//	c := rtclient.New("student_001", rtclient.WithHost("localhost:8000"))
//	w := watcher.New(c, os.Stdout, watcher.WithTopics("progress", "achievements"))
//	if err := w.Start(ctx); err != nil { log.Fatal(err) }
//	defer w.Stop()
package watcher
