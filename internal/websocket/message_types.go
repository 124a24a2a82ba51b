package websocket

// Типы сообщений, которые клиент отправляет серверу
const (
	// RUN_SUBSCRIBE подписывает соединение на события запуска по коду
	RUN_SUBSCRIBE = "run:subscribe"

	// RUN_UNSUBSCRIBE отписывает соединение от текущего запуска
	RUN_UNSUBSCRIBE = "run:unsubscribe"
)

// Типы служебных сообщений сервера
const (
	// SERVER_ERROR стандартизированное сообщение об ошибке
	SERVER_ERROR = "server:error"

	// RUN_SUBSCRIBED подтверждение подписки с актуальным положением курсора
	RUN_SUBSCRIBED = "run:subscribed"
)
