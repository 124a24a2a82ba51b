package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены
	// (опрос, запуск опроса или вопрос отсутствует в хранилище).
	ErrNotFound = errors.New("record not found")

	// ErrInvalidTransition используется при нарушении порядка статусов запуска
	// (например, попытка стартовать уже запущенный или завершённый запуск).
	ErrInvalidTransition = errors.New("invalid run status transition")

	// ErrInvalidArgument используется для некорректных входных данных
	// (например, несколько вариантов ответа на вопрос с одиночным выбором).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrForbidden используется, когда у пользователя недостаточно прав для действия.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized используется для ошибок авторизации (неверный или истекший токен).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict используется для конфликтов состояния
	// (например, дубликат позиции вопроса внутри опроса).
	ErrConflict = errors.New("resource state conflict")
)
