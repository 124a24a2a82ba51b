package repository

import (
	"context"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
)

// RunRepository определяет методы работы с живым состоянием запусков опросов.
// Реализация обязана выполнять чтение-изменение атомарно: проверки статуса и
// сопутствующие записи делаются в одной транзакции хранилища.
type RunRepository interface {
	// CreateRun атомарно записывает запуск, снапшоты вопросов и индексы.
	// Возвращает ErrConflict, если код запуска уже занят.
	CreateRun(ctx context.Context, run *entity.PollRun, questions []entity.RunQuestion) error

	// GetRun возвращает запуск по коду или ErrNotFound.
	GetRun(ctx context.Context, code string) (*entity.PollRun, error)

	// StartRun переводит запуск open -> running и фиксирует момент старта.
	StartRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error)

	// EndRun переводит запуск running -> closed и фиксирует момент завершения.
	EndRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error)

	// AdjustDuration изменяет длительность идущего запуска на deltaSec секунд
	// и возвращает новое значение. Для неидущего запуска — ErrInvalidTransition.
	AdjustDuration(ctx context.Context, code string, deltaSec int64) (int64, error)

	// AdvanceQuestion сдвигает курсор идущего запуска на следующий вопрос.
	// Возвращает новый индекс и признак выхода за последний вопрос.
	AdvanceQuestion(ctx context.Context, code string) (int64, bool, error)

	// EnterRun регистрирует участника в открытом запуске. Повторный вход
	// не увеличивает счётчик участников.
	EnterRun(ctx context.Context, code, userID string, nowMs int64) error

	// SubmitAnswer атомарно заменяет предыдущий ответ участника новым:
	// счётчики прежних вариантов уменьшаются, новых — увеличиваются.
	// Пустой userID означает анонимный ответ без записи о выборе.
	SubmitAnswer(ctx context.Context, code string, questionID uint, userID string, selections []string) error

	// GetRunQuestions возвращает снапшоты вопросов запуска в порядке позиций.
	GetRunQuestions(ctx context.Context, code string) ([]entity.RunQuestion, error)

	// GetRunQuestion возвращает один снапшот вопроса запуска.
	GetRunQuestion(ctx context.Context, code string, questionID uint) (*entity.RunQuestion, error)

	// GetTally возвращает счётчики ответов по вопросу запуска.
	GetTally(ctx context.Context, code string, questionID uint) (entity.Tally, error)

	// GetUserAnswer возвращает последний записанный выбор участника
	// по вопросу запуска; nil без ошибки, если ответа не было.
	GetUserAnswer(ctx context.Context, userID, code string, questionID uint) ([]string, error)

	// Participants возвращает идентификаторы участников запуска.
	Participants(ctx context.Context, code string) ([]string, error)

	// DeleteRun каскадно удаляет запуск: хеш, вопросы, счётчики,
	// участников и записи в индексах.
	DeleteRun(ctx context.Context, code string) error

	// ListRunCodesByPoll возвращает коды запусков опроса, новые первыми.
	ListRunCodesByPoll(ctx context.Context, pollID uint) ([]string, error)

	// ListRunCodesByOwner возвращает коды запусков, созданных пользователем.
	ListRunCodesByOwner(ctx context.Context, userID string) ([]string, error)

	// ListParticipations возвращает коды запусков, в которых пользователь участвовал.
	ListParticipations(ctx context.Context, userID string) ([]string, error)
}
