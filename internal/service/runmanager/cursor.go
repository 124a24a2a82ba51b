package runmanager

import (
	"context"
	"log"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
)

// Типы событий, транслируемых подписчикам запуска
const (
	EventRunStarted    = "run:started"
	EventRunQuestion   = "run:question"
	EventRunCompleted  = "run:completed"
	EventRunEnded      = "run:ended"
	EventRunResults    = "run:results"
	EventRunDuration   = "run:duration"
	EventRunTick       = "run:tick"
	EventRunTerminated = "run:terminated"
)

// Cursor управляет продвижением запуска по вопросам в жёстком порядке.
// Единственный источник истины об индексе текущего вопроса живёт в хранилище;
// Cursor лишь двигает его и оповещает подписчиков.
type Cursor struct {
	config *Config
	deps   *Dependencies
}

// NewCursor создает новый курсор запусков
func NewCursor(config *Config, deps *Dependencies) *Cursor {
	return &Cursor{
		config: config,
		deps:   deps,
	}
}

// Advance сдвигает курсор запуска на следующий вопрос и транслирует новое
// положение. На последнем вопросе индекс не меняется и возвращается признак
// завершения; запуск при этом остаётся идущим, пока его не закроют явно.
func (c *Cursor) Advance(ctx context.Context, runCode string) (int64, bool, error) {
	nextIndex, completed, err := c.deps.RunRepo.AdvanceQuestion(ctx, runCode)
	if err != nil {
		return 0, false, err
	}

	c.deps.WSManager.BroadcastEventToRun(runCode, EventRunQuestion, map[string]interface{}{
		"run_code":               runCode,
		"current_question_index": nextIndex,
		"completed":              completed,
	})

	if completed {
		log.Printf("[Cursor] Запуск %s на последнем вопросе (индекс %d), дальше вопросов нет", runCode, nextIndex)
		c.deps.WSManager.BroadcastEventToRun(runCode, EventRunCompleted, map[string]interface{}{
			"run_code": runCode,
		})
	} else {
		log.Printf("[Cursor] Запуск %s: текущий вопрос %d", runCode, nextIndex)
	}

	return nextIndex, completed, nil
}

// BroadcastStart оповещает подписчиков о переходе запуска в running
func (c *Cursor) BroadcastStart(run *entity.PollRun) {
	c.deps.WSManager.BroadcastEventToRun(run.RunCode, EventRunStarted, map[string]interface{}{
		"run_code":               run.RunCode,
		"started_at_ms":          run.StartedAtMs,
		"run_duration_sec":       run.RunDurationSec,
		"question_count":         run.QuestionCount,
		"current_question_index": run.CurrentQuestion,
	})
}

// BroadcastEnd оповещает подписчиков о завершении запуска
func (c *Cursor) BroadcastEnd(run *entity.PollRun) {
	c.deps.WSManager.BroadcastEventToRun(run.RunCode, EventRunEnded, map[string]interface{}{
		"run_code":    run.RunCode,
		"ended_at_ms": run.EndedAtMs,
	})
}
