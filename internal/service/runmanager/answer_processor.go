package runmanager

import (
	"context"
	"fmt"
	"log"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// AnswerProcessor проверяет и записывает ответы участников.
// Повторный ответ участника на тот же вопрос полностью заменяет предыдущий:
// счётчики прежних вариантов уменьшаются, новых увеличиваются, одной
// транзакцией хранилища. Каждый участник учитывается в агрегатах не более
// одного раза на вопрос.
type AnswerProcessor struct {
	// Настройки
	config *Config

	// Зависимости
	deps *Dependencies
}

// NewAnswerProcessor создает новый обработчик ответов
func NewAnswerProcessor(config *Config, deps *Dependencies) *AnswerProcessor {
	return &AnswerProcessor{
		config: config,
		deps:   deps,
	}
}

// ProcessAnswer проверяет выбор участника и атомарно записывает его в счётчики.
// Пустой userID означает анонимный ответ: голос засчитывается, но запись о
// выборе не ведётся и переголосование невозможно.
func (p *AnswerProcessor) ProcessAnswer(ctx context.Context, runCode string, questionID uint, userID string, selections []string) (entity.Tally, error) {
	question, err := p.deps.RunRepo.GetRunQuestion(ctx, runCode, questionID)
	if err != nil {
		return nil, err
	}

	if err := validateSelections(question, selections); err != nil {
		return nil, err
	}

	if err := p.deps.RunRepo.SubmitAnswer(ctx, runCode, questionID, userID, selections); err != nil {
		return nil, err
	}

	log.Printf("[AnswerProcessor] Запуск %s: ответ на вопрос %d записан (%d вариантов)",
		runCode, questionID, len(selections))

	tally, err := p.deps.RunRepo.GetTally(ctx, runCode, questionID)
	if err != nil {
		return nil, err
	}

	p.deps.WSManager.BroadcastEventToRun(runCode, EventRunResults, map[string]interface{}{
		"run_code":    runCode,
		"question_id": questionID,
		"results":     tally,
	})

	return tally, nil
}

// validateSelections проверяет выбор против снапшота вопроса
func validateSelections(question *entity.RunQuestion, selections []string) error {
	if len(selections) == 0 {
		return fmt.Errorf("%w: empty selection", apperrors.ErrInvalidArgument)
	}

	if entity.IsSingleSelect(question.Type) && len(selections) > 1 {
		return fmt.Errorf("%w: question type %q allows a single selection, got %d",
			apperrors.ErrInvalidArgument, question.Type, len(selections))
	}

	seen := make(map[string]struct{}, len(selections))
	for _, label := range selections {
		if label == "" {
			return fmt.Errorf("%w: empty option label", apperrors.ErrInvalidArgument)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("%w: duplicate option label %q", apperrors.ErrInvalidArgument, label)
		}
		seen[label] = struct{}{}
	}

	// У шкалы и да/нет метки формирует клиент, список вариантов пуст
	if !entity.HasPredefinedOptions(question.Type) {
		return nil
	}

	allowed := make(map[string]struct{}, len(question.Options))
	for _, opt := range question.Options {
		allowed[opt] = struct{}{}
	}
	for _, label := range selections {
		if _, ok := allowed[label]; !ok {
			return fmt.Errorf("%w: unknown option label %q", apperrors.ErrInvalidArgument, label)
		}
	}
	return nil
}
