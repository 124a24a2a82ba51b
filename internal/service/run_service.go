package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	"github.com/yourusername/pollrun-api/internal/domain/repository"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
	"github.com/yourusername/pollrun-api/internal/pkg/runcode"
)

// RunService реализует операции жизненного цикла запусков опросов
type RunService struct {
	pollRepo   repository.PollRepository
	runRepo    repository.RunRepository
	runManager *RunManager
}

// NewRunService создает новый сервис запусков
func NewRunService(
	pollRepo repository.PollRepository,
	runRepo repository.RunRepository,
	runManager *RunManager,
) *RunService {
	return &RunService{
		pollRepo:   pollRepo,
		runRepo:    runRepo,
		runManager: runManager,
	}
}

// CreateRun создает запуск опроса: генерирует код, снимает неизменяемые
// снапшоты вопросов и записывает всё одной транзакцией хранилища.
// Общая длительность запуска равна длительности на вопрос, умноженной на число
// вопросов. Нулевая perQuestionSec означает длительность по умолчанию из опроса.
func (s *RunService) CreateRun(ctx context.Context, pollID uint, requesterID string, perQuestionSec int64) (*entity.PollRun, error) {
	poll, err := s.pollRepo.GetWithQuestions(pollID)
	if err != nil {
		return nil, err
	}
	if poll.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: poll #%d belongs to another user", apperrors.ErrForbidden, pollID)
	}
	if len(poll.Questions) == 0 {
		return nil, fmt.Errorf("%w: poll #%d has no questions", apperrors.ErrInvalidArgument, pollID)
	}

	if perQuestionSec == 0 {
		perQuestionSec = int64(poll.DefaultDurationSec)
	}
	if perQuestionSec <= 0 {
		return nil, fmt.Errorf("%w: question duration must be positive, got %d", apperrors.ErrInvalidArgument, perQuestionSec)
	}

	questions := make([]entity.RunQuestion, 0, len(poll.Questions))
	for _, q := range poll.Questions {
		questions = append(questions, entity.RunQuestion{
			QuestionID: q.ID,
			Position:   q.Position,
			Type:       q.Type,
			Text:       q.Text,
			Options:    q.Options,
		})
	}

	run := &entity.PollRun{
		PollID:         pollID,
		OwnerID:        requesterID,
		Status:         entity.RunStatusOpen,
		CreatedAtMs:    time.Now().UnixMilli(),
		RunDurationSec: perQuestionSec * int64(len(questions)),
		QuestionCount:  int64(len(questions)),
	}

	// Коллизия кода разрешается повторной генерацией
	retries := s.runManager.config.CodeGenerationRetries
	for attempt := 0; attempt < retries; attempt++ {
		code, err := runcode.Generate()
		if err != nil {
			return nil, err
		}
		run.RunCode = code

		err = s.runRepo.CreateRun(ctx, run, questions)
		if err == nil {
			log.Printf("[RunService] Запуск %s создан для опроса #%d (%d вопросов)", code, pollID, len(questions))
			return run, nil
		}
		if !errors.Is(err, apperrors.ErrConflict) {
			return nil, err
		}
		log.Printf("[RunService] Коллизия кода запуска %s, повторная генерация", code)
	}
	return nil, fmt.Errorf("failed to generate a free run code after %d attempts", retries)
}

// GetRun возвращает запуск по коду
func (s *RunService) GetRun(ctx context.Context, code string) (*entity.PollRun, error) {
	return s.runRepo.GetRun(ctx, code)
}

// StartRun переводит запуск в running, взводит таймер и оповещает подписчиков
func (s *RunService) StartRun(ctx context.Context, code, requesterID string) (*entity.PollRun, error) {
	if err := s.checkOwnership(ctx, code, requesterID); err != nil {
		return nil, err
	}

	run, err := s.runRepo.StartRun(ctx, code, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	s.runManager.OnRunStarted(run)
	log.Printf("[RunService] Запуск %s стартовал (%d сек)", code, run.RunDurationSec)
	return run, nil
}

// EndRun досрочно завершает идущий запуск
func (s *RunService) EndRun(ctx context.Context, code, requesterID string) (*entity.PollRun, error) {
	if err := s.checkOwnership(ctx, code, requesterID); err != nil {
		return nil, err
	}

	run, err := s.runRepo.EndRun(ctx, code, time.Now().UnixMilli())
	if err != nil {
		return nil, err
	}

	s.runManager.OnRunEnded(run)
	log.Printf("[RunService] Запуск %s завершён вручную", code)
	return run, nil
}

// AdjustDuration изменяет длительность идущего запуска на deltaSec секунд.
// Отрицательная дельта сокращает запуск; проверка знака итога не выполняется,
// истёкший таймер просто завершит запуск немедленно.
func (s *RunService) AdjustDuration(ctx context.Context, code, requesterID string, deltaSec int64) (*entity.PollRun, error) {
	if err := s.checkOwnership(ctx, code, requesterID); err != nil {
		return nil, err
	}

	if _, err := s.runRepo.AdjustDuration(ctx, code, deltaSec); err != nil {
		return nil, err
	}

	run, err := s.runRepo.GetRun(ctx, code)
	if err != nil {
		return nil, err
	}

	s.runManager.OnDurationAdjusted(run)
	log.Printf("[RunService] Длительность запуска %s изменена на %+d сек (итого %d)", code, deltaSec, run.RunDurationSec)
	return run, nil
}

// AdvanceQuestion сдвигает курсор запуска на следующий вопрос.
// На последнем вопросе возвращается признак завершения, но запуск остаётся
// в running: владелец закрывает его отдельным вызовом EndRun, досмотрев
// результаты последнего вопроса. Повторный вызов повторяет тот же сигнал.
func (s *RunService) AdvanceQuestion(ctx context.Context, code, requesterID string) (int64, bool, error) {
	if err := s.checkOwnership(ctx, code, requesterID); err != nil {
		return 0, false, err
	}
	return s.runManager.AdvanceQuestion(ctx, code)
}

// EnterRun регистрирует участника в открытом запуске
func (s *RunService) EnterRun(ctx context.Context, code, userID string) (*entity.PollRun, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: participant identity required", apperrors.ErrUnauthorized)
	}

	if err := s.runRepo.EnterRun(ctx, code, userID, time.Now().UnixMilli()); err != nil {
		return nil, err
	}
	return s.runRepo.GetRun(ctx, code)
}

// SubmitAnswer записывает ответ участника на вопрос запуска
func (s *RunService) SubmitAnswer(ctx context.Context, code string, questionID uint, userID string, selections []string) (entity.Tally, error) {
	return s.runManager.ProcessAnswer(ctx, code, questionID, userID, selections)
}

// GetRunQuestions возвращает снапшоты вопросов запуска в порядке позиций
func (s *RunService) GetRunQuestions(ctx context.Context, code string) ([]entity.RunQuestion, error) {
	return s.runRepo.GetRunQuestions(ctx, code)
}

// DeleteRun удаляет запуск со всеми его данными
func (s *RunService) DeleteRun(ctx context.Context, code, requesterID string) error {
	if err := s.checkOwnership(ctx, code, requesterID); err != nil {
		return err
	}

	if err := s.runRepo.DeleteRun(ctx, code); err != nil {
		return err
	}

	s.runManager.OnRunDeleted(code)
	log.Printf("[RunService] Запуск %s удалён", code)
	return nil
}

// ListRunsByPoll возвращает запуски опроса, новые первыми
func (s *RunService) ListRunsByPoll(ctx context.Context, pollID uint, requesterID string) ([]entity.PollRun, error) {
	poll, err := s.pollRepo.GetByID(pollID)
	if err != nil {
		return nil, err
	}
	if poll.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: poll #%d belongs to another user", apperrors.ErrForbidden, pollID)
	}

	codes, err := s.runRepo.ListRunCodesByPoll(ctx, pollID)
	if err != nil {
		return nil, err
	}
	return s.resolveRuns(ctx, codes), nil
}

// ListRunsByOwner возвращает запуски, созданные пользователем
func (s *RunService) ListRunsByOwner(ctx context.Context, userID string) ([]entity.PollRun, error) {
	codes, err := s.runRepo.ListRunCodesByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolveRuns(ctx, codes), nil
}

// ListParticipations возвращает запуски, в которых пользователь участвовал
func (s *RunService) ListParticipations(ctx context.Context, userID string) ([]entity.PollRun, error) {
	codes, err := s.runRepo.ListParticipations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.resolveRuns(ctx, codes), nil
}

// resolveRuns превращает коды в запуски, молча пропуская удалённые.
// Индексы не чистятся при удалении участий, поэтому висячие коды ожидаемы.
func (s *RunService) resolveRuns(ctx context.Context, codes []string) []entity.PollRun {
	runs := make([]entity.PollRun, 0, len(codes))
	for _, code := range codes {
		run, err := s.runRepo.GetRun(ctx, code)
		if err != nil {
			if !errors.Is(err, apperrors.ErrNotFound) {
				log.Printf("[RunService] Ошибка чтения запуска %s: %v", code, err)
			}
			continue
		}
		runs = append(runs, *run)
	}
	return runs
}

// checkOwnership проверяет, что запуск принадлежит запросившему пользователю
func (s *RunService) checkOwnership(ctx context.Context, code, requesterID string) error {
	run, err := s.runRepo.GetRun(ctx, code)
	if err != nil {
		return err
	}
	if run.OwnerID != requesterID {
		return fmt.Errorf("%w: run %s belongs to another user", apperrors.ErrForbidden, code)
	}
	return nil
}
