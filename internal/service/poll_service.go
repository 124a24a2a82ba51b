package service

import (
	"fmt"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	"github.com/yourusername/pollrun-api/internal/domain/repository"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// Максимальное количество вопросов в одном опросе
const maxPollQuestions = 100

// PollService реализует авторские операции над определениями опросов
type PollService struct {
	pollRepo repository.PollRepository
}

// NewPollService создает новый сервис опросов
func NewPollService(pollRepo repository.PollRepository) *PollService {
	return &PollService{pollRepo: pollRepo}
}

// CreatePoll создает опрос вместе с вопросами.
// Позиции вопросов назначаются по порядку следования.
func (s *PollService) CreatePoll(poll *entity.Poll) error {
	if poll.OwnerID == "" {
		return fmt.Errorf("%w: poll owner required", apperrors.ErrUnauthorized)
	}
	if poll.Name == "" {
		return fmt.Errorf("%w: poll name required", apperrors.ErrInvalidArgument)
	}
	if poll.DefaultDurationSec <= 0 {
		poll.DefaultDurationSec = 30
	}
	if len(poll.Questions) > maxPollQuestions {
		return fmt.Errorf("%w: too many questions (%d, max %d)", apperrors.ErrInvalidArgument, len(poll.Questions), maxPollQuestions)
	}

	for i := range poll.Questions {
		poll.Questions[i].Position = i + 1
		if err := validateQuestion(&poll.Questions[i]); err != nil {
			return err
		}
	}

	return s.pollRepo.Create(poll)
}

// GetPoll возвращает опрос по ID
func (s *PollService) GetPoll(id uint) (*entity.Poll, error) {
	return s.pollRepo.GetByID(id)
}

// GetPollWithQuestions возвращает опрос вместе с вопросами
func (s *PollService) GetPollWithQuestions(id uint) (*entity.Poll, error) {
	return s.pollRepo.GetWithQuestions(id)
}

// ListPolls возвращает опросы пользователя
func (s *PollService) ListPolls(ownerID string) ([]entity.Poll, error) {
	return s.pollRepo.ListByOwner(ownerID)
}

// UpdatePoll обновляет имя, описание и длительность опроса.
// Вопросы через этот метод не меняются.
func (s *PollService) UpdatePoll(id uint, requesterID, name, description string, defaultDurationSec int) (*entity.Poll, error) {
	poll, err := s.pollRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if poll.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: poll #%d belongs to another user", apperrors.ErrForbidden, id)
	}

	if name != "" {
		poll.Name = name
	}
	poll.Description = description
	if defaultDurationSec > 0 {
		poll.DefaultDurationSec = defaultDurationSec
	}

	if err := s.pollRepo.Update(poll); err != nil {
		return nil, err
	}
	return poll, nil
}

// DeletePoll удаляет опрос вместе с вопросами.
// Уже созданные запуски живут на собственных снапшотах и не затрагиваются.
func (s *PollService) DeletePoll(id uint, requesterID string) error {
	poll, err := s.pollRepo.GetByID(id)
	if err != nil {
		return err
	}
	if poll.OwnerID != requesterID {
		return fmt.Errorf("%w: poll #%d belongs to another user", apperrors.ErrForbidden, id)
	}
	return s.pollRepo.Delete(id)
}

// AddQuestions добавляет вопросы в конец опроса
func (s *PollService) AddQuestions(pollID uint, requesterID string, questions []entity.Question) error {
	poll, err := s.pollRepo.GetWithQuestions(pollID)
	if err != nil {
		return err
	}
	if poll.OwnerID != requesterID {
		return fmt.Errorf("%w: poll #%d belongs to another user", apperrors.ErrForbidden, pollID)
	}
	if len(poll.Questions)+len(questions) > maxPollQuestions {
		return fmt.Errorf("%w: too many questions (max %d)", apperrors.ErrInvalidArgument, maxPollQuestions)
	}

	nextPosition := len(poll.Questions) + 1
	for i := range questions {
		questions[i].Position = nextPosition + i
		if err := validateQuestion(&questions[i]); err != nil {
			return err
		}
	}

	return s.pollRepo.AddQuestions(pollID, questions)
}

// validateQuestion проверяет вопрос перед записью
func validateQuestion(q *entity.Question) error {
	if q.Text == "" {
		return fmt.Errorf("%w: question text required (position %d)", apperrors.ErrInvalidArgument, q.Position)
	}
	if !entity.ValidQuestionType(q.Type) {
		return fmt.Errorf("%w: unknown question type %q (position %d)", apperrors.ErrInvalidArgument, q.Type, q.Position)
	}

	if entity.HasPredefinedOptions(q.Type) {
		if len(q.Options) < 2 {
			return fmt.Errorf("%w: question type %q requires at least 2 options (position %d)", apperrors.ErrInvalidArgument, q.Type, q.Position)
		}
		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if opt == "" {
				return fmt.Errorf("%w: empty option label (position %d)", apperrors.ErrInvalidArgument, q.Position)
			}
			if seen[opt] {
				return fmt.Errorf("%w: duplicate option label %q (position %d)", apperrors.ErrInvalidArgument, opt, q.Position)
			}
			seen[opt] = true
		}
	} else if len(q.Options) > 0 {
		return fmt.Errorf("%w: question type %q does not accept predefined options (position %d)", apperrors.ErrInvalidArgument, q.Type, q.Position)
	}
	return nil
}
