package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// ============================================================================
// Моки репозиториев для тестов сервисов
// ============================================================================

// MockPollRepo реализует repository.PollRepository
type MockPollRepo struct {
	mock.Mock
}

func (m *MockPollRepo) Create(poll *entity.Poll) error {
	args := m.Called(poll)
	return args.Error(0)
}

func (m *MockPollRepo) GetByID(id uint) (*entity.Poll, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Poll), args.Error(1)
}

func (m *MockPollRepo) GetWithQuestions(id uint) (*entity.Poll, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Poll), args.Error(1)
}

func (m *MockPollRepo) ListByOwner(ownerID string) ([]entity.Poll, error) {
	args := m.Called(ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Poll), args.Error(1)
}

func (m *MockPollRepo) Update(poll *entity.Poll) error {
	args := m.Called(poll)
	return args.Error(0)
}

func (m *MockPollRepo) Delete(id uint) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockPollRepo) AddQuestions(pollID uint, questions []entity.Question) error {
	args := m.Called(pollID, questions)
	return args.Error(0)
}

// ============================================================================
// Тесты для PollService
// ============================================================================

func TestPollService_CreatePoll_AssignsPositions(t *testing.T) {
	// Arrange
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	poll := &entity.Poll{
		OwnerID: "u1",
		Name:    "Ретроспектива спринта",
		Questions: []entity.Question{
			{Type: entity.QuestionTypeYesNo, Text: "Спринт удался?"},
			{Type: entity.QuestionTypeScale, Text: "Оцените нагрузку"},
			{Type: entity.QuestionTypeSingleChoice, Text: "Продолжаем?", Options: entity.StringArray{"Да", "Нет"}},
		},
	}
	mockRepo.On("Create", poll).Return(nil)

	// Act
	err := pollService.CreatePoll(poll)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, poll.Questions[0].Position, "Позиции должны назначаться по порядку следования")
	assert.Equal(t, 2, poll.Questions[1].Position)
	assert.Equal(t, 3, poll.Questions[2].Position)
	assert.Equal(t, 30, poll.DefaultDurationSec, "Пустая длительность заменяется значением по умолчанию")
	mockRepo.AssertExpectations(t)
}

func TestPollService_CreatePoll_Validation(t *testing.T) {
	testCases := []struct {
		name        string
		poll        *entity.Poll
		expectedErr error
	}{
		{
			name:        "без владельца",
			poll:        &entity.Poll{Name: "Опрос"},
			expectedErr: apperrors.ErrUnauthorized,
		},
		{
			name:        "без имени",
			poll:        &entity.Poll{OwnerID: "u1"},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "неизвестный тип вопроса",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: "ranking", Text: "Вопрос"}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "вопрос без текста",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: entity.QuestionTypeYesNo}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "одиночный выбор с одним вариантом",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: entity.QuestionTypeSingleChoice, Text: "Вопрос", Options: entity.StringArray{"Да"}}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "повторяющиеся варианты",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: entity.QuestionTypeSingleChoice, Text: "Вопрос", Options: entity.StringArray{"Да", "Да"}}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "пустая метка варианта",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: entity.QuestionTypeMultipleChoice, Text: "Вопрос", Options: entity.StringArray{"A", ""}}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
		{
			name: "варианты у шкалы",
			poll: &entity.Poll{
				OwnerID:   "u1",
				Name:      "Опрос",
				Questions: []entity.Question{{Type: entity.QuestionTypeScale, Text: "Вопрос", Options: entity.StringArray{"1", "2"}}},
			},
			expectedErr: apperrors.ErrInvalidArgument,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			mockRepo := new(MockPollRepo)
			pollService := NewPollService(mockRepo)

			// Act
			err := pollService.CreatePoll(tc.poll)

			// Assert
			assert.ErrorIs(t, err, tc.expectedErr)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything)
		})
	}
}

func TestPollService_UpdatePoll_Forbidden(t *testing.T) {
	// Arrange
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	mockRepo.On("GetByID", uint(1)).Return(&entity.Poll{ID: 1, OwnerID: "u1", Name: "Опрос"}, nil)

	// Act: чужой пользователь пытается изменить опрос
	_, err := pollService.UpdatePoll(1, "intruder", "Новое имя", "", 0)

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	mockRepo.AssertNotCalled(t, "Update", mock.Anything)
}

func TestPollService_UpdatePoll_KeepsNameWhenEmpty(t *testing.T) {
	// Arrange
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	existing := &entity.Poll{ID: 1, OwnerID: "u1", Name: "Опрос", DefaultDurationSec: 30}
	mockRepo.On("GetByID", uint(1)).Return(existing, nil)
	mockRepo.On("Update", mock.AnythingOfType("*entity.Poll")).Return(nil)

	// Act
	updated, err := pollService.UpdatePoll(1, "u1", "", "новое описание", 60)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Опрос", updated.Name, "Пустое имя не должно затирать существующее")
	assert.Equal(t, "новое описание", updated.Description)
	assert.Equal(t, 60, updated.DefaultDurationSec)
	mockRepo.AssertExpectations(t)
}

func TestPollService_DeletePoll_Forbidden(t *testing.T) {
	// Arrange
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	mockRepo.On("GetByID", uint(1)).Return(&entity.Poll{ID: 1, OwnerID: "u1"}, nil)

	// Act
	err := pollService.DeletePoll(1, "intruder")

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	mockRepo.AssertNotCalled(t, "Delete", mock.Anything)
}

func TestPollService_AddQuestions_ContinuesPositions(t *testing.T) {
	// Arrange: в опросе уже два вопроса
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	existing := &entity.Poll{
		ID:      1,
		OwnerID: "u1",
		Name:    "Опрос",
		Questions: []entity.Question{
			{ID: 10, Position: 1, Type: entity.QuestionTypeYesNo, Text: "Первый"},
			{ID: 11, Position: 2, Type: entity.QuestionTypeYesNo, Text: "Второй"},
		},
	}
	mockRepo.On("GetWithQuestions", uint(1)).Return(existing, nil)

	newQuestions := []entity.Question{
		{Type: entity.QuestionTypeScale, Text: "Третий"},
		{Type: entity.QuestionTypeYesNo, Text: "Четвёртый"},
	}
	mockRepo.On("AddQuestions", uint(1), mock.AnythingOfType("[]entity.Question")).Return(nil)

	// Act
	err := pollService.AddQuestions(1, "u1", newQuestions)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, newQuestions[0].Position, "Позиции должны продолжать существующую нумерацию")
	assert.Equal(t, 4, newQuestions[1].Position)
	mockRepo.AssertExpectations(t)
}

func TestPollService_AddQuestions_NotFound(t *testing.T) {
	// Arrange
	mockRepo := new(MockPollRepo)
	pollService := NewPollService(mockRepo)

	mockRepo.On("GetWithQuestions", uint(99)).Return(nil, apperrors.ErrNotFound)

	// Act
	err := pollService.AddQuestions(99, "u1", []entity.Question{{Type: entity.QuestionTypeYesNo, Text: "Вопрос"}})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
