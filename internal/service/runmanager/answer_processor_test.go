package runmanager

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// ============================================================================
// Общие моки для компонентов RunManager
// ============================================================================

// MockRunRepo реализует repository.RunRepository
type MockRunRepo struct {
	mock.Mock
}

func (m *MockRunRepo) CreateRun(ctx context.Context, run *entity.PollRun, questions []entity.RunQuestion) error {
	args := m.Called(ctx, run, questions)
	return args.Error(0)
}

func (m *MockRunRepo) GetRun(ctx context.Context, code string) (*entity.PollRun, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PollRun), args.Error(1)
}

func (m *MockRunRepo) StartRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error) {
	args := m.Called(ctx, code, nowMs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PollRun), args.Error(1)
}

func (m *MockRunRepo) EndRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error) {
	args := m.Called(ctx, code, nowMs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.PollRun), args.Error(1)
}

func (m *MockRunRepo) AdjustDuration(ctx context.Context, code string, deltaSec int64) (int64, error) {
	args := m.Called(ctx, code, deltaSec)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRunRepo) AdvanceQuestion(ctx context.Context, code string) (int64, bool, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockRunRepo) EnterRun(ctx context.Context, code, userID string, nowMs int64) error {
	args := m.Called(ctx, code, userID, nowMs)
	return args.Error(0)
}

func (m *MockRunRepo) SubmitAnswer(ctx context.Context, code string, questionID uint, userID string, selections []string) error {
	args := m.Called(ctx, code, questionID, userID, selections)
	return args.Error(0)
}

func (m *MockRunRepo) GetRunQuestions(ctx context.Context, code string) ([]entity.RunQuestion, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.RunQuestion), args.Error(1)
}

func (m *MockRunRepo) GetRunQuestion(ctx context.Context, code string, questionID uint) (*entity.RunQuestion, error) {
	args := m.Called(ctx, code, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.RunQuestion), args.Error(1)
}

func (m *MockRunRepo) GetTally(ctx context.Context, code string, questionID uint) (entity.Tally, error) {
	args := m.Called(ctx, code, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(entity.Tally), args.Error(1)
}

func (m *MockRunRepo) GetUserAnswer(ctx context.Context, userID, code string, questionID uint) ([]string, error) {
	args := m.Called(ctx, userID, code, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRunRepo) Participants(ctx context.Context, code string) ([]string, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRunRepo) DeleteRun(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockRunRepo) ListRunCodesByPoll(ctx context.Context, pollID uint) ([]string, error) {
	args := m.Called(ctx, pollID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRunRepo) ListRunCodesByOwner(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRunRepo) ListParticipations(ctx context.Context, userID string) ([]string, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// BroadcastedEvent фиксирует одну рассылку подписчикам запуска
type BroadcastedEvent struct {
	RunCode   string
	EventType string
	Data      interface{}
}

// RecordingBroadcaster записывает рассылки вместо реальной доставки.
// Потокобезопасен: сторож таймеров рассылает из своей горутины.
type RecordingBroadcaster struct {
	mu     sync.Mutex
	events []BroadcastedEvent
}

func (b *RecordingBroadcaster) BroadcastEventToRun(runCode string, eventType string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, BroadcastedEvent{RunCode: runCode, EventType: eventType, Data: data})
}

// Events возвращает копию записанных рассылок
func (b *RecordingBroadcaster) Events() []BroadcastedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BroadcastedEvent, len(b.events))
	copy(out, b.events)
	return out
}

// EventTypes возвращает типы записанных рассылок в порядке отправки
func (b *RecordingBroadcaster) EventTypes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]string, 0, len(b.events))
	for _, e := range b.events {
		types = append(types, e.EventType)
	}
	return types
}

func newProcessorDeps(runRepo *MockRunRepo, broadcaster *RecordingBroadcaster) *Dependencies {
	return &Dependencies{
		RunRepo:   runRepo,
		WSManager: broadcaster,
		Config:    DefaultConfig(),
	}
}

// ============================================================================
// Тесты для AnswerProcessor
// ============================================================================

func TestAnswerProcessor_ProcessAnswer_RecordsAndBroadcasts(t *testing.T) {
	// Arrange
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	question := &entity.RunQuestion{
		QuestionID: 7,
		Type:       entity.QuestionTypeSingleChoice,
		Text:       "Какой язык основной в проекте?",
		Options:    entity.StringArray{"Go", "Rust"},
	}
	expectedTally := entity.Tally{"Go": 1, "Rust": 0}

	mockRepo.On("GetRunQuestion", mock.Anything, "abc234", uint(7)).Return(question, nil)
	mockRepo.On("SubmitAnswer", mock.Anything, "abc234", uint(7), "u1", []string{"Go"}).Return(nil)
	mockRepo.On("GetTally", mock.Anything, "abc234", uint(7)).Return(expectedTally, nil)

	// Act
	tally, err := processor.ProcessAnswer(context.Background(), "abc234", 7, "u1", []string{"Go"})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, expectedTally, tally)

	events := broadcaster.Events()
	require.Len(t, events, 1, "Новые счётчики должны рассылаться подписчикам")
	assert.Equal(t, EventRunResults, events[0].EventType)
	assert.Equal(t, "abc234", events[0].RunCode)
	mockRepo.AssertExpectations(t)
}

func TestAnswerProcessor_ProcessAnswer_MultipleChoice(t *testing.T) {
	// Arrange
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	question := &entity.RunQuestion{
		QuestionID: 3,
		Type:       entity.QuestionTypeMultipleChoice,
		Options:    entity.StringArray{"A", "B", "C"},
	}
	mockRepo.On("GetRunQuestion", mock.Anything, "abc234", uint(3)).Return(question, nil)
	mockRepo.On("SubmitAnswer", mock.Anything, "abc234", uint(3), "u1", []string{"A", "C"}).Return(nil)
	mockRepo.On("GetTally", mock.Anything, "abc234", uint(3)).Return(entity.Tally{"A": 1, "C": 1}, nil)

	// Act
	_, err := processor.ProcessAnswer(context.Background(), "abc234", 3, "u1", []string{"A", "C"})

	// Assert
	require.NoError(t, err, "Множественный выбор должен принимать несколько вариантов")
	mockRepo.AssertExpectations(t)
}

func TestAnswerProcessor_ProcessAnswer_ValidationMatrix(t *testing.T) {
	singleChoice := &entity.RunQuestion{
		QuestionID: 1,
		Type:       entity.QuestionTypeSingleChoice,
		Options:    entity.StringArray{"Да", "Нет"},
	}
	scale := &entity.RunQuestion{
		QuestionID: 2,
		Type:       entity.QuestionTypeScale,
	}

	testCases := []struct {
		name       string
		question   *entity.RunQuestion
		selections []string
		wantErr    bool
	}{
		{"пустой выбор", singleChoice, nil, true},
		{"два варианта у одиночного выбора", singleChoice, []string{"Да", "Нет"}, true},
		{"пустая метка варианта", singleChoice, []string{""}, true},
		{"неизвестный вариант", singleChoice, []string{"Возможно"}, true},
		{"корректный одиночный выбор", singleChoice, []string{"Да"}, false},
		{"синтетическая метка шкалы", scale, []string{"4"}, false},
		{"две метки у шкалы", scale, []string{"3", "4"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Arrange
			mockRepo := new(MockRunRepo)
			broadcaster := new(RecordingBroadcaster)
			processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

			mockRepo.On("GetRunQuestion", mock.Anything, "abc234", tc.question.QuestionID).Return(tc.question, nil)
			if !tc.wantErr {
				mockRepo.On("SubmitAnswer", mock.Anything, "abc234", tc.question.QuestionID, "u1", tc.selections).Return(nil)
				mockRepo.On("GetTally", mock.Anything, "abc234", tc.question.QuestionID).Return(entity.Tally{}, nil)
			}

			// Act
			_, err := processor.ProcessAnswer(context.Background(), "abc234", tc.question.QuestionID, "u1", tc.selections)

			// Assert
			if tc.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
				mockRepo.AssertNotCalled(t, "SubmitAnswer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
				assert.Empty(t, broadcaster.Events(), "Отклонённый ответ не должен рассылаться")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAnswerProcessor_ProcessAnswer_DuplicateLabels(t *testing.T) {
	// Arrange
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	question := &entity.RunQuestion{
		QuestionID: 3,
		Type:       entity.QuestionTypeMultipleChoice,
		Options:    entity.StringArray{"A", "B"},
	}
	mockRepo.On("GetRunQuestion", mock.Anything, "abc234", uint(3)).Return(question, nil)

	// Act
	_, err := processor.ProcessAnswer(context.Background(), "abc234", 3, "u1", []string{"A", "A"})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument, "Повтор метки в одном ответе должен отклоняться")
}

func TestAnswerProcessor_ProcessAnswer_QuestionNotFound(t *testing.T) {
	// Arrange
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	mockRepo.On("GetRunQuestion", mock.Anything, "abc234", uint(99)).Return(nil, apperrors.ErrNotFound)

	// Act
	_, err := processor.ProcessAnswer(context.Background(), "abc234", 99, "u1", []string{"Go"})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, broadcaster.Events())
}

func TestAnswerProcessor_ProcessAnswer_ClosedRun(t *testing.T) {
	// Arrange: хранилище отклоняет запись из-за статуса запуска
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	processor := NewAnswerProcessor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	question := &entity.RunQuestion{
		QuestionID: 7,
		Type:       entity.QuestionTypeYesNo,
	}
	mockRepo.On("GetRunQuestion", mock.Anything, "abc234", uint(7)).Return(question, nil)
	mockRepo.On("SubmitAnswer", mock.Anything, "abc234", uint(7), "u1", []string{"yes"}).
		Return(apperrors.ErrInvalidTransition)

	// Act
	_, err := processor.ProcessAnswer(context.Background(), "abc234", 7, "u1", []string{"yes"})

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, broadcaster.Events(), "Ответ в закрытый запуск не должен рассылаться")
}
