package runmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

func TestCursor_Advance_MidRun(t *testing.T) {
	// Arrange
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	cursor := NewCursor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	mockRepo.On("AdvanceQuestion", mock.Anything, "abc234").Return(int64(1), false, nil)

	// Act
	nextIndex, completed, err := cursor.Advance(context.Background(), "abc234")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), nextIndex)
	assert.False(t, completed)

	types := broadcaster.EventTypes()
	require.Len(t, types, 1, "Сдвиг курсора транслируется одним событием")
	assert.Equal(t, EventRunQuestion, types[0])
	mockRepo.AssertExpectations(t)
}

func TestCursor_Advance_AtLastQuestion(t *testing.T) {
	// Arrange: хранилище сообщает, что дальше вопросов нет,
	// курсор остаётся на последнем индексе
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	cursor := NewCursor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	mockRepo.On("AdvanceQuestion", mock.Anything, "abc234").Return(int64(2), true, nil)

	// Act
	nextIndex, completed, err := cursor.Advance(context.Background(), "abc234")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), nextIndex)
	assert.True(t, completed)

	types := broadcaster.EventTypes()
	require.Len(t, types, 2)
	assert.Equal(t, EventRunQuestion, types[0])
	assert.Equal(t, EventRunCompleted, types[1], "Достижение конца списка вопросов добавляет событие завершения")
}

func TestCursor_Advance_NotRunning(t *testing.T) {
	// Arrange: хранилище отклоняет сдвиг у неидущего запуска
	mockRepo := new(MockRunRepo)
	broadcaster := new(RecordingBroadcaster)
	cursor := NewCursor(DefaultConfig(), newProcessorDeps(mockRepo, broadcaster))

	mockRepo.On("AdvanceQuestion", mock.Anything, "abc234").Return(int64(0), false, apperrors.ErrInvalidTransition)

	// Act
	_, _, err := cursor.Advance(context.Background(), "abc234")

	// Assert
	assert.ErrorIs(t, err, apperrors.ErrInvalidTransition)
	assert.Empty(t, broadcaster.Events(), "Ошибочный сдвиг не должен рассылаться")
}

func TestCursor_BroadcastStart(t *testing.T) {
	// Arrange
	broadcaster := new(RecordingBroadcaster)
	cursor := NewCursor(DefaultConfig(), newProcessorDeps(new(MockRunRepo), broadcaster))

	run := &entity.PollRun{
		RunCode:        "abc234",
		Status:         entity.RunStatusRunning,
		StartedAtMs:    1700000000000,
		RunDurationSec: 60,
		QuestionCount:  3,
	}

	// Act
	cursor.BroadcastStart(run)

	// Assert
	events := broadcaster.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventRunStarted, events[0].EventType)
	payload := events[0].Data.(map[string]interface{})
	assert.Equal(t, "abc234", payload["run_code"])
	assert.Equal(t, int64(60), payload["run_duration_sec"])
}

func TestCursor_BroadcastEnd(t *testing.T) {
	// Arrange
	broadcaster := new(RecordingBroadcaster)
	cursor := NewCursor(DefaultConfig(), newProcessorDeps(new(MockRunRepo), broadcaster))

	run := &entity.PollRun{RunCode: "abc234", Status: entity.RunStatusClosed, EndedAtMs: 1700000060000}

	// Act
	cursor.BroadcastEnd(run)

	// Assert
	events := broadcaster.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventRunEnded, events[0].EventType)
}
