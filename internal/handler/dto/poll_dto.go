package dto

import (
	"time"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
)

// QuestionResponse представляет вопрос опроса в формате для ответа клиенту
type QuestionResponse struct {
	ID        uint      `json:"id"`
	PollID    uint      `json:"poll_id"`
	Position  int       `json:"position"`
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Options   []string  `json:"options"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PollResponse представляет опрос в формате для ответа клиенту
type PollResponse struct {
	ID                 uint               `json:"id"`
	OwnerID            string             `json:"owner_id"`
	Name               string             `json:"name"`
	Description        string             `json:"description,omitempty"`
	DefaultDurationSec int                `json:"default_duration_sec"`
	QuestionCount      int                `json:"question_count"`
	Questions          []QuestionResponse `json:"questions,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// NewQuestionResponse создает DTO для вопроса опроса
func NewQuestionResponse(q *entity.Question) QuestionResponse {
	return QuestionResponse{
		ID:        q.ID,
		PollID:    q.PollID,
		Position:  q.Position,
		Type:      q.Type,
		Text:      q.Text,
		Options:   q.Options,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
	}
}

// NewPollResponse создает DTO для опроса
func NewPollResponse(poll *entity.Poll, includeQuestions bool) *PollResponse {
	resp := &PollResponse{
		ID:                 poll.ID,
		OwnerID:            poll.OwnerID,
		Name:               poll.Name,
		Description:        poll.Description,
		DefaultDurationSec: poll.DefaultDurationSec,
		QuestionCount:      poll.QuestionCount(),
		CreatedAt:          poll.CreatedAt,
		UpdatedAt:          poll.UpdatedAt,
	}

	if includeQuestions {
		resp.Questions = make([]QuestionResponse, 0, len(poll.Questions))
		for i := range poll.Questions {
			resp.Questions = append(resp.Questions, NewQuestionResponse(&poll.Questions[i]))
		}
	}
	return resp
}

// NewListPollResponse создает список DTO опросов без вопросов
func NewListPollResponse(polls []entity.Poll) []*PollResponse {
	out := make([]*PollResponse, 0, len(polls))
	for i := range polls {
		out = append(out, NewPollResponse(&polls[i], false))
	}
	return out
}
