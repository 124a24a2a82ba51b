package dto

import (
	"github.com/yourusername/pollrun-api/internal/domain/entity"
)

// RunResponse представляет запуск опроса в формате для ответа клиенту
type RunResponse struct {
	RunCode           string `json:"run_code"`
	PollID            uint   `json:"poll_id"`
	OwnerID           string `json:"owner_id"`
	Status            string `json:"status"`
	CreatedAtMs       int64  `json:"created_at_ms"`
	StartedAtMs       int64  `json:"started_at_ms,omitempty"`
	EndedAtMs         int64  `json:"ended_at_ms,omitempty"`
	RunDurationSec    int64  `json:"run_duration_sec"`
	CurrentQuestion   int64  `json:"current_question_index"`
	QuestionCount     int64  `json:"question_count"`
	ParticipantsCount int64  `json:"participants_count"`
}

// RunQuestionResponse представляет снапшот вопроса запуска
type RunQuestionResponse struct {
	QuestionID uint     `json:"question_id"`
	Position   int      `json:"position"`
	Type       string   `json:"type"`
	Text       string   `json:"text"`
	Options    []string `json:"options"`
}

// QuestionResultResponse представляет результат одного вопроса запуска
type QuestionResultResponse struct {
	QuestionID  uint             `json:"question_id"`
	Type        string           `json:"type"`
	Text        string           `json:"text"`
	Options     []string         `json:"options"`
	Results     map[string]int64 `json:"results"`
	UserAnswers []string         `json:"user_answers,omitempty"`
}

// NewRunResponse создает DTO для запуска
func NewRunResponse(run *entity.PollRun) *RunResponse {
	return &RunResponse{
		RunCode:           run.RunCode,
		PollID:            run.PollID,
		OwnerID:           run.OwnerID,
		Status:            run.Status,
		CreatedAtMs:       run.CreatedAtMs,
		StartedAtMs:       run.StartedAtMs,
		EndedAtMs:         run.EndedAtMs,
		RunDurationSec:    run.RunDurationSec,
		CurrentQuestion:   run.CurrentQuestion,
		QuestionCount:     run.QuestionCount,
		ParticipantsCount: run.ParticipantsCount,
	}
}

// NewListRunResponse создает список DTO запусков
func NewListRunResponse(runs []entity.PollRun) []*RunResponse {
	out := make([]*RunResponse, 0, len(runs))
	for i := range runs {
		out = append(out, NewRunResponse(&runs[i]))
	}
	return out
}

// NewRunQuestionResponse создает DTO для снапшота вопроса
func NewRunQuestionResponse(q *entity.RunQuestion) RunQuestionResponse {
	return RunQuestionResponse{
		QuestionID: q.QuestionID,
		Position:   q.Position,
		Type:       q.Type,
		Text:       q.Text,
		Options:    q.Options,
	}
}

// NewListRunQuestionResponse создает список DTO снапшотов вопросов
func NewListRunQuestionResponse(questions []entity.RunQuestion) []RunQuestionResponse {
	out := make([]RunQuestionResponse, 0, len(questions))
	for i := range questions {
		out = append(out, NewRunQuestionResponse(&questions[i]))
	}
	return out
}

// NewQuestionResultResponse создает DTO для результата вопроса
func NewQuestionResultResponse(r *entity.QuestionResult) QuestionResultResponse {
	return QuestionResultResponse{
		QuestionID:  r.QuestionID,
		Type:        r.Type,
		Text:        r.Text,
		Options:     r.Options,
		Results:     r.Results,
		UserAnswers: r.UserAnswers,
	}
}

// NewListQuestionResultResponse создает список DTO результатов
func NewListQuestionResultResponse(results []entity.QuestionResult) []QuestionResultResponse {
	out := make([]QuestionResultResponse, 0, len(results))
	for i := range results {
		out = append(out, NewQuestionResultResponse(&results[i]))
	}
	return out
}
