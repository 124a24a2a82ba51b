package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/pollrun-api/internal/domain/entity"
	"github.com/yourusername/pollrun-api/internal/handler/dto"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
	"github.com/yourusername/pollrun-api/internal/service"
)

// PollHandler обрабатывает запросы, связанные с определениями опросов
type PollHandler struct {
	pollService *service.PollService
}

// NewPollHandler создает новый обработчик опросов
func NewPollHandler(pollService *service.PollService) *PollHandler {
	return &PollHandler{pollService: pollService}
}

// QuestionRequest представляет вопрос в запросе создания или дополнения опроса
type QuestionRequest struct {
	Type    string   `json:"type" binding:"required"`
	Text    string   `json:"text" binding:"required,min=1,max=500"`
	Options []string `json:"options" binding:"omitempty,max=20"`
}

// CreatePollRequest представляет запрос на создание опроса
type CreatePollRequest struct {
	Name               string            `json:"name" binding:"required,min=1,max=100"`
	Description        string            `json:"description" binding:"omitempty,max=500"`
	DefaultDurationSec int               `json:"default_duration_sec" binding:"omitempty,min=1"`
	Questions          []QuestionRequest `json:"questions" binding:"omitempty,max=100"`
}

// CreatePoll обрабатывает запрос на создание опроса
func (h *PollHandler) CreatePoll(c *gin.Context) {
	var req CreatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.MustGet("userID").(string)

	poll := &entity.Poll{
		OwnerID:            userID,
		Name:               req.Name,
		Description:        req.Description,
		DefaultDurationSec: req.DefaultDurationSec,
		Questions:          convertQuestions(req.Questions),
	}

	if err := h.pollService.CreatePoll(poll); err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewPollResponse(poll, true))
}

// GetPoll возвращает опрос вместе с вопросами
func (h *PollHandler) GetPoll(c *gin.Context) {
	pollID := c.MustGet("pollID").(uint)

	poll, err := h.pollService.GetPollWithQuestions(pollID)
	if err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPollResponse(poll, true))
}

// ListPolls возвращает опросы текущего пользователя
func (h *PollHandler) ListPolls(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	polls, err := h.pollService.ListPolls(userID)
	if err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListPollResponse(polls))
}

// UpdatePollRequest представляет запрос на изменение опроса
type UpdatePollRequest struct {
	Name               string `json:"name" binding:"omitempty,min=1,max=100"`
	Description        string `json:"description" binding:"omitempty,max=500"`
	DefaultDurationSec int    `json:"default_duration_sec" binding:"omitempty,min=1"`
}

// UpdatePoll обрабатывает запрос на изменение опроса
func (h *PollHandler) UpdatePoll(c *gin.Context) {
	pollID := c.MustGet("pollID").(uint)
	userID := c.MustGet("userID").(string)

	var req UpdatePollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	poll, err := h.pollService.UpdatePoll(pollID, userID, req.Name, req.Description, req.DefaultDurationSec)
	if err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewPollResponse(poll, false))
}

// DeletePoll обрабатывает запрос на удаление опроса
func (h *PollHandler) DeletePoll(c *gin.Context) {
	pollID := c.MustGet("pollID").(uint)
	userID := c.MustGet("userID").(string)

	if err := h.pollService.DeletePoll(pollID, userID); err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Poll deleted successfully"})
}

// AddQuestionsRequest представляет запрос на добавление вопросов
type AddQuestionsRequest struct {
	Questions []QuestionRequest `json:"questions" binding:"required,min=1,max=100"`
}

// AddQuestions обрабатывает запрос на добавление вопросов к опросу
func (h *PollHandler) AddQuestions(c *gin.Context) {
	pollID := c.MustGet("pollID").(uint)
	userID := c.MustGet("userID").(string)

	var req AddQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.pollService.AddQuestions(pollID, userID, convertQuestions(req.Questions)); err != nil {
		h.handlePollError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Questions added successfully"})
}

// convertQuestions преобразует вопросы запроса в сущности
func convertQuestions(reqs []QuestionRequest) []entity.Question {
	questions := make([]entity.Question, 0, len(reqs))
	for _, q := range reqs {
		questions = append(questions, entity.Question{
			Type:    q.Type,
			Text:    q.Text,
			Options: entity.StringArray(q.Options),
		})
	}
	return questions
}

// handlePollError преобразует ошибки сервиса в HTTP-ответы
func (h *PollHandler) handlePollError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrInvalidArgument) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in PollHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
