package handler

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/pollrun-api/internal/handler/dto"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
	"github.com/yourusername/pollrun-api/internal/service"
)

// RunHandler обрабатывает запросы жизненного цикла запусков опросов
type RunHandler struct {
	runService    *service.RunService
	resultService *service.ResultService
}

// NewRunHandler создает новый обработчик запусков
func NewRunHandler(runService *service.RunService, resultService *service.ResultService) *RunHandler {
	return &RunHandler{
		runService:    runService,
		resultService: resultService,
	}
}

// CreateRunRequest представляет запрос на создание запуска.
// QuestionDurationSec задаёт длительность на один вопрос; ноль означает
// значение по умолчанию из опроса.
type CreateRunRequest struct {
	PollID              uint  `json:"poll_id" binding:"required"`
	QuestionDurationSec int64 `json:"question_duration_sec" binding:"omitempty,min=1"`
}

// CreateRun обрабатывает запрос на создание запуска опроса
func (h *RunHandler) CreateRun(c *gin.Context) {
	var req CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.MustGet("userID").(string)

	run, err := h.runService.CreateRun(c.Request.Context(), req.PollID, userID, req.QuestionDurationSec)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewRunResponse(run))
}

// GetRun возвращает запуск по коду
func (h *RunHandler) GetRun(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)

	run, err := h.runService.GetRun(c.Request.Context(), runCode)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// StartRun переводит запуск в running
func (h *RunHandler) StartRun(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	run, err := h.runService.StartRun(c.Request.Context(), runCode, userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// EndRun досрочно завершает идущий запуск
func (h *RunHandler) EndRun(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	run, err := h.runService.EndRun(c.Request.Context(), runCode, userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// AdjustDurationRequest представляет запрос на изменение длительности запуска
type AdjustDurationRequest struct {
	DeltaSec int64 `json:"delta_sec" binding:"required"`
}

// AdjustDuration изменяет длительность идущего запуска
func (h *RunHandler) AdjustDuration(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	var req AdjustDurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	run, err := h.runService.AdjustDuration(c.Request.Context(), runCode, userID, req.DeltaSec)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// AdvanceQuestion сдвигает курсор запуска на следующий вопрос
func (h *RunHandler) AdvanceQuestion(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	nextIndex, completed, err := h.runService.AdvanceQuestion(c.Request.Context(), runCode, userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_code":               runCode,
		"current_question_index": nextIndex,
		"completed":              completed,
	})
}

// EnterRun регистрирует текущего пользователя участником запуска
func (h *RunHandler) EnterRun(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	run, err := h.runService.EnterRun(c.Request.Context(), runCode, userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewRunResponse(run))
}

// DeleteRun удаляет запуск со всеми его данными
func (h *RunHandler) DeleteRun(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)

	if err := h.runService.DeleteRun(c.Request.Context(), runCode, userID); err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Run deleted successfully"})
}

// GetRunQuestions возвращает снапшоты вопросов запуска
func (h *RunHandler) GetRunQuestions(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)

	questions, err := h.runService.GetRunQuestions(c.Request.Context(), runCode)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListRunQuestionResponse(questions))
}

// SubmitAnswerRequest представляет ответ участника на вопрос запуска
type SubmitAnswerRequest struct {
	QuestionID uint     `json:"question_id" binding:"required"`
	Selections []string `json:"selections" binding:"required,min=1"`
}

// SubmitAnswer записывает ответ участника.
// Анонимные ответы разрешены: без идентификации голос засчитывается,
// но переголосование недоступно.
func (h *RunHandler) SubmitAnswer(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	var req SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tally, err := h.runService.SubmitAnswer(c.Request.Context(), runCode, req.QuestionID, userIDStr, req.Selections)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_code":    runCode,
		"question_id": req.QuestionID,
		"results":     tally,
	})
}

// GetResults возвращает агрегированные результаты всех вопросов запуска
func (h *RunHandler) GetResults(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID, _ := c.Get("userID")
	userIDStr, _ := userID.(string)

	results, err := h.resultService.GetRunResults(c.Request.Context(), runCode, userIDStr)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListQuestionResultResponse(results))
}

// ExportResults выгружает результаты запуска в CSV или XLSX.
// Выгрузка доступна только владельцу запуска.
func (h *RunHandler) ExportResults(c *gin.Context) {
	runCode := c.MustGet("runCode").(string)
	userID := c.MustGet("userID").(string)
	format := c.DefaultQuery("format", "csv")

	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := h.resultService.ExportCSV(c.Request.Context(), runCode, userID, &buf); err != nil {
			h.handleRunError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=run_%s_results.csv", runCode))
		c.Data(http.StatusOK, "text/csv", buf.Bytes())

	case "xlsx":
		if err := h.resultService.ExportXLSX(c.Request.Context(), runCode, userID, &buf); err != nil {
			h.handleRunError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=run_%s_results.xlsx", runCode))
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported export format %q", format)})
	}
}

// ListRunsByPoll возвращает запуски опроса
func (h *RunHandler) ListRunsByPoll(c *gin.Context) {
	pollID := c.MustGet("pollID").(uint)
	userID := c.MustGet("userID").(string)

	runs, err := h.runService.ListRunsByPoll(c.Request.Context(), pollID, userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListRunResponse(runs))
}

// ListMyRuns возвращает запуски, созданные текущим пользователем
func (h *RunHandler) ListMyRuns(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	runs, err := h.runService.ListRunsByOwner(c.Request.Context(), userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListRunResponse(runs))
}

// ListMyParticipations возвращает запуски, в которых участвовал текущий пользователь
func (h *RunHandler) ListMyParticipations(c *gin.Context) {
	userID := c.MustGet("userID").(string)

	runs, err := h.runService.ListParticipations(c.Request.Context(), userID)
	if err != nil {
		h.handleRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewListRunResponse(runs))
}

// handleRunError преобразует ошибки сервиса в HTTP-ответы
func (h *RunHandler) handleRunError(c *gin.Context, err error) {
	if errors.Is(err, apperrors.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrInvalidArgument) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	} else if errors.Is(err, apperrors.ErrForbidden) {
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	} else {
		log.Printf("ERROR: Internal server error in RunHandler: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
