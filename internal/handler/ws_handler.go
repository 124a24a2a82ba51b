package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/yourusername/pollrun-api/internal/pkg/runcode"
	"github.com/yourusername/pollrun-api/internal/service"
	"github.com/yourusername/pollrun-api/internal/websocket"
	"github.com/yourusername/pollrun-api/pkg/auth"
)

// WSHandler обрабатывает WebSocket соединения
type WSHandler struct {
	wsHub      *websocket.Hub
	wsManager  *websocket.Manager
	runService *service.RunService
	jwtService *auth.JWTService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(
	wsHub *websocket.Hub,
	wsManager *websocket.Manager,
	runService *service.RunService,
	jwtService *auth.JWTService,
) *WSHandler {
	handler := &WSHandler{
		wsHub:      wsHub,
		wsManager:  wsManager,
		runService: runService,
		jwtService: jwtService,
	}

	// Регистрируем обработчики сообщений один раз при создании обработчика
	handler.registerMessageHandlers()

	return handler
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Небраузерные клиенты (мобильные приложения, curl) приходят без Origin
		return true
	},
	EnableCompression: true,
}

// HandleConnection обрабатывает входящее WebSocket соединение.
// Токен необязателен: наблюдение за запуском доступно анониму,
// идентифицированные соединения дополнительно получают адресные сообщения.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	userID := ""
	if token := c.Query("token"); token != "" {
		claims, err := h.jwtService.ParseToken(token)
		if err != nil {
			log.Printf("WebSocket: Invalid or expired token - %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}

	log.Printf("WebSocket: Connection upgraded for UserID: %q", userID)

	client := websocket.NewClient(h.wsHub, conn, userID)
	client.StartPumps(h.wsManager.HandleMessage)
}

// registerMessageHandlers регистрирует обработчики для различных типов сообщений
func (h *WSHandler) registerMessageHandlers() {
	// Подписка соединения на события запуска
	h.wsManager.RegisterHandler(websocket.RUN_SUBSCRIBE, func(data json.RawMessage, client *websocket.Client) error {
		var subscribeEvent struct {
			RunCode string `json:"run_code"`
		}
		if err := json.Unmarshal(data, &subscribeEvent); err != nil {
			log.Printf("[WSHandler] Ошибка парсинга %s: %v, Data: %s", websocket.RUN_SUBSCRIBE, err, string(data))
			h.wsManager.SendErrorToClient(client, "invalid_format", "Failed to parse subscribe event")
			return fmt.Errorf("failed to parse subscribe event: %w", err)
		}

		if !runcode.Valid(subscribeEvent.RunCode) {
			h.wsManager.SendErrorToClient(client, "invalid_run_code", "Malformed run code")
			return nil
		}

		run, err := h.runService.GetRun(context.Background(), subscribeEvent.RunCode)
		if err != nil {
			log.Printf("[WSHandler] Подписка на несуществующий запуск %s: %v", subscribeEvent.RunCode, err)
			h.wsManager.SendErrorToClient(client, "run_not_found", fmt.Sprintf("Run %s not found", subscribeEvent.RunCode))
			return nil
		}

		h.wsManager.SubscribeClientToRun(client, run.RunCode)

		// Сразу отдаём снимок состояния: подписчик мог переподключиться
		// посреди идущего запуска
		if err := h.wsManager.SendEventToClient(client, websocket.RUN_SUBSCRIBED, map[string]interface{}{
			"run_code":               run.RunCode,
			"status":                 run.Status,
			"current_question_index": run.CurrentQuestion,
			"question_count":         run.QuestionCount,
			"run_duration_sec":       run.RunDurationSec,
			"started_at_ms":          run.StartedAtMs,
		}); err != nil {
			log.Printf("[WSHandler] Ошибка отправки снимка запуска %s: %v", run.RunCode, err)
		}
		return nil
	})

	// Отписка соединения от текущего запуска
	h.wsManager.RegisterHandler(websocket.RUN_UNSUBSCRIBE, func(data json.RawMessage, client *websocket.Client) error {
		h.wsManager.UnsubscribeClientFromRun(client)
		return nil
	})

	// Проверка соединения
	h.wsManager.RegisterHandler("user:heartbeat", func(data json.RawMessage, client *websocket.Client) error {
		heartbeatResponse := map[string]interface{}{
			"timestamp": time.Now().UnixMilli(),
		}
		if err := h.wsManager.SendEventToClient(client, "server:heartbeat", heartbeatResponse); err != nil {
			log.Printf("[WSHandler] WARNING: Ошибка при отправке server:heartbeat соединению %s: %v", client.ConnectionID, err)
		}
		return nil
	})
}
