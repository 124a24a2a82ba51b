package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Канал Pub/Sub для обмена событиями запусков между экземплярами
const clusterChannel = "pollrun:events"

// Hub ведёт учёт активных соединений и их подписок на запуски.
// Соединение подписано не более чем на один запуск; рассылка события запуска
// доставляется только его подписчикам, а при включённом Pub/Sub дублируется
// остальным экземплярам приложения.
type Hub struct {
	// Уникальный ID экземпляра для фильтрации собственных сообщений кластера
	instanceID string

	// Все активные соединения
	clients map[*Client]bool

	// Подписчики по коду запуска
	runSubscribers map[string]map[*Client]bool

	// Индекс соединений по пользователю
	userClients map[string]map[*Client]bool

	// Защищает все карты выше
	mu sync.RWMutex

	// Каналы регистрации соединений
	register   chan *Client
	unregister chan *Client

	// Провайдер межэкземплярной доставки
	pubsub PubSubProvider

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub создает новый хаб соединений
func NewHub(pubsub PubSubProvider) *Hub {
	if pubsub == nil {
		pubsub = &NoOpPubSub{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		instanceID:     uuid.New().String(),
		clients:        make(map[*Client]bool),
		runSubscribers: make(map[string]map[*Client]bool),
		userClients:    make(map[string]map[*Client]bool),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		pubsub:         pubsub,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// Run обрабатывает регистрацию соединений и сообщения кластера
func (h *Hub) Run() {
	clusterCh, err := h.pubsub.Subscribe(h.ctx, clusterChannel)
	if err != nil {
		log.Printf("[Hub] Ошибка подписки на канал кластера: %v", err)
		clusterCh = nil
	}

	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case raw, ok := <-clusterCh:
			if !ok {
				clusterCh = nil
				continue
			}
			h.handleClusterMessage(raw)

		case <-h.ctx.Done():
			log.Printf("[Hub] Остановка хаба, экземпляр %s", h.instanceID)
			return
		}
	}
}

// Shutdown останавливает хаб и закрывает все соединения
func (h *Hub) Shutdown() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		client.CloseSend()
	}
	h.clients = make(map[*Client]bool)
	h.runSubscribers = make(map[string]map[*Client]bool)
	h.userClients = make(map[string]map[*Client]bool)

	if err := h.pubsub.Close(); err != nil {
		log.Printf("[Hub] Ошибка закрытия Pub/Sub: %v", err)
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	if client.UserID != "" {
		if h.userClients[client.UserID] == nil {
			h.userClients[client.UserID] = make(map[*Client]bool)
		}
		h.userClients[client.UserID][client] = true
	}
	log.Printf("[Hub] Соединение %s зарегистрировано (пользователь %q), всего: %d",
		client.ConnectionID, client.UserID, len(h.clients))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	h.dropSubscriptionLocked(client)
	if client.UserID != "" {
		if conns := h.userClients[client.UserID]; conns != nil {
			delete(conns, client)
			if len(conns) == 0 {
				delete(h.userClients, client.UserID)
			}
		}
	}
	client.CloseSend()
	log.Printf("[Hub] Соединение %s отключено, всего: %d", client.ConnectionID, len(h.clients))
}

// SubscribeToRun подписывает соединение на события запуска.
// Предыдущая подписка соединения снимается.
func (h *Hub) SubscribeToRun(client *Client, runCode string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.dropSubscriptionLocked(client)

	if h.runSubscribers[runCode] == nil {
		h.runSubscribers[runCode] = make(map[*Client]bool)
	}
	h.runSubscribers[runCode][client] = true
	client.SetRunCode(runCode)
	log.Printf("[Hub] Соединение %s подписано на запуск %s (%d подписчиков)",
		client.ConnectionID, runCode, len(h.runSubscribers[runCode]))
}

// UnsubscribeFromRun снимает подписку соединения на запуск
func (h *Hub) UnsubscribeFromRun(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropSubscriptionLocked(client)
}

func (h *Hub) dropSubscriptionLocked(client *Client) {
	runCode := client.GetRunCode()
	if runCode == "" {
		return
	}
	if subs := h.runSubscribers[runCode]; subs != nil {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.runSubscribers, runCode)
		}
	}
	client.SetRunCode("")
}

// BroadcastToRun доставляет сообщение подписчикам запуска на этом экземпляре
// и публикует его для остальных экземпляров
func (h *Hub) BroadcastToRun(runCode string, message []byte) {
	h.deliverToRun(runCode, message)

	cluster := ClusterMessage{
		MessageType: "run",
		RunCode:     runCode,
		InstanceID:  h.instanceID,
		Payload:     message,
		Timestamp:   time.Now(),
	}
	raw, err := json.Marshal(cluster)
	if err != nil {
		log.Printf("[Hub] Ошибка сериализации сообщения кластера: %v", err)
		return
	}
	if err := h.pubsub.Publish(clusterChannel, raw); err != nil {
		log.Printf("[Hub] Ошибка публикации в канал кластера: %v", err)
	}
}

// deliverToRun доставляет сообщение локальным подписчикам запуска
func (h *Hub) deliverToRun(runCode string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.runSubscribers[runCode] {
		h.enqueueLocked(client, message)
	}
}

// SendToUser отправляет сообщение всем соединениям пользователя.
// Возвращает true, если нашлось хотя бы одно соединение.
func (h *Hub) SendToUser(userID string, message []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.userClients[userID]
	if len(conns) == 0 {
		return false
	}
	for client := range conns {
		h.enqueueLocked(client, message)
	}
	return true
}

// SendJSONToUser отправляет структуру JSON всем соединениям пользователя
func (h *Hub) SendJSONToUser(userID string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.SendToUser(userID, data)
	return nil
}

// enqueue ставит сообщение в очередь одного соединения
func (h *Hub) enqueue(client *Client, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.enqueueLocked(client, message)
}

// enqueueLocked ставит сообщение в очередь соединения.
// Переполненный буфер означает безнадёжно отставшего клиента: соединение
// закрывается, клиент переподключится и получит актуальное состояние.
func (h *Hub) enqueueLocked(client *Client, message []byte) {
	if client.sendClosed.Load() {
		return
	}
	select {
	case client.send <- message:
	default:
		log.Printf("[Hub] Буфер соединения %s переполнен, закрываю", client.ConnectionID)
		client.CloseSend()
	}
}

// handleClusterMessage доставляет сообщение от другого экземпляра локальным подписчикам
func (h *Hub) handleClusterMessage(raw []byte) {
	var msg ClusterMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("[Hub] Ошибка разбора сообщения кластера: %v", err)
		return
	}
	if msg.InstanceID == h.instanceID {
		// Собственное сообщение уже доставлено локально
		return
	}

	switch msg.MessageType {
	case "run":
		h.deliverToRun(msg.RunCode, msg.Payload)
	case "direct":
		h.SendToUser(msg.RecipientID, msg.Payload)
	default:
		log.Printf("[Hub] Неизвестный тип сообщения кластера: %s", msg.MessageType)
	}
}

// ClientCount возвращает количество подключенных соединений
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunSubscriberCount возвращает количество подписчиков запуска на этом экземпляре
func (h *Hub) RunSubscriberCount(runCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.runSubscribers[runCode])
}
