package service

import (
	"context"
	"log"
	"time"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	"github.com/yourusername/pollrun-api/internal/domain/repository"
	"github.com/yourusername/pollrun-api/internal/service/runmanager"
	"github.com/yourusername/pollrun-api/internal/websocket"
)

// RunManager координирует работу компонентов живых запусков: курсор, сторож
// таймеров и обработчик ответов. Завершение запуска по истечении времени
// выполняется здесь, независимо от того, жив ли клиент владельца.
type RunManager struct {
	// Компоненты системы
	cursor          *runmanager.Cursor
	watchdog        *runmanager.Watchdog
	answerProcessor *runmanager.AnswerProcessor

	// Репозитории для прямого доступа
	runRepo   repository.RunRepository
	wsManager *websocket.Manager

	config *runmanager.Config

	// Контекст для управления жизненным циклом
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunManager создает новый экземпляр менеджера запусков
func NewRunManager(
	pollRepo repository.PollRepository,
	runRepo repository.RunRepository,
	wsManager *websocket.Manager,
	config *runmanager.Config,
) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())

	if config == nil {
		config = runmanager.DefaultConfig()
	}

	deps := &runmanager.Dependencies{
		PollRepo:  pollRepo,
		RunRepo:   runRepo,
		WSManager: wsManager,
		Config:    config,
	}

	rm := &RunManager{
		cursor:          runmanager.NewCursor(config, deps),
		watchdog:        runmanager.NewWatchdog(config, deps),
		answerProcessor: runmanager.NewAnswerProcessor(config, deps),
		runRepo:         runRepo,
		wsManager:       wsManager,
		config:          config,
		ctx:             ctx,
		cancel:          cancel,
	}

	// Запускаем слушателя событий
	go rm.handleEvents()

	log.Println("[RunManager] Менеджер запусков успешно инициализирован")
	return rm
}

// handleEvents обрабатывает сигналы компонентов
func (rm *RunManager) handleEvents() {
	expireCh := rm.watchdog.GetExpireChannel()

	for {
		select {
		case <-rm.ctx.Done():
			log.Println("[RunManager] Завершение работы слушателя событий")
			return

		case runCode := <-expireCh:
			go rm.handleExpiration(runCode)
		}
	}
}

// handleExpiration завершает запуск, время которого истекло
func (rm *RunManager) handleExpiration(runCode string) {
	log.Printf("[RunManager] Завершение запуска %s по таймеру", runCode)

	run, err := rm.runRepo.EndRun(rm.ctx, runCode, time.Now().UnixMilli())
	if err != nil {
		// Запуск мог быть завершён вручную между истечением таймера и этим вызовом
		log.Printf("[RunManager] Не удалось завершить запуск %s по таймеру: %v", runCode, err)
		return
	}
	rm.cursor.BroadcastEnd(run)
}

// OnRunStarted взводит таймер запуска и оповещает подписчиков
func (rm *RunManager) OnRunStarted(run *entity.PollRun) {
	rm.cursor.BroadcastStart(run)
	rm.watchdog.Arm(rm.ctx, run.RunCode, time.Duration(run.RunDurationSec)*time.Second)
}

// OnDurationAdjusted переставляет таймер запуска после изменения длительности
// и транслирует новую длительность подписчикам
func (rm *RunManager) OnDurationAdjusted(run *entity.PollRun) {
	deadlineMs := run.StartedAtMs + run.RunDurationSec*1000
	remaining := time.Duration(deadlineMs-time.Now().UnixMilli()) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	rm.watchdog.Arm(rm.ctx, run.RunCode, remaining)

	rm.wsManager.BroadcastEventToRun(run.RunCode, runmanager.EventRunDuration, map[string]interface{}{
		"run_code":         run.RunCode,
		"run_duration_sec": run.RunDurationSec,
	})
}

// OnRunEnded снимает таймер завершённого вручную запуска и оповещает подписчиков
func (rm *RunManager) OnRunEnded(run *entity.PollRun) {
	rm.watchdog.Disarm(run.RunCode)
	rm.cursor.BroadcastEnd(run)
}

// OnRunDeleted снимает таймер и оповещает подписчиков об удалении запуска
func (rm *RunManager) OnRunDeleted(runCode string) {
	rm.watchdog.Disarm(runCode)
	rm.wsManager.BroadcastEventToRun(runCode, runmanager.EventRunTerminated, map[string]interface{}{
		"run_code": runCode,
	})
}

// AdvanceQuestion двигает курсор запуска через компонент Cursor
func (rm *RunManager) AdvanceQuestion(ctx context.Context, runCode string) (int64, bool, error) {
	return rm.cursor.Advance(ctx, runCode)
}

// ProcessAnswer делегирует проверку и запись ответа процессору ответов
func (rm *RunManager) ProcessAnswer(ctx context.Context, runCode string, questionID uint, userID string, selections []string) (entity.Tally, error) {
	return rm.answerProcessor.ProcessAnswer(ctx, runCode, questionID, userID, selections)
}

// Shutdown корректно завершает работу менеджера запусков
func (rm *RunManager) Shutdown() {
	log.Println("[RunManager] Завершение работы менеджера запусков...")
	rm.cancel()
	log.Println("[RunManager] Менеджер запусков остановлен")
}
