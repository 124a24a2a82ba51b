package runmanager

import (
	"context"
	"log"
	"sync"
	"time"
)

// Watchdog следит за таймером каждого идущего запуска и сигнализирует об
// истечении отведённого времени. Завершение по таймеру выполняет движок,
// а не клиент владельца: обрыв соединения владельца не оставляет запуск
// висеть в running навсегда.
type Watchdog struct {
	// Настройки
	config *Config

	// Зависимости
	deps *Dependencies

	// Внутреннее состояние
	runCancels sync.Map // map[string]*runTimer

	// Канал сигналов об истечении таймера запуска
	expireCh chan string
}

// runTimer держит отмену одного взведённого таймера. Отдельное значение на
// каждое взведение позволяет наблюдателю отличить собственную запись в
// runCancels от записи, оставленной перестановкой таймера.
type runTimer struct {
	cancel context.CancelFunc
}

// NewWatchdog создает новый сторож таймеров запусков
func NewWatchdog(config *Config, deps *Dependencies) *Watchdog {
	return &Watchdog{
		config:   config,
		deps:     deps,
		expireCh: make(chan string, config.ExpireChannelSize),
	}
}

// GetExpireChannel возвращает канал сигналов об истечении таймеров
func (w *Watchdog) GetExpireChannel() <-chan string {
	return w.expireCh
}

// Arm взводит таймер запуска на remaining. Уже взведённый таймер того же
// запуска отменяется и заменяется новым (перестановка при изменении длительности).
func (w *Watchdog) Arm(ctx context.Context, runCode string, remaining time.Duration) {
	w.Disarm(runCode)

	runCtx, runCancel := context.WithCancel(ctx)
	timer := &runTimer{cancel: runCancel}
	w.runCancels.Store(runCode, timer)

	go w.watchRun(runCtx, runCode, timer, remaining)

	log.Printf("[Watchdog] Таймер запуска %s взведён на %v", runCode, remaining)
}

// Disarm снимает таймер запуска, если он был взведён
func (w *Watchdog) Disarm(runCode string) {
	value, ok := w.runCancels.LoadAndDelete(runCode)
	if !ok {
		return
	}
	value.(*runTimer).cancel()
	log.Printf("[Watchdog] Таймер запуска %s снят", runCode)
}

// watchRun ждёт истечения таймера и сигнализирует RunManager
func (w *Watchdog) watchRun(ctx context.Context, runCode string, timer *runTimer, remaining time.Duration) {
	// Удаляется только собственная запись: после перестановки таймера
	// в runCancels лежит отмена уже нового наблюдателя
	defer w.runCancels.CompareAndDelete(runCode, timer)

	ticker := time.NewTicker(w.config.TickInterval)
	defer ticker.Stop()

	deadline := time.Now().Add(remaining)

	for {
		select {
		case <-ticker.C:
			secondsLeft := int(time.Until(deadline).Seconds())
			if secondsLeft <= 0 {
				w.expire(runCode)
				return
			}
			w.deps.WSManager.BroadcastEventToRun(runCode, EventRunTick, map[string]interface{}{
				"run_code":     runCode,
				"seconds_left": secondsLeft,
			})

		case <-ctx.Done():
			log.Printf("[Watchdog] Наблюдение за запуском %s остановлено", runCode)
			return
		}
	}
}

// expire отправляет сигнал об истечении таймера запуска.
// Отправка неблокирующая: переполненный канал не должен вешать сторожа.
func (w *Watchdog) expire(runCode string) {
	log.Printf("[Watchdog] Время запуска %s истекло", runCode)
	select {
	case w.expireCh <- runCode:
	default:
		log.Printf("[Watchdog] Предупреждение: не удалось отправить сигнал об истечении запуска %s (канал переполнен?)", runCode)
	}
}
