package runmanager

import (
	"time"

	"github.com/yourusername/pollrun-api/internal/domain/repository"
)

// Constants for default values
const (
	DefaultRunDurationSec    = 30
	DefaultExpireChannelSize = 64
	DefaultCodeRetries       = 5
)

// Config содержит настройки для всех компонентов RunManager
type Config struct {
	// Длительность запуска по умолчанию, если опрос её не задаёт
	DefaultRunDurationSec int64

	// Число попыток сгенерировать незанятый код запуска
	CodeGenerationRetries int

	// Размер буфера канала сигналов об истечении таймера
	ExpireChannelSize int

	// Периодичность трансляции оставшегося времени идущего запуска
	TickInterval time.Duration
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		DefaultRunDurationSec: DefaultRunDurationSec,
		CodeGenerationRetries: DefaultCodeRetries,
		ExpireChannelSize:     DefaultExpireChannelSize,
		TickInterval:          time.Second,
	}
}

// Broadcaster определяет интерфейс рассылки событий подписчикам запуска,
// необходимый компонентам RunManager.
type Broadcaster interface {
	BroadcastEventToRun(runCode string, eventType string, data interface{})
}

// Dependencies содержит зависимости для RunManager
type Dependencies struct {
	PollRepo  repository.PollRepository
	RunRepo   repository.RunRepository
	WSManager Broadcaster
	Config    *Config
}
