package entity

import (
	"time"
)

// Poll представляет авторский опрос (определение, из которого создаются запуски)
type Poll struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	OwnerID            string     `gorm:"size:64;not null;index" json:"owner_id"`
	Name               string     `gorm:"size:100;not null" json:"name"`
	Description        string     `gorm:"size:500;not null;default:''" json:"description"`
	DefaultDurationSec int        `gorm:"not null;default:30" json:"default_duration_sec"`
	Questions          []Question `gorm:"foreignKey:PollID" json:"questions,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Poll) TableName() string {
	return "polls"
}

// QuestionCount возвращает количество вопросов опроса
func (p *Poll) QuestionCount() int {
	return len(p.Questions)
}
