package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Типы вопросов
const (
	QuestionTypeSingleChoice   = "single-choice"
	QuestionTypeMultipleChoice = "multiple-choice"
	QuestionTypeScale          = "scale"
	QuestionTypeYesNo          = "yes-no"
)

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	// Обработка NULL значений из базы данных
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
// Используется GORM для записи StringArray в JSONB в базе
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil // Возвращаем пустой JSON массив вместо null
	}
	return json.Marshal(o)
}

// Question представляет вопрос в определении опроса
type Question struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	PollID    uint        `gorm:"not null;index" json:"poll_id"`
	Position  int         `gorm:"not null" json:"position"`
	Type      string      `gorm:"size:20;not null" json:"type"`
	Text      string      `gorm:"size:500;not null" json:"text"`
	Options   StringArray `gorm:"type:jsonb;not null" json:"options"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// ValidQuestionType проверяет, что тип вопроса известен системе
func ValidQuestionType(t string) bool {
	switch t {
	case QuestionTypeSingleChoice, QuestionTypeMultipleChoice, QuestionTypeScale, QuestionTypeYesNo:
		return true
	}
	return false
}

// IsSingleSelect сообщает, допускает ли тип вопроса не более одного выбранного варианта.
// Варианты ответов шкалы и да/нет формируются клиентом (синтетические метки),
// но остаются одиночным выбором.
func IsSingleSelect(questionType string) bool {
	return questionType != QuestionTypeMultipleChoice
}

// HasPredefinedOptions сообщает, задаётся ли список вариантов автором опроса.
// У шкалы и да/нет список вариантов пуст, метки приходят вместе с ответами.
func HasPredefinedOptions(questionType string) bool {
	return questionType == QuestionTypeSingleChoice || questionType == QuestionTypeMultipleChoice
}
