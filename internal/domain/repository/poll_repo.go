package repository

import (
	"github.com/yourusername/pollrun-api/internal/domain/entity"
)

// PollRepository определяет методы доступа к определениям опросов.
// Авторская подсистема — внешний коллаборатор движка запусков: движку от неё
// нужен прежде всего GetWithQuestions (интерфейс GetPoll из описания системы).
type PollRepository interface {
	Create(poll *entity.Poll) error
	GetByID(id uint) (*entity.Poll, error)
	GetWithQuestions(id uint) (*entity.Poll, error)
	ListByOwner(ownerID string) ([]entity.Poll, error)
	Update(poll *entity.Poll) error
	Delete(id uint) error
	AddQuestions(pollID uint, questions []entity.Question) error
}
