package postgres

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// PollRepo реализует repository.PollRepository
type PollRepo struct {
	db *gorm.DB
}

// NewPollRepo создает новый репозиторий опросов
func NewPollRepo(db *gorm.DB) *PollRepo {
	return &PollRepo{db: db}
}

// Create создает новый опрос вместе с вопросами
func (r *PollRepo) Create(poll *entity.Poll) error {
	err := r.db.Create(poll).Error
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: poll %q", apperrors.ErrConflict, poll.Name)
	}
	return err
}

// GetByID возвращает опрос по ID
func (r *PollRepo) GetByID(id uint) (*entity.Poll, error) {
	var poll entity.Poll
	err := r.db.First(&poll, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &poll, nil
}

// GetWithQuestions возвращает опрос вместе с вопросами в порядке позиций
func (r *PollRepo) GetWithQuestions(id uint) (*entity.Poll, error) {
	var poll entity.Poll
	err := r.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).First(&poll, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}
	return &poll, nil
}

// ListByOwner возвращает опросы пользователя, новые первыми
func (r *PollRepo) ListByOwner(ownerID string) ([]entity.Poll, error) {
	var polls []entity.Poll
	err := r.db.Where("owner_id = ?", ownerID).Order("id DESC").Find(&polls).Error
	return polls, err
}

// Update обновляет информацию об опросе
func (r *PollRepo) Update(poll *entity.Poll) error {
	return r.db.Save(poll).Error
}

// Delete удаляет опрос вместе с вопросами
func (r *PollRepo) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("poll_id = ?", id).Delete(&entity.Question{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&entity.Poll{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: poll #%d", apperrors.ErrNotFound, id)
		}
		return nil
	})
}

// AddQuestions добавляет вопросы к существующему опросу.
// Unique index на (poll_id, position) отсекает дублирование позиций.
func (r *PollRepo) AddQuestions(pollID uint, questions []entity.Question) error {
	if len(questions) == 0 {
		return nil
	}
	for i := range questions {
		questions[i].PollID = pollID
	}
	err := r.db.Create(&questions).Error
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: duplicate question position in poll #%d", apperrors.ErrConflict, pollID)
		}
		return err
	}
	return nil
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
