package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	"github.com/yourusername/pollrun-api/internal/domain/repository"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// ResultService отвечает за агрегированные результаты запусков и их экспорт
type ResultService struct {
	runRepo repository.RunRepository
}

// NewResultService создает новый сервис результатов
func NewResultService(runRepo repository.RunRepository) *ResultService {
	return &ResultService{runRepo: runRepo}
}

// GetRunResults возвращает результаты всех вопросов запуска в порядке позиций.
// Непустой userID добавляет к каждому вопросу собственный выбор участника.
// Предопределённые варианты без единого голоса присутствуют с нулём.
func (s *ResultService) GetRunResults(ctx context.Context, code, userID string) ([]entity.QuestionResult, error) {
	questions, err := s.runRepo.GetRunQuestions(ctx, code)
	if err != nil {
		return nil, err
	}

	results := make([]entity.QuestionResult, 0, len(questions))
	for _, q := range questions {
		result, err := s.buildQuestionResult(ctx, code, userID, q)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	return results, nil
}

// GetQuestionResult возвращает результат одного вопроса запуска
func (s *ResultService) GetQuestionResult(ctx context.Context, code, userID string, questionID uint) (*entity.QuestionResult, error) {
	question, err := s.runRepo.GetRunQuestion(ctx, code, questionID)
	if err != nil {
		return nil, err
	}
	return s.buildQuestionResult(ctx, code, userID, *question)
}

func (s *ResultService) buildQuestionResult(ctx context.Context, code, userID string, q entity.RunQuestion) (*entity.QuestionResult, error) {
	tally, err := s.runRepo.GetTally(ctx, code, q.QuestionID)
	if err != nil {
		return nil, err
	}

	// Варианты без голосов показываются явным нулём
	for _, opt := range q.Options {
		if _, ok := tally[opt]; !ok {
			tally[opt] = 0
		}
	}

	result := &entity.QuestionResult{
		QuestionID: q.QuestionID,
		Type:       q.Type,
		Text:       q.Text,
		Options:    q.Options,
		Results:    tally,
	}

	if userID != "" {
		answers, err := s.runRepo.GetUserAnswer(ctx, userID, code, q.QuestionID)
		if err != nil {
			return nil, err
		}
		result.UserAnswers = answers
	}
	return result, nil
}

// ExportCSV выписывает результаты запуска в CSV: по строке на каждую пару
// вопрос-вариант с количеством голосов. Выгрузка доступна только владельцу.
func (s *ResultService) ExportCSV(ctx context.Context, code, requesterID string, w io.Writer) error {
	run, results, err := s.loadExportData(ctx, code, requesterID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"run_code", "question_position", "question", "option", "votes"}); err != nil {
		return err
	}

	for i, qr := range results {
		for _, row := range orderedTally(qr) {
			record := []string{
				run.RunCode,
				strconv.Itoa(i + 1),
				qr.Text,
				row.label,
				strconv.FormatInt(row.count, 10),
			}
			if err := cw.Write(record); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportXLSX выписывает результаты запуска в книгу XLSX с листом на сводку.
// Выгрузка доступна только владельцу.
func (s *ResultService) ExportXLSX(ctx context.Context, code, requesterID string, w io.Writer) error {
	run, results, err := s.loadExportData(ctx, code, requesterID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []interface{}{"Run", "Question #", "Question", "Option", "Votes"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return err
	}

	rowNum := 2
	for i, qr := range results {
		for _, row := range orderedTally(qr) {
			cell, err := excelize.CoordinatesToCellName(1, rowNum)
			if err != nil {
				return err
			}
			values := []interface{}{run.RunCode, i + 1, qr.Text, row.label, row.count}
			if err := f.SetSheetRow(sheet, cell, &values); err != nil {
				return err
			}
			rowNum++
		}
	}

	// Сводная строка по участникам
	cell, err := excelize.CoordinatesToCellName(1, rowNum+1)
	if err != nil {
		return err
	}
	summary := []interface{}{fmt.Sprintf("Participants: %d", run.ParticipantsCount)}
	if err := f.SetSheetRow(sheet, cell, &summary); err != nil {
		return err
	}

	return f.Write(w)
}

func (s *ResultService) loadExportData(ctx context.Context, code, requesterID string) (*entity.PollRun, []entity.QuestionResult, error) {
	run, err := s.runRepo.GetRun(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if run.OwnerID != requesterID {
		return nil, nil, fmt.Errorf("%w: run %s belongs to another user", apperrors.ErrForbidden, code)
	}
	results, err := s.GetRunResults(ctx, code, "")
	if err != nil {
		return nil, nil, err
	}
	return run, results, nil
}

type tallyRow struct {
	label string
	count int64
}

// orderedTally возвращает счётчики в устойчивом порядке: сначала
// предопределённые варианты в авторском порядке, затем синтетические метки
func orderedTally(qr entity.QuestionResult) []tallyRow {
	rows := make([]tallyRow, 0, len(qr.Results))
	seen := make(map[string]bool, len(qr.Options))

	for _, opt := range qr.Options {
		rows = append(rows, tallyRow{label: opt, count: qr.Results[opt]})
		seen[opt] = true
	}
	synthetic := make([]tallyRow, 0)
	for label, count := range qr.Results {
		if !seen[label] {
			synthetic = append(synthetic, tallyRow{label: label, count: count})
		}
	}
	sort.Slice(synthetic, func(i, j int) bool { return synthetic[i].label < synthetic[j].label })
	return append(rows, synthetic...)
}
