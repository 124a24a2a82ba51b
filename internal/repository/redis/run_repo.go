package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/yourusername/pollrun-api/internal/domain/entity"
	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
	"github.com/yourusername/pollrun-api/internal/pkg/runcode"
)

// Поля хеша запуска
const (
	fieldPollID            = "poll_id"
	fieldOwnerID           = "owner_id"
	fieldStatus            = "status"
	fieldCreated           = "created"
	fieldStarted           = "started"
	fieldEnded             = "ended"
	fieldRunDuration       = "run_duration"
	fieldCurrentQuestion   = "current_question"
	fieldQuestionCount     = "question_count"
	fieldParticipantsCount = "participants_count"
)

// Поля хеша снапшота вопроса
const (
	fieldQuestionType     = "type"
	fieldQuestionText     = "question_text"
	fieldQuestionOptions  = "possible_answers"
	fieldQuestionPosition = "position"
)

// Служебное поле хеша счётчиков: создаётся вместе с запуском, чтобы хеш
// существовал до первого голоса. В агрегаты не входит.
const resultsMetaField = "initialized"

// Число повторов оптимистичной транзакции при конкурентном изменении ключа
const maxTxRetries = 5

// RunRepo реализует repository.RunRepository поверх Redis.
// Все переходы статусов и замена ответа выполняются через WATCH/MULTI:
// проверка состояния и запись попадают в одну транзакцию.
type RunRepo struct {
	client redis.UniversalClient
}

// NewRunRepo создает новый репозиторий запусков
func NewRunRepo(client redis.UniversalClient) (*RunRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for RunRepo")
	}
	return &RunRepo{client: client}, nil
}

// watch выполняет fn в оптимистичной транзакции с повторами при конфликте
func (r *RunRepo) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction retries exhausted for keys %v: %w", keys, redis.TxFailedErr)
}

// CreateRun атомарно записывает запуск, снапшоты его вопросов и индексы
func (r *RunRepo) CreateRun(ctx context.Context, run *entity.PollRun, questions []entity.RunQuestion) error {
	runKey := runcode.RunKey(run.RunCode)

	return r.watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, runKey).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: run code %s already in use", apperrors.ErrConflict, run.RunCode)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, runKey, map[string]interface{}{
				fieldPollID:            run.PollID,
				fieldOwnerID:           run.OwnerID,
				fieldStatus:            run.Status,
				fieldCreated:           run.CreatedAtMs,
				fieldStarted:           run.StartedAtMs,
				fieldEnded:             run.EndedAtMs,
				fieldRunDuration:       run.RunDurationSec,
				fieldCurrentQuestion:   run.CurrentQuestion,
				fieldQuestionCount:     run.QuestionCount,
				fieldParticipantsCount: run.ParticipantsCount,
			})

			for _, q := range questions {
				opts, err := json.Marshal(q.Options)
				if err != nil {
					return fmt.Errorf("failed to marshal question options: %w", err)
				}
				pipe.ZAdd(ctx, runcode.RunQuestionsKey(run.RunCode), &redis.Z{
					Score:  float64(q.Position),
					Member: q.QuestionID,
				})
				pipe.HSet(ctx, runcode.RunQuestionKey(run.RunCode, q.QuestionID), map[string]interface{}{
					fieldQuestionType:     q.Type,
					fieldQuestionText:     q.Text,
					fieldQuestionOptions:  opts,
					fieldQuestionPosition: q.Position,
				})
				pipe.HSet(ctx, runcode.RunResultsKey(run.RunCode, q.QuestionID), resultsMetaField, 1)
			}

			score := float64(run.CreatedAtMs)
			pipe.ZAdd(ctx, runcode.PollRunsKey(run.PollID), &redis.Z{Score: score, Member: run.RunCode})
			pipe.ZAdd(ctx, runcode.OwnerRunsKey(run.OwnerID), &redis.Z{Score: score, Member: run.RunCode})
			return nil
		})
		return err
	}, runKey)
}

// GetRun возвращает запуск по коду
func (r *RunRepo) GetRun(ctx context.Context, code string) (*entity.PollRun, error) {
	data, err := r.client.HGetAll(ctx, runcode.RunKey(code)).Result()
	if err != nil {
		return nil, err
	}
	return parseRunHash(code, data)
}

// StartRun переводит запуск open -> running
func (r *RunRepo) StartRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error) {
	return r.transition(ctx, code, func(run *entity.PollRun) (map[string]interface{}, error) {
		if !run.IsOpen() {
			return nil, fmt.Errorf("%w: cannot start run in status %q", apperrors.ErrInvalidTransition, run.Status)
		}
		run.Status = entity.RunStatusRunning
		run.StartedAtMs = nowMs
		run.CurrentQuestion = 0
		return map[string]interface{}{
			fieldStatus:          run.Status,
			fieldStarted:         nowMs,
			fieldCurrentQuestion: 0,
		}, nil
	})
}

// EndRun переводит запуск running -> closed
func (r *RunRepo) EndRun(ctx context.Context, code string, nowMs int64) (*entity.PollRun, error) {
	return r.transition(ctx, code, func(run *entity.PollRun) (map[string]interface{}, error) {
		if !run.IsRunning() {
			return nil, fmt.Errorf("%w: cannot end run in status %q", apperrors.ErrInvalidTransition, run.Status)
		}
		run.Status = entity.RunStatusClosed
		run.EndedAtMs = nowMs
		return map[string]interface{}{
			fieldStatus: run.Status,
			fieldEnded:  nowMs,
		}, nil
	})
}

// transition читает запуск под WATCH, применяет mutate и записывает изменённые поля
func (r *RunRepo) transition(ctx context.Context, code string, mutate func(*entity.PollRun) (map[string]interface{}, error)) (*entity.PollRun, error) {
	runKey := runcode.RunKey(code)
	var result *entity.PollRun

	err := r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, runKey).Result()
		if err != nil {
			return err
		}
		run, err := parseRunHash(code, data)
		if err != nil {
			return err
		}

		fields, err := mutate(run)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, runKey, fields)
			return nil
		})
		if err != nil {
			return err
		}
		result = run
		return nil
	}, runKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdjustDuration изменяет длительность идущего запуска и возвращает новое значение
func (r *RunRepo) AdjustDuration(ctx context.Context, code string, deltaSec int64) (int64, error) {
	runKey := runcode.RunKey(code)
	var newDuration int64

	err := r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, runKey).Result()
		if err != nil {
			return err
		}
		run, err := parseRunHash(code, data)
		if err != nil {
			return err
		}
		if !run.IsRunning() {
			return fmt.Errorf("%w: cannot adjust duration of run in status %q", apperrors.ErrInvalidTransition, run.Status)
		}

		var incr *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.HIncrBy(ctx, runKey, fieldRunDuration, deltaSec)
			return nil
		})
		if err != nil {
			return err
		}
		newDuration = incr.Val()
		return nil
	}, runKey)
	if err != nil {
		return 0, err
	}
	return newDuration, nil
}

// AdvanceQuestion сдвигает курсор идущего запуска на следующий вопрос.
// На последнем вопросе курсор не записывается: возвращается прежний индекс
// с признаком завершения, повторный вызов идемпотентен. Индекс всегда
// остаётся в пределах списка вопросов.
func (r *RunRepo) AdvanceQuestion(ctx context.Context, code string) (int64, bool, error) {
	runKey := runcode.RunKey(code)
	var (
		nextIndex int64
		completed bool
	)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, runKey).Result()
		if err != nil {
			return err
		}
		run, err := parseRunHash(code, data)
		if err != nil {
			return err
		}
		if !run.IsRunning() {
			return fmt.Errorf("%w: cannot advance run in status %q", apperrors.ErrInvalidTransition, run.Status)
		}

		if run.CurrentQuestion+1 >= run.QuestionCount {
			nextIndex = run.CurrentQuestion
			completed = true
			return nil
		}

		nextIndex = run.CurrentQuestion + 1
		completed = false

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, runKey, fieldCurrentQuestion, nextIndex)
			return nil
		})
		return err
	}, runKey)
	if err != nil {
		return 0, false, err
	}
	return nextIndex, completed, nil
}

// EnterRun регистрирует участника в открытом запуске
func (r *RunRepo) EnterRun(ctx context.Context, code, userID string, nowMs int64) error {
	runKey := runcode.RunKey(code)
	participantsKey := runcode.RunParticipantsKey(code)

	return r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, runKey).Result()
		if err != nil {
			return err
		}
		run, err := parseRunHash(code, data)
		if err != nil {
			return err
		}
		if !run.IsOpen() {
			return fmt.Errorf("%w: cannot enter run in status %q", apperrors.ErrInvalidTransition, run.Status)
		}

		already, err := tx.SIsMember(ctx, participantsKey, userID).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, participantsKey, userID)
			if !already {
				pipe.HIncrBy(ctx, runKey, fieldParticipantsCount, 1)
			}
			pipe.ZAdd(ctx, runcode.ParticipationsKey(userID), &redis.Z{
				Score:  float64(nowMs),
				Member: code,
			})
			return nil
		})
		return err
	}, runKey, participantsKey)
}

// SubmitAnswer атомарно заменяет предыдущий ответ участника новым.
// В одной транзакции уменьшаются счётчики прежних вариантов и увеличиваются
// счётчики новых, чтобы переголосование не искажало агрегаты.
func (r *RunRepo) SubmitAnswer(ctx context.Context, code string, questionID uint, userID string, selections []string) error {
	runKey := runcode.RunKey(code)
	resultsKey := runcode.RunResultsKey(code, questionID)
	watchKeys := []string{runKey, resultsKey}

	answerKey := ""
	if userID != "" {
		answerKey = runcode.UserAnswerKey(userID, code, questionID)
		watchKeys = append(watchKeys, answerKey)
	}

	return r.watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, runKey).Result()
		if err != nil {
			return err
		}
		run, err := parseRunHash(code, data)
		if err != nil {
			return err
		}
		if !run.AcceptsAnswers() {
			return fmt.Errorf("%w: run %s does not accept answers in status %q", apperrors.ErrInvalidTransition, code, run.Status)
		}

		exists, err := tx.Exists(ctx, runcode.RunQuestionKey(code, questionID)).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: question %d in run %s", apperrors.ErrNotFound, questionID, code)
		}

		var previous []string
		if answerKey != "" {
			raw, err := tx.Get(ctx, answerKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if err == nil {
				if err := json.Unmarshal([]byte(raw), &previous); err != nil {
					return fmt.Errorf("failed to unmarshal previous answer: %w", err)
				}
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, label := range previous {
				pipe.HIncrBy(ctx, resultsKey, label, -1)
			}
			for _, label := range selections {
				pipe.HIncrBy(ctx, resultsKey, label, 1)
			}
			if answerKey != "" {
				record, err := json.Marshal(selections)
				if err != nil {
					return fmt.Errorf("failed to marshal answer record: %w", err)
				}
				pipe.Set(ctx, answerKey, record, 0)
			}
			return nil
		})
		return err
	}, watchKeys...)
}

// GetRunQuestions возвращает снапшоты вопросов запуска в порядке позиций
func (r *RunRepo) GetRunQuestions(ctx context.Context, code string) ([]entity.RunQuestion, error) {
	ids, err := r.client.ZRange(ctx, runcode.RunQuestionsKey(code), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		exists, err := r.client.Exists(ctx, runcode.RunKey(code)).Result()
		if err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: run %s", apperrors.ErrNotFound, code)
		}
		return []entity.RunQuestion{}, nil
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.StringStringMapCmd, 0, len(ids))
	questionIDs := make([]uint, 0, len(ids))
	for _, id := range ids {
		qid, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed question id %q in run %s", apperrors.ErrInvalidArgument, id, code)
		}
		questionIDs = append(questionIDs, uint(qid))
		cmds = append(cmds, pipe.HGetAll(ctx, runcode.RunQuestionKey(code, uint(qid))))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	questions := make([]entity.RunQuestion, 0, len(ids))
	for i, cmd := range cmds {
		q, err := parseQuestionHash(questionIDs[i], cmd.Val())
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, nil
}

// GetRunQuestion возвращает один снапшот вопроса запуска
func (r *RunRepo) GetRunQuestion(ctx context.Context, code string, questionID uint) (*entity.RunQuestion, error) {
	data, err := r.client.HGetAll(ctx, runcode.RunQuestionKey(code, questionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: question %d in run %s", apperrors.ErrNotFound, questionID, code)
	}
	return parseQuestionHash(questionID, data)
}

// GetTally возвращает счётчики ответов по вопросу запуска
func (r *RunRepo) GetTally(ctx context.Context, code string, questionID uint) (entity.Tally, error) {
	data, err := r.client.HGetAll(ctx, runcode.RunResultsKey(code, questionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: results for question %d in run %s", apperrors.ErrNotFound, questionID, code)
	}

	tally := make(entity.Tally, len(data))
	for label, raw := range data {
		if label == resultsMetaField {
			continue
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed tally value %q for label %q: %w", raw, label, err)
		}
		tally[label] = count
	}
	return tally, nil
}

// GetUserAnswer возвращает последний записанный выбор участника
func (r *RunRepo) GetUserAnswer(ctx context.Context, userID, code string, questionID uint) ([]string, error) {
	raw, err := r.client.Get(ctx, runcode.UserAnswerKey(userID, code, questionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var selections []string
	if err := json.Unmarshal([]byte(raw), &selections); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answer record: %w", err)
	}
	return selections, nil
}

// Participants возвращает идентификаторы участников запуска
func (r *RunRepo) Participants(ctx context.Context, code string) ([]string, error) {
	return r.client.SMembers(ctx, runcode.RunParticipantsKey(code)).Result()
}

// DeleteRun каскадно удаляет запуск и его записи в индексах
func (r *RunRepo) DeleteRun(ctx context.Context, code string) error {
	run, err := r.GetRun(ctx, code)
	if err != nil {
		return err
	}

	ids, err := r.client.ZRange(ctx, runcode.RunQuestionsKey(code), 0, -1).Result()
	if err != nil {
		return err
	}

	keys := []string{
		runcode.RunKey(code),
		runcode.RunQuestionsKey(code),
		runcode.RunParticipantsKey(code),
	}
	for _, id := range ids {
		qid, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		keys = append(keys,
			runcode.RunQuestionKey(code, uint(qid)),
			runcode.RunResultsKey(code, uint(qid)),
		)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, runcode.PollRunsKey(run.PollID), code)
		pipe.ZRem(ctx, runcode.OwnerRunsKey(run.OwnerID), code)
		return nil
	})
	return err
}

// ListRunCodesByPoll возвращает коды запусков опроса, новые первыми
func (r *RunRepo) ListRunCodesByPoll(ctx context.Context, pollID uint) ([]string, error) {
	return r.client.ZRevRange(ctx, runcode.PollRunsKey(pollID), 0, -1).Result()
}

// ListRunCodesByOwner возвращает коды запусков, созданных пользователем
func (r *RunRepo) ListRunCodesByOwner(ctx context.Context, userID string) ([]string, error) {
	return r.client.ZRevRange(ctx, runcode.OwnerRunsKey(userID), 0, -1).Result()
}

// ListParticipations возвращает коды запусков, в которых пользователь участвовал
func (r *RunRepo) ListParticipations(ctx context.Context, userID string) ([]string, error) {
	return r.client.ZRevRange(ctx, runcode.ParticipationsKey(userID), 0, -1).Result()
}

// parseRunHash восстанавливает запуск из полей хеша
func parseRunHash(code string, data map[string]string) (*entity.PollRun, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: run %s", apperrors.ErrNotFound, code)
	}

	run := &entity.PollRun{
		RunCode: code,
		OwnerID: data[fieldOwnerID],
		Status:  data[fieldStatus],
	}

	pollID, err := strconv.ParseUint(data[fieldPollID], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed poll_id in run %s: %w", code, err)
	}
	run.PollID = uint(pollID)

	intFields := []struct {
		name string
		dst  *int64
	}{
		{fieldCreated, &run.CreatedAtMs},
		{fieldStarted, &run.StartedAtMs},
		{fieldEnded, &run.EndedAtMs},
		{fieldRunDuration, &run.RunDurationSec},
		{fieldCurrentQuestion, &run.CurrentQuestion},
		{fieldQuestionCount, &run.QuestionCount},
		{fieldParticipantsCount, &run.ParticipantsCount},
	}
	for _, f := range intFields {
		raw, ok := data[f.name]
		if !ok || raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed field %s in run %s: %w", f.name, code, err)
		}
		*f.dst = v
	}
	return run, nil
}

// parseQuestionHash восстанавливает снапшот вопроса из полей хеша
func parseQuestionHash(questionID uint, data map[string]string) (*entity.RunQuestion, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: question %d", apperrors.ErrNotFound, questionID)
	}

	q := &entity.RunQuestion{
		QuestionID: questionID,
		Type:       data[fieldQuestionType],
		Text:       data[fieldQuestionText],
	}

	if raw := data[fieldQuestionPosition]; raw != "" {
		pos, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed position for question %d: %w", questionID, err)
		}
		q.Position = pos
	}

	if raw := data[fieldQuestionOptions]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &q.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options for question %d: %w", questionID, err)
		}
	}
	return q, nil
}
