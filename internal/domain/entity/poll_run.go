package entity

// Константы статусов запуска опроса.
// Порядок строго линейный: open -> running -> closed, без возврата.
const (
	RunStatusOpen    = "open"
	RunStatusRunning = "running"
	RunStatusClosed  = "closed"
)

// PollRun представляет один запуск опроса — центральную сущность движка.
// Авторитетное состояние живёт в хранилище; структура — снимок на момент чтения.
type PollRun struct {
	RunCode           string `json:"run_code"`
	PollID            uint   `json:"poll_id"`
	OwnerID           string `json:"owner_id"`
	Status            string `json:"status"`
	CreatedAtMs       int64  `json:"created_at_ms"`
	StartedAtMs       int64  `json:"started_at_ms,omitempty"`
	EndedAtMs         int64  `json:"ended_at_ms,omitempty"`
	RunDurationSec    int64  `json:"run_duration_sec"`
	CurrentQuestion   int64  `json:"current_question"`
	QuestionCount     int64  `json:"question_count"`
	ParticipantsCount int64  `json:"participants_count"`
}

// IsOpen проверяет, открыт ли запуск для входа участников
func (r *PollRun) IsOpen() bool {
	return r.Status == RunStatusOpen
}

// IsRunning проверяет, идёт ли запуск
func (r *PollRun) IsRunning() bool {
	return r.Status == RunStatusRunning
}

// IsClosed проверяет, завершён ли запуск
func (r *PollRun) IsClosed() bool {
	return r.Status == RunStatusClosed
}

// AcceptsAnswers сообщает, принимает ли запуск ответы.
// Ответы принимаются в open и running: опоздавший ответ на уже пройденный
// вопрос также засчитывается (осознанная мягкость, не ошибка).
func (r *PollRun) AcceptsAnswers() bool {
	return r.Status == RunStatusOpen || r.Status == RunStatusRunning
}

// RunQuestion — неизменяемый снапшот вопроса, скопированный из опроса
// в момент создания запуска. Последующие правки опроса на запуск не влияют.
type RunQuestion struct {
	QuestionID uint        `json:"question_id"`
	Position   int         `json:"position"`
	Type       string      `json:"type"`
	Text       string      `json:"text"`
	Options    StringArray `json:"options"`
}

// Tally — счётчики голосов по вариантам одного вопроса внутри запуска
type Tally map[string]int64

// QuestionResult — агрегированный результат по одному вопросу запуска:
// снапшот вопроса, счётчики по всем вариантам и (опционально) собственный
// выбор запросившего участника.
type QuestionResult struct {
	QuestionID  uint        `json:"question_id"`
	Type        string      `json:"type"`
	Text        string      `json:"text"`
	Options     StringArray `json:"options"`
	Results     Tally       `json:"results"`
	UserAnswers []string    `json:"user_answers,omitempty"`
}
