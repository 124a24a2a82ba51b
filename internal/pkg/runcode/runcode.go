// Package runcode реализует кодек идентификаторов: преобразование между
// внешними идентификаторами (код запуска, ID опроса) и ключами хранилища,
// а также генерацию новых кодов запуска.
package runcode

import (
	"crypto/rand"
	"fmt"
	"strings"

	apperrors "github.com/yourusername/pollrun-api/internal/pkg/errors"
)

// Alphabet — алфавит кодов запуска. Исключены визуально похожие символы
// (0/O, 1/l/I, 5/S, 8/B и т.д.), чтобы код можно было диктовать и вводить вручную.
const Alphabet = "abcdefghkmnpqrstuvwxyzADEFGHJKLMNPQRTUVWXY234679"

// CodeLength — длина кода запуска.
const CodeLength = 6

// Префиксы ключей хранилища
const (
	runKeyPrefix  = "poll_run:"
	pollKeyPrefix = "poll:"
	userKeyPrefix = "user:"
)

// maxRandomByte — верхняя граница пригодных случайных байтов: наибольшее
// кратное длине алфавита. Байты выше отбрасываются, остаток от деления 256
// на длину алфавита давал бы перекос в сторону его первых символов.
const maxRandomByte = 256 - 256%len(Alphabet)

// Generate возвращает новый случайный код запуска.
// Уникальность кода проверяет вызывающая сторона (коллизия против хранилища).
func Generate() (string, error) {
	code := make([]byte, 0, CodeLength)
	buf := make([]byte, CodeLength)
	for len(code) < CodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes for run code: %w", err)
		}
		for _, b := range buf {
			ch, ok := charForByte(b)
			if !ok {
				continue
			}
			code = append(code, ch)
			if len(code) == CodeLength {
				break
			}
		}
	}
	return string(code), nil
}

// charForByte отображает случайный байт в символ алфавита.
// Байты начиная с maxRandomByte отбрасываются.
func charForByte(b byte) (byte, bool) {
	if int(b) >= maxRandomByte {
		return 0, false
	}
	return Alphabet[int(b)%len(Alphabet)], true
}

// Valid проверяет, что строка может быть кодом запуска.
func Valid(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			return false
		}
	}
	return true
}

// RunKey возвращает ключ хеша запуска для кода.
func RunKey(code string) string {
	return runKeyPrefix + code
}

// CodeFromRunKey восстанавливает код запуска из ключа хранилища.
func CodeFromRunKey(key string) (string, error) {
	if !strings.HasPrefix(key, runKeyPrefix) {
		return "", fmt.Errorf("%w: not a run key: %q", apperrors.ErrInvalidArgument, key)
	}
	return strings.TrimPrefix(key, runKeyPrefix), nil
}

// PollKey возвращает ключ индекса запусков опроса.
func PollKey(pollID uint) string {
	return fmt.Sprintf("%s%d", pollKeyPrefix, pollID)
}

// RunQuestionsKey возвращает ключ упорядоченного множества вопросов запуска.
func RunQuestionsKey(code string) string {
	return RunKey(code) + ":questions"
}

// RunQuestionKey возвращает ключ хеша снапшота вопроса внутри запуска.
func RunQuestionKey(code string, questionID uint) string {
	return fmt.Sprintf("%s:question:%d", RunKey(code), questionID)
}

// RunResultsKey возвращает ключ хеша счётчиков ответов для вопроса запуска.
func RunResultsKey(code string, questionID uint) string {
	return RunQuestionKey(code, questionID) + ":results"
}

// RunParticipantsKey возвращает ключ множества участников запуска.
func RunParticipantsKey(code string) string {
	return RunKey(code) + ":participants"
}

// PollRunsKey возвращает ключ индекса запусков, принадлежащих опросу.
func PollRunsKey(pollID uint) string {
	return PollKey(pollID) + ":poll_runs"
}

// OwnerRunsKey возвращает ключ индекса запусков, созданных владельцем.
func OwnerRunsKey(userID string) string {
	return userKeyPrefix + userID + ":poll_runs"
}

// ParticipationsKey возвращает ключ индекса участий пользователя.
func ParticipationsKey(userID string) string {
	return userKeyPrefix + userID + ":participations"
}

// UserAnswerKey возвращает ключ записи последнего ответа участника на вопрос запуска.
func UserAnswerKey(userID, code string, questionID uint) string {
	return fmt.Sprintf("%s%s:poll_run:%s:question:%d", userKeyPrefix, userID, code, questionID)
}
