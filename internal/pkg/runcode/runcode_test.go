package runcode

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_LengthAndAlphabet(t *testing.T) {
	// Act: генерируем несколько кодов и проверяем каждый
	for i := 0; i < 100; i++ {
		code, err := Generate()

		// Assert
		require.NoError(t, err, "Генерация кода не должна возвращать ошибку")
		assert.Len(t, code, CodeLength, "Код должен иметь фиксированную длину")
		for _, r := range code {
			assert.True(t, strings.ContainsRune(Alphabet, r),
				"Код %q содержит символ вне алфавита: %q", code, r)
		}
		assert.True(t, Valid(code), "Сгенерированный код должен проходить проверку Valid")
	}
}

func TestGenerate_NotConstant(t *testing.T) {
	// Вероятность коллизии на 48^6 кодов пренебрежимо мала
	first, err := Generate()
	require.NoError(t, err)

	same := true
	for i := 0; i < 10; i++ {
		code, err := Generate()
		require.NoError(t, err)
		if code != first {
			same = false
			break
		}
	}
	assert.False(t, same, "Генератор не должен выдавать один и тот же код")
}

func TestCharForByte_RejectsBiasedTail(t *testing.T) {
	// Arrange: 256 не делится на длину алфавита нацело
	require.NotZero(t, 256%len(Alphabet))

	// Assert: байты в пределах границы отображаются по модулю
	ch, ok := charForByte(0)
	require.True(t, ok)
	assert.Equal(t, Alphabet[0], ch)

	ch, ok = charForByte(byte(maxRandomByte - 1))
	require.True(t, ok)
	assert.Equal(t, Alphabet[(maxRandomByte-1)%len(Alphabet)], ch)

	// Хвост диапазона отбрасывается целиком, иначе первые символы
	// алфавита выпадали бы чаще остальных
	for b := maxRandomByte; b < 256; b++ {
		_, ok := charForByte(byte(b))
		assert.False(t, ok, "Байт %d должен отбрасываться", b)
	}
}

func TestValid(t *testing.T) {
	testCases := []struct {
		name  string
		code  string
		valid bool
	}{
		{"корректный код", "abc234", true},
		{"слишком короткий", "abc23", false},
		{"слишком длинный", "abc2345", false},
		{"пустая строка", "", false},
		{"символ вне алфавита (ноль)", "abc230", false},
		{"символ вне алфавита (похожая буква O)", "abcO34", false},
		{"пробел внутри", "ab 234", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, Valid(tc.code))
		})
	}
}

func TestRunKeyRoundTrip(t *testing.T) {
	// Arrange
	code := "abc234"

	// Act
	key := RunKey(code)
	restored, err := CodeFromRunKey(key)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "poll_run:abc234", key)
	assert.Equal(t, code, restored, "Код должен восстанавливаться из ключа без потерь")
}

func TestCodeFromRunKey_WrongPrefix(t *testing.T) {
	_, err := CodeFromRunKey("poll:42")
	assert.Error(t, err, "Чужой ключ не должен распознаваться как ключ запуска")
}

func TestStorageKeys(t *testing.T) {
	assert.Equal(t, "poll_run:abc234:questions", RunQuestionsKey("abc234"))
	assert.Equal(t, "poll_run:abc234:question:7", RunQuestionKey("abc234", 7))
	assert.Equal(t, "poll_run:abc234:question:7:results", RunResultsKey("abc234", 7))
	assert.Equal(t, "poll_run:abc234:participants", RunParticipantsKey("abc234"))
	assert.Equal(t, "poll:42:poll_runs", PollRunsKey(42))
	assert.Equal(t, "user:u1:poll_runs", OwnerRunsKey("u1"))
	assert.Equal(t, "user:u1:participations", ParticipationsKey("u1"))
	assert.Equal(t, "user:u1:poll_run:abc234:question:7", UserAnswerKey("u1", "abc234", 7))
}
