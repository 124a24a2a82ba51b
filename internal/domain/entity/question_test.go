package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringArray_Scan(t *testing.T) {
	testCases := []struct {
		name     string
		input    interface{}
		expected StringArray
		wantErr  bool
	}{
		{
			name:     "корректный JSON массив",
			input:    []byte(`["Да", "Нет"]`),
			expected: StringArray{"Да", "Нет"},
		},
		{
			name:     "NULL из базы",
			input:    nil,
			expected: StringArray{},
		},
		{
			name:     "пустые байты",
			input:    []byte{},
			expected: StringArray{},
		},
		{
			name:    "не байты",
			input:   42,
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var arr StringArray
			err := arr.Scan(tc.input)

			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, arr)
		})
	}
}

func TestStringArray_Value(t *testing.T) {
	// Пустой массив сериализуется как "[]", а не NULL
	empty := StringArray{}
	val, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), val)

	arr := StringArray{"A", "B"}
	val, err = arr.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `["A","B"]`, string(val.([]byte)))
}

func TestValidQuestionType(t *testing.T) {
	assert.True(t, ValidQuestionType(QuestionTypeSingleChoice))
	assert.True(t, ValidQuestionType(QuestionTypeMultipleChoice))
	assert.True(t, ValidQuestionType(QuestionTypeScale))
	assert.True(t, ValidQuestionType(QuestionTypeYesNo))
	assert.False(t, ValidQuestionType("ranking"))
	assert.False(t, ValidQuestionType(""))
}

func TestIsSingleSelect(t *testing.T) {
	// Только множественный выбор допускает несколько вариантов
	assert.True(t, IsSingleSelect(QuestionTypeSingleChoice))
	assert.True(t, IsSingleSelect(QuestionTypeScale))
	assert.True(t, IsSingleSelect(QuestionTypeYesNo))
	assert.False(t, IsSingleSelect(QuestionTypeMultipleChoice))
}

func TestHasPredefinedOptions(t *testing.T) {
	// Варианты шкалы и да/нет формирует клиент
	assert.True(t, HasPredefinedOptions(QuestionTypeSingleChoice))
	assert.True(t, HasPredefinedOptions(QuestionTypeMultipleChoice))
	assert.False(t, HasPredefinedOptions(QuestionTypeScale))
	assert.False(t, HasPredefinedOptions(QuestionTypeYesNo))
}
