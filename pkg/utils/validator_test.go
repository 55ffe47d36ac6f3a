package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string  `validate:"required"`
	Score float64 `validate:"gte=0,lte=100"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Name: "x", Score: 50}))

	err := ValidateStruct(sample{Score: 120})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "Name must satisfy required")
		assert.Contains(t, err.Error(), "Score must satisfy lte=100")
	}
}

func TestValidateScore(t *testing.T) {
	assert.NoError(t, ValidateScore(0))
	assert.NoError(t, ValidateScore(100))
	assert.Error(t, ValidateScore(-0.01))
	assert.Error(t, ValidateScore(100.5))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "line one\nline two", SanitizeString("  line one\nline two\x00\x07 "))
}
