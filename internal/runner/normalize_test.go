package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"codequest/internal/domain/model"
)

func TestNormalizeTrim(t *testing.T) {
	assert.Equal(t, Normalize(model.NormTrim, "5\n"), Normalize(model.NormTrim, "5"))
	assert.Equal(t, Normalize(model.NormTrim, "a b \nc\t\n"), Normalize(model.NormTrim, "a b\nc"))
	assert.Equal(t, Normalize(model.NormTrim, "x\r\n"), Normalize(model.NormTrim, "x"))

	// Leading whitespace and interior spacing still matter.
	assert.NotEqual(t, Normalize(model.NormTrim, " 5"), Normalize(model.NormTrim, "5"))
	assert.NotEqual(t, Normalize(model.NormTrim, "a  b"), Normalize(model.NormTrim, "a b"))
}

func TestNormalizeExact(t *testing.T) {
	assert.NotEqual(t, Normalize(model.NormExact, "5\n"), Normalize(model.NormExact, "5"))
	assert.Equal(t, "5\n", Normalize(model.NormExact, "5\n"))
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "1 2 3", Normalize(model.NormWhitespace, "  1\n2\t 3 \n"))
	assert.Equal(t, Normalize(model.NormWhitespace, "a  b"), Normalize(model.NormWhitespace, "a b"))
}
