package runner

import (
	"strings"

	"codequest/internal/domain/model"
)

// Normalize applies a challenge's declared output normalization before
// comparison. The default trim mode drops trailing whitespace on each line
// and the trailing newline, so "5\n" and "5" compare equal.
func Normalize(norm model.OutputNorm, s string) string {
	switch norm {
	case model.NormExact:
		return s
	case model.NormWhitespace:
		return strings.Join(strings.Fields(s), " ")
	default:
		lines := strings.Split(s, "\n")
		for i := range lines {
			lines[i] = strings.TrimRight(lines[i], " \t\r")
		}
		out := strings.Join(lines, "\n")
		return strings.TrimRight(out, "\n")
	}
}
