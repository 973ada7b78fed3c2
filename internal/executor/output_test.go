package executor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCappedBufferUnderCap(t *testing.T) {
	b := newCappedBuffer(16)
	n, err := b.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", b.String())
	assert.False(t, b.Truncated())
}

func TestCappedBufferTruncatesAtCap(t *testing.T) {
	b := newCappedBuffer(8)
	b.Write([]byte("12345"))
	b.Write([]byte("67890"))

	assert.Equal(t, "12345678", b.String())
	assert.True(t, b.Truncated())

	// Further writes are swallowed without growing the buffer.
	b.Write([]byte(strings.Repeat("x", 1024)))
	assert.Len(t, b.String(), 8)
}
