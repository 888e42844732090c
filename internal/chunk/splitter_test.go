package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitterValidation(t *testing.T) {
	_, err := NewSplitter(0, 0)
	assert.Error(t, err)

	_, err = NewSplitter(100, 100)
	assert.Error(t, err)

	_, err = NewSplitter(100, -1)
	assert.Error(t, err)

	_, err = NewSplitter(100, 99)
	assert.NoError(t, err)
}

func TestSplitEmptyText(t *testing.T) {
	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	assert.Nil(t, s.Split(""))
}

func TestSplitShortText(t *testing.T) {
	s, err := NewSplitter(100, 10)
	require.NoError(t, err)

	chunks := s.Split("short text")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplitOverlap(t *testing.T) {
	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	text := "abcdefghijklmnopqrstuvwxy" // 25 runes, step 7
	chunks := s.Split(text)

	require.Equal(t, []string{
		"abcdefghij",
		"hijklmnopq",
		"opqrstuvwx",
		"vwxy",
	}, chunks)

	// Each chunk starts with the last `overlap` runes of its predecessor.
	for i := 1; i < len(chunks); i++ {
		prev := []rune(chunks[i-1])
		tail := string(prev[len(prev)-3:])
		assert.True(t, strings.HasPrefix(chunks[i], tail))
	}
}

func TestSplitNoOverlapCoversText(t *testing.T) {
	s, err := NewSplitter(4, 0)
	require.NoError(t, err)

	text := "abcdefghij"
	chunks := s.Split(text)

	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplitMultibyteRunes(t *testing.T) {
	s, err := NewSplitter(3, 1)
	require.NoError(t, err)

	chunks := s.Split("héllо wörld")
	for _, c := range chunks {
		// A mid-character split would produce invalid UTF-8.
		assert.True(t, strings.ToValidUTF8(c, "�") == c)
	}
}

func TestSplitDeterministic(t *testing.T) {
	s, err := NewSplitter(10, 3)
	require.NoError(t, err)

	text := strings.Repeat("the quick brown fox ", 20)
	assert.Equal(t, s.Split(text), s.Split(text))
}
