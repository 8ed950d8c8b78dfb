package stringutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndentString(t *testing.T) {
	assert.Equal(t, "  a\n  b", IndentString("a\nb", "  "))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "äö", Truncate("äöü", 2))
	assert.Empty(t, Truncate("abc", 0))
}

func TestHasPrefixFold(t *testing.T) {
	assert.True(t, HasPrefixFold("WIP: fix", "wip:"))
	assert.True(t, HasPrefixFold("wip:", "WIP:"))
	assert.False(t, HasPrefixFold("wi", "wip:"))
	assert.False(t, HasPrefixFold("fix: wip:", "wip:"))
}
