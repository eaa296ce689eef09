package tokens

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The fallback counter is what tests can rely on offline; a bad encoding
// name forces it.
func fallback() *Counter {
	return NewCounter("no-such-encoding")
}

func TestCountEmpty(t *testing.T) {
	assert.Equal(t, 0, fallback().Count(""))
}

func TestCountGrowsWithText(t *testing.T) {
	c := fallback()
	short := c.Count("one two three")
	long := c.Count("one two three four five six seven eight nine ten")
	assert.Greater(t, long, short)
	assert.GreaterOrEqual(t, short, 3)
}

func TestCountPunctuationContributes(t *testing.T) {
	c := fallback()
	plain := c.Count("hello world")
	punct := c.Count("hello, world!!!")
	assert.Greater(t, punct, plain)
}

func TestCountNonEmptyIsAtLeastOne(t *testing.T) {
	assert.GreaterOrEqual(t, fallback().Count("x"), 1)
}

func TestDefaultEncodingName(t *testing.T) {
	// Empty encoding resolves to the default; whether the BPE loads
	// depends on the environment, so only the non-nil counter is checked.
	assert.NotNil(t, NewCounter(""))
}
