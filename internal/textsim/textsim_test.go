package textsim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDice(t *testing.T) {
	assert.Equal(t, 1.0, Dice("same text", "same text"))
	assert.Equal(t, 0.0, Dice("abcd", "wxyz"))
	assert.Equal(t, 0.0, Dice("", "anything"))

	// Near-duplicate queries land above the 0.8 filter threshold.
	a := strings.ToLower("What is RAG system?")
	b := strings.ToLower("What is RAG systems?")
	assert.Greater(t, Dice(a, b), 0.8)

	// Genuinely different phrasings stay below it.
	c := strings.ToLower("how does RAG work")
	assert.Less(t, Dice(a, c), 0.8)
}

func TestTokenJaccard(t *testing.T) {
	assert.Equal(t, 1.0, TokenJaccard("the quick fox", "The Quick Fox"))
	assert.Equal(t, 0.0, TokenJaccard("alpha beta", "gamma delta"))
	assert.Equal(t, 0.0, TokenJaccard("", "words here"))
	assert.InDelta(t, 1.0/3.0, TokenJaccard("a b", "b c"), 1e-9)

	// Punctuation does not break token identity.
	assert.Equal(t, 1.0, TokenJaccard("hello, world!", "hello world"))
}

func TestNormalizeSpace(t *testing.T) {
	assert.Equal(t, "what is rag", NormalizeSpace("  what   is\trag \n"))
	assert.Equal(t, "", NormalizeSpace("   "))
}
