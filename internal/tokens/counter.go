package tokens

import (
	"sync"
	"unicode"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter estimates token counts for budget accounting. It prefers a real
// BPE encoding; when the encoding cannot be loaded (offline environments) it
// falls back to a word/punctuation heuristic so counting never fails.
type Counter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewCounter loads the named encoding, or returns a heuristic-only counter
// if loading fails.
func NewCounter(encoding string) *Counter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// estimate approximates tokenization by counting word and punctuation runs.
// Real tokenizers are more sophisticated; this keeps budgets meaningful when
// no encoding is available.
func estimate(text string) int {
	count := 0
	inToken := false
	for _, char := range text {
		isWordChar := unicode.IsLetter(char) || unicode.IsNumber(char) || char == '\''
		if isWordChar && !inToken {
			inToken = true
			count++
		} else if !isWordChar && inToken {
			inToken = false
		}
	}
	count += punctuationRuns(text)
	if count < 1 {
		count = 1
	}
	return count
}

func punctuationRuns(text string) int {
	count := 0
	inRun := false
	for _, char := range text {
		isPunct := unicode.IsPunct(char) && char != '\''
		if isPunct && !inRun {
			inRun = true
			count++
		} else if !isPunct && inRun {
			inRun = false
		}
	}
	return count
}
