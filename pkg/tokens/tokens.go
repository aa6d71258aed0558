// Package tokens provides tokenizer-backed token counting for sizing agent
// output against the token breaker's budget. Falls back to the ~4 characters
// per token approximation when no codec is available.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens using a fixed BPE codec.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter. All supported models approximate well with
// the GPT-4 encoding.
func NewCounter() (*Counter, error) {
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// CountTokens returns the number of tokens in the text, approximating with
// chars/4 when the codec fails.
func (c *Counter) CountTokens(text string) int {
	if c.codec == nil {
		return Estimate(text)
	}

	count, err := c.codec.Count(text)
	if err != nil {
		return Estimate(text)
	}

	return count
}

// ValidateLimit reports whether text fits within the token limit.
func (c *Counter) ValidateLimit(text string, limit int) bool {
	return c.CountTokens(text) <= limit
}

// TruncateToLimit truncates text to approximately fit the token limit. The
// cut is proportional by characters, not exact token boundaries.
func (c *Counter) TruncateToLimit(text string, limit int) string {
	currentTokens := c.CountTokens(text)
	if currentTokens <= limit {
		return text
	}

	ratio := float64(limit) / float64(currentTokens)
	charLimit := int(float64(len(text)) * ratio * 0.9) // 0.9 safety margin

	if charLimit >= len(text) {
		return text
	}

	return text[:charLimit] + "..."
}

// Estimate is the character-based approximation: 4 chars per token.
func Estimate(text string) int {
	return len(text) / 4
}
