package openai

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

type tokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts tokens with the cl100k_base encoding. The encoding
// is loaded lazily; if it cannot be loaded the counter estimates len/4.
type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

func newTokenCounter() tokenCounter {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingName)
		if err == nil {
			c.enc = enc
		}
	})
	if c.enc == nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	n := len(text) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
