package markup

import (
	"github.com/pkg/errors"
	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the tokenizer used by the embedding models downstream.
const DefaultEncoding = "cl100k_base"

// TokenCounter measures text for the downstream chunker.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts BPE tokens.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding. An empty name selects
// DefaultEncoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get encoding %s", encoding)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// WordCounter approximates tokens by whitespace-separated words. It needs no
// encoding files.
type WordCounter struct{}

func (WordCounter) Count(text string) int {
	n, inWord := 0, false
	for _, r := range text {
		space := r == ' ' || r == '\n' || r == '\t' || r == '\r'
		if !space && !inWord {
			n++
		}
		inWord = !space
	}
	return n
}
