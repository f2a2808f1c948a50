package tokens

import (
	"fmt"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// TiktokenCounter counts tokens with a tiktoken BPE encoding. Special tokens
// in the text are encoded as ordinary text, so chat-template delimiters are
// counted by their byte pieces.
type TiktokenCounter struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTiktokenCounter loads the named encoding.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokens: get encoding %s: %w", encoding, err)
	}
	return &TiktokenCounter{enc: enc, encoding: encoding}, nil
}

// Count implements Counter.
func (t *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(t.enc.Encode(text, nil, nil))
}

// Encoding returns the encoding name.
func (t *TiktokenCounter) Encoding() string {
	return t.encoding
}

var _ Counter = (*TiktokenCounter)(nil)
