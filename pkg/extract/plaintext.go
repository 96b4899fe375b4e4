package extract

import (
	"context"
	"unicode/utf8"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// Plaintext passes text files through unchanged apart from dropping
// invalid UTF-8 sequences.
type Plaintext struct{}

func NewPlaintext() *Plaintext { return &Plaintext{} }

func (p *Plaintext) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/markdown",
		"text/csv",
	}
}

func (p *Plaintext) Extract(_ context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", types.ErrInvalidInput
	}
	return sanitizeUTF8(string(data)), nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
