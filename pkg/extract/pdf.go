package extract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// PDF extracts plain text from PDF documents.
type PDF struct{}

func NewPDF() *PDF { return &PDF{} }

func (p *PDF) SupportedMIMETypes() []string {
	return []string{"application/pdf"}
}

func (p *PDF) Extract(_ context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		cause := types.CauseCorrupt
		if strings.Contains(strings.ToLower(err.Error()), "encrypted") {
			cause = types.CauseEncrypted
		}
		return "", &types.ExtractionError{Cause: cause, Err: err}
	}

	text, err := reader.GetPlainText()
	if err != nil {
		return "", &types.ExtractionError{Cause: types.CauseUnsupported, Err: err}
	}

	content, err := io.ReadAll(text)
	if err != nil {
		return "", &types.ExtractionError{Cause: types.CauseCorrupt, Err: err}
	}

	return sanitizeUTF8(string(content)), nil
}
