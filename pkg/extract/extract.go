package extract

import (
	"context"
	"mime"
	"strings"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// Registry dispatches extraction to the extractor registered for a
// document's MIME type.
type Registry struct {
	byMIME map[string]types.Extractor
}

func NewRegistry(extractors ...types.Extractor) *Registry {
	r := &Registry{byMIME: make(map[string]types.Extractor)}
	for _, ex := range extractors {
		for _, mt := range ex.SupportedMIMETypes() {
			r.byMIME[mt] = ex
		}
	}
	return r
}

// Default returns a registry covering plain text, DOCX and PDF.
func Default() *Registry {
	return NewRegistry(NewPlaintext(), NewDOCX(), NewPDF())
}

// Supports reports whether mimeType can be extracted. Parameters such as
// charset are ignored.
func (r *Registry) Supports(mimeType string) bool {
	_, ok := r.byMIME[normalizeMIME(mimeType)]
	return ok
}

// Extract converts raw bytes to plain text using the extractor registered
// for mimeType. Unknown types fail with ErrUnsupportedFormat.
func (r *Registry) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	ex, ok := r.byMIME[normalizeMIME(mimeType)]
	if !ok {
		return "", types.ErrUnsupportedFormat
	}
	return ex.Extract(ctx, data)
}

func normalizeMIME(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mimeType))
	}
	return mt
}
