package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// DOCX extracts paragraph text from word/document.xml inside the OOXML
// zip container.
type DOCX struct{}

func NewDOCX() *DOCX { return &DOCX{} }

// Encrypted OOXML files are wrapped in an OLE compound file rather than a
// zip archive; this is its magic header.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

func (d *DOCX) SupportedMIMETypes() []string {
	return []string{
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}
}

func (d *DOCX) Extract(_ context.Context, data []byte) (string, error) {
	if bytes.HasPrefix(data, oleMagic) {
		return "", &types.ExtractionError{Cause: types.CauseEncrypted}
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", &types.ExtractionError{Cause: types.CauseCorrupt, Err: err}
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return "", &types.ExtractionError{Cause: types.CauseCorrupt, Err: err}
		}

		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", &types.ExtractionError{Cause: types.CauseCorrupt, Err: err}
		}

		return parseDocumentXML(content)
	}

	return "", &types.ExtractionError{Cause: types.CauseUnsupported}
}

// documentXML mirrors the parts of word/document.xml we care about:
// paragraphs containing runs containing text nodes.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Texts []string `xml:"t"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", &types.ExtractionError{Cause: types.CauseCorrupt, Err: err}
	}

	var sb strings.Builder
	for _, p := range doc.Body.Paragraphs {
		var line strings.Builder
		for _, r := range p.Runs {
			for _, t := range r.Texts {
				line.WriteString(t)
			}
		}
		if line.Len() > 0 {
			sb.WriteString(line.String())
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n"), nil
}
