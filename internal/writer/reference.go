package writer

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const maxReferenceBytes = 20 << 20 // 20MB

// Reference is a user-supplied document the article should draw on.
type Reference struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// LoadReference reads a reference document. PDF files (by extension or
// magic bytes) have their text extracted; anything else must be UTF-8 text.
func LoadReference(name string, r io.Reader) (Reference, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxReferenceBytes+1))
	if err != nil {
		return Reference{}, fmt.Errorf("reading %s: %w", name, err)
	}
	if len(data) > maxReferenceBytes {
		return Reference{}, fmt.Errorf("reference %s exceeds %d bytes", name, maxReferenceBytes)
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-")) {
		text, err := pdfText(data)
		if err != nil {
			return Reference{}, fmt.Errorf("extracting text from %s: %w", name, err)
		}
		return Reference{Name: name, Text: text}, nil
	}
	if !utf8.Valid(data) {
		return Reference{}, fmt.Errorf("reference %s is not UTF-8 text", name)
	}
	return Reference{Name: name, Text: string(data)}, nil
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
