// Package docparse extracts plain text from the files students attach.
package docparse

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxFileBytes bounds attachments.
const MaxFileBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("docparse: unsupported file type")
	ErrTooLarge        = errors.New("docparse: file too large")
)

// File reads the file at path and extracts its text.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("docparse: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileBytes+1))
	if err != nil {
		return "", fmt.Errorf("docparse: read %s: %w", path, err)
	}
	if len(data) > MaxFileBytes {
		return "", ErrTooLarge
	}
	return Extract(filepath.Base(path), data)
}

// Extract returns the text of a file named name. The extension picks the
// format: .txt and .md are UTF-8 text, .docx is a Word document.
func Extract(name string, data []byte) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".txt", ".md":
		if !utf8.Valid(data) {
			return "", fmt.Errorf("docparse: %s is not valid UTF-8", name)
		}
		return strings.TrimPrefix(string(data), "\ufeff"), nil
	case ".docx":
		return docx(data)
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}

// docx pulls the text runs out of word/document.xml, one line per paragraph.
func docx(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("docparse: open docx: %w", err)
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("docparse: docx has no word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", fmt.Errorf("docparse: open document.xml: %w", err)
	}
	defer rc.Close()

	var (
		out    strings.Builder
		para   strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(io.LimitReader(rc, 8*MaxFileBytes))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("docparse: parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br", "cr":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString(para.String())
				out.WriteByte('\n')
				para.Reset()
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
	out.WriteString(para.String())
	return strings.TrimRight(out.String(), "\n"), nil
}
