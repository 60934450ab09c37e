// Package extract turns uploaded resume bytes into plain text.
package extract

import (
	"bytes"
	"encoding/xml"
	stderrors "errors"
	"fmt"
	"io"
	"strings"

	"resumecritic/internal/errors"
	"resumecritic/internal/utils"

	"github.com/nguyenthenguyen/docx"
)

// ErrDocxParse is returned when a .docx upload cannot be read.
var ErrDocxParse = stderrors.New("unable to parse docx document")

// Format names the decoding path chosen for an upload
type Format string

const (
	FormatDocx Format = "docx"
	FormatText Format = "text"
)

// DetectFormat picks the decoding path from the file name alone
func DetectFormat(fileName string) Format {
	if utils.IsDocxFile(fileName) {
		return FormatDocx
	}
	return FormatText
}

// FromUpload returns the text of an uploaded file. Names ending in .docx are
// read as Word documents; everything else is decoded as UTF-8 as-is.
func FromUpload(fileName string, data []byte) (string, error) {
	if DetectFormat(fileName) == FormatDocx {
		text, err := DocxText(data)
		if err != nil {
			return "", errors.NewValidationError(errors.ErrCodeDocxParseFailed, "failed to read docx upload", fmt.Errorf("%w: %v", ErrDocxParse, err)).
				WithContext("file_name", fileName)
		}
		return text, nil
	}
	return PlainText(data), nil
}

// PlainText decodes bytes as UTF-8. Invalid sequences become U+FFFD.
func PlainText(data []byte) string {
	return strings.ToValidUTF8(string(data), "\uFFFD")
}

// LooksLikePDF reports whether data starts with the PDF magic number.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// DocxText reads a .docx archive and returns its body text, one paragraph per block.
func DocxText(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	defer func() { _ = doc.Close() }()

	return documentXMLText(doc.Editable().GetContent())
}

// documentXMLText walks WordprocessingML and keeps only run text.
// Paragraphs are separated by a blank line; breaks and tabs are kept.
func documentXMLText(raw string) (string, error) {
	decoder := xml.NewDecoder(strings.NewReader(raw))
	var buf strings.Builder
	inRun, inText := false, false

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("malformed document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				// w:tab also appears in paragraph tab stops, which carry no text
				if inRun {
					buf.WriteString("\t")
				}
			case "br", "cr":
				if inRun {
					buf.WriteString("\n")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				buf.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				buf.Write(t)
			}
		}
	}

	return strings.TrimSpace(buf.String()), nil
}
