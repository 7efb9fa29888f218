// Package fileparse extracts plain text from uploaded resumes.
package fileparse

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"resumelens/internal/errors"
	"resumelens/internal/types"
	"resumelens/internal/utils"
)

// Supported file types, as reported in ParsedFile.Type
const (
	TypeText     = "txt"
	TypeMarkdown = "md"
	TypePDF      = "pdf"
	TypeDOCX     = "docx"
	TypeXLSX     = "xlsx"
	TypeHTML     = "html"
)

var extensionTypes = map[string]string{
	".txt":      TypeText,
	".text":     TypeText,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".pdf":      TypePDF,
	".docx":     TypeDOCX,
	".xlsx":     TypeXLSX,
	".html":     TypeHTML,
	".htm":      TypeHTML,
}

// extractor returns the text of a document plus any metadata it knows
type extractor func(data []byte, meta *types.FileMetadata) (string, error)

var extractors = map[string]extractor{
	TypeText:     extractPlain,
	TypeMarkdown: extractPlain,
	TypePDF:      extractPDF,
	TypeDOCX:     extractDOCX,
	TypeXLSX:     extractXLSX,
	TypeHTML:     extractHTML,
}

// Parser extracts text from files up to a size limit.
type Parser struct {
	maxSize int64
}

// New returns a parser rejecting files larger than maxSize bytes. A
// non-positive maxSize disables the limit.
func New(maxSize int64) *Parser {
	return &Parser{maxSize: maxSize}
}

// ParseFile reads and parses a file from disk.
func (p *Parser) ParseFile(path string) (*types.ParsedFile, error) {
	info, err := utils.StatInputFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "invalid input file", err).
			WithContext("file", path)
	}
	if p.maxSize > 0 && info.Size() > p.maxSize {
		return nil, p.tooLarge(filepath.Base(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable, "cannot read file", err).
			WithContext("file", path)
	}
	defer func() { _ = f.Close() }()
	return p.ParseReader(filepath.Base(path), f)
}

func (p *Parser) tooLarge(filename string) error {
	return errors.NewValidationError(errors.ErrCodeFileTooLarge,
		fmt.Sprintf("file exceeds the %s limit", utils.FormatFileSize(p.maxSize)), nil).
		WithContext("filename", filename)
}

// ParseReader reads at most one byte past the limit, so oversized uploads are
// rejected without buffering them whole.
func (p *Parser) ParseReader(filename string, r io.Reader) (*types.ParsedFile, error) {
	if p.maxSize > 0 {
		r = io.LimitReader(r, p.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable, "failed to read upload", err).
			WithContext("filename", filename)
	}
	return p.Parse(filename, data)
}

// Parse detects the type of data and extracts its text.
func (p *Parser) Parse(filename string, data []byte) (*types.ParsedFile, error) {
	size := int64(len(data))
	if p.maxSize > 0 && size > p.maxSize {
		return nil, p.tooLarge(filename)
	}

	fileType := DetectType(filename, data)
	extract, ok := extractors[fileType]
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeUnsupportedFile,
			"unsupported file type; use txt, md, pdf, docx, xlsx or html", nil).
			WithContext("filename", filename)
	}

	meta := types.FileMetadata{Filename: filename, Size: size}
	text, err := extract(data, &meta)
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidFormat,
			fmt.Sprintf("could not read %s file", fileType), err).
			WithContext("filename", filename)
	}

	return &types.ParsedFile{
		Content:  normalizeWhitespace(text),
		Type:     fileType,
		Metadata: meta,
	}, nil
}

// DetectType picks a type by extension, then by sniffing the content.
func DetectType(filename string, data []byte) string {
	if t, ok := extensionTypes[utils.Ext(filename)]; ok {
		return t
	}

	contentType := http.DetectContentType(data)
	switch {
	case strings.HasPrefix(contentType, "application/pdf"):
		return TypePDF
	case strings.HasPrefix(contentType, "text/html"):
		return TypeHTML
	case strings.HasPrefix(contentType, "text/plain"):
		return TypeText
	case strings.HasPrefix(contentType, "application/zip"):
		return sniffOfficeZip(data)
	}
	return ""
}

func extractPlain(data []byte, _ *types.FileMetadata) (string, error) {
	return string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), nil
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v\x{00A0}]+`)
	blankRuns       = regexp.MustCompile(`\n{3,}`)
)

// normalizeWhitespace collapses runs of spaces and keeps at most one blank
// line, so paragraph boundaries survive for splitting
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	return strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
