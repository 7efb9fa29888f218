package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"resumelens/internal/errors"
	"resumelens/internal/fileparse"
	"resumelens/internal/types"
	"resumelens/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	parser *fileparse.Parser
	logger *errors.Logger
}

// NewFileProcessor creates a new file processor instance. Documents larger
// than maxSize are rejected.
func NewFileProcessor(maxSize int64, logger *errors.Logger) *FileProcessor {
	return &FileProcessor{parser: fileparse.New(maxSize), logger: logger}
}

// ReadFile reads a plain text file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) (string, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return string(content), nil
}

// ParseDocument extracts the text of a document of any supported type
func (fp *FileProcessor) ParseDocument(filename string) (*types.ParsedFile, error) {
	parsed, err := fp.parser.ParseFile(filename)
	if err != nil {
		return nil, err
	}

	fp.logger.Debug("Document parsed",
		"filename", filename,
		"type", parsed.Type,
		"size", utils.FormatFileSize(parsed.Metadata.Size),
		"chars", len(parsed.Content))
	return parsed, nil
}

// ValidateAndParseFiles validates and parses multiple input documents
func (fp *FileProcessor) ValidateAndParseFiles(filenames ...string) ([]*types.ParsedFile, error) {
	parsed := make([]*types.ParsedFile, len(filenames))
	for i, filename := range filenames {
		p, err := fp.ParseDocument(filename)
		if err != nil {
			return nil, err
		}
		parsed[i] = p
	}
	return parsed, nil
}

// WriteFile writes content to a file with directory creation
func (fp *FileProcessor) WriteFile(filename, content string) error {
	dir := filepath.Dir(filename)
	if dir != "." {
		err := os.MkdirAll(dir, 0750)
		if err != nil {
			return errors.NewIOError("DIRECTORY_CREATE_FAILED",
				fmt.Sprintf("Cannot create directory: %s", dir), err)
		}
	}

	err := os.WriteFile(filename, []byte(content), 0600)
	if err != nil {
		return errors.NewIOError("FILE_WRITE_FAILED",
			fmt.Sprintf("Cannot write file: %s", filename), err)
	}

	return nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.EnsureOutputDir(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
