package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"resumecritic/internal/errors"
	"resumecritic/internal/extract"
	"resumecritic/internal/types"
	"resumecritic/internal/utils"
)

// FileProcessor handles common file operations
type FileProcessor struct {
	logger  *errors.Logger
	maxSize int64
}

// NewFileProcessor creates a file processor. A maxSize of zero disables the size check.
func NewFileProcessor(logger *errors.Logger, maxSize int64) *FileProcessor {
	return &FileProcessor{logger: logger, maxSize: maxSize}
}

// ReadFile reads raw bytes from a file with proper error handling
func (fp *FileProcessor) ReadFile(filename string) ([]byte, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewIOError(errors.ErrCodeFileNotFound,
				fmt.Sprintf("File not found: %s", filename), err)
		}
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Cannot read file: %s", filename), err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			if fp.logger != nil {
				fp.logger.Warn("Failed to close file", "filename", filename, "error", err)
			}
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotReadable,
			fmt.Sprintf("Failed to read file content: %s", filename), err)
	}

	return content, nil
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

// ReadResumes validates and loads each file as an upload would arrive over HTTP
func (fp *FileProcessor) ReadResumes(filenames ...string) ([]*types.UploadedFile, error) {
	uploads := make([]*types.UploadedFile, len(filenames))

	for i, filename := range filenames {
		if err := utils.ValidateInputFile(filename, fp.maxSize); err != nil {
			return nil, errors.NewValidationError("INVALID_INPUT_FILE",
				fmt.Sprintf("Invalid file %s", filename), err)
		}

		content, err := fp.ReadFile(filename)
		if err != nil {
			return nil, err
		}

		if extract.DetectFormat(filename) == extract.FormatText && extract.LooksLikePDF(content) {
			if fp.logger != nil {
				fp.logger.Warn("PDF file will be decoded as plain text", "filename", filename)
			}
		}

		uploads[i] = &types.UploadedFile{FileName: filepath.Base(filename), Content: content}
	}

	return uploads, nil
}

// ExtractText returns the resume text of an upload
func (fp *FileProcessor) ExtractText(upload *types.UploadedFile) (string, error) {
	text, err := extract.FromUpload(upload.FileName, upload.Content)
	if err != nil {
		if fp.logger != nil {
			fp.logger.LogError(err, "DOCX parse failed", "filename", upload.FileName)
		}
		return "", err
	}
	return text, nil
}

// ValidateOutputFile validates output file path
func (fp *FileProcessor) ValidateOutputFile(filename string) error {
	if filename == "" {
		return nil // stdout is valid
	}

	if err := utils.ValidateOutputFile(filename); err != nil {
		return errors.NewValidationError("INVALID_OUTPUT_FILE",
			fmt.Sprintf("Invalid output file: %s", filename), err)
	}

	return nil
}
