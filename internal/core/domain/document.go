package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadBytes is the largest document accepted by the upload boundary.
const MaxUploadBytes = 10 << 20

type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentStatus is the lifecycle state of a document.
// Legal moves: uploaded -> processing -> completed | failed.
type DocumentStatus uint8

const (
	StatusUploaded DocumentStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

var statusNames = [...]string{
	StatusUploaded:   "uploaded",
	StatusProcessing: "processing",
	StatusCompleted:  "completed",
	StatusFailed:     "failed",
}

func (s DocumentStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("DocumentStatus(%d)", uint8(s))
}

func (s DocumentStatus) Valid() bool {
	return int(s) < len(statusNames)
}

func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	switch s {
	case StatusUploaded:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

func (s DocumentStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: unknown document status %d", ErrInvalidInput, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *DocumentStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDocumentStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseDocumentStatus(raw string) (DocumentStatus, error) {
	for i, name := range statusNames {
		if name == raw {
			return DocumentStatus(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown document status %q", ErrInvalidInput, raw)
}

// FileType is one of the accepted upload formats.
type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeText     FileType = "txt"
	FileTypeMarkdown FileType = "md"
)

func ParseFileType(raw string) (FileType, error) {
	switch ft := FileType(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "."))); ft {
	case FileTypePDF, FileTypeText, FileTypeMarkdown:
		return ft, nil
	default:
		return "", fmt.Errorf("%w: unsupported file type %q, allowed: pdf, txt, md", ErrInvalidInput, raw)
	}
}

func FileTypeFromName(filename string) (FileType, error) {
	return ParseFileType(filepath.Ext(filename))
}

type Document struct {
	ID         int64          `json:"id"`
	ProjectID  int64          `json:"project_id"`
	Name       string         `json:"name"`
	StorageKey string         `json:"-"`
	StorageURL string         `json:"file_url"`
	FileType   FileType       `json:"file_type"`
	FileSize   int64          `json:"file_size"`
	Status     DocumentStatus `json:"status"`
	Error      string         `json:"error,omitempty"`
	ChunkCount int            `json:"chunk_count"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DocumentChunk is an immutable slice of a document's text with its vector.
type DocumentChunk struct {
	ID         int64     `json:"id"`
	DocumentID int64     `json:"document_id"`
	Index      int       `json:"chunk_index"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// IngestionJob carries everything the background pipeline needs for one upload.
type IngestionJob struct {
	DocumentID int64
	FileType   FileType
	Data       []byte
}
