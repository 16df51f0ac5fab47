// Package model defines the document records shared by storage, editor and transport.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title given to freshly created documents.
const DefaultTitle = "Untitled"

// PreviewLength is the number of characters of content kept in a DocumentSummary.
const PreviewLength = 100

type DocumentID string

func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

var ErrInvalidDocumentID = errors.New("invalid document id")

// ParseDocumentID accepts only UUIDs and returns them in canonical form, so a parsed id is
// always safe to use as a file or object name.
func ParseDocumentID(s string) (DocumentID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w %q", ErrInvalidDocumentID, s)
	}
	return DocumentID(u.String()), nil
}

type Document struct {
	ID DocumentID `json:"id"`

	Title   string `json:"title"`
	Content string `json:"content"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Optional link to the external file this document was imported from.
	SourcePath string `json:"sourcePath,omitempty"`
}

// NewDocument builds a blank document stamped at now.
func NewDocument(now time.Time) *Document {
	return &Document{
		ID:        NewDocumentID(),
		Title:     DefaultTitle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayTitle returns the title, falling back to the placeholder when blank.
func (d *Document) DisplayTitle() string {
	if strings.TrimSpace(d.Title) == "" {
		return DefaultTitle
	}
	return d.Title
}

// IsEmpty reports whether the title is blank or the placeholder and the content is blank.
func (d *Document) IsEmpty() bool {
	return IsPlaceholderTitle(d.Title) && strings.TrimSpace(d.Content) == ""
}

func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:        d.ID,
		Title:     d.DisplayTitle(),
		UpdatedAt: d.UpdatedAt,
		Preview:   Preview(d.Content, PreviewLength),
	}
}

// NormalizeTitle stores a blank title as the placeholder.
func NormalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return DefaultTitle
	}
	return title
}

// IsPlaceholderTitle reports whether title carries no user-chosen name.
func IsPlaceholderTitle(title string) bool {
	t := strings.TrimSpace(title)
	return t == "" || t == DefaultTitle
}

// Preview truncates content to at most n runes.
func Preview(content string, n int) string {
	if utf8.RuneCountInString(content) <= n {
		return content
	}
	r := []rune(content)
	return string(r[:n])
}

type DocumentSummary struct {
	ID        DocumentID `json:"id"`
	Title     string     `json:"title"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Preview   string     `json:"preview"`
	Edited    string     `json:"edited,omitempty"`
}

// Humanize fills Edited with the time since the last update relative to now.
func (s *DocumentSummary) Humanize(now time.Time) {
	if s.UpdatedAt.IsZero() {
		s.Edited = ""
		return
	}
	s.Edited = humanize.RelTime(s.UpdatedAt, now, "ago", "from now")
}
