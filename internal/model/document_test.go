package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestNewDocument(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	doc := NewDocument(now)

	if doc.ID == "" {
		t.Error("Expected a generated ID")
	}
	if doc.Title != DefaultTitle {
		t.Errorf("Expected title %q, got %q", DefaultTitle, doc.Title)
	}
	if doc.Content != "" {
		t.Errorf("Expected blank content, got %q", doc.Content)
	}
	if !doc.CreatedAt.Equal(now) || !doc.UpdatedAt.Equal(now) {
		t.Errorf("Expected timestamps %v, got %v / %v", now, doc.CreatedAt, doc.UpdatedAt)
	}

	other := NewDocument(now)
	if other.ID == doc.ID {
		t.Error("Expected distinct IDs for distinct documents")
	}
}

func TestDocumentIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		title   string
		content string
		want    bool
	}{
		{"Placeholder and blank", DefaultTitle, "", true},
		{"Blank title and whitespace", "  ", " \n\t", true},
		{"Custom title", "Groceries", "", false},
		{"Has content", DefaultTitle, "milk", false},
		{"Placeholder padded", "  Untitled ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &Document{Title: tt.title, Content: tt.content}
			if got := doc.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDocumentSummary(t *testing.T) {
	t.Run("Blank title falls back to placeholder", func(t *testing.T) {
		doc := &Document{ID: "a", Title: " ", Content: "body"}
		s := doc.Summary()
		if s.Title != DefaultTitle {
			t.Errorf("Expected %q, got %q", DefaultTitle, s.Title)
		}
		if s.Preview != "body" {
			t.Errorf("Expected preview 'body', got %q", s.Preview)
		}
	})

	t.Run("Preview is truncated by runes", func(t *testing.T) {
		doc := &Document{ID: "b", Title: "Long", Content: strings.Repeat("é", 150)}
		s := doc.Summary()
		if got := len([]rune(s.Preview)); got != PreviewLength {
			t.Errorf("Expected %d runes, got %d", PreviewLength, got)
		}
	})

	t.Run("Humanize", func(t *testing.T) {
		now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
		s := DocumentSummary{UpdatedAt: now.Add(-3 * time.Minute)}
		s.Humanize(now)
		if s.Edited != "3 minutes ago" {
			t.Errorf("Expected '3 minutes ago', got %q", s.Edited)
		}

		var zero DocumentSummary
		zero.Humanize(now)
		if zero.Edited != "" {
			t.Errorf("Expected empty Edited for zero time, got %q", zero.Edited)
		}
	})
}

func TestParseDocumentID(t *testing.T) {
	const canonical = "3f2b8c4e-1d9a-4e6b-9c1f-2a7d5e8b0c13"

	tests := []struct {
		name    string
		in      string
		want    DocumentID
		wantErr bool
	}{
		{"Canonical", canonical, canonical, false},
		{"Upper case", strings.ToUpper(canonical), canonical, false},
		{"Braced", "{" + canonical + "}", canonical, false},
		{"Empty", "", "", true},
		{"Parent directory", "../victim", "", true},
		{"Nested path", canonical + "/../x", "", true},
		{"Plain word", "untitled", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDocumentID(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDocumentID) {
					t.Errorf("ParseDocumentID(%q) error = %v, want ErrInvalidDocumentID", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseDocumentID(%q) = %q, %v, want %q", tt.in, got, err, tt.want)
			}
		})
	}

	if _, err := ParseDocumentID(string(NewDocumentID())); err != nil {
		t.Errorf("generated id rejected: %v", err)
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := map[string]string{
		"":          DefaultTitle,
		"   ":       DefaultTitle,
		"Groceries": "Groceries",
		" Spaced ":  " Spaced ",
	}
	for in, want := range tests {
		if got := NormalizeTitle(in); got != want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", in, got, want)
		}
	}
}
