// Package util provides utility functions for content hashing, front matter parsing and paths.
package util

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gomarkdown/markdown"
	"gopkg.in/yaml.v3"

	"github.com/mmarkdown/mmark/v2/mast"
)

type ExtendedTitleData struct {
	*mast.TitleData
	Consumed int
}

func ContentHash(content []byte) string {
	hash := sha256.Sum256(content)
	return hex.EncodeToString(hash[:])
}

func ContentHashString(content string) string {
	return ContentHash([]byte(content))
}

// GetFrontMatter decodes a leading %%%-delimited TOML block. Consumed is the offset of the
// first byte after the block in the normalised input.
func GetFrontMatter(md []byte) (*ExtendedTitleData, error) {
	md = markdown.NormalizeNewlines(md)
	trimmed := bytes.TrimLeft(md, "\n \t\r")
	offset := len(md) - len(trimmed)
	md = trimmed

	delimiter := []byte("%%%")

	// Check if md is long enough to contain the delimiter
	if len(md) < 2*len(delimiter) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	first := bytes.Index(md[:len(delimiter)+1], delimiter)
	if first == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	second := bytes.Index(md[first+len(delimiter):], delimiter)
	if second == -1 {
		return nil, fmt.Errorf("invalid front matter format")
	}

	end := second + 2*len(delimiter) + 1
	if end > len(md) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	frontMatter := md[len(delimiter) : end-len(delimiter)-1]
	info := &ExtendedTitleData{
		TitleData: &mast.TitleData{},
	}

	if _, err := toml.Decode(string(frontMatter), info); err != nil {
		return nil, fmt.Errorf("failed to decode front matter: %w", err)
	}

	if info.Language == "" {
		info.Language = "en"
	}
	info.Consumed = offset + end

	return info, nil
}

type yamlFrontMatter struct {
	Title string    `yaml:"title"`
	Date  time.Time `yaml:"date"`
}

// GetYAMLFrontMatter decodes a leading ----delimited YAML block, closed by "---" or "...".
// Consumed is the offset of the first byte after the closing line in the normalised input.
func GetYAMLFrontMatter(md []byte) (*ExtendedTitleData, error) {
	md = markdown.NormalizeNewlines(md)
	if !bytes.HasPrefix(md, []byte("---\n")) {
		return nil, fmt.Errorf("invalid front matter format")
	}

	start := len("---\n")
	for pos := start; pos <= len(md); {
		nl := bytes.IndexByte(md[pos:], '\n')
		end := len(md)
		if nl != -1 {
			end = pos + nl
		}

		line := strings.TrimRight(string(md[pos:end]), " \t")
		if line == "---" || line == "..." {
			var fm yamlFrontMatter
			if err := yaml.Unmarshal(md[start:pos], &fm); err != nil {
				return nil, fmt.Errorf("failed to decode front matter: %w", err)
			}
			consumed := end
			if nl != -1 {
				consumed++
			}
			return &ExtendedTitleData{
				TitleData: &mast.TitleData{Title: fm.Title, Date: fm.Date, Language: "en"},
				Consumed:  consumed,
			}, nil
		}

		if nl == -1 {
			break
		}
		pos = end + 1
	}
	return nil, fmt.Errorf("invalid front matter format")
}

// StripFrontMatter splits md into its front matter (nil when absent) and the remaining body.
// TOML (%%%) and YAML (---) blocks are recognised.
func StripFrontMatter(md []byte) (*ExtendedTitleData, []byte) {
	info, err := GetFrontMatter(md)
	if err != nil {
		info, err = GetYAMLFrontMatter(md)
	}
	if err != nil {
		return nil, md
	}
	normalized := markdown.NormalizeNewlines(md)
	if info.Consumed >= len(normalized) {
		return info, []byte{}
	}
	return info, bytes.TrimLeft(normalized[info.Consumed:], "\n")
}

// NormalizePath folds an external file path for identity comparisons. Case is folded on every
// platform since imports are matched case-insensitively.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	return strings.ToLower(filepath.Clean(p))
}

// IsBlank reports whether s holds nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
