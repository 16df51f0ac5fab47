// Package outline derives the heading index of a rendered preview.
package outline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Entry is one heading of the rendered document.
type Entry struct {
	Level    int    `json:"level"`
	Text     string `json:"text"`
	AnchorID string `json:"anchorId"`
}

var headingLevels = map[atom.Atom]int{
	atom.H1: 1, atom.H2: 2, atom.H3: 3, atom.H4: 4, atom.H5: 5, atom.H6: 6,
}

// Build lists every heading of fragment in document order. Headings without an id are given
// one built from their position and a token derived from their text; the returned fragment
// carries those ids and is fragment itself when nothing had to change.
func Build(fragment []byte) ([]Entry, []byte, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(fragment), context)
	if err != nil {
		return nil, fragment, fmt.Errorf("failed to parse rendered html: %w", err)
	}

	var headings []*html.Node
	taken := make(map[string]bool)
	for _, n := range nodes {
		walk(n, func(n *html.Node) {
			if id := attr(n, "id"); id != "" {
				taken[id] = true
			}
			if n.Type == html.ElementNode {
				if _, ok := headingLevels[n.DataAtom]; ok {
					headings = append(headings, n)
				}
			}
		})
	}

	entries := make([]Entry, 0, len(headings))
	changed := false
	for i, h := range headings {
		text := textContent(h)
		id := attr(h, "id")
		if id == "" {
			id = uniqueID(AnchorID(i, text), taken)
			taken[id] = true
			setAttr(h, "id", id)
			changed = true
		}
		entries = append(entries, Entry{Level: headingLevels[h.DataAtom], Text: text, AnchorID: id})
	}

	if !changed {
		return entries, fragment, nil
	}

	var buf bytes.Buffer
	for _, n := range nodes {
		if err := html.Render(&buf, n); err != nil {
			return nil, fragment, fmt.Errorf("failed to render html: %w", err)
		}
	}
	return entries, buf.Bytes(), nil
}

// AnchorID composes the generated id of the heading at index with the given text.
func AnchorID(index int, text string) string {
	sum := sha256.Sum256([]byte(strconv.Itoa(index) + "\x00" + text))
	return "heading-" + strconv.Itoa(index) + "-" + hex.EncodeToString(sum[:4])
}

func uniqueID(base string, taken map[string]bool) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := base + "-" + strconv.Itoa(n)
		if !taken[candidate] {
			return candidate
		}
	}
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
