package sources

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/internal/reconcile"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Class names used by the wall's exported page
const (
	classMessage = "birthday-message"
	classAuthor  = "message-author"
	classContent = "message-content"
	classTime    = "message-time"
)

// displayTimeLayouts are the locale formats the page rendered times in. The
// wall itself renders toLocaleDateString(), a date without a time.
var displayTimeLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"January 2, 2006 at 3:04 PM",
	"Jan 2, 2006, 3:04 PM",
}

// ParseHTML extracts the messages rendered on an exported wall page. Blocks
// without an author or content are skipped.
func ParseHTML(r io.Reader) ([]models.Message, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	msgs := []models.Message{}
	for _, block := range findAll(doc, func(n *html.Node) bool { return hasClass(n, classMessage) }) {
		m, ok := parseBlock(block)
		if ok {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func parseBlock(block *html.Node) (models.Message, bool) {
	author := findFirst(block, func(n *html.Node) bool { return hasClass(n, classAuthor) })
	content := findFirst(block, func(n *html.Node) bool { return hasClass(n, classContent) })
	if author == nil || content == nil {
		return models.Message{}, false
	}

	m := models.Message{
		Name: authorName(textContent(author)),
		Body: strings.TrimSpace(textContent(content)),
	}

	if img := findFirst(block, func(n *html.Node) bool { return n.DataAtom == atom.Img }); img != nil {
		if src := attr(img, "src"); src != "" {
			if strings.HasPrefix(src, "data:") {
				m.Image = src
			} else {
				m.ImageURL = src
			}
			m.HasImage = true
		}
	}

	if t := findFirst(block, func(n *html.Node) bool { return hasClass(n, classTime) }); t != nil {
		m.Timestamp = displayTime(strings.TrimSpace(textContent(t)))
	}
	return m, true
}

// authorName strips the "From: " label and the trailing heart
func authorName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "From:")
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "\U0001F495")
	return strings.TrimSpace(s)
}

// displayTime converts a rendered time to the stored format. Values in an
// unknown format are kept verbatim for the assembler to report.
func displayTime(s string) string {
	if s == "" {
		return ""
	}
	if t, err := models.ParseTimestamp(s); err == nil {
		return models.FormatTimestamp(t)
	}
	for _, layout := range displayTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.FormatTimestamp(t)
		}
	}
	return s
}

// LoadHTMLFile reads an HTML export from disk as a reconciler source
func LoadHTMLFile(path string) (reconcile.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return reconcile.Source{}, err
	}
	defer f.Close()

	msgs, err := ParseHTML(f)
	if err != nil {
		return reconcile.Source{}, fmt.Errorf("%s: %w", path, err)
	}
	return reconcile.Source{Name: path, Messages: msgs}, nil
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if match(c) {
			return c
		}
		if found := findFirst(c, match); found != nil {
			return found
		}
	}
	return nil
}

// textContent concatenates text below n, turning <br> into newlines
func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			sb.WriteString(n.Data)
		case n.Type == html.ElementNode && n.DataAtom == atom.Br:
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}
