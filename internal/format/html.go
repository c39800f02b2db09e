package format

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

var skipElements = map[string]bool{
	"head":     true,
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
}

var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "footer": true, "form": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true, "ol": true,
	"p": true, "pre": true, "section": true, "table": true, "tr": true, "ul": true,
}

// HTMLText flattens an HTML document into plain text lines. Block elements
// and table rows start new lines; cells of a row are joined with " | ".
func HTMLText(raw []byte) string {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return strings.TrimSpace(string(raw))
	}

	var buf strings.Builder
	writeText(&buf, doc)

	var lines []string
	for _, line := range strings.Split(buf.String(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		line = strings.Trim(line, "| ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// IsHTML reports whether body looks like an HTML document.
func IsHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '<' {
		return false
	}
	prefix := strings.ToLower(string(trimmed[:min(len(trimmed), 64)]))
	return strings.HasPrefix(prefix, "<!doctype html") || strings.HasPrefix(prefix, "<html") ||
		strings.Contains(prefix, "<body") || strings.Contains(prefix, "<pre")
}

func writeText(buf *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if skipElements[n.Data] {
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		buf.WriteByte('\n')
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(buf, c)
		if isCell(c) && nextCell(c) != nil {
			buf.WriteString(" | ")
		}
	}

	if block {
		buf.WriteByte('\n')
	}
}

func isCell(n *html.Node) bool {
	return n.Type == html.ElementNode && (n.Data == "td" || n.Data == "th")
}

func nextCell(n *html.Node) *html.Node {
	for c := n.NextSibling; c != nil; c = c.NextSibling {
		if isCell(c) {
			return c
		}
	}
	return nil
}
