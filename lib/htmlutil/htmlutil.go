// Package htmlutil holds small helpers for text extraction from parsed
// html.
package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

// CleanText collapses inner whitespace, trims the edges and strips
// non-printable runes.
func CleanText(s string) string {
	var printable strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) {
			printable.WriteRune(c)
		}
	}
	out := strings.Trim(printable.String(), " \t\n")
	return innerWhitespace.ReplaceAllString(out, " ")
}
