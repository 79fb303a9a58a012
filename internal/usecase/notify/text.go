package notify

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"daily-briefing/internal/domain/entity"
)

// blockElements end a line when rendered as text.
const blockElements = "p, div, h1, h2, h3, h4, h5, h6, li, tr"

// plainText returns the text body of content, deriving it from HTML when the
// renderer did not supply one.
func plainText(content entity.Content) (string, error) {
	if strings.TrimSpace(content.Text) != "" {
		return content.Text, nil
	}
	if strings.TrimSpace(content.HTML) == "" {
		return "", nil
	}
	return htmlToText(content.HTML)
}

// htmlToText flattens HTML into readable plain text: one line per block
// element, list items bulleted, runs of blank lines collapsed.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	doc.Find("head, script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").PrependHtml("• ")
	doc.Find(blockElements).AppendHtml("\n")

	var out []string
	blank := false
	for _, line := range strings.Split(doc.Text(), "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 && !blank {
				out = append(out, "")
				blank = true
			}
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n")), nil
}
