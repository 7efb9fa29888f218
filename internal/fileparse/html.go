package fileparse

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"resumelens/internal/types"
)

// blockElements end a line in the extracted text
const blockElements = "p, div, li, h1, h2, h3, h4, h5, h6, tr, br, section, article, header, footer"

func extractHTML(data []byte, meta *types.FileMetadata) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", err
	}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, head").Remove()
	doc.Find(blockElements).Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Text(), nil
	}
	return body.Text(), nil
}
