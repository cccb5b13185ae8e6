// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// toMarkdown renders the container as Markdown. Relative links are resolved
// against pageURL.
func toMarkdown(container *goquery.Selection, pageURL string) (string, error) {
	h, err := goquery.OuterHtml(container)
	if err != nil {
		return "", err
	}
	return mdConverter.ConvertString(h, converter.WithDomain(pageURL))
}
