package report

import (
	"io"
	"strings"

	"github.com/tealeg/xlsx/v3"

	"prism/internal/domain"
)

// renderXLSX writes an Articles sheet and an IOCs sheet keyed by URL.
func renderXLSX(w io.Writer, r *domain.Report) error {
	file := xlsx.NewFile()

	articles, err := file.AddSheet("Articles")
	if err != nil {
		return err
	}
	addHeader(articles, "Published", "Scraped", "Source", "Title", "URL", "Tags", "IOCs", "Summary")

	for _, a := range r.Articles {
		row := articles.AddRow()

		cell := row.AddCell()
		if a.PublishedAt != nil {
			cell.SetDate(a.PublishedAt.UTC())
		}
		row.AddCell().SetDate(a.ScrapedAt.UTC())
		row.AddCell().SetString(a.Source)
		row.AddCell().SetString(a.Title)
		row.AddCell().SetString(a.URL)
		row.AddCell().SetString(strings.Join(a.Tags, ", "))
		row.AddCell().SetInt(len(a.IOCs))
		summary := ""
		if a.Summary != nil {
			summary = *a.Summary
		}
		row.AddCell().SetString(summary)
	}

	iocs, err := file.AddSheet("IOCs")
	if err != nil {
		return err
	}
	addHeader(iocs, "Type", "Value", "Context", "Source", "Article URL")

	for _, a := range r.Articles {
		for _, v := range iocRows(a.IOCs) {
			row := iocs.AddRow()
			for _, s := range append(v, a.Source, a.URL) {
				row.AddCell().SetString(s)
			}
		}
	}

	return file.Write(w)
}

func addHeader(sheet *xlsx.Sheet, headers ...string) {
	row := sheet.AddRow()
	for _, h := range headers {
		cell := row.AddCell()
		cell.Value = h
	}
}
