package report

import (
	"bytes"
	"html/template"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"prism/internal/domain"
)

// Raw HTML in model output is escaped, not passed through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
		html.WithXHTML(),
	),
)

func renderMarkdownHTML(s string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(strings.TrimSpace(s)), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

type htmlIOCGroup struct {
	Type domain.IOCType
	IOCs []domain.IOC
}

type htmlArticle struct {
	domain.ReportArticle
	Published string
	Summary   template.HTML
	Groups    []htmlIOCGroup
}

type htmlCount struct {
	Type  domain.IOCType
	Count int
}

type htmlReport struct {
	*domain.Report
	Generated string
	Overview  template.HTML
	Counts    []htmlCount
	Items     []htmlArticle
}

func renderHTML(w io.Writer, r *domain.Report) error {
	view := htmlReport{
		Report:    r,
		Generated: r.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"),
	}

	if r.Overview != "" {
		overview, err := renderMarkdownHTML(r.Overview)
		if err != nil {
			return err
		}
		view.Overview = overview
	}

	counts := r.IOCCounts()
	for _, t := range typeOrder() {
		if n := counts[t]; n > 0 {
			view.Counts = append(view.Counts, htmlCount{Type: t, Count: n})
		}
	}

	for _, a := range r.Articles {
		item := htmlArticle{ReportArticle: a, Published: publishedLabel(a.Article)}
		if a.Summary != nil {
			summary, err := renderMarkdownHTML(*a.Summary)
			if err != nil {
				return err
			}
			item.Summary = summary
		}
		grouped := domain.GroupIOCs(a.IOCs)
		for _, t := range typeOrder() {
			if len(grouped[t]) > 0 {
				item.Groups = append(item.Groups, htmlIOCGroup{Type: t, IOCs: grouped[t]})
			}
		}
		view.Items = append(view.Items, item)
	}

	return htmlTemplate.Execute(w, view)
}

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>PRISM Threat Intelligence Report</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 960px; margin: 2rem auto; color: #222; }
h1 { border-bottom: 2px solid #444; }
article { border-top: 1px solid #ddd; padding-top: 1rem; }
.meta { color: #666; font-size: 0.9rem; }
.tag { background: #eef; border-radius: 3px; padding: 0 0.4rem; margin-right: 0.3rem; }
table { border-collapse: collapse; margin: 0.5rem 0; }
th, td { border: 1px solid #ccc; padding: 0.2rem 0.5rem; text-align: left; vertical-align: top; }
td.value { font-family: monospace; word-break: break-all; }
</style>
</head>
<body>
<h1>PRISM Threat Intelligence Report</h1>
<p class="meta">Generated {{.Generated}}, covering the last {{.WindowDays}} days. {{len .Articles}} articles.</p>
{{if .Overview}}
<section id="executive-summary">
<h2>Executive Summary</h2>
{{.Overview}}
</section>
{{end}}
<section id="ioc-overview">
<h2>IOC Overview</h2>
{{if .Counts}}
<table>
<tr><th>Type</th><th>Count</th></tr>
{{range .Counts}}<tr><td>{{.Type}}</td><td>{{.Count}}</td></tr>
{{end}}
</table>
{{else}}
<p>No indicators extracted.</p>
{{end}}
</section>
<section id="articles">
<h2>Articles</h2>
{{range $i, $a := .Items}}
<article>
<h3><a href="{{$a.URL}}">{{$a.Title}}</a></h3>
<p class="meta">{{$a.Source}} &middot; {{$a.Published}}{{range $a.Tags}} <span class="tag">{{.}}</span>{{end}}</p>
{{$a.Summary}}
{{if $a.Groups}}
<table>
<tr><th>Type</th><th>Value</th><th>Context</th></tr>
{{range $a.Groups}}{{$type := .Type}}{{range .IOCs}}<tr><td>{{$type}}</td><td class="value">{{.Value}}</td><td>{{.Context}}</td></tr>
{{end}}{{end}}
</table>
{{end}}
</article>
{{end}}
</section>
</body>
</html>
`))
