package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"prism/internal/domain"
	"prism/internal/ioc"
)

const dateLayout = "2006-01-02"

func renderMarkdown(w io.Writer, r *domain.Report) error {
	var b strings.Builder

	b.WriteString("# PRISM Threat Intelligence Report\n\n")
	fmt.Fprintf(&b, "Generated %s UTC, covering the last %d days. %d articles.\n\n",
		r.GeneratedAt.UTC().Format("2006-01-02 15:04"), r.WindowDays, len(r.Articles))

	if r.Overview != "" {
		b.WriteString("## Executive Summary\n\n")
		b.WriteString(strings.TrimSpace(r.Overview))
		b.WriteString("\n\n")
	}

	b.WriteString("## IOC Overview\n\n")
	counts := r.IOCCounts()
	var rows [][]string
	for _, t := range typeOrder() {
		if n := counts[t]; n > 0 {
			rows = append(rows, []string{string(t), strconv.Itoa(n)})
		}
	}
	if len(rows) == 0 {
		b.WriteString("No indicators extracted.\n\n")
	} else {
		b.WriteString(Table([]string{"Type", "Count"}, rows))
		b.WriteString("\n")
	}

	b.WriteString("## Articles\n\n")
	for i, a := range r.Articles {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, a.Title)
		fmt.Fprintf(&b, "- **Source:** %s\n", a.Source)
		fmt.Fprintf(&b, "- **Published:** %s\n", publishedLabel(a.Article))
		fmt.Fprintf(&b, "- **URL:** <%s>\n", a.URL)
		if len(a.Tags) > 0 {
			fmt.Fprintf(&b, "- **Tags:** %s\n", strings.Join(a.Tags, ", "))
		}
		b.WriteString("\n")

		if a.Summary != nil && *a.Summary != "" {
			b.WriteString(strings.TrimSpace(*a.Summary))
			b.WriteString("\n\n")
		}

		if len(a.IOCs) > 0 {
			b.WriteString("#### Indicators\n\n")
			b.WriteString(Table([]string{"Type", "Value", "Context"}, iocRows(a.IOCs)))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// iocRows lists iocs grouped by type in precedence order.
func iocRows(iocs []domain.IOC) [][]string {
	grouped := domain.GroupIOCs(iocs)
	var rows [][]string
	for _, t := range typeOrder() {
		for _, v := range grouped[t] {
			rows = append(rows, []string{string(t), v.Value, v.Context})
		}
	}
	return rows
}

func typeOrder() []domain.IOCType {
	order := make([]domain.IOCType, len(ioc.Precedence))
	for i, p := range ioc.Precedence {
		order[i] = p.Type
	}
	return order
}

func publishedLabel(a domain.Article) string {
	if a.PublishedAt != nil {
		return a.PublishedAt.UTC().Format(dateLayout)
	}
	return "unknown (scraped " + a.ScrapedAt.UTC().Format(dateLayout) + ")"
}
