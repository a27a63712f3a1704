package report

import (
	"fmt"
	"io"

	"prism/internal/domain"
)

// WriteMatches prints IOC search hits as an aligned table.
func WriteMatches(w io.Writer, term string, matches []domain.IOCMatch) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintf(w, "No IOCs matching %q.\n", term)
		return err
	}

	rows := make([][]string, len(matches))
	for i, m := range matches {
		rows[i] = []string{
			string(m.Type),
			m.Value,
			m.ScrapedAt.UTC().Format(dateLayout),
			m.Source,
			m.Title,
			m.URL,
		}
	}

	_, err := fmt.Fprintf(w, "%d IOCs matching %q:\n\n%s",
		len(matches), term, Table([]string{"Type", "Value", "Scraped", "Source", "Title", "URL"}, rows))
	return err
}
