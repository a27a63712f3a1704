package report

import (
	"encoding/json"
	"io"

	"prism/internal/domain"
)

type jsonReport struct {
	*domain.Report
	IOCCounts map[domain.IOCType]int `json:"ioc_counts"`
}

func renderJSON(w io.Writer, r *domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonReport{Report: r, IOCCounts: r.IOCCounts()})
}
