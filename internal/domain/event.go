package domain

import "time"

const (
	EventIngested = "ingested"
	EventAnalyzed = "analyzed"
)

// ArticleEvent is published after an article changes stage.
type ArticleEvent struct {
	Action    string    `json:"action"`
	RunID     string    `json:"run_id,omitempty"`
	Article   Article   `json:"article"`
	IOCCount  int       `json:"ioc_count"`
	Tags      []string  `json:"tags,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReportArticle is an analyzed article with everything the report shows.
type ReportArticle struct {
	Article
	IOCs []IOC    `json:"iocs"`
	Tags []string `json:"tags"`
}

type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	WindowDays  int             `json:"time_window_days"`
	Overview    string          `json:"executive_summary,omitempty"`
	Articles    []ReportArticle `json:"articles"`
}

// IOCCounts tallies IOCs by type across all report articles.
func (r *Report) IOCCounts() map[IOCType]int {
	counts := make(map[IOCType]int)
	for _, a := range r.Articles {
		for _, ioc := range a.IOCs {
			counts[ioc.Type]++
		}
	}
	return counts
}
