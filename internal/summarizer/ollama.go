package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"prism/internal/config"
	"prism/internal/domain"
)

const (
	// maxContentRunes keeps a single article prompt inside small context windows.
	maxContentRunes = 12000
	// Overview input limits.
	maxOverviewArticles = 20
	maxIOCsPerType      = 5
)

var ErrEmptyResponse = errors.New("model returned an empty response")

const analystSystem = "You are a cybersecurity threat intelligence analyst assistant. " +
	"Provide accurate, concise, technical summaries of threat intelligence."

const executiveSystem = "You are a senior cybersecurity threat intelligence analyst. " +
	"Distill complex technical information into clear, business-focused executive summaries."

// Ollama is the analyzer backend. It asks a local Ollama model for
// per-article summaries and for the report's executive overview.
type Ollama struct {
	client  *ollama.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func New(cfg config.AnalyzerConfig, httpClient *http.Client, logger *slog.Logger) (*Ollama, error) {
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("parse analyzer host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Ollama{
		client:  ollama.NewClient(base, httpClient),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  logger.With("model", cfg.Model),
	}, nil
}

func (o *Ollama) Summarize(ctx context.Context, article *domain.Article, iocs []domain.IOC) (string, error) {
	var b strings.Builder
	b.WriteString("Create a concise, technical summary of the following threat intelligence article.\n\n")
	fmt.Fprintf(&b, "Title: %s\nSource: %s\n\nContent:\n%s\n\n", article.Title, article.Source, truncate(article.Content, maxContentRunes))

	if len(iocs) > 0 {
		b.WriteString("Extracted Indicators of Compromise (IOCs):\n")
		writeIOCs(&b, iocs, 0)
		b.WriteString("\n")
	}

	b.WriteString(`Please provide a summary that:
1. Identifies the key threat actors, malware, or attack vectors
2. Summarizes the technical details of the attack or vulnerability
3. Highlights the most significant IOCs
4. Notes the industries or sectors targeted
5. Explains the potential impact and severity
6. Provides any recommended mitigations or defensive measures

Keep it technical but clear, 250-350 words, focused on actionable intelligence.`)

	summary, err := o.generate(ctx, analystSystem, b.String(), 0.0)
	if err != nil {
		return "", fmt.Errorf("summarize article %d: %w", article.ID, err)
	}

	o.logger.Debug("generated summary", "article_id", article.ID, "length", len(summary))
	return summary, nil
}

// Overview writes the executive summary for a report from the article
// summaries. The result is Markdown.
func (o *Ollama) Overview(ctx context.Context, articles []domain.ReportArticle) (string, error) {
	if len(articles) > maxOverviewArticles {
		articles = articles[:maxOverviewArticles]
	}

	var b strings.Builder
	b.WriteString("You have the following summaries of recent threat intelligence articles:\n\n")
	for i, a := range articles {
		fmt.Fprintf(&b, "## %d. %s\nSource: %s\nURL: %s\n", i+1, a.Title, a.Source, a.URL)
		if a.PublishedAt != nil {
			fmt.Fprintf(&b, "Published: %s\n", a.PublishedAt.Format("2006-01-02"))
		}
		if a.Summary != nil {
			fmt.Fprintf(&b, "\n%s\n", *a.Summary)
		}
		if len(a.IOCs) > 0 {
			b.WriteString("\nKey IOCs:\n")
			writeIOCs(&b, a.IOCs, maxIOCsPerType)
		}
		b.WriteString("\n")
	}

	b.WriteString(`Write an executive summary for C-level readers that:
1. Identifies the 3-5 most significant threats
2. Focuses on business impact rather than technical details
3. Highlights industry trends and emerging threats
4. Names the most critical threat actors and their targets
5. Ends with 3-5 actionable recommendations as a bullet list

Use Markdown. Keep it between 400 and 600 words.`)

	return o.generate(ctx, executiveSystem, b.String(), 0.3)
}

func (o *Ollama) generate(ctx context.Context, system, prompt string, temperature float64) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var response strings.Builder
	err := o.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  o.model,
		System: system,
		Prompt: prompt,
		Options: map[string]any{
			"temperature": temperature,
		},
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	text := removeThinkBlock(response.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// writeIOCs lists iocs grouped by type in first-seen type order. A positive
// limit caps the values listed per type.
func writeIOCs(b *strings.Builder, iocs []domain.IOC, limit int) {
	grouped := domain.GroupIOCs(iocs)
	seen := make(map[domain.IOCType]bool)
	for _, ioc := range iocs {
		if seen[ioc.Type] {
			continue
		}
		seen[ioc.Type] = true

		fmt.Fprintf(b, "%s:\n", strings.ToUpper(string(ioc.Type)))
		for i, v := range grouped[ioc.Type] {
			if limit > 0 && i == limit {
				break
			}
			fmt.Fprintf(b, "- %s", v.Value)
			if v.Context != "" {
				fmt.Fprintf(b, " (Context: %s)", v.Context)
			}
			b.WriteString("\n")
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

func removeThinkBlock(input string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(input, ""))
}
