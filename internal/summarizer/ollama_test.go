package summarizer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ollama "github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/config"
	"prism/internal/domain"
)

// fakeOllama streams chunks as NDJSON and records the last request.
func fakeOllama(t *testing.T, chunks []string, last *ollama.GenerateRequest) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if last != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(last))
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for i, c := range chunks {
			_ = enc.Encode(ollama.GenerateResponse{
				Model:    "test-model",
				Response: c,
				Done:     i == len(chunks)-1,
			})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestOllama(t *testing.T, host string) *Ollama {
	t.Helper()
	o, err := New(config.AnalyzerConfig{Host: host, Model: "test-model", Timeout: 5 * time.Second}, nil, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return o
}

func TestSummarize_JoinsStreamAndSendsIOCs(t *testing.T) {
	var req ollama.GenerateRequest
	srv := fakeOllama(t, []string{"<think>hmm</think>APT29 ", "targets ", "diplomats."}, &req)
	o := newTestOllama(t, srv.URL)

	summary, err := o.Summarize(context.Background(),
		&domain.Article{ID: 4, Title: "Cozy Bear returns", Source: "Lab", Content: "Long body"},
		[]domain.IOC{
			{Type: domain.IOCDomain, Value: "evil.test", Context: "beacon to evil.test"},
			{Type: domain.IOCIP, Value: "45.61.136.7"},
		},
	)

	require.NoError(t, err)
	assert.Equal(t, "APT29 targets diplomats.", summary)

	assert.Equal(t, "test-model", req.Model)
	assert.Equal(t, analystSystem, req.System)
	assert.Contains(t, req.Prompt, "Title: Cozy Bear returns")
	assert.Contains(t, req.Prompt, "DOMAIN:\n- evil.test (Context: beacon to evil.test)")
	assert.Contains(t, req.Prompt, "IP:\n- 45.61.136.7\n")
}

func TestSummarize_EmptyResponse(t *testing.T) {
	srv := fakeOllama(t, []string{"  ", "<think>only thoughts</think>"}, nil)
	o := newTestOllama(t, srv.URL)

	_, err := o.Summarize(context.Background(), &domain.Article{ID: 1}, nil)

	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestSummarize_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()
	o := newTestOllama(t, srv.URL)

	_, err := o.Summarize(context.Background(), &domain.Article{ID: 1}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "article 1")
}

func TestOverview_LimitsInput(t *testing.T) {
	var req ollama.GenerateRequest
	srv := fakeOllama(t, []string{"## Overview"}, &req)
	o := newTestOllama(t, srv.URL)

	summary := "Ransomware wave."
	var articles []domain.ReportArticle
	for i := 0; i < maxOverviewArticles+5; i++ {
		a := domain.ReportArticle{Article: domain.Article{Title: "Article", Summary: &summary}}
		for j := 0; j < maxIOCsPerType+3; j++ {
			a.IOCs = append(a.IOCs, domain.IOC{Type: domain.IOCHashMD5, Value: strings.Repeat("a", j+1)})
		}
		articles = append(articles, a)
	}

	overview, err := o.Overview(context.Background(), articles)

	require.NoError(t, err)
	assert.Equal(t, "## Overview", overview)
	assert.Equal(t, executiveSystem, req.System)
	assert.Equal(t, maxOverviewArticles, strings.Count(req.Prompt, "Ransomware wave."))
	assert.NotContains(t, req.Prompt, "- "+strings.Repeat("a", maxIOCsPerType+1)+"\n")
	assert.Contains(t, req.Prompt, "- "+strings.Repeat("a", maxIOCsPerType)+"\n")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "hé...", truncate("héllo", 2))
}
