package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"prism/internal/config"
	"prism/internal/domain"
)

type renderFunc func(w io.Writer, r *domain.Report) error

var renderers = map[string]struct {
	ext    string
	render renderFunc
}{
	config.FormatHTML:     {".html", renderHTML},
	config.FormatMarkdown: {".md", renderMarkdown},
	config.FormatJSON:     {".json", renderJSON},
	config.FormatXLSX:     {".xlsx", renderXLSX},
}

// Writer renders reports in one format into an output directory.
type Writer struct {
	format string
	dir    string
	ext    string
	render renderFunc
}

func NewWriter(format, dir string) (*Writer, error) {
	r, ok := renderers[format]
	if !ok {
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	return &Writer{format: format, dir: dir, ext: r.ext, render: r.render}, nil
}

func (w *Writer) Format() string {
	return w.format
}

// Write renders report to a new file named after its generation time and
// returns the file's path.
func (w *Writer) Write(_ context.Context, report *domain.Report) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(w.dir, Filename(report.GeneratedAt, w.ext))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}

	if err := w.render(f, report); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("render report: %w", err)
	}

	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// Filename is prism_report_YYYYMMDD_HHMMSS plus ext, in UTC.
func Filename(at time.Time, ext string) string {
	return "prism_report_" + at.UTC().Format("20060102_150405") + ext
}
