package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kotoba-ai/kotoba/internal/index"
	"github.com/kotoba-ai/kotoba/internal/search"
)

// snippetRunes caps how much of a result's content is shown per entry.
const snippetRunes = 240

// Printer renders responses and build summaries to a writer.
type Printer struct {
	w      io.Writer
	styles Styles
}

// NewPrinter creates a printer for the given config. Color is enabled
// only for interactive terminals without NO_COLOR or CI markers.
func NewPrinter(cfg Config) *Printer {
	return &Printer{
		w:      cfg.Output,
		styles: GetStyles(!useColor(cfg)),
	}
}

// Results renders a search response as human-readable text.
func (p *Printer) Results(resp *search.Response) {
	s := p.styles

	header := fmt.Sprintf("%d result(s) for %q", len(resp.Results), resp.Query)
	if resp.Level.Valid() {
		header += fmt.Sprintf(" [%s]", resp.Level)
	}
	fmt.Fprintln(p.w, s.Header.Render(header))

	if len(resp.Expanded) > 1 {
		fmt.Fprintln(p.w, s.Dim.Render("searched: "+strings.Join(resp.Expanded, " | ")))
	}
	if degraded := resp.Report.Degraded(); len(degraded) > 0 {
		names := make([]string, len(degraded))
		for i, d := range degraded {
			names[i] = string(d)
		}
		fmt.Fprintln(p.w, s.Warning.Render("warning: sources unavailable: "+strings.Join(names, ", ")))
	}

	if len(resp.Results) == 0 {
		fmt.Fprintln(p.w, s.Label.Render("No results found. Try a broader phrasing or a different level."))
		return
	}

	for i, r := range resp.Results {
		fmt.Fprintln(p.w)
		p.result(i+1, r)
	}
}

func (p *Printer) result(rank int, r *search.Result) {
	s := p.styles

	line := fmt.Sprintf("%s %s %s",
		s.Rank.Render(fmt.Sprintf("%2d.", rank)),
		s.Score.Render(fmt.Sprintf("[%.2f]", r.Score)),
		s.Source.Render(string(r.Source)))
	if r.Metadata.Level.Valid() {
		line += " " + s.Level.Render(string(r.Metadata.Level))
	}
	if r.Metadata.Title != "" {
		line += " " + s.Label.Render(r.Metadata.Title)
	}
	fmt.Fprintln(p.w, line)

	fmt.Fprintln(p.w, "    "+s.Snippet.Render(snippet(r.Content)))
	if r.URL != "" {
		fmt.Fprintln(p.w, "    "+s.Dim.Render(r.URL))
	}
}

// ResultsJSON renders a search response as indented JSON for scripting.
func (p *Printer) ResultsJSON(resp *search.Response) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// BuildStats renders an index build summary.
func (p *Printer) BuildStats(stats index.Stats) {
	s := p.styles

	if stats.Chunks == 0 {
		fmt.Fprintln(p.w, s.Label.Render("Index up to date, nothing to rebuild."))
		return
	}

	fmt.Fprintln(p.w, s.Header.Render("Index built"))
	fmt.Fprintf(p.w, "  %s %d\n", s.Label.Render("chunks:"), stats.Chunks)
	fmt.Fprintf(p.w, "  %s %d\n", s.Label.Render("batches:"), stats.EmbeddedBatches)
	fmt.Fprintf(p.w, "  %s %s\n", s.Label.Render("version:"), stats.CorpusVersion)
	fmt.Fprintf(p.w, "  %s %s\n", s.Label.Render("elapsed:"), stats.Elapsed.Round(time.Millisecond))
}

// Errorf renders an error line.
func (p *Printer) Errorf(format string, args ...any) {
	fmt.Fprintln(p.w, p.styles.Error.Render("error: "+fmt.Sprintf(format, args...)))
}

// snippet trims content to one displayable line.
func snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= snippetRunes {
		return content
	}
	return string(runes[:snippetRunes]) + "…"
}
