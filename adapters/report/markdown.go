package report

import (
	"fmt"
	"os"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"sbcheck/domain/calibration"
)

// BuildMarkdown renders the study report as a Markdown document
func BuildMarkdown(report *calibration.StudyReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Calibration Study %s\n\n", report.StudyID)
	fmt.Fprintf(&b, "Verdict: **%s**\n\n", report.Verdict)
	fmt.Fprintf(&b, "- Runs: %d total, %d valid, %d excluded (budget %.0f%%)\n",
		report.TotalRuns, report.ValidRuns, report.ExcludedRuns, report.MaxInvalidFraction*100)
	fmt.Fprintf(&b, "- Posterior draws per run: %d (ranks in [0, %d])\n", report.MaxRank, report.MaxRank)
	fmt.Fprintf(&b, "- Uniformity check: %d bins, flagged below p = %g\n", report.Bins, report.Alpha)
	fmt.Fprintf(&b, "- Config fingerprint: `%s`\n\n", report.Fingerprint)

	b.WriteString("## Rank uniformity by dimension\n\n")
	b.WriteString("| param | chi-square | df | p-value | rank mean | rank sd | flagged |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, d := range report.Dimensions {
		flag := ""
		if d.Flagged {
			flag = "FLAGGED"
		}
		fmt.Fprintf(&b, "| %s | %.3f | %d | %.4f | %.1f | %.1f | %s |\n",
			d.Param, d.ChiSquare, d.DF, d.PValue, d.Summary.Mean, d.Summary.StdDev, flag)
	}
	b.WriteString("\n")

	if len(report.Exclusions) > 0 {
		b.WriteString("## Excluded runs\n\n")
		for _, rec := range report.Exclusions {
			fmt.Fprintf(&b, "- %s (%s): %s\n", rec.RunID, rec.Status, rec.FailureReason)
		}
		b.WriteString("\n")
	}

	if report.Verdict == calibration.VerdictInconclusive {
		b.WriteString("Too many runs were excluded for the uniformity check to be meaningful; rerun with a better-behaved fit before reading the histograms.\n")
	}

	return b.String()
}

// HTMLSink renders the Markdown report to a standalone HTML file
type HTMLSink struct {
	Path string
}

// WriteStudy renders and writes the report
func (s *HTMLSink) WriteStudy(report *calibration.StudyReport, records []calibration.RunRecord) error {
	md := BuildMarkdown(report)

	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	doc := p.Parse([]byte(md))
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.CompletePage})
	rendered := markdown.Render(doc, renderer)

	return os.WriteFile(s.Path, rendered, 0o644)
}

// MarkdownSink writes the raw Markdown report
type MarkdownSink struct {
	Path string
}

// WriteStudy writes the report
func (s *MarkdownSink) WriteStudy(report *calibration.StudyReport, records []calibration.RunRecord) error {
	return os.WriteFile(s.Path, []byte(BuildMarkdown(report)), 0o644)
}
