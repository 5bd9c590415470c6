package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/stats"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	positiveStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	negativeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dateStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// render writes v as JSON or YAML, or calls table for the human format.
func render(w io.Writer, format string, v any, table func(p *printer)) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml", "yml":
		// Round-trip through JSON so YAML keys match the API field names.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		defer func() { _ = enc.Close() }()
		return enc.Encode(generic)
	case "table", "":
		p := &printer{w: w}
		table(p)
		return p.err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) sessionTable(sessions []tracking.Session) {
	if len(sessions) == 0 {
		p.printf("%s\n", headerStyle.Render("No sessions found"))
		return
	}

	p.printf("%s\n\n", headerStyle.Render(fmt.Sprintf("%d session(s)", len(sessions))))
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tEVENTS\tSCORE\t+/=/-")
	for _, s := range sessions {
		sum := s.EmotionSummary
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%d/%d/%d\n",
			idStyle.Render(s.ID),
			dateStyle.Render(s.StartTime.Local().Format(time.DateTime)),
			stats.FormatDuration(s.Duration()),
			len(s.Events),
			scoreText(s.TotalScore),
			sum.Positive, sum.Neutral, sum.Negative)
	}
	if err := tw.Flush(); err != nil && p.err == nil {
		p.err = err
	}
}

func (p *printer) sessionDetail(d stats.SessionDetail, withTimeline bool) {
	p.printf("%s\n", headerStyle.Render("Session "+d.SessionID))
	p.printf("  started   %s\n", dateStyle.Render(d.StartTime.Local().Format(time.DateTime)))
	p.printf("  duration  %s\n", d.DurationText)
	p.printf("  dominant  %s\n", d.DominantEmotion)
	p.printf("  average   %.2f\n", d.AverageConfidence)
	p.printf("  total     %s\n", scoreText(d.TotalScore))
	p.printf("  summary   %d positive / %d neutral / %d negative\n",
		d.EmotionSummary.Positive, d.EmotionSummary.Neutral, d.EmotionSummary.Negative)

	if !withTimeline {
		return
	}
	p.printf("\n%s\n", headerStyle.Render("Distribution"))
	for _, c := range d.Distribution {
		p.printf("  %-10s %d\n", c.Label, c.Count)
	}
	p.printf("\n%s\n", headerStyle.Render("Timeline"))
	for _, pt := range d.Timeline {
		p.printf("  %s  %-10s %s\n", pt.Timestamp.Local().Format(time.TimeOnly), pt.Emotion, scoreText(pt.Score))
	}
}

func (p *printer) summary(s stats.Summary) {
	p.printf("%s\n", headerStyle.Render("Statistics"))
	p.printf("  sessions       %d\n", s.TotalSessions)
	p.printf("  events         %d\n", s.TotalEvents)
	p.printf("  duration       %s\n", stats.FormatDuration(s.TotalDuration))
	p.printf("  average score  %s\n", scoreText(s.AverageScore))
	p.printf("  buckets        %s / %d / %s\n",
		positiveStyle.Render(fmt.Sprint(s.TotalPositive)), s.TotalNeutral, negativeStyle.Render(fmt.Sprint(s.TotalNegative)))

	if len(s.EmotionFrequency) == 0 {
		return
	}
	p.printf("\n%s\n", headerStyle.Render("Emotion frequency"))
	for _, f := range s.EmotionFrequency {
		p.printf("  %-10s %4d  %5.1f%%\n", f.Emotion, f.Count, f.Ratio*100)
	}
}

func scoreText(score float64) string {
	text := fmt.Sprintf("%+.2f", score)
	switch {
	case score > 0:
		return positiveStyle.Render(text)
	case score < 0:
		return negativeStyle.Render(text)
	default:
		return text
	}
}
