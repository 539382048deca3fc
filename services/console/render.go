package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/langpack"
	"grievancebot/services/orchestrator/statusfmt"
)

var (
	brand   = lipgloss.Color("#101F38")
	accent  = lipgloss.Color("#8BC34A")
	danger  = lipgloss.Color("#e53935")
	info    = lipgloss.Color("#2196F3")
	warning = lipgloss.Color("#FFC107")
	muted   = lipgloss.Color("#6b7280")
)

type styles struct {
	bot       lipgloss.Style
	user      lipgloss.Style
	option    lipgloss.Style
	label     lipgloss.Style
	highlight lipgloss.Style
	link      lipgloss.Style
	muted     lipgloss.Style
	levels    map[string]lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		bot:       r.NewStyle().Foreground(brand).Bold(true),
		user:      r.NewStyle().Foreground(accent),
		option:    r.NewStyle().Foreground(info),
		label:     r.NewStyle().Bold(true),
		highlight: r.NewStyle().Foreground(accent).Bold(true),
		link:      r.NewStyle().Underline(true),
		muted:     r.NewStyle().Foreground(muted).Italic(true),
		levels: map[string]lipgloss.Style{
			dialogue.LevelInfo:    r.NewStyle().Foreground(info),
			dialogue.LevelSuccess: r.NewStyle().Foreground(accent),
			dialogue.LevelError:   r.NewStyle().Foreground(danger),
			dialogue.LevelOnline:  r.NewStyle().Foreground(accent),
			dialogue.LevelOffline: r.NewStyle().Foreground(warning),
		},
	}
}

// renderer prints directives as terminal lines. It remembers the last
// options and suggestions so numbered replies can be resolved.
type renderer struct {
	out     io.Writer
	st      styles
	sleep   func(time.Duration)
	botName string

	options     []string
	suggestions []langpack.Suggestion
	rating      bool
}

func newRenderer(out io.Writer, delays bool) *renderer {
	r := &renderer{
		out:     out,
		st:      newStyles(lipgloss.NewRenderer(out)),
		sleep:   func(time.Duration) {},
		botName: "Assistant",
	}
	if delays {
		r.sleep = time.Sleep
	}
	return r
}

func (r *renderer) render(ds []dialogue.Directive) {
	for _, d := range ds {
		if d.DelayMS > 0 {
			r.sleep(d.Delay())
		}
		r.directive(d)
	}
}

func (r *renderer) say(text string) {
	fmt.Fprintf(r.out, "%s %s\n", r.st.bot.Render(r.botName+":"), text)
}

func (r *renderer) directive(d dialogue.Directive) {
	switch d.Kind {
	case dialogue.ShowMessage:
		r.say(d.Text)
		for _, l := range d.Links {
			fmt.Fprintf(r.out, "    %s %s\n", l.Label, r.st.link.Render(l.URL))
		}
	case dialogue.ShowOptions:
		r.say(d.Text)
		r.options = d.Options
		for i, o := range d.Options {
			fmt.Fprintf(r.out, "    %s\n", r.st.option.Render(fmt.Sprintf("[%d] %s", i+1, o)))
		}
	case dialogue.ShowSuggestions:
		r.suggestions = d.Suggestions
		fmt.Fprintln(r.out, r.st.muted.Render(d.Text))
		for i, s := range d.Suggestions {
			fmt.Fprintf(r.out, "    %s\n", r.st.option.Render(fmt.Sprintf("/s %d  %s", i+1, s.Text)))
		}
	case dialogue.ShowRatingWidget:
		r.say(d.Text)
		r.rating = true
		for i, l := range d.RatingLabels {
			fmt.Fprintf(r.out, "    %s %s\n", strings.Repeat("*", i+1), l)
		}
		fmt.Fprintln(r.out, r.st.muted.Render("/rate N then /submit ("+d.SubmitLabel+")"))
	case dialogue.EnableSubmit:
		fmt.Fprintln(r.out, r.st.muted.Render(fmt.Sprintf("%s %s, /submit to send", strings.Repeat("*", d.Rating), d.Text)))
	case dialogue.DisableSubmit:
		r.rating = false
	case dialogue.ShowGrievanceStatus:
		r.say(d.Text)
		r.fields(d.Fields)
	case dialogue.ShowStatus, dialogue.ShowConnection:
		fmt.Fprintln(r.out, r.st.levels[d.Level].Render("• "+d.Text))
	case dialogue.RenderChrome:
		if d.Chrome != nil {
			fmt.Fprintln(r.out, r.st.muted.Render(fmt.Sprintf("[%s] %s", d.Chrome.LanguageName, d.Chrome.Placeholder)))
		}
	case dialogue.ClearTranscript:
		r.options, r.suggestions, r.rating = nil, nil, false
		fmt.Fprintln(r.out, r.st.muted.Render(strings.Repeat("─", 40)))
	case dialogue.ShowTyping:
		fmt.Fprintln(r.out, r.st.muted.Render("…"))
	}
}

func (r *renderer) fields(fields []statusfmt.Field) {
	for _, f := range fields {
		value := f.Value
		if f.Highlighted {
			value = r.st.highlight.Render(value)
		}
		if f.Label == "" {
			fmt.Fprintf(r.out, "    %s\n", value)
			continue
		}
		fmt.Fprintf(r.out, "    %s %s\n", r.st.label.Render(f.Label+":"), value)
	}
}
