package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grievancebot/services/orchestrator/backend"
	"grievancebot/services/orchestrator/dialogue"
	"grievancebot/services/orchestrator/knowledge"
	"grievancebot/services/orchestrator/langpack"
)

var errUnknownCommand = errors.New("unknown command")

// executor runs the engine's backend requests.
type executor interface {
	Execute(ctx context.Context, req dialogue.Request, onRetry func(attempt, limit int)) (dialogue.Event, int)
}

type chatOptions struct {
	locale     langpack.Locale
	delays     bool
	askBackend bool
}

func newChatCmd() *cobra.Command {
	var (
		lang       string
		noDelay    bool
		askBackend bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Type replies as you would in the
widget, or use:

  1, 2        answer the options shown
  /s N        pick suggestion N
  /rate N     select a rating, then /submit
  /lang xx    switch language (en, hi, mr)
  /restart    start over in the same session
  /clear      clear the chat and start a new session
  /quit       leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			locale, err := langpack.ParseLocale(lang)
			if err != nil {
				return err
			}
			url, _ := cmd.Flags().GetString("backend")
			client := backend.NewClient(url, backend.WithLogger(zap.NewNop()))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			opts := chatOptions{locale: locale, delays: !noDelay, askBackend: askBackend}
			exec := backend.NewExecutor(client, backend.DefaultRetrier())
			return runChat(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), opts, exec, func(ctx context.Context) bool {
				h, err := client.Health(ctx)
				return err == nil && h.Ready()
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", string(langpack.English), "conversation language (en, hi, mr)")
	cmd.Flags().BoolVar(&noDelay, "no-delay", false, "render bot messages without typing pauses")
	cmd.Flags().BoolVar(&askBackend, "ask-backend", false, "send unmatched questions to the answer service")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, opts chatOptions, exec executor, probe func(context.Context) bool) error {
	catalog, err := langpack.Default()
	if err != nil {
		return err
	}
	matcher, err := knowledge.Default()
	if err != nil {
		return err
	}
	engine := dialogue.NewEngine(catalog, matcher, dialogue.WithBackendQuery(opts.askBackend))
	r := newRenderer(out, opts.delays)
	s := dialogue.NewSession(opts.locale)

	if probe != nil {
		r.render([]dialogue.Directive{engine.ConnectionStatus(s.Language, probe(ctx))})
	}
	r.render(engine.Begin(s).Directives)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, r.st.user.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		ev, quit, err := parseInput(scanner.Text(), r)
		switch {
		case quit:
			return nil
		case err != nil:
			fmt.Fprintln(out, r.st.levels[dialogue.LevelError].Render(err.Error()))
			continue
		case ev == nil:
			continue
		}

		res := engine.Handle(s, ev)
		r.render(res.Directives)
		for res.Request != nil {
			req := *res.Request
			result, _ := exec.Execute(ctx, req, func(attempt, limit int) {
				r.render([]dialogue.Directive{engine.RetryNotice(req.Language, attempt, limit)})
			})
			if result == nil {
				break
			}
			res = engine.Handle(s, result)
			r.render(res.Directives)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// parseInput turns a line typed at the prompt into an engine event. A nil
// event with no error means there is nothing to do.
func parseInput(line string, r *renderer) (ev dialogue.Event, quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(r.options) {
			return dialogue.OptionChosen{Index: n - 1}, false, nil
		}
		return dialogue.UserText{Text: line}, false, nil
	}

	name, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "quit", "exit", "q":
		return nil, true, nil
	case "restart":
		return dialogue.Restart{}, false, nil
	case "clear":
		return dialogue.ClearChat{}, false, nil
	case "submit":
		return dialogue.RatingSubmit{}, false, nil
	case "lang":
		l, err := langpack.ParseLocale(arg)
		if err != nil {
			return nil, false, err
		}
		return dialogue.LanguageChanged{Locale: l}, false, nil
	case "rate":
		n, err := strconv.Atoi(arg)
		if err != nil {
			return nil, false, fmt.Errorf("rating must be a number: %q", arg)
		}
		return dialogue.RatingChosen{Value: n}, false, nil
	case "s":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(r.suggestions) {
			return nil, false, fmt.Errorf("no suggestion %q", arg)
		}
		return dialogue.SuggestionChosen{Key: r.suggestions[n-1].Key}, false, nil
	}
	return nil, false, fmt.Errorf("%w: /%s", errUnknownCommand, name)
}
