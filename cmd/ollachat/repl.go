package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kalambet/ollachat/internal/api"
	"github.com/kalambet/ollachat/internal/chat"
	"github.com/kalambet/ollachat/internal/ollama"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat session in the terminal.

Replies stream as they are generated. Press Ctrl-C during a reply to stop it.
Type /help for the list of commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")
		preset, _ := cmd.Flags().GetString("preset")
		return runChat(model, preset)
	},
}

func init() {
	chatCmd.Flags().String("model", "", "model to chat with (default: configured or first installed)")
	chatCmd.Flags().String("preset", "", "preset to use as the system prompt")
}

func runChat(model, preset string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	if model != "" {
		if err := a.svc.SelectModel(ctx, model); err != nil {
			return err
		}
	}
	if _, err := a.svc.Session.Initialize(ctx); err != nil {
		if errors.Is(err, ollama.ErrServiceUnavailable) {
			return fmt.Errorf("%w. Start it with: ollama serve", err)
		}
		return err
	}
	if preset != "" {
		if _, err := a.svc.ApplyPreset(preset); err != nil {
			return err
		}
	}

	in := newLineReader(filepath.Join(a.cfg.Storage.DataDir, "input_history"))
	defer in.Close()

	r := &repl{svc: a.svc, in: in, out: os.Stdout, onInterrupt: notifyInterrupt}
	return r.run(ctx)
}

// errInterrupted is returned by a lineReader when Ctrl-C is pressed at the prompt.
var errInterrupted = errors.New("interrupted")

// lineReader reads one line of user input per call. It returns io.EOF at
// end of input.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// newLineReader returns a line-editing reader on a terminal and a plain
// scanner when stdin is piped.
func newLineReader(historyPath string) lineReader {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return &scanReader{sc: bufio.NewScanner(os.Stdin)}
	}
	st := liner.NewLiner()
	st.SetCtrlCAborts(true)
	if f, err := os.Open(historyPath); err == nil {
		st.ReadHistory(f)
		f.Close()
	}
	return &linerReader{st: st, historyPath: historyPath}
}

type linerReader struct {
	st          *liner.State
	historyPath string
}

func (l *linerReader) ReadLine(prompt string) (string, error) {
	line, err := l.st.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errInterrupted
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		l.st.AppendHistory(line)
	}
	return line, nil
}

func (l *linerReader) Close() error {
	if f, err := os.OpenFile(l.historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
		l.st.WriteHistory(f)
		f.Close()
	}
	return l.st.Close()
}

type scanReader struct {
	sc *bufio.Scanner
}

func (s *scanReader) ReadLine(string) (string, error) {
	if !s.sc.Scan() {
		if err := s.sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.sc.Text(), nil
}

func (s *scanReader) Close() error { return nil }

// notifyInterrupt cancels the reply in progress on Ctrl-C. Outside a reply
// SIGINT keeps its default behavior.
func notifyInterrupt(cancel context.CancelFunc) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(ch)
		close(done)
	}
}

// repl is the interactive chat loop.
type repl struct {
	svc *api.Service
	in  lineReader
	out io.Writer

	// onInterrupt arranges for cancel to run on Ctrl-C while a reply streams.
	onInterrupt func(cancel context.CancelFunc) (stop func())
}

func (r *repl) run(ctx context.Context) error {
	cfg := r.svc.Session.Config()
	printStep("Chatting with %s (temperature %.1f, context %d). Type /help for commands.", cfg.Model, cfg.Temperature, cfg.ContextLength)

	for {
		line, err := r.in.ReadLine(r.prompt())
		if errors.Is(err, io.EOF) || errors.Is(err, errInterrupted) {
			fmt.Fprintln(r.out)
			r.saveOnExit()
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(ctx, line)
			if err != nil {
				printError("%v", err)
			}
			if quit {
				r.saveOnExit()
				return nil
			}
			continue
		}

		r.send(ctx, line)
	}
}

func (r *repl) prompt() string {
	return colorize(colorBold, "you> ")
}

// send streams one reply to stdout.
func (r *repl) send(ctx context.Context, text string) {
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.onInterrupt != nil {
		stop := r.onInterrupt(cancel)
		defer stop()
	}

	fmt.Fprint(r.out, colorize(colorCyan, "ai> "))
	_, err := r.svc.Send(sendCtx, text, func(delta string) {
		fmt.Fprint(r.out, delta)
	})
	fmt.Fprintln(r.out)

	switch {
	case err == nil:
	case errors.Is(err, ollama.ErrStreamAborted):
		printWarning("reply stopped; it was not added to the conversation")
	default:
		printError("%v", err)
	}
}

// saveOnExit stores the conversation in history so it can be reloaded.
func (r *repl) saveOnExit() {
	entry, err := r.svc.History.Save(r.svc.Session.Transcript())
	if err != nil {
		printWarning("could not save conversation: %v", err)
		return
	}
	if entry.ID != "" {
		printSuccess("Saved conversation %s", entry.ID)
	}
}

const replHelp = `Commands:
  /reset            save this conversation to history and start over
  /model [name]     list installed models or switch to one
  /temp <value>     set temperature (0 to 2)
  /ctx <tokens>     set context length (512 to 8192)
  /system [text]    set the system prompt (no text clears it)
  /preset [name]    list presets or apply one as the system prompt
  /history          list saved conversations
  /load <id>        continue a saved conversation
  /settings         show current settings
  /quit             save and exit`

// command runs a slash command. It reports whether the loop should end.
func (r *repl) command(ctx context.Context, line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.out, replHelp)

	case "/reset":
		entry, err := r.svc.Reset()
		if err != nil {
			return false, err
		}
		if entry.ID != "" {
			printSuccess("Saved conversation %s; started a new one", entry.ID)
		} else {
			printSuccess("Started a new conversation")
		}

	case "/model":
		if arg == "" {
			models, err := r.svc.Models.ListModels(ctx)
			if err != nil {
				return false, err
			}
			current := r.svc.Session.Config().Model
			for _, m := range models {
				marker := "  "
				if m == current {
					marker = colorize(colorGreen, "* ")
				}
				fmt.Fprintf(r.out, "%s%s\n", marker, m)
			}
			return false, nil
		}
		if err := r.svc.SelectModel(ctx, arg); err != nil {
			return false, err
		}
		printSuccess("Model set to %s", arg)

	case "/temp":
		t, err := chat.ParseTemperature(arg)
		if err != nil {
			return false, err
		}
		clamped := chat.ClampTemperature(t)
		if clamped != t {
			printWarning("temperature must be between %.0f and %.0f; using %.1f", chat.MinTemperature, chat.MaxTemperature, clamped)
		}
		r.svc.Session.SetTemperature(clamped)
		printSuccess("Temperature set to %.1f", clamped)

	case "/ctx":
		n, err := chat.ParseContextLength(arg)
		if err != nil {
			return false, err
		}
		if !chat.ValidContextLength(n) {
			return false, fmt.Errorf("context length must be between %d and %d", chat.MinContextLength, chat.MaxContextLength)
		}
		r.svc.Session.SetContextLength(n)
		printSuccess("Context length set to %d", n)

	case "/system":
		r.svc.Session.SetSystemPrompt(arg)
		if arg == "" {
			printSuccess("System prompt cleared")
		} else {
			printSuccess("System prompt set")
		}

	case "/preset":
		if arg == "" {
			names, err := r.svc.Presets.List()
			if err != nil {
				return false, err
			}
			if len(names) == 0 {
				fmt.Fprintln(r.out, "No presets saved. Use: ollachat presets save <name> <prompt>")
			}
			for _, n := range names {
				fmt.Fprintf(r.out, "  %s\n", n)
			}
			return false, nil
		}
		if _, err := r.svc.ApplyPreset(arg); err != nil {
			return false, err
		}
		printSuccess("Applied preset %s", arg)

	case "/history":
		entries := r.svc.History.List()
		if len(entries) == 0 {
			fmt.Fprintln(r.out, "No saved conversations.")
		}
		for _, e := range entries {
			fmt.Fprintf(r.out, "  %s  %s  %s\n", e.ID, colorize(colorDim, humanize.Time(e.Timestamp)), e.Preview)
		}

	case "/load":
		if arg == "" {
			return false, fmt.Errorf("usage: /load <id>")
		}
		entry, err := r.svc.LoadHistory(arg)
		if err != nil {
			return false, err
		}
		for _, m := range entry.Messages {
			printMessage(r.out, m)
		}
		printSuccess("Loaded conversation %s (%d messages)", entry.ID, len(entry.Messages))

	case "/settings":
		cfg := r.svc.Session.Config()
		fmt.Fprintf(r.out, "  model:          %s\n", cfg.Model)
		fmt.Fprintf(r.out, "  temperature:    %.1f\n", cfg.Temperature)
		fmt.Fprintf(r.out, "  context length: %d\n", cfg.ContextLength)
		fmt.Fprintf(r.out, "  system prompt:  %s\n", cfg.SystemPrompt)

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", name)
	}
	return false, nil
}

func printMessage(w io.Writer, m ollama.Message) {
	label := "you> "
	color := colorBold
	if m.Role == ollama.RoleAssistant {
		label, color = "ai> ", colorCyan
	}
	fmt.Fprintf(w, "%s%s\n", colorize(color, label), m.Content)
}
