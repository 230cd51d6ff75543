package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kalambet/ollachat/internal/chat"
	"github.com/kalambet/ollachat/internal/config"
	"github.com/kalambet/ollachat/internal/history"
	"github.com/kalambet/ollachat/internal/ollama"
	"github.com/kalambet/ollachat/internal/presets"
)

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models installed in Ollama",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		models, err := a.client.ListModelInfo(cmd.Context())
		if err != nil {
			return err
		}
		if len(models) == 0 {
			printWarning("No models installed. Pull one with: ollama pull <model>")
			return nil
		}
		writeModels(os.Stdout, models, a.cfg.Chat.Model)
		return nil
	},
}

func writeModels(w io.Writer, models []ollama.ModelInfo, selected string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  NAME\tPARAMS\tQUANT\tSIZE\tMODIFIED")
	for _, m := range models {
		marker := "  "
		if m.Name == selected {
			marker = "* "
		}
		modified := "-"
		if !m.ModifiedAt.IsZero() {
			modified = humanize.Time(m.ModifiedAt)
		}
		fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\t%s\n", marker, m.Name,
			orDash(m.Details.ParameterSize), orDash(m.Details.QuantizationLevel),
			humanize.Bytes(uint64(max(m.Size, 0))), modified)
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// --- presets ---

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "Manage saved system prompts",
}

var presetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			return listPresets(os.Stdout, a.svc.Presets)
		})
	},
}

var presetsShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print a preset's prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			prompt, err := a.svc.Presets.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(prompt)
			return nil
		})
	},
}

var presetsSaveCmd = &cobra.Command{
	Use:   "save <name> [prompt...]",
	Short: "Save a preset from text or a file",
	Long: `Save a preset from text or a file.

Examples:
  ollachat presets save reviewer "You are a careful code reviewer."
  ollachat presets save paper --file ./instructions.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		name := args[0]
		text := strings.Join(args[1:], " ")

		if file == "" && text == "" {
			return fmt.Errorf("a prompt or --file is required")
		}
		if file != "" && text != "" {
			return fmt.Errorf("give either a prompt or --file, not both")
		}

		return withApp(func(a *app) error {
			if file != "" {
				prompt, err := a.svc.Presets.ImportFile(name, file)
				if err != nil {
					return err
				}
				printSuccess("Saved preset %s (%d characters from %s)", name, len([]rune(prompt)), file)
				return nil
			}
			if err := a.svc.Presets.Save(name, text); err != nil {
				return err
			}
			printSuccess("Saved preset %s", name)
			return nil
		})
	},
}

var presetsDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a preset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			if err := a.svc.Presets.Delete(args[0]); err != nil {
				return err
			}
			printSuccess("Deleted preset %s", args[0])
			return nil
		})
	},
}

func init() {
	presetsSaveCmd.Flags().String("file", "", "read the prompt from a .txt, .md or .pdf file")
	presetsCmd.AddCommand(presetsListCmd)
	presetsCmd.AddCommand(presetsShowCmd)
	presetsCmd.AddCommand(presetsSaveCmd)
	presetsCmd.AddCommand(presetsDeleteCmd)
}

func listPresets(w io.Writer, m *presets.Manager) error {
	all, err := m.All()
	if err != nil {
		return err
	}
	names, err := m.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "No presets saved.")
		return nil
	}
	for _, n := range names {
		fmt.Fprintf(w, "  %s  %s\n", colorize(colorBold, n), history.Preview(all[n]))
	}
	return nil
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse saved conversations",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			listHistory(os.Stdout, a.svc.History.List(), time.Now())
			return nil
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a saved conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(a *app) error {
			entry, err := a.svc.History.Get(args[0])
			if err != nil {
				return err
			}
			for _, m := range entry.Messages {
				printMessage(os.Stdout, m)
			}
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all saved conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL saved conversations. Use --confirm to proceed.")
			return nil
		}
		return withApp(func(a *app) error {
			if err := a.svc.History.Clear(); err != nil {
				return err
			}
			printSuccess("History cleared")
			return nil
		})
	},
}

func init() {
	historyClearCmd.Flags().Bool("confirm", false, "confirm deletion")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyClearCmd)
}

func listHistory(w io.Writer, entries []history.Entry, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No saved conversations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "  %s\t%s\t%d msgs\t%s\n", e.ID, humanize.RelTime(e.Timestamp, now, "ago", "from now"), len(e.Messages), e.Preview)
	}
	tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show Ollama and server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		client := ollama.New(cfg.Ollama.BaseURL)
		return runStatus(cmd.Context(), cfg, client, newAPIClient(cfg))
	},
}

type serverTranscript struct {
	Messages   []ollama.Message `json:"messages"`
	Generating bool             `json:"generating"`
}

func runStatus(ctx context.Context, cfg config.Config, oc *ollama.Client, sc *apiClient) error {
	if oc.IsRunning(ctx) {
		printStatus("Ollama", "%s at %s", colorize(colorGreen, "running"), oc.BaseURL())
	} else {
		printStatus("Ollama", "%s at %s", colorize(colorRed, "not running"), oc.BaseURL())
	}

	resp, err := sc.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "%s on port %d", colorize(colorYellow, "stopped"), cfg.Server.Port)
		return nil
	}
	resp.Body.Close()
	printStatus("Server", "%s on port %d", colorize(colorGreen, "running"), cfg.Server.Port)

	resp, err = sc.get(ctx, "/settings")
	if err != nil {
		return err
	}
	var settings chat.GenerationConfig
	if err := decodeJSON(resp, &settings); err != nil {
		return err
	}
	printStatus("Model", "%s", orDash(settings.Model))
	printStatus("Temperature", "%.1f", settings.Temperature)
	printStatus("Context", "%d tokens", settings.ContextLength)

	resp, err = sc.get(ctx, "/transcript")
	if err != nil {
		return err
	}
	var tr serverTranscript
	if err := decodeJSON(resp, &tr); err != nil {
		return err
	}
	state := "idle"
	if tr.Generating {
		state = "generating"
	}
	printStatus("Conversation", "%d messages, %s", len(tr.Messages), state)
	return nil
}

// withApp opens the local app for a command and closes it afterwards.
func withApp(fn func(a *app) error) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
