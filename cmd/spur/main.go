package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	// Register all LLM request previewers via their init() functions.
	_ "github.com/ravi-parthasarathy/spur/pkg/llm/providers"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "spur",
		Short: "Spur: inspect and edit workflow graphs",
		Long: `Spur loads workflow documents (JSON, YAML or DOT), checks them, and
applies the same edits the canvas does: handle renames, title changes and
config edits propagate to every edge and template that references them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Root())
			if err != nil {
				return err
			}
			settings = cfg
			return initLogger(cfg.LogLevel, cfg.LogFormat)
		},
	}
	addConfigFlags(root)
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(handlesCmd())
	root.AddCommand(renameCmd())
	root.AddCommand(retitleCmd())
	root.AddCommand(setCmd())
	root.AddCommand(convertCmd())
	root.AddCommand(routeCmd())
	root.AddCommand(previewCmd())
	return root
}

// initLogger installs the default slog handler.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info", "":
		lvl = slog.LevelInfo
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q: use debug, info, warn or error", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text", "":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q: use text or json", format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}
