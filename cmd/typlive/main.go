package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/typlive/typlive/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╔╦╗┬ ┬┌─┐┬  ┬┬  ┬┌─┐
   ║ └┬┘├─┘│  │└┐┌┘├┤
   ╩  ┴ ┴  ┴─┘┴ └┘ └─┘
`

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.Fprint(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "typlive [flags] <file>",
		Short: "Live preview for Typst documents",
		Long: `typlive compiles a Typst document on every change and serves the
resulting PDF to your browser, which reloads it after each compile.

Examples:
  typlive main.typ
  typlive --port 8080 --open thesis.typ
  typlive --no-recompile build/report.pdf`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.file = args[0]
			}
			return runServe(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.address, "address", "A", "", "Address to serve on (default 127.0.0.1)")
	flags.IntVarP(&opts.port, "port", "p", 0, "Port to serve on (default 5599)")
	flags.BoolVarP(&opts.noRecompile, "no-recompile", "R", false, "Serve the file as-is instead of compiling it")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to a typlive.json config file")
	flags.StringSliceVar(&opts.watch, "watch", nil, "Extra paths to watch for changes")
	flags.StringSliceVar(&opts.ignore, "ignore", nil, "Glob patterns to ignore while watching")
	flags.StringVar(&opts.compiler, "compiler", "", "Compiler executable (default typst)")
	flags.BoolVarP(&opts.open, "open", "o", false, "Open the browser on start")
	flags.BoolVar(&opts.noMetrics, "no-metrics", false, "Disable the /metrics endpoint")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	cmd.AddCommand(versionCmd())

	return cmd
}

// setupLogging installs a charmbracelet logger as the slog default.
func setupLogging(levelName string) error {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return errors.Newf(errors.CategoryCLI, "invalid log level %q", levelName).
			WithSuggestion("Use one of debug, info, warn, error")
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})
	slog.SetDefault(slog.New(logger))
	return nil
}

// printBanner prints the ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// errorMsg prints an error message.
func errorMsg(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "\033[31m✗\033[0m %s\n", fmt.Sprintf(format, args...))
}
