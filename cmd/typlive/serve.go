package main

import (
	"context"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/typlive/typlive/internal/config"
	"github.com/typlive/typlive/internal/errors"
	"github.com/typlive/typlive/internal/preview"
)

type serveOptions struct {
	file        string
	address     string
	port        int
	noRecompile bool
	configPath  string
	watch       []string
	ignore      []string
	compiler    string
	open        bool
	noMetrics   bool
	logLevel    string
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		if err := setupLogging(cfg.LogLevel); err != nil {
			return err
		}
	}

	if !cfg.NoRecompile {
		if _, err := exec.LookPath(cfg.Compiler.Command); err != nil {
			errorMsg("%s is not installed or not in PATH", cfg.Compiler.Command)
			info("Install Typst from https://github.com/typst/typst/releases")
			return errors.New("T110").Wrap(err)
		}
	}

	printBanner()
	info("document  %s", cfg.Filename)
	info("artifact  %s", cfg.ArtifactPath())
	info("url       %s", cfg.URL())
	cmd.Println()

	server := preview.NewServer(preview.ServerOptions{
		Config: cfg,
		OnBuildComplete: func(result preview.BuildResult) {
			if result.Success {
				success("Compiled in %s", result.Duration.Round(time.Millisecond))
				return
			}
			errors.Fprint(os.Stderr, result.Error)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OpenBrowser {
		go func() {
			select {
			case <-server.Ready():
				openURL("http://" + server.Addr())
			case <-ctx.Done():
			}
		}()
	}

	return server.Start(ctx)
}

// loadConfig reads the config file, if any, and applies flags on top.
func loadConfig(cmd *cobra.Command, opts serveOptions) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		var wd string
		if wd, err = os.Getwd(); err != nil {
			return nil, errors.Newf(errors.CategoryCLI, "cannot determine working directory").Wrap(err)
		}
		cfg, err = config.LoadOrDefault(wd)
	}
	if err != nil {
		return nil, err
	}

	applyFlags(cmd, cfg, opts)
	return cfg, nil
}

// applyFlags overrides cfg with every flag set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	flags := cmd.Flags()

	if opts.file != "" {
		cfg.Filename = absPath(opts.file)
	}
	if flags.Changed("address") {
		cfg.Address = opts.address
	}
	if flags.Changed("port") {
		cfg.Port = opts.port
	}
	if flags.Changed("no-recompile") {
		cfg.NoRecompile = opts.noRecompile
	}
	if flags.Changed("watch") {
		for _, p := range opts.watch {
			cfg.Watch = append(cfg.Watch, absPath(p))
		}
	}
	if flags.Changed("ignore") {
		cfg.Ignore = append(cfg.Ignore, opts.ignore...)
	}
	if flags.Changed("compiler") {
		cfg.Compiler.Command = opts.compiler
	}
	if flags.Changed("open") {
		cfg.OpenBrowser = opts.open
	}
	if flags.Changed("no-metrics") {
		cfg.DisableMetrics = opts.noMetrics
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// openURL opens a URL in the default browser.
func openURL(url string) {
	var cmd *exec.Cmd

	switch {
	case runtime.GOOS == "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	case commandExists("xdg-open"):
		cmd = exec.Command("xdg-open", url)
	case commandExists("open"):
		cmd = exec.Command("open", url)
	default:
		return
	}

	_ = cmd.Start()
}

// commandExists checks if a command exists in PATH.
func commandExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
