package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"HotkeyChat/internal/backend"
	"HotkeyChat/internal/chatbot"
	"HotkeyChat/internal/config"
	"HotkeyChat/internal/hotkey"
	"HotkeyChat/internal/ledger"
	"HotkeyChat/internal/session"
	"HotkeyChat/internal/telemetry"
	"HotkeyChat/internal/terminal"
)

// flags holds command line overrides. Only flags the user actually set are
// applied on top of the config file.
type flags struct {
	configPath   string
	backend      string
	model        string
	baseURL      string
	systemPrompt string
	timeout      time.Duration
	logDir       string
	ledger       string
	debug        bool
	telemetry    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	def := config.Default()

	rootCmd := &cobra.Command{
		Use:           "hotkeychat",
		Short:         "Terminal chat client with global hotkeys",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", config.DefaultPath(), "Path to TOML config file")
	pf.StringVar(&f.backend, "backend", def.Backend, "LLM backend ("+strings.Join(config.Backends, "|")+")")
	pf.StringVar(&f.model, "model", "", "Model name (default depends on backend)")
	pf.StringVar(&f.baseURL, "base-url", "", "Override the backend endpoint")
	pf.StringVar(&f.systemPrompt, "system-prompt", def.SystemPrompt, "System prompt seeding the conversation")
	pf.DurationVar(&f.timeout, "timeout", def.Timeout, "Per-request timeout")
	pf.StringVar(&f.logDir, "log-dir", def.LogDir, "Directory for logs, traces and metrics")
	pf.StringVar(&f.ledger, "ledger", def.Ledger, "SQLite exchange ledger path (empty disables)")
	pf.BoolVar(&f.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&f.telemetry, "telemetry", def.Telemetry, "Export traces and metrics to the log dir")

	rootCmd.AddCommand(newModelsCmd(&f), newExchangesCmd(&f))
	return rootCmd
}

// loadConfig layers defaults, the config file and explicitly set flags
func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return cfg, err
	}

	set := cmd.Flags().Changed
	if set("backend") {
		cfg.Backend = f.backend
	}
	if set("model") {
		cfg.Model = f.model
	}
	if set("base-url") {
		cfg.BaseURL = f.baseURL
	}
	if set("system-prompt") {
		cfg.SystemPrompt = f.systemPrompt
	}
	if set("timeout") {
		cfg.Timeout = f.timeout
	}
	if set("log-dir") {
		cfg.LogDir = f.logDir
	}
	if set("ledger") {
		cfg.Ledger = f.ledger
	}
	if set("debug") {
		cfg.Debug = f.debug
	}
	if set("telemetry") {
		cfg.Telemetry = f.telemetry
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runChat(ctx context.Context, cfg config.Config) error {
	if err := cfg.ResolveCredential(); err != nil {
		return err
	}
	keymap, err := hotkey.ParseKeymap(cfg.ExitKeys, cfg.ActionKeys)
	if err != nil {
		return fmt.Errorf("invalid keymap: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return err
	}
	defer closeLog()

	tracer, meter := telemetry.Noop()
	if cfg.Telemetry {
		var shutdown func()
		tracer, meter, shutdown, err = telemetry.InitTelemetry(ctx, cfg.LogDir)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	var recorder chatbot.Recorder
	if cfg.Ledger != "" {
		l, err := ledger.Open(cfg.Ledger)
		if err != nil {
			return err
		}
		defer l.Close()
		recorder = l
	}

	completer, err := backend.New(ctx, cfg, backend.Options{
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	})
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}

	sess := session.New(cfg.Backend, cfg.ModelName())
	convo := session.NewContext(cfg.SystemPrompt)
	flag := &session.CancelFlag{}

	fd := int(os.Stdin.Fd())
	restore, raw, err := terminal.EnableRaw(fd)
	if err != nil {
		return err
	}
	defer func() {
		if err := restore(); err != nil {
			logger.Error("failed to restore terminal", "error", err)
		}
	}()

	console := terminal.NewConsole(os.Stdout, raw, true)
	opts := hotkey.Options{Keymap: keymap, Logger: logger}
	if raw {
		opts.Echo = console
	}
	listener := hotkey.NewListener(os.Stdin, flag, opts)
	go listener.Run()

	ctrl, err := chatbot.NewController(chatbot.Deps{
		Session:  sess,
		Context:  convo,
		Backend:  completer,
		Input:    listener,
		Events:   listener,
		Flag:     flag,
		Output:   console,
		Recorder: recorder,
		Logger:   logger,
		Tracer:   tracer,
		Meter:    meter,
	})
	if err != nil {
		return err
	}

	printBanner(console, sess, cfg, raw)
	return ctrl.Run(ctx)
}

func printBanner(c *terminal.Console, sess *session.Session, cfg config.Config, raw bool) {
	fmt.Fprintln(c, "Welcome to hotkeychat!")
	fmt.Fprintf(c, "Session: %s\n", sess.ID)
	fmt.Fprintf(c, "Backend: %s (%s)\n", sess.Backend, sess.Model)
	if raw {
		c.Notice(fmt.Sprintf("Press %s to exit, %s to ping.",
			strings.Join(cfg.ExitKeys, " or "), strings.Join(cfg.ActionKeys, ", ")))
	} else {
		c.Notice("Input is not a terminal; hotkeys need a TTY. End input to exit.")
	}
	fmt.Fprintln(c)
}
