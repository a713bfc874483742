package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"rowgraph/internal/app"
	"rowgraph/internal/config"
)

var (
	// Version is set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
)

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitChanges = 2
)

const usage = `Usage: rowgraph <command> [flags] [args]

Commands:
  diff [FROM TO]     Compare two schema locations and print the change set
  hydrate [QUERY]    Run a query document and print the hydrated object graph
  version            Print version and exit

Schema locations are files or directories of YAML/JSON documents, s3://bucket/key
(or prefix/), and mysql://, postgres:// or sqlite:// database URLs.

Run "rowgraph <command> --help" for the command flags.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitError
	}

	command, rest := args[0], args[1:]
	switch command {
	case "version", "--version":
		fmt.Fprintf(stdout, "rowgraph %s (%s)\n", Version, Commit)
		return exitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	case config.CommandDiff, config.CommandHydrate:
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", command, usage)
		return exitError
	}

	if err := runCommand(ctx, command, rest, stdout, stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		if errors.Is(err, app.ErrChangesFound) {
			return exitChanges
		}
		slog.Error("rowgraph "+command+" failed", slog.String("error", err.Error()))
		return exitError
	}
	return exitOK
}

func runCommand(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("rowgraph "+command, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.DefineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := applyPositional(fs, command); err != nil {
		return err
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Observability.ServiceVersion == "" {
		cfg.Observability.ServiceVersion = Version
	}

	validationResult := cfg.ValidateCommand(command)
	for _, warn := range validationResult.Warnings {
		slog.Warn("configuration warning",
			slog.String("field", warn.Field),
			slog.String("message", warn.Message),
			slog.String("hint", warn.Hint),
		)
	}
	if validationResult.HasErrors() {
		for _, err := range validationResult.Errors {
			slog.Error("configuration error",
				slog.String("field", err.Field),
				slog.String("message", err.Message),
				slog.String("hint", err.Hint),
			)
		}
		return fmt.Errorf("configuration validation failed")
	}

	logger, loggerProvider, err := app.InitLogger(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	a, err := app.New(cfg, logger, app.WithOutput(stdout))
	if err != nil {
		if loggerProvider != nil {
			_ = loggerProvider.Shutdown(context.Background(), logger.Logger)
		}
		return err
	}
	a.AttachLoggerProvider(loggerProvider)
	defer func() { _ = a.Shutdown(context.Background()) }()

	if err := a.Init(ctx); err != nil {
		return err
	}

	switch command {
	case config.CommandDiff:
		if cfg.Diff.Watch {
			return a.Watch(ctx)
		}
		_, err := a.Diff(ctx)
		return err
	default:
		return a.Hydrate(ctx)
	}
}

// applyPositional maps positional arguments onto their flags. Flags given
// explicitly win.
func applyPositional(fs *pflag.FlagSet, command string) error {
	var keys []string
	switch command {
	case config.CommandDiff:
		keys = []string{"diff.from", "diff.to"}
	case config.CommandHydrate:
		keys = []string{"hydrate.query"}
	}

	positional := fs.Args()
	if len(positional) > len(keys) {
		return fmt.Errorf("%s takes at most %d arguments, got %d", command, len(keys), len(positional))
	}
	for i, value := range positional {
		if fs.Changed(keys[i]) {
			return fmt.Errorf("%s given both as argument and as --%s", keys[i], keys[i])
		}
		if err := fs.Set(keys[i], value); err != nil {
			return err
		}
	}
	return nil
}
