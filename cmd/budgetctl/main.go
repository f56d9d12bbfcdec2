// Command budgetctl manages the budgets of one user from the terminal.
//
// Usage:
//
//	budgetctl [-y] [-json] <command> [flags] [args]
//
// Commands: status, budgets, create, switch, delete, add, voice, archive,
// archives, history, forecast.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"homebudget/internal/cli"
	"homebudget/internal/config"
	"homebudget/internal/docstore"
	"homebudget/internal/identity"
	"homebudget/internal/log"
	"homebudget/internal/notify"
	"homebudget/internal/services"
	"homebudget/internal/voice"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidate((*config.Config).ValidateCLI)
	logger := cli.SetupLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res := cli.OpenBackend(ctx, logger, cfg)
	err := run(ctx, env{
		args:   os.Args[1:],
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
		store:  res.Store,
		userID: cfg.UserID,
		logger: logger,
	})
	if cerr := res.Cleanup(); cerr != nil {
		logger.Warn("Backend cleanup error", log.FieldError, cerr)
	}
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "budgetctl:", err)
		}
		os.Exit(exitCode(err))
	}
}

// env carries everything run needs from the process.
type env struct {
	args   []string
	in     io.Reader
	out    io.Writer
	errOut io.Writer
	store  docstore.Store
	userID string
	logger *log.Logger
	clock  func() time.Time
}

func (e env) now() func() time.Time {
	if e.clock != nil {
		return e.clock
	}
	return time.Now
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp), errors.Is(err, errUsage):
		return 2
	case errors.Is(err, services.ErrCancelled):
		return 3
	}
	return 1
}

var errUsage = errors.New("usage")

func run(ctx context.Context, e env) error {
	global := flag.NewFlagSet("budgetctl", flag.ContinueOnError)
	global.SetOutput(e.errOut)
	assumeYes := global.Bool("y", false, "answer yes to every confirmation")
	asJSON := global.Bool("json", false, "print results as JSON")
	global.Usage = func() {
		fmt.Fprintln(e.errOut, "usage: budgetctl [-y] [-json] <command> [flags] [args]")
		fmt.Fprintln(e.errOut, "commands:")
		for _, c := range commands {
			fmt.Fprintf(e.errOut, "  %-9s %s\n", c.name, c.help)
		}
		global.PrintDefaults()
	}
	if err := global.Parse(e.args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, ok := lookup(global.Arg(0))
	if !ok {
		global.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, global.Arg(0))
	}

	if e.logger == nil {
		e.logger = log.Discard()
	}
	session := services.NewSession(services.Options{
		Store:     e.store,
		Identity:  identity.Static(e.userID),
		Notifier:  notify.Func(printNotification(e.errOut)),
		Confirmer: &cli.PromptConfirmer{In: e.in, Out: e.errOut, Assume: *assumeYes},
		Logger:    e.logger,
		Clock:     e.now(),
	})
	defer session.Close()

	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	a := &app{
		session:  session,
		out:      e.out,
		errOut:   e.errOut,
		json:     *asJSON,
		now:      e.now(),
		keywords: voice.DefaultKeywords(),
	}
	return cmd.run(a, ctx, global.Args()[1:])
}

func printNotification(w io.Writer) func(context.Context, notify.Notification) {
	return func(_ context.Context, n notify.Notification) {
		fmt.Fprintf(w, "[%s] %s\n", n.Severity, n.Message)
	}
}
