// Команда migrate управляет схемой PostgreSQL сервиса заказов.
//
//	migrate [-dsn=...] [-steps=N] up|down|status
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

const (
	envPostgresDSN = "STOREFRONT_POSTGRES_DSN"
	defaultTimeout = 30 * time.Second
)

// schema реализуется *postgres.Store.
type schema interface {
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

type options struct {
	command string
	dsn     string
	steps   int
	timeout time.Duration
}

func main() {
	_ = godotenv.Load()

	opts, err := parseArgs(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn, postgres.WithApplicationName("storefront-migrate"))
	if err != nil {
		fail("connect: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, opts, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func parseArgs(args []string, getenv func(string) string) (options, error) {
	opts := options{command: "up"}

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN, defaults to $"+envPostgresDSN)
	fs.IntVar(&opts.steps, "steps", 0, "how many migrations to apply (0 = all) or roll back (0 = one)")
	fs.DurationVar(&opts.timeout, "timeout", defaultTimeout, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	switch fs.NArg() {
	case 0:
	case 1:
		opts.command = strings.ToLower(fs.Arg(0))
	default:
		return options{}, fmt.Errorf("expected one command, got %q", fs.Args())
	}
	if opts.command != "up" && opts.command != "down" && opts.command != "status" {
		return options{}, fmt.Errorf("unknown command %q (want up, down or status)", opts.command)
	}

	if opts.dsn = strings.TrimSpace(opts.dsn); opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if opts.dsn == "" {
		return options{}, fmt.Errorf("-dsn or %s is required", envPostgresDSN)
	}
	if opts.steps < 0 {
		return options{}, errors.New("-steps must be >= 0")
	}
	if opts.timeout <= 0 {
		return options{}, errors.New("-timeout must be > 0")
	}
	return opts, nil
}

func run(ctx context.Context, db schema, opts options, out io.Writer) error {
	switch opts.command {
	case "up":
		if err := db.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("up: %w", err)
		}
	case "down":
		if err := db.MigrateDown(ctx, max(opts.steps, 1)); err != nil {
			return fmt.Errorf("down: %w", err)
		}
	}

	state, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	printState(out, opts.command, state)
	return nil
}

func printState(out io.Writer, command string, state postgres.MigrationState) {
	_, _ = fmt.Fprintf(out, "%-6s schema version %d, %d applied, %d pending\n",
		command, state.Version, state.Applied, len(state.Pending))
	for _, label := range state.Pending {
		_, _ = fmt.Fprintln(out, "       pending:", label)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "migrate: "+format+"\n", args...)
	os.Exit(1)
}
