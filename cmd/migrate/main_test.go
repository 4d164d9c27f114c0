package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

type recordingSchema struct {
	calls  []string
	state  postgres.MigrationState
	err    error
	status error
}

func (r *recordingSchema) MigrateUp(_ context.Context, steps int) error {
	r.calls = append(r.calls, "up:"+strings.Repeat("|", steps))
	return r.err
}

func (r *recordingSchema) MigrateDown(_ context.Context, steps int) error {
	r.calls = append(r.calls, "down:"+strings.Repeat("|", steps))
	return r.err
}

func (r *recordingSchema) MigrationStatus(context.Context) (postgres.MigrationState, error) {
	return r.state, r.status
}

func dsnEnv(key string) string {
	if key == envPostgresDSN {
		return " postgres://env/shop "
	}
	return ""
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  func(string) string
		want options
	}{
		{name: "defaults", env: dsnEnv, want: options{command: "up", dsn: "postgres://env/shop", timeout: defaultTimeout}},
		{name: "command", args: []string{"STATUS"}, env: dsnEnv, want: options{command: "status", dsn: "postgres://env/shop", timeout: defaultTimeout}},
		{
			name: "flags win over env",
			args: []string{"-dsn=postgres://flag/shop", "-steps=2", "-timeout=5s", "down"},
			env:  dsnEnv,
			want: options{command: "down", dsn: "postgres://flag/shop", steps: 2, timeout: 5 * time.Second},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseArgs(tt.args, tt.env)
			if err != nil {
				t.Fatalf("parseArgs: %v", err)
			}
			if got != tt.want {
				t.Fatalf("options = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseArgs_Rejects(t *testing.T) {
	noEnv := func(string) string { return "" }

	tests := map[string]struct {
		args []string
		env  func(string) string
		want string
	}{
		"no dsn":         {env: noEnv, want: envPostgresDSN},
		"unknown":        {args: []string{"sideways"}, env: dsnEnv, want: `unknown command "sideways"`},
		"two commands":   {args: []string{"up", "down"}, env: dsnEnv, want: "expected one command"},
		"negative steps": {args: []string{"-steps=-1"}, env: dsnEnv, want: "-steps"},
		"zero timeout":   {args: []string{"-timeout=0s"}, env: dsnEnv, want: "-timeout"},
		"bad flag":       {args: []string{"-force"}, env: dsnEnv, want: "force"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseArgs(tt.args, tt.env)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRun_Commands(t *testing.T) {
	state := postgres.MigrationState{Version: 2, Applied: 2, Pending: []string{"0003_outbox_lease"}}

	tests := []struct {
		command string
		steps   int
		calls   []string
	}{
		{command: "up", calls: []string{"up:"}},
		{command: "up", steps: 2, calls: []string{"up:||"}},
		{command: "down", calls: []string{"down:|"}},
		{command: "down", steps: 3, calls: []string{"down:|||"}},
		{command: "status"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			db := &recordingSchema{state: state}
			var out bytes.Buffer

			if err := run(context.Background(), db, options{command: tt.command, steps: tt.steps}, &out); err != nil {
				t.Fatalf("run: %v", err)
			}
			if !slices.Equal(db.calls, tt.calls) {
				t.Fatalf("calls = %v, want %v", db.calls, tt.calls)
			}
			if !strings.Contains(out.String(), "schema version 2, 2 applied, 1 pending") || !strings.Contains(out.String(), "pending: 0003_outbox_lease") {
				t.Fatalf("output = %q", out.String())
			}
		})
	}
}

func TestRun_PropagatesErrors(t *testing.T) {
	lock := errors.New("lock timeout")
	if err := run(context.Background(), &recordingSchema{err: lock}, options{command: "down"}, &bytes.Buffer{}); !errors.Is(err, lock) {
		t.Fatalf("down error = %v", err)
	}

	gone := errors.New("connection reset")
	if err := run(context.Background(), &recordingSchema{status: gone}, options{command: "status"}, &bytes.Buffer{}); !errors.Is(err, gone) {
		t.Fatalf("status error = %v", err)
	}
}

func TestRun_AgainstPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("STOREFRONT_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, dsn)
	if err != nil {
		t.Skipf("postgres unreachable: %v", err)
	}
	defer store.Close()

	var out bytes.Buffer
	for _, command := range []string{"status", "up", "down", "up"} {
		if err := run(ctx, store, options{command: command}, &out); err != nil {
			t.Fatalf("%s: %v", command, err)
		}
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if last := lines[len(lines)-1]; !strings.Contains(last, "0 pending") {
		t.Fatalf("schema must end fully migrated, last line %q", last)
	}
}

func TestMain_ExitsWithoutDSN(t *testing.T) {
	if os.Getenv("MIGRATE_EXIT_CHILD") == "1" {
		os.Args = []string{"migrate", "status"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestMain_ExitsWithoutDSN$")
	cmd.Env = append(os.Environ(), "MIGRATE_EXIT_CHILD=1", envPostgresDSN+"=")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	var exitErr *exec.ExitError
	if err := cmd.Run(); !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
		t.Fatalf("expected exit code 1, got %v", err)
	}
	if !strings.Contains(stderr.String(), "migrate: ") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}
