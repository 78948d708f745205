package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/firi193/lucid/internal/app/migrate"
	"github.com/firi193/lucid/pkg/config"
	"github.com/firi193/lucid/pkg/logger"
)

func main() {
	command := flag.String("command", "up", "migrate command (up|status|version|down)")
	timeout := flag.Duration("timeout", time.Minute, "command timeout")
	target := flag.Int64("target", 0, "target version for down command (optional)")
	dir := flag.String("dir", "", "migrations directory (default DB_MIGRATIONS_DIR)")
	flag.Parse()

	cfg := config.LoadAPIConfig()
	if strings.TrimSpace(*dir) != "" {
		cfg.MigrationsDir = *dir
	}
	log := logger.New("migrate", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	runner, err := migrate.New(pool, cfg.MigrationsDir, log)
	if err != nil {
		pool.Close()
		log.Error("failed to configure migration runner", "error", err)
		os.Exit(1)
	}
	defer runner.Close()

	if err := run(ctx, runner, *command, *target); err != nil {
		log.Error("migration command failed", "command", *command, "error", err)
		runner.Close()
		os.Exit(1)
	}
	log.Info("migration command completed", "command", *command)
}

func run(ctx context.Context, runner *migrate.Runner, command string, target int64) error {
	switch command {
	case "up":
		return runner.Ensure(ctx)
	case "down":
		return runner.Down(ctx, target)
	case "version":
		version, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	case "status":
		states, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
		for _, st := range states {
			state, appliedAt := "pending", "-"
			if st.Applied {
				state, appliedAt = "applied", st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", st.Version, state, appliedAt, st.Path)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unsupported command %q", command)
	}
}
