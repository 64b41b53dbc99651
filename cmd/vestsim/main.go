// Command vestsim replays a vesting scenario against an in-memory VM running the token ledger
// and vesting engine, then prints the resulting grant report.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: vestsim run --config scenario.yaml [--postgres-dsn DSN] [--format text|yaml] [--log-level LEVEL] [--parallelism N]`

func main() {
	if len(os.Args) < 2 || os.Args[1] != "run" {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.String("config", "", "path to the scenario YAML file")
	fs.String("postgres-dsn", "", "index the final state into this postgres database")
	fs.String("format", "", "output format: text or yaml")
	fs.String("log-level", "", "logrus level")
	fs.Int("parallelism", 0, "concurrent beneficiary loads when building the report")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, fs); err != nil {
		log.WithError(err).Fatal("vestsim failed")
	}
}

func run(ctx context.Context, fs *flag.FlagSet) error {
	settings, scenario, err := loadConfig(fs)
	if err != nil {
		return err
	}
	level, err := log.ParseLevel(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	sim, err := NewSimulator(ctx, scenario, log.WithField("scenario", settings.ConfigFile))
	if err != nil {
		return err
	}
	result, err := sim.Run(ctx, settings.Parallelism)
	if err != nil {
		return err
	}

	if settings.PostgresDSN != "" {
		run, err := sim.Index(ctx, settings.PostgresDSN)
		if err != nil {
			return err
		}
		result.IndexRun = run
	}

	return writeResult(os.Stdout, result, settings.Format)
}
