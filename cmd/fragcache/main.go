package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/goforj/fragcache"
	"github.com/goforj/fragcache/config"
)

type envKey struct{}

// env is the state shared by all commands of one invocation.
type env struct {
	out   io.Writer
	log   *zap.Logger
	cache *fragcache.Cache
	close func() error
}

func envFromContext(ctx context.Context) *env {
	return ctx.Value(envKey{}).(*env)
}

// openCache prepares configuration, logging and the cache after the command
// line has been parsed.
func openCache(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	e := envFromContext(ctx)
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return ctx, fmt.Errorf("unable to prepare configuration: %w", err)
		}
		cfg = loaded
	}
	if cmd.Bool("debug") {
		cfg.Logging.Level = "debug"
	}
	e.log = cfg.Logger()

	cache, closeFn, err := cfg.Open(ctx, e.log)
	if err != nil {
		return ctx, fmt.Errorf("unable to open cache: %w", err)
	}
	e.cache = cache
	e.close = closeFn
	e.log.Debug("Program started", zap.Strings("args", cmd.Args().Slice()), zap.String("driver", string(cache.Driver())))
	return ctx, nil
}

func closeCache(ctx context.Context, _ *cli.Command) (err error) {
	e := envFromContext(ctx)
	if e.close != nil {
		if er := e.close(); er != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close cache: %w", er))
		}
	}
	if e.log != nil {
		_ = e.log.Sync()
	}
	return err
}

func runInvalidate(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	n, err := e.cache.DeleteCaches(ctx, cmd.StringSlice("key")...)
	fmt.Fprintln(e.out, n)
	return err
}

func runPattern(ctx context.Context, cmd *cli.Command) error {
	e := envFromContext(ctx)
	for _, key := range cmd.StringSlice("key") {
		fmt.Fprintln(e.out, e.cache.Keys().BuildPattern(key))
	}
	return nil
}

func runFlush(ctx context.Context, _ *cli.Command) error {
	return envFromContext(ctx).cache.Flush(ctx)
}

func newApp() *cli.Command {
	keyFlag := &cli.StringSliceFlag{Name: "key", Aliases: []string{"k"}, Required: true, Usage: "logical `KEY` (repeatable)"}
	return &cli.Command{
		Name:            "fragcache",
		Usage:           "out-of-band maintenance for the fragment cache",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (TOML or YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "log at debug level"},
		},
		Commands: []*cli.Command{
			{
				Name:   "invalidate",
				Usage:  "Deletes every fragment stored under the given logical keys and prints the count",
				Before: openCache,
				After:  closeCache,
				Action: runInvalidate,
				Flags:  []cli.Flag{keyFlag},
			},
			{
				Name:   "pattern",
				Usage:  "Prints the key prefix each logical key invalidates",
				Before: openCache,
				After:  closeCache,
				Action: runPattern,
				Flags:  []cli.Flag{keyFlag},
			},
			{
				Name:   "flush",
				Usage:  "Removes every entry from the configured store",
				Before: openCache,
				After:  closeCache,
				Action: runFlush,
			},
		},
	}
}

func run(ctx context.Context, out io.Writer, args []string) error {
	ctx = context.WithValue(ctx, envKey{}, &env{out: out})
	return newApp().Run(ctx, args)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fragcache: %v\n", err)
		os.Exit(1)
	}
}
