// Command easycache is an operational tool for the primitives in a shared
// store: inspect and break locks, manage Bloom filters, read or drop cache
// entries and push or drain queue topics.
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

	"go.uber.org/zap"

	"github.com/unkn0wn-root/easycache/config"
	ezzap "github.com/unkn0wn-root/easycache/log/zap"
	rstore "github.com/unkn0wn-root/easycache/store/redis"
)

const usage = `usage: easycache [global flags] <command> [flags] [args]

commands:
  lock <name>            acquire a lock (-hold, -wait)
  unlock <name>          release a lock
  bf-create <ns>         create a Bloom filter (-n, -p)
  bf-add <ns> item...    add items to a filter
  bf-check <ns> item...  test items against a filter
  bf-count <ns>          approximate number of items in a filter
  get <key>              read a cached string entry
  del <key>              invalidate a cache entry
  push <topic> <msg>     publish to a topic (-delay)
  pop <topic>            drain up to -n messages from a topic (-delayed)

global flags:
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "easycache:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("easycache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		cfgPath   string
		envPrefix string
		addr      string
		ns        string
	)
	fs.StringVar(&cfgPath, "config", "", "YAML config file (default: environment)")
	fs.StringVar(&envPrefix, "env-prefix", config.DefaultEnvPrefix, "environment variable prefix")
	fs.StringVar(&addr, "addr", "", "single redis address, overrides the config")
	fs.StringVar(&ns, "ns", "", "cache namespace, overrides the config")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := loadConfig(cfgPath, envPrefix)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if addr != "" {
		cfg.Redis.Mode = config.ModeSingle
		cfg.Redis.Addrs = []string{addr}
	}
	if ns != "" {
		cfg.Cache.Namespace = ns
	}

	zl, err := newZap(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = zl.Sync() }()

	st, err := rstore.Dial(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close(context.WithoutCancel(ctx)) }()

	a := &app{cfg: cfg, store: st, log: ezzap.New(zl), out: stdout, errOut: stderr}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

func loadConfig(path, prefix string) (config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load(prefix)
}

// newZap picks a production (json) or development (console) config.
func newZap(c config.Log) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	if c.Level != "" {
		lvl, err := zap.ParseAtomicLevel(c.Level)
		if err != nil {
			return nil, err
		}
		zc.Level = lvl
	}
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}
