package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/easycache"
	"github.com/unkn0wn-root/easycache/codec"
	"github.com/unkn0wn-root/easycache/config"
	"github.com/unkn0wn-root/easycache/queue"
	"github.com/unkn0wn-root/easycache/store"
)

// items per PutAll round trip in bf-add
const addChunk = 500

type app struct {
	cfg    config.Config
	store  store.Client
	log    easycache.Logger
	out    io.Writer
	errOut io.Writer
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "lock":
		return a.lock(ctx, args)
	case "unlock":
		return a.unlock(ctx, args)
	case "bf-create":
		return a.bfCreate(ctx, args)
	case "bf-add":
		return a.bfAdd(ctx, args)
	case "bf-check":
		return a.bfCheck(ctx, args)
	case "bf-count":
		return a.bfCount(ctx, args)
	case "get":
		return a.get(ctx, args)
	case "del":
		return a.del(ctx, args)
	case "push":
		return a.push(ctx, args)
	case "pop":
		return a.pop(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.errOut)
	return fs
}

// parse parses args and requires at least need positional arguments.
func parse(fs *flag.FlagSet, args []string, need int, what string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() < need {
		return nil, fmt.Errorf("%s: expected %s", fs.Name(), what)
	}
	return fs.Args(), nil
}

func (a *app) locker() (*easycache.Locker, error) {
	return easycache.NewLocker(a.store, easycache.LockerOptions{PollInterval: a.cfg.Lock.PollInterval, Logger: a.log})
}

func (a *app) filter() (*easycache.Filter, error) {
	return easycache.NewFilter(a.store, easycache.FilterOptions{Logger: a.log})
}

func (a *app) lock(ctx context.Context, args []string) error {
	fs := a.flags("lock")
	hold := fs.Duration("hold", 30*time.Second, "how long the lock is held before it expires")
	wait := fs.Duration("wait", 0, "keep retrying for up to this long")
	rest, err := parse(fs, args, 1, "<name>")
	if err != nil {
		return err
	}
	l, err := a.locker()
	if err != nil {
		return err
	}
	ok, err := l.AcquireSpin(ctx, rest[0], *hold, *wait)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(a.out, "%s: held by another owner\n", rest[0])
		return easycache.ErrLockUnavailable
	}
	fmt.Fprintf(a.out, "%s: acquired for %s\n", rest[0], *hold)
	return nil
}

func (a *app) unlock(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("unlock"), args, 1, "<name>")
	if err != nil {
		return err
	}
	l, err := a.locker()
	if err != nil {
		return err
	}
	released, err := l.Release(ctx, rest[0])
	if err != nil {
		return err
	}
	if released {
		fmt.Fprintf(a.out, "%s: released\n", rest[0])
	} else {
		fmt.Fprintf(a.out, "%s: not held\n", rest[0])
	}
	return nil
}

func (a *app) bfCreate(ctx context.Context, args []string) error {
	fs := a.flags("bf-create")
	n := fs.Int64("n", 1_000_000, "expected insertions")
	p := fs.Float64("p", 0.01, "false positive probability")
	rest, err := parse(fs, args, 1, "<ns>")
	if err != nil {
		return err
	}
	f, err := a.filter()
	if err != nil {
		return err
	}
	cfg, err := f.Create(ctx, rest[0], *n, *p)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: bitSize=%d k=%d expected=%d fpp=%g\n",
		rest[0], cfg.BitSize, cfg.NumHashFunctions, cfg.ExpectedInsertions, cfg.FPP)
	return nil
}

func (a *app) bfAdd(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("bf-add"), args, 2, "<ns> item...")
	if err != nil {
		return err
	}
	f, err := a.filter()
	if err != nil {
		return err
	}
	ns, items := rest[0], rest[1:]

	// warm the config once so the chunks don't race to fetch it
	if _, err := f.Config(ctx, ns); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(items); start += addChunk {
		chunk := items[start:min(start+addChunk, len(items))]
		g.Go(func() error { return f.PutAll(gctx, ns, chunk...) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: added %d\n", ns, len(items))
	return nil
}

func (a *app) bfCheck(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("bf-check"), args, 2, "<ns> item...")
	if err != nil {
		return err
	}
	f, err := a.filter()
	if err != nil {
		return err
	}
	for _, it := range rest[1:] {
		ok, err := f.MightContain(ctx, rest[0], it)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "%s\t%v\n", it, ok)
	}
	return nil
}

func (a *app) bfCount(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("bf-count"), args, 1, "<ns>")
	if err != nil {
		return err
	}
	f, err := a.filter()
	if err != nil {
		return err
	}
	n, err := f.ApproximateCount(ctx, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: ~%d\n", rest[0], n)
	return nil
}

func (a *app) strings() (*easycache.Aside[string], error) {
	return easycache.NewAside(a.store, easycache.AsideOptions[string]{
		Codec:      codec.String{},
		Namespace:  a.cfg.Cache.Namespace,
		DefaultTTL: a.cfg.Cache.DefaultTTL,
		NullTTL:    a.cfg.Cache.NullTTL,
		Logger:     a.log,
	})
}

func (a *app) get(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("get"), args, 1, "<key>")
	if err != nil {
		return err
	}
	c, err := a.strings()
	if err != nil {
		return err
	}
	v, ok, err := c.Get(ctx, rest[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "(nil)")
		return nil
	}
	fmt.Fprintln(a.out, v)
	return nil
}

func (a *app) del(ctx context.Context, args []string) error {
	rest, err := parse(a.flags("del"), args, 1, "<key>")
	if err != nil {
		return err
	}
	c, err := a.strings()
	if err != nil {
		return err
	}
	removed, err := c.Invalidate(ctx, rest[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: removed=%v\n", rest[0], removed)
	return nil
}

func (a *app) push(ctx context.Context, args []string) error {
	fs := a.flags("push")
	delay := fs.Duration("delay", 0, "deliver after this delay")
	rest, err := parse(fs, args, 2, "<topic> <msg>")
	if err != nil {
		return err
	}
	q, err := queue.New(a.store, queue.Options{Logger: a.log})
	if err != nil {
		return err
	}
	if *delay > 0 {
		return q.PushDelayed(ctx, rest[0], []byte(rest[1]), *delay)
	}
	return q.Push(ctx, rest[0], []byte(rest[1]))
}

func (a *app) pop(ctx context.Context, args []string) error {
	fs := a.flags("pop")
	n := fs.Int("n", 10, "maximum messages to drain")
	delayed := fs.Bool("delayed", false, "drain due messages from the delayed topic")
	rest, err := parse(fs, args, 1, "<topic>")
	if err != nil {
		return err
	}
	q, err := queue.New(a.store, queue.Options{BatchSize: *n, Logger: a.log})
	if err != nil {
		return err
	}
	show := func(_ context.Context, msg []byte) error {
		_, err := fmt.Fprintln(a.out, string(msg))
		return err
	}
	if *delayed {
		_, err = q.PollDelayed(ctx, rest[0], show)
	} else {
		_, err = q.Poll(ctx, rest[0], show)
	}
	return err
}
