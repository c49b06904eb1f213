package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"kakeibo/internal/cli"
	logfields "kakeibo/internal/log"
	"kakeibo/internal/notice"
)

func main() {
	direct := flag.Bool("direct", false, "use the configured DATA_BACKEND instead of the proxy")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(logfields.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	source := cli.SourceAPI
	if *direct {
		source = cli.SourceDirect
	}
	rt, err := cli.NewRuntime(ctx, cfg, logger, source)
	if err != nil {
		logger.Error("Failed to initialize ledger store", logfields.FieldError, err)
		os.Exit(1)
	}
	defer rt.Close()

	engine := notice.New(rt.Store, rt.Backend,
		notice.WithPublisher(rt.Bus),
		notice.WithLocation(cfg.Location()),
		notice.WithLogger(logger.Logger))
	unwatch := engine.Watch(rt.Bus)
	defer unwatch()

	a := &app{
		store:  rt.Store,
		engine: engine,
		out:    os.Stdout,
		now:    time.Now,
		loc:    cfg.Location(),
	}
	if err := a.run(ctx, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n%s", err, usage)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "kakeibo: %v\n", err)
		os.Exit(1)
	}
}
