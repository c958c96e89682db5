package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NewsGrinder/internal/app"
	"NewsGrinder/internal/config"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/usecase"
)

const closeTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.MaxStringLength)

	command, args := "summarize", os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "summarize", "watch", "add":
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want summarize, watch or add)\n", command)
		os.Exit(2)
	}

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	err = run(ctx, application, command, args)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if cerr := application.Close(closeCtx); cerr != nil {
		logger.Error("shutdown failed", "error", cerr)
	}

	if err != nil && ctx.Err() == nil {
		logger.Error("application stopped", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.Application, command string, args []string) error {
	switch command {
	case "summarize":
		return application.Run(ctx)
	case "watch":
		return application.Watch(ctx)
	case "add":
		fs := flag.NewFlagSet("add", flag.ContinueOnError)
		var opts usecase.AddOptions
		fs.StringVar(&opts.Topic, "topic", "", "topic to assign instead of the model's")
		fs.StringVar(&opts.Priority, "priority", "", "priority to assign instead of the model's")
		fs.StringVar(&opts.Title, "title", "", "translated title to assign instead of the model's")
		if err := fs.Parse(args); err != nil {
			return err
		}
		added, err := application.Add(ctx, fs.Args(), opts)
		for _, e := range added {
			fmt.Printf("#%d %s\n", e.ID, e.URL)
		}
		return err
	}
	return fmt.Errorf("unknown command %q", command)
}
