package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"openclaw/internal/config"
	"openclaw/internal/logger"
)

var log = logger.Named("main")

func main() {
	logger.Configure()
	if logFile, _, err := logger.SetupFile(""); err != nil {
		log.Warnf("failed to initialize log file: %v", err)
	} else {
		defer logFile.Close()
	}

	root, rest, err := parseRootArgs(os.Args[1:])
	if err != nil {
		fatalf("parse args: %v", err)
	}
	if len(rest) > 0 {
		switch rest[0] {
		case "sessions":
			sessionsMain(root, rest[1:])
			return
		case "providers":
			providersMain(root, rest[1:])
			return
		case "chat":
			rest = rest[1:]
		}
	}

	chatMain(root, rest)
}

// fatalf reports a fatal error on the terminal as well as the log file.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	log.Errorf(format, args...)
	os.Exit(1)
}

type rootArgs struct {
	cfgPath   string
	overrides []string
}

func parseRootArgs(args []string) (rootArgs, []string, error) {
	fs := flag.NewFlagSet("openclaw", flag.ContinueOnError)
	var root rootArgs
	var overrides stringSlice
	fs.StringVar(&root.cfgPath, "config", "", "Path to config file (default ~/.openclaw/config.toml)")
	fs.Var(&overrides, "c", "Override config value key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return rootArgs{}, nil, err
	}
	root.overrides = overrides
	return root, fs.Args(), nil
}

func loadConfig(root rootArgs) config.Config {
	cfg, err := config.Load(root.cfgPath)
	if err != nil {
		fatalf("failed to load config: %v", err)
	}
	return config.ApplyKVOverrides(cfg, root.overrides)
}

// interruptibleContext cancels on the first SIGINT and force-exits on the
// second, so a stuck stream can always be abandoned.
func interruptibleContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted. Press Ctrl+C again to force quit.")
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
