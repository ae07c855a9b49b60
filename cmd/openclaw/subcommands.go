package main

import (
	"flag"
	"fmt"
	"os"

	"openclaw/internal/session"
)

func sessionsMain(root rootArgs, argv []string) {
	fs := flag.NewFlagSet("openclaw sessions", flag.ExitOnError)
	showAll := fs.Bool("all", false, "List sessions from every working directory")
	if err := fs.Parse(argv); err != nil {
		fatalf("parse args: %v", err)
	}

	cfg := loadConfig(root)
	dir, err := session.Dir(cfg.SessionsDir)
	if err != nil {
		fatalf("resolving sessions directory: %v", err)
	}
	cwd, _ := os.Getwd()

	records, err := session.List(dir, *showAll, cwd)
	if err != nil {
		fatalf("listing sessions: %v", err)
	}
	if len(records) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, rec := range records {
		workdir := rec.Workdir
		if workdir == "" {
			workdir = "-"
		}
		fmt.Printf("%-36s  %3d messages  %s  %s\n",
			rec.Name, len(rec.Messages), rec.Updated.Format("2006-01-02 15:04"), workdir)
	}
}

func providersMain(root rootArgs, argv []string) {
	fs := flag.NewFlagSet("openclaw providers", flag.ExitOnError)
	if err := fs.Parse(argv); err != nil {
		fatalf("parse args: %v", err)
	}

	cfg := loadConfig(root)
	active := cfg.Provider

	for _, name := range []string{"anthropic", "openai", "ollama"} {
		marker := " "
		if name == active {
			marker = "*"
		}
		keyState := "no key"
		if name == "ollama" {
			keyState = "no key needed"
		} else if keyForProvider(cfg.APIKey, cfg.Provider, name) != "" {
			keyState = "key set"
		}
		fmt.Printf("%s %-10s %s\n", marker, name, keyState)
	}
	fmt.Printf("\nActive model: %s\n", cfg.Model)
	if cfg.BaseURL != "" {
		fmt.Printf("Base URL: %s\n", cfg.BaseURL)
	}
}

// keyForProvider reports the key that would be used for the named provider:
// the configured key when it is the active provider, else the conventional
// env var.
func keyForProvider(configured, active, name string) string {
	if name == active && configured != "" {
		return configured
	}
	return os.Getenv(apiKeyEnvVar(name))
}
