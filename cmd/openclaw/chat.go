package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"openclaw/internal/agent"
	"openclaw/internal/config"
	"openclaw/internal/llm"
	"openclaw/internal/models"
	"openclaw/internal/session"
	"openclaw/internal/tools"
)

type chatArgs struct {
	prompt       string
	sessionName  string
	interactive  bool
	model        string
	provider     string
	apiKey       string
	systemPrompt string
	baseURL      string
	noTools      bool
	maxTokens    int
	verbose      bool
}

func newChatFlagSet(name string) (*flag.FlagSet, *chatArgs) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	args := &chatArgs{}

	fs.StringVar(&args.prompt, "p", "", "Prompt to send (one-shot mode)")
	fs.StringVar(&args.sessionName, "session", "", "Session name to resume")
	fs.StringVar(&args.sessionName, "s", "", "Alias for --session")
	fs.BoolVar(&args.interactive, "interactive", false, "Interactive REPL mode")
	fs.BoolVar(&args.interactive, "i", false, "Alias for --interactive")
	fs.StringVar(&args.model, "model", "", "Model override (e.g. sonnet, gpt-4o)")
	fs.StringVar(&args.model, "m", "", "Alias for --model")
	fs.StringVar(&args.provider, "provider", "", "Provider override (anthropic, openai, ollama)")
	fs.StringVar(&args.apiKey, "api-key", "", "API key override")
	fs.StringVar(&args.systemPrompt, "system-prompt", "", "System prompt override")
	fs.StringVar(&args.baseURL, "base-url", "", "Base URL override for the provider API")
	fs.BoolVar(&args.noTools, "no-tools", false, "Disable tool use")
	fs.IntVar(&args.maxTokens, "max-tokens", 0, "Max tokens for the response")
	fs.BoolVar(&args.verbose, "verbose", false, "Show streaming thinking and tool details")
	fs.BoolVar(&args.verbose, "v", false, "Alias for --verbose")

	return fs, args
}

func chatMain(root rootArgs, argv []string) {
	fs, args := newChatFlagSet("openclaw chat")
	if err := fs.Parse(argv); err != nil {
		fatalf("parse args: %v", err)
	}
	if args.prompt == "" && fs.NArg() > 0 {
		args.prompt = strings.Join(fs.Args(), " ")
	}

	cfg := loadConfig(root)
	if args.model != "" {
		cfg.Model = args.model
	}
	if args.provider != "" {
		cfg.Provider = args.provider
	}
	if args.apiKey != "" {
		cfg.APIKey = args.apiKey
	}
	if args.systemPrompt != "" {
		cfg.SystemPrompt = args.systemPrompt
	}
	if args.baseURL != "" {
		cfg.BaseURL = args.baseURL
	}
	if args.maxTokens > 0 {
		cfg.MaxTokens = args.maxTokens
	}
	if args.verbose {
		cfg.Verbose = true
	}
	cfg.Model = models.ResolveAlias(cfg.Model)
	cfg.APIKey = resolveAPIKey(cfg)

	if cfg.Provider != "ollama" && cfg.APIKey == "" {
		fatalf("no API key configured for provider %q: set %s, use --api-key, or add api_key to %s",
			cfg.Provider, apiKeyEnvVar(cfg.Provider), config.DefaultPath())
	}
	if err := cfg.Validate(); err != nil {
		fatalf("invalid configuration: %v", err)
	}

	provider, err := llm.New(llm.Options{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	})
	if err != nil {
		fatalf("%v", err)
	}

	profile := cfg.Tools.Profile
	if args.noTools {
		profile = "none"
	}
	registry := tools.NewRegistry(tools.PolicyFromProfile(profile), tools.ExecPolicy{
		Security:  cfg.Tools.Exec.Security,
		Allowlist: cfg.Tools.Exec.Allowlist,
	})

	sessionsDir, err := session.Dir(cfg.SessionsDir)
	if err != nil {
		fatalf("resolving sessions directory: %v", err)
	}
	name := args.sessionName
	if name == "" {
		name = uuid.NewString()
	}
	sess, err := session.LoadOrCreate(sessionsDir, name)
	if err != nil {
		fatalf("opening session: %v", err)
	}
	if cwd, err := os.Getwd(); err == nil {
		sess.SetWorkdir(cwd)
	}

	if args.interactive {
		runREPL(&cfg, provider, sess, registry)
		return
	}

	if args.prompt == "" {
		fatalf("prompt is required in non-interactive mode (use -i for interactive)")
	}

	pushUserInput(sess, args.prompt)

	ctx, stop := interruptibleContext()
	defer stop()

	result, err := runTurn(ctx, &cfg, provider, sess, registry)
	if err != nil {
		fatalf("%v", err)
	}
	printTurnSummary(cfg.Model, result)
	if err := sess.Save(); err != nil {
		log.Warnf("failed to save session: %v", err)
	}
}

// pushUserInput records the prompt, attaching any images it references.
func pushUserInput(sess *session.Session, input string) {
	paths := agent.DetectImagePaths(input)
	if len(paths) == 0 {
		sess.AddUserMessage(input)
		return
	}
	blocks := []agent.ContentBlock{agent.TextBlock(input)}
	for _, path := range paths {
		block, err := agent.LoadImageBlock(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "\x1b[33m  Warning: could not load image '%s': %v\x1b[0m\n", path, err)
			continue
		}
		fmt.Fprintf(os.Stderr, "\x1b[2m  Attached image: %s\x1b[0m\n", path)
		blocks = append(blocks, block)
	}
	sess.PushMessage(agent.Message{Role: agent.RoleUser, Content: blocks})
}

func runTurn(ctx context.Context, cfg *config.Config, provider agent.Provider, sess *session.Session, registry *tools.Registry) (agent.RunResult, error) {
	return agent.Run(ctx, provider, sess, registry, agent.RunOptions{
		Model:          cfg.Model,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
		ThinkingBudget: cfg.ThinkingBudget,
		SystemPrompt: func() string {
			return agent.BuildSystemPrompt(cfg.SystemPrompt, registry)
		},
		Hooks: displayHooks(cfg.Verbose),
	})
}

func displayHooks(verbose bool) agent.RunHooks {
	return agent.RunHooks{
		OnText: func(delta string) {
			fmt.Print(delta)
		},
		OnThinking: func(delta string) {
			if verbose {
				fmt.Fprintf(os.Stderr, "\x1b[2m%s\x1b[0m", delta)
			}
		},
		OnToolStart: func(name, id string) {
			fmt.Fprintf(os.Stderr, "\n\x1b[2m  ⏺ %s\x1b[0m\n", name)
		},
		OnToolResult: func(name string, result agent.ToolResult, elapsed time.Duration) {
			marker := "✓"
			if result.IsError {
				marker = "✗"
			}
			fmt.Fprintf(os.Stderr, "\x1b[2m  %s %s (%s) %s\x1b[0m\n",
				marker, name, elapsed.Round(time.Millisecond), agent.TruncatePreview(result.Content, 80))
		},
		OnNotice: func(msg string) {
			fmt.Fprintf(os.Stderr, "\x1b[33m  %s\x1b[0m\n", msg)
		},
	}
}

func printTurnSummary(model string, result agent.RunResult) {
	fmt.Println()
	if result.ToolCalls == 0 && result.Usage.InputTokens == 0 {
		return
	}
	plural := "s"
	if result.ToolCalls == 1 {
		plural = ""
	}
	costStr := ""
	if cost, ok := models.EstimateCost(model, result.Usage.InputTokens, result.Usage.OutputTokens); ok {
		costStr = " ~" + models.FormatCost(cost)
	}
	fmt.Fprintf(os.Stderr, "\x1b[2m(%d tool call%s, %d in / %d out tokens%s)\x1b[0m\n",
		result.ToolCalls, plural, result.Usage.InputTokens, result.Usage.OutputTokens, costStr)
}

// resolveAPIKey falls back to the provider's conventional env var and
// treats an unresolved ${VAR} reference as unset.
func resolveAPIKey(cfg config.Config) string {
	key := cfg.APIKey
	if strings.HasPrefix(key, "${") {
		key = ""
	}
	if key == "" {
		key = os.Getenv(apiKeyEnvVar(cfg.Provider))
	}
	return key
}

func apiKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
