package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"openclaw/internal/agent"
	"openclaw/internal/config"
	"openclaw/internal/history"
	"openclaw/internal/models"
	"openclaw/internal/session"
	"openclaw/internal/tools"
)

// runREPL drives the interactive loop. Each turn streams to the terminal
// and the session is saved after every exchange so an abrupt exit loses
// nothing.
func runREPL(cfg *config.Config, provider agent.Provider, sess *session.Session, registry *tools.Registry) {
	fmt.Printf("openclaw — %s via %s. Type /help for commands, exit to quit.\n", cfg.Model, cfg.Provider)

	hist, err := history.NewDefault()
	if err != nil {
		log.Warnf("prompt history unavailable: %v", err)
	}

	var total agent.Usage
	totalToolCalls := 0

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println()
				return
			}
			log.Errorf("reading input: %v", err)
			return
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}
		if strings.HasPrefix(input, "/") {
			if handleSlashCommand(input, cfg, provider, sess, hist, total, totalToolCalls) {
				return
			}
			continue
		}

		if hist != nil {
			if err := hist.Append(input); err != nil {
				log.Debugf("recording prompt history: %v", err)
			}
		}
		pushUserInput(sess, input)

		ctx, stop := interruptibleContext()
		result, err := runTurn(ctx, cfg, provider, sess, registry)
		stop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "\x1b[31mError: %v\x1b[0m\n", err)
			continue
		}
		total.Add(result.Usage)
		totalToolCalls += result.ToolCalls
		printTurnSummary(cfg.Model, result)

		if err := sess.Save(); err != nil {
			log.Warnf("failed to save session: %v", err)
		}
	}
}

// handleSlashCommand returns true when the REPL should exit.
func handleSlashCommand(input string, cfg *config.Config, provider agent.Provider, sess *session.Session, hist *history.Store, total agent.Usage, toolCalls int) bool {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Print(`Commands:
  /help           Show this help
  /new, /reset    Clear the conversation
  /status         Show session and context status
  /compact        Summarize older messages to free context
  /model [name]   Show or switch the model
  /usage          Show cumulative token usage
  /think [level]  Set thinking level (off, low, medium, high)
  /verbose        Toggle verbose output
  /history        Show recent prompts
  /info           Show configuration details
  exit, quit      Leave the REPL
`)
	case "/new", "/reset":
		sess.Clear()
		if err := sess.Save(); err != nil {
			log.Warnf("failed to save session: %v", err)
		}
		fmt.Println("Conversation cleared.")
	case "/status":
		msgs := sess.Messages()
		used := agent.EstimateMessagesTokens(msgs)
		limit := models.ContextLimit(cfg.Model)
		fmt.Printf("Session: %s\nMessages: %d\nContext: ~%d / %d tokens (%d%%)\n",
			sess.Path(), len(msgs), used, limit, used*100/limit)
	case "/compact":
		before := len(sess.Messages())
		ctx, stop := interruptibleContext()
		compacted := agent.CompactMessages(ctx, provider, sess.Messages(), cfg.Model)
		stop()
		sess.ReplaceMessages(compacted)
		if err := sess.Save(); err != nil {
			log.Warnf("failed to save session: %v", err)
		}
		fmt.Printf("Compacted %d messages into %d.\n", before, len(compacted))
	case "/model":
		if arg == "" {
			fmt.Printf("Current model: %s\n", cfg.Model)
			break
		}
		cfg.Model = models.ResolveAlias(arg)
		fmt.Printf("Model set to %s.\n", cfg.Model)
	case "/usage":
		costStr := ""
		if cost, ok := models.EstimateCost(cfg.Model, total.InputTokens, total.OutputTokens); ok {
			costStr = " ~" + models.FormatCost(cost)
		}
		fmt.Printf("Cumulative: %d tool calls, %d in / %d out tokens%s\n",
			toolCalls, total.InputTokens, total.OutputTokens, costStr)
	case "/think":
		if arg == "" {
			fmt.Printf("Thinking level: %s\n", budgetToThinkingLevel(cfg.ThinkingBudget))
			break
		}
		budget, ok := thinkingLevelToBudget(arg)
		if !ok {
			fmt.Println("Unknown level. Use off, low, medium, or high.")
			break
		}
		cfg.ThinkingBudget = budget
		fmt.Printf("Thinking level set to %s.\n", budgetToThinkingLevel(budget))
	case "/verbose":
		cfg.Verbose = !cfg.Verbose
		fmt.Printf("Verbose: %v\n", cfg.Verbose)
	case "/history":
		if hist == nil {
			fmt.Println("Prompt history unavailable.")
			break
		}
		recent, err := hist.Recent(20)
		if err != nil {
			fmt.Printf("Could not read history: %v\n", err)
			break
		}
		if len(recent) == 0 {
			fmt.Println("No prompt history yet.")
			break
		}
		for _, text := range recent {
			fmt.Printf("  %s\n", agent.TruncatePreview(text, 100))
		}
	case "/info":
		keyState := "not set"
		if cfg.APIKey != "" {
			keyState = "set"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "(default)"
		}
		fmt.Printf("Provider: %s\nModel: %s\nBase URL: %s\nAPI key: %s\nTool profile: %s\nExec security: %s\nSession: %s\n",
			cfg.Provider, cfg.Model, baseURL, keyState, cfg.Tools.Profile, cfg.Tools.Exec.Security, sess.Path())
	default:
		fmt.Printf("Unknown command %s. Type /help for commands.\n", cmd)
	}
	return false
}

func thinkingLevelToBudget(level string) (int, bool) {
	switch strings.ToLower(level) {
	case "off", "none":
		return 0, true
	case "low":
		return 1024, true
	case "medium", "med":
		return 4096, true
	case "high":
		return 16384, true
	default:
		return 0, false
	}
}

func budgetToThinkingLevel(budget int) string {
	switch {
	case budget <= 0:
		return "off"
	case budget <= 1024:
		return "low"
	case budget <= 4096:
		return "medium"
	default:
		return "high"
	}
}
