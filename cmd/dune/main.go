package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/duneagent/dune/agent"
	"github.com/duneagent/dune/agent/terminal"
	"github.com/duneagent/dune/config"
	"github.com/duneagent/dune/llm"
	"github.com/duneagent/dune/session"
	"github.com/duneagent/dune/tools"
	"github.com/duneagent/dune/tools/mcp"
)

func main() {
	llmFlag := flag.String("llm", "", "LLM backend: 'gemini', 'groq', 'anthropic', or 'bedrock' (defaults to the configured backend, then 'groq')")
	promptFlag := flag.String("prompt", "", "Run a single prompt and exit")
	yoloFlag := flag.Bool("yolo", false, "Automatically approve and execute all tool calls")
	clearCacheFlag := flag.Bool("clear-cache", false, "Clear the cached project ID and exit")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	flag.Parse()

	// A missing .env is fine; environment variables may come from anywhere.
	_ = godotenv.Load()

	color.New(color.FgMagenta, color.Bold).Println("Welcome to Dune ✨")

	if *clearCacheFlag {
		cache, err := session.NewCache()
		if err == nil {
			err = cache.Clear()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing cache: %+v\n", err)
			os.Exit(1)
		}
		color.Yellow("Cleared cached project ID.")
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	backend := *llmFlag
	if backend == "" {
		backend = cfg.LLMClient
	}
	if backend == "" {
		backend = "groq"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	endpoint, err := buildEndpoint(ctx, backend, cfg.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s backend: %+v\n", backend, err)
		os.Exit(1)
	}
	color.Green("Using %s LLM endpoint.", backend)

	registry := tools.NewRegistry(cfg)
	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(ctx, server.Name, server.Command, server.Args)
		if err != nil {
			fmt.Printf("Warning: could not start MCP server '%s': %v\n", server.Name, err)
			continue
		}
		defer client.Stop()
		client.RegisterAll(registry)
	}

	ts, err := cfg.GetToolset(*toolsetFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting toolset: %+v\n", err)
		os.Exit(1)
	}
	descriptors, err := registry.ActiveDescriptors(ts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error selecting toolset: %+v\n", err)
		os.Exit(1)
	}

	term := terminal.New()
	var approver agent.Approver
	if !*yoloFlag {
		approver = term
	}

	a := agent.New(endpoint, registry, agent.Options{
		Approver:       approver,
		Descriptors:    descriptors,
		MaxTurns:       cfg.MaxTurns,
		StreamMaxTurns: cfg.StreamMaxTurns,
	})
	color.Green("Agent initialized. Type 'exit' to quit.")

	initialPrompt := *promptFlag
	if initialPrompt == "" {
		initialPrompt = strings.Join(flag.Args(), " ")
	}

	if err := term.Run(ctx, a, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

// buildEndpoint constructs the backend named by the -llm flag. The gemini
// backend prefers an API key when one is present and otherwise falls back to
// OAuth credentials against the Code Assist API.
func buildEndpoint(ctx context.Context, backend, model string) (llm.Endpoint, error) {
	switch backend {
	case "groq":
		return llm.NewGroqEndpoint(model)
	case "gemini":
		if os.Getenv("GEMINI_API_KEY") != "" {
			return llm.NewGeminiEndpoint(ctx, model)
		}
		tokenSource, err := llm.LoadOAuthCredentials(ctx)
		if err != nil {
			return nil, err
		}
		cache, err := session.NewCache()
		if err != nil {
			return nil, err
		}
		return llm.NewCodeAssistEndpoint(ctx, model, tokenSource, cache)
	case "anthropic":
		return llm.NewAnthropicEndpoint(model)
	case "bedrock":
		return llm.NewBedrockEndpoint(ctx, model)
	default:
		return nil, fmt.Errorf("unknown LLM backend '%s': must be 'gemini', 'groq', 'anthropic', or 'bedrock'", backend)
	}
}
