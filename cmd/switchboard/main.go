package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"switchboard-ai/internal/adapter/llm"
	"switchboard-ai/internal/adapter/store"
	"switchboard-ai/internal/domain"
	"switchboard-ai/internal/infra/config"
	"switchboard-ai/internal/infra/logger"
	"switchboard-ai/internal/infra/tracer"
	"switchboard-ai/internal/usecase"
	"switchboard-ai/internal/usecase/routing"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	configPath string
	user       string
	policy     string
}

func parseFlags() cliFlags {
	var flags cliFlags
	flag.StringVar(&flags.configPath, "config", defaultConfigPath(), "path to config file")
	flag.StringVar(&flags.user, "user", "local", "user name for conversation ownership")
	flag.StringVar(&flags.policy, "policy", "", "override routing policy (similarity, pipeline, supervisor)")
	flag.Parse()
	return flags
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "switchboard.yaml"
	}
	return filepath.Join(home, ".switchboard", "switchboard.yaml")
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if flags.policy != "" {
		cfg.Routing.Policy = flags.policy
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdownTracer(context.Background())

	if dir := filepath.Dir(cfg.Store.Path); cfg.Store.Path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := seedAgents(ctx, db, cfg, log); err != nil {
		return err
	}

	registry := routing.NewRegistry(db, log)
	if err := registry.Reload(ctx); err != nil {
		return err
	}

	provider, err := buildProvider(cfg, log)
	if err != nil {
		return err
	}

	turns, err := buildTurnService(cfg, registry, provider, db, log)
	if err != nil {
		return err
	}

	log.Info("switchboard started",
		"policy", cfg.Routing.Policy,
		"agents", len(registry.Agents()),
		"store", cfg.Store.Path,
	)
	return repl(ctx, cfg, turns, registry, flags.user)
}

// seedAgents loads config-declared agents into the store on first start. An
// empty store with no seeds gets a general-purpose default so the first turn
// never fails with no agents.
func seedAgents(ctx context.Context, db *store.SQLiteStore, cfg *config.Config, log *slog.Logger) error {
	existing, err := db.ListAgents(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seeds := cfg.Agents
	if len(seeds) == 0 {
		seeds = []config.AgentSeed{{
			Name:         "General Assistant",
			Description:  "general questions, conversation, and everyday tasks",
			SystemPrompt: "You are a helpful general-purpose assistant.",
		}}
	}

	for _, seed := range seeds {
		agent := domain.AgentProfile{
			Name:         seed.Name,
			Description:  seed.Description,
			SystemPrompt: seed.SystemPrompt,
			Model:        seed.Model,
			Temperature:  seed.Temperature,
			MaxTokens:    seed.MaxTokens,
		}
		if err := db.AddAgent(ctx, agent); err != nil {
			return fmt.Errorf("seed agent %q: %w", seed.Name, err)
		}
	}
	log.Info("seeded agents", "count", len(seeds))
	return nil
}

// buildProvider creates the default LLM provider and applies the configured
// resilience wrappers.
func buildProvider(cfg *config.Config, log *slog.Logger) (domain.LLMProvider, error) {
	var pc *config.ProviderConfig
	for i := range cfg.LLM.Providers {
		if cfg.LLM.Providers[i].Name == cfg.LLM.DefaultProvider {
			pc = &cfg.LLM.Providers[i]
			break
		}
	}
	if pc == nil {
		return nil, fmt.Errorf("default provider %q not configured", cfg.LLM.DefaultProvider)
	}

	var provider domain.LLMProvider
	switch pc.Type {
	case "openai", "":
		provider = llm.NewOpenAIProvider(*pc, log)
	case "bedrock":
		var err error
		provider, err = createBedrockProvider(*pc, log)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}

	if cfg.LLM.RateLimit.Enabled {
		provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RateLimit, log)
	}
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}
	return provider, nil
}

// buildTurnService assembles the routing policy and the turn orchestrator.
func buildTurnService(cfg *config.Config, registry *routing.Registry, provider domain.LLMProvider, db *store.SQLiteStore, log *slog.Logger) (*usecase.TurnService, error) {
	deps := usecase.TurnDeps{
		Registry:       registry,
		Recommender:    routing.NewRecommender(registry, cfg.Routing.DefaultAgent, log),
		Provider:       provider,
		ContextBuilder: usecase.NewContextBuilder(cfg.Routing.MaxHistory),
		Classifier:     usecase.NewErrorClassifier(),
		Conversations:  db,
		Logger:         log,
	}

	policy := usecase.Policy(cfg.Routing.Policy)
	switch policy {
	case usecase.PolicyPipeline:
		stages := make([]routing.Stage, len(cfg.Routing.Pipeline))
		for i, sc := range cfg.Routing.Pipeline {
			stages[i] = routing.Stage{Agent: sc.Agent, HaltSentinels: sc.HaltSentinels}
		}
		pipeline, err := routing.NewPipeline(stages)
		if err != nil {
			return nil, err
		}
		deps.Pipeline = pipeline

	case usecase.PolicySupervisor:
		supProfile, err := registry.Get(cfg.Routing.Supervisor)
		if err != nil {
			return nil, fmt.Errorf("supervisor agent: %w", err)
		}
		var members []string
		for _, a := range registry.Agents() {
			if a.Name != supProfile.Name {
				members = append(members, a.Name)
			}
		}
		supervisor, err := routing.NewSupervisor(supProfile, members, provider, log)
		if err != nil {
			return nil, err
		}
		deps.Supervisor = supervisor
	}

	return usecase.NewTurnService(deps, policy, cfg.Routing.SwitchThreshold, cfg.Store.SaveAttempts), nil
}

// repl runs the interactive conversation loop until EOF or interrupt.
func repl(ctx context.Context, cfg *config.Config, turns *usecase.TurnService, registry *routing.Registry, user string) error {
	thread := turns.NewThread(user)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	fmt.Println("switchboard ready. Type a message, /agents to list agents, /new for a fresh conversation, /quit to exit.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/new":
			thread = turns.NewThread(user)
			fmt.Println("started a new conversation")
			continue
		case line == "/agents":
			for _, a := range registry.Agents() {
				marker := " "
				if a.Name == thread.CurrentAgent {
					marker = "*"
				}
				fmt.Printf("%s %s: %s\n", marker, a.Name, registry.ExpertiseSummary(a.Name))
			}
			continue
		}

		turnCtx := ctx
		var cancel context.CancelFunc
		if cfg.Routing.TurnTimeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, cfg.Routing.TurnTimeout)
		}
		result, err := turns.HandleTurn(turnCtx, thread, line)
		if cancel != nil {
			cancel()
		}
		if err != nil {
			fmt.Printf("error: %v\n", err)
			if ctx.Err() != nil {
				return nil
			}
			continue
		}

		if result.Switched {
			fmt.Printf("Switched to %s (%s)\n", result.AgentName, registry.ExpertiseSummary(result.AgentName))
		}
		fmt.Printf("[%s] %s\n", result.AgentName, result.Reply)
	}
}
