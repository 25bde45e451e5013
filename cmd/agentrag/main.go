package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agentic-rag/internal/adapter/agent"
	"agentic-rag/internal/adapter/api"
	"agentic-rag/internal/adapter/audit"
	"agentic-rag/internal/adapter/retrieval"
	"agentic-rag/internal/domain"
	"agentic-rag/internal/infra/config"
	"agentic-rag/internal/infra/logger"
	"agentic-rag/internal/infra/metrics"
	"agentic-rag/internal/infra/tracer"
	"agentic-rag/internal/usecase/eventbus"
	"agentic-rag/internal/usecase/orchestration"
	"agentic-rag/internal/usecase/resilience"
	"agentic-rag/internal/usecase/scheduling"
	"agentic-rag/internal/usecase/workflow"
)

func main() {
	// Handle help flag first
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "query":
		if err := runQuery(); err != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", err)
			os.Exit(1)
		}
	case "encrypt":
		if err := runEncrypt(); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt: %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(); err != nil {
			fmt.Fprintf(os.Stderr, "validate: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'agentrag --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`agentrag - Agent orchestration layer for retrieval-augmented generation

USAGE:
    agentrag [COMMAND] [FLAGS]

COMMANDS:
    query       Run a single query through the orchestrator and print the result
                Usage: agentrag query "your question here"
    encrypt     Encrypt a secret for use in the config file
                Usage: agentrag encrypt <value> (reads passphrase from AGENTRAG_CONFIG_KEY)
    validate    Load and validate the config file, then exit

    (no command) - Run the orchestrator daemon with existing config

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: AGENTRAG_* variables override config

EXAMPLES:
    agentrag                                    # Run with config.yaml
    agentrag --config /etc/agentrag/config.yaml # Run with custom config
    agentrag query "compare BERT and GPT"       # One-shot local orchestration
    agentrag validate                           # Check the config without starting
    AGENTRAG_CONFIG_KEY=... agentrag encrypt sk-...  # Encrypt an API key`)
}

func configPath() string {
	// Check --config flag in os.Args.
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("AGENTRAG_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// components bundles everything initOrchestration wires together.
type components struct {
	registry *orchestration.Registry
	monitor  *orchestration.Monitor
	breakers *resilience.BreakerGroup
	orch     *orchestration.Orchestrator
	store    *audit.Store
	recorder *metrics.Recorder
}

// initOrchestration wires the agent registry, resilience layer, and
// orchestrator facade from config. The returned cleanup closes the audit
// store and must be deferred by the caller.
func initOrchestration(cfg *config.Config, log *slog.Logger, bus domain.EventBus) (*components, func(), error) {
	// Metrics & monitor
	var recorder *metrics.Recorder
	var opsRecorder orchestration.OpsRecorder
	if cfg.Metrics.Enabled {
		recorder = metrics.NewRecorder()
		opsRecorder = recorder
	}
	monitor := orchestration.NewMonitor(log, opsRecorder)

	// Resilience layer
	breakers := resilience.NewBreakerGroup(resilience.BreakerConfig{
		FailureThreshold:  cfg.Breaker.FailureThreshold,
		SuccessThreshold:  cfg.Breaker.SuccessThreshold,
		RecoveryTimeout:   cfg.Breaker.RecoveryTimeout,
		SlowCallThreshold: cfg.Breaker.SlowCallThreshold,
	}, log, bus)
	retrier := resilience.NewRetrier(resilience.RetryConfig{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
		MaxDelay:   cfg.Retry.MaxDelay,
	}, log)

	// Retrieval backend & agents
	retriever := retrieval.NewClient(retrieval.Config{
		BaseURL:     cfg.Retrieval.BaseURL,
		APIKey:      cfg.Retrieval.APIKey,
		ConnTimeout: cfg.Retrieval.ConnTimeout,
		RespTimeout: cfg.Retrieval.RespTimeout,
	}, log)

	registry := orchestration.NewRegistry(log, bus)
	for _, a := range []domain.Agent{
		agent.NewDocumentSearch(retriever, log),
		agent.NewComparison(retriever, log),
		agent.NewSynthesis(retriever, log),
	} {
		if err := registry.Register(a); err != nil {
			return nil, nil, fmt.Errorf("register agent %s: %w", a.Name(), err)
		}
	}

	// Audit trail (optional)
	var store *audit.Store
	if cfg.Audit.Enabled {
		var err error
		store, err = audit.NewStore(cfg.Audit.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("audit store: %w", err)
		}
	}
	cleanup := func() {
		if store != nil {
			if err := store.Close(); err != nil {
				log.Error("audit store close error", "error", err)
			}
		}
	}

	// Orchestration facade
	fallback := orchestration.NewFallbackManager(breakers, retrier, retriever, cfg.Orchestrator.AgentTimeout, log, bus)
	engine := workflow.NewEngine(breakers, cfg.Workflow.StepTimeout, log, bus)
	selector := orchestration.NewSelector(registry, cfg.Orchestrator.SelectionThreshold, log)
	balancer := orchestration.NewLoadBalancer(orchestration.Strategy(cfg.Balancer.Strategy), log)

	opts := orchestration.OrchestratorOptions{
		MultiAgent:     cfg.Orchestrator.MultiAgent,
		RequestsPerMin: cfg.Orchestrator.RequestsPerMin,
		Burst:          cfg.Orchestrator.Burst,
	}
	if store != nil {
		opts.DecisionSink = store
	}
	orch := orchestration.NewOrchestrator(registry, selector, balancer, fallback, engine, monitor, opts, log, bus)

	return &components{
		registry: registry,
		monitor:  monitor,
		breakers: breakers,
		orch:     orch,
		store:    store,
		recorder: recorder,
	}, cleanup, nil
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Event bus
	bus := eventbus.New(log)
	defer bus.Close()

	// 4. Orchestration stack
	comp, cleanup, err := initOrchestration(cfg, log, bus)
	if err != nil {
		return err
	}
	defer cleanup()

	// 5. Maintenance scheduler
	var sched *scheduling.Scheduler
	if cfg.Scheduler.Enabled {
		schedLog := logger.Component(log, "scheduler")
		sched = scheduling.NewScheduler(schedLog)
		sched.RegisterAction(scheduling.ActionHealthSweep, scheduling.NewHealthSweep(comp.registry, comp.monitor, comp.breakers, bus, schedLog))
		if comp.store != nil {
			retention, err := time.ParseDuration(cfg.Audit.Retention)
			if err != nil {
				return fmt.Errorf("audit retention: %w", err)
			}
			sched.RegisterAction(scheduling.ActionAuditPrune, scheduling.NewAuditPrune(comp.store, retention, schedLog))
		}
		for _, tc := range cfg.Scheduler.Tasks {
			if tc.Action == string(scheduling.ActionAuditPrune) && comp.store == nil {
				log.Warn("skipping audit prune task, audit trail disabled", "task", tc.Name)
				continue
			}
			if err := sched.AddTask(scheduling.ScheduledTask{
				Name:     tc.Name,
				Schedule: tc.Schedule,
				Action:   scheduling.ScheduledAction(tc.Action),
				OneShot:  tc.OneShot,
			}); err != nil {
				return fmt.Errorf("scheduler task %s: %w", tc.Name, err)
			}
		}
	}

	// 6. HTTP API
	var decisions api.DecisionReader
	if comp.store != nil {
		decisions = comp.store
	}
	var metricsHandler http.Handler
	if comp.recorder != nil {
		metricsHandler = comp.recorder.Handler()
	}
	srv := api.NewServer(comp.orch, comp.registry, comp.monitor, decisions, metricsHandler, cfg.Server, logger.Component(log, "api"))

	// 7. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if sched != nil {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server: %w", err)
	}

	log.Info("agentrag started",
		"addr", srv.Addr(),
		"agents", comp.registry.Len(),
		"multi_agent", cfg.Orchestrator.MultiAgent,
		"audit", comp.store != nil,
		"metrics", cfg.Metrics.Enabled,
	)

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	log.Info("agentrag stopped")
	return nil
}

// runQuery answers a single query from the command line, bypassing the HTTP
// server and scheduler.
func runQuery() error {
	var parts []string
	skipNext := false
	for _, arg := range os.Args[2:] {
		if skipNext {
			skipNext = false
			continue
		}
		if arg == "--config" {
			skipNext = true
			continue
		}
		if strings.HasPrefix(arg, "-") {
			continue
		}
		parts = append(parts, arg)
	}
	query := strings.TrimSpace(strings.Join(parts, " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "Usage: agentrag query \"your question here\"")
		os.Exit(1)
	}

	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	// One-shot runs log to stderr so stdout stays clean JSON.
	cfg.Logger.Output = "stderr"

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	bus := eventbus.New(log)
	defer bus.Close()

	comp, cleanup, err := initOrchestration(cfg, log, bus)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	result, err := comp.orch.Orchestrate(ctx, query, domain.QueryContext{
		SessionID: fmt.Sprintf("cli-%d", time.Now().UnixNano()),
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runEncrypt() error {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "Usage: agentrag encrypt <value>")
		os.Exit(1)
	}
	passphrase := os.Getenv("AGENTRAG_CONFIG_KEY")
	if passphrase == "" {
		return fmt.Errorf("AGENTRAG_CONFIG_KEY must be set")
	}
	encrypted, err := config.EncryptValue(os.Args[2], passphrase)
	if err != nil {
		return err
	}
	fmt.Printf("enc:%s\n", encrypted)
	return nil
}

func runValidate() error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	fmt.Printf("config ok: server=%s agents_threshold=%.2f audit=%t scheduler=%t\n",
		cfg.Server.Addr, cfg.Orchestrator.SelectionThreshold, cfg.Audit.Enabled, cfg.Scheduler.Enabled)
	return nil
}
