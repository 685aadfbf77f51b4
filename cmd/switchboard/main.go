package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"switchboard/internal/adapter/agents"
	"switchboard/internal/adapter/classifier"
	"switchboard/internal/adapter/journal"
	"switchboard/internal/adapter/steps"
	"switchboard/internal/domain"
	"switchboard/internal/infra/config"
	"switchboard/internal/infra/logger"
	"switchboard/internal/infra/tracer"
	"switchboard/internal/usecase/dispatch"
	"switchboard/internal/usecase/eventbus"
	"switchboard/internal/usecase/maintenance"
	"switchboard/internal/usecase/registry"
	"switchboard/internal/usecase/routing"
	"switchboard/internal/usecase/workflow"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	configPath := os.Getenv("SWITCHBOARD_CONFIG")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	command := ""
	if len(os.Args) >= 2 && !strings.HasPrefix(os.Args[1], "-") {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "":
		err = runInteractive(configPath)
	case "dispatch":
		err = runDispatch(configPath, os.Args[2:])
	case "rules":
		err = runRules(configPath)
	case "journal":
		err = runJournal(configPath)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'switchboard --help' for usage information.\n", command)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`switchboard - multi-agent request dispatch engine

USAGE:
    switchboard [COMMAND] [ARGS]

COMMANDS:
    dispatch PROMPT    Dispatch a single request and print the result
                       Flags: --file PATH attaches file content
    rules              List loaded routing rules and their statistics
    journal            Show recent dispatch journal entries

    (no command) - Interactive prompt loop

CONFIGURATION:
    Config file: ./config.yaml (override with SWITCHBOARD_CONFIG)
    Environment: SWITCHBOARD_* variables override config

EXAMPLES:
    switchboard                              # Interactive loop
    switchboard dispatch "refactor this" --file main.go
    switchboard rules
    switchboard journal`)
}

// engine bundles the wired components and their shutdown order.
type engine struct {
	orchestrator *dispatch.Orchestrator
	rules        *routing.Engine
	bus          *eventbus.Bus
	journal      domain.DispatchJournal
	scheduler    *maintenance.Scheduler
	watcher      *config.RuleWatcher
	logger       *slog.Logger
	logClose     func() error
	traceClose   func(context.Context) error
}

// buildEngine wires the full pipeline from configuration.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	log, logClose, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	traceClose, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logClose()
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	bus := eventbus.New(log)

	reg := registry.New(log)
	for _, agent := range []domain.Agent{
		agents.NewAnalyzer(),
		agents.NewRefactor(),
		agents.NewFormatter(),
		agents.NewChat(),
	} {
		if err := reg.Register(agent); err != nil {
			return nil, fmt.Errorf("register agent %s: %w", agent.Name(), err)
		}
	}

	rules := routing.NewEngine(log)
	var watcher *config.RuleWatcher
	if cfg.Rules.Path != "" {
		loaded, err := config.LoadRules(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		for _, rule := range loaded {
			if err := rules.AddRule(rule); err != nil {
				return nil, fmt.Errorf("add rule %s: %w", rule.Name, err)
			}
		}
		if cfg.Rules.Watch {
			watcher, err = config.WatchRules(cfg.Rules.Path, func(fresh []*domain.RoutingRule) {
				if err := rules.ReplaceRules(fresh); err != nil {
					log.Warn("rules reload rejected", "error", err)
					return
				}
				bus.Publish(context.Background(), domain.Event{
					Type:      domain.EventRulesReloaded,
					Timestamp: time.Now(),
				})
			}, log)
			if err != nil {
				return nil, fmt.Errorf("watch rules: %w", err)
			}
		}
	}

	flow := workflow.NewEngine(bus, log)
	for _, step := range []domain.WorkflowStep{
		steps.NewTrace(log),
		steps.NewLanguage(),
		steps.NewGuard(steps.GuardConfig{MaxContentBytes: cfg.Guard.MaxContentBytes}, log),
		steps.NewNotes(),
	} {
		if err := flow.RegisterStep(step); err != nil {
			return nil, fmt.Errorf("register step %s: %w", step.Name(), err)
		}
	}

	cls := classifier.NewBreaker(classifier.NewKeyword(log), classifier.BreakerConfig{
		MaxFailures: cfg.Classifier.BreakerMaxFailures,
		Timeout:     cfg.Classifier.BreakerTimeout,
		Interval:    cfg.Classifier.BreakerInterval,
	}, log)

	var jnl domain.DispatchJournal
	if cfg.Journal.Enabled {
		jnl, err = journal.New(cfg.Journal.Path, log)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}

	orchestrator := dispatch.New(cls, rules, flow, reg, bus, jnl, dispatch.Config{
		AgentRetries:  cfg.Dispatch.AgentRetries,
		RetryBackoff:  cfg.Dispatch.RetryBackoff,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
		Burst:         cfg.Dispatch.Burst,
	}, log)

	scheduler := maintenance.NewScheduler(log)
	if cfg.Maintenance.Enabled {
		scheduler.RegisterAction(maintenance.ActionStatsDecay,
			maintenance.NewStatsDecayAction(rules, bus))
		if err := scheduler.AddTask(maintenance.Task{
			Name:     "stats-decay",
			Schedule: cfg.Maintenance.StatsDecaySchedule,
			Action:   maintenance.ActionStatsDecay,
		}); err != nil {
			return nil, err
		}
		if jnl != nil {
			scheduler.RegisterAction(maintenance.ActionJournalPrune,
				maintenance.NewJournalPruneAction(jnl, cfg.Maintenance.JournalRetention, bus))
			if err := scheduler.AddTask(maintenance.Task{
				Name:     "journal-prune",
				Schedule: cfg.Maintenance.JournalPruneSchedule,
				Action:   maintenance.ActionJournalPrune,
			}); err != nil {
				return nil, err
			}
		}
		if err := scheduler.Start(ctx); err != nil {
			return nil, err
		}
	}

	return &engine{
		orchestrator: orchestrator,
		rules:        rules,
		bus:          bus,
		journal:      jnl,
		scheduler:    scheduler,
		watcher:      watcher,
		logger:       log,
		logClose:     logClose,
		traceClose:   traceClose,
	}, nil
}

// shutdown releases everything in reverse wiring order.
func (e *engine) shutdown(ctx context.Context) {
	if e.watcher != nil {
		e.watcher.Close()
	}
	e.scheduler.Stop()
	e.bus.Close()
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.logger.Warn("journal close failed", "error", err)
		}
	}
	if err := e.traceClose(ctx); err != nil {
		e.logger.Warn("tracer shutdown failed", "error", err)
	}
	e.logClose()
}

func runInteractive(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.shutdown(shutdownCtx)
	}()

	fmt.Println("switchboard ready. Type a prompt, or 'exit' to quit.")
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println("\nshutting down")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			prompt := strings.TrimSpace(line)
			if prompt == "" {
				continue
			}
			if prompt == "exit" || prompt == "quit" {
				return nil
			}

			result, err := eng.orchestrator.ProcessRequest(ctx, &domain.Request{
				Prompt:  prompt,
				Timeout: cfg.Dispatch.DefaultTimeout,
			})
			if err != nil {
				fmt.Printf("error: %v\n", err)
				continue
			}
			printResult(result)
		}
	}
}

func runDispatch(configPath string, args []string) error {
	var promptParts []string
	var filePath string
	for i := 0; i < len(args); i++ {
		if args[i] == "--file" && i+1 < len(args) {
			filePath = args[i+1]
			i++
			continue
		}
		promptParts = append(promptParts, args[i])
	}
	prompt := strings.Join(promptParts, " ")
	if prompt == "" {
		return fmt.Errorf("dispatch needs a prompt")
	}

	var content string
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		content = string(data)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg.Maintenance.Enabled = false
	cfg.Rules.Watch = false

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		eng.shutdown(shutdownCtx)
	}()

	result, err := eng.orchestrator.ProcessRequest(ctx, &domain.Request{
		Prompt:   prompt,
		FilePath: filePath,
		Content:  content,
		Timeout:  cfg.Dispatch.DefaultTimeout,
	})
	if err != nil {
		return err
	}
	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

func runRules(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Rules.Path == "" {
		fmt.Println("no rules file configured")
		return nil
	}
	rules, err := config.LoadRules(cfg.Rules.Path)
	if err != nil {
		return err
	}

	for _, rule := range rules {
		target := rule.TargetAgent
		if target == "" {
			target = "kind:" + string(rule.TargetKind)
		}
		state := "enabled"
		if !rule.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-30s priority=%-4d target=%-20s conditions=%d %s\n",
			rule.Name, rule.Priority, target, len(rule.Conditions), state)
	}
	return nil
}

func runJournal(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if !cfg.Journal.Enabled {
		fmt.Println("journal is disabled")
		return nil
	}

	jnl, err := journal.New(cfg.Journal.Path, slog.Default())
	if err != nil {
		return err
	}
	defer jnl.Close()

	records, err := jnl.Recent(context.Background(), 20)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("journal is empty")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  %-9s  %-10s  conf=%.2f  %s\n",
			rec.CreatedAt.Format(time.RFC3339), rec.Status, rec.AgentName,
			rec.Confidence, truncate(rec.Prompt, 60))
	}
	return nil
}

func printResult(result *domain.Result) {
	fmt.Printf("status:     %s\n", result.Status)
	fmt.Printf("agent:      %s (%s)\n", result.AgentName, result.AgentKind)
	fmt.Printf("intent:     %s (confidence %.2f", result.Intent, result.Confidence)
	if result.IsFallback {
		fmt.Print(", fallback")
	}
	fmt.Println(")")
	if tier := result.RoutingMetadata[domain.MetaTier]; tier != "" {
		fmt.Printf("tier:       %s\n", tier)
	}
	fmt.Printf("duration:   %s\n", result.Duration.Round(time.Millisecond))
	if result.Message != "" {
		fmt.Printf("\n%s\n", result.Message)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
