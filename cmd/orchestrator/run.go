package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/config"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/logging"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/loop"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/notify"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/plan"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/recovery"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/router"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/internal/taskstore"
	"github.com/xXKillerNoobYT/copilot-orchestration-extension-sub014/pkg/models"
)

var (
	runPlanPath      string
	runWatch         bool
	runMaxIterations int
	runDryRun        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestration loop over a task plan",
	Long: `Run the orchestration loop: load tasks from a YAML plan, assign
ready tasks to agent slots each tick, and keep going until the backlog
drains or a signal arrives.

With --watch, the plan file is monitored and tasks added to it while
the loop runs are picked up without a restart.

With --dry-run, the dependency-resolved execution order is printed and
nothing is scheduled.`,
	RunE: runLoop,
}

func init() {
	runCmd.Flags().StringVar(&runPlanPath, "plan", "", "Task plan YAML file (required)")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Watch the plan file for new tasks")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", -1, "Override loop.max_iterations (-1 = use config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the execution order and exit")
	runCmd.MarkFlagRequired("plan")
}

func runLoop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runMaxIterations >= 0 {
		cfg.Loop.MaxIterations = runMaxIterations
	}

	logger, err := logging.New(cfg.Log.Path)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	store := taskstore.New(cfg.Scheduler.MaxConcurrent, taskstore.WithLogger(logger.Log))

	tasks, err := plan.Load(runPlanPath)
	if err != nil {
		return err
	}
	if err := store.AddAll(tasks); err != nil {
		return fmt.Errorf("load plan into store: %w", err)
	}
	fmt.Printf("Loaded %d task(s) from %s\n", len(tasks), runPlanPath)

	if runDryRun {
		return printExecutionOrder(store)
	}

	rtr := router.New(cfg.Router.Capacity, cfg.Router.AckTimeout)

	var notifier recovery.Notifier = recovery.NopNotifier{}
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, notify.WithLogger(logger.Log))
	}
	mgr := recovery.New(cfg.Recovery.MaxRetries, recovery.Exponential{Base: cfg.Recovery.BackoffBase}, notifier,
		recovery.WithLogger(logger.Log))

	l := loop.New(store, rtr, loop.Options{
		PollInterval:      cfg.Loop.PollInterval,
		MaxIterations:     cfg.Loop.MaxIterations,
		AutoAssign:        cfg.Loop.AutoAssign,
		DeadlockThreshold: cfg.Loop.DeadlockThreshold,
		Logf:              logger.Log,
	})

	// Assignments that pass their ack deadline are treated as timeout
	// failures: the recovery manager decides retry or escalate, and the
	// store transition follows its decision.
	unsubscribe := l.OnStateChange(func(e loop.Event) {
		if e.Type != loop.EventWarning || e.TaskID == "" {
			return
		}
		handleTimeout(store, rtr, mgr, l, e.TaskID)
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := l.Start(ctx); err != nil {
		return err
	}

	if runWatch {
		watcher, err := plan.Watch(runPlanPath, logger.Log)
		if err != nil {
			return fmt.Errorf("watch plan: %w", err)
		}
		defer watcher.Close()
		go func() {
			for batch := range watcher.Tasks() {
				if err := store.AddAll(batch); err != nil {
					logger.Log("[run] add watched tasks: %v", err)
					continue
				}
				fmt.Printf("Picked up %d new task(s) from %s\n", len(batch), runPlanPath)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	waitForDrain(store, l, sigCh)

	l.Stop()
	printSummary(store, l)
	return nil
}

// waitForDrain blocks until the backlog drains, the loop stops on its
// own, or a shutdown signal arrives.
func waitForDrain(store *taskstore.Store, l *loop.Loop, sigCh <-chan os.Signal) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			fmt.Printf("\nReceived %s, shutting down...\n", sig)
			return
		case <-ticker.C:
			if !l.Summary().Running {
				return
			}
			if !store.Stats().Active() {
				return
			}
		}
	}
}

// handleTimeout runs a timed-out assignment through the recovery
// manager and applies its decision to the store and router.
func handleTimeout(store *taskstore.Store, rtr *router.Router, mgr *recovery.Manager, l *loop.Loop, taskID string) {
	failure := models.TaskFailure{
		TaskID:    taskID,
		Error:     "assignment not acknowledged before deadline",
		Type:      models.ErrorTypeTimeout,
		Timestamp: time.Now(),
	}

	result := mgr.HandleFailure(failure)
	switch result.Action {
	case models.RecoveryRetry:
		rtr.Complete(taskID)
		if err := store.Fail(taskID, failure.Error); err != nil {
			return
		}
		if err := store.Retry(taskID); err != nil {
			return
		}
	case models.RecoveryEscalate:
		rtr.Complete(taskID)
		store.Fail(taskID, result.Message)
		l.RecordCompletion(taskID, false)
	default:
		// Investigate: leave the assignment in place, the report is in
		// the manager's history.
	}
}

func printExecutionOrder(store *taskstore.Store) error {
	order, err := store.ExecutionOrder()
	if err != nil {
		return fmt.Errorf("resolve execution order: %w", err)
	}
	fmt.Println("Execution order:")
	for i, id := range order {
		t := store.Get(id)
		fmt.Printf("  %2d. %s — %s (priority %d)\n", i+1, id, t.Title, t.Priority)
	}
	return nil
}

func printSummary(store *taskstore.Store, l *loop.Loop) {
	stats := store.Stats()
	summary := l.Summary()

	fmt.Println()
	fmt.Printf("Iterations: %d, assignments: %d\n", summary.Iteration, summary.Processed)
	fmt.Printf("  %s %d completed\n", color.GreenString("✓"), stats.Completed)
	if stats.Failed > 0 {
		fmt.Printf("  %s %d failed\n", color.RedString("✗"), stats.Failed)
	}
	if stats.Blocked > 0 {
		fmt.Printf("  %s %d blocked\n", color.YellowString("⚠"), stats.Blocked)
	}
	if remaining := stats.Pending + stats.Ready + stats.Running; remaining > 0 {
		fmt.Printf("  %s %d unfinished\n", color.YellowString("⚠"), remaining)
	}
	for _, msg := range summary.LastErrors {
		fmt.Printf("  %s %s\n", color.RedString("✗"), msg)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}
