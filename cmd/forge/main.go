package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"taskforge/internal/config"
	"taskforge/internal/core"
	"taskforge/internal/logging"
	"taskforge/internal/watcher"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "taskforge - a skill-acquiring, self-modifying task engine",
	Long: `taskforge takes natural language tasks, synthesizes small programs to
carry them out, and caches every success as a reusable skill. Tasks asking
the system to improve itself are routed to a self-modification engine that
rewrites its own modules, benchmarks the result, and commits only measured
improvements.

Every execution runs in a sandbox with a hard timeout; every modification
attempt lands on an append-only performance ledger.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// taskCmd processes one instruction end to end
var taskCmd = &cobra.Command{
	Use:   "task [instruction]",
	Short: "Process a single task through the full pipeline",
	Long: `Classifies the instruction, reuses a cached skill when one matches its
signature, synthesizes and sandboxes a new program otherwise, and prints
the result as JSON.

Examples:
  forge task calculate 100 \* 25
  forge task how much disk space is left
  forge task optimize the reportbuilder module`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

// watchCmd tails the task inbox
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the task inbox and process appended lines",
	Long: `Tails the workspace inbox file (one task per line) and processes each
new line in order. Blank lines and lines starting with # are skipped.
Runs until interrupted.`,
	RunE: runWatch,
}

// skillsCmd lists the skill cache
var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "List cached skills with usage counters",
	RunE:  listSkills,
}

// historyCmd prints a module's performance ledger
var historyCmd = &cobra.Command{
	Use:   "history [module]",
	Short: "Show the performance ledger for a module",
	Long: `Prints every modification attempt recorded for a module, in append
order: generation, before/after metrics, and the commit or rollback
verdict with its failing stage.`,
	Args: cobra.ExactArgs(1),
	RunE: showHistory,
}

// evolveCmd runs improvement cycles directly
var evolveCmd = &cobra.Command{
	Use:   "evolve [module...]",
	Short: "Run self-improvement cycles against modules",
	Long: `Runs analyze/snapshot/rewrite/validate/benchmark cycles against the
named modules, or against every registered module when none are named.
Each committed generation must beat its predecessor by the configured
margin.`,
	RunE: runEvolve,
}

// modulesCmd lists registered modules
var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List registered modules and their generations",
	RunE:  listModules,
}

var showSource bool

// replayCmd re-executes an archived artifact
var replayCmd = &cobra.Command{
	Use:   "replay [key]",
	Short: "Re-run an archived artifact through the interpreter",
	Long: `Replays the archived source of a past successful run. Replays are
audited like any execution but never touch the skill cache.`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

// archiveCmd lists archived artifacts
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "List archived artifacts, newest first",
	RunE:  listArchive,
}

// auditCmd lists recent executions
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recent sandbox executions, newest first",
	RunE:  listExecutions,
}

var limitFlag int

// initCmd writes a default config file
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a taskforge workspace",
	Long: `Creates the .forge/ state directory and writes a default config.yaml
you can edit. Safe to re-run; an existing config is left alone.`,
	RunE: runInit,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.forge/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	modulesCmd.Flags().BoolVar(&showSource, "source", false, "Print each module's active source")
	archiveCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum entries to list")
	auditCmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum entries to list")

	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(evolveCmd)
	rootCmd.AddCommand(modulesCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(initCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves the workspace and config file into a ready Config,
// and points the category log files at the workspace.
func loadConfig() (*config.Config, error) {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return nil, err
		}
	}

	path := configPath
	if path == "" {
		path = filepath.Join(ws, ".forge", "config.yaml")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.Workspace = ws
	}

	if err := logging.Initialize(cfg.Workspace, cfg.Logging.Debug || verbose, cfg.Logging.Level); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bootEngine() (*core.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return core.New(cfg)
}

// cancelOnSignal returns a ctx cancelled by SIGINT/SIGTERM or the timeout.
func cancelOnSignal() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, cancel := cancelOnSignal()
	defer cancel()

	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	text := strings.Join(args, " ")
	logger.Info("Processing task", zap.String("input", text))

	result, err := engine.Process(ctx, text)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := core.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	resultsPath := filepath.Join(filepath.Dir(cfg.InboxPath()), "results.log")
	results, err := os.OpenFile(resultsPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening results log: %w", err)
	}
	defer results.Close()

	w := watcher.New(cfg.InboxPath(), cfg.GetDebounce(), func(ctx context.Context, task string) {
		result, err := engine.Process(ctx, task)
		if err != nil {
			logger.Error("Task failed", zap.String("task", task), zap.Error(err))
			fmt.Fprintf(results, "%s\tFAILED\t%s\t%v\n", time.Now().Format(time.RFC3339), task, err)
			return
		}
		line, err := json.Marshal(result)
		if err != nil {
			logger.Error("Encoding result", zap.Error(err))
			return
		}
		fmt.Fprintf(results, "%s\t%s\n", time.Now().Format(time.RFC3339), line)
		if err := printJSON(result); err != nil {
			logger.Error("Encoding result", zap.Error(err))
		}
	})

	logger.Info("Watching inbox", zap.String("path", cfg.InboxPath()))
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func listSkills(cmd *cobra.Command, args []string) error {
	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	skills, err := engine.Skills()
	if err != nil {
		return err
	}
	if len(skills) == 0 {
		fmt.Println("No skills cached yet.")
		return nil
	}
	for _, s := range skills {
		fmt.Printf("%-40q template=%-12s uses=%d ok=%d failed=%d last=%s\n",
			s.Signature, s.TemplateID, s.UseCount, s.SuccessCount, s.FailureCount,
			s.LastUsed.Format(time.RFC3339))
	}
	return nil
}

func showHistory(cmd *cobra.Command, args []string) error {
	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	records, err := engine.History(args[0])
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No modification attempts recorded for %s.\n", args[0])
		return nil
	}
	for _, r := range records {
		line := fmt.Sprintf("gen %-3d %-8s %10.0fns/op -> %10.0fns/op",
			r.Generation, r.Verdict, r.BeforeMetric, r.AfterMetric)
		if r.FailingStage != "" {
			line += "  failed at " + r.FailingStage
		}
		fmt.Println(line)
	}
	return nil
}

func runEvolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := cancelOnSignal()
	defer cancel()

	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	request := "improve " + strings.Join(args, " ")
	if len(args) == 0 {
		request = "improve yourself"
	}
	logger.Info("Evolving", zap.Strings("modules", args))

	result, err := engine.Process(ctx, request)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func listModules(cmd *cobra.Command, args []string) error {
	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	for id, gen := range engine.Modules() {
		fmt.Printf("%-20s generation %d\n", id, gen)
		if showSource {
			source, err := engine.ModuleSource(id)
			if err != nil {
				return err
			}
			fmt.Println(source)
		}
	}
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, cancel := cancelOnSignal()
	defer cancel()

	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	res, err := engine.Replay(ctx, args[0])
	if err != nil {
		return err
	}
	return printJSON(res)
}

func listArchive(cmd *cobra.Command, args []string) error {
	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	entries, err := engine.Archived(limitFlag)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("Archive is empty.")
		return nil
	}
	for _, a := range entries {
		fmt.Printf("%s  template=%-12s artifact=%s\n", a.Key, a.TemplateID, a.ArtifactID)
	}
	return nil
}

func listExecutions(cmd *cobra.Command, args []string) error {
	engine, err := bootEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	execs, err := engine.Executions(limitFlag)
	if err != nil {
		return err
	}
	if len(execs) == 0 {
		fmt.Println("No executions recorded.")
		return nil
	}
	for _, e := range execs {
		fmt.Printf("%s  %-24s template=%-12s %v\n",
			e.Timestamp.Format(time.RFC3339), e.Kind, e.TemplateID, e.Duration.Round(time.Millisecond))
	}
	return nil
}

func runInit(cmd *cobra.Command, args []string) error {
	ws := workspace
	if ws == "" {
		var err error
		if ws, err = os.Getwd(); err != nil {
			return err
		}
	}
	path := filepath.Join(ws, ".forge", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Workspace already initialized: %s\n", path)
		return nil
	}

	cfg := config.DefaultConfig()
	cfg.Workspace = ws
	if err := cfg.Save(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.InboxPath()), 0o755); err != nil {
		return err
	}
	fmt.Printf("Initialized taskforge workspace at %s\n", ws)
	fmt.Printf("Config written to %s\n", path)
	return nil
}
