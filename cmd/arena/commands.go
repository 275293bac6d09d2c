package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"arena/internal/app"
	"arena/internal/config"
	"arena/internal/logger"
	"arena/internal/store/gormstore"
)

const defaultConfigPath = "configs/arena.toml"

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:   "arena",
		Short: "Run LLM trading agents side by side on paper portfolios",
		Long: `arena gives every configured model the same market snapshot on a fixed
interval, executes its decisions against its own simulated futures portfolio
and serves the standings over a read-only HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArena(cmd.Context(), cfgPath, false)
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", envOr("ARENA_CONFIG", defaultConfigPath), "configuration file path")

	root.AddCommand(newRunCmd(&cfgPath))
	root.AddCommand(newOnceCmd(&cfgPath))
	root.AddCommand(newPlansCmd(&cfgPath))
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the engine and the status API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArena(cmd.Context(), *cfgPath, false)
		},
	}
}

func newOnceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single decision cycle for every agent and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArena(cmd.Context(), *cfgPath, true)
		},
	}
}

func newPlansCmd(cfgPath *string) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Print stored exit plans as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return printPlans(cmd.Context(), cmd.OutOrStdout(), cfg.Storage.Path, agentID)
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "", "only show plans of this agent")
	return cmd
}

func runArena(ctx context.Context, cfgPath string, once bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	closeLogs, err := setupLogging(cfg.App)
	if err != nil {
		return err
	}
	defer closeLogs()
	logger.Infof("config loaded (env=%s, agents=%d)", cfg.App.Env, len(cfg.Agents))

	a, err := app.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	if once {
		defer a.Close()
		a.Engine().RunOnce(ctx)
		return nil
	}
	return a.Run(ctx)
}

func printPlans(ctx context.Context, w io.Writer, dbPath, agentID string) error {
	store, err := gormstore.NewGormStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	records, err := store.ListExitPlans(ctx, strings.TrimSpace(agentID))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		_, err := fmt.Fprintln(w, "# no exit plans")
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(records)
}

func setupLogging(cfg config.AppConfig) (func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	logger.SetLevel(cfg.LogLevel)
	if f, err := openLogFile(cfg.LogPath); err != nil {
		return closeAll, fmt.Errorf("open log file: %w", err)
	} else if f != nil {
		files = append(files, f)
		mw := io.MultiWriter(os.Stdout, f)
		log.SetOutput(mw)
		logger.SetOutput(mw)
	}
	logger.SetLLMWriter(nil)
	if cfg.LLMDump {
		f, err := openLogFile(cfg.LLMLog)
		if err != nil {
			closeAll()
			return func() {}, fmt.Errorf("open llm log file: %w", err)
		}
		if f != nil {
			files = append(files, f)
			logger.SetLLMWriter(f)
		}
	}
	logger.EnableLLMPayloadDump(cfg.LLMDump)
	return closeAll, nil
}

func openLogFile(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
