// WarpDeck — local dashboard for a WARP gateway agent.
// Author: vesaa | License: MIT | https://github.com/vesaa/warpdeck
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/vesaa/warpdeck/internal/agent"
	"github.com/vesaa/warpdeck/internal/config"
	"github.com/vesaa/warpdeck/internal/confirm"
	"github.com/vesaa/warpdeck/internal/dispatcher"
	"github.com/vesaa/warpdeck/internal/logstream"
	"github.com/vesaa/warpdeck/internal/models"
	"github.com/vesaa/warpdeck/internal/notify"
	"github.com/vesaa/warpdeck/internal/reconciler"
	"github.com/vesaa/warpdeck/internal/server"
)

const asciiLogo = `
 __      __                 ___          _   
 \ \    / /_ _ _ _ _ __    |   \ ___ __| |__
  \ \/\/ / _' | '_| '_ \   | |) / -_) _| / /
   \_/\_/\__,_|_| | .__/   |___/\___\__|_\_\
                  |_|
`

const version = "v0.1.0"

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► WarpDeck %s  |  Author: vesaa  |  Mode: %s\n\n", version, mode)
}

func main() {
	root := &cobra.Command{
		Use:   "warpdeck",
		Short: "WarpDeck — dashboard and control panel for a local WARP gateway agent",
		Long: `WarpDeck polls a local gateway agent over HTTP, keeps a consistent view of
its license, accounts, processes and backups, and dispatches operator actions.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "Config file (default ./config.yaml or ~/.warpdeck/config.yaml)")
	root.PersistentFlags().String("agent", "", "Agent base URL, e.g. http://127.0.0.1:9530 (overrides config)")

	// ── serve subcommand ──────────────────────────────────────────────────────
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard (web UI + JSON API + websocket push)",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVE")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.ListenAddr = listen
			}
			setupLogging(cfg)
			return serve(cfg)
		},
	}
	serveCmd.Flags().String("listen", "", "Dashboard listen address, e.g. 127.0.0.1:9540 (overrides config)")

	// ── snapshot subcommand ───────────────────────────────────────────────────
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Run one reconciliation cycle and print the snapshot as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			client := agent.NewClient(cfg.AgentURL, cfg.AgentTimeout)
			rec := newReconciler(cfg, client)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return printJSON(rec.Reconcile(ctx))
		},
	}

	// ── action subcommand ─────────────────────────────────────────────────────
	actionCmd := &cobra.Command{
		Use:   "action <name> [code|email|path]",
		Short: "Dispatch one operator action against the agent",
		Long:  "Available actions: " + actionNames(),
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)

			action, err := dispatcher.Parse(args[0])
			if err != nil {
				return fmt.Errorf("%w (available: %s)", err, actionNames())
			}
			req := dispatcher.Request{Action: action}
			if len(args) == 2 {
				switch action {
				case dispatcher.ActionActivate:
					req.Code = args[1]
				case dispatcher.ActionSwitchAccount:
					req.Email = args[1]
				case dispatcher.ActionSaveWarpPath:
					req.Path = args[1]
				default:
					return fmt.Errorf("action %s takes no argument", action)
				}
			}

			client := agent.NewClient(cfg.AgentURL, cfg.AgentTimeout)
			rec := newReconciler(cfg, client)
			var opts []dispatcher.Option
			if cfg.DBPath != "" {
				journal, err := server.OpenJournal(cfg.DBPath)
				if err != nil {
					return err
				}
				defer journal.Close()
				opts = append(opts, dispatcher.WithRecorder(journal))
			}
			disp := dispatcher.New(client, rec, notify.New(cfg.ToastTTL), opts...)

			yes, _ := cmd.Flags().GetBool("yes")
			prompt := confirm.Prompt{In: os.Stdin, Out: os.Stderr, AssumeYes: yes}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			out := disp.Dispatch(ctx, req, prompt)

			fmt.Printf("%s: %s\n", out.Status, out.Message)
			if out.Path != "" {
				fmt.Printf("  path: %s\n", out.Path)
			}
			switch out.Status {
			case models.OutcomeOK, models.OutcomeDeclined:
				return nil
			default:
				if len(out.Failed) > 0 {
					return fmt.Errorf("action %s %s (failed: %s)", action, out.Status, strings.Join(out.Failed, ", "))
				}
				return fmt.Errorf("action %s %s", action, out.Status)
			}
		},
	}
	actionCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt for destructive actions")

	// ── logs subcommand ───────────────────────────────────────────────────────
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the agent's recent log lines, optionally following the live stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			setupLogging(cfg)
			lines, _ := cmd.Flags().GetInt("lines")
			follow, _ := cmd.Flags().GetBool("follow")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			client := agent.NewClient(cfg.AgentURL, cfg.AgentTimeout)
			tail, err := client.TailLogs(ctx, lines)
			if err != nil {
				return fmt.Errorf("reading log tail: %w", err)
			}
			for _, l := range tail {
				fmt.Println(l)
			}
			if !follow {
				return nil
			}
			err = client.StreamLogs(ctx, func(line string) { fmt.Println(line) })
			if errors.Is(err, agent.ErrStreamClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
	logsCmd.Flags().IntP("lines", "n", 80, "Number of tail lines to print")
	logsCmd.Flags().BoolP("follow", "f", false, "Keep streaming new lines until interrupted")

	// ── history subcommand ────────────────────────────────────────────────────
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recently dispatched actions from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.DBPath == "" {
				return errors.New("the action journal is disabled (db_path is empty)")
			}
			journal, err := server.OpenJournal(cfg.DBPath)
			if err != nil {
				return err
			}
			defer journal.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			recs, err := journal.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tACTION\tOUTCOME\tTOOK\tMESSAGE")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\t%s\n",
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Action, r.Outcome, r.DurationMS, r.Message)
			}
			return tw.Flush()
		},
	}
	historyCmd.Flags().Int("limit", 20, "Maximum number of entries")

	// ── version subcommand ────────────────────────────────────────────────────
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print WarpDeck version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("WarpDeck %s  |  Author: vesaa\n", version)
		},
	}

	root.AddCommand(serveCmd, snapshotCmd, actionCmd, logsCmd, historyCmd, versionCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := agent.NewClient(cfg.AgentURL, cfg.AgentTimeout)
	rec := newReconciler(cfg, client)

	logs := logstream.NewAdapter(client, logstream.NewBuffer(cfg.LogCapacity), logstream.Options{
		TailLines:      cfg.LogTailLines,
		Reconnect:      cfg.LogsReconnect,
		InitialBackoff: cfg.BackoffInitial,
		MaxBackoff:     cfg.BackoffMax,
		// the agent may have restarted while the stream was down
		OnReconnect: rec.Trigger,
	})
	notifier := notify.New(cfg.ToastTTL)

	tickets, err := confirm.NewTickets(confirm.DefaultTTL)
	if err != nil {
		return err
	}

	deps := server.Deps{
		Snapshots: rec.Store(),
		Syncer:    rec,
		Logs:      logs,
		Toasts:    notifier,
		Tickets:   tickets,
	}
	var opts []dispatcher.Option
	if cfg.DBPath != "" {
		journal, err := server.OpenJournal(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("initializing journal: %w", err)
		}
		defer journal.Close()
		opts = append(opts, dispatcher.WithRecorder(journal))
		deps.History = journal
	}
	deps.Actions = dispatcher.New(client, rec, notifier, opts...)

	srv := server.New(deps)
	go srv.Hub().Run(ctx)
	go rec.Start(ctx)
	logs.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), server.RequestLogger())
	srv.RegisterRoutes(engine)
	server.RegisterStaticFiles(engine)

	fmt.Printf("  ✓ Dashboard (Web UI + API) → http://%s\n", cfg.ListenAddr)
	fmt.Printf("  ✓ Agent                    → %s\n", cfg.AgentURL)
	fmt.Printf("  ✓ Poll interval            → %s\n\n", cfg.PollInterval)

	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: engine}
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)

	select {
	case err := <-errCh:
		return err
	case <-quit:
		fmt.Println("\n  → Shutting down gracefully…")
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// loadConfig reads the config file and applies the persistent CLI flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if u, _ := cmd.Flags().GetString("agent"); u != "" {
		cfg.AgentURL = u
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: config.ParseLogLevel(cfg.LogLevel)}
	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func newReconciler(cfg *config.Config, client *agent.Client) *reconciler.Reconciler {
	var prober reconciler.Prober
	if p := agent.NewProber(cfg.AgentURL, cfg.ProbeEnabled); p.Enabled() {
		prober = p
	}
	return reconciler.New(client, prober, reconciler.NewStore(), reconciler.Options{
		PollInterval: cfg.PollInterval,
		Backups:      reconciler.BackupMode(cfg.FeaturesBackups),
	})
}

func actionNames() string {
	var names []string
	for _, a := range dispatcher.Actions() {
		names = append(names, string(a))
	}
	return strings.Join(names, ", ")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
