package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/viant/exegol"
	"github.com/viant/exegol/model"
	"github.com/viant/exegol/service/approval"
	"github.com/viant/exegol/service/diagnostics"
	"github.com/viant/exegol/service/messaging"
	mqueue "github.com/viant/exegol/service/messaging/memory"
	"github.com/viant/exegol/service/orchestrator"
	"github.com/viant/exegol/service/state"
)

const (
	serviceName    = "exegol"
	serviceVersion = "0.1.0"
)

var rootCmd = &cobra.Command{
	Use:   "exegol",
	Short: "Governed action pipeline for coding agents",
	Long: `exegol lets agents propose git commits, test runs and editor instructions.
A policy decides whether each action runs at once or waits for approval:
- demo: one agent proposes a commit
- audit-tests: a test run is proposed for every workspace
- queue-instructions: an editor instruction is proposed for every workspace
- requests: list, approve, deny or watch held actions`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix(exegol.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

var persistentFlags = []struct {
	name  string
	key   string
	usage string
	kind  string
}{
	{name: "base-dir", key: "base_dir", usage: "directory holding state, logs, workspaces and agents.md", kind: "string"},
	{name: "state-dir", key: "state_dir", usage: "state directory", kind: "string"},
	{name: "log-dir", key: "log_dir", usage: "diagnostic log directory", kind: "string"},
	{name: "workspace-dir", key: "workspace_dir", usage: "directory holding the git workspaces", kind: "string"},
	{name: "agents", key: "agents_path", usage: "agents markdown file", kind: "string"},
	{name: "sandbox-mode", key: "sandbox_mode", usage: "test runner: noop or sandboxed", kind: "string"},
	{name: "sandbox-image", key: "sandbox_image", usage: "container image of the sandboxed runner", kind: "string"},
	{name: "sandbox-timeout", key: "sandbox_timeout", usage: "sandboxed test run timeout", kind: "duration"},
	{name: "state-backend", key: "state_backend", usage: "state backend: fs or sqlite", kind: "string"},
	{name: "test-command", key: "test_command", usage: "command proposed by audit-tests", kind: "string"},
	{name: "demo-agent", key: "demo_agent", usage: "agent driving the demo flow", kind: "string"},
	{name: "concurrency", key: "concurrency", usage: "workspaces handled at once by batch flows", kind: "int"},
	{name: "workers", key: "workers", usage: "dispatch worker pool size; 0 dispatches inline", kind: "int"},
	{name: "log-level", key: "log_level", usage: "debug, info, warn or error", kind: "string"},
	{name: "trace-file", key: "trace_file", usage: "append OpenTelemetry spans to this file", kind: "string"},
	{name: "metrics-addr", key: "metrics_addr", usage: "serve prometheus metrics on this address", kind: "string"},
	{name: "policy-mode", key: "policy_mode", usage: "policy overlay: auto, ask or deny", kind: "string"},
	{name: "policy-allow", key: "policy_allow", usage: "action types allowed outright", kind: "strings"},
	{name: "policy-block", key: "policy_block", usage: "action types always held", kind: "strings"},
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	for _, f := range persistentFlags {
		switch f.kind {
		case "duration":
			flags.Duration(f.name, 0, f.usage)
		case "int":
			flags.Int(f.name, 0, f.usage)
		case "strings":
			flags.StringSlice(f.name, nil, f.usage)
		default:
			flags.String(f.name, "", f.usage)
		}
		_ = viper.BindPFlag(f.key, flags.Lookup(f.name))
	}
	flags.Bool("json", false, "output JSON")
	_ = viper.BindPFlag("json", flags.Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(auditTestsCmd())
	rootCmd.AddCommand(queueInstructionsCmd())
	rootCmd.AddCommand(requestsCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(instructionsCmd())
}

func withService(ctx context.Context, fn func(context.Context, *exegol.Service) error, extra ...exegol.Option) error {
	baseDir := viper.GetString("base_dir")
	if baseDir == "" {
		baseDir = "."
	}
	cfg, err := exegol.LoadConfig(viper.GetViper(), baseDir)
	if err != nil {
		return err
	}
	logger := diagnostics.NewLogger(diagnostics.LogConfig{Level: cfg.LogLevel})
	options := []exegol.Option{exegol.WithConfig(cfg), exegol.WithLogger(logger)}
	if cfg.TraceFile != "" {
		options = append(options, exegol.WithTracing(serviceName, serviceVersion, cfg.TraceFile))
	}
	if cfg.MetricsAddr != "" {
		server, err := diagnostics.ServePrometheus(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer server.Shutdown(context.WithoutCancel(ctx))
		options = append(options, exegol.WithMetrics(server.Metrics()))
	}
	srv, err := exegol.New(ctx, append(options, extra...)...)
	if err != nil {
		return err
	}
	defer srv.Shutdown(context.WithoutCancel(ctx))
	return fn(ctx, srv)
}

func withOrchestrator(ctx context.Context, fn func(context.Context, *orchestrator.Service) error) error {
	return withService(ctx, func(ctx context.Context, srv *exegol.Service) error {
		orc, err := srv.Orchestrator(ctx)
		if err != nil {
			return err
		}
		return fn(ctx, orc)
	})
}

func demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the demo flow: one agent proposes a git commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orc *orchestrator.Service) error {
				outcome, err := orc.RunDemo(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(outcome)
				}
				if outcome.AutoApproved {
					fmt.Printf("auto-approved: %s\n", resultSummary(outcome.Result))
					return nil
				}
				fmt.Printf("paused: request %s\nreason: %s\n", outcome.RequestID, outcome.Decision.Reason)
				return nil
			})
		},
	}
}

func auditTestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-tests",
		Short: "Propose a test run for every workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orc *orchestrator.Service) error {
				report, err := orc.AuditTests(ctx)
				if err != nil {
					return err
				}
				return printReport(report)
			})
		},
	}
}

func queueInstructionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-instructions",
		Short: "Propose an editor instruction for every workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(cmd.Context(), func(ctx context.Context, orc *orchestrator.Service) error {
				report, err := orc.QueueInstructions(ctx)
				if err != nil {
					return err
				}
				return printReport(report)
			})
		},
	}
}

func requestsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "requests", Short: "Manage permission requests"}
	cmd.AddCommand(requestsListCmd())
	cmd.AddCommand(requestsResolveCmd("approve", model.StatusApproved))
	cmd.AddCommand(requestsResolveCmd("deny", model.StatusDenied))
	cmd.AddCommand(requestsWatchCmd())
	return cmd
}

func requestsListCmd() *cobra.Command {
	var status, origin, agent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permission requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := requestFilters(status, origin, agent)
			if err != nil {
				return err
			}
			return withService(cmd.Context(), func(ctx context.Context, srv *exegol.Service) error {
				requests, err := srv.State().PermissionRequests(ctx, filters...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(requests)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"ID", "Status", "Agent", "Title", "Origin", "Created"})
				for _, r := range requests {
					tw.AppendRow(table.Row{r.ID, r.Status, r.Agent.Name, r.Title, r.Origin, r.CreatedAt.Format(time.RFC3339)})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", string(model.StatusPending), "pending, approved, denied or all")
	cmd.Flags().StringVar(&origin, "origin", "", "filter by origin")
	cmd.Flags().StringVar(&agent, "agent", "", "filter by agent name")
	return cmd
}

func requestFilters(status, origin, agent string) ([]state.Filter, error) {
	var filters []state.Filter
	if status != "" && status != "all" {
		parsed, err := model.ParseStatus(status)
		if err != nil {
			return nil, err
		}
		filters = append(filters, state.WithStatus(parsed))
	}
	if origin != "" {
		filters = append(filters, state.WithOrigin(origin))
	}
	if agent != "" {
		filters = append(filters, state.WithAgent(agent))
	}
	return filters, nil
}

func requestsResolveCmd(use string, status model.Status) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <request-id>",
		Short: fmt.Sprintf("Mark a pending request %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, srv *exegol.Service) error {
				decision, err := srv.Resolve(ctx, args[0], status, reason)
				if decision == nil {
					return err
				}
				if viper.GetBool("json") {
					if pErr := printJSON(decision); pErr != nil {
						return pErr
					}
					return err
				}
				fmt.Printf("request %s %s\n", decision.ID, decision.Status)
				if decision.Result != nil {
					fmt.Println(resultSummary(decision.Result))
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "decision reason")
	return cmd
}

func requestsWatchCmd() *cobra.Command {
	var autoApprove, autoDeny bool
	var interval time.Duration
	var reason, origin, agent string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Resolve pending requests as they appear until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if autoApprove == autoDeny {
				return fmt.Errorf("exactly one of --auto-approve or --auto-deny is required")
			}
			filters, err := requestFilters("", origin, agent)
			if err != nil {
				return err
			}
			events := mqueue.NewQueue[approval.Event](mqueue.DefaultConfig())
			defer events.Close()
			return withService(cmd.Context(), func(ctx context.Context, srv *exegol.Service) error {
				go logApprovalEvents(ctx, events, srv.Logger())
				var stop func()
				if autoApprove {
					stop = approval.AutoApprove(ctx, srv.Approvals(), interval, filters...)
				} else {
					stop = approval.AutoReject(ctx, srv.Approvals(), reason, interval, filters...)
				}
				srv.Logger().Info("watching permission requests", "auto_approve", autoApprove, "interval", interval)
				<-ctx.Done()
				stop()
				return nil
			}, exegol.WithApprovalQueue(events))
		},
	}
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "approve every pending request")
	cmd.Flags().BoolVar(&autoDeny, "auto-deny", false, "deny every pending request")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval")
	cmd.Flags().StringVar(&reason, "reason", "denied by watcher", "reason recorded on denial")
	cmd.Flags().StringVar(&origin, "origin", "", "only resolve requests from this origin")
	cmd.Flags().StringVar(&agent, "agent", "", "only resolve requests from this agent")
	return cmd
}

// logApprovalEvents drains the approval queue into the operator log.
func logApprovalEvents(ctx context.Context, queue messaging.Queue[approval.Event], logger *slog.Logger) {
	for {
		msg, err := queue.Consume(ctx)
		if err != nil {
			return
		}
		if msg == nil {
			continue
		}
		event := msg.T()
		switch data := event.Data.(type) {
		case *model.PermissionRequest:
			logger.Info("request created", "id", data.ID, "agent", data.Agent.Name, "title", data.Title)
		case *approval.Decision:
			logger.Info("request decided", "id", data.ID, "status", data.Status, "reason", data.Reason)
		default:
			logger.Info("approval event", "topic", event.Topic)
		}
		_ = msg.Ack()
	}
}

func activityCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, srv *exegol.Service) error {
				entries, err := srv.State().Activity(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.AppendHeader(table.Row{"Time", "Message"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.Timestamp.Format(time.RFC3339), entry.Message})
				}
				fmt.Println(tw.Render())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "most recent entries to show; 0 shows all")
	return cmd
}

func instructionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "instructions",
		Short: "Show queued editor instructions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, srv *exegol.Service) error {
				instructions, err := srv.State().Instructions(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(instructions)
				}
				for _, instruction := range instructions {
					fmt.Printf("[%s] %s (%s)\n%s\n\n", instruction.CreatedAt.Format(time.RFC3339), instruction.RepoPath, instruction.Agent, instruction.Block)
				}
				return nil
			})
		},
	}
}

func printReport(report *orchestrator.BatchReport) error {
	if viper.GetBool("json") {
		if err := printJSON(report); err != nil {
			return err
		}
		return report.Err()
	}
	tw := table.NewWriter()
	tw.SetTitle(fmt.Sprintf("%s (%s)", report.Origin, report.Agent))
	tw.AppendHeader(table.Row{"Workspace", "Request", "Outcome"})
	for _, item := range report.Items {
		switch {
		case item.Err != nil:
			tw.AppendRow(table.Row{item.Workspace, "-", "error: " + item.Err.Error()})
		case item.AutoApproved:
			tw.AppendRow(table.Row{item.Workspace, item.Ref(), resultSummary(item.Result)})
		default:
			tw.AppendRow(table.Row{item.Workspace, item.Ref(), item.Decision.Reason})
		}
	}
	fmt.Println(tw.Render())
	return report.Err()
}

func resultSummary(result *model.ExecutionResult) string {
	if result == nil {
		return ""
	}
	switch {
	case result.Reason != "":
		return fmt.Sprintf("%s: %s", result.Status, result.Reason)
	case result.CommitID != "":
		return fmt.Sprintf("%s: commit %s", result.Status, result.CommitID)
	case result.Runner != "":
		return fmt.Sprintf("%s (%s)", result.Status, result.Runner)
	}
	return string(result.Status)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
