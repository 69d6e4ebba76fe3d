package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/martinemde/spectrail/config"
	"github.com/martinemde/spectrail/store"
)

var rootCmd = &cobra.Command{
	Use:   "spectrail",
	Short: "Plan and verify repository work with an LLM",
	Long: `Spectrail keeps projects, tasks, runs and artifacts in a workspace database.
- Project: a repository on disk.
- Task: a piece of work in a project.
- plan: the model explores the repository with read-only tools and writes an implementation plan.
- verify: git status, the diff and the project's checks are collected and the model reviews them against the plan.
Every message and tool call of a run is kept; see 'spectrail runs'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		_ = godotenv.Load(filepath.Join(workspace, ".env"))
		return setupLogger(viper.GetString("log-level"))
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SPECTRAIL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(settingsCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(verifyCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(artifactsCmd())
}

var logger = slog.New(slog.DiscardHandler)

func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	return nil
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <repo-path>",
		Short: "Register a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			if info, err := os.Stat(repoPath); err != nil || !info.IsDir() {
				return fmt.Errorf("%s is not a directory", repoPath)
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				p, err := st.CreateProject(ctx, args[0], repoPath)
				if err != nil {
					return err
				}
				return printProjects([]store.Project{p})
			})
		},
	}
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects, most recently opened first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				items, err := st.ListProjects(ctx)
				if err != nil {
					return err
				}
				return printProjects(items)
			})
		},
	}
}

func printProjects(items []store.Project) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Name", "Repository", "Last opened")
	for _, p := range items {
		tw.AppendRow(table.Row{p.ID, p.Name, p.RepoPath, deref(p.LastOpenedAt)})
	}
	tw.Render()
	return nil
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskStatusCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "create <project-id> <title>",
		Short: "Create a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				if _, err := st.GetProject(ctx, args[0]); err != nil {
					return fmt.Errorf("project %s: %w", args[0], err)
				}
				task, err := st.CreateTask(ctx, args[0], args[1], mode)
				if err != nil {
					return err
				}
				if err := st.TouchProject(ctx, args[0]); err != nil {
					return err
				}
				return printTasks([]store.Task{task})
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", store.ModePlan, "task mode (plan, phases, review)")
	return cmd
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				tasks, err := st.ListTasks(ctx, args[0])
				if err != nil {
					return err
				}
				if err := st.TouchProject(ctx, args[0]); err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task with its runs and artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				task, err := st.GetTask(ctx, args[0])
				if err != nil {
					return fmt.Errorf("task %s: %w", args[0], err)
				}
				runs, err := st.ListRuns(ctx, task.ID)
				if err != nil {
					return err
				}
				arts, err := st.ListArtifacts(ctx, task.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"task": task, "runs": runs, "artifacts": arts})
				}
				if err := printTasks([]store.Task{task}); err != nil {
					return err
				}
				if err := printRuns(runs); err != nil {
					return err
				}
				return printArtifacts(arts)
			})
		},
	}
}

func taskStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Set a task's status (draft, active, done, archived)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				if err := st.UpdateTaskStatus(ctx, args[0], args[1]); err != nil {
					return err
				}
				task, err := st.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printTasks([]store.Task{task})
			})
		},
	}
}

func printTasks(items []store.Task) error {
	if viper.GetBool("json") {
		return printJSON(items)
	}
	tw := newTable("ID", "Title", "Mode", "Status", "Updated")
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Mode, t.Status, t.UpdatedAt})
	}
	tw.Render()
	return nil
}

func settingsCmd() *cobra.Command {
	s := &cobra.Command{
		Use:   "settings",
		Short: "Manage LLM and tool settings",
		Long: "Settings are stored in the workspace database. Keys: " + strings.Join(config.Keys, ", ") +
			". The API key may instead come from " + config.APIKeyEnv + " (a .env file in the workspace is loaded).",
	}
	s.AddCommand(settingsListCmd())
	s.AddCommand(settingsSetCmd())
	s.AddCommand(settingsImportCmd())
	return s
}

func settingsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored settings (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				items, err := st.ListSettings(ctx)
				if err != nil {
					return err
				}
				for i := range items {
					items[i].Value = config.Redact(items[i].Key, items[i].Value)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("Key", "Value", "Updated")
				for _, s := range items {
					tw.AppendRow(table.Row{s.Key, s.Value, s.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func settingsSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one setting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !config.IsKnownKey(args[0]) {
				return fmt.Errorf("unknown setting %q (known: %s)", args[0], strings.Join(config.Keys, ", "))
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				return st.SetSetting(ctx, args[0], args[1])
			})
		},
	}
}

func settingsImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Store every setting from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			values, err := config.ImportYAML(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				if err := st.SetSettings(ctx, values); err != nil {
					return err
				}
				logger.Info("settings imported", "file", args[0], "count", len(values))
				return nil
			})
		},
	}
}

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	st, err := store.OpenWorkspace(viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func newTable(header ...interface{}) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
