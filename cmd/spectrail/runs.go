package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/martinemde/spectrail/audit"
	"github.com/martinemde/spectrail/repotools"
	"github.com/martinemde/spectrail/store"
	"github.com/martinemde/spectrail/workflow"
)

// withEngine opens the store and builds an engine that reports progress on
// stderr unless JSON output was requested.
func withEngine(ctx context.Context, fn func(context.Context, *workflow.Engine) error) error {
	return withStore(ctx, func(ctx context.Context, st *store.Store) error {
		opts := []workflow.Option{workflow.WithLogger(logger)}
		var wg sync.WaitGroup
		if !viper.GetBool("json") {
			events := workflow.NewEventEmitter(0)
			opts = append(opts, workflow.WithEvents(events))
			wg.Add(1)
			go func() {
				defer wg.Done()
				for ev := range events.Events() {
					printProgress(ev)
				}
			}()
			defer func() {
				events.Close()
				wg.Wait()
			}()
		}
		return fn(ctx, workflow.NewEngine(st, opts...))
	})
}

func printProgress(ev workflow.RunEvent) {
	switch ev.Kind {
	case workflow.EventLLMTurnStart:
		fmt.Fprintf(os.Stderr, "[%s] model turn %v\n", ev.Workflow, ev.Data["iteration"])
	case workflow.EventToolCallStart:
		fmt.Fprintf(os.Stderr, "[%s] %v\n", ev.Workflow, ev.Data["tool"])
	case workflow.EventToolCallSkipped:
		fmt.Fprintf(os.Stderr, "[%s] %v skipped: tool call budget used\n", ev.Workflow, ev.Data["tool"])
	case workflow.EventContextTruncated:
		fmt.Fprintf(os.Stderr, "[%s] context compacted to %v messages\n", ev.Workflow, ev.Data["kept"])
	case workflow.EventIterationLimit:
		fmt.Fprintf(os.Stderr, "[%s] iteration limit reached\n", ev.Workflow)
	case workflow.EventLoopDetected:
		fmt.Fprintf(os.Stderr, "[%s] the model is repeating the same tool calls\n", ev.Workflow)
	}
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <task-id>",
		Short: "Explore the repository and write an implementation plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *workflow.Engine) error {
				res, err := e.Plan(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.PlanMD)
				fmt.Fprintf(os.Stderr, "run %s: %d iterations, %d tool calls\n", res.RunID, res.Iterations, res.ToolCallsCount)
				return nil
			})
		},
	}
}

func verifyCmd() *cobra.Command {
	opts := workflow.DefaultVerifyOptions()
	cmd := &cobra.Command{
		Use:   "verify <task-id>",
		Short: "Review the working tree against the task's plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *workflow.Engine) error {
				res, err := e.Verify(ctx, args[0], opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Println(res.ReportMD)
				fmt.Fprintf(os.Stderr, "run %s: %d tool calls\n", res.RunID, res.ToolCallsCount)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.RunTests, "tests", opts.RunTests, "run the test command")
	cmd.Flags().BoolVar(&opts.RunLint, "lint", opts.RunLint, "run the lint command")
	cmd.Flags().BoolVar(&opts.RunBuild, "build", opts.RunBuild, "run the build command")
	cmd.Flags().BoolVar(&opts.Staged, "staged", opts.Staged, "review staged instead of unstaged changes")
	cmd.Flags().IntVar(&opts.MaxToolCalls, "max-tool-calls", opts.MaxToolCalls, "tool call budget")
	return cmd
}

func toolsCmd() *cobra.Command {
	t := &cobra.Command{Use: "tools", Short: "Inspect and run repository tools"}
	t.AddCommand(&cobra.Command{
		Use:   "schemas",
		Short: "Print the tool schemas advertised to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(repotools.Schemas())
		},
	})
	t.AddCommand(&cobra.Command{
		Use:   "run <task-id> <tool> [json-args]",
		Short: "Run one tool against a task's repository",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := "{}"
			if len(args) == 3 {
				raw = args[2]
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *workflow.Engine) error {
				res, err := e.RunTool(ctx, args[0], args[1], raw)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				return printJSON(res.Result)
			})
		},
	})
	return t
}

func runsCmd() *cobra.Command {
	r := &cobra.Command{Use: "runs", Short: "Inspect run history"}
	r.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's runs, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				runs, err := st.ListRuns(ctx, args[0])
				if err != nil {
					return err
				}
				return printRuns(runs)
			})
		},
	})
	r.AddCommand(&cobra.Command{
		Use:   "messages <run-id>",
		Short: "Print a run's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				msgs, err := audit.New(st).Transcript(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					fmt.Printf("--- %s (%s)\n%s\n\n", m.Role, m.CreatedAt, m.Content)
				}
				return nil
			})
		},
	})
	r.AddCommand(&cobra.Command{
		Use:   "tools <run-id>",
		Short: "List a run's audited tool calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				calls, err := audit.New(st).ListForRun(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(calls)
				}
				tw := newTable("ID", "Tool", "Args", "Result bytes", "Truncated", "Created")
				for _, c := range calls {
					tw.AppendRow(table.Row{c.ID, c.Name, string(c.Args), len(c.Result), c.Truncated, c.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return r
}

func printRuns(runs []store.Run) error {
	if viper.GetBool("json") {
		return printJSON(runs)
	}
	tw := newTable("ID", "Type", "Provider", "Model", "Started", "Ended")
	for _, r := range runs {
		tw.AppendRow(table.Row{r.ID, r.RunType, deref(r.Provider), deref(r.Model), r.StartedAt, deref(r.EndedAt)})
	}
	tw.Render()
	return nil
}

func artifactsCmd() *cobra.Command {
	a := &cobra.Command{Use: "artifacts", Short: "Read stored plans and reports"}
	a.AddCommand(&cobra.Command{
		Use:   "list <task-id>",
		Short: "List a task's artifacts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				arts, err := st.ListArtifacts(ctx, args[0])
				if err != nil {
					return err
				}
				return printArtifacts(arts)
			})
		},
	})
	var phase string
	show := &cobra.Command{
		Use:   "show <task-id> <kind>",
		Short: "Print an artifact (kinds: plan_md, verification_report, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				art, err := st.GetArtifact(ctx, args[0], phase, args[1])
				if err != nil {
					return fmt.Errorf("%s artifact for task %s: %w", args[1], args[0], err)
				}
				if viper.GetBool("json") {
					return printJSON(art)
				}
				fmt.Println(art.Content)
				return nil
			})
		},
	}
	show.Flags().StringVar(&phase, "phase", "", "phase id")
	a.AddCommand(show)
	return a
}

func printArtifacts(arts []store.Artifact) error {
	if viper.GetBool("json") {
		return printJSON(arts)
	}
	tw := newTable("ID", "Kind", "Phase", "Bytes", "Pinned", "Created")
	for _, a := range arts {
		tw.AppendRow(table.Row{a.ID, a.Kind, deref(a.PhaseID), len(a.Content), a.Pinned, a.CreatedAt})
	}
	tw.Render()
	return nil
}
