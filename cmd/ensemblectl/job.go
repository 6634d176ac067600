package main

import (
	"encoding/json"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/ensemblectl/internal/inspect"
	"github.com/mattjoyce/ensemblectl/internal/ledger"
	"github.com/mattjoyce/ensemblectl/internal/tui/watch"
)

func jobCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect recorded submissions",
	}
	cmd.AddCommand(jobListCmd(a), jobInspectCmd(a), jobWatchCmd(a))
	return cmd
}

func jobListCmd(a *app) *cobra.Command {
	var (
		status  string
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List submissions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			l, closer, err := a.openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			subs, err := l.List(cmd.Context(), ledger.ListFilter{
				Plugin: a.v.GetString("plugin"),
				Status: ledger.Status(status),
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(subs)
			}
			if len(subs) == 0 {
				fmt.Fprintln(a.stdout, "No submissions recorded.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "CREATED", "KIND", "PLUGIN", "CONFIG", "MACHINE", "LABEL", "STATUS", "JOB"})
			for _, s := range subs {
				jobID := ""
				if s.BackendJobID != nil {
					jobID = *s.BackendJobID
				}
				t.AppendRow(table.Row{
					shortID(s.ID),
					s.CreatedAt.Local().Format(time.DateTime),
					s.Kind,
					s.Plugin,
					s.Config,
					s.Machine,
					s.Label,
					statusColor(s.Status).Sprint(string(s.Status)),
					jobID,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show this status (queued, submitted, succeeded, failed, dry_run)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func statusColor(s ledger.Status) text.Colors {
	switch s {
	case ledger.StatusSucceeded:
		return text.Colors{text.FgGreen}
	case ledger.StatusFailed:
		return text.Colors{text.FgRed}
	case ledger.StatusSubmitted:
		return text.Colors{text.FgYellow}
	case ledger.StatusDryRun:
		return text.Colors{text.FgCyan}
	default:
		return text.Colors{text.FgHiBlack}
	}
}

func jobInspectCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "inspect <submission-id>",
		Short: "Show one submission with its workspace state and output tail",
		Long:  "inspect accepts a full submission id or any unique prefix of one.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			l, closer, err := a.openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closer.Close()
			ws, err := a.workspaces(cfg)
			if err != nil {
				return err
			}

			var out string
			if jsonOut {
				out, err = inspect.BuildJSONReport(cmd.Context(), l, ws, args[0])
			} else {
				out, err = inspect.BuildReport(cmd.Context(), l, ws, args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func jobWatchCmd(a *app) *cobra.Command {
	var (
		interval time.Duration
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of the submission ledger",
		Long: `watch polls the ledger and shows status totals, recent submissions and
the selected submission's output tail.

Keys: q quit, up/down select, f cycle status filter, r refresh.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			l, closer, err := a.openLedger(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			m := watch.New(l, watch.Options{
				Plugin:   a.v.GetString("plugin"),
				Limit:    limit,
				Interval: interval,
			})
			p := tea.NewProgram(m, tea.WithContext(cmd.Context()), tea.WithOutput(a.stdout))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("watch: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", watch.DefaultInterval, "Polling interval")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum submissions shown")
	return cmd
}
