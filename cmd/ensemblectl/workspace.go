package main

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func workspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage run workspaces",
	}
	cmd.AddCommand(workspaceListCmd(a), workspacePruneCmd(a))
	return cmd
}

func workspaceListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List run workspaces, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			ws, err := a.workspaces(cfg)
			if err != nil {
				return err
			}
			infos, err := ws.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Fprintf(a.stdout, "No workspaces in %s.\n", cfg.Workspace.Dir)
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"ID", "MODIFIED", "DIR"})
			for _, info := range infos {
				t.AppendRow(table.Row{info.ID, info.ModTime.Local().Format(time.DateTime), info.Dir})
			}
			t.Render()
			return nil
		},
	}
}

func workspacePruneCmd(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete workspaces older than the retention period",
		Long: `prune removes run workspaces whose last modification is older than
--older-than (default: workspace.retention). Ledger entries are kept; inspect
reports a pruned workspace as not present.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("older-than") {
				olderThan = cfg.Workspace.Retention
			}
			ws, err := a.workspaces(cfg)
			if err != nil {
				return err
			}
			report, err := ws.Cleanup(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Pruned %d workspace(s) older than %s.\n", report.DeletedDirs, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Age threshold, e.g. 72h (default: workspace.retention)")
	return cmd
}
