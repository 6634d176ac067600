package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/mattjoyce/ensemblectl/internal/job"
)

func pluginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Inspect discovered simulation plugins",
	}
	cmd.AddCommand(pluginListCmd(a), pluginShowCmd(a))
	return cmd
}

func pluginListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			reg, _, err := a.plugins(cfg)
			if err != nil {
				return err
			}
			names := reg.Names()
			if len(names) == 0 {
				fmt.Fprintf(a.stdout, "No plugins found in %s.\n", cfg.PluginsDir)
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"NAME", "VERSION", "ARGS", "CONFIGS", "DESCRIPTION"})
			for _, name := range names {
				p, _ := reg.Get(name)
				configs, err := p.Configs()
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{p.Name, p.Version, len(p.Args), strings.Join(configs, ", "), p.Description})
			}
			t.Render()
			return nil
		},
	}
}

func pluginShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Show a plugin's simulation arguments, presets and run configurations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			name, err := a.pluginName(cfg)
			if len(args) == 1 {
				name, err = args[0], nil
			}
			if err != nil {
				return err
			}
			reg, _, err := a.plugins(cfg)
			if err != nil {
				return err
			}
			env, err := a.resolver(reg, cfg).Environment(name)
			if err != nil {
				return err
			}
			p := env.Plugin

			fmt.Fprintf(a.stdout, "%s %s\n", p.Name, p.Version)
			if p.Description != "" {
				fmt.Fprintf(a.stdout, "%s\n", p.Description)
			}
			fmt.Fprintf(a.stdout, "Path:    %s\n", p.Path)
			fmt.Fprintf(a.stdout, "Program: %s\n\n", renderUnset(env.Program))

			args := table.NewWriter()
			args.SetOutputMirror(a.stdout)
			args.SetStyle(table.StyleLight)
			args.SetTitle("Simulation arguments")
			args.AppendHeader(table.Row{"NAME", "KIND", "DEFAULT"})
			for _, arg := range env.Defaults {
				args.AppendRow(table.Row{arg.Name, arg.Value.Kind().String(), arg.Value.String()})
			}
			args.Render()
			fmt.Fprintln(a.stdout)

			presets := table.NewWriter()
			presets.SetOutputMirror(a.stdout)
			presets.SetStyle(table.StyleLight)
			presets.SetTitle("Effective presets")
			presets.AppendHeader(table.Row{"PRESET", "SCRIPT", "WALL TIME", "MEMORY", "CORES", "LABEL", "SIZE"})
			presets.AppendRow(presetRow("single", env.Single))
			presets.AppendRow(presetRow("ensemble", env.Ensemble))
			presets.Render()

			configs, err := p.Configs()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "\nRun configurations: %s\n", renderUnset(strings.Join(configs, ", ")))
			return nil
		},
	}
}

func presetRow(name string, p job.Preset) table.Row {
	size := ""
	if p.Size > 0 {
		size = fmt.Sprint(p.Size)
	}
	return table.Row{name, p.Script, p.WallTime, p.Memory, p.Cores, p.Label, size}
}

func renderUnset(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
