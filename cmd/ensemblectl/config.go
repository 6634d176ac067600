package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ensemblectl/internal/config"
	"github.com/mattjoyce/ensemblectl/internal/doctor"
)

func configCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Validate, lock and show the configuration",
	}
	cmd.AddCommand(configCheckCmd(a), configLockCmd(a), configShowCmd(a))
	return cmd
}

func configCheckCmd(a *app) *cobra.Command {
	var (
		format string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, machines and plugins",
		Long: `check loads the configuration, discovers plugins and reports problems.
Exits 1 when any error is found, or when --strict is set and warnings exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			reg, paths, err := a.plugins(cfg)
			if err != nil {
				return err
			}
			result := doctor.New(cfg, reg, paths).Validate()

			switch format {
			case "json":
				out, err := doctor.FormatJSON(result)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, out)
			case "plain":
				fmt.Fprint(a.stdout, doctor.FormatHuman(result))
			case "human":
				fmt.Fprint(a.stdout, doctor.FormatStyled(result))
			default:
				return fmt.Errorf("unknown format %q (want human, plain or json)", format)
			}

			if !result.Valid || (strict && len(result.Warnings) > 0) {
				return &reportedError{code: ExitCodeError}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "human", "Output format: human, plain or json")
	cmd.Flags().BoolVar(&strict, "strict", false, "Treat warnings as failures")
	return cmd
}

func configLockCmd(a *app) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Record BLAKE3 checksums of config.yaml",
		Long: `lock writes .checksums next to config.yaml. Once locked, the
configuration only loads while it matches the recorded checksum; run lock
again after an intended edit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := a.configDir()
			if err != nil {
				return err
			}
			report, err := config.GenerateChecksumsWithReport(dir, []string{config.ConfigFileName}, dryRun)
			if err != nil {
				return err
			}
			for _, f := range report.Files {
				if !f.Exists {
					fmt.Fprintf(a.stdout, "  skipped %s (missing)\n", f.Filename)
					continue
				}
				fmt.Fprintf(a.stdout, "  %s  %s\n", f.Hash, f.Filename)
			}
			if report.Written {
				fmt.Fprintf(a.stdout, "Wrote %s\n", report.ChecksumPath)
			} else {
				fmt.Fprintf(a.stdout, "Dry run: %s not written\n", report.ChecksumPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute checksums without writing them")
	return cmd
}

// configDir resolves the directory holding config.yaml without loading it,
// so a locked config can be re-locked after an edit.
func (a *app) configDir() (string, error) {
	path := a.v.GetString("config")
	if path == "" {
		found, err := config.DiscoverConfigPath()
		if err != nil {
			return "", err
		}
		path = found
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("config not found: %w", err)
	}
	if info.IsDir() {
		return abs, nil
	}
	return filepath.Dir(abs), nil
}

func configShowCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "show [path]",
		Short:   "Show the resolved configuration or one dotted path of it",
		Example: "  ensemblectl config show machines.archer2\n  ensemblectl config show presets --json",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			var result any = cfg
			if len(args) == 1 {
				result, err = cfg.GetPath(args[0])
				if err != nil {
					return err
				}
			}

			if jsonOut {
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, string(data))
				return nil
			}
			data, err := yaml.Marshal(result)
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, string(data))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}
