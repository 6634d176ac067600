package main

import (
	"github.com/spf13/cobra"

	"github.com/mattjoyce/ensemblectl/internal/simargs"
)

func bridgeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "bridge <command> [key=value ...]",
		Short: "Run a command of the outer automation tool on a machine",
		Long: `bridge invokes the configured automation tool as
  <executable> <machine> <command>:k1=v1,k2=v2
with the key=value arguments in the order given. Its output streams to this
terminal; a non-zero exit status is logged but not treated as a failure.`,
		Example: `  ensemblectl bridge fetch_results --machine archer2 config=brent label=seed_scan`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			kwargs := make([]simargs.KV, 0, len(args)-1)
			for _, raw := range args[1:] {
				kv, err := simargs.ParseAssignment(raw)
				if err != nil {
					return err
				}
				kwargs = append(kwargs, kv)
			}
			// Machine names belong to the outer tool and are not checked here.
			machine := a.machineName()
			if machine == "" {
				machine = cfg.DefaultMachine
			}
			return a.bridge(cfg).Run(cmd.Context(), args[0], machine, kwargs)
		},
	}
}
